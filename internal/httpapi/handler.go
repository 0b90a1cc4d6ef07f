package httpapi

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gopherbook.com/internal/engine"
	"gopherbook.com/internal/marketdata"
	"gopherbook.com/pkg/common"
	"gopherbook.com/pkg/logger"
	"gopherbook.com/pkg/xerr"
)

type handler struct {
	src   SnapshotSource
	cache marketdata.Cache
}

func (h *handler) health(c *gin.Context) {
	common.Success(c, gin.H{"status": "ok", "symbols": len(h.src.Symbols())})
}

func (h *handler) symbols(c *gin.Context) {
	common.Success(c, h.src.Symbols())
}

// book GET /api/books/:symbol?depth=N
func (h *handler) book(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	depth := 0
	if v := c.Query("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			common.FailErr(c, xerr.New(xerr.ParseError, "depth must be a non-negative integer"))
			return
		}
		depth = n
	}

	snap, err := h.src.Snapshot(symbol, depth)
	if err == nil {
		common.Success(c, marketdata.ToDTO(symbol, snap))
		return
	}
	if !errors.Is(err, engine.ErrUnknownSymbol) {
		common.FailErr(c, err)
		return
	}

	// 本进程没有该品种：回退到缓存里其它节点写入的快照
	if h.cache != nil {
		dto, cerr := h.cached(c, symbol)
		if cerr == nil {
			common.Success(c, truncate(dto, depth))
			return
		}
		if !errors.Is(cerr, marketdata.ErrCacheMiss) {
			logger.Warn(c.Request.Context(), "read cached book", zap.String("symbol", symbol), zap.Error(cerr))
		}
	}
	common.FailErr(c, xerr.Wrap(xerr.SymbolNotFound, err))
}

func (h *handler) cached(c *gin.Context, symbol string) (marketdata.BookDTO, error) {
	b, err := h.cache.GetBook(c.Request.Context(), symbol)
	if err != nil {
		return marketdata.BookDTO{}, err
	}
	return marketdata.DecodeBook(b)
}

func truncate(dto marketdata.BookDTO, depth int) marketdata.BookDTO {
	if depth <= 0 {
		return dto
	}
	if len(dto.Bids) > depth {
		dto.Bids = dto.Bids[:depth]
	}
	if len(dto.Asks) > depth {
		dto.Asks = dto.Asks[:depth]
	}
	if dto.Depth == 0 || depth < dto.Depth {
		dto.Depth = depth
	}
	return dto
}
