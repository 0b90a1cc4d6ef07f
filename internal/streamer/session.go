package streamer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"gopherbook.com/pkg/common"
	"gopherbook.com/pkg/logger"
	"gopherbook.com/pkg/metrics"
	"gopherbook.com/pkg/xerr"
)

type session struct {
	srv    *Server
	c      net.Conn
	id     string
	close1 sync.Once
}

func newSession(srv *Server, c net.Conn) *session {
	return &session{srv: srv, c: c, id: common.NewID()}
}

func (ss *session) close() {
	ss.close1.Do(func() { _ = ss.c.Close() })
}

// run 读一行、解码、提交、回包，严格按顺序。会话是连接上唯一的写者
func (ss *session) run(ctx context.Context) {
	cfg := ss.srv.cfg
	ctx = logger.WithTraceID(ctx, ss.id)
	remote := ss.c.RemoteAddr().String()

	ss.srv.gauge()
	logger.Info(ctx, "session opened", zap.String("symbol", cfg.Symbol), zap.String("remote", remote))
	defer func() {
		ss.close()
		if cfg.Limiter != nil {
			cfg.Limiter.Forget(ss.id)
		}
		ss.srv.dropSession(ss)
		ss.srv.gauge()
		logger.Info(ctx, "session closed", zap.String("symbol", cfg.Symbol), zap.String("remote", remote))
	}()

	sc := bufio.NewScanner(ss.c)
	sc.Buffer(make([]byte, 0, min(512, cfg.MaxLineBytes)), cfg.MaxLineBytes)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := ss.write(ss.handle(ctx, line)); err != nil {
			logger.Warn(ctx, "write reply failed", zap.Error(err))
			return
		}
	}

	err := sc.Err()
	switch {
	case err == nil, ctx.Err() != nil, errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
	case errors.Is(err, bufio.ErrTooLong):
		// 超长行无法重新分帧，只能断开
		metrics.ParseErrorsTotal.WithLabelValues(cfg.Symbol).Inc()
		_ = ss.write(errLine(xerr.New(xerr.ParseError, "line too long")))
	default:
		logger.Warn(ctx, "session read failed", zap.Error(err))
	}
}

func (ss *session) handle(ctx context.Context, line string) string {
	cfg := ss.srv.cfg

	if cfg.Limiter != nil && !cfg.Limiter.Allow(ss.id) {
		metrics.RateLimitBlockTotal.WithLabelValues(cfg.Symbol, "session").Inc()
		return errLine(ErrRateLimited)
	}

	o, err := cfg.Decoder.Decode(line)
	if err != nil {
		metrics.ParseErrorsTotal.WithLabelValues(cfg.Symbol).Inc()
		logger.Debug(ctx, "drop malformed instruction", zap.String("line", line), zap.Error(err))
		return errLine(err)
	}

	res, err := ss.srv.engine.Submit(ctx, cfg.Symbol, ss.srv.nextReqID(), o)
	if err == nil {
		err = res.Err
	}
	if err != nil {
		return errLine(err)
	}
	return okLine(o.ID, res.Seq)
}

func (ss *session) write(s string) error {
	_ = ss.c.SetWriteDeadline(time.Now().Add(ss.srv.cfg.WriteTimeout))
	_, err := io.WriteString(ss.c, s)
	return err
}
