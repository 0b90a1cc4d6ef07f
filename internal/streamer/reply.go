package streamer

import (
	"errors"
	"fmt"
	"strings"

	"gopherbook.com/internal/codec"
	"gopherbook.com/internal/engine"
	"gopherbook.com/internal/matching"
	"gopherbook.com/pkg/xerr"
)

// ErrRateLimited 会话超过令牌桶速率
var ErrRateLimited = errors.New("rate limited")

// Classify 把内部错误映射成对外错误码
func Classify(err error) *xerr.CodeError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, codec.ErrParse),
		errors.Is(err, matching.ErrInvalidQuantity),
		errors.Is(err, matching.ErrInvalidSide):
		return xerr.Wrap(xerr.ParseError, err)
	case errors.Is(err, matching.ErrUnsupportedAction),
		errors.Is(err, matching.ErrStopNotTriggered):
		return xerr.Wrap(xerr.UnsupportedAction, err)
	case errors.Is(err, matching.ErrOrderNotFound):
		return xerr.Wrap(xerr.OrderNotFound, err)
	case errors.Is(err, matching.ErrDuplicateOrder):
		return xerr.Wrap(xerr.DuplicateOrder, err)
	case errors.Is(err, ErrRateLimited):
		return xerr.Wrap(xerr.RateLimited, err)
	case errors.Is(err, engine.ErrEngineBusy):
		return xerr.Wrap(xerr.EngineBusy, err)
	default:
		return xerr.FromError(err)
	}
}

// okLine seq 为 0 表示该指令没有打序号（撤单），省略 seq 字段
func okLine(id, seq uint64) string {
	if seq == 0 {
		return fmt.Sprintf("OK id=%d\n", id)
	}
	return fmt.Sprintf("OK id=%d seq=%d\n", id, seq)
}

// errLine 一行一条回包，msg 里的换行会破坏分帧
func errLine(err error) string {
	ce := Classify(err)
	msg := strings.NewReplacer("\n", " ", "\r", " ").Replace(ce.Msg)
	return fmt.Sprintf("ERR code=%d msg=%s\n", ce.Code, msg)
}
