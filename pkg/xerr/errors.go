package xerr

import (
	"errors"
	"fmt"
)

// 对外错误码，TCP 回包和 HTTP 响应共用
const (
	OK                = 200
	ParseError        = 400
	OrderNotFound     = 404
	DuplicateOrder    = 409
	UnsupportedAction = 422
	RateLimited       = 429
	ServerCommonError = 500
	EngineBusy        = 503

	SymbolNotFound = 4041 // HTTP 404
)

type CodeError struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	cause error
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func (e *CodeError) Unwrap() error { return e.cause }

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// Wrap 给 err 打上错误码，errors.Is 仍能匹配原始错误
func Wrap(code int, err error) *CodeError {
	if err == nil {
		return nil
	}
	return &CodeError{Code: code, Msg: err.Error(), cause: err}
}

// FromError 取出错误链上的 CodeError，没有则当作内部错误
func FromError(err error) *CodeError {
	if err == nil {
		return nil
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce
	}
	return &CodeError{Code: ServerCommonError, Msg: MapErrMsg(ServerCommonError), cause: err}
}

func MapErrMsg(code int) string {
	switch code {
	case OK:
		return "ok"
	case ParseError:
		return "malformed instruction"
	case OrderNotFound:
		return "order not found"
	case SymbolNotFound:
		return "unknown symbol"
	case DuplicateOrder:
		return "duplicate order id"
	case UnsupportedAction:
		return "unsupported action"
	case RateLimited:
		return "too many requests"
	case EngineBusy:
		return "engine busy"
	case ServerCommonError:
		return "internal error"
	default:
		return "unknown error"
	}
}
