package common

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gopherbook.com/pkg/xerr"
)

// 定义http返回格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    xerr.OK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// FailErr 按错误链上的 CodeError 选择 HTTP 状态码，对外只回 code + message
func FailErr(c *gin.Context, err error) {
	ce := xerr.FromError(err)
	Fail(c, HTTPStatus(ce.Code), ce.Code, ce.Msg)
}

// HTTPStatus 业务码 -> HTTP 状态码
func HTTPStatus(code int) int {
	switch code {
	case xerr.OK:
		return http.StatusOK
	case xerr.ParseError:
		return http.StatusBadRequest
	case xerr.OrderNotFound, xerr.SymbolNotFound:
		return http.StatusNotFound
	case xerr.DuplicateOrder:
		return http.StatusConflict
	case xerr.UnsupportedAction:
		return http.StatusUnprocessableEntity
	case xerr.RateLimited:
		return http.StatusTooManyRequests
	case xerr.EngineBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
