package common

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HTTP 请求、TCP 会话、websocket 连接都用 uuid 作为 id，
// 同一个 id 也是日志里的 trace_id，按它能串起一次会话的全部日志

const HeaderRequestID = "X-Request-Id"

const ctxKeyRequestID = "request_id"

// NewID 生成会话 / 连接 / 请求 id
func NewID() string { return uuid.NewString() }

// SetRequestID 写进 gin 上下文并回显在响应头
func SetRequestID(c *gin.Context, rid string) {
	c.Set(ctxKeyRequestID, rid)
	c.Header(HeaderRequestID, rid)
}

// RequestID 本次请求的 id，没经过 ReqId 中间件时为空
func RequestID(c *gin.Context) string { return c.GetString(ctxKeyRequestID) }
