package middleware

import (
	"github.com/gin-gonic/gin"

	"gopherbook.com/pkg/common"
	"gopherbook.com/pkg/logger"
)

// ReqId 透传或生成请求 id，同时作为日志的 trace_id
func ReqId() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(common.HeaderRequestID)
		if rid == "" {
			rid = common.NewID()
		}
		common.SetRequestID(c, rid)
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), rid))
		c.Next()
	}
}
