package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/LENAX/stageflow/pkg/api/dto"
	"github.com/LENAX/stageflow/pkg/core/types"
	"github.com/gin-gonic/gin"
)

// Recovery panic恢复中间件
// 响应与处理器错误使用同一信封，data.kind 固定为 INTERNAL
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("❌ [Recovery] %s %s 发生panic: %v\n%s", c.Request.Method, c.Request.URL.Path, r, debug.Stack())

				c.AbortWithStatusJSON(http.StatusInternalServerError, dto.APIResponse[dto.ErrorBody]{
					Code:    http.StatusInternalServerError,
					Message: "内部错误",
					Data:    dto.ErrorBody{Kind: string(types.KindInternal)},
				})
			}
		}()
		c.Next()
	}
}
