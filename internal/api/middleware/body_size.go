package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipe-importer/internal/pkg/common"
)

// BodySizeLimit 限制匯入請求（網址清單、登入資料、佇列決策）的請求體大小
// 只檢查帶請求體的方法；maxSize <= 0 表示不限制
func BodySizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxSize <= 0 || !hasBody(c.Request.Method) {
			c.Next()
			return
		}

		if c.Request.ContentLength > maxSize {
			common.LogWarn("匯入請求內容過大",
				zap.Int64("content_length", c.Request.ContentLength),
				zap.Int64("max_size", maxSize),
				zap.String("route", c.FullPath()),
				zap.String("request_id", requestID(c)),
			)
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, common.ErrorResponse{
				Code:    common.ErrCodePayloadTooLarge,
				Message: common.ErrPayloadTooLarge.Message,
				Details: fmt.Sprintf("max %d bytes", maxSize),
			})
			return
		}

		// 未帶 Content-Length 時，讀取超過上限由 MaxBytesReader 中斷，綁定失敗回 400
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}
