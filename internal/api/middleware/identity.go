package middleware

import (
	"Courtyard/internal/pkg/consts"
	"Courtyard/internal/pkg/response"
	"context"

	"github.com/gin-gonic/gin"
)

// IdentityMiddleware 负责解析请求身份并注入 Context。
// REST 请求走 X-User-Id / X-Campus-Id 头，ws 握手走同名 query 参数
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(consts.HeaderUserID)
		if userID == "" {
			userID = c.Query("user_id")
		}
		campusID := c.GetHeader(consts.HeaderCampusID)
		if campusID == "" {
			campusID = c.Query("campus_id")
		}

		if userID == "" {
			response.Fail(c, response.Unauthorized, "缺少身份信息")
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Set("campus_id", campusID)

		newCtx := context.WithValue(c.Request.Context(), "user_id", userID)
		c.Request = c.Request.WithContext(newCtx)

		c.Next()
	}
}
