package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// userIDKey 请求级用户身份在 gin context 里的存放键。
const userIDKey = "user_id"

// RequireUser 认证上下文的占位实现：从 X-User-Id 头解析当前请求者身份。
// 真实部署里这一层由网关/会话中间件提供，这里只负责把身份显式化——
// 下游一律通过参数传递 userID，不存在任何隐式的"当前用户"全局态。
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-User-Id")
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": 401,
				"msg":  "未登录或用户身份无效",
			})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID 取出中间件写入的请求者身份。
func UserID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}
