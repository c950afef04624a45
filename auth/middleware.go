package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/kmis/xerrors"
)

// ClaimsKey Gin Context 中存放 Claims 的键
const ClaimsKey = "auth:claims"

// GinMiddleware 返回 Gin 认证中间件
func (a *jwtAuth) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := a.ExtractToken(c.Request)
		if err != nil {
			abort(c, http.StatusUnauthorized, xerrors.CodeUnauthorized, err.Error())
			return
		}

		claims, err := a.ValidateToken(c.Request.Context(), token)
		if err != nil {
			abort(c, http.StatusUnauthorized, xerrors.CodeUnauthorized, err.Error())
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// RequireRoles 要求至少拥有其中一个角色
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			abort(c, http.StatusUnauthorized, xerrors.CodeUnauthorized, "missing credentials")
			return
		}

		for _, role := range roles {
			if claims.HasRole(role) {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, xerrors.CodeForbidden, "missing role")
	}
}

// GetClaims 从 Gin Context 获取 Claims
func GetClaims(c *gin.Context) (*Claims, bool) {
	v, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": msg}})
}
