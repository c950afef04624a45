package auth

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Claims 定义了 JWT 载荷结构。
//
// 它内嵌了 jwt.RegisteredClaims 以支持标准声明（exp, sub, iss 等），
// Subject 即用户 ID。UnitID 是用户所属的院系或部门，文档的可见性按它判断。
type Claims struct {
	jwt.RegisteredClaims

	Username string         `json:"uname,omitempty"`
	UnitID   string         `json:"unit,omitempty"`
	Roles    []string       `json:"roles,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`

	// OrigIssuedAt 首次签发时间（Unix 秒），刷新时保持不变，用于限制刷新窗口
	OrigIssuedAt int64 `json:"orig_iat,omitempty"`
}

// HasRole 判断是否拥有指定角色
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}
