package document

import (
	"slices"

	"gorm.io/gorm"
)

// 角色
const (
	RoleAdmin       = "admin"
	RoleUnitManager = "unit_manager"
	RoleMember      = "member"
)

// Actor 发起操作的用户，由认证层根据 JWT Claims 构造
type Actor struct {
	UserID string
	UnitID string
	Roles  []string
}

// System 后台任务使用的管理员身份
var System = Actor{UserID: "system", Roles: []string{RoleAdmin}}

// HasRole 是否拥有角色
func (a Actor) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

// IsAdmin 管理员可以查看和修改所有文档
func (a Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}

// CanView 可见性规则：公开文档所有人可见；单位文档本单位可见；
// 私有文档只有所有者可见。管理员不受限制
func (a Actor) CanView(d *Document) bool {
	switch {
	case a.IsAdmin(), d.OwnerID == a.UserID:
		return true
	case d.Visibility == VisibilityPublic:
		return true
	case d.Visibility == VisibilityUnit:
		return a.UnitID != "" && d.UnitID == a.UnitID
	default:
		return false
	}
}

// CanEdit 修改规则：管理员、所有者，以及同单位的单位管理员
func (a Actor) CanEdit(d *Document) bool {
	switch {
	case a.IsAdmin(), d.OwnerID == a.UserID:
		return true
	case a.HasRole(RoleUnitManager):
		return a.UnitID != "" && d.UnitID == a.UnitID
	default:
		return false
	}
}

// visibleTo 与 CanView 等价的查询条件
func visibleTo(a Actor) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if a.IsAdmin() {
			return db
		}
		group := db.Session(&gorm.Session{NewDB: true})
		cond := group.Where("visibility = ?", VisibilityPublic).Or("owner_id = ?", a.UserID)
		if a.UnitID != "" {
			cond = cond.Or("visibility = ? AND unit_id = ?", VisibilityUnit, a.UnitID)
		}
		return db.Where(cond)
	}
}
