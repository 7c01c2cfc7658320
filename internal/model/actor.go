package model

// 角色
const (
	RoleStaff    = "staff"
	RoleReviewer = "reviewer"
	RoleAdmin    = "admin"
)

// Actor 当前操作人，由调用方显式传入每个流程操作
type Actor struct {
	UserID string
	Role   string
}

// IsAdmin 是否管理员
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// IsReviewer 是否可审核（审核员或管理员）
func (a Actor) IsReviewer() bool { return a.Role == RoleReviewer || a.Role == RoleAdmin }

// ValidRole 是否为已知角色
func ValidRole(role string) bool {
	switch role {
	case RoleStaff, RoleReviewer, RoleAdmin:
		return true
	}
	return false
}
