// Package authz decides who may write catalog resources. The policy is an
// interface so the rule set can be swapped or faked in tests without
// touching the HTTP layer; token verification itself happens upstream.
package authz

// Actor is the authenticated identity attached to a request by the
// upstream auth layer.
type Actor struct {
	UserID int64
	Role   string
}

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
	RoleUser  = "user"
)

// Policy answers write-permission questions. It is consulted before the
// target resource is read, so unauthorized callers learn nothing about
// what exists.
type Policy interface {
	CanWrite(actor Actor, resource string) bool
}

// RolePolicy allows catalog writes for admin and staff roles.
type RolePolicy struct{}

func NewRolePolicy() RolePolicy { return RolePolicy{} }

func (RolePolicy) CanWrite(actor Actor, resource string) bool {
	return actor.Role == RoleAdmin || actor.Role == RoleStaff
}
