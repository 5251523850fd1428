package domain

import (
	"fmt"
	"strings"
)

// Role is the closed set of actor roles.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleStaff      Role = "staff"
	RoleCitizen    Role = "citizen"
)

// roleAliases is the single mapping from observed role spellings to Role.
var roleAliases = map[string]Role{
	"admin":            RoleAdmin,
	"administrator":    RoleAdmin,
	"supervisor":       RoleSupervisor,
	"departmenthead":   RoleSupervisor,
	"department_head":  RoleSupervisor,
	"staff":            RoleStaff,
	"departmentstaff":  RoleStaff,
	"department_staff": RoleStaff,
	"fieldstaff":       RoleStaff,
	"field_staff":      RoleStaff,
	"citizen":          RoleCitizen,
	"user":             RoleCitizen,
}

// ParseRole resolves a role string regardless of case or legacy spelling.
func ParseRole(raw string) (Role, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, " ", "_")
	if role, ok := roleAliases[key]; ok {
		return role, nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// CanManageIssues reports whether the role may escalate and assign.
func (r Role) CanManageIssues() bool {
	return r == RoleAdmin || r == RoleSupervisor
}

// IsOperator reports whether the role belongs to municipal staff.
func (r Role) IsOperator() bool {
	return r == RoleAdmin || r == RoleSupervisor || r == RoleStaff
}

// Actor is the explicit session passed into every engine command.
type Actor struct {
	ID         string
	Role       Role
	Department *string
}

// SystemActor is used by the auto-escalation sweep.
var SystemActor = Actor{ID: "system", Role: RoleAdmin}
