// Package roles is the closed set of account roles and the table mapping
// each role to its permissions. Authorization checks ask for a Permission;
// nothing outside this package compares role names.
package roles

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// Role is an account role. The zero value is not a valid role.
type Role uint8

const (
	RoleUser Role = iota + 1
	RoleManager
	RoleAdmin
)

// Permission is a single capability bit.
type Permission uint32

const (
	ReadProjects Permission = 1 << iota
	WriteProjects
	ManageUsers
	ManageSystem
)

var names = map[Role]string{
	RoleUser:    "user",
	RoleManager: "manager",
	RoleAdmin:   "admin",
}

var permissions = map[Role]Permission{
	RoleUser:    ReadProjects,
	RoleManager: ReadProjects | WriteProjects,
	RoleAdmin:   ReadProjects | WriteProjects | ManageUsers | ManageSystem,
}

// Parse maps a stored or claimed role label to a Role. Labels are matched
// case-insensitively; anything else is common.ErrInvalidArgument.
func Parse(label string) (Role, error) {
	l := strings.ToLower(strings.TrimSpace(label))
	for r, name := range names {
		if name == l {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown role %q", common.ErrInvalidArgument, label)
}

func (r Role) String() string {
	if name, ok := names[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

func (r Role) Valid() bool {
	_, ok := names[r]
	return ok
}

// Permissions returns the permission set granted to r. Invalid roles get none.
func (r Role) Permissions() Permission {
	return permissions[r]
}

// Can reports whether r holds every bit of p.
func (r Role) Can(p Permission) bool {
	return p != 0 && r.Permissions()&p == p
}

var permissionLabels = []struct {
	perm  Permission
	label string
}{
	{ReadProjects, "read_projects"},
	{WriteProjects, "write_projects"},
	{ManageUsers, "manage_users"},
	{ManageSystem, "manage_system"},
}

// PermissionNames lists the labels of the permissions r grants, in a fixed order.
func (r Role) PermissionNames() []string {
	var out []string
	for _, pl := range permissionLabels {
		if r.Can(pl.perm) {
			out = append(out, pl.label)
		}
	}
	return out
}
