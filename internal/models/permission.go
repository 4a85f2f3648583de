package models

import "time"

// Permission is a single capability bit. Roles combine them with bitwise OR.
type Permission int64

const (
	PermComment  Permission = 2
	PermWrite    Permission = 4
	PermModerate Permission = 8
	PermRegister Permission = 16
	PermAdmin    Permission = 32
)

var permissionNames = map[Permission]string{
	PermComment:  "COMMENT",
	PermWrite:    "WRITE",
	PermModerate: "MODERATE",
	PermRegister: "REGISTER",
	PermAdmin:    "ADMIN",
}

// String returns the registry name of a single bit, or "" for combinations.
func (p Permission) String() string {
	return permissionNames[p]
}

// Seeded role names.
const (
	RoleNameUser          = "User"
	RoleNameAgent         = "Agent"
	RoleNameAdministrator = "Administrator"
	DefaultRoleName       = RoleNameUser
)

// RoleDefinition is a role name and the permission bits it is seeded with.
type RoleDefinition struct {
	Name        string
	Permissions []Permission
}

// SeedRoles lists the fixed roles in seeding order.
var SeedRoles = []RoleDefinition{
	{Name: RoleNameUser, Permissions: []Permission{PermComment, PermWrite}},
	{Name: RoleNameAgent, Permissions: []Permission{PermComment, PermWrite, PermModerate, PermRegister}},
	{Name: RoleNameAdministrator, Permissions: []Permission{PermComment, PermWrite, PermModerate, PermRegister, PermAdmin}},
}

// Role is a named bundle of permission bits stored in the roles table.
type Role struct {
	ID          int64      `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	IsDefault   bool       `db:"is_default" json:"is_default"`
	Permissions Permission `db:"permissions" json:"permissions"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// HasPermission reports whether every bit of perm is set on the role.
func (r *Role) HasPermission(perm Permission) bool {
	if r == nil {
		return false
	}
	return r.Permissions&perm == perm
}

// AddPermission sets perm. Calling it twice is a no-op.
func (r *Role) AddPermission(perm Permission) {
	if !r.HasPermission(perm) {
		r.Permissions |= perm
	}
}

// RemovePermission clears perm if it is set.
func (r *Role) RemovePermission(perm Permission) {
	if r.HasPermission(perm) {
		r.Permissions &^= perm
	}
}

// ResetPermissions clears every bit.
func (r *Role) ResetPermissions() {
	r.Permissions = 0
}
