package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// User represents an application user stored in the users table. RoleName and
// RolePermissions are joined from roles on every read.
type User struct {
	ID              string     `db:"id" json:"id"`
	Email           string     `db:"email" json:"email"`
	PasswordHash    string     `db:"password_hash" json:"-"`
	RoleID          int64      `db:"role_id" json:"role_id"`
	RoleName        string     `db:"role_name" json:"role"`
	RolePermissions Permission `db:"role_permissions" json:"permissions"`
	Confirmed       bool       `db:"confirmed" json:"confirmed"`
	Firstname       string     `db:"firstname" json:"firstname"`
	Lastname        string     `db:"lastname" json:"lastname"`
	MobileNo        string     `db:"mobile_no" json:"mobile_no"`
	Location        string     `db:"location" json:"location"`
	DateOfBirth     *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	StateOfOrigin   *string    `db:"state_of_origin" json:"state_of_origin,omitempty"`
	Country         *string    `db:"country" json:"country,omitempty"`
	AboutMe         *string    `db:"about_me" json:"about_me,omitempty"`
	AvatarHash      string     `db:"avatar_hash" json:"-"`
	CooperativeID   *string    `db:"cooperative_id" json:"cooperative_id,omitempty"`
	Wallet          int64      `db:"wallet" json:"wallet"`
	Points          int64      `db:"points" json:"points"`
	MemberSince     time.Time  `db:"member_since" json:"member_since"`
	LastSeen        time.Time  `db:"last_seen" json:"last_seen"`
}

// Role returns the role view joined onto the user, or nil when the join is empty.
func (u *User) Role() *Role {
	if u == nil || u.RoleID == 0 {
		return nil
	}
	return &Role{ID: u.RoleID, Name: u.RoleName, Permissions: u.RolePermissions}
}

// IsAdministrator reports whether the user's role carries the ADMIN bit.
func (u *User) IsAdministrator() bool {
	return u.Role().HasPermission(PermAdmin)
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.Firstname + " " + u.Lastname)
}

// EmailHash is the gravatar hash of a lower-cased, trimmed email.
func EmailHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// AvatarURL builds a gravatar URL for the user.
func (u *User) AvatarURL(size int) string {
	hash := u.AvatarHash
	if hash == "" {
		hash = EmailHash(u.Email)
	}
	if size <= 0 {
		size = 100
	}
	return fmt.Sprintf("https://secure.gravatar.com/avatar/%s?s=%d&d=identicon&r=g", hash, size)
}

// StyledWallet formats the wallet with thousands separators, e.g. "12,500".
func (u *User) StyledWallet() string {
	return groupThousands(u.Wallet)
}

func groupThousands(n int64) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	digits := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String()
}

// RegisterRequest is the payload accepted by the user directory on sign up.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=64"`
	Password  string `json:"password" validate:"required,min=6"`
	Firstname string `json:"firstname" validate:"required,max=64"`
	Lastname  string `json:"lastname" validate:"required,max=64"`
	MobileNo  string `json:"mobile_no" validate:"required,numeric,min=7,max=15"`
	Location  string `json:"location" validate:"required,max=64"`
}

// UpdateProfileRequest carries optional profile fields; nil leaves a field untouched.
type UpdateProfileRequest struct {
	Firstname     *string    `json:"firstname" validate:"omitempty,max=64"`
	Lastname      *string    `json:"lastname" validate:"omitempty,max=64"`
	Location      *string    `json:"location" validate:"omitempty,max=64"`
	DateOfBirth   *time.Time `json:"date_of_birth"`
	StateOfOrigin *string    `json:"state_of_origin" validate:"omitempty,max=64"`
	Country       *string    `json:"country" validate:"omitempty,max=64"`
	AboutMe       *string    `json:"about_me" validate:"omitempty,max=2000"`
}

// Empty reports whether no field is set.
func (r UpdateProfileRequest) Empty() bool {
	return r.Firstname == nil && r.Lastname == nil && r.Location == nil && r.DateOfBirth == nil &&
		r.StateOfOrigin == nil && r.Country == nil && r.AboutMe == nil
}

// AssignRoleRequest names the role an administrator wants to give a user.
type AssignRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=User Agent Administrator"`
}

// ManageFarmerRequest names the farmer an agent wants to register.
type ManageFarmerRequest struct {
	FarmerID string `json:"farmer_id" validate:"required,uuid4"`
}

// UserProfile is the public representation of a user.
type UserProfile struct {
	*User
	FullName     string `json:"full_name"`
	AvatarURL    string `json:"avatar_url"`
	StyledWallet string `json:"styled_wallet"`
}

// NewUserProfile decorates user with derived presentation fields.
func NewUserProfile(user *User) UserProfile {
	return UserProfile{
		User:         user,
		FullName:     user.FullName(),
		AvatarURL:    user.AvatarURL(100),
		StyledWallet: user.StyledWallet(),
	}
}
