package models

import "time"

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleProctor UserRole = "proctor"
	RoleAdmin   UserRole = "admin"
)

// User is resolved from the identity provider and never persisted here.
type User struct {
	ID       string   `json:"id"`
	FullName string   `json:"full_name"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`

	AvatarURL     *string `json:"avatar_url"`
	EmailVerified bool    `json:"email_verified"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsStaff reports whether the user may read other students' attempts.
func (u *User) IsStaff() bool {
	return u.Role == RoleTeacher || u.Role == RoleProctor || u.Role == RoleAdmin
}
