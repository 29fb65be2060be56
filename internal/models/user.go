// Package models contains data structures for the application's domain models.
package models

import "time"

// Roles recognised by the platform.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// User is a student (or admin) account. Users are never deleted.
type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"not null" json:"name"`
	Email         string    `gorm:"uniqueIndex;not null" json:"email"`
	AvatarURL     string    `json:"avatar_url"`
	Role          string    `gorm:"not null;default:student" json:"role"`
	Points        int       `gorm:"not null;default:0;index" json:"points"`
	Branch        string    `json:"branch"`
	AccessGranted bool      `gorm:"not null;default:false" json:"access_granted"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
