package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserStatus enumerates the lifecycle states of a user account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusInactive  UserStatus = "INACTIVE"
	UserStatusPending   UserStatus = "PENDING"
	UserStatusSuspended UserStatus = "SUSPENDED"
	UserStatusDeleted   UserStatus = "DELETED"
)

// Valid reports whether the status is one of the known values.
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusPending, UserStatusSuspended, UserStatusDeleted:
		return true
	default:
		return false
	}
}

// User represents an account stored in the database.
type User struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // Primary key (uuid).

	Email    string  `gorm:"type:varchar(320);not null;uniqueIndex"` // Unique email, case-sensitive as stored.
	Name     string  `gorm:"type:varchar(255);not null"`             // Display name.
	Password *string `gorm:"type:text"`                              // Bcrypt hash, nil for externally provisioned accounts.
	Avatar   *string `gorm:"type:text"`                              // Avatar URL.

	Status        UserStatus `gorm:"type:varchar(16);not null;default:'PENDING';index"` // Account status; DELETED marks a soft delete.
	EmailVerified *time.Time // Time the email address was verified.

	RoleID string `gorm:"type:varchar(36);not null;index"` // Assigned role ID.
	Role   *Role  `gorm:"foreignKey:RoleID"`               // Assigned role.

	InvitedBy     *string `gorm:"type:varchar(36);index"` // Inviting user ID.
	InvitedByUser *User   `gorm:"foreignKey:InvitedBy"`   // Inviting user.
	InvitedUsers  []User  `gorm:"foreignKey:InvitedBy"`   // Users invited by this user.

	Sessions   []Session  `gorm:"foreignKey:UserID"` // Persisted sessions.
	Activities []Activity `gorm:"foreignKey:UserID"` // Audit history.

	LastLogin *time.Time // Last successful login.
	CreatedAt time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time  `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// BeforeCreate assigns a uuid when the caller did not set one.
func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// HasPassword reports whether a password hash is stored for the user.
func (u *User) HasPassword() bool {
	return u != nil && u.Password != nil && *u.Password != ""
}
