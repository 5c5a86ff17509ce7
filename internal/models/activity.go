package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityType enumerates audit event kinds.
type ActivityType string

const (
	ActivityAuthLogin         ActivityType = "AUTH_LOGIN"
	ActivityAuthLogout        ActivityType = "AUTH_LOGOUT"
	ActivityAuthFailed        ActivityType = "AUTH_FAILED"
	ActivityUserCreated       ActivityType = "USER_CREATED"
	ActivityUserUpdated       ActivityType = "USER_UPDATED"
	ActivityUserDeleted       ActivityType = "USER_DELETED"
	ActivityPasswordChanged   ActivityType = "PASSWORD_CHANGED"
	ActivityPasswordReset     ActivityType = "PASSWORD_RESET"
	ActivityRoleChanged       ActivityType = "ROLE_CHANGED"
	ActivityPermissionChanged ActivityType = "PERMISSION_CHANGED"
)

// ActivityTypes lists every known activity type.
var ActivityTypes = []ActivityType{
	ActivityAuthLogin,
	ActivityAuthLogout,
	ActivityAuthFailed,
	ActivityUserCreated,
	ActivityUserUpdated,
	ActivityUserDeleted,
	ActivityPasswordChanged,
	ActivityPasswordReset,
	ActivityRoleChanged,
	ActivityPermissionChanged,
}

// Valid reports whether the type is one of the known values.
func (t ActivityType) Valid() bool {
	for _, known := range ActivityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Activity is an immutable audit event.
type Activity struct {
	ID        string         `gorm:"type:varchar(26);primaryKey"`                                         // ULID, sortable by creation time.
	UserID    string         `gorm:"type:varchar(36);not null;index:idx_activities_user_created,priority:1"` // Owning user ID.
	User      *User          `gorm:"foreignKey:UserID"`                                                   // Owning user.
	Type      ActivityType   `gorm:"type:varchar(32);not null;index"`                                     // Event type.
	Action    string         `gorm:"type:text;not null"`                                                  // Free-text description.
	Details   datatypes.JSON `gorm:"type:text"`                                                           // JSON-encoded details.
	IPAddress *string        `gorm:"type:varchar(64)"`                                                    // Requester IP address.
	UserAgent *string        `gorm:"type:text"`                                                           // Requester user agent.
	CreatedAt time.Time      `gorm:"not null;index;index:idx_activities_user_created,priority:2"`         // Creation timestamp.
}
