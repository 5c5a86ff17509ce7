package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is one authenticated browser session.
type Session struct {
	ID           string    `gorm:"type:varchar(36);primaryKey"`            // Primary key (uuid), embedded in the JWT as sid.
	UserID       string    `gorm:"type:varchar(36);not null;index"`        // Owning user ID.
	User         *User     `gorm:"foreignKey:UserID"`                      // Owning user.
	SessionToken string    `gorm:"type:varchar(128);not null;uniqueIndex"` // Opaque session token.
	Expires      time.Time `gorm:"not null;index"`                         // Expiry timestamp.
	IPAddress    *string   `gorm:"type:varchar(64)"`                       // Client IP at login.
	UserAgent    *string   `gorm:"type:text"`                              // Client user agent at login.
	CreatedAt    time.Time `gorm:"not null;autoCreateTime"`                // Creation timestamp.
}

// BeforeCreate assigns a uuid when the caller did not set one.
func (s *Session) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Expired reports whether the session is stale at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !s.Expires.After(now)
}
