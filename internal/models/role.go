package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is a named permission bundle assigned to users.
type Role struct {
	ID          string       `gorm:"type:varchar(36);primaryKey"`           // Primary key (uuid).
	Name        string       `gorm:"type:varchar(64);not null;uniqueIndex"` // Short unique name, e.g. "admin".
	DisplayName string       `gorm:"type:varchar(128);not null"`            // Human readable name.
	Description *string      `gorm:"type:text"`                             // Optional description.
	Permissions []Permission `gorm:"many2many:role_permissions;"`           // Granted permissions.
	Users       []User       `gorm:"foreignKey:RoleID"`                     // Users holding the role.
	CreatedAt   time.Time    `gorm:"not null;autoCreateTime"`               // Creation timestamp.
	UpdatedAt   time.Time    `gorm:"not null;autoUpdateTime"`               // Last update timestamp.
}

// BeforeCreate assigns a uuid when the caller did not set one.
func (r *Role) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Permission is an atomic capability referenced by roles.
type Permission struct {
	ID          string    `gorm:"type:varchar(36);primaryKey"`           // Primary key (uuid).
	Name        string    `gorm:"type:varchar(64);not null;uniqueIndex"` // Unique permission name, e.g. "user.view".
	Description *string   `gorm:"type:text"`                             // Optional description.
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"`               // Creation timestamp.
}

// BeforeCreate assigns a uuid when the caller did not set one.
func (p *Permission) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
