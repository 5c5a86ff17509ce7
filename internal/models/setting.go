package models

import "time"

// Setting stores a runtime-tunable key/value pair.
type Setting struct {
	Key       string    `gorm:"type:varchar(128);primaryKey"` // Setting key.
	Value     string    `gorm:"type:text;not null"`           // JSON-encoded value, stored as text.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`      // Last update timestamp.
}
