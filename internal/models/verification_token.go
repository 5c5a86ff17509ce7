package models

import "time"

// VerificationToken is a single-use secret bound to an identifier.
type VerificationToken struct {
	Token      string    `gorm:"type:varchar(128);primaryKey"`     // Plaintext token, unique.
	Identifier string    `gorm:"type:varchar(128);not null;index"` // Purpose-tagged subject, e.g. "reset:<userId>".
	Expires    time.Time `gorm:"not null"`                         // Expiry timestamp.
}
