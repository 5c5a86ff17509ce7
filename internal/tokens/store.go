// Package tokens manages single-use, expiring verification tokens.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/adminpanel/internal/models"
	"github.com/router-for-me/adminpanel/internal/security"
	"gorm.io/gorm"
)

// tokenBytes is the random payload size (256 bits).
const tokenBytes = 32

var (
	// ErrTokenNotFound indicates no row holds the token.
	ErrTokenNotFound = errors.New("tokens: token not found")
	// ErrTokenExpired indicates the token existed but its window has passed.
	ErrTokenExpired = errors.New("tokens: token expired")
	// ErrPurposeMismatch indicates the token was issued for another purpose.
	ErrPurposeMismatch = errors.New("tokens: purpose mismatch")
)

// Store persists verification tokens.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore creates a token store backed by db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Create issues a token for id, replacing any earlier token for the same identifier.
func (s *Store) Create(ctx context.Context, id Identifier) (string, error) {
	if errValidate := id.validate(); errValidate != nil {
		return "", errValidate
	}
	token, errRandom := security.RandomHex(tokenBytes)
	if errRandom != nil {
		return "", errRandom
	}
	row := models.VerificationToken{
		Token:      token,
		Identifier: id.String(),
		Expires:    s.now().UTC().Add(id.Purpose.TTL()),
	}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errDelete := tx.Where("identifier = ?", row.Identifier).Delete(&models.VerificationToken{}).Error; errDelete != nil {
			return fmt.Errorf("tokens: delete previous: %w", errDelete)
		}
		if errCreate := tx.Create(&row).Error; errCreate != nil {
			return fmt.Errorf("tokens: create: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		return "", errTx
	}
	return token, nil
}

// Verify consumes token and returns its stored identifier.
// The row is deleted before the expiry check, so an expired token is reported once
// as ErrTokenExpired and afterwards as ErrTokenNotFound.
func (s *Store) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrTokenNotFound
	}
	conn := s.db.WithContext(ctx)
	var row models.VerificationToken
	if errFind := conn.Where("token = ?", token).First(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return "", ErrTokenNotFound
		}
		return "", fmt.Errorf("tokens: find: %w", errFind)
	}

	res := conn.Where("token = ?", token).Delete(&models.VerificationToken{})
	if res.Error != nil {
		return "", fmt.Errorf("tokens: delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// A concurrent verifier consumed it first.
		return "", ErrTokenNotFound
	}
	if !row.Expires.After(s.now()) {
		return "", ErrTokenExpired
	}
	return row.Identifier, nil
}

// Consume verifies token and checks that it was issued for purpose.
func (s *Store) Consume(ctx context.Context, token string, purpose Purpose) (Identifier, error) {
	raw, errVerify := s.Verify(ctx, token)
	if errVerify != nil {
		return Identifier{}, errVerify
	}
	id, errParse := ParseIdentifier(raw)
	if errParse != nil {
		return Identifier{}, errParse
	}
	if id.Purpose != purpose {
		return Identifier{}, ErrPurposeMismatch
	}
	return id, nil
}

// Probe reports whether token exists and is unexpired without consuming it.
func (s *Store) Probe(ctx context.Context, token string) (Identifier, error) {
	if token == "" {
		return Identifier{}, ErrTokenNotFound
	}
	var row models.VerificationToken
	if errFind := s.db.WithContext(ctx).Where("token = ?", token).First(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Identifier{}, ErrTokenNotFound
		}
		return Identifier{}, fmt.Errorf("tokens: find: %w", errFind)
	}
	if !row.Expires.After(s.now()) {
		return Identifier{}, ErrTokenExpired
	}
	return ParseIdentifier(row.Identifier)
}

// Revoke deletes every outstanding token for id.
func (s *Store) Revoke(ctx context.Context, id Identifier) (int64, error) {
	if errValidate := id.validate(); errValidate != nil {
		return 0, errValidate
	}
	res := s.db.WithContext(ctx).Where("identifier = ?", id.String()).Delete(&models.VerificationToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("tokens: revoke: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteExpired removes tokens whose expiry has passed and returns how many were removed.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires <= ?", s.now().UTC()).Delete(&models.VerificationToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("tokens: delete expired: %w", res.Error)
	}
	return res.RowsAffected, nil
}
