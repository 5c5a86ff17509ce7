package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/router-for-me/adminpanel/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store serves runtime settings from an in-memory snapshot of the settings table.
type Store struct {
	db  *gorm.DB
	now func() time.Time

	mu         sync.RWMutex
	values     map[string]json.RawMessage
	updatedAt  time.Time
	updatedKey string
	count      int
}

// NewStore creates a store backed by conn. The snapshot is empty until Reload.
func NewStore(conn *gorm.DB) *Store {
	return &Store{
		db:     conn,
		now:    time.Now,
		values: make(map[string]json.RawMessage),
	}
}

// Reload rebuilds the snapshot from the database.
func (s *Store) Reload(ctx context.Context) error {
	var rows []models.Setting
	if errFind := s.db.WithContext(ctx).
		Select("key", "value", "updated_at").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).
		Find(&rows).Error; errFind != nil {
		return fmt.Errorf("settings: reload: %w", errFind)
	}

	values := make(map[string]json.RawMessage, len(rows))
	maxUpdatedAt := time.Time{}
	maxUpdatedKey := ""
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		values[key] = json.RawMessage(row.Value)
		rowUpdatedAt := row.UpdatedAt.UTC()
		if rowUpdatedAt.After(maxUpdatedAt) || (rowUpdatedAt.Equal(maxUpdatedAt) && key > maxUpdatedKey) {
			maxUpdatedAt = rowUpdatedAt
			maxUpdatedKey = key
		}
	}
	s.replace(maxUpdatedAt, maxUpdatedKey, values)
	return nil
}

// Replace swaps the snapshot wholesale.
func (s *Store) Replace(updatedAt time.Time, values map[string]json.RawMessage) {
	latestKey := ""
	for key := range values {
		if key > latestKey {
			latestKey = key
		}
	}
	s.replace(updatedAt.UTC(), latestKey, values)
}

func (s *Store) replace(updatedAt time.Time, updatedKey string, values map[string]json.RawMessage) {
	copied := make(map[string]json.RawMessage, len(values))
	for key, value := range values {
		copied[key] = append(json.RawMessage(nil), value...)
	}
	s.mu.Lock()
	s.values = copied
	s.updatedAt = updatedAt
	s.updatedKey = updatedKey
	s.count = len(copied)
	s.mu.Unlock()
}

// Version identifies the snapshot by its newest row and row count.
type Version struct {
	UpdatedAt time.Time
	Key       string
	Count     int
}

// Version returns the identity of the loaded snapshot.
func (s *Store) Version() Version {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Version{UpdatedAt: s.updatedAt, Key: s.updatedKey, Count: s.count}
}

// Raw returns the JSON value stored for key.
func (s *Store) Raw(key string) (json.RawMessage, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), value...), true
}

// String returns the string value for key or fallback when absent or not a string.
func (s *Store) String(key, fallback string) string {
	raw, ok := s.Raw(key)
	if !ok {
		return fallback
	}
	value, okParse := ParseString(raw)
	if !okParse || value == "" {
		return fallback
	}
	return value
}

// Int returns the non-negative integer value for key or fallback.
func (s *Store) Int(key string, fallback int) int {
	raw, ok := s.Raw(key)
	if !ok {
		return fallback
	}
	value, okParse := ParseNonNegativeInt(raw)
	if !okParse {
		return fallback
	}
	return value
}

// Bool returns the boolean value for key or fallback.
func (s *Store) Bool(key string, fallback bool) bool {
	raw, ok := s.Raw(key)
	if !ok {
		return fallback
	}
	value, okParse := ParseBool(raw)
	if !okParse {
		return fallback
	}
	return value
}

// SiteName returns the configured site name.
func (s *Store) SiteName() string {
	return s.String(SiteNameKey, DefaultSiteName)
}

// List returns every stored setting ordered by key.
func (s *Store) List(ctx context.Context) ([]models.Setting, error) {
	var rows []models.Setting
	if errFind := s.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("settings: list: %w", errFind)
	}
	return rows, nil
}

// Get returns one setting row; gorm.ErrRecordNotFound when absent.
func (s *Store) Get(ctx context.Context, key string) (*models.Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("settings: get: %w", gorm.ErrRecordNotFound)
	}
	var row models.Setting
	if errFind := s.db.WithContext(ctx).Where(&models.Setting{Key: key}).Take(&row).Error; errFind != nil {
		return nil, fmt.Errorf("settings: get %s: %w", key, errFind)
	}
	return &row, nil
}

// Set validates and upserts a value, then refreshes the snapshot.
func (s *Store) Set(ctx context.Context, key string, value json.RawMessage) (*models.Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrEmptyKey
	}
	if errValidate := Validate(key, value); errValidate != nil {
		return nil, &ValueError{Key: key, Err: errValidate}
	}
	row := models.Setting{
		Key:       key,
		Value:     string(value),
		UpdatedAt: s.now().UTC(),
	}
	if errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error; errUpsert != nil {
		return nil, fmt.Errorf("settings: set %s: %w", key, errUpsert)
	}
	if errReload := s.Reload(ctx); errReload != nil {
		return nil, errReload
	}
	return &row, nil
}

// Delete removes a setting and refreshes the snapshot; gorm.ErrRecordNotFound when absent.
func (s *Store) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("settings: delete: %w", gorm.ErrRecordNotFound)
	}
	res := s.db.WithContext(ctx).Where(&models.Setting{Key: key}).Delete(&models.Setting{})
	if res.Error != nil {
		return fmt.Errorf("settings: delete %s: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("settings: delete %s: %w", key, gorm.ErrRecordNotFound)
	}
	return s.Reload(ctx)
}
