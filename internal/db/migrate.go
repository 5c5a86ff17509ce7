package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/adminpanel/internal/http/api/admin/permissions"
	"github.com/router-for-me/adminpanel/internal/models"
	internalsettings "github.com/router-for-me/adminpanel/internal/settings"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	dialect := DialectName(conn)
	switch dialect {
	case DialectSQLite, DialectPostgres, DialectMySQL, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", dialect)
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.Permission{},
		&models.Role{},
		&models.User{},
		&models.Session{},
		&models.VerificationToken{},
		&models.Activity{},
		&models.Setting{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errIndexes := applyIndexes(conn, dialect); errIndexes != nil {
		return errIndexes
	}
	if errSeed := ensureDefaultRoles(conn); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureDefaultSettings(conn); errSeed != nil {
		return errSeed
	}
	return nil
}

// applyIndexes creates indexes the model tags cannot express.
func applyIndexes(conn *gorm.DB, dialect string) error {
	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name     string   // Human-readable name for error reporting.
		sql      string   // SQL to execute.
		dialects []string // Dialects the statement applies to.
	}
	ddls := []ddl{
		{
			name: "idx_users_created_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_users_created_at
				ON users (created_at DESC)
			`,
			dialects: []string{DialectPostgres, DialectSQLite},
		},
		{
			name: "idx_sessions_user_expires",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_sessions_user_expires
				ON sessions (user_id, expires)
			`,
			dialects: []string{DialectPostgres, DialectSQLite},
		},
		{
			name: "idx_verification_tokens_expires",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_verification_tokens_expires
				ON verification_tokens (expires)
			`,
			dialects: []string{DialectPostgres, DialectSQLite},
		},
		{
			name: "idx_activities_action_trgm",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_activities_action_trgm
				ON activities USING gin (action gin_trgm_ops)
			`,
			dialects: []string{DialectPostgres},
		},
	}

	if dialect == DialectPostgres {
		_ = conn.Exec(`CREATE EXTENSION IF NOT EXISTS pg_trgm`).Error
	}
	for _, item := range ddls {
		if !containsDialect(item.dialects, dialect) {
			continue
		}
		if errExec := conn.Exec(item.sql).Error; errExec != nil {
			if item.name == "idx_activities_action_trgm" {
				// pg_trgm may be unavailable on managed instances.
				continue
			}
			return fmt.Errorf("db: create %s: %w", item.name, errExec)
		}
	}
	return nil
}

func containsDialect(list []string, dialect string) bool {
	for _, item := range list {
		if item == dialect {
			return true
		}
	}
	return false
}

// ensureDefaultRoles seeds the permission catalogue and the built-in roles.
func ensureDefaultRoles(conn *gorm.DB) error {
	return conn.Transaction(func(tx *gorm.DB) error {
		byName := make(map[string]models.Permission)
		for _, def := range permissions.Definitions() {
			perm, errPerm := ensurePermission(tx, def)
			if errPerm != nil {
				return errPerm
			}
			byName[perm.Name] = perm
		}

		for _, def := range permissions.DefaultRoles() {
			granted := make([]models.Permission, 0, len(def.Permissions))
			for _, name := range def.Permissions {
				if perm, ok := byName[name]; ok {
					granted = append(granted, perm)
				}
			}

			var role models.Role
			errFind := tx.Where("name = ?", def.Name).First(&role).Error
			if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
				return fmt.Errorf("db: query role %s: %w", def.Name, errFind)
			}
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				description := def.Description
				role = models.Role{
					Name:        def.Name,
					DisplayName: def.DisplayName,
					Description: &description,
				}
				if errCreate := tx.Create(&role).Error; errCreate != nil {
					return fmt.Errorf("db: create role %s: %w", def.Name, errCreate)
				}
				if errAssoc := tx.Model(&role).Association("Permissions").Replace(granted); errAssoc != nil {
					return fmt.Errorf("db: grant role %s: %w", def.Name, errAssoc)
				}
				continue
			}

			// The admin bundle tracks the full catalogue as it grows.
			if def.Name == permissions.RoleAdmin && len(granted) > 0 {
				if errAssoc := tx.Model(&role).Association("Permissions").Append(granted); errAssoc != nil {
					return fmt.Errorf("db: grant role %s: %w", def.Name, errAssoc)
				}
			}
		}
		return nil
	})
}

// ensurePermission finds or creates a permission row for def.
func ensurePermission(tx *gorm.DB, def permissions.Definition) (models.Permission, error) {
	var perm models.Permission
	errFind := tx.Where("name = ?", def.Key).First(&perm).Error
	if errFind == nil {
		return perm, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return perm, fmt.Errorf("db: query permission %s: %w", def.Key, errFind)
	}
	label := def.Label
	perm = models.Permission{Name: def.Key, Description: &label}
	if errCreate := tx.Create(&perm).Error; errCreate != nil {
		return perm, fmt.Errorf("db: create permission %s: %w", def.Key, errCreate)
	}
	return perm, nil
}

// ensureDefaultSettings seeds runtime settings that have no stored value.
func ensureDefaultSettings(conn *gorm.DB) error {
	defaults := []struct {
		key   string
		value any
	}{
		{internalsettings.SiteNameKey, internalsettings.DefaultSiteName},
		{internalsettings.AuthRateLimitKey, internalsettings.DefaultAuthRateLimit},
		{internalsettings.AuthRateLimitWindowSecondsKey, internalsettings.DefaultAuthRateLimitWindowSeconds},
		{internalsettings.RateLimitRedisEnabledKey, false},
	}
	for _, item := range defaults {
		if errSeed := ensureSetting(conn, item.key, item.value); errSeed != nil {
			return errSeed
		}
	}
	return nil
}

// ensureSetting ensures a setting exists and defaults when empty.
func ensureSetting(conn *gorm.DB, key string, value any) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}

	var existing models.Setting
	if errFind := conn.Where(&models.Setting{Key: key}).First(&existing).Error; errFind == nil {
		trimmed := strings.TrimSpace(existing.Value)
		if trimmed == "" || trimmed == "null" {
			if errUpdate := conn.Model(&existing).Updates(map[string]any{
				"value":      string(payload),
				"updated_at": time.Now().UTC(),
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
			}
		}
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query %s setting: %w", key, errFind)
	}

	setting := models.Setting{
		Key:       key,
		Value:     string(payload),
		UpdatedAt: time.Now().UTC(),
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}
