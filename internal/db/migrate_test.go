package db

import (
	"path/filepath"
	"testing"

	"github.com/router-for-me/adminpanel/internal/http/api/admin/permissions"
	"github.com/router-for-me/adminpanel/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestMigrate_SeedsRolesAndPermissions(t *testing.T) {
	conn := openTestDB(t)

	var permCount int64
	if err := conn.Model(&models.Permission{}).Count(&permCount).Error; err != nil {
		t.Fatalf("count permissions: %v", err)
	}
	if int(permCount) != len(permissions.Definitions()) {
		t.Fatalf("expected %d permissions, got %d", len(permissions.Definitions()), permCount)
	}

	var moderator models.Role
	if err := conn.Preload("Permissions").Where("name = ?", permissions.RoleModerator).First(&moderator).Error; err != nil {
		t.Fatalf("load moderator: %v", err)
	}
	if len(moderator.Permissions) != 2 {
		t.Fatalf("expected moderator to have 2 permissions, got %d", len(moderator.Permissions))
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	conn := openTestDB(t)
	if err := Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var roleCount int64
	if err := conn.Model(&models.Role{}).Count(&roleCount).Error; err != nil {
		t.Fatalf("count roles: %v", err)
	}
	if roleCount != 3 {
		t.Fatalf("expected 3 roles after re-migrate, got %d", roleCount)
	}

	var admin models.Role
	if err := conn.Preload("Permissions").Where("name = ?", permissions.RoleAdmin).First(&admin).Error; err != nil {
		t.Fatalf("load admin: %v", err)
	}
	if len(admin.Permissions) != len(permissions.Definitions()) {
		t.Fatalf("expected admin to keep %d permissions, got %d", len(permissions.Definitions()), len(admin.Permissions))
	}

	var settingCount int64
	if err := conn.Model(&models.Setting{}).Count(&settingCount).Error; err != nil {
		t.Fatalf("count settings: %v", err)
	}
	if settingCount != 4 {
		t.Fatalf("expected 4 seeded settings, got %d", settingCount)
	}
}

func TestIsDuplicateKey_SQLite(t *testing.T) {
	conn := openTestDB(t)

	var role models.Role
	if err := conn.Where("name = ?", permissions.RoleUser).First(&role).Error; err != nil {
		t.Fatalf("load role: %v", err)
	}
	first := models.User{Email: "dup@example.com", Name: "First", RoleID: role.ID}
	if err := conn.Create(&first).Error; err != nil {
		t.Fatalf("create first: %v", err)
	}
	second := models.User{Email: "dup@example.com", Name: "Second", RoleID: role.ID}
	err := conn.Create(&second).Error
	if err == nil {
		t.Fatalf("expected duplicate email to fail")
	}
	if !IsDuplicateKey(err) {
		t.Fatalf("expected duplicate key classification, got %v", err)
	}
}
