package app

import (
	"fmt"

	"github.com/router-for-me/adminpanel/internal/http/api/admin/permissions"
	"github.com/router-for-me/adminpanel/internal/models"
	"gorm.io/gorm"
)

// HasAdminInitialized reports whether at least one non-deleted administrator exists.
func HasAdminInitialized(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil db")
	}
	if !conn.Migrator().HasTable(&models.User{}) || !conn.Migrator().HasTable(&models.Role{}) {
		return false, nil
	}
	var count int64
	errCount := conn.Model(&models.User{}).
		Joins("JOIN roles ON roles.id = users.role_id").
		Where("roles.name = ? AND users.status <> ?", permissions.RoleAdmin, models.UserStatusDeleted).
		Count(&count).Error
	if errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}
