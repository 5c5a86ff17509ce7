package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/router-for-me/adminpanel/internal/http/api/envelope"
	"github.com/router-for-me/adminpanel/internal/models"
	"gorm.io/gorm"
)

// RoleHandler lists roles.
type RoleHandler struct {
	db *gorm.DB
}

// NewRoleHandler constructs a RoleHandler.
func NewRoleHandler(db *gorm.DB) *RoleHandler {
	return &RoleHandler{db: db}
}

// roleView is a role with its permission names and holder count.
type roleView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Description *string  `json:"description"`
	Permissions []string `json:"permissions"`
	UserCount   int64    `json:"userCount"`
}

// List returns every role ordered by name. Deleted users are not counted.
func (h *RoleHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	var roles []models.Role
	if errFind := h.db.WithContext(ctx).Preload("Permissions").Order("name asc").Find(&roles).Error; errFind != nil {
		envelope.Error(c, errFind)
		return
	}

	// roleCount receives one grouped row.
	type roleCount struct {
		RoleID string
		Count  int64
	}
	var counts []roleCount
	if errScan := h.db.WithContext(ctx).Model(&models.User{}).
		Select("role_id, COUNT(*) AS count").
		Where("status <> ?", models.UserStatusDeleted).
		Group("role_id").
		Scan(&counts).Error; errScan != nil {
		envelope.Error(c, errScan)
		return
	}
	byRole := make(map[string]int64, len(counts))
	for _, row := range counts {
		byRole[row.RoleID] = row.Count
	}

	out := make([]roleView, 0, len(roles))
	for _, role := range roles {
		names := make([]string, 0, len(role.Permissions))
		for _, p := range role.Permissions {
			names = append(names, p.Name)
		}
		out = append(out, roleView{
			ID:          role.ID,
			Name:        role.Name,
			DisplayName: role.DisplayName,
			Description: role.Description,
			Permissions: names,
			UserCount:   byRole[role.ID],
		})
	}
	envelope.OK(c, out)
}
