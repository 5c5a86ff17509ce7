package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/adminpanel/internal/errs"
	"github.com/router-for-me/adminpanel/internal/http/api/envelope"
	"github.com/router-for-me/adminpanel/internal/models"
	"github.com/router-for-me/adminpanel/internal/settings"
	"gorm.io/gorm"
)

// SettingHandler manages admin CRUD for runtime settings.
type SettingHandler struct {
	store *settings.Store
}

// NewSettingHandler constructs a settings handler.
func NewSettingHandler(store *settings.Store) *SettingHandler {
	return &SettingHandler{store: store}
}

type createSettingRequest struct {
	Key   string          `json:"key" binding:"required,max=128"`
	Value json.RawMessage `json:"value" binding:"required"`
}

type updateSettingRequest struct {
	Value json.RawMessage `json:"value" binding:"required"`
}

type settingView struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func newSettingView(s *models.Setting) settingView {
	return settingView{Key: s.Key, Value: json.RawMessage(s.Value), UpdatedAt: s.UpdatedAt}
}

// Create inserts a new setting; an existing key is a conflict.
func (h *SettingHandler) Create(c *gin.Context) {
	var body createSettingRequest
	if !bindJSON(c, &body) {
		return
	}
	ctx := c.Request.Context()
	key := strings.TrimSpace(body.Key)

	_, errFind := h.store.Get(ctx, key)
	switch {
	case errFind == nil:
		envelope.Error(c, errs.New(errs.CodeDuplicateEntry, "Setting key already exists"))
		return
	case !errors.Is(errFind, gorm.ErrRecordNotFound):
		envelope.Error(c, errFind)
		return
	}

	row, errSet := h.store.Set(ctx, key, body.Value)
	if errSet != nil {
		envelope.Error(c, errSet)
		return
	}
	envelope.Created(c, newSettingView(row))
}

// List returns all settings ordered by key.
func (h *SettingHandler) List(c *gin.Context) {
	rows, errList := h.store.List(c.Request.Context())
	if errList != nil {
		envelope.Error(c, errList)
		return
	}
	out := make([]settingView, 0, len(rows))
	for i := range rows {
		out = append(out, newSettingView(&rows[i]))
	}
	envelope.OK(c, out)
}

// Get returns one setting.
func (h *SettingHandler) Get(c *gin.Context) {
	row, errGet := h.store.Get(c.Request.Context(), strings.TrimSpace(c.Param("key")))
	if errGet != nil {
		envelope.Error(c, errGet)
		return
	}
	envelope.OK(c, newSettingView(row))
}

// Update replaces the value of an existing setting.
func (h *SettingHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	var body updateSettingRequest
	if !bindJSON(c, &body) {
		return
	}
	ctx := c.Request.Context()
	if _, errGet := h.store.Get(ctx, key); errGet != nil {
		envelope.Error(c, errGet)
		return
	}
	row, errSet := h.store.Set(ctx, key, body.Value)
	if errSet != nil {
		envelope.Error(c, errSet)
		return
	}
	envelope.OK(c, newSettingView(row))
}

// Delete removes a setting; readers fall back to defaults afterwards.
func (h *SettingHandler) Delete(c *gin.Context) {
	if errDelete := h.store.Delete(c.Request.Context(), strings.TrimSpace(c.Param("key"))); errDelete != nil {
		envelope.Error(c, errDelete)
		return
	}
	c.Status(http.StatusNoContent)
}
