package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/adminpanel/internal/errs"
	"github.com/router-for-me/adminpanel/internal/http/api/envelope"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const healthPingTimeout = 2 * time.Second

// HealthHandler reports liveness.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Healthz pings the database and answers 503 when it is unreachable.
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
	defer cancel()

	sqlDB, errDB := h.db.DB()
	if errDB == nil {
		errDB = sqlDB.PingContext(ctx)
	}
	if errDB != nil {
		log.WithError(errDB).Warn("healthz: database ping failed")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, envelope.Response{
			Error: &envelope.ErrorBody{Code: errs.CodeInternal, Message: "Database unavailable"},
		})
		return
	}
	envelope.OK(c, gin.H{"status": "ok", "database": "ok"})
}
