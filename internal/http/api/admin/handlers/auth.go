package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/adminpanel/internal/activity"
	"github.com/router-for-me/adminpanel/internal/auth"
	"github.com/router-for-me/adminpanel/internal/config"
	"github.com/router-for-me/adminpanel/internal/errs"
	"github.com/router-for-me/adminpanel/internal/http/api/envelope"
	"github.com/router-for-me/adminpanel/internal/models"
	"github.com/router-for-me/adminpanel/internal/tokens"
	"gorm.io/gorm"
)

const (
	defaultOwnActivityLimit = 10
	maxOwnActivityLimit     = 100
)

// AuthHandler serves login, profile, session and token endpoints.
type AuthHandler struct {
	db         *gorm.DB
	sessions   *auth.Manager
	activities *activity.Service
	tokens     *tokens.Store
	mailer     AccountMailer
	cookie     config.CookieConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, sessions *auth.Manager, activities *activity.Service, tokenStore *tokens.Store, mailer AccountMailer, cookie config.CookieConfig) *AuthHandler {
	if strings.TrimSpace(cookie.Name) == "" {
		cookie.Name = config.DefaultCookieName
	}
	return &AuthHandler{
		db:         db,
		sessions:   sessions,
		activities: activities,
		tokens:     tokenStore,
		mailer:     mailer,
		cookie:     cookie,
	}
}

// CookieName returns the session cookie name read by RequireAuth.
func (h *AuthHandler) CookieName() string {
	return h.cookie.Name
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login issues a session token and sets it as an HttpOnly cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if !bindJSON(c, &body) {
		return
	}
	result, errLogin := h.sessions.Login(c.Request.Context(), c.Request, strings.TrimSpace(body.Email), body.Password)
	if errLogin != nil {
		envelope.Error(c, errLogin)
		return
	}
	h.setCookie(c, result.Token, time.Until(result.Expires))
	envelope.OK(c, gin.H{
		"token":   result.Token,
		"expires": result.Expires,
		"user":    result.Claims,
	})
}

// Logout removes the current session and clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	if errLogout := h.sessions.Logout(c.Request.Context(), c.Request, claims); errLogout != nil {
		envelope.Error(c, errLogout)
		return
	}
	h.setCookie(c, "", -1)
	envelope.Message(c, "Logged out successfully")
}

func (h *AuthHandler) setCookie(c *gin.Context, value string, ttl time.Duration) {
	maxAge := int(ttl / time.Second)
	if ttl < 0 {
		maxAge = -1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", "", h.cookie.Secure, true)
}

type failedLoginRequest struct {
	Email string `json:"email" binding:"required"`
}

// FailedLogin records a failed attempt for a known email. The response never
// reveals whether the email exists. It exists for login front-ends that check
// credentials elsewhere; POST /auth/login already records its own failures, so
// clients of that endpoint must not call this one as well.
func (h *AuthHandler) FailedLogin(c *gin.Context) {
	var body failedLoginRequest
	if !bindJSON(c, &body) {
		return
	}
	if errRecord := h.sessions.RecordFailedLogin(c.Request.Context(), c.Request, body.Email); errRecord != nil {
		envelope.Error(c, errRecord)
		return
	}
	envelope.Message(c, "Failed login recorded")
}

// Me returns the caller's profile, re-read from the database.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var user models.User
	if errFind := h.db.WithContext(ctx).Preload("Role.Permissions").Where("id = ?", claims.ID).First(&user).Error; errFind != nil {
		envelope.Error(c, errFind)
		return
	}
	activityCounts, errCounts := h.activities.CountByUser(ctx, []string{user.ID})
	if errCounts != nil {
		envelope.Error(c, errCounts)
		return
	}
	var sessionCount int64
	if errCount := h.db.WithContext(ctx).Model(&models.Session{}).
		Where("user_id = ? AND expires > ?", user.ID, time.Now().UTC()).
		Count(&sessionCount).Error; errCount != nil {
		envelope.Error(c, errCount)
		return
	}

	perms := make([]string, 0)
	if user.Role != nil {
		for _, p := range user.Role.Permissions {
			perms = append(perms, p.Name)
		}
	}
	envelope.OK(c, gin.H{
		"user":        newUserView(&user),
		"permissions": perms,
		"counts": gin.H{
			"activities": activityCounts[user.ID],
			"sessions":   sessionCount,
		},
	})
}

type updateProfileRequest struct {
	Name   *string `json:"name" binding:"omitempty,min=2"`
	Avatar *string `json:"avatar" binding:"omitempty,url"`
}

// UpdateMe edits the caller's name and avatar. Other fields are ignored.
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var body updateProfileRequest
	if !bindJSON(c, &body) {
		return
	}
	ctx := c.Request.Context()

	var user models.User
	if errFind := h.db.WithContext(ctx).Preload("Role").Where("id = ?", claims.ID).First(&user).Error; errFind != nil {
		envelope.Error(c, errFind)
		return
	}

	updates := map[string]any{}
	fields := make([]string, 0, 2)
	if body.Name != nil {
		if name := strings.TrimSpace(*body.Name); name != user.Name {
			updates["name"] = name
			fields = append(fields, "name")
			user.Name = name
		}
	}
	if body.Avatar != nil {
		var avatar *string
		if trimmed := strings.TrimSpace(*body.Avatar); trimmed != "" {
			avatar = &trimmed
		}
		if !sameOptional(avatar, user.Avatar) {
			updates["avatar"] = avatar
			fields = append(fields, "avatar")
			user.Avatar = avatar
		}
	}
	if len(updates) == 0 {
		envelope.Error(c, errs.InvalidRequest("No updates provided"))
		return
	}
	if errUpdate := h.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; errUpdate != nil {
		envelope.Error(c, errUpdate)
		return
	}
	h.activities.RecordBestEffort(ctx, c.Request, user.ID, models.ActivityUserUpdated, "Updated profile",
		activity.ProfileUpdatedDetails{UpdatedFields: fields})
	envelope.OK(c, newUserView(&user))
}

// ChangeMyPassword changes the caller's own password and revokes their other sessions.
func (h *AuthHandler) ChangeMyPassword(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var body changePasswordRequest
	if !bindJSON(c, &body) {
		return
	}
	if errChange := changePassword(c, h.db, h.activities, h.sessions, claims, claims.ID, body); errChange != nil {
		envelope.Error(c, errChange)
		return
	}
	envelope.Message(c, "Password changed successfully")
}

// Activities returns the caller's most recent activities.
func (h *AuthHandler) Activities(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	limit, errLimit := queryInt(c, "limit", defaultOwnActivityLimit)
	if errLimit != nil {
		envelope.Error(c, errLimit)
		return
	}
	switch {
	case limit < 1:
		limit = defaultOwnActivityLimit
	case limit > maxOwnActivityLimit:
		limit = maxOwnActivityLimit
	}
	items, errRecent := h.activities.Recent(c.Request.Context(), claims.ID, limit)
	if errRecent != nil {
		envelope.Error(c, errRecent)
		return
	}
	envelope.OK(c, newActivityViews(items))
}

// Sessions lists the caller's unexpired sessions.
func (h *AuthHandler) Sessions(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	views, errList := h.sessions.ListSessions(c.Request.Context(), claims)
	if errList != nil {
		envelope.Error(c, errList)
		return
	}
	envelope.OK(c, views)
}

// RevokeSession deletes one of the caller's other sessions.
func (h *AuthHandler) RevokeSession(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	if errRevoke := h.sessions.RevokeSession(c.Request.Context(), c.Request, claims, strings.TrimSpace(c.Param("id"))); errRevoke != nil {
		envelope.Error(c, errRevoke)
		return
	}
	envelope.Message(c, "Session revoked successfully")
}
