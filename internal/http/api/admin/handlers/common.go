// Package handlers implements the admin panel's JSON API.
package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/adminpanel/internal/auth"
	"github.com/router-for-me/adminpanel/internal/errs"
	"github.com/router-for-me/adminpanel/internal/http/api/envelope"
	"github.com/router-for-me/adminpanel/internal/mail"
	"github.com/router-for-me/adminpanel/internal/models"
	log "github.com/sirupsen/logrus"
)

const claimsContextKey = "authClaims"

// AccountMailer sends the account lifecycle emails.
type AccountMailer interface {
	SendInvitation(ctx context.Context, in mail.InvitationEmail) error
	SendPasswordReset(ctx context.Context, to, name, token string) error
	SendVerification(ctx context.Context, to, name, token string) error
	SendWelcome(ctx context.Context, to, name string) error
}

// SetClaims stores the authenticated caller on the request context.
func SetClaims(c *gin.Context, claims auth.Claims) {
	c.Set(claimsContextKey, claims)
}

// ClaimsFrom returns the authenticated caller, if any.
func ClaimsFrom(c *gin.Context) (auth.Claims, bool) {
	v, ok := c.Get(claimsContextKey)
	if !ok {
		return auth.Claims{}, false
	}
	claims, ok := v.(auth.Claims)
	return claims, ok
}

// requireClaims writes UNAUTHORIZED when the route was mounted without RequireAuth.
func requireClaims(c *gin.Context) (auth.Claims, bool) {
	claims, ok := ClaimsFrom(c)
	if !ok || claims.ID == "" {
		envelope.Error(c, errs.Unauthorized(""))
		return auth.Claims{}, false
	}
	return claims, true
}

// bindJSON decodes the request body into out, writing a VALIDATION_ERROR on failure.
func bindJSON(c *gin.Context, out any) bool {
	if errBind := c.ShouldBindJSON(out); errBind != nil {
		envelope.Error(c, errBind)
		return false
	}
	return true
}

// queryInt parses an optional integer query parameter.
func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, nil
	}
	v, errParse := strconv.Atoi(raw)
	if errParse != nil {
		return 0, errs.Validation("", errs.FieldError{Field: name, Message: "must be an integer"})
	}
	return v, nil
}

// pageParams reads page and limit, clamping limit to [1, 100].
func pageParams(c *gin.Context, defaultLimit int) (int, int, error) {
	page, errPage := queryInt(c, "page", 1)
	if errPage != nil {
		return 0, 0, errPage
	}
	limit, errLimit := queryInt(c, "limit", defaultLimit)
	if errLimit != nil {
		return 0, 0, errLimit
	}
	if page < 1 {
		page = 1
	}
	switch {
	case limit < 1:
		limit = 1
	case limit > 100:
		limit = 100
	}
	return page, limit, nil
}

// warnEmail logs a failed best-effort email.
func warnEmail(err error, template, to string) {
	if err == nil {
		return
	}
	log.WithError(err).WithFields(log.Fields{
		"template": template,
		"to":       to,
	}).Warn("mail: send failed")
}

// roleSummary is the role projection embedded in user payloads.
type roleSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// userRef is a minimal user projection.
type userRef struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Email  string            `json:"email,omitempty"`
	Status models.UserStatus `json:"status,omitempty"`
	Avatar *string           `json:"avatar,omitempty"`
}

// userView is the user payload returned by list, create and update.
type userView struct {
	ID            string            `json:"id"`
	Email         string            `json:"email"`
	Name          string            `json:"name"`
	Avatar        *string           `json:"avatar"`
	Status        models.UserStatus `json:"status"`
	EmailVerified *time.Time        `json:"emailVerified"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	LastLogin     *time.Time        `json:"lastLogin"`
	Role          *roleSummary      `json:"role"`
	InvitedBy     *userRef          `json:"invitedByUser,omitempty"`
	ActivityCount *int64            `json:"activityCount,omitempty"`
}

func newUserView(u *models.User) userView {
	view := userView{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Avatar:        u.Avatar,
		Status:        u.Status,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
		LastLogin:     u.LastLogin,
	}
	if u.Role != nil {
		view.Role = &roleSummary{ID: u.Role.ID, Name: u.Role.Name, DisplayName: u.Role.DisplayName}
	}
	if u.InvitedByUser != nil {
		view.InvitedBy = &userRef{ID: u.InvitedByUser.ID, Name: u.InvitedByUser.Name, Email: u.InvitedByUser.Email}
	}
	return view
}

// activityView is an audit entry as returned by the API.
type activityView struct {
	ID        string              `json:"id"`
	UserID    string              `json:"userId"`
	Type      models.ActivityType `json:"type"`
	Action    string              `json:"action"`
	Details   any                 `json:"details"`
	IPAddress *string             `json:"ipAddress"`
	UserAgent *string             `json:"userAgent"`
	CreatedAt time.Time           `json:"createdAt"`
	User      *userRef            `json:"user,omitempty"`
}

func newActivityView(a *models.Activity) activityView {
	view := activityView{
		ID:        a.ID,
		UserID:    a.UserID,
		Type:      a.Type,
		Action:    a.Action,
		IPAddress: a.IPAddress,
		UserAgent: a.UserAgent,
		CreatedAt: a.CreatedAt,
	}
	if len(a.Details) > 0 {
		view.Details = a.Details
	}
	if a.User != nil {
		view.User = &userRef{ID: a.User.ID, Name: a.User.Name, Email: a.User.Email, Avatar: a.User.Avatar}
	}
	return view
}

func newActivityViews(items []models.Activity) []activityView {
	out := make([]activityView, 0, len(items))
	for i := range items {
		out = append(out, newActivityView(&items[i]))
	}
	return out
}
