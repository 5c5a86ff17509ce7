package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/adminpanel/internal/activity"
	"github.com/router-for-me/adminpanel/internal/auth"
	dbutil "github.com/router-for-me/adminpanel/internal/db"
	"github.com/router-for-me/adminpanel/internal/errs"
	"github.com/router-for-me/adminpanel/internal/http/api/admin/permissions"
	"github.com/router-for-me/adminpanel/internal/http/api/envelope"
	"github.com/router-for-me/adminpanel/internal/mail"
	"github.com/router-for-me/adminpanel/internal/models"
	"github.com/router-for-me/adminpanel/internal/security"
	"github.com/router-for-me/adminpanel/internal/tokens"
	"gorm.io/gorm"
)

const (
	defaultUserPageLimit  = 10
	temporaryPasswordSize = 12
	userDetailActivities  = 10
)

// userSortColumns maps API sort fields to user columns.
var userSortColumns = map[string]string{
	"createdAt": "created_at",
	"name":      "name",
	"email":     "email",
	"lastLogin": "last_login",
	"status":    "status",
}

// UserHandler manages user account endpoints.
type UserHandler struct {
	db         *gorm.DB
	activities *activity.Service
	tokens     *tokens.Store
	sessions   *auth.Manager
	mailer     AccountMailer
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(db *gorm.DB, activities *activity.Service, tokenStore *tokens.Store, sessions *auth.Manager, mailer AccountMailer) *UserHandler {
	return &UserHandler{db: db, activities: activities, tokens: tokenStore, sessions: sessions, mailer: mailer}
}

// List returns users with pagination, filters and activity counts.
// DELETED users are hidden unless status=DELETED is requested.
func (h *UserHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	page, limit, errPage := pageParams(c, defaultUserPageLimit)
	if errPage != nil {
		envelope.Error(c, errPage)
		return
	}
	sortBy := strings.TrimSpace(c.DefaultQuery("sortBy", "createdAt"))
	column, ok := userSortColumns[sortBy]
	if !ok {
		envelope.Error(c, errs.Validation("", errs.FieldError{Field: "sortBy", Message: "unsupported sort field"}))
		return
	}
	sortOrder := strings.ToLower(strings.TrimSpace(c.DefaultQuery("sortOrder", "desc")))
	if sortOrder != "asc" && sortOrder != "desc" {
		envelope.Error(c, errs.Validation("", errs.FieldError{Field: "sortOrder", Message: "must be asc or desc"}))
		return
	}

	conn := h.db.WithContext(ctx)
	q := conn.Model(&models.User{})
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		pattern := dbutil.ContainsPattern(h.db, search)
		q = q.Where(
			dbutil.CaseInsensitiveLikeExpr(h.db, "name")+" OR "+dbutil.CaseInsensitiveLikeExpr(h.db, "email"),
			pattern,
			pattern,
		)
	}
	if status := models.UserStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))); status != "" {
		if !status.Valid() {
			envelope.Error(c, errs.Validation("", errs.FieldError{Field: "status", Message: "unknown status"}))
			return
		}
		q = q.Where("status = ?", status)
	} else {
		q = q.Where("status <> ?", models.UserStatusDeleted)
	}
	if role := strings.TrimSpace(c.Query("role")); role != "" {
		q = q.Where("role_id IN (?)", conn.Model(&models.Role{}).Select("id").Where("name = ?", role))
	}

	var total int64
	if errCount := q.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		envelope.Error(c, errCount)
		return
	}

	var rows []models.User
	if errFind := q.
		Preload("Role").
		Preload("InvitedByUser", func(tx *gorm.DB) *gorm.DB { return tx.Select("id", "name", "email") }).
		Order(column + " " + sortOrder).
		Order("id " + sortOrder).
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		envelope.Error(c, errFind)
		return
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	counts, errCounts := h.activities.CountByUser(ctx, ids)
	if errCounts != nil {
		envelope.Error(c, errCounts)
		return
	}

	out := make([]userView, 0, len(rows))
	for i := range rows {
		view := newUserView(&rows[i])
		count := counts[rows[i].ID]
		view.ActivityCount = &count
		out = append(out, view)
	}
	envelope.Page(c, out, envelope.Meta{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: activity.TotalPages(total, limit),
	})
}

// createUserRequest defines the request body for user creation.
type createUserRequest struct {
	Email      string  `json:"email" binding:"required,email"`
	Name       string  `json:"name" binding:"required,min=2"`
	Password   *string `json:"password" binding:"omitempty,min=6"`
	RoleID     string  `json:"roleId" binding:"required"`
	SendInvite *bool   `json:"sendInvite"`
}

// Create creates a user. Invited users start PENDING and receive an email with
// either their temporary password or an invite link.
func (h *UserHandler) Create(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var body createUserRequest
	if !bindJSON(c, &body) {
		return
	}
	ctx := c.Request.Context()
	sendInvite := body.SendInvite == nil || *body.SendInvite

	var role models.Role
	if errRole := h.db.WithContext(ctx).Where("id = ?", body.RoleID).First(&role).Error; errRole != nil {
		if errors.Is(errRole, gorm.ErrRecordNotFound) {
			envelope.Error(c, errs.Validation("", errs.FieldError{Field: "roleId", Message: "role does not exist"}))
			return
		}
		envelope.Error(c, errRole)
		return
	}

	password := ""
	if body.Password != nil {
		password = *body.Password
	} else {
		generated, errGenerate := security.TemporaryPassword(temporaryPasswordSize)
		if errGenerate != nil {
			envelope.Error(c, errGenerate)
			return
		}
		password = generated
	}
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		envelope.Error(c, errHash)
		return
	}

	status := models.UserStatusActive
	if sendInvite {
		status = models.UserStatusPending
	}
	inviter := claims.ID
	user := models.User{
		Email:     strings.TrimSpace(body.Email),
		Name:      strings.TrimSpace(body.Name),
		Password:  &hash,
		Status:    status,
		RoleID:    role.ID,
		InvitedBy: &inviter,
	}
	if errCreate := h.db.WithContext(ctx).Create(&user).Error; errCreate != nil {
		envelope.Error(c, errCreate)
		return
	}
	user.Role = &role

	h.activities.RecordBestEffort(ctx, c.Request, claims.ID, models.ActivityUserCreated,
		fmt.Sprintf("Created user: %s", user.Name),
		activity.UserCreatedDetails{CreatedUserID: user.ID, Email: user.Email, Role: role.Name, InviteSent: sendInvite})

	if sendInvite {
		h.sendInvite(c, claims, &user, body.Password != nil, password)
	}

	resp := gin.H{"user": newUserView(&user)}
	if !sendInvite {
		resp["temporaryPassword"] = password
	}
	envelope.Created(c, resp)
}

// sendInvite emails a temporary password when the admin chose one, otherwise an invite link.
func (h *UserHandler) sendInvite(c *gin.Context, claims auth.Claims, user *models.User, withPassword bool, password string) {
	ctx := c.Request.Context()
	inviterName := claims.Name
	if inviterName == "" {
		inviterName = claims.Email
	}
	in := mail.InvitationEmail{To: user.Email, RecipientName: user.Name, InviterName: inviterName}
	if withPassword {
		in.TemporaryPassword = password
	} else {
		token, errToken := h.tokens.Create(ctx, tokens.NewIdentifier(tokens.PurposeInvite, user.ID))
		if errToken != nil {
			warnEmail(errToken, mail.TemplateInvitation, user.Email)
			return
		}
		in.Token = token
	}
	warnEmail(h.mailer.SendInvitation(ctx, in), mail.TemplateInvitation, user.Email)
}

// permissionView is a permission as embedded in role payloads.
type permissionView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// Get returns a user with role permissions, inviter, invitees, recent activity and counts.
func (h *UserHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	id := strings.TrimSpace(c.Param("id"))

	var user models.User
	errFind := h.db.WithContext(ctx).
		Preload("Role.Permissions").
		Preload("InvitedByUser", func(tx *gorm.DB) *gorm.DB { return tx.Select("id", "name", "email") }).
		Preload("InvitedUsers", func(tx *gorm.DB) *gorm.DB {
			return tx.Select("id", "name", "email", "status", "invited_by").Order("created_at desc")
		}).
		Where("id = ?", id).
		First(&user).Error
	if errFind != nil {
		envelope.Error(c, errFind)
		return
	}

	recent, errRecent := h.activities.Recent(ctx, user.ID, userDetailActivities)
	if errRecent != nil {
		envelope.Error(c, errRecent)
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

	perms := make([]permissionView, 0)
	var roleDetail gin.H
	if user.Role != nil {
		for _, p := range user.Role.Permissions {
			perms = append(perms, permissionView{ID: p.ID, Name: p.Name, Description: p.Description})
		}
		roleDetail = gin.H{
			"id":          user.Role.ID,
			"name":        user.Role.Name,
			"displayName": user.Role.DisplayName,
			"description": user.Role.Description,
			"permissions": perms,
		}
	}
	invited := make([]userRef, 0, len(user.InvitedUsers))
	for _, u := range user.InvitedUsers {
		invited = append(invited, userRef{ID: u.ID, Name: u.Name, Email: u.Email, Status: u.Status})
	}

	view := newUserView(&user)
	envelope.OK(c, gin.H{
		"id":            view.ID,
		"email":         view.Email,
		"name":          view.Name,
		"avatar":        view.Avatar,
		"status":        view.Status,
		"emailVerified": view.EmailVerified,
		"createdAt":     view.CreatedAt,
		"updatedAt":     view.UpdatedAt,
		"lastLogin":     view.LastLogin,
		"role":          roleDetail,
		"invitedByUser": view.InvitedBy,
		"invitedUsers":  invited,
		"activities":    newActivityViews(recent),
		"counts": gin.H{
			"activities": activityCounts[user.ID],
			"sessions":   sessionCount,
		},
	})
}

// updateUserRequest captures the PATCH payload; nil fields are left unchanged.
type updateUserRequest struct {
	Email  *string            `json:"email" binding:"omitempty,email"`
	Name   *string            `json:"name" binding:"omitempty,min=2"`
	RoleID *string            `json:"roleId" binding:"omitempty,min=1"`
	Status *models.UserStatus `json:"status"`
	Avatar *string            `json:"avatar" binding:"omitempty,url"`
}

// Update edits a user. Editing yourself ignores roleId and status.
func (h *UserHandler) Update(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var body updateUserRequest
	if !bindJSON(c, &body) {
		return
	}
	ctx := c.Request.Context()
	id := strings.TrimSpace(c.Param("id"))
	if id == claims.ID {
		body.RoleID = nil
		body.Status = nil
	}
	if body.Status != nil && !body.Status.Valid() {
		envelope.Error(c, errs.Validation("", errs.FieldError{Field: "status", Message: "unknown status"}))
		return
	}

	var user models.User
	if errFind := h.db.WithContext(ctx).Preload("Role").Where("id = ?", id).First(&user).Error; errFind != nil {
		envelope.Error(c, errFind)
		return
	}

	updates := make(map[string]any)
	changes := make(map[string]activity.FieldChange)
	if body.Email != nil {
		if email := strings.TrimSpace(*body.Email); email != user.Email {
			updates["email"] = email
			changes["email"] = activity.FieldChange{From: user.Email, To: email}
		}
	}
	if body.Name != nil {
		if name := strings.TrimSpace(*body.Name); name != user.Name {
			updates["name"] = name
			changes["name"] = activity.FieldChange{From: user.Name, To: name}
		}
	}
	if body.Avatar != nil {
		var next *string
		if avatar := strings.TrimSpace(*body.Avatar); avatar != "" {
			next = &avatar
		}
		if !sameOptional(user.Avatar, next) {
			updates["avatar"] = next
			changes["avatar"] = activity.FieldChange{From: user.Avatar, To: next}
		}
	}
	if body.Status != nil && *body.Status != user.Status {
		updates["status"] = *body.Status
		changes["status"] = activity.FieldChange{From: user.Status, To: *body.Status}
	}
	var newRole *models.Role
	if body.RoleID != nil && *body.RoleID != user.RoleID {
		var role models.Role
		if errRole := h.db.WithContext(ctx).Where("id = ?", *body.RoleID).First(&role).Error; errRole != nil {
			if errors.Is(errRole, gorm.ErrRecordNotFound) {
				envelope.Error(c, errs.Validation("", errs.FieldError{Field: "roleId", Message: "role does not exist"}))
				return
			}
			envelope.Error(c, errRole)
			return
		}
		newRole = &role
		updates["role_id"] = role.ID
		changes["roleId"] = activity.FieldChange{From: user.RoleID, To: role.ID}
	}

	if len(updates) > 0 {
		if errUpdate := h.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; errUpdate != nil {
			envelope.Error(c, errUpdate)
			return
		}
		h.activities.RecordBestEffort(ctx, c.Request, claims.ID, models.ActivityUserUpdated,
			fmt.Sprintf("Updated user: %s", user.Name),
			activity.UserUpdatedDetails{UpdatedUserID: user.ID, Changes: changes})
		if newRole != nil {
			oldRole := ""
			if user.Role != nil {
				oldRole = user.Role.Name
			}
			h.activities.RecordBestEffort(ctx, c.Request, claims.ID, models.ActivityRoleChanged,
				fmt.Sprintf("Changed role of %s to %s", user.Name, newRole.Name),
				activity.RoleChangedDetails{UserID: user.ID, OldRole: oldRole, NewRole: newRole.Name})
		}
		if body.Status != nil && *body.Status != models.UserStatusActive && *body.Status != user.Status {
			if _, errRevoke := h.sessions.RevokeUserSessions(ctx, user.ID, ""); errRevoke != nil {
				envelope.Error(c, errRevoke)
				return
			}
		}
		if body.Status != nil && *body.Status != models.UserStatusPending && *body.Status != user.Status {
			if _, errRevoke := h.tokens.Revoke(ctx, tokens.NewIdentifier(tokens.PurposeInvite, user.ID)); errRevoke != nil {
				envelope.Error(c, errRevoke)
				return
			}
		}
	}

	var updated models.User
	if errReload := h.db.WithContext(ctx).Preload("Role").Where("id = ?", user.ID).First(&updated).Error; errReload != nil {
		envelope.Error(c, errReload)
		return
	}
	envelope.OK(c, newUserView(&updated))
}

// Delete soft-deletes a user and ends their sessions. Deleting yourself is forbidden.
func (h *UserHandler) Delete(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	id := strings.TrimSpace(c.Param("id"))
	if id == claims.ID {
		envelope.Error(c, errs.Forbidden("You cannot delete your own account"))
		return
	}

	var user models.User
	if errFind := h.db.WithContext(ctx).Select("id", "name", "email").Where("id = ?", id).First(&user).Error; errFind != nil {
		envelope.Error(c, errFind)
		return
	}
	if errUpdate := h.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
		Update("status", models.UserStatusDeleted).Error; errUpdate != nil {
		envelope.Error(c, errUpdate)
		return
	}
	if _, errRevoke := h.sessions.RevokeUserSessions(ctx, user.ID, ""); errRevoke != nil {
		envelope.Error(c, errRevoke)
		return
	}
	h.activities.RecordBestEffort(ctx, c.Request, claims.ID, models.ActivityUserDeleted,
		fmt.Sprintf("Deleted user: %s", user.Name),
		activity.UserDeletedDetails{DeletedUserID: user.ID, Email: user.Email})
	envelope.Message(c, "User deleted successfully")
}

// changePasswordRequest is shared by the admin and self-service password endpoints.
type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" binding:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,eqfield=NewPassword"`
}

// ChangePassword changes a user's password. Callers may change their own
// password with proof of the current one; admins may change anyone's.
func (h *UserHandler) ChangePassword(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id != claims.ID && claims.Role != permissions.RoleAdmin {
		envelope.Error(c, errs.Forbidden("You can only change your own password"))
		return
	}
	var body changePasswordRequest
	if !bindJSON(c, &body) {
		return
	}
	if errChange := changePassword(c, h.db, h.activities, h.sessions, claims, id, body); errChange != nil {
		envelope.Error(c, errChange)
		return
	}
	envelope.Message(c, "Password changed successfully")
}

// changePassword applies a password change. Self changes require the current
// password and keep the caller's session; other sessions of the target are revoked.
func changePassword(c *gin.Context, conn *gorm.DB, activities *activity.Service, sessions *auth.Manager, claims auth.Claims, targetID string, body changePasswordRequest) error {
	ctx := c.Request.Context()
	self := targetID == claims.ID

	var user models.User
	if errFind := conn.WithContext(ctx).Select("id", "name", "password").Where("id = ?", targetID).First(&user).Error; errFind != nil {
		return errFind
	}
	if self {
		if body.CurrentPassword == "" {
			return errs.Validation("", errs.FieldError{Field: "currentPassword", Message: "is required"})
		}
		if !user.HasPassword() || !security.VerifyPassword(*user.Password, body.CurrentPassword) {
			return errs.InvalidRequest("Current password is incorrect")
		}
	}

	hash, errHash := security.HashPassword(body.NewPassword)
	if errHash != nil {
		return errHash
	}
	if errUpdate := conn.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
		Update("password", hash).Error; errUpdate != nil {
		return errUpdate
	}

	keep := ""
	if self {
		keep = claims.SessionID
	}
	if _, errRevoke := sessions.RevokeUserSessions(ctx, user.ID, keep); errRevoke != nil {
		return errRevoke
	}

	action := "Changed own password"
	method := activity.PasswordMethodSelf
	if !self {
		action = fmt.Sprintf("Changed password for: %s", user.Name)
		method = activity.PasswordMethodAdmin
	}
	activities.RecordBestEffort(ctx, c.Request, claims.ID, models.ActivityPasswordChanged, action,
		activity.PasswordChangedDetails{TargetUserID: user.ID, Method: method})
	return nil
}

func sameOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
