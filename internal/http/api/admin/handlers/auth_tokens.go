package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/adminpanel/internal/activity"
	"github.com/router-for-me/adminpanel/internal/errs"
	"github.com/router-for-me/adminpanel/internal/http/api/envelope"
	"github.com/router-for-me/adminpanel/internal/mail"
	"github.com/router-for-me/adminpanel/internal/models"
	"github.com/router-for-me/adminpanel/internal/security"
	"github.com/router-for-me/adminpanel/internal/tokens"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	forgotPasswordMessage     = "If an account exists with this email, a password reset link has been sent"
	resendVerificationMessage = "If an unverified account exists with this email, a verification link has been sent"
	weakPasswordMessage       = "must be at least 6 characters and contain an upper case letter, a lower case letter and a digit"
)

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type tokenPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

func strongPassword(password string) error {
	if security.IsStrongPassword(password) {
		return nil
	}
	return errs.Validation("", errs.FieldError{Field: "password", Message: weakPasswordMessage})
}

// ForgotPassword emails a reset link to ACTIVE accounts. The response is the
// same whether or not the email is known.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var body emailRequest
	if !bindJSON(c, &body) {
		return
	}
	ctx := c.Request.Context()
	email := strings.TrimSpace(body.Email)

	var user models.User
	errFind := h.db.WithContext(ctx).
		Where("email = ? AND status = ?", email, models.UserStatusActive).
		First(&user).Error
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			log.WithError(errFind).Warn("forgot password: find user")
		}
		envelope.Message(c, forgotPasswordMessage)
		return
	}

	token, errToken := h.tokens.Create(ctx, tokens.NewIdentifier(tokens.PurposeReset, user.ID))
	if errToken != nil {
		log.WithError(errToken).Warn("forgot password: create token")
		envelope.Message(c, forgotPasswordMessage)
		return
	}
	warnEmail(h.mailer.SendPasswordReset(ctx, user.Email, user.Name, token), mail.TemplatePasswordReset, user.Email)
	h.activities.RecordBestEffort(ctx, c.Request, user.ID, models.ActivityPasswordReset, "Requested password reset",
		activity.PasswordResetDetails{Email: user.Email})
	envelope.Message(c, forgotPasswordMessage)
}

// ResetPassword consumes a reset token and sets a new password. Every session
// of the user is revoked.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var body tokenPasswordRequest
	if !bindJSON(c, &body) {
		return
	}
	if errWeak := strongPassword(body.Password); errWeak != nil {
		envelope.Error(c, errWeak)
		return
	}
	ctx := c.Request.Context()

	id, errConsume := h.tokens.Consume(ctx, strings.TrimSpace(body.Token), tokens.PurposeReset)
	if errConsume != nil {
		envelope.Error(c, errConsume)
		return
	}
	var user models.User
	if errFind := h.db.WithContext(ctx).Where("id = ?", id.SubjectID).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			envelope.Error(c, errs.InvalidToken(""))
			return
		}
		envelope.Error(c, errFind)
		return
	}
	if user.Status != models.UserStatusActive {
		envelope.Error(c, errs.InvalidToken(""))
		return
	}

	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		envelope.Error(c, errHash)
		return
	}
	updates := map[string]any{"password": hash}
	if user.EmailVerified == nil {
		updates["email_verified"] = time.Now().UTC()
	}
	if errUpdate := h.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; errUpdate != nil {
		envelope.Error(c, errUpdate)
		return
	}
	if _, errRevoke := h.sessions.RevokeUserSessions(ctx, user.ID, ""); errRevoke != nil {
		envelope.Error(c, errRevoke)
		return
	}
	h.activities.RecordBestEffort(ctx, c.Request, user.ID, models.ActivityPasswordChanged, "Reset password",
		activity.PasswordChangedDetails{TargetUserID: user.ID, Method: activity.PasswordMethodReset})
	envelope.Message(c, "Password has been reset successfully")
}

// VerifyEmailQuery verifies the token passed as ?token=.
func (h *AuthHandler) VerifyEmailQuery(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		envelope.Error(c, errs.Validation("", errs.FieldError{Field: "token", Message: "is required"}))
		return
	}
	h.verifyEmail(c, token)
}

// VerifyEmail verifies the token passed in the JSON body.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var body tokenRequest
	if !bindJSON(c, &body) {
		return
	}
	h.verifyEmail(c, strings.TrimSpace(body.Token))
}

// verifyEmail marks the address verified and activates PENDING accounts.
func (h *AuthHandler) verifyEmail(c *gin.Context, token string) {
	ctx := c.Request.Context()
	id, errConsume := h.tokens.Consume(ctx, token, tokens.PurposeVerify)
	if errConsume != nil {
		envelope.Error(c, errConsume)
		return
	}
	var user models.User
	if errFind := h.db.WithContext(ctx).Where("id = ?", id.SubjectID).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			envelope.Error(c, errs.InvalidToken(""))
			return
		}
		envelope.Error(c, errFind)
		return
	}
	if user.Status == models.UserStatusDeleted {
		envelope.Error(c, errs.InvalidToken(""))
		return
	}
	if user.EmailVerified != nil {
		envelope.OK(c, gin.H{"message": "Email is already verified", "userName": user.Name})
		return
	}

	updates := map[string]any{"email_verified": time.Now().UTC()}
	activated := user.Status == models.UserStatusPending
	if activated {
		updates["status"] = models.UserStatusActive
	}
	if errUpdate := h.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; errUpdate != nil {
		envelope.Error(c, errUpdate)
		return
	}
	warnEmail(h.mailer.SendWelcome(ctx, user.Email, user.Name), mail.TemplateWelcome, user.Email)
	h.activities.RecordBestEffort(ctx, c.Request, user.ID, models.ActivityUserUpdated, "Verified email",
		activity.EmailVerifiedDetails{Email: user.Email, Activated: activated})
	envelope.OK(c, gin.H{"message": "Email verified successfully", "userName": user.Name})
}

// ResendVerification issues a fresh verify token for unverified accounts.
// The response never reveals whether the email is known.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var body emailRequest
	if !bindJSON(c, &body) {
		return
	}
	ctx := c.Request.Context()

	var user models.User
	errFind := h.db.WithContext(ctx).
		Where("email = ? AND email_verified IS NULL AND status <> ?", strings.TrimSpace(body.Email), models.UserStatusDeleted).
		First(&user).Error
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			log.WithError(errFind).Warn("resend verification: find user")
		}
		envelope.Message(c, resendVerificationMessage)
		return
	}
	token, errToken := h.tokens.Create(ctx, tokens.NewIdentifier(tokens.PurposeVerify, user.ID))
	if errToken != nil {
		log.WithError(errToken).Warn("resend verification: create token")
		envelope.Message(c, resendVerificationMessage)
		return
	}
	warnEmail(h.mailer.SendVerification(ctx, user.Email, user.Name, token), mail.TemplateVerification, user.Email)
	envelope.Message(c, resendVerificationMessage)
}

// VerifyToken reports whether a token is valid without consuming it.
func (h *AuthHandler) VerifyToken(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		envelope.Error(c, errs.Validation("", errs.FieldError{Field: "token", Message: "is required"}))
		return
	}
	id, errProbe := h.tokens.Probe(c.Request.Context(), token)
	if errProbe != nil {
		envelope.Error(c, errProbe)
		return
	}
	envelope.OK(c, gin.H{"valid": true, "purpose": id.Purpose})
}

// AcceptInvite consumes an invite token, sets the password and activates the account.
func (h *AuthHandler) AcceptInvite(c *gin.Context) {
	var body tokenPasswordRequest
	if !bindJSON(c, &body) {
		return
	}
	if errWeak := strongPassword(body.Password); errWeak != nil {
		envelope.Error(c, errWeak)
		return
	}
	ctx := c.Request.Context()

	id, errConsume := h.tokens.Consume(ctx, strings.TrimSpace(body.Token), tokens.PurposeInvite)
	if errConsume != nil {
		envelope.Error(c, errConsume)
		return
	}
	var user models.User
	if errFind := h.db.WithContext(ctx).Where("id = ?", id.SubjectID).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			envelope.Error(c, errs.InvalidToken(""))
			return
		}
		envelope.Error(c, errFind)
		return
	}
	// Only invitees still awaiting activation may redeem; admin-set statuses stand.
	if user.Status != models.UserStatusPending {
		envelope.Error(c, errs.InvalidToken(""))
		return
	}

	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		envelope.Error(c, errHash)
		return
	}
	updates := map[string]any{
		"password": hash,
		"status":   models.UserStatusActive,
	}
	if user.EmailVerified == nil {
		updates["email_verified"] = time.Now().UTC()
	}
	res := h.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND status = ?", user.ID, models.UserStatusPending).
		Updates(updates)
	if res.Error != nil {
		envelope.Error(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		envelope.Error(c, errs.InvalidToken(""))
		return
	}
	h.activities.RecordBestEffort(ctx, c.Request, user.ID, models.ActivityPasswordChanged, "Accepted invitation",
		activity.PasswordChangedDetails{TargetUserID: user.ID, Method: activity.PasswordMethodInvite})
	warnEmail(h.mailer.SendWelcome(ctx, user.Email, user.Name), mail.TemplateWelcome, user.Email)
	envelope.Message(c, "Invitation accepted, you can now sign in")
}
