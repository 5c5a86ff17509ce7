package activity

import (
	"encoding/json"
	"errors"

	"gorm.io/datatypes"
)

// ErrNoDetails is returned when decoding an activity that carries no details.
var ErrNoDetails = errors.New("activity: no details")

// FieldChange records one field transition in an update.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// UserCreatedDetails accompanies USER_CREATED.
type UserCreatedDetails struct {
	CreatedUserID string `json:"createdUserId"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role,omitempty"`
	InviteSent    bool   `json:"inviteSent"`
}

// UserUpdatedDetails accompanies USER_UPDATED for admin edits.
type UserUpdatedDetails struct {
	UpdatedUserID string                 `json:"updatedUserId"`
	Changes       map[string]FieldChange `json:"changes"`
}

// UserDeletedDetails accompanies USER_DELETED.
type UserDeletedDetails struct {
	DeletedUserID string `json:"deletedUserId"`
	Email         string `json:"email,omitempty"`
}

// PasswordChangedDetails accompanies PASSWORD_CHANGED.
type PasswordChangedDetails struct {
	TargetUserID string `json:"targetUserId"`
	Method       string `json:"method"`
}

// Password change methods.
const (
	PasswordMethodSelf   = "self"
	PasswordMethodAdmin  = "admin"
	PasswordMethodReset  = "reset"
	PasswordMethodInvite = "invite"
)

// PasswordResetDetails accompanies PASSWORD_RESET when a reset email is issued.
type PasswordResetDetails struct {
	Email string `json:"email"`
}

// RoleChangedDetails accompanies ROLE_CHANGED.
type RoleChangedDetails struct {
	UserID  string `json:"userId"`
	OldRole string `json:"oldRole"`
	NewRole string `json:"newRole"`
}

// LoginDetails accompanies AUTH_LOGIN and AUTH_LOGOUT.
type LoginDetails struct {
	Provider  string `json:"provider,omitempty"`
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId,omitempty"`
}

// FailedLoginDetails accompanies AUTH_FAILED.
type FailedLoginDetails struct {
	Email string `json:"email"`
}

// SessionRevokedDetails accompanies USER_UPDATED when a session is revoked.
type SessionRevokedDetails struct {
	SessionID string `json:"sessionId"`
}

// ProfileUpdatedDetails accompanies USER_UPDATED for self-service profile edits.
type ProfileUpdatedDetails struct {
	UpdatedFields []string `json:"updatedFields"`
}

// EmailVerifiedDetails accompanies USER_UPDATED when an address is verified.
type EmailVerifiedDetails struct {
	Email     string `json:"email"`
	Activated bool   `json:"activated"`
}

// DecodeDetails decodes a stored details payload into the expected shape.
func DecodeDetails[T any](raw datatypes.JSON) (T, error) {
	var out T
	if len(raw) == 0 || string(raw) == "null" {
		return out, ErrNoDetails
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}
