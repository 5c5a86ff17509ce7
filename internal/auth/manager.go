// Package auth verifies credentials and manages persisted login sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/router-for-me/adminpanel/internal/activity"
	"github.com/router-for-me/adminpanel/internal/metrics"
	"github.com/router-for-me/adminpanel/internal/models"
	"github.com/router-for-me/adminpanel/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const sessionTokenBytes = 32

var (
	// ErrInvalidCredentials is the single failure returned for every login miss.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrUnauthenticated indicates a missing, invalid, expired or revoked session.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrCurrentSession indicates an attempt to revoke the session making the request.
	ErrCurrentSession = errors.New("auth: cannot revoke current session")
	// ErrSessionNotFound indicates the session does not exist or belongs to someone else.
	ErrSessionNotFound = errors.New("auth: session not found")
)

// Claims identify the caller of an authenticated request.
type Claims struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	SessionID string `json:"-"`
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token   string
	Expires time.Time
	Claims  Claims
}

// SessionView is a session as shown to its owner.
type SessionView struct {
	ID        string    `json:"id"`
	IPAddress *string   `json:"ipAddress"`
	UserAgent *string   `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
	Expires   time.Time `json:"expires"`
	IsCurrent bool      `json:"isCurrent"`
}

// Manager authenticates users and tracks their sessions.
type Manager struct {
	db         *gorm.DB
	signer     *security.Signer
	activities *activity.Service
	now        func() time.Time
}

// NewManager creates a session manager.
func NewManager(db *gorm.DB, signer *security.Signer, activities *activity.Service) *Manager {
	return &Manager{db: db, signer: signer, activities: activities, now: time.Now}
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// burnCompare spends one bcrypt comparison so unknown emails cost the same as wrong passwords.
func burnCompare(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = security.HashPassword("timing-equalizer-password")
	})
	_ = security.VerifyPassword(dummyHash, password)
}

// Authenticate checks credentials. Every failure returns ErrInvalidCredentials.
// On success it stamps lastLogin and records AUTH_LOGIN.
func (m *Manager) Authenticate(ctx context.Context, r *http.Request, email, password string) (Claims, error) {
	conn := m.db.WithContext(ctx)
	var user models.User
	errFind := conn.Preload("Role").Where("email = ?", email).First(&user).Error
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Claims{}, fmt.Errorf("auth: find user: %w", errFind)
		}
		burnCompare(password)
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		return Claims{}, ErrInvalidCredentials
	}
	if !user.HasPassword() {
		burnCompare(password)
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		return Claims{}, ErrInvalidCredentials
	}
	if !security.VerifyPassword(*user.Password, password) || user.Status != models.UserStatusActive {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		return Claims{}, ErrInvalidCredentials
	}

	now := m.now().UTC()
	if errUpdate := conn.Model(&models.User{}).Where("id = ?", user.ID).Update("last_login", now).Error; errUpdate != nil {
		return Claims{}, fmt.Errorf("auth: update last login: %w", errUpdate)
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	m.activities.RecordBestEffort(ctx, r, user.ID, models.ActivityAuthLogin, "Logged in",
		activity.LoginDetails{Provider: "credentials", Success: true})

	var role string
	if user.Role != nil {
		role = user.Role.Name
	}
	return Claims{ID: user.ID, Email: user.Email, Name: user.Name, Role: role}, nil
}

// Login authenticates, persists a session and signs a session token.
// Failed attempts are recorded through RecordFailedLogin.
func (m *Manager) Login(ctx context.Context, r *http.Request, email, password string) (LoginResult, error) {
	claims, errAuth := m.Authenticate(ctx, r, email, password)
	if errAuth != nil {
		if errors.Is(errAuth, ErrInvalidCredentials) {
			if errRecord := m.RecordFailedLogin(ctx, r, email); errRecord != nil {
				log.WithError(errRecord).Warn("auth: record failed login")
			}
		}
		return LoginResult{}, errAuth
	}

	opaque, errRandom := security.RandomHex(sessionTokenBytes)
	if errRandom != nil {
		return LoginResult{}, errRandom
	}
	session := models.Session{
		UserID:       claims.ID,
		SessionToken: opaque,
		Expires:      m.now().UTC().Add(m.signer.TTL()),
	}
	if ip := activity.ClientIP(r); ip != activity.UnknownIP {
		session.IPAddress = &ip
	}
	if ua := activity.UserAgent(r); ua != "" {
		session.UserAgent = &ua
	}
	if errCreate := m.db.WithContext(ctx).Create(&session).Error; errCreate != nil {
		return LoginResult{}, fmt.Errorf("auth: create session: %w", errCreate)
	}

	token, expires, errIssue := m.signer.Issue(claims.ID, claims.Email, claims.Name, claims.Role, session.ID)
	if errIssue != nil {
		return LoginResult{}, errIssue
	}
	claims.SessionID = session.ID
	return LoginResult{Token: token, Expires: expires, Claims: claims}, nil
}

// ValidateToken verifies a session token. The role is taken from the signed claims;
// the referenced session row must still exist and be unexpired.
func (m *Manager) ValidateToken(ctx context.Context, token string) (Claims, error) {
	parsed, errParse := m.signer.Parse(token)
	if errParse != nil || parsed.SessionID == "" {
		return Claims{}, ErrUnauthenticated
	}

	var session models.Session
	errFind := m.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", parsed.SessionID, parsed.UserID()).
		First(&session).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Claims{}, ErrUnauthenticated
		}
		return Claims{}, fmt.Errorf("auth: find session: %w", errFind)
	}
	if session.Expired(m.now()) {
		return Claims{}, ErrUnauthenticated
	}

	return Claims{
		ID:        parsed.UserID(),
		Email:     parsed.Email,
		Name:      parsed.Name,
		Role:      parsed.Role,
		SessionID: parsed.SessionID,
	}, nil
}

// Logout records AUTH_LOGOUT and deletes the caller's session.
func (m *Manager) Logout(ctx context.Context, r *http.Request, claims Claims) error {
	m.activities.RecordBestEffort(ctx, r, claims.ID, models.ActivityAuthLogout, "Logged out",
		activity.LoginDetails{Success: true, SessionID: claims.SessionID})
	if claims.SessionID == "" {
		return nil
	}
	if errDelete := m.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", claims.SessionID, claims.ID).
		Delete(&models.Session{}).Error; errDelete != nil {
		return fmt.Errorf("auth: delete session: %w", errDelete)
	}
	return nil
}

// RecordFailedLogin records AUTH_FAILED when email belongs to a user and is a no-op otherwise.
func (m *Manager) RecordFailedLogin(ctx context.Context, r *http.Request, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}
	var user models.User
	errFind := m.db.WithContext(ctx).Select("id").Where("email = ?", email).First(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("auth: find user: %w", errFind)
	}
	_, errRecord := m.activities.RecordFromRequest(ctx, r, user.ID, models.ActivityAuthFailed, "Failed login attempt",
		activity.FailedLoginDetails{Email: email})
	return errRecord
}

// ListSessions returns the caller's unexpired sessions, newest first.
func (m *Manager) ListSessions(ctx context.Context, claims Claims) ([]SessionView, error) {
	var rows []models.Session
	if errFind := m.db.WithContext(ctx).
		Where("user_id = ? AND expires > ?", claims.ID, m.now().UTC()).
		Order("created_at desc").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("auth: list sessions: %w", errFind)
	}
	out := make([]SessionView, 0, len(rows))
	for _, row := range rows {
		out = append(out, SessionView{
			ID:        row.ID,
			IPAddress: row.IPAddress,
			UserAgent: row.UserAgent,
			CreatedAt: row.CreatedAt,
			Expires:   row.Expires,
			IsCurrent: row.ID == claims.SessionID,
		})
	}
	return out, nil
}

// RevokeSession deletes one of the caller's other sessions.
func (m *Manager) RevokeSession(ctx context.Context, r *http.Request, claims Claims, sessionID string) error {
	if sessionID == claims.SessionID {
		return ErrCurrentSession
	}
	res := m.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, claims.ID).
		Delete(&models.Session{})
	if res.Error != nil {
		return fmt.Errorf("auth: revoke session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	m.activities.RecordBestEffort(ctx, r, claims.ID, models.ActivityUserUpdated, "Revoked session",
		activity.SessionRevokedDetails{SessionID: sessionID})
	return nil
}

// RevokeUserSessions deletes every session of userID, keeping exceptSessionID when set.
func (m *Manager) RevokeUserSessions(ctx context.Context, userID, exceptSessionID string) (int64, error) {
	q := m.db.WithContext(ctx).Where("user_id = ?", userID)
	if exceptSessionID != "" {
		q = q.Where("id <> ?", exceptSessionID)
	}
	res := q.Delete(&models.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("auth: revoke user sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgeExpiredSessions deletes stale session rows.
func (m *Manager) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	res := m.db.WithContext(ctx).Where("expires <= ?", m.now().UTC()).Delete(&models.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("auth: purge sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// TTL returns the session lifetime; role changes take effect for a session within this window.
func (m *Manager) TTL() time.Duration {
	return m.signer.TTL()
}
