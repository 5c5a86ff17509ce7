package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/adminpanel/internal/activity"
	"github.com/router-for-me/adminpanel/internal/db"
	"github.com/router-for-me/adminpanel/internal/http/api/admin/permissions"
	"github.com/router-for-me/adminpanel/internal/models"
	"github.com/router-for-me/adminpanel/internal/security"
	"gorm.io/gorm"
)

func newTestManager(t *testing.T) (*Manager, *gorm.DB) {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	signer, err := security.NewSigner("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return NewManager(conn, signer, activity.NewService(conn)), conn
}

func seedUser(t *testing.T, conn *gorm.DB, email, password string, status models.UserStatus) models.User {
	t.Helper()
	var role models.Role
	if err := conn.Where("name = ?", permissions.RoleAdmin).First(&role).Error; err != nil {
		t.Fatalf("load role: %v", err)
	}
	user := models.User{Email: email, Name: "Test User", RoleID: role.ID, Status: status}
	if password != "" {
		hash, err := security.HashPassword(password)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		user.Password = &hash
	}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func countActivities(t *testing.T, conn *gorm.DB, userID string, activityType models.ActivityType) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&models.Activity{}).Where("user_id = ? AND type = ?", userID, activityType).Count(&count).Error; err != nil {
		t.Fatalf("count activities: %v", err)
	}
	return count
}

func TestAuthenticateSuccess(t *testing.T) {
	manager, conn := newTestManager(t)
	user := seedUser(t, conn, "alice@example.com", "Secret123", models.UserStatusActive)

	claims, err := manager.Authenticate(context.Background(), nil, "alice@example.com", "Secret123")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if claims.ID != user.ID || claims.Role != permissions.RoleAdmin || claims.Email != user.Email {
		t.Fatalf("unexpected claims %+v", claims)
	}

	var stored models.User
	conn.First(&stored, "id = ?", user.ID)
	if stored.LastLogin == nil {
		t.Fatalf("expected lastLogin to be set")
	}
	if got := countActivities(t, conn, user.ID, models.ActivityAuthLogin); got != 1 {
		t.Fatalf("expected 1 AUTH_LOGIN, got %d", got)
	}
}

func TestAuthenticateFailuresAreIdentical(t *testing.T) {
	manager, conn := newTestManager(t)
	seedUser(t, conn, "alice@example.com", "Secret123", models.UserStatusActive)
	seedUser(t, conn, "pending@example.com", "Secret123", models.UserStatusPending)
	seedUser(t, conn, "external@example.com", "", models.UserStatusActive)
	ctx := context.Background()

	_, errWrong := manager.Authenticate(ctx, nil, "alice@example.com", "wrong")
	_, errMissing := manager.Authenticate(ctx, nil, "nobody@example.com", "Secret123")
	_, errPending := manager.Authenticate(ctx, nil, "pending@example.com", "Secret123")
	_, errNoHash := manager.Authenticate(ctx, nil, "external@example.com", "anything")
	_, errCase := manager.Authenticate(ctx, nil, "ALICE@example.com", "Secret123")

	for name, err := range map[string]error{
		"wrong password": errWrong,
		"unknown email":  errMissing,
		"pending user":   errPending,
		"no hash":        errNoHash,
		"email case":     errCase,
	} {
		if err != ErrInvalidCredentials {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", name, err)
		}
	}
}

func TestLoginIssuesValidSession(t *testing.T) {
	manager, conn := newTestManager(t)
	user := seedUser(t, conn, "bob@example.com", "Secret123", models.UserStatusActive)

	req := httptest.NewRequest("POST", "/api/auth/login", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	req.Header.Set("User-Agent", "browser")

	result, err := manager.Login(context.Background(), req, "bob@example.com", "Secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Token == "" || result.Claims.SessionID == "" {
		t.Fatalf("expected token and session id, got %+v", result)
	}

	claims, err := manager.ValidateToken(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.ID != user.ID || claims.Role != permissions.RoleAdmin || claims.SessionID != result.Claims.SessionID {
		t.Fatalf("unexpected claims %+v", claims)
	}

	var session models.Session
	if errFind := conn.First(&session, "id = ?", claims.SessionID).Error; errFind != nil {
		t.Fatalf("load session: %v", errFind)
	}
	if session.IPAddress == nil || *session.IPAddress != "10.0.0.1" {
		t.Fatalf("expected session ip 10.0.0.1, got %v", session.IPAddress)
	}
}

func TestLoginFailureRecordsAuthFailed(t *testing.T) {
	manager, conn := newTestManager(t)
	user := seedUser(t, conn, "carol@example.com", "Secret123", models.UserStatusActive)

	if _, err := manager.Login(context.Background(), nil, "carol@example.com", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := countActivities(t, conn, user.ID, models.ActivityAuthFailed); got != 1 {
		t.Fatalf("expected 1 AUTH_FAILED, got %d", got)
	}
}

func TestRecordFailedLoginUnknownEmailIsNoop(t *testing.T) {
	manager, conn := newTestManager(t)
	if err := manager.RecordFailedLogin(context.Background(), nil, "ghost@example.com"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	var count int64
	conn.Model(&models.Activity{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no activity for unknown email, got %d", count)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	manager, conn := newTestManager(t)
	user := seedUser(t, conn, "dave@example.com", "Secret123", models.UserStatusActive)
	ctx := context.Background()

	result, err := manager.Login(ctx, nil, "dave@example.com", "Secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if errLogout := manager.Logout(ctx, nil, result.Claims); errLogout != nil {
		t.Fatalf("logout: %v", errLogout)
	}
	if _, errValidate := manager.ValidateToken(ctx, result.Token); !errors.Is(errValidate, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after logout, got %v", errValidate)
	}
	if got := countActivities(t, conn, user.ID, models.ActivityAuthLogout); got != 1 {
		t.Fatalf("expected 1 AUTH_LOGOUT, got %d", got)
	}
}

func TestValidateTokenRejectsExpiredSession(t *testing.T) {
	manager, conn := newTestManager(t)
	seedUser(t, conn, "erin@example.com", "Secret123", models.UserStatusActive)
	ctx := context.Background()

	result, err := manager.Login(ctx, nil, "erin@example.com", "Secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if errUpdate := conn.Model(&models.Session{}).Where("id = ?", result.Claims.SessionID).
		Update("expires", time.Now().UTC().Add(-time.Minute)).Error; errUpdate != nil {
		t.Fatalf("expire session: %v", errUpdate)
	}
	if _, errValidate := manager.ValidateToken(ctx, result.Token); !errors.Is(errValidate, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", errValidate)
	}
	if _, errGarbage := manager.ValidateToken(ctx, "not-a-jwt"); !errors.Is(errGarbage, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for garbage, got %v", errGarbage)
	}
}

func TestListAndRevokeSessions(t *testing.T) {
	manager, conn := newTestManager(t)
	user := seedUser(t, conn, "frank@example.com", "Secret123", models.UserStatusActive)
	other := seedUser(t, conn, "grace@example.com", "Secret123", models.UserStatusActive)
	ctx := context.Background()

	current, err := manager.Login(ctx, nil, user.Email, "Secret123")
	if err != nil {
		t.Fatalf("login current: %v", err)
	}
	second, err := manager.Login(ctx, nil, user.Email, "Secret123")
	if err != nil {
		t.Fatalf("login second: %v", err)
	}
	foreign, err := manager.Login(ctx, nil, other.Email, "Secret123")
	if err != nil {
		t.Fatalf("login foreign: %v", err)
	}
	stale := models.Session{UserID: user.ID, SessionToken: "stale-token", Expires: time.Now().UTC().Add(-time.Hour)}
	if errCreate := conn.Create(&stale).Error; errCreate != nil {
		t.Fatalf("create stale: %v", errCreate)
	}

	sessions, err := manager.ListSessions(ctx, current.Claims)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 live sessions, got %d", len(sessions))
	}
	currentCount := 0
	for _, session := range sessions {
		if session.IsCurrent {
			currentCount++
			if session.ID != current.Claims.SessionID {
				t.Fatalf("wrong session marked current")
			}
		}
	}
	if currentCount != 1 {
		t.Fatalf("expected exactly one current session, got %d", currentCount)
	}

	if errSelf := manager.RevokeSession(ctx, nil, current.Claims, current.Claims.SessionID); !errors.Is(errSelf, ErrCurrentSession) {
		t.Fatalf("expected ErrCurrentSession, got %v", errSelf)
	}
	if errForeign := manager.RevokeSession(ctx, nil, current.Claims, foreign.Claims.SessionID); !errors.Is(errForeign, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for another user's session, got %v", errForeign)
	}
	if errRevoke := manager.RevokeSession(ctx, nil, current.Claims, second.Claims.SessionID); errRevoke != nil {
		t.Fatalf("revoke: %v", errRevoke)
	}
	if _, errValidate := manager.ValidateToken(ctx, second.Token); !errors.Is(errValidate, ErrUnauthenticated) {
		t.Fatalf("expected revoked token to be rejected, got %v", errValidate)
	}
	if _, errValidate := manager.ValidateToken(ctx, current.Token); errValidate != nil {
		t.Fatalf("expected current token to stay valid, got %v", errValidate)
	}

	purged, err := manager.PurgeExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged session, got %d", purged)
	}
}
