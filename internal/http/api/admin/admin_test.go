package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/adminpanel/internal/activity"
	"github.com/router-for-me/adminpanel/internal/auth"
	"github.com/router-for-me/adminpanel/internal/config"
	"github.com/router-for-me/adminpanel/internal/db"
	"github.com/router-for-me/adminpanel/internal/http/api/admin/permissions"
	"github.com/router-for-me/adminpanel/internal/mail"
	"github.com/router-for-me/adminpanel/internal/models"
	"github.com/router-for-me/adminpanel/internal/ratelimit"
	"github.com/router-for-me/adminpanel/internal/security"
	"github.com/router-for-me/adminpanel/internal/settings"
	"github.com/router-for-me/adminpanel/internal/tokens"
	"gorm.io/gorm"
)

const adminPassword = "Admin123"

type sentMail struct {
	template string
	to       string
	token    string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) record(template, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{template: template, to: to, token: token})
	return nil
}

func (m *recordingMailer) SendInvitation(_ context.Context, in mail.InvitationEmail) error {
	return m.record(mail.TemplateInvitation, in.To, in.Token)
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, to, _, token string) error {
	return m.record(mail.TemplatePasswordReset, to, token)
}

func (m *recordingMailer) SendVerification(_ context.Context, to, _, token string) error {
	return m.record(mail.TemplateVerification, to, token)
}

func (m *recordingMailer) SendWelcome(_ context.Context, to, _ string) error {
	return m.record(mail.TemplateWelcome, to, "")
}

func (m *recordingMailer) last(template, to string) (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].template == template && m.sent[i].to == to {
			return m.sent[i], true
		}
	}
	return sentMail{}, false
}

type harness struct {
	router *gin.Engine
	conn   *gorm.DB
	store  *settings.Store
	tokens *tokens.Store
	mailer *recordingMailer
	admin  models.User
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "admin.db"))
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
	store := settings.NewStore(conn)
	if errReload := store.Reload(context.Background()); errReload != nil {
		t.Fatalf("reload settings: %v", errReload)
	}
	activities := activity.NewService(conn)
	limiter := ratelimit.NewManager(ratelimit.StoreProvider(store), nil, nil)
	t.Cleanup(func() { _ = limiter.Close() })

	h := &harness{conn: conn, store: store, tokens: tokens.NewStore(conn), mailer: &recordingMailer{}}
	h.admin = h.seedUser(t, "admin@example.com", adminPassword, permissions.RoleAdmin, models.UserStatusActive)

	h.router = gin.New()
	RegisterRoutes(h.router, Services{
		DB:          conn,
		Auth:        auth.NewManager(conn, signer, activities),
		Activities:  activities,
		Tokens:      h.tokens,
		Mailer:      h.mailer,
		Settings:    store,
		RateLimiter: limiter,
		Cookie:      config.CookieConfig{Name: config.DefaultCookieName},
	})
	return h
}

func (h *harness) seedUser(t *testing.T, email, password, roleName string, status models.UserStatus) models.User {
	t.Helper()
	var role models.Role
	if err := h.conn.Where("name = ?", roleName).First(&role).Error; err != nil {
		t.Fatalf("load role %s: %v", roleName, err)
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := models.User{Email: email, Name: "Seeded " + roleName, Password: &hash, RoleID: role.ID, Status: status}
	if err := h.conn.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func (h *harness) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s %s: %v (body %s)", method, path, err, rec.Body.String())
		}
	}
	return rec, resp
}

func (h *harness) login(t *testing.T, email, password string) string {
	t.Helper()
	rec, resp := h.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected login 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.Token == "" {
		t.Fatalf("expected token in login response, got %s", rec.Body.String())
	}
	return data.Token
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, resp apiResponse, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if resp.Success || resp.Error == nil || resp.Error.Code != code {
		t.Fatalf("expected error code %s, got %s", code, rec.Body.String())
	}
}

func TestLoginSetsCookieAndAuthorizesMe(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": h.admin.Email, "password": adminPassword})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var sessionCookie *http.Cookie
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == config.DefaultCookieName {
			sessionCookie = cookie
		}
	}
	if sessionCookie == nil || !sessionCookie.HttpOnly || sessionCookie.Value == "" {
		t.Fatalf("expected HttpOnly session cookie, got %+v", sessionCookie)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(sessionCookie)
	meRec := httptest.NewRecorder()
	h.router.ServeHTTP(meRec, req)
	if meRec.Code != http.StatusOK {
		t.Fatalf("expected cookie-authenticated me 200, got %d: %s", meRec.Code, meRec.Body.String())
	}
}

func TestLoginWrongPasswordIsGeneric(t *testing.T) {
	h := newHarness(t)

	rec, resp := h.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": h.admin.Email, "password": "nope"})
	expectError(t, rec, resp, http.StatusUnauthorized, "INVALID_CREDENTIALS")

	rec, resp = h.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ghost@example.com", "password": "nope"})
	expectError(t, rec, resp, http.StatusUnauthorized, "INVALID_CREDENTIALS")

	var failed int64
	h.conn.Model(&models.Activity{}).Where("user_id = ? AND type = ?", h.admin.ID, models.ActivityAuthFailed).Count(&failed)
	if failed != 1 {
		t.Fatalf("expected one AUTH_FAILED entry per failed login, got %d", failed)
	}
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	h := newHarness(t)

	rec, resp := h.do(t, http.MethodGet, "/api/auth/me", "", nil)
	expectError(t, rec, resp, http.StatusUnauthorized, "UNAUTHORIZED")

	rec, resp = h.do(t, http.MethodGet, "/api/users", "garbage", nil)
	expectError(t, rec, resp, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestRequireRoleForbidsPlainUsers(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "user@example.com", "User1234", permissions.RoleUser, models.UserStatusActive)
	token := h.login(t, "user@example.com", "User1234")

	rec, resp := h.do(t, http.MethodGet, "/api/users", token, nil)
	expectError(t, rec, resp, http.StatusForbidden, "FORBIDDEN")

	rec, _ = h.do(t, http.MethodGet, "/api/roles", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected roles to be readable by any user, got %d", rec.Code)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, h.admin.Email, adminPassword)

	rec, _ := h.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected logout 200, got %d", rec.Code)
	}
	rec, resp := h.do(t, http.MethodGet, "/api/auth/me", token, nil)
	expectError(t, rec, resp, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestCreateUserWithoutInviteReturnsTemporaryPassword(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, h.admin.Email, adminPassword)
	var role models.Role
	h.conn.Where("name = ?", permissions.RoleUser).First(&role)

	rec, resp := h.do(t, http.MethodPost, "/api/users", token, map[string]any{
		"email":      "new@example.com",
		"name":       "New User",
		"roleId":     role.ID,
		"sendInvite": false,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var data struct {
		User struct {
			Status string `json:"status"`
		} `json:"user"`
		TemporaryPassword string `json:"temporaryPassword"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.TemporaryPassword == "" || data.User.Status != string(models.UserStatusActive) {
		t.Fatalf("expected ACTIVE user with temporary password, got %s", rec.Body.String())
	}
	h.login(t, "new@example.com", data.TemporaryPassword)

	rec, resp = h.do(t, http.MethodPost, "/api/users", token, map[string]any{
		"email":      "new@example.com",
		"name":       "Again",
		"roleId":     role.ID,
		"sendInvite": false,
	})
	expectError(t, rec, resp, http.StatusConflict, "DUPLICATE_ENTRY")
}

func TestInviteAcceptFlow(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, h.admin.Email, adminPassword)
	var role models.Role
	h.conn.Where("name = ?", permissions.RoleUser).First(&role)

	rec, resp := h.do(t, http.MethodPost, "/api/users", token, map[string]any{
		"email":  "invitee@example.com",
		"name":   "Invitee",
		"roleId": role.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if bytes.Contains(resp.Data, []byte("temporaryPassword")) {
		t.Fatalf("expected no temporary password when inviting, got %s", rec.Body.String())
	}
	invite, ok := h.mailer.last(mail.TemplateInvitation, "invitee@example.com")
	if !ok || invite.token == "" {
		t.Fatalf("expected invitation with token, got %+v", h.mailer.sent)
	}

	rec, resp = h.do(t, http.MethodGet, "/api/auth/verify-token?token="+invite.token, "", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(resp.Data, []byte(`"invite"`)) {
		t.Fatalf("expected probe to report invite purpose, got %d: %s", rec.Code, rec.Body.String())
	}

	rec, resp = h.do(t, http.MethodPost, "/api/auth/accept-invite", "", map[string]string{"token": invite.token, "password": "weak"})
	expectError(t, rec, resp, http.StatusBadRequest, "VALIDATION_ERROR")

	rec, _ = h.do(t, http.MethodPost, "/api/auth/accept-invite", "", map[string]string{"token": invite.token, "password": "Welcome1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected accept 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var stored models.User
	h.conn.Where("email = ?", "invitee@example.com").First(&stored)
	if stored.Status != models.UserStatusActive || stored.EmailVerified == nil {
		t.Fatalf("expected active verified user, got %+v", stored)
	}
	h.login(t, "invitee@example.com", "Welcome1")

	rec, resp = h.do(t, http.MethodPost, "/api/auth/accept-invite", "", map[string]string{"token": invite.token, "password": "Welcome1"})
	expectError(t, rec, resp, http.StatusBadRequest, "INVALID_TOKEN")
}

func TestAcceptInviteKeepsSuspendedStatus(t *testing.T) {
	h := newHarness(t)
	invitee := h.seedUser(t, "held@example.com", "Unused123", permissions.RoleUser, models.UserStatusPending)
	inviteToken, err := h.tokens.Create(context.Background(), tokens.NewIdentifier(tokens.PurposeInvite, invitee.ID))
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}
	if errUpdate := h.conn.Model(&models.User{}).Where("id = ?", invitee.ID).Update("status", models.UserStatusSuspended).Error; errUpdate != nil {
		t.Fatalf("suspend: %v", errUpdate)
	}

	rec, resp := h.do(t, http.MethodPost, "/api/auth/accept-invite", "", map[string]string{"token": inviteToken, "password": "Welcome1"})
	expectError(t, rec, resp, http.StatusBadRequest, "INVALID_TOKEN")

	var stored models.User
	h.conn.Where("id = ?", invitee.ID).First(&stored)
	if stored.Status != models.UserStatusSuspended {
		t.Fatalf("expected status to stay SUSPENDED, got %s", stored.Status)
	}
	rec, _ = h.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": invitee.Email, "password": "Welcome1"})
	if rec.Code == http.StatusOK {
		t.Fatalf("expected suspended invitee to be refused login, got 200")
	}
}

func TestStatusChangeRevokesPendingInvite(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, h.admin.Email, adminPassword)
	invitee := h.seedUser(t, "paused@example.com", "Unused123", permissions.RoleUser, models.UserStatusPending)
	inviteToken, err := h.tokens.Create(context.Background(), tokens.NewIdentifier(tokens.PurposeInvite, invitee.ID))
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}

	rec, _ := h.do(t, http.MethodPatch, "/api/users/"+invitee.ID, token, map[string]string{"status": string(models.UserStatusInactive)})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected patch 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec, resp := h.do(t, http.MethodGet, "/api/auth/verify-token?token="+inviteToken, "", nil)
	expectError(t, rec, resp, http.StatusBadRequest, "INVALID_TOKEN")
}

func TestPasswordResetRevokesSessions(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, h.admin.Email, adminPassword)

	rec, resp := h.do(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "ghost@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected generic 200 for unknown email, got %d", rec.Code)
	}
	unknownMessage := string(resp.Data)

	rec, resp = h.do(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": h.admin.Email})
	if rec.Code != http.StatusOK || string(resp.Data) != unknownMessage {
		t.Fatalf("expected identical response for known email, got %s", rec.Body.String())
	}
	reset, ok := h.mailer.last(mail.TemplatePasswordReset, h.admin.Email)
	if !ok || reset.token == "" {
		t.Fatalf("expected reset email")
	}

	rec, resp = h.do(t, http.MethodPost, "/api/auth/reset-password", "", map[string]string{"token": reset.token, "password": "alllowercase1"})
	expectError(t, rec, resp, http.StatusBadRequest, "VALIDATION_ERROR")

	rec, _ = h.do(t, http.MethodPost, "/api/auth/reset-password", "", map[string]string{"token": reset.token, "password": "Changed1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected reset 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec, resp = h.do(t, http.MethodGet, "/api/auth/me", token, nil)
	expectError(t, rec, resp, http.StatusUnauthorized, "UNAUTHORIZED")
	h.login(t, h.admin.Email, "Changed1")

	var count int64
	h.conn.Model(&models.Activity{}).Where("user_id = ? AND type = ?", h.admin.ID, models.ActivityPasswordReset).Count(&count)
	if count != 1 {
		t.Fatalf("expected one PASSWORD_RESET activity, got %d", count)
	}
}

func TestVerifyEmailActivatesPendingUser(t *testing.T) {
	h := newHarness(t)
	pending := h.seedUser(t, "pending@example.com", "Pending1", permissions.RoleUser, models.UserStatusPending)

	rec, _ := h.do(t, http.MethodPost, "/api/auth/resend-verification", "", map[string]string{"email": pending.Email})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	verify, ok := h.mailer.last(mail.TemplateVerification, pending.Email)
	if !ok {
		t.Fatalf("expected verification email")
	}

	rec, resp := h.do(t, http.MethodGet, "/api/auth/verify-email?token="+verify.token, "", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(resp.Data, []byte("userName")) {
		t.Fatalf("expected verify 200 with userName, got %d: %s", rec.Code, rec.Body.String())
	}
	var stored models.User
	h.conn.First(&stored, "id = ?", pending.ID)
	if stored.Status != models.UserStatusActive || stored.EmailVerified == nil {
		t.Fatalf("expected activated user, got %+v", stored)
	}
	if _, okWelcome := h.mailer.last(mail.TemplateWelcome, pending.Email); !okWelcome {
		t.Fatalf("expected welcome email")
	}
}

func TestVerifyTokenRejectsUnknownToken(t *testing.T) {
	h := newHarness(t)

	rec, resp := h.do(t, http.MethodGet, "/api/auth/verify-token?token=deadbeef", "", nil)
	expectError(t, rec, resp, http.StatusBadRequest, "INVALID_TOKEN")

	rec, resp = h.do(t, http.MethodGet, "/api/auth/verify-token", "", nil)
	expectError(t, rec, resp, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestRevokeCurrentSessionIsRejected(t *testing.T) {
	h := newHarness(t)
	first := h.login(t, h.admin.Email, adminPassword)
	second := h.login(t, h.admin.Email, adminPassword)

	rec, resp := h.do(t, http.MethodGet, "/api/auth/sessions", first, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var sessions []auth.SessionView
	if err := json.Unmarshal(resp.Data, &sessions); err != nil || len(sessions) != 2 {
		t.Fatalf("expected two sessions, got %s", rec.Body.String())
	}
	var current, other string
	for _, s := range sessions {
		if s.IsCurrent {
			current = s.ID
		} else {
			other = s.ID
		}
	}

	rec, resp = h.do(t, http.MethodDelete, "/api/auth/sessions/"+current, first, nil)
	expectError(t, rec, resp, http.StatusBadRequest, "INVALID_REQUEST")

	rec, _ = h.do(t, http.MethodDelete, "/api/auth/sessions/"+other, first, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected revoke 200, got %d", rec.Code)
	}
	rec, resp = h.do(t, http.MethodGet, "/api/auth/me", second, nil)
	expectError(t, rec, resp, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestLoginRateLimited(t *testing.T) {
	h := newHarness(t)
	if _, err := h.store.Set(context.Background(), settings.AuthRateLimitKey, json.RawMessage("2")); err != nil {
		t.Fatalf("set limit: %v", err)
	}

	body := map[string]string{"email": h.admin.Email, "password": "wrong"}
	for i := 0; i < 2; i++ {
		rec, _ := h.do(t, http.MethodPost, "/api/auth/login", "", body)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected attempt %d to reach the handler, got %d", i+1, rec.Code)
		}
	}
	rec, resp := h.do(t, http.MethodPost, "/api/auth/login", "", body)
	expectError(t, rec, resp, http.StatusTooManyRequests, "RATE_LIMITED")
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestSettingsCRUD(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, h.admin.Email, adminPassword)

	rec, resp := h.do(t, http.MethodPost, "/api/settings", token, map[string]any{"key": settings.SiteNameKey, "value": "Other"})
	expectError(t, rec, resp, http.StatusConflict, "DUPLICATE_ENTRY")

	rec, resp = h.do(t, http.MethodPut, "/api/settings/MISSING", token, map[string]any{"value": 1})
	expectError(t, rec, resp, http.StatusNotFound, "NOT_FOUND")

	rec, resp = h.do(t, http.MethodPut, "/api/settings/"+settings.AuthRateLimitKey, token, map[string]any{"value": -1})
	expectError(t, rec, resp, http.StatusBadRequest, "VALIDATION_ERROR")

	rec, _ = h.do(t, http.MethodPut, "/api/settings/"+settings.SiteNameKey, token, map[string]any{"value": "Renamed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected update 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := h.store.SiteName(); got != "Renamed" {
		t.Fatalf("expected snapshot to refresh, got %q", got)
	}

	rec, _ = h.do(t, http.MethodDelete, "/api/settings/"+settings.SiteNameKey, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := h.store.SiteName(); got != settings.DefaultSiteName {
		t.Fatalf("expected default site name after delete, got %q", got)
	}
}

func TestDashboardStats(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "gone@example.com", "Gone1234", permissions.RoleUser, models.UserStatusDeleted)
	token := h.login(t, h.admin.Email, adminPassword)

	rec, resp := h.do(t, http.MethodGet, "/api/dashboard/stats", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var data struct {
		TotalUsers     int64 `json:"totalUsers"`
		NewUsersToday  int64 `json:"newUsersToday"`
		UserGrowthData []struct {
			Date  string `json:"date"`
			Users int64  `json:"users"`
		} `json:"userGrowthData"`
		ActivityTrend []activity.DayCount `json:"activityTrend"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.TotalUsers != 1 || data.NewUsersToday != 1 {
		t.Fatalf("expected deleted users to be excluded, got %+v", data)
	}
	if len(data.UserGrowthData) != 7 || len(data.ActivityTrend) != 7 {
		t.Fatalf("expected 7-day series, got %d and %d", len(data.UserGrowthData), len(data.ActivityTrend))
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
