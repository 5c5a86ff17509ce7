package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/adminpanel/internal/config"
	"github.com/router-for-me/adminpanel/internal/db"
)

func TestBuildDSN(t *testing.T) {
	dsn, err := BuildDSN(InitRequest{DatabaseType: "postgres", DatabaseHost: "db", DatabasePort: 5432, DatabaseUser: "app", DatabasePassword: "p@ss", DatabaseName: "panel"})
	if err != nil {
		t.Fatalf("BuildDSN postgres: %v", err)
	}
	if dsn != "postgres://app:p%40ss@db:5432/panel?sslmode=disable" {
		t.Fatalf("unexpected postgres dsn %q", dsn)
	}

	dsn, err = BuildDSN(InitRequest{DatabaseType: "mysql", DatabaseHost: "db", DatabasePort: 3306, DatabaseUser: "app", DatabasePassword: "pw", DatabaseName: "panel"})
	if err != nil {
		t.Fatalf("BuildDSN mysql: %v", err)
	}
	if _, errConvert := db.MySQLDSNFromURL(dsn); errConvert != nil {
		t.Fatalf("expected mysql dsn %q to convert: %v", dsn, errConvert)
	}

	dsn, err = BuildDSN(InitRequest{DatabaseType: "sqlite", DatabasePath: "data/panel.db"})
	if err != nil {
		t.Fatalf("BuildDSN sqlite: %v", err)
	}
	if !strings.HasPrefix(dsn, "file:data/panel.db?") {
		t.Fatalf("unexpected sqlite dsn %q", dsn)
	}

	if _, errUnknown := BuildDSN(InitRequest{DatabaseType: "oracle"}); errUnknown == nil {
		t.Fatalf("expected unsupported database type to fail")
	}
}

func TestWriteConfigFileRoundTrips(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteConfigFile(configPath, "file:panel.db", 9000); err != nil {
		t.Fatalf("WriteConfigFile: %v", err)
	}
	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("expected mode 0600, got %v", info.Mode().Perm())
	}

	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil || dsn != "file:panel.db" {
		t.Fatalf("expected dsn file:panel.db, got %q (%v)", dsn, err)
	}
	jwtCfg, err := config.LoadJWTConfig(configPath)
	if err != nil || len(jwtCfg.Secret) != 64 {
		t.Fatalf("expected generated 64-char secret, got %q (%v)", jwtCfg.Secret, err)
	}
	if server := config.LoadServerConfig(configPath, 1); server.Port != 9000 {
		t.Fatalf("expected port 9000, got %d", server.Port)
	}
}

func TestInitRouterSetup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	done := false
	router := newInitRouter(configPath, 8318, func() { done = true })

	post := func(body map[string]any) *httptest.ResponseRecorder {
		payload, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/api/init/setup", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := post(map[string]any{"databaseType": "sqlite", "databasePath": filepath.Join(dir, "panel.db"), "adminEmail": "root@example.com", "adminPassword": "weak"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected weak password to be rejected, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = post(map[string]any{"databaseType": "sqlite", "databasePath": filepath.Join(dir, "panel.db"), "adminEmail": "root@example.com", "adminPassword": "Admin123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected setup 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !done || !ConfigExists(configPath) {
		t.Fatalf("expected config to be written and done to fire")
	}

	conn, err := db.Open(buildSQLiteDSN(filepath.Join(dir, "panel.db")))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	initialized, err := HasAdminInitialized(conn)
	if err != nil || !initialized {
		t.Fatalf("expected admin to exist, got %v (%v)", initialized, err)
	}

	rec = post(map[string]any{"adminEmail": "other@example.com", "adminPassword": "Admin123"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected second setup to be rejected, got %d", rec.Code)
	}
}

func TestRunCleanupRemovesExpiredRows(t *testing.T) {
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "cleanup.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	result, err := runCleanup(context.Background(), conn, 30)
	if err != nil {
		t.Fatalf("runCleanup: %v", err)
	}
	if result.Activities != 0 || result.Tokens != 0 || result.Sessions != 0 {
		t.Fatalf("expected nothing to clean on an empty database, got %+v", result)
	}
}
