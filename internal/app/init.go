package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/adminpanel/internal/config"
	"github.com/router-for-me/adminpanel/internal/db"
	"github.com/router-for-me/adminpanel/internal/errs"
	"github.com/router-for-me/adminpanel/internal/http/api/admin/permissions"
	"github.com/router-for-me/adminpanel/internal/http/api/envelope"
	"github.com/router-for-me/adminpanel/internal/models"
	"github.com/router-for-me/adminpanel/internal/security"
	"github.com/router-for-me/adminpanel/internal/settings"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// InitRequest contains parameters for initial system setup.
type InitRequest struct {
	DatabaseType     string `json:"databaseType"`
	DatabaseHost     string `json:"databaseHost"`
	DatabasePort     int    `json:"databasePort"`
	DatabaseUser     string `json:"databaseUser"`
	DatabasePassword string `json:"databasePassword"`
	DatabaseName     string `json:"databaseName"`
	DatabasePath     string `json:"databasePath"`
	DatabaseSSLMode  string `json:"databaseSslMode"`
	SiteName         string `json:"siteName"`
	AdminEmail       string `json:"adminEmail" binding:"required,email"`
	AdminName        string `json:"adminName"`
	AdminPassword    string `json:"adminPassword" binding:"required"`
}

// InitStatusResponse reports whether initialization is complete.
type InitStatusResponse struct {
	Initialized bool `json:"initialized"`
}

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// defaultSQLitePath is the default SQLite database file name.
const defaultSQLitePath = "adminpanel.db"

// BuildDSN builds a database DSN from the init request.
func BuildDSN(req InitRequest) (string, error) {
	switch strings.ToLower(strings.TrimSpace(req.DatabaseType)) {
	case "", "sqlite":
		return buildSQLiteDSN(req.DatabasePath), nil
	case "postgres":
		sslMode := req.DatabaseSSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s",
			url.UserPassword(req.DatabaseUser, req.DatabasePassword).String(),
			req.DatabaseHost, req.DatabasePort, req.DatabaseName, url.QueryEscape(sslMode)), nil
	case "mysql":
		return fmt.Sprintf("mysql://%s@%s:%d/%s",
			url.UserPassword(req.DatabaseUser, req.DatabasePassword).String(),
			req.DatabaseHost, req.DatabasePort, req.DatabaseName), nil
	default:
		return "", fmt.Errorf("unsupported database type %q", req.DatabaseType)
	}
}

// buildSQLiteDSN constructs a SQLite DSN with default pragmas.
func buildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join([]string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=foreign_keys(1)",
	}, "&")
}

// TestDatabaseConnection validates that the DSN can connect and ping.
func TestDatabaseConnection(dsn string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	defer func() {
		if errClose := sqlDB.Close(); errClose != nil {
			log.Errorf("sql db close error: %v", errClose)
		}
	}()
	return sqlDB.Ping()
}

// validateInitRequest normalizes and validates init input data.
func validateInitRequest(req *InitRequest) error {
	dbType := strings.ToLower(strings.TrimSpace(req.DatabaseType))
	if dbType == "" {
		dbType = "sqlite"
	}
	req.DatabaseType = dbType

	switch dbType {
	case "postgres", "mysql":
		if strings.TrimSpace(req.DatabaseHost) == "" {
			return errs.Validation("", errs.FieldError{Field: "databaseHost", Message: "is required"})
		}
		if req.DatabasePort <= 0 || req.DatabasePort > 65535 {
			return errs.Validation("", errs.FieldError{Field: "databasePort", Message: "is invalid"})
		}
		if strings.TrimSpace(req.DatabaseUser) == "" {
			return errs.Validation("", errs.FieldError{Field: "databaseUser", Message: "is required"})
		}
		if strings.TrimSpace(req.DatabaseName) == "" {
			return errs.Validation("", errs.FieldError{Field: "databaseName", Message: "is required"})
		}
	case "sqlite":
		if strings.TrimSpace(req.DatabasePath) == "" {
			req.DatabasePath = defaultSQLitePath
		}
	default:
		return errs.Validation("", errs.FieldError{Field: "databaseType", Message: "must be sqlite, postgres or mysql"})
	}

	req.AdminEmail = strings.TrimSpace(req.AdminEmail)
	req.AdminName = strings.TrimSpace(req.AdminName)
	if req.AdminName == "" {
		req.AdminName = "Administrator"
	}
	if !security.IsStrongPassword(req.AdminPassword) {
		return errs.Validation("", errs.FieldError{
			Field:   "adminPassword",
			Message: "must be at least 6 characters and contain an upper case letter, a lower case letter and a digit",
		})
	}
	req.SiteName = strings.TrimSpace(req.SiteName)
	if req.SiteName == "" {
		req.SiteName = settings.DefaultSiteName
	}
	return nil
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	Host        string               `yaml:"host"`
	Port        int                  `yaml:"port"`
	BaseURL     string               `yaml:"base-url"`
	DatabaseDSN string               `yaml:"database-dsn"`
	JWT         jwtCfg               `yaml:"jwt"`
	Cookie      cookieCfg            `yaml:"cookie"`
	Activity    activityCfg          `yaml:"activity"`
	Logging     config.LoggingConfig `yaml:"logging"`
}

type jwtCfg struct {
	Secret string `yaml:"secret"`
	Expiry string `yaml:"expiry"`
}

type cookieCfg struct {
	Name   string `yaml:"name"`
	Secure bool   `yaml:"secure"`
}

type activityCfg struct {
	RetentionDays   int    `yaml:"retention-days"`
	CleanupInterval string `yaml:"cleanup-interval"`
}

// generateJWTSecret creates a random JWT secret string.
func generateJWTSecret() (string, error) {
	secret, err := security.RandomHex(32)
	if err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return secret, nil
}

// WriteConfigFile writes the initial config file to disk.
func WriteConfigFile(configPath string, dsn string, port int) error {
	secret, errSecret := generateJWTSecret()
	if errSecret != nil {
		return errSecret
	}
	cfg := configFile{
		Port:        port,
		BaseURL:     fmt.Sprintf("http://localhost:%d", port),
		DatabaseDSN: dsn,
		JWT:         jwtCfg{Secret: secret, Expiry: "720h"},
		Cookie:      cookieCfg{Name: config.DefaultCookieName},
		Activity:    activityCfg{RetentionDays: config.DefaultRetentionDays, CleanupInterval: "24h"},
		Logging:     config.LoggingConfig{Level: "info"},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if errMkdir := os.MkdirAll(filepath.Dir(configPath), 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}
	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}
	return nil
}

// AdminParams describes the administrator created during setup.
type AdminParams struct {
	Email    string
	Name     string
	Password string
	SiteName string
}

// CreateAdminUser opens dsn, migrates it and creates an administrator.
func CreateAdminUser(dsn string, params AdminParams) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return fmt.Errorf("migrate database: %w", errMigrate)
	}
	return CreateAdminUserWithConn(conn, params)
}

// CreateAdminUserWithConn creates an ACTIVE, verified administrator and, when
// given, stores the site name.
func CreateAdminUserWithConn(conn *gorm.DB, params AdminParams) error {
	if conn == nil {
		return fmt.Errorf("open database: nil connection")
	}
	email := strings.TrimSpace(params.Email)
	if email == "" {
		return fmt.Errorf("admin email is required")
	}
	if !security.IsStrongPassword(params.Password) {
		return fmt.Errorf("admin password must be at least %d characters with upper case, lower case and a digit", security.MinPasswordLength)
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		name = "Administrator"
	}

	var role models.Role
	if errRole := conn.Where("name = ?", permissions.RoleAdmin).First(&role).Error; errRole != nil {
		return fmt.Errorf("load admin role: %w", errRole)
	}
	hash, errHash := security.HashPassword(params.Password)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}

	now := time.Now().UTC()
	user := models.User{
		Email:         email,
		Name:          name,
		Password:      &hash,
		Status:        models.UserStatusActive,
		EmailVerified: &now,
		RoleID:        role.ID,
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		if db.IsDuplicateKey(errCreate) {
			return fmt.Errorf("create admin: email %s is already registered", email)
		}
		return fmt.Errorf("create admin: %w", errCreate)
	}

	if siteName := strings.TrimSpace(params.SiteName); siteName != "" {
		payload, errMarshal := json.Marshal(siteName)
		if errMarshal != nil {
			return fmt.Errorf("marshal site name: %w", errMarshal)
		}
		if _, errSite := settings.NewStore(conn).Set(context.Background(), settings.SiteNameKey, payload); errSite != nil {
			return fmt.Errorf("store site name: %w", errSite)
		}
	}
	log.Infof("created administrator %s", email)
	return nil
}

// ErrInitCompleted signals that initialization finished and the server should restart.
var ErrInitCompleted = errors.New("init completed")

// corsMiddleware enables permissive CORS for the init server.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// newInitRouter builds the setup API served while no config file exists.
// done is called once setup has written the config and created the admin.
func newInitRouter(configPath string, port int, done func()) *gin.Engine {
	envelope.RegisterJSONFieldNames()
	engine := gin.New()
	engine.Use(gin.Recovery(), corsMiddleware())

	engine.GET("/api/init/status", func(c *gin.Context) {
		envelope.OK(c, InitStatusResponse{Initialized: ConfigExists(configPath)})
	})

	engine.POST("/api/init/setup", func(c *gin.Context) {
		if ConfigExists(configPath) {
			envelope.Error(c, errs.InvalidRequest("System already initialized"))
			return
		}
		var req InitRequest
		if errBind := c.ShouldBindJSON(&req); errBind != nil {
			envelope.Error(c, errBind)
			return
		}
		if errValidate := validateInitRequest(&req); errValidate != nil {
			envelope.Error(c, errValidate)
			return
		}
		dsn, errBuild := BuildDSN(req)
		if errBuild != nil {
			envelope.Error(c, errs.InvalidRequest(errBuild.Error()))
			return
		}
		if errTest := TestDatabaseConnection(dsn); errTest != nil {
			log.WithError(errTest).Warn("init: database connection failed")
			envelope.Error(c, errs.InvalidRequest("Database connection failed"))
			return
		}
		if errWrite := WriteConfigFile(configPath, dsn, port); errWrite != nil {
			envelope.Error(c, errWrite)
			return
		}
		errAdmin := CreateAdminUser(dsn, AdminParams{
			Email:    req.AdminEmail,
			Name:     req.AdminName,
			Password: req.AdminPassword,
			SiteName: req.SiteName,
		})
		if errAdmin != nil {
			if errRemove := os.Remove(configPath); errRemove != nil {
				log.Errorf("remove config file error: %v", errRemove)
			}
			envelope.Error(c, errAdmin)
			return
		}
		envelope.Message(c, "Initialization successful")
		if done != nil {
			done()
		}
	})

	engine.NoRoute(func(c *gin.Context) {
		if ConfigExists(configPath) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, envelope.Response{
				Error: &envelope.ErrorBody{Code: errs.CodeInternal, Message: "System initializing, please restart the server"},
			})
			return
		}
		envelope.Error(c, errs.NotFound("Setup is served under /api/init"))
	})
	return engine
}

// RunInitServer serves the setup API until setup completes or ctx is done.
// It returns ErrInitCompleted after a successful setup.
func RunInitServer(ctx context.Context, cfg config.AppConfig, port int) error {
	gin.SetMode(gin.ReleaseMode)
	configPath := config.ResolveConfigPath(cfg.ConfigPath)

	initDone := make(chan struct{})
	engine := newInitRouter(configPath, port, func() {
		go func() {
			time.Sleep(500 * time.Millisecond)
			close(initDone)
		}()
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infof("starting init server on %s (config not found at %s)", srv.Addr, configPath)

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-serveCtx.Done():
		case <-initDone:
			cancel()
		}
	}()
	if errServe := serve(serveCtx, srv); errServe != nil {
		return errServe
	}

	select {
	case <-initDone:
		return ErrInitCompleted
	default:
		return nil
	}
}
