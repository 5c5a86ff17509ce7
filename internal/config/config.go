package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvJWTSecret    = "JWT_SECRET"
	EnvJWTExpiry    = "JWT_EXPIRY"
	EnvBaseURL      = "APP_BASE_URL"
	EnvLogLevel     = "LOG_LEVEL"
	EnvSMTPHost     = "SMTP_HOST"
	EnvSMTPPort     = "SMTP_PORT"
	EnvSMTPUsername = "SMTP_USERNAME"
	EnvSMTPPassword = "SMTP_PASSWORD"
	EnvMailFrom     = "MAIL_FROM"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// readSection unmarshals the config file into out; a missing or invalid file is reported as false.
func readSection(configPath string, out any) bool {
	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		return false
	}
	if errUnmarshal := yaml.Unmarshal(data, out); errUnmarshal != nil {
		return false
	}
	return true
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// defaultJWTExpiry bounds how long a role claim can stay stale after a role change.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	var cfg fileConfig
	if readSection(configPath, &cfg) {
		result = cfg.JWT
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	if strings.TrimSpace(result.Secret) == "" {
		return result, errors.New("missing jwt secret (set `jwt.secret` or JWT_SECRET)")
	}
	return result, nil
}

// ServerConfig holds listener and public URL settings.
type ServerConfig struct {
	Host    string       `yaml:"host"`
	Port    int          `yaml:"port"`
	BaseURL string       `yaml:"base-url"`
	Cookie  CookieConfig `yaml:"cookie"`
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string `yaml:"name"`
	Secure bool   `yaml:"secure"`
}

// DefaultCookieName is the session cookie used when none is configured.
const DefaultCookieName = "session_token"

// LoadServerConfig loads listener settings, falling back to defaultPort.
func LoadServerConfig(configPath string, defaultPort int) ServerConfig {
	var cfg ServerConfig
	readSection(configPath, &cfg)

	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if baseURL := strings.TrimSpace(os.Getenv(EnvBaseURL)); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	cfg.Cookie.Name = strings.TrimSpace(cfg.Cookie.Name)
	if cfg.Cookie.Name == "" {
		cfg.Cookie.Name = DefaultCookieName
	}
	return cfg
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MailConfig holds outbound email settings. An empty Host selects the log-only dispatcher.
type MailConfig struct {
	Host      string  `yaml:"host"`
	Port      int     `yaml:"port"`
	Username  string  `yaml:"username"`
	Password  string  `yaml:"password"`
	From      string  `yaml:"from"`
	PerSecond float64 `yaml:"per-second"`
}

const (
	defaultMailFrom      = "noreply@example.com"
	defaultMailPort      = 587
	defaultMailPerSecond = 5
)

// LoadMailConfig loads the mail section with env overrides.
func LoadMailConfig(configPath string) MailConfig {
	// fileConfig maps the YAML fields needed for mail settings.
	type fileConfig struct {
		Mail MailConfig `yaml:"mail"`
	}
	var cfg fileConfig
	readSection(configPath, &cfg)
	result := cfg.Mail

	if v := strings.TrimSpace(os.Getenv(EnvSMTPHost)); v != "" {
		result.Host = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSMTPPort)); v != "" {
		if port, errParse := strconv.Atoi(v); errParse == nil && port > 0 {
			result.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvSMTPUsername)); v != "" {
		result.Username = v
	}
	if v := os.Getenv(EnvSMTPPassword); v != "" {
		result.Password = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMailFrom)); v != "" {
		result.From = v
	}

	result.Host = strings.TrimSpace(result.Host)
	if result.Port <= 0 {
		result.Port = defaultMailPort
	}
	if strings.TrimSpace(result.From) == "" {
		result.From = defaultMailFrom
	}
	if result.PerSecond <= 0 {
		result.PerSecond = defaultMailPerSecond
	}
	return result
}

// ActivityConfig holds audit log retention settings.
type ActivityConfig struct {
	RetentionDays   int           `yaml:"retention-days"`
	CleanupInterval time.Duration `yaml:"cleanup-interval"`
}

const (
	// DefaultRetentionDays is the audit retention window used by cleanup.
	DefaultRetentionDays   = 90
	defaultCleanupInterval = 24 * time.Hour
)

// LoadActivityConfig loads the activity section. A negative retention disables the janitor.
func LoadActivityConfig(configPath string) ActivityConfig {
	// fileConfig maps the YAML fields needed for activity settings.
	type fileConfig struct {
		Activity ActivityConfig `yaml:"activity"`
	}
	var cfg fileConfig
	readSection(configPath, &cfg)
	result := cfg.Activity
	if result.RetentionDays == 0 {
		result.RetentionDays = DefaultRetentionDays
	}
	if result.CleanupInterval <= 0 {
		result.CleanupInterval = defaultCleanupInterval
	}
	return result
}

// LoggingConfig controls logrus output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// LoadLoggingConfig loads the logging section with env overrides.
func LoadLoggingConfig(configPath string) LoggingConfig {
	// fileConfig maps the YAML fields needed for logging settings.
	type fileConfig struct {
		Logging LoggingConfig `yaml:"logging"`
	}
	var cfg fileConfig
	readSection(configPath, &cfg)
	result := cfg.Logging
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		result.Level = v
	}
	if strings.TrimSpace(result.Level) == "" {
		result.Level = "info"
	}
	return result
}
