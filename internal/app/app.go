// Package app boots the admin panel server and its one-shot maintenance commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/adminpanel/internal/activity"
	"github.com/router-for-me/adminpanel/internal/auth"
	"github.com/router-for-me/adminpanel/internal/config"
	"github.com/router-for-me/adminpanel/internal/db"
	"github.com/router-for-me/adminpanel/internal/http/api/admin"
	"github.com/router-for-me/adminpanel/internal/mail"
	"github.com/router-for-me/adminpanel/internal/ratelimit"
	"github.com/router-for-me/adminpanel/internal/security"
	"github.com/router-for-me/adminpanel/internal/settings"
	"github.com/router-for-me/adminpanel/internal/tokens"
	"github.com/router-for-me/adminpanel/internal/watcher"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// openDatabase resolves the DSN, connects and migrates.
func openDatabase(configPath string) (*gorm.DB, error) {
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return nil, err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return nil, errMigrate
	}
	return conn, nil
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	ConfigureLogging(config.LoadLoggingConfig(configPath))
	if _, err := openDatabase(configPath); err != nil {
		return err
	}
	log.Info("database migrated")
	return nil
}

// RunServer boots the admin API and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	ConfigureLogging(config.LoadLoggingConfig(configPath))

	conn, err := openDatabase(configPath)
	if err != nil {
		return err
	}
	jwtCfg, err := config.LoadJWTConfig(configPath)
	if err != nil {
		return err
	}
	signer, err := security.NewSigner(jwtCfg.Secret, jwtCfg.Expiry)
	if err != nil {
		return err
	}
	serverCfg := config.LoadServerConfig(configPath, defaultPort)
	mailCfg := config.LoadMailConfig(configPath)
	activityCfg := config.LoadActivityConfig(configPath)

	initialized, errInit := HasAdminInitialized(conn)
	if errInit != nil {
		return errInit
	}
	if !initialized {
		log.Warn("no admin account exists yet; run `adminpanel create-admin` to add one")
	}

	store := settings.NewStore(conn)
	if errReload := store.Reload(ctx); errReload != nil {
		return errReload
	}
	settingsWatcher := watcher.NewSettingsWatcher(conn, store, 0)
	settingsWatcher.Start(ctx)
	defer settingsWatcher.Stop()

	limiter := ratelimit.NewManager(ratelimit.StoreProvider(store), nil, nil)
	defer func() {
		if errClose := limiter.Close(); errClose != nil {
			log.WithError(errClose).Warn("close rate limiter")
		}
	}()

	mailer, err := mail.NewMailer(mail.NewDispatcher(mailCfg), serverCfg.BaseURL, mailCfg.PerSecond, store.SiteName)
	if err != nil {
		return err
	}

	activities := activity.NewService(conn)
	sessions := auth.NewManager(conn, signer, activities)
	tokenStore := tokens.NewStore(conn)

	activity.NewJanitor(activities, activityCfg.RetentionDays, activityCfg.CleanupInterval).
		WithSweepers(
			activity.Sweeper{Name: "verification_tokens", Run: tokenStore.DeleteExpired},
			activity.Sweeper{Name: "sessions", Run: sessions.PurgeExpiredSessions},
		).
		Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	admin.RegisterRoutes(engine, admin.Services{
		DB:          conn,
		Auth:        sessions,
		Activities:  activities,
		Tokens:      tokenStore,
		Mailer:      mailer,
		Settings:    store,
		RateLimiter: limiter,
		Cookie:      serverCfg.Cookie,
	})

	srv := &http.Server{
		Addr:              serverCfg.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infof("starting admin panel on %s (config=%s)", srv.Addr, configPath)
	return serve(ctx, srv)
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
			errCh <- errListen
		}
		close(errCh)
	}()

	select {
	case errListen, ok := <-errCh:
		if ok {
			return errListen
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("server shutdown: %w", errShutdown)
	}
	log.Info("server stopped")
	return nil
}

// CleanupResult reports what a cleanup run removed.
type CleanupResult struct {
	Activities int64
	Tokens     int64
	Sessions   int64
}

// Cleanup removes activities older than retentionDays plus expired tokens and sessions.
// A non-positive retentionDays uses the configured retention.
func Cleanup(ctx context.Context, cfg config.AppConfig, retentionDays int) (CleanupResult, error) {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	ConfigureLogging(config.LoadLoggingConfig(configPath))
	if retentionDays <= 0 {
		retentionDays = config.LoadActivityConfig(configPath).RetentionDays
	}
	conn, err := openDatabase(configPath)
	if err != nil {
		return CleanupResult{}, err
	}
	return runCleanup(ctx, conn, retentionDays)
}

func runCleanup(ctx context.Context, conn *gorm.DB, retentionDays int) (CleanupResult, error) {
	var result CleanupResult
	var err error
	if retentionDays > 0 {
		if result.Activities, err = activity.NewService(conn).Cleanup(ctx, retentionDays); err != nil {
			return result, err
		}
	}
	if result.Tokens, err = tokens.NewStore(conn).DeleteExpired(ctx); err != nil {
		return result, err
	}
	if result.Sessions, err = auth.NewManager(conn, nil, nil).PurgeExpiredSessions(ctx); err != nil {
		return result, err
	}
	return result, nil
}
