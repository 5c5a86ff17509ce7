package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/router-for-me/adminpanel/internal/app"
	"github.com/router-for-me/adminpanel/internal/config"
	log "github.com/sirupsen/logrus"
)

const defaultPort = 8318

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if errRun := run(ctx, os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		stop()
		os.Exit(1)
	}
}

// run loads .env files and dispatches to a subcommand; serve is the default.
func run(ctx context.Context, args []string) error {
	if errEnv := godotenv.Load(); errEnv != nil && !errors.Is(errEnv, os.ErrNotExist) {
		log.WithError(errEnv).Warn("load .env")
	}

	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		return runServe(ctx, args)
	case "init":
		return runInit(args)
	case "migrate":
		return runMigrate(ctx, args)
	case "create-admin":
		return runCreateAdmin(args)
	case "cleanup":
		return runCleanup(ctx, args)
	default:
		return fmt.Errorf("unknown command %q (expected serve, init, migrate, create-admin or cleanup)", command)
	}
}

// appConfig resolves the config path from the flag or CONFIG_PATH.
func appConfig(cfgPath string) (config.AppConfig, error) {
	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return config.AppConfig{}, err
	}
	if strings.TrimSpace(cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(cfgPath)
	}
	return appCfg, nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", defaultPort, "server port (used for init server and initial config)")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}
	appCfg, err := appConfig(*cfgPath)
	if err != nil {
		return err
	}

	configPath := config.ResolveConfigPath(appCfg.ConfigPath)
	if !app.ConfigExists(configPath) && strings.TrimSpace(os.Getenv(config.EnvDBConnection)) == "" {
		log.Info("config.yaml not found, starting init server...")
		errInit := app.RunInitServer(ctx, appCfg, *port)
		if errors.Is(errInit, app.ErrInitCompleted) {
			log.Info("initialization completed, starting main server...")
			return app.RunServer(ctx, appCfg, *port)
		}
		return errInit
	}
	return app.RunServer(ctx, appCfg, *port)
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path to write (or env CONFIG_PATH)")
	port := fs.Int("port", defaultPort, "server port written to the config")
	dbType := fs.String("db-type", "sqlite", "database type: sqlite, postgres or mysql")
	dbPath := fs.String("db-path", "adminpanel.db", "sqlite database file")
	dbHost := fs.String("db-host", "", "database host")
	dbPort := fs.Int("db-port", 0, "database port")
	dbUser := fs.String("db-user", "", "database user")
	dbPassword := fs.String("db-password", "", "database password")
	dbName := fs.String("db-name", "", "database name")
	dbSSLMode := fs.String("db-sslmode", "", "postgres sslmode")
	siteName := fs.String("site-name", "", "site name used in emails")
	adminEmail := fs.String("admin-email", "", "administrator email")
	adminName := fs.String("admin-name", "", "administrator display name")
	adminPassword := fs.String("admin-password", "", "administrator password")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}
	appCfg, err := appConfig(*cfgPath)
	if err != nil {
		return err
	}
	configPath := config.ResolveConfigPath(appCfg.ConfigPath)
	if app.ConfigExists(configPath) {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	dsn, err := app.BuildDSN(app.InitRequest{
		DatabaseType:     *dbType,
		DatabaseHost:     *dbHost,
		DatabasePort:     *dbPort,
		DatabaseUser:     *dbUser,
		DatabasePassword: *dbPassword,
		DatabaseName:     *dbName,
		DatabasePath:     *dbPath,
		DatabaseSSLMode:  *dbSSLMode,
	})
	if err != nil {
		return err
	}
	if errTest := app.TestDatabaseConnection(dsn); errTest != nil {
		return errTest
	}
	if errWrite := app.WriteConfigFile(configPath, dsn, *port); errWrite != nil {
		return errWrite
	}
	if strings.TrimSpace(*adminEmail) != "" {
		if errAdmin := app.CreateAdminUser(dsn, app.AdminParams{
			Email:    *adminEmail,
			Name:     *adminName,
			Password: *adminPassword,
			SiteName: *siteName,
		}); errAdmin != nil {
			return errAdmin
		}
	}
	log.Infof("wrote %s", configPath)
	return nil
}

func runMigrate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	appCfg, err := appConfig(*cfgPath)
	if err != nil {
		return err
	}
	return app.Migrate(ctx, appCfg)
}

func runCreateAdmin(args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	email := fs.String("email", "", "administrator email")
	name := fs.String("name", "", "administrator display name")
	password := fs.String("password", "", "administrator password (or env ADMIN_PASSWORD)")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	if *password == "" {
		*password = os.Getenv("ADMIN_PASSWORD")
	}
	appCfg, err := appConfig(*cfgPath)
	if err != nil {
		return err
	}
	dsn, err := config.LoadDatabaseDSN(config.ResolveConfigPath(appCfg.ConfigPath))
	if err != nil {
		return err
	}
	return app.CreateAdminUser(dsn, app.AdminParams{Email: *email, Name: *name, Password: *password})
}

func runCleanup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	days := fs.Int("days", 0, "activity retention in days (default from config)")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	appCfg, err := appConfig(*cfgPath)
	if err != nil {
		return err
	}
	result, err := app.Cleanup(ctx, appCfg, *days)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"activities": result.Activities,
		"tokens":     result.Tokens,
		"sessions":   result.Sessions,
	}).Info("cleanup finished")
	return nil
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
