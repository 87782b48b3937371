// Package app provides the application initialization and lifecycle management
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/notesync/internal/config"
	"github.com/tildaslashalef/notesync/internal/database"
	"github.com/tildaslashalef/notesync/internal/loggy"
	"github.com/tildaslashalef/notesync/internal/notion"
	"github.com/tildaslashalef/notesync/internal/sync"
	"github.com/tildaslashalef/notesync/internal/vault"
)

// App represents the application instance with its dependencies
type App struct {
	Config   *config.Config
	Settings *config.SettingsService
	SyncLogs sync.Repository
	Vault    *vault.Repository
	Logger   *loggy.Logger
}

// New initializes a new application instance with all its dependencies
func New() (*App, error) {
	cfg, err := initConfig()
	if err != nil {
		return nil, err
	}

	if err := initLogger(cfg); err != nil {
		return nil, err
	}

	loggy.Info("Application initializing",
		"version", os.Getenv("VERSION"),
		"log_level", cfg.Logging.Level,
		"vault", cfg.Vault.Path,
	)

	if err := database.InitDB(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Keep the schema current so a fresh install works without init
	if err := database.RunMigrations(); err != nil {
		return nil, err
	}

	db, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	app, err := initServices(cfg, db)
	if err != nil {
		return nil, err
	}

	loggy.Info("Application initialized successfully")
	return app, nil
}

// initConfig loads and sets up the application configuration
func initConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv("", "", false)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	config.Set(cfg)
	return cfg, nil
}

// initLogger initializes the logging system
func initLogger(cfg *config.Config) error {
	err := loggy.Init(loggy.Config{
		Level:      config.ParseLogLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// initServices initializes all application services
func initServices(cfg *config.Config, db *sql.DB) (*App, error) {
	logger := loggy.GetGlobalLogger()

	settingsService := config.NewSettingsService(db, cfg, logger)
	if err := settingsService.Load(context.Background()); err != nil {
		loggy.Warn("Failed to load sync settings from database", "error", err)
		// Continue anyway, using defaults
	}

	return &App{
		Config:   cfg,
		Settings: settingsService,
		SyncLogs: sync.NewSQLRepository(db, logger),
		Vault:    vault.NewOSRepository(cfg.Vault.Path, cfg.Vault.ExportRecursive),
		Logger:   logger,
	}, nil
}

// NewRemote builds the remote repository from the current settings
func (app *App) NewRemote() (*notion.Repository, error) {
	settings := app.Settings.Settings()

	client, err := notion.NewClient(notion.ClientConfig{
		BaseURL:           app.Config.Notion.BaseURL,
		APIVersion:        app.Config.Notion.APIVersion,
		Token:             settings.Token,
		Proxy:             settings.Proxy,
		Timeout:           app.Config.Notion.Timeout,
		RequestsPerSecond: app.Config.Notion.RequestsPerSecond,
		BurstLimit:        app.Config.Notion.BurstLimit,
	}, app.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating notion client: %w", err)
	}

	return notion.NewRepository(client, app.Config.Notion.TitleProperty, app.Config.Notion.TagsProperty, app.Logger), nil
}

// NewSyncService wires a sync service over the current settings. Every
// pass and item outcome is persisted as a sync log.
func (app *App) NewSyncService(opts ...sync.Option) (*sync.Service, error) {
	remote, err := app.NewRemote()
	if err != nil {
		return nil, err
	}

	base := []sync.Option{
		sync.WithLogger(app.Logger),
		sync.WithConcurrency(app.Config.Sync.Concurrency),
		sync.WithImportBuffer(app.Config.Sync.ImportBuffer),
		sync.WithRetry(app.Config.Notion.MaxRetries),
		sync.WithObservers(sync.NewLogObserver(app.SyncLogs, app.Logger)),
	}

	return sync.NewService(app.Settings, app.Settings, remote, app.Vault, append(base, opts...)...), nil
}

// Shutdown gracefully shuts down the application
func (app *App) Shutdown() error {
	loggy.Info("Shutting down application")

	if err := database.CloseDB(); err != nil {
		loggy.Error("Error closing database connection", "error", err)
	}

	return loggy.Close()
}

// FromContext retrieves the App instance from the CLI context
func FromContext(c *cli.Context) (*App, error) {
	if c.App.Metadata == nil {
		return nil, fmt.Errorf("app metadata not found in context")
	}

	app, ok := c.App.Metadata["app"].(*App)
	if !ok {
		return nil, fmt.Errorf("app instance not found in context")
	}

	return app, nil
}
