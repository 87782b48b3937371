// Package database provides SQLite database management for notesync
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tildaslashalef/notesync/internal/config"
	"github.com/tildaslashalef/notesync/internal/loggy"
	"github.com/tildaslashalef/notesync/internal/migrations"
)

var (
	// ErrNotInitialized is returned when the database has not been initialized
	ErrNotInitialized = errors.New("database not initialized")

	db     *sql.DB
	dbLock sync.Mutex
)

// DB returns the database connection
func DB() (*sql.DB, error) {
	if db == nil {
		return nil, ErrNotInitialized
	}
	return db, nil
}

// InitDB opens the database connection
func InitDB(cfg *config.Config) error {
	dbLock.Lock()
	defer dbLock.Unlock()

	if db != nil {
		return nil
	}

	loggy.Info("Initializing database", "path", cfg.Database.Path)

	var err error
	db, err = sql.Open("sqlite3", buildSQLiteDSN(&cfg.Database))
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetConnMaxLifetime(cfg.Database.ConnMaxLife)
	db.SetMaxOpenConns(1) // SQLite supports only one writer at a time
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		db = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	loggy.Debug("Database initialized successfully")
	return nil
}

// buildSQLiteDSN builds a SQLite DSN with additional parameters
func buildSQLiteDSN(cfg *config.DatabaseConfig) string {
	if cfg.Path == ":memory:" || strings.HasPrefix(cfg.Path, "file::memory:") {
		return cfg.Path
	}

	params := url.Values{}
	params.Add("_busy_timeout", strconv.Itoa(cfg.BusyTimeout))
	params.Add("_journal_mode", cfg.JournalMode)
	params.Add("_synchronous", cfg.SynchronousMode)
	if cfg.CacheSize != 0 {
		params.Add("_cache_size", strconv.Itoa(cfg.CacheSize))
	}
	params.Add("_foreign_keys", strconv.FormatBool(cfg.ForeignKeys))
	params.Add("cache", "shared")

	return fmt.Sprintf("%s?%s", cfg.Path, params.Encode())
}

// CloseDB closes the database connection
func CloseDB() error {
	dbLock.Lock()
	defer dbLock.Unlock()

	if db == nil {
		return nil
	}

	err := db.Close()
	db = nil
	return err
}

// newMigrator binds the embedded migrations to the open connection.
// The returned Migrate is never closed: closing it closes the shared connection.
func newMigrator() (*migrate.Migrate, error) {
	if db == nil {
		return nil, ErrNotInitialized
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	src, err := migrations.GetSource()
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// RunMigrations applies all pending migrations
func RunMigrations() error {
	m, err := newMigrator()
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		loggy.Error("Failed to apply migrations", "error", err)
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	loggy.Debug("Database migration complete", "version", version, "dirty", dirty)
	return nil
}

// RevertMigrations reverts migrations back by the specified number of steps
func RevertMigrations(steps int) error {
	m, err := newMigrator()
	if err != nil {
		return err
	}

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		loggy.Error("Failed to revert migrations", "error", err)
		return fmt.Errorf("failed to revert migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	loggy.Info("Database migration reversion complete", "version", version, "dirty", dirty)
	return nil
}

// MigrationVersion reports the applied schema version
func MigrationVersion() (uint, bool, error) {
	m, err := newMigrator()
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}
