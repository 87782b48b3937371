package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// Global configuration instance
	globalConfig *Config
	configMutex  sync.RWMutex
)

// Get returns the global configuration instance
// If the configuration has not been initialized, it will return an error
func Get() (*Config, error) {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if globalConfig == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}

	return globalConfig, nil
}

// Set sets the global configuration instance
func Set(cfg *Config) {
	configMutex.Lock()
	defer configMutex.Unlock()

	globalConfig = cfg
}

// Config represents the bootstrap configuration read from the environment.
// User-editable sync settings live in the settings table, see SyncSettings.
type Config struct {
	Vault     VaultConfig
	Notion    NotionConfig
	Sync      SyncConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Defaults  SyncSettings // Seed values for persisted settings that were never saved
	configDir string       // Internal: Directory where config was loaded from
}

// VaultConfig describes the local note vault
type VaultConfig struct {
	Path            string // Root directory of the vault
	ExportRecursive bool   // Whether export scans sub folders of the export folder
}

// NotionConfig holds the remote API connection settings
type NotionConfig struct {
	BaseURL           string        // API base URL
	APIVersion        string        // Value of the Notion-Version header
	Timeout           time.Duration // Per-call timeout
	RequestsPerSecond float64       // Client side rate limit
	BurstLimit        int           // Client side burst allowance
	MaxRetries        int           // Retries for rate limited and transient responses
	TitleProperty     string        // Database property holding the page title
	TagsProperty      string        // Database property holding the tags
}

// SyncConfig holds pass execution settings
type SyncConfig struct {
	Concurrency  int           // Maximum items processed concurrently within a pass
	ImportBuffer time.Duration // Slack added to remote edit times during import selection
	Interval     time.Duration // Default interval for periodic sync
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Path            string        // Path to the SQLite database file
	JournalMode     string        // Journal mode (WAL recommended)
	SynchronousMode string        // Synchronous mode
	BusyTimeout     int           // Busy timeout in milliseconds
	CacheSize       int           // Cache size in KiB
	ForeignKeys     bool          // Whether to enforce foreign key constraints
	ConnMaxLife     time.Duration // Maximum connection lifetime
	QueryTimeout    time.Duration // Query timeout
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string // debug, info, warn, error
	Format     string // text or json
	Output     string // stdout, stderr, or file path
	AddSource  bool   // Include source code position in logs
	TimeFormat string // Time format for logs (empty uses RFC3339)
	MaxSizeMB  int    // Rotate file output after this size
	MaxBackups int    // Number of rotated files to keep
}

// New returns a new empty Config
func New() *Config {
	return &Config{
		Vault:    VaultConfig{},
		Notion:   NotionConfig{},
		Sync:     SyncConfig{},
		Database: DatabaseConfig{},
		Logging:  LoggingConfig{},
		Defaults: DefaultSyncSettings(),
	}
}

// ConfigDir returns the directory the configuration was loaded from
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.validateVault(); err != nil {
		return fmt.Errorf("vault config: %w", err)
	}

	if err := c.validateNotion(); err != nil {
		return fmt.Errorf("notion config: %w", err)
	}

	if err := c.validateSync(); err != nil {
		return fmt.Errorf("sync config: %w", err)
	}

	if err := c.validateDatabase(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// ParseLogLevel parses a log level string to a slog.Level
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none":
		// Set to a very high level that won't be triggered
		return slog.Level(9999)
	default:
		return slog.LevelInfo
	}
}

func (c *Config) validateVault() error {
	if c.Vault.Path == "" {
		return fmt.Errorf("vault path cannot be empty")
	}

	info, err := os.Stat(c.Vault.Path)
	if err != nil {
		return fmt.Errorf("vault path %s: %w", c.Vault.Path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault path %s is not a directory", c.Vault.Path)
	}

	return nil
}

func (c *Config) validateNotion() error {
	if c.Notion.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	if c.Notion.APIVersion == "" {
		return fmt.Errorf("API version cannot be empty")
	}

	if c.Notion.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if c.Notion.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}

	if c.Notion.TitleProperty == "" {
		return fmt.Errorf("title property cannot be empty")
	}

	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}

	if c.Sync.ImportBuffer < 0 {
		return fmt.Errorf("import buffer cannot be negative")
	}

	if c.Sync.Interval < 0 {
		return fmt.Errorf("interval cannot be negative")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	// Create the directory if it doesn't exist
	dir := filepath.Dir(c.Database.Path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory for database: %w", err)
		}
	}

	// Check if directory is writable
	if err := checkDirectoryWritable(dir); err != nil {
		return fmt.Errorf("database directory: %w", err)
	}

	if c.Database.BusyTimeout <= 0 {
		return fmt.Errorf("busy timeout must be positive")
	}

	if c.Database.ConnMaxLife <= 0 {
		return fmt.Errorf("connection max life must be positive")
	}

	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}

	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	if level != "debug" && level != "info" && level != "warn" && level != "error" && level != "none" {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// getEnvString returns a string from the environment variable
func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns an int from the environment variable
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool returns a bool from the environment variable
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration returns a time.Duration from the environment variable
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvFloat returns a float64 from the environment variable
func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated list from the environment variable
func getEnvList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return SplitList(value)
}

// SplitList splits a comma separated value, dropping blanks and comment entries
func SplitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" && !strings.HasPrefix(item, "#") {
			items = append(items, item)
		}
	}
	return items
}

// getTimeFormat converts a named time format to its actual format string
func getTimeFormat(name string) string {
	switch name {
	case "RFC3339":
		return time.RFC3339
	case "RFC3339Nano":
		return time.RFC3339Nano
	case "Kitchen":
		return time.Kitchen
	case "Stamp":
		return time.Stamp
	case "StampMilli":
		return time.StampMilli
	case "DateTime":
		return "2006-01-02 15:04:05"
	case "DateTimeMS":
		return "2006-01-02 15:04:05.000"
	default:
		return name
	}
}

// checkDirectoryWritable tests if a directory is writable
func checkDirectoryWritable(dir string) error {
	testFile := filepath.Join(dir, fmt.Sprintf("test_write_%d", time.Now().UnixNano()))
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("directory not writable: %w", err)
	}

	f.Close()
	os.Remove(testFile)

	return nil
}
