package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// AppName is used for the config directory and default file names
const AppName = "notesync"

// DefaultConfigDir returns ~/.notesync
func DefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, "."+AppName), nil
}

// LoadFromEnv loads configuration from environment variables
// Parameters:
// - configDir: Directory containing config files (or empty for default)
// - configFilePath: Path to .env file (or empty for default)
// - isInitializing: Whether this is being called from the init command, which skips validation
func LoadFromEnv(configDir string, configFilePath string, isInitializing bool) (*Config, error) {
	cfg := New()

	if configDir == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		configDir = dir

		if err := os.MkdirAll(configDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	cfg.configDir = configDir

	defaultDBPath := filepath.Join(configDir, AppName+".db")
	defaultLogPath := filepath.Join(configDir, AppName+".log")

	if configFilePath == "" {
		configFilePath = filepath.Join(configDir, ".env")
	}

	// ENV_FILE_PATH points at a custom .env file
	envFilePath := getEnvString("ENV_FILE_PATH", "")
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			return nil, fmt.Errorf("failed to load env file from %s: %w", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(configFilePath); err != nil {
			// Then try current directory as fallback
			_ = godotenv.Load()
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg.Vault = VaultConfig{
		Path:            getEnvString("NOTESYNC_VAULT_PATH", cwd),
		ExportRecursive: getEnvBool("NOTESYNC_EXPORT_RECURSIVE", false),
	}

	cfg.Notion = NotionConfig{
		BaseURL:           getEnvString("NOTESYNC_NOTION_BASE_URL", "https://api.notion.com"),
		APIVersion:        getEnvString("NOTESYNC_NOTION_VERSION", "2022-06-28"),
		Timeout:           getEnvDuration("NOTESYNC_NOTION_TIMEOUT", 30*time.Second),
		RequestsPerSecond: getEnvFloat("NOTESYNC_NOTION_REQUESTS_PER_SECOND", 3),
		BurstLimit:        getEnvInt("NOTESYNC_NOTION_BURST_LIMIT", 3),
		MaxRetries:        getEnvInt("NOTESYNC_NOTION_MAX_RETRIES", 3),
		TitleProperty:     getEnvString("NOTESYNC_NOTION_TITLE_PROPERTY", "Name"),
		TagsProperty:      getEnvString("NOTESYNC_NOTION_TAGS_PROPERTY", "Tags"),
	}

	cfg.Sync = SyncConfig{
		Concurrency:  getEnvInt("NOTESYNC_SYNC_CONCURRENCY", 4),
		ImportBuffer: getEnvDuration("NOTESYNC_SYNC_IMPORT_BUFFER", 3*time.Minute),
		Interval:     getEnvDuration("NOTESYNC_SYNC_INTERVAL", 0),
	}

	// Seeds for settings that have not been saved through `notesync config set`
	cfg.Defaults.Token = getEnvString("NOTESYNC_NOTION_TOKEN", cfg.Defaults.Token)
	cfg.Defaults.ImportDatabaseID = getEnvString("NOTESYNC_IMPORT_DATABASE_ID", cfg.Defaults.ImportDatabaseID)
	cfg.Defaults.ExportDatabaseID = getEnvString("NOTESYNC_EXPORT_DATABASE_ID", cfg.Defaults.ExportDatabaseID)
	cfg.Defaults.Proxy = getEnvString("NOTESYNC_PROXY", cfg.Defaults.Proxy)
	cfg.Defaults.ImportFolder = getEnvString("NOTESYNC_IMPORT_FOLDER", cfg.Defaults.ImportFolder)
	cfg.Defaults.ExportFolder = getEnvString("NOTESYNC_EXPORT_FOLDER", cfg.Defaults.ExportFolder)
	cfg.Defaults.ConvertTags = getEnvBool("NOTESYNC_CONVERT_TAGS", cfg.Defaults.ConvertTags)
	cfg.Defaults.ImportTags = getEnvList("NOTESYNC_IMPORT_TAGS", cfg.Defaults.ImportTags)

	cfg.Database = DatabaseConfig{
		Path:            getEnvString("NOTESYNC_DB_PATH", defaultDBPath),
		BusyTimeout:     getEnvInt("NOTESYNC_DB_BUSY_TIMEOUT", 5000),
		JournalMode:     getEnvString("NOTESYNC_DB_JOURNAL_MODE", "WAL"),
		SynchronousMode: getEnvString("NOTESYNC_DB_SYNCHRONOUS_MODE", "NORMAL"),
		CacheSize:       getEnvInt("NOTESYNC_DB_CACHE_SIZE", -16000), // ~16MB
		ForeignKeys:     getEnvBool("NOTESYNC_DB_FOREIGN_KEYS", true),
		ConnMaxLife:     getEnvDuration("NOTESYNC_DB_CONN_MAX_LIFE", 5*time.Minute),
		QueryTimeout:    getEnvDuration("NOTESYNC_DB_QUERY_TIMEOUT", 30*time.Second),
	}

	cfg.Logging = LoggingConfig{
		Level:      getEnvString("NOTESYNC_LOG_LEVEL", "info"),
		Format:     getEnvString("NOTESYNC_LOG_FORMAT", "text"),
		Output:     getEnvString("NOTESYNC_LOG_OUTPUT", defaultLogPath),
		AddSource:  getEnvBool("NOTESYNC_LOG_ADD_SOURCE", false),
		TimeFormat: getTimeFormat(getEnvString("NOTESYNC_LOG_TIME_FORMAT", "RFC3339")),
		MaxSizeMB:  getEnvInt("NOTESYNC_LOG_MAX_SIZE_MB", 10),
		MaxBackups: getEnvInt("NOTESYNC_LOG_MAX_BACKUPS", 3),
	}

	if isInitializing {
		return cfg, nil
	}

	return cfg, cfg.Validate()
}
