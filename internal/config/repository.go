package config

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/tildaslashalef/notesync/internal/loggy"
	"github.com/tildaslashalef/notesync/internal/ulid"
)

// Settings represents a persistent setting in the database
type Settings struct {
	ID        string
	Key       string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SettingsRepository defines operations for managing settings in the database
type SettingsRepository interface {
	// GetSetting retrieves a setting by key
	GetSetting(ctx context.Context, key string) (string, error)

	// GetSettings retrieves multiple settings by prefix
	GetSettings(ctx context.Context, prefix string) (map[string]string, error)

	// SetSetting sets a setting value
	SetSetting(ctx context.Context, key, value string) error

	// DeleteSetting deletes a setting
	DeleteSetting(ctx context.Context, key string) error
}

// SQLSettingsRepository implements SettingsRepository using a SQL database
type SQLSettingsRepository struct {
	db     *sql.DB
	logger *loggy.Logger
}

// NewSQLSettingsRepository creates a new SQL settings repository
func NewSQLSettingsRepository(db *sql.DB, logger *loggy.Logger) SettingsRepository {
	return &SQLSettingsRepository{
		db:     db,
		logger: logger,
	}
}

// GetSetting retrieves a setting by key
func (r *SQLSettingsRepository) GetSetting(ctx context.Context, key string) (string, error) {
	q := squirrel.Select("value").
		From("settings").
		Where(squirrel.Eq{"key": key}).
		Limit(1)

	query, args, err := q.ToSql()
	if err != nil {
		return "", fmt.Errorf("building get setting query: %w", err)
	}

	var value string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("executing get setting query: %w", err)
	}

	if obfuscatedKeys[key] && value != "" {
		return deobfuscateToken(value)
	}

	return value, nil
}

// GetSettings retrieves multiple settings by prefix
func (r *SQLSettingsRepository) GetSettings(ctx context.Context, prefix string) (map[string]string, error) {
	q := squirrel.Select("key", "value").
		From("settings").
		Where(squirrel.Like{"key": prefix + "%"})

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get settings query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing get settings query: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning setting row: %w", err)
		}

		if obfuscatedKeys[key] && value != "" {
			value, err = deobfuscateToken(value)
			if err != nil {
				r.logger.Warn("Failed to deobfuscate setting", "key", key, "error", err)
				continue
			}
		}

		settings[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating setting rows: %w", err)
	}

	return settings, nil
}

// SetSetting inserts or replaces a setting value
func (r *SQLSettingsRepository) SetSetting(ctx context.Context, key, value string) error {
	storeValue := value
	if obfuscatedKeys[key] && value != "" {
		var err error
		storeValue, err = obfuscateToken(value)
		if err != nil {
			return fmt.Errorf("obfuscating %s: %w", key, err)
		}
	}

	now := time.Now().UTC()
	q := squirrel.Insert("settings").
		Columns("id", "key", "value", "created_at", "updated_at").
		Values(ulid.SettingID(), key, storeValue, now, now).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at")

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building upsert setting query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing upsert setting query: %w", err)
	}

	return nil
}

// DeleteSetting deletes a setting
func (r *SQLSettingsRepository) DeleteSetting(ctx context.Context, key string) error {
	q := squirrel.Delete("settings").
		Where(squirrel.Eq{"key": key})

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building delete setting query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing delete setting query: %w", err)
	}

	return nil
}

// LoadSyncSettings reads the persisted settings and merges them over defaults
func LoadSyncSettings(ctx context.Context, defaults SyncSettings, repo SettingsRepository) (SyncSettings, error) {
	settings := defaults

	for _, prefix := range []string{"notion.", "vault.", "sync."} {
		values, err := repo.GetSettings(ctx, prefix)
		if err != nil {
			return settings, fmt.Errorf("loading %s settings: %w", strings.TrimSuffix(prefix, "."), err)
		}
		settings.applySettings(values)
	}

	return settings, nil
}

// SaveSyncSettings writes every field of settings
func SaveSyncSettings(ctx context.Context, settings SyncSettings, repo SettingsRepository) error {
	for key, value := range settings.values() {
		if err := repo.SetSetting(ctx, key, value); err != nil {
			return fmt.Errorf("saving %s: %w", key, err)
		}
	}
	return nil
}

// Simple token obfuscation functions
// These provide basic obfuscation, not true encryption

// obfuscateToken performs basic token obfuscation
func obfuscateToken(token string) (string, error) {
	runes := []rune(token)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	reversed := string(runes)

	encoded := base64.StdEncoding.EncodeToString([]byte(reversed))
	return "OBFS:" + encoded, nil
}

// deobfuscateToken reverses the obfuscation
func deobfuscateToken(obfuscated string) (string, error) {
	if !strings.HasPrefix(obfuscated, "OBFS:") {
		return obfuscated, nil // Not obfuscated
	}

	encoded := strings.TrimPrefix(obfuscated, "OBFS:")

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding obfuscated token: %w", err)
	}

	runes := []rune(string(decoded))
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}

	return string(runes), nil
}
