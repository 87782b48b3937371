package config

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tildaslashalef/notesync/internal/loggy"
)

// SettingsService keeps the persisted sync settings and cursors.
// Every mutation is written to the repository immediately.
type SettingsService struct {
	repo     SettingsRepository
	config   *Config
	logger   *loggy.Logger
	mu       sync.RWMutex
	settings SyncSettings
}

// NewSettingsService creates a new settings service
func NewSettingsService(db *sql.DB, config *Config, logger *loggy.Logger) *SettingsService {
	return NewSettingsServiceWithRepository(NewSQLSettingsRepository(db, logger), config, logger)
}

// NewSettingsServiceWithRepository creates a settings service on top of repo
func NewSettingsServiceWithRepository(repo SettingsRepository, config *Config, logger *loggy.Logger) *SettingsService {
	return &SettingsService{
		repo:     repo,
		config:   config,
		logger:   logger,
		settings: config.Defaults,
	}
}

// Load reads the persisted settings over the configured defaults
func (s *SettingsService) Load(ctx context.Context) error {
	settings, err := LoadSyncSettings(ctx, s.config.Defaults, s.repo)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return nil
}

// Settings returns a snapshot of the current settings
func (s *SettingsService) Settings() SyncSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := s.settings
	settings.ImportTags = append([]string(nil), s.settings.ImportTags...)
	return settings
}

// GetRepository returns the underlying repository
func (s *SettingsService) GetRepository() SettingsRepository {
	return s.repo
}

// SetToken sets the API token, stored obfuscated
func (s *SettingsService) SetToken(ctx context.Context, token string) error {
	return s.update(ctx, KeyToken, token, func(st *SyncSettings) { st.Token = token })
}

// SetImportDatabaseID sets the database pages are imported from
func (s *SettingsService) SetImportDatabaseID(ctx context.Context, id string) error {
	return s.update(ctx, KeyImportDatabaseID, id, func(st *SyncSettings) { st.ImportDatabaseID = id })
}

// SetExportDatabaseID sets the database notes are exported to
func (s *SettingsService) SetExportDatabaseID(ctx context.Context, id string) error {
	return s.update(ctx, KeyExportDatabaseID, id, func(st *SyncSettings) { st.ExportDatabaseID = id })
}

// SetProxy sets the proxy URL, empty disables it
func (s *SettingsService) SetProxy(ctx context.Context, proxy string) error {
	return s.update(ctx, KeyProxy, proxy, func(st *SyncSettings) { st.Proxy = proxy })
}

// SetImportFolder sets the vault folder imported notes are written to
func (s *SettingsService) SetImportFolder(ctx context.Context, folder string) error {
	folder = normalizeFolder(folder)
	return s.update(ctx, KeyImportFolder, folder, func(st *SyncSettings) { st.ImportFolder = folder })
}

// SetExportFolder sets the vault folder exported notes are read from
func (s *SettingsService) SetExportFolder(ctx context.Context, folder string) error {
	folder = normalizeFolder(folder)
	return s.update(ctx, KeyExportFolder, folder, func(st *SyncSettings) { st.ExportFolder = folder })
}

// SetConvertTags toggles sending tags on export
func (s *SettingsService) SetConvertTags(ctx context.Context, enabled bool) error {
	return s.update(ctx, KeyConvertTags, strconv.FormatBool(enabled), func(st *SyncSettings) { st.ConvertTags = enabled })
}

// SetImportTags sets the tags added to every imported note
func (s *SettingsService) SetImportTags(ctx context.Context, tags []string) error {
	tags = SplitList(strings.Join(tags, ","))
	return s.update(ctx, KeyImportTags, strings.Join(tags, ","), func(st *SyncSettings) { st.ImportTags = tags })
}

func (s *SettingsService) update(ctx context.Context, key, value string, apply func(*SyncSettings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.SetSetting(ctx, key, value); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	apply(&s.settings)

	s.logger.Debug("Setting saved", "key", key)
	return nil
}

// LoadCursor reads both cursors. Missing cursors are the epoch.
func (s *SettingsService) LoadCursor(ctx context.Context) (Cursor, error) {
	values, err := s.repo.GetSettings(ctx, "sync.last_")
	if err != nil {
		return Cursor{}, fmt.Errorf("loading cursor: %w", err)
	}

	exported, err := parseCursorTime(values[KeyLastExportedTime])
	if err != nil {
		return Cursor{}, fmt.Errorf("parsing %s: %w", KeyLastExportedTime, err)
	}

	imported, err := parseCursorTime(values[KeyLastImportedTime])
	if err != nil {
		return Cursor{}, fmt.Errorf("parsing %s: %w", KeyLastImportedTime, err)
	}

	return Cursor{LastExportedTime: exported, LastImportedTime: imported}, nil
}

// SetExportedTime persists the export cursor
func (s *SettingsService) SetExportedTime(ctx context.Context, t time.Time) error {
	return s.repo.SetSetting(ctx, KeyLastExportedTime, formatCursorTime(t))
}

// SetImportedTime persists the import cursor
func (s *SettingsService) SetImportedTime(ctx context.Context, t time.Time) error {
	return s.repo.SetSetting(ctx, KeyLastImportedTime, formatCursorTime(t))
}

// normalizeFolder maps empty and "." to the vault root
func normalizeFolder(folder string) string {
	folder = strings.TrimSpace(strings.ReplaceAll(folder, "\\", "/"))
	if folder == "" || folder == "." {
		return "/"
	}
	return folder
}
