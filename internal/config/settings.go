package config

import (
	"strconv"
	"strings"
	"time"
)

// Keys of the persisted settings
const (
	KeyToken            = "notion.token"
	KeyImportDatabaseID = "notion.import_database_id"
	KeyExportDatabaseID = "notion.export_database_id"
	KeyProxy            = "notion.proxy"
	KeyImportFolder     = "vault.import_folder"
	KeyExportFolder     = "vault.export_folder"
	KeyConvertTags      = "sync.convert_tags"
	KeyImportTags       = "sync.import_tags"
	KeyLastExportedTime = "sync.last_exported_time"
	KeyLastImportedTime = "sync.last_imported_time"
)

// obfuscatedKeys are stored through obfuscateToken
var obfuscatedKeys = map[string]bool{
	KeyToken: true,
}

// SyncSettings is the user-editable configuration of the sync engine
type SyncSettings struct {
	Token            string   // Remote API token
	ImportDatabaseID string   // Database pages are imported from
	ExportDatabaseID string   // Database notes are exported to
	Proxy            string   // Optional HTTP(S) proxy URL
	ImportFolder     string   // Vault folder imported notes are written to, "/" is the vault root
	ExportFolder     string   // Vault folder exported notes are read from, "/" is the vault root
	ConvertTags      bool     // Send frontmatter tags to the remote tags property
	ImportTags       []string // Tags added to every imported note
}

// DefaultSyncSettings returns the settings used before anything was saved
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{
		ImportFolder: "/",
		ExportFolder: "/",
	}
}

// Cursor holds the high-water marks of the last completed passes
type Cursor struct {
	LastExportedTime time.Time
	LastImportedTime time.Time
}

// Epoch is the cursor value that selects everything
var Epoch = time.Unix(0, 0).UTC()

// applySettings merges stored values over s. Empty values keep the current field.
func (s *SyncSettings) applySettings(values map[string]string) {
	if v := values[KeyToken]; v != "" {
		s.Token = v
	}
	if v := values[KeyImportDatabaseID]; v != "" {
		s.ImportDatabaseID = v
	}
	if v := values[KeyExportDatabaseID]; v != "" {
		s.ExportDatabaseID = v
	}
	if v, ok := values[KeyProxy]; ok {
		s.Proxy = v
	}
	if v := values[KeyImportFolder]; v != "" {
		s.ImportFolder = v
	}
	if v := values[KeyExportFolder]; v != "" {
		s.ExportFolder = v
	}
	if v := values[KeyConvertTags]; v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.ConvertTags = b
		}
	}
	if v, ok := values[KeyImportTags]; ok {
		s.ImportTags = SplitList(v)
	}
}

// values flattens s into setting key/value pairs
func (s SyncSettings) values() map[string]string {
	return map[string]string{
		KeyToken:            s.Token,
		KeyImportDatabaseID: s.ImportDatabaseID,
		KeyExportDatabaseID: s.ExportDatabaseID,
		KeyProxy:            s.Proxy,
		KeyImportFolder:     s.ImportFolder,
		KeyExportFolder:     s.ExportFolder,
		KeyConvertTags:      strconv.FormatBool(s.ConvertTags),
		KeyImportTags:       strings.Join(s.ImportTags, ","),
	}
}

// formatCursorTime encodes a cursor value for storage
func formatCursorTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseCursorTime decodes a stored cursor value. Missing values are the epoch.
func parseCursorTime(value string) (time.Time, error) {
	if value == "" {
		return Epoch, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
