// Package ulid wraps github.com/oklog/ulid/v2 with prefixed, time sortable
// identifiers for sync passes, sync log rows and settings.
package ulid

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefixes for the kinds of IDs the application generates
const (
	// PrefixPass identifies one export or import pass
	PrefixPass = "pass"

	// PrefixSyncLog identifies a sync log row
	PrefixSyncLog = "log"

	// PrefixSetting identifies a settings row
	PrefixSetting = "set"

	// PrefixSeparator is used to separate the prefix from the ULID
	PrefixSeparator = "-"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// ULID is a ulid.ULID with an optional prefix
type ULID struct {
	ulid.ULID
	prefix string
}

// Generate creates a new ULID with the current timestamp.
func Generate() ULID {
	return NewWithTime(time.Now())
}

// GenerateWithPrefix creates a new ULID with the current timestamp and a prefix.
func GenerateWithPrefix(prefix string) ULID {
	id := NewWithTime(time.Now())
	id.prefix = prefix
	return id
}

// NewWithTime creates a new ULID with a specific timestamp.
func NewWithTime(t time.Time) ULID {
	entropyLock.Lock()
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	entropyLock.Unlock()
	return ULID{id, ""}
}

// Parse parses a plain or prefixed ULID string ("pass-01AN4Z07BY79KA1307SR9X4MV3").
func Parse(id string) (ULID, error) {
	prefix, rawID := "", id
	if i := strings.LastIndex(id, PrefixSeparator); i >= 0 {
		prefix, rawID = id[:i], id[i+1:]
	}

	parsed, err := ulid.Parse(rawID)
	if err != nil {
		return ULID{}, err
	}

	return ULID{parsed, prefix}, nil
}

// Validate reports whether id is a plain or prefixed ULID
func Validate(id string) bool {
	_, err := Parse(id)
	return err == nil
}

// Prefix returns the prefix of the ULID.
func (u ULID) Prefix() string {
	return u.prefix
}

// String returns "prefix-ulid", or the bare ULID without a prefix.
func (u ULID) String() string {
	if u.prefix != "" {
		return u.prefix + PrefixSeparator + u.ULID.String()
	}
	return u.ULID.String()
}

// Time returns the timestamp component of the ULID.
func (u ULID) Time() time.Time {
	return ulid.Time(u.ULID.Time())
}

// PassID generates a new sync pass ID
func PassID() string {
	return GenerateWithPrefix(PrefixPass).String()
}

// SyncLogID generates a new sync log row ID
func SyncLogID() string {
	return GenerateWithPrefix(PrefixSyncLog).String()
}

// SettingID generates a new settings row ID
func SettingID() string {
	return GenerateWithPrefix(PrefixSetting).String()
}
