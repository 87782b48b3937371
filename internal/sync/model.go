// Package sync moves notes between the local vault and a Notion database
package sync

import (
	"fmt"
	"time"
)

// Direction is the way a pass moves data
type Direction string

const (
	// DirectionExport sends vault notes to the remote database
	DirectionExport Direction = "export"
	// DirectionImport writes remote pages into the vault
	DirectionImport Direction = "import"
)

// Action is what happened to one item
type Action string

const (
	ActionCreated  Action = "created"
	ActionUpdated  Action = "updated"
	ActionFallback Action = "fallback" // conflict on create, note rewritten locally
	ActionPlanned  Action = "planned"  // dry run, nothing applied
	ActionArchived Action = "archived"
	ActionPass     Action = "pass" // summary row of a whole pass
)

// ErrorType classifies a failure for reporting
type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeConflict      ErrorType = "conflict"
	ErrorTypeRemoteAuth    ErrorType = "remote_auth"
	ErrorTypeRemoteServer  ErrorType = "remote_server"
	ErrorTypeRemoteClient  ErrorType = "remote_client"
	ErrorTypeRateLimited   ErrorType = "rate_limited"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeConversion    ErrorType = "conversion"
	ErrorTypeLocalIO       ErrorType = "local_io"
	ErrorTypeCancelled     ErrorType = "cancelled"
	ErrorTypeUnknown       ErrorType = "unknown"
)

// SyncLog represents a log entry for one synced item or a whole pass
type SyncLog struct {
	ID           string    `json:"id"`
	PassID       string    `json:"pass_id"`
	Direction    Direction `json:"direction"`
	ItemRef      string    `json:"item_ref"`  // note path or page title
	RemoteID     string    `json:"remote_id"` // page ID when known
	Action       Action    `json:"action"`
	Success      bool      `json:"success"`
	ErrorType    ErrorType `json:"error_type,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
}

// NewSyncLog creates a new sync log entry
func NewSyncLog(passID string, direction Direction, itemRef string, startedAt time.Time) *SyncLog {
	return &SyncLog{
		PassID:      passID,
		Direction:   direction,
		ItemRef:     itemRef,
		Success:     false, // Default to false, set to true when successful
		StartedAt:   startedAt,
		CompletedAt: startedAt,
	}
}

// MarkSuccessful marks the sync log as successful
func (l *SyncLog) MarkSuccessful(action Action, remoteID string, completedAt time.Time) {
	l.Success = true
	l.Action = action
	l.RemoteID = remoteID
	l.CompletedAt = completedAt
}

// MarkFailed marks the sync log as failed
func (l *SyncLog) MarkFailed(err error, completedAt time.Time) {
	l.Success = false
	l.ErrorType = ClassifyError(err)
	if err != nil {
		l.ErrorMessage = err.Error()
	}
	l.CompletedAt = completedAt
}

// SummaryReport is the outcome of one pass
type SummaryReport struct {
	PassID       string
	Direction    Direction
	ItemsChanged int // selected items that were attempted
	Succeeded    int
	Failed       int
	Duration     time.Duration
	DryRun       bool
}

func (r SummaryReport) String() string {
	return fmt.Sprintf("%d changed, %d succeeded, %d failed", r.ItemsChanged, r.Succeeded, r.Failed)
}

// Plan lists what a pass would do without applying it
type Plan struct {
	Direction Direction
	Items     []PlanItem
}

// PlanItem is one item a pass would touch
type PlanItem struct {
	Ref      string    // note path or page title
	RemoteID string    // page ID when known
	Action   Action    // created or updated for exports, "" for imports
	Changed  time.Time // mtime or last edited time
	Target   string    // vault path an import would write
}
