package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/tildaslashalef/notesync/internal/loggy"
)

// PassEvent describes a pass starting or completing
type PassEvent struct {
	PassID    string
	Direction Direction
	Total     int // selected items
	StartedAt time.Time
	Report    *SummaryReport // set on completion
	Err       error          // pass-fatal error, if any
}

// ItemEvent describes the outcome of one item
type ItemEvent struct {
	PassID    string
	Direction Direction
	Ref       string
	RemoteID  string
	Action    Action
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// Observer receives the events of a pass. Item events may arrive
// concurrently.
type Observer interface {
	OnPassStart(ctx context.Context, event PassEvent)
	OnItemSynced(ctx context.Context, event ItemEvent)
	OnItemFailed(ctx context.Context, event ItemEvent)
	OnPassComplete(ctx context.Context, event PassEvent)
}

// MultiObserver fans events out to several observers in order
type MultiObserver []Observer

func (m MultiObserver) OnPassStart(ctx context.Context, event PassEvent) {
	for _, o := range m {
		o.OnPassStart(ctx, event)
	}
}

func (m MultiObserver) OnItemSynced(ctx context.Context, event ItemEvent) {
	for _, o := range m {
		o.OnItemSynced(ctx, event)
	}
}

func (m MultiObserver) OnItemFailed(ctx context.Context, event ItemEvent) {
	for _, o := range m {
		o.OnItemFailed(ctx, event)
	}
}

func (m MultiObserver) OnPassComplete(ctx context.Context, event PassEvent) {
	for _, o := range m {
		o.OnPassComplete(ctx, event)
	}
}

// LogObserver persists every item and pass outcome as a sync log
type LogObserver struct {
	repo   Repository
	logger *loggy.Logger
}

// NewLogObserver creates an observer writing to repo
func NewLogObserver(repo Repository, logger *loggy.Logger) *LogObserver {
	return &LogObserver{repo: repo, logger: logger}
}

func (o *LogObserver) OnPassStart(context.Context, PassEvent) {}

func (o *LogObserver) OnItemSynced(ctx context.Context, event ItemEvent) {
	log := NewSyncLog(event.PassID, event.Direction, event.Ref, event.StartedAt)
	log.MarkSuccessful(event.Action, event.RemoteID, event.StartedAt.Add(event.Duration))
	o.save(ctx, log)
}

func (o *LogObserver) OnItemFailed(ctx context.Context, event ItemEvent) {
	log := NewSyncLog(event.PassID, event.Direction, event.Ref, event.StartedAt)
	log.Action = event.Action
	log.RemoteID = event.RemoteID
	log.MarkFailed(event.Err, event.StartedAt.Add(event.Duration))
	o.save(ctx, log)
}

func (o *LogObserver) OnPassComplete(ctx context.Context, event PassEvent) {
	log := NewSyncLog(event.PassID, event.Direction, "", event.StartedAt)
	log.Action = ActionPass
	completedAt := event.StartedAt
	if event.Report != nil {
		completedAt = completedAt.Add(event.Report.Duration)
		log.ItemRef = event.Report.String()
	}
	if event.Err != nil {
		log.MarkFailed(event.Err, completedAt)
	} else {
		log.MarkSuccessful(ActionPass, "", completedAt)
	}
	o.save(ctx, log)
}

func (o *LogObserver) save(ctx context.Context, log *SyncLog) {
	// Persist even when the pass context was cancelled
	ctx = context.WithoutCancel(ctx)
	if err := o.repo.CreateSyncLog(ctx, log); err != nil {
		o.logger.Warn("Failed to save sync log", "error", err, "item", log.ItemRef)
	}
}

// RecordingObserver keeps every event in memory
type RecordingObserver struct {
	mu     gosync.Mutex
	Starts []PassEvent
	Synced []ItemEvent
	Failed []ItemEvent
	Done   []PassEvent
}

func (r *RecordingObserver) OnPassStart(_ context.Context, event PassEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Starts = append(r.Starts, event)
}

func (r *RecordingObserver) OnItemSynced(_ context.Context, event ItemEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Synced = append(r.Synced, event)
}

func (r *RecordingObserver) OnItemFailed(_ context.Context, event ItemEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed = append(r.Failed, event)
}

func (r *RecordingObserver) OnPassComplete(_ context.Context, event PassEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Done = append(r.Done, event)
}
