package commands

import (
	"context"
	"fmt"
	"io"
	gosync "sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"

	"github.com/tildaslashalef/notesync/internal/sync"
	"github.com/tildaslashalef/notesync/internal/utils"
)

// progressObserver draws one tracker per pass and keeps the failures for
// the final report
type progressObserver struct {
	pw       progress.Writer
	mu       gosync.Mutex
	trackers map[string]*progress.Tracker
	failures []sync.ItemEvent
}

func newProgressObserver(out io.Writer) *progressObserver {
	p := &progressObserver{
		pw:       utils.CreateProgressWriter(out),
		trackers: make(map[string]*progress.Tracker),
	}
	go p.pw.Render()
	return p
}

func (p *progressObserver) tracker(passID string) *progress.Tracker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trackers[passID]
}

func (p *progressObserver) OnPassStart(_ context.Context, event sync.PassEvent) {
	tracker := &progress.Tracker{
		Message: fmt.Sprintf("%s: %d item(s)", event.Direction, event.Total),
		Total:   int64(event.Total),
		Units:   progress.UnitsDefault,
	}

	p.mu.Lock()
	p.trackers[event.PassID] = tracker
	p.mu.Unlock()

	p.pw.AppendTracker(tracker)
}

func (p *progressObserver) OnItemSynced(_ context.Context, event sync.ItemEvent) {
	if t := p.tracker(event.PassID); t != nil {
		t.Increment(1)
	}
}

func (p *progressObserver) OnItemFailed(_ context.Context, event sync.ItemEvent) {
	p.mu.Lock()
	p.failures = append(p.failures, event)
	p.mu.Unlock()

	if t := p.tracker(event.PassID); t != nil {
		t.Increment(1)
	}
}

func (p *progressObserver) OnPassComplete(_ context.Context, event sync.PassEvent) {
	t := p.tracker(event.PassID)
	if t == nil {
		return
	}
	if event.Err != nil {
		t.MarkAsErrored()
		return
	}
	t.MarkAsDone()
}

// Close stops rendering and waits for the last frame
func (p *progressObserver) Close() {
	p.pw.Stop()
	for p.pw.IsRenderInProgress() {
		time.Sleep(10 * time.Millisecond)
	}
}

// Failures returns the failed items seen so far
func (p *progressObserver) Failures() []sync.ItemEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sync.ItemEvent(nil), p.failures...)
}
