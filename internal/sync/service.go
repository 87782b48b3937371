package sync

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tildaslashalef/notesync/internal/config"
	"github.com/tildaslashalef/notesync/internal/loggy"
	"github.com/tildaslashalef/notesync/internal/markdown"
	"github.com/tildaslashalef/notesync/internal/notion"
	"github.com/tildaslashalef/notesync/internal/ulid"
	"github.com/tildaslashalef/notesync/internal/vault"
)

// DefaultConcurrency caps the items processed at once within a pass
const DefaultConcurrency = 4

// RemoteRepository is the remote database as seen by the service
type RemoteRepository interface {
	QueryDatabase(ctx context.Context, databaseID string, filter *notion.QueryFilter) ([]notion.RemotePage, error)
	CreatePage(ctx context.Context, databaseID string, input notion.PageInput) (notion.RemotePage, error)
	UpdatePage(ctx context.Context, pageID string, input notion.PageInput) error
	GetPageBlocks(ctx context.Context, pageID string) ([]notion.Block, error)
	ArchivePage(ctx context.Context, pageID string) error
}

// LocalRepository is the vault as seen by the service
type LocalRepository interface {
	ListChangedCandidates(folder string, since time.Time) ([]vault.Note, error)
	ReadNote(path string) (vault.Note, error)
	WriteNote(path, content string) error
	EnsureDirectory(dir string) error
	Exists(path string) (bool, error)
}

// CursorStore persists the pass high-water marks
type CursorStore interface {
	LoadCursor(ctx context.Context) (config.Cursor, error)
	SetExportedTime(ctx context.Context, t time.Time) error
	SetImportedTime(ctx context.Context, t time.Time) error
}

// SettingsProvider returns the current sync settings
type SettingsProvider interface {
	Settings() config.SyncSettings
}

// Service runs export and import passes
type Service struct {
	settings     SettingsProvider
	cursors      CursorStore
	remote       RemoteRepository
	local        LocalRepository
	logger       *loggy.Logger
	observer     MultiObserver
	concurrency  int
	importBuffer time.Duration
	maxRetries   int
	now          func() time.Time
	dryRun       bool

	exportMu gosync.Mutex
	importMu gosync.Mutex
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(logger *loggy.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithObservers adds observers receiving pass and item events
func WithObservers(observers ...Observer) Option {
	return func(s *Service) { s.observer = append(s.observer, observers...) }
}

// WithConcurrency caps the items processed at once, values below 1 mean 1
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n < 1 {
			n = 1
		}
		s.concurrency = n
	}
}

// WithImportBuffer sets the slack added to remote edit times on import
func WithImportBuffer(buffer time.Duration) Option {
	return func(s *Service) { s.importBuffer = buffer }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRetry retries rate limited and transient remote failures up to maxRetries times
func WithRetry(maxRetries int) Option {
	return func(s *Service) { s.maxRetries = maxRetries }
}

// WithDryRun makes passes select and report items without applying them
func WithDryRun(dryRun bool) Option {
	return func(s *Service) { s.dryRun = dryRun }
}

// NewService creates a new sync service
func NewService(settings SettingsProvider, cursors CursorStore, remote RemoteRepository, local LocalRepository, opts ...Option) *Service {
	s := &Service{
		settings:     settings,
		cursors:      cursors,
		remote:       remote,
		local:        local,
		logger:       loggy.NewNoopLogger(),
		concurrency:  DefaultConcurrency,
		importBuffer: DefaultImportBuffer,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxRetries > 0 {
		s.remote = NewRetryingRemote(remote, s.maxRetries, s.logger)
	}
	return s
}

// passSettings checks that the settings a pass needs are present and
// returns them with the database ID of direction normalized
func (s *Service) passSettings(direction Direction) (config.SyncSettings, string, error) {
	settings := s.settings.Settings()

	var missing []string
	if strings.TrimSpace(settings.Token) == "" {
		missing = append(missing, "API token")
	}

	raw, name := settings.ExportDatabaseID, "export database ID"
	if direction == DirectionImport {
		raw, name = settings.ImportDatabaseID, "import database ID"
	}

	var databaseID string
	if strings.TrimSpace(raw) == "" {
		missing = append(missing, name)
	} else if id, err := notion.NormalizeID(raw); err != nil {
		missing = append(missing, "valid "+name)
	} else {
		databaseID = id
	}

	if len(missing) > 0 {
		return settings, "", &ConfigurationError{Direction: direction, Missing: missing}
	}
	return settings, databaseID, nil
}

// RunExportPass sends the notes changed since the last export
func (s *Service) RunExportPass(ctx context.Context) (SummaryReport, error) {
	return s.runExport(ctx, false)
}

// ForceExportPass resets the export cursor and sends every note of the export folder
func (s *Service) ForceExportPass(ctx context.Context) (SummaryReport, error) {
	return s.runExport(ctx, true)
}

// RunImportPass writes the pages edited since the last import
func (s *Service) RunImportPass(ctx context.Context) (SummaryReport, error) {
	return s.runImport(ctx, false)
}

// ForceImportPass resets the import cursor and writes every page of the import database
func (s *Service) ForceImportPass(ctx context.Context) (SummaryReport, error) {
	return s.runImport(ctx, true)
}

func (s *Service) runExport(ctx context.Context, force bool) (SummaryReport, error) {
	s.exportMu.Lock()
	defer s.exportMu.Unlock()

	settings, databaseID, err := s.passSettings(DirectionExport)
	if err != nil {
		return s.failPass(ctx, DirectionExport, err)
	}

	if force && !s.dryRun {
		if err := s.cursors.SetExportedTime(ctx, config.Epoch); err != nil {
			return s.failPass(ctx, DirectionExport, fmt.Errorf("resetting export cursor: %w", err))
		}
	}

	selected, err := s.exportCandidates(ctx, settings, force)
	if err != nil {
		return s.failPass(ctx, DirectionExport, err)
	}

	ctx, run := s.beginPass(ctx, DirectionExport, len(selected))
	s.runItems(ctx, run, len(selected),
		func(i int) string { return selected[i].Path },
		func(ctx context.Context, i int) (Action, string, error) {
			if s.dryRun {
				return planExportAction(selected[i]), selected[i].Frontmatter.NotionID(), nil
			}
			return s.exportNote(ctx, settings, databaseID, selected[i])
		})

	return s.finishPass(ctx, run, func(end time.Time) error {
		return s.cursors.SetExportedTime(ctx, end)
	})
}

func (s *Service) runImport(ctx context.Context, force bool) (SummaryReport, error) {
	s.importMu.Lock()
	defer s.importMu.Unlock()

	settings, databaseID, err := s.passSettings(DirectionImport)
	if err != nil {
		return s.failPass(ctx, DirectionImport, err)
	}

	if force && !s.dryRun {
		if err := s.cursors.SetImportedTime(ctx, config.Epoch); err != nil {
			return s.failPass(ctx, DirectionImport, fmt.Errorf("resetting import cursor: %w", err))
		}
	}

	selected, err := s.importCandidates(ctx, databaseID, force)
	if err != nil {
		return s.failPass(ctx, DirectionImport, err)
	}

	ctx, run := s.beginPass(ctx, DirectionImport, len(selected))
	s.runItems(ctx, run, len(selected),
		func(i int) string { return selected[i].Title },
		func(ctx context.Context, i int) (Action, string, error) {
			if s.dryRun {
				return ActionPlanned, selected[i].ID, nil
			}
			return s.importPage(ctx, settings, databaseID, selected[i])
		})

	return s.finishPass(ctx, run, func(end time.Time) error {
		return s.cursors.SetImportedTime(ctx, end)
	})
}

func (s *Service) exportCandidates(ctx context.Context, settings config.SyncSettings, force bool) ([]vault.Note, error) {
	since := config.Epoch
	if !force {
		cursor, err := s.cursors.LoadCursor(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading cursor: %w", err)
		}
		since = cursor.LastExportedTime
	}

	notes, err := s.local.ListChangedCandidates(settings.ExportFolder, since)
	if err != nil {
		return nil, err
	}
	return SelectNotes(notes, since), nil
}

func (s *Service) importCandidates(ctx context.Context, databaseID string, force bool) ([]notion.RemotePage, error) {
	since := config.Epoch
	if !force {
		cursor, err := s.cursors.LoadCursor(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading cursor: %w", err)
		}
		since = cursor.LastImportedTime
	}

	pages, err := s.remote.QueryDatabase(ctx, databaseID, ImportQueryFilter(since, s.importBuffer, force))
	if err != nil {
		return nil, err
	}
	return SelectPages(pages, since, s.importBuffer), nil
}

// exportNote creates or updates the remote page of note
func (s *Service) exportNote(ctx context.Context, settings config.SyncSettings, databaseID string, note vault.Note) (Action, string, error) {
	if note.ParseErr != nil {
		return "", "", fmt.Errorf("reading %s: %w", note.Path, note.ParseErr)
	}

	input := notion.PageInput{
		Title:  note.Title(),
		Blocks: markdown.MarkdownToBlocks(note.Body),
	}
	if settings.ConvertTags {
		input.Tags = note.Frontmatter.Tags()
		if input.Tags == nil {
			input.Tags = []string{}
		}
	}

	if pageID := note.Frontmatter.NotionID(); pageID != "" {
		return ActionUpdated, pageID, s.remote.UpdatePage(ctx, pageID, input)
	}

	page, err := s.remote.CreatePage(ctx, databaseID, input)
	if err != nil {
		if page.ID == "" {
			var conflict *notion.ConflictError
			if errors.As(err, &conflict) {
				s.conflictFallback(ctx, note)
				return ActionFallback, "", err
			}
			return ActionCreated, "", err
		}
		// The page exists without its full body, record it so the next
		// export updates it instead of creating another one
		if werr := s.recordRemoteID(note.Path, page); werr != nil {
			loggy.FromContext(ctx).Warn("Failed to record page ID", "path", note.Path, "error", werr)
		}
		return ActionCreated, page.ID, err
	}

	if err := s.recordRemoteID(note.Path, page); err != nil {
		return ActionCreated, page.ID, err
	}
	return ActionCreated, page.ID, nil
}

// recordRemoteID writes the page ID, its link and the note path into the
// frontmatter of the note at p. The note is read again since it may have
// changed during the remote call.
func (s *Service) recordRemoteID(p string, page notion.RemotePage) error {
	note, err := s.local.ReadNote(p)
	if err != nil {
		return err
	}
	if note.ParseErr != nil {
		return fmt.Errorf("recording page ID in %s: %w", p, note.ParseErr)
	}

	fm := note.Frontmatter.Clone()
	link := page.URL
	if link == "" {
		link = notion.PageURL(page.ID)
	}
	for _, kv := range [][2]string{
		{markdown.KeyNotionID, page.ID},
		{markdown.KeyLink, link},
		{markdown.KeyFilePath, note.Path},
	} {
		if err := fm.Set(kv[0], kv[1]); err != nil {
			return err
		}
	}

	content, err := markdown.RenderFrontmatter(fm, note.Body)
	if err != nil {
		return err
	}
	return s.local.WriteNote(p, content)
}

// conflictFallback rewrites the note of the same title at the vault root
// when there is one. A missing target or a failed write is reported as an
// item of its own.
func (s *Service) conflictFallback(ctx context.Context, note vault.Note) {
	target := vault.NotePath("/", note.Title())
	started := s.now()
	logger := loggy.FromContext(ctx)

	exists, err := s.local.Exists(target)
	if err == nil && !exists {
		err = &vault.LocalIOError{Op: "conflict", Path: target, Err: errNoConflictTarget}
	}
	if err == nil {
		err = s.local.WriteNote(target, note.Raw)
	}
	if err == nil {
		logger.Info("Page already exists, note rewritten locally", "path", note.Path, "target", target)
		return
	}

	logger.Warn("Conflict fallback failed", "path", note.Path, "target", target, "error", err)
	s.observer.OnItemFailed(ctx, ItemEvent{
		PassID:    loggy.GetPassID(ctx),
		Direction: DirectionExport,
		Ref:       target,
		Action:    ActionFallback,
		StartedAt: started,
		Duration:  s.now().Sub(started),
		Err:       err,
	})
}

// importPage writes page into the import folder, merging with an existing note
func (s *Service) importPage(ctx context.Context, settings config.SyncSettings, databaseID string, page notion.RemotePage) (Action, string, error) {
	blocks, err := s.remote.GetPageBlocks(ctx, page.ID)
	if err != nil {
		return "", page.ID, err
	}
	body := markdown.BlocksToMarkdown(blocks)

	target := vault.NotePath(settings.ImportFolder, page.Title)
	if err := s.local.EnsureDirectory(path.Dir(target)); err != nil {
		return "", page.ID, err
	}

	action := ActionCreated
	fm := markdown.NewFrontmatter()

	exists, err := s.local.Exists(target)
	if err != nil {
		return "", page.ID, err
	}
	if exists {
		action = ActionUpdated
		existing, err := s.local.ReadNote(target)
		if err != nil {
			return action, page.ID, err
		}
		if existing.ParseErr == nil {
			fm = existing.Frontmatter.Clone()
		}
	}

	link := page.URL
	if link == "" {
		link = notion.PageURL(page.ID)
	}
	if err := fm.Set(markdown.KeyLink, link); err != nil {
		return action, page.ID, err
	}

	// Tags mirror the page, so tags removed remotely are removed locally.
	// A nil page tag list means the database has no tags property.
	if page.Tags != nil || len(settings.ImportTags) > 0 {
		tags := append(append([]string(nil), page.Tags...), settings.ImportTags...)
		if err := fm.SetTags(tags); err != nil {
			return action, page.ID, err
		}
	}

	if sameDatabase(databaseID, settings.ExportDatabaseID) {
		if err := fm.Set(markdown.KeyNotionID, page.ID); err != nil {
			return action, page.ID, err
		}
	}

	content, err := markdown.RenderFrontmatter(fm, body)
	if err != nil {
		return action, page.ID, err
	}
	if err := s.local.WriteNote(target, content); err != nil {
		return action, page.ID, err
	}
	return action, page.ID, nil
}

// sameDatabase compares a normalized ID with a configured one
func sameDatabase(normalized, configured string) bool {
	if strings.TrimSpace(configured) == "" {
		return false
	}
	id, err := notion.NormalizeID(configured)
	return err == nil && id == normalized
}

// PlanExport lists the notes the next export would send
func (s *Service) PlanExport(ctx context.Context, force bool) (Plan, error) {
	settings, _, err := s.passSettings(DirectionExport)
	if err != nil {
		return Plan{}, err
	}

	selected, err := s.exportCandidates(ctx, settings, force)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{Direction: DirectionExport}
	for _, note := range selected {
		plan.Items = append(plan.Items, PlanItem{
			Ref:      note.Path,
			RemoteID: note.Frontmatter.NotionID(),
			Action:   planExportAction(note),
			Changed:  note.ModTime,
		})
	}
	return plan, nil
}

// PlanImport lists the pages the next import would write
func (s *Service) PlanImport(ctx context.Context, force bool) (Plan, error) {
	settings, databaseID, err := s.passSettings(DirectionImport)
	if err != nil {
		return Plan{}, err
	}

	selected, err := s.importCandidates(ctx, databaseID, force)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{Direction: DirectionImport}
	for _, page := range selected {
		plan.Items = append(plan.Items, PlanItem{
			Ref:      page.Title,
			RemoteID: page.ID,
			Changed:  page.LastEditedTime,
			Target:   vault.NotePath(settings.ImportFolder, page.Title),
		})
	}
	return plan, nil
}

func planExportAction(note vault.Note) Action {
	if note.ParseErr == nil && note.Frontmatter.NotionID() != "" {
		return ActionUpdated
	}
	return ActionCreated
}

// PreviewPage renders the body of one remote page as Markdown
func (s *Service) PreviewPage(ctx context.Context, pageID string) (string, error) {
	if _, _, err := s.passSettings(DirectionImport); err != nil {
		return "", err
	}
	id, err := notion.NormalizeID(pageID)
	if err != nil {
		return "", err
	}
	blocks, err := s.remote.GetPageBlocks(ctx, id)
	if err != nil {
		return "", err
	}
	return markdown.BlocksToMarkdown(blocks), nil
}

// ArchiveNote archives the remote page of the note at p and removes the
// remote references from its frontmatter
func (s *Service) ArchiveNote(ctx context.Context, p string) (string, error) {
	s.exportMu.Lock()
	defer s.exportMu.Unlock()

	if _, _, err := s.passSettings(DirectionExport); err != nil {
		return "", err
	}

	note, err := s.local.ReadNote(p)
	if err != nil {
		return "", err
	}
	if note.ParseErr != nil {
		return "", note.ParseErr
	}
	pageID := note.Frontmatter.NotionID()
	if pageID == "" {
		return "", fmt.Errorf("%s has no %s", p, markdown.KeyNotionID)
	}

	if err := s.remote.ArchivePage(ctx, pageID); err != nil {
		return pageID, err
	}

	fm := note.Frontmatter.Clone()
	fm.Delete(markdown.KeyNotionID)
	fm.Delete(markdown.KeyLink)
	fm.Delete(markdown.KeyFilePath)

	content, err := markdown.RenderFrontmatter(fm, note.Body)
	if err != nil {
		return pageID, err
	}
	if err := s.local.WriteNote(p, content); err != nil {
		return pageID, err
	}

	s.logger.Info("Archived page", "path", p, "page_id", pageID)
	return pageID, nil
}

// passRun collects the outcome of a running pass
type passRun struct {
	mu      gosync.Mutex
	started time.Time
	report  SummaryReport
}

func (r *passRun) record(failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.ItemsChanged++
	if failed {
		r.report.Failed++
	} else {
		r.report.Succeeded++
	}
}

func (s *Service) beginPass(ctx context.Context, direction Direction, total int) (context.Context, *passRun) {
	passID := ulid.PassID()
	ctx = loggy.WithPassID(ctx, s.logger, passID)

	run := &passRun{
		started: s.now(),
		report:  SummaryReport{PassID: passID, Direction: direction, DryRun: s.dryRun},
	}

	loggy.FromContext(ctx).Info("Starting pass", "direction", direction, "items", total, "dry_run", s.dryRun)
	s.observer.OnPassStart(ctx, PassEvent{
		PassID:    passID,
		Direction: direction,
		Total:     total,
		StartedAt: run.started,
	})
	return ctx, run
}

// runItems applies apply to n items with bounded concurrency. Item
// failures are reported and counted, never returned. Items not started
// before ctx is done are not attempted.
func (s *Service) runItems(ctx context.Context, run *passRun, n int, ref func(int) string, apply func(context.Context, int) (Action, string, error)) {
	logger := loggy.FromContext(ctx)
	direction := run.report.Direction

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			started := s.now()
			action, remoteID, err := apply(ctx, i)
			event := ItemEvent{
				PassID:    run.report.PassID,
				Direction: direction,
				Ref:       ref(i),
				RemoteID:  remoteID,
				Action:    action,
				StartedAt: started,
				Duration:  s.now().Sub(started),
				Err:       err,
			}

			run.record(err != nil)
			if err != nil {
				logger.Warn("Item failed", "item", event.Ref, "error_type", ClassifyError(err), "error", err)
				s.observer.OnItemFailed(ctx, event)
				return nil
			}

			logger.Debug("Item synced", "item", event.Ref, "action", action, "remote_id", remoteID)
			s.observer.OnItemSynced(ctx, event)
			return nil
		})
	}
	_ = g.Wait()
}

// finishPass advances the cursor unless the pass was cancelled or dry
func (s *Service) finishPass(ctx context.Context, run *passRun, advance func(time.Time) error) (SummaryReport, error) {
	end := s.now()
	report := run.report
	report.Duration = end.Sub(run.started)
	logger := loggy.FromContext(ctx)

	var err error
	switch {
	case ctx.Err() != nil:
		err = ctx.Err()
		logger.Warn("Pass interrupted, cursor not advanced", "direction", report.Direction)
	case s.dryRun:
	default:
		if cerr := advance(end); cerr != nil {
			err = fmt.Errorf("advancing %s cursor: %w", report.Direction, cerr)
		}
	}

	s.observer.OnPassComplete(ctx, PassEvent{
		PassID:    report.PassID,
		Direction: report.Direction,
		Total:     report.ItemsChanged,
		StartedAt: run.started,
		Report:    &report,
		Err:       err,
	})

	logger.Info("Pass completed",
		"direction", report.Direction,
		"changed", report.ItemsChanged,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return report, err
}

// failPass reports a pass that stopped before processing any item
func (s *Service) failPass(ctx context.Context, direction Direction, err error) (SummaryReport, error) {
	passID := ulid.PassID()
	ctx = loggy.WithPassID(ctx, s.logger, passID)
	started := s.now()

	report := SummaryReport{PassID: passID, Direction: direction, DryRun: s.dryRun}
	loggy.FromContext(ctx).Error("Pass failed", "direction", direction, "error_type", ClassifyError(err), "error", err)
	s.observer.OnPassComplete(ctx, PassEvent{
		PassID:    passID,
		Direction: direction,
		StartedAt: started,
		Report:    &report,
		Err:       err,
	})
	return report, err
}
