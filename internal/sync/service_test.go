package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	gosync "sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/notesync/internal/config"
	"github.com/tildaslashalef/notesync/internal/loggy"
	"github.com/tildaslashalef/notesync/internal/markdown"
	"github.com/tildaslashalef/notesync/internal/notion"
	"github.com/tildaslashalef/notesync/internal/vault"
)

const (
	testDatabaseID  = "11111111-2222-3333-4444-555555555555"
	otherDatabaseID = "66666666-7777-8888-9999-000000000000"
)

var (
	noteTime = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	passTime = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
)

type fakeSettings struct {
	settings config.SyncSettings
}

func (f *fakeSettings) Settings() config.SyncSettings {
	return f.settings
}

type fakeCursors struct {
	mu     gosync.Mutex
	cursor config.Cursor
	resets int
}

func newFakeCursors() *fakeCursors {
	return &fakeCursors{cursor: config.Cursor{LastExportedTime: config.Epoch, LastImportedTime: config.Epoch}}
}

func (f *fakeCursors) LoadCursor(context.Context) (config.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor, nil
}

func (f *fakeCursors) SetExportedTime(_ context.Context, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.Equal(config.Epoch) {
		f.resets++
	}
	f.cursor.LastExportedTime = t
	return nil
}

func (f *fakeCursors) SetImportedTime(_ context.Context, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.Equal(config.Epoch) {
		f.resets++
	}
	f.cursor.LastImportedTime = t
	return nil
}

type fakePage struct {
	page     notion.RemotePage
	blocks   []notion.Block
	archived bool
}

// fakeRemote is an in-memory remote database
type fakeRemote struct {
	mu         gosync.Mutex
	pages      map[string]*fakePage
	order      []string
	nextID     int
	creates    int
	updates    int
	queries    int
	filters    []*notion.QueryFilter
	failCreate map[string]error // by title
	failAfter  map[string]error // by title, returned once the page exists
	failUpdate map[string]error // by page ID
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		pages:      make(map[string]*fakePage),
		failCreate: make(map[string]error),
		failAfter:  make(map[string]error),
		failUpdate: make(map[string]error),
	}
}

func (f *fakeRemote) addPage(title string, edited time.Time, blocks ...notion.Block) notion.RemotePage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addPageLocked(title, nil, edited, blocks)
}

func (f *fakeRemote) addPageLocked(title string, tags []string, edited time.Time, blocks []notion.Block) notion.RemotePage {
	f.nextID++
	id := fmt.Sprintf("00000000-0000-0000-0000-%012d", f.nextID)
	page := notion.RemotePage{
		ID:             id,
		URL:            notion.PageURL(id),
		Title:          title,
		Tags:           tags,
		LastEditedTime: edited,
	}
	f.pages[id] = &fakePage{page: page, blocks: blocks}
	f.order = append(f.order, id)
	return page
}

func (f *fakeRemote) page(id string) *fakePage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[id]
}

func (f *fakeRemote) titles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var titles []string
	for _, id := range f.order {
		if !f.pages[id].archived {
			titles = append(titles, f.pages[id].page.Title)
		}
	}
	return titles
}

func (f *fakeRemote) QueryDatabase(_ context.Context, _ string, filter *notion.QueryFilter) ([]notion.RemotePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	f.filters = append(f.filters, filter)

	var pages []notion.RemotePage
	for _, id := range f.order {
		if p := f.pages[id]; !p.archived {
			pages = append(pages, p.page)
		}
	}
	return pages, nil
}

func (f *fakeRemote) CreatePage(_ context.Context, _ string, input notion.PageInput) (notion.RemotePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failCreate[input.Title]; err != nil {
		return notion.RemotePage{}, err
	}
	f.creates++
	page := f.addPageLocked(input.Title, input.Tags, passTime, input.Blocks)
	return page, f.failAfter[input.Title]
}

func (f *fakeRemote) UpdatePage(_ context.Context, pageID string, input notion.PageInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failUpdate[pageID]; err != nil {
		return err
	}
	p, ok := f.pages[pageID]
	if !ok {
		return &notion.RemoteError{StatusCode: 404, Code: "object_not_found"}
	}
	f.updates++
	p.page.Title = input.Title
	if input.Tags != nil {
		p.page.Tags = input.Tags
	}
	p.blocks = input.Blocks
	p.page.LastEditedTime = passTime
	return nil
}

func (f *fakeRemote) GetPageBlocks(_ context.Context, pageID string) ([]notion.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[pageID]
	if !ok {
		return nil, &notion.RemoteError{StatusCode: 404, Code: "object_not_found"}
	}
	return p.blocks, nil
}

func (f *fakeRemote) ArchivePage(_ context.Context, pageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[pageID]
	if !ok {
		return &notion.RemoteError{StatusCode: 404, Code: "object_not_found"}
	}
	p.archived = true
	return nil
}

type testEnv struct {
	service  *Service
	remote   *fakeRemote
	cursors  *fakeCursors
	settings *fakeSettings
	fs       afero.Fs
	events   *RecordingObserver
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	env := &testEnv{
		remote:  newFakeRemote(),
		cursors: newFakeCursors(),
		settings: &fakeSettings{settings: config.SyncSettings{
			Token:            "secret_token",
			ImportDatabaseID: testDatabaseID,
			ExportDatabaseID: testDatabaseID,
			ImportFolder:     "/",
			ExportFolder:     "/",
		}},
		fs:     afero.NewMemMapFs(),
		events: &RecordingObserver{},
	}

	opts = append([]Option{
		WithClock(func() time.Time { return passTime }),
		WithObservers(env.events),
	}, opts...)
	env.service = NewService(env.settings, env.cursors, env.remote, vault.NewRepository(env.fs, false), opts...)
	return env
}

func (e *testEnv) writeNote(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(e.fs, path, []byte(content), 0o644))
	require.NoError(t, e.fs.Chtimes(path, noteTime, noteTime))
}

func (e *testEnv) readNote(t *testing.T, path string) (*markdown.Frontmatter, string) {
	t.Helper()
	data, err := afero.ReadFile(e.fs, path)
	require.NoError(t, err)
	fm, body, err := markdown.ParseFrontmatter(string(data))
	require.NoError(t, err)
	return fm, body
}

func TestExportCreatesPageAndRecordsID(t *testing.T) {
	env := newTestEnv(t)
	env.writeNote(t, "/Alpha.md", "---\ntags: [work]\n---\n# Alpha\n\nText\n")

	report, err := env.service.RunExportPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.ItemsChanged)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 0, report.Failed)

	require.Equal(t, []string{"Alpha"}, env.remote.titles())
	pageID := env.remote.order[0]
	page := env.remote.page(pageID)
	assert.Len(t, page.blocks, 2)
	assert.Nil(t, page.page.Tags, "tags are not sent unless enabled")

	fm, body := env.readNote(t, "/Alpha.md")
	assert.Equal(t, pageID, fm.NotionID())
	assert.Equal(t, notion.PageURL(pageID), fm.GetString(markdown.KeyLink))
	assert.Equal(t, "Alpha.md", fm.GetString(markdown.KeyFilePath))
	assert.Equal(t, []string{"work"}, fm.Tags())
	assert.Equal(t, "# Alpha\n\nText\n", body)

	cursor, _ := env.cursors.LoadCursor(context.Background())
	assert.Equal(t, passTime, cursor.LastExportedTime)

	require.Len(t, env.events.Synced, 1)
	assert.Equal(t, ActionCreated, env.events.Synced[0].Action)
	require.Len(t, env.events.Done, 1)
	assert.NoError(t, env.events.Done[0].Err)
}

func TestExportSendsTagsWhenEnabled(t *testing.T) {
	env := newTestEnv(t)
	env.settings.settings.ConvertTags = true
	env.writeNote(t, "/Tagged.md", "---\ntags: \"#one, two\"\n---\nBody\n")
	env.writeNote(t, "/Untagged.md", "Body\n")

	_, err := env.service.RunExportPass(context.Background())
	require.NoError(t, err)

	tags := map[string][]string{}
	for _, id := range env.remote.order {
		p := env.remote.page(id)
		tags[p.page.Title] = p.page.Tags
	}
	assert.Equal(t, []string{"one", "two"}, tags["Tagged"])
	assert.Equal(t, []string{}, tags["Untagged"])
}

func TestExportIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.writeNote(t, "/One.md", "One\n")
	env.writeNote(t, "/Two.md", "Two\n")

	first, err := env.service.RunExportPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.ItemsChanged)

	second, err := env.service.RunExportPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.ItemsChanged)
	assert.Equal(t, 2, env.remote.creates)
	assert.Equal(t, 0, env.remote.updates)
}

func TestExportCreateVersusUpdate(t *testing.T) {
	env := newTestEnv(t)
	existing := env.remote.addPage("Known", noteTime, notion.NewParagraph(notion.NewText("old", nil, "")))

	env.writeNote(t, "/Known.md", "---\nnotionID: "+existing.ID+"\n---\nnew body\n")
	env.writeNote(t, "/Fresh.md", "fresh\n")

	report, err := env.service.RunExportPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)

	assert.Equal(t, 1, env.remote.creates)
	assert.Equal(t, 1, env.remote.updates)
	assert.Equal(t, []string{"Known", "Fresh"}, env.remote.titles())

	blocks := env.remote.page(existing.ID).blocks
	require.Len(t, blocks, 1)
	assert.Equal(t, "new body", notion.PlainText(blocks[0].RichText()))

	actions := map[string]Action{}
	for _, e := range env.events.Synced {
		actions[e.Ref] = e.Action
	}
	assert.Equal(t, map[string]Action{"Known.md": ActionUpdated, "Fresh.md": ActionCreated}, actions)
}

func TestExportUpdateFailureNeverCreates(t *testing.T) {
	env := newTestEnv(t)
	env.writeNote(t, "/Gone.md", "---\nnotionID: 00000000-0000-0000-0000-000000000999\n---\nbody\n")

	report, err := env.service.RunExportPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, env.remote.creates)
}

func TestExportPartialFailure(t *testing.T) {
	env := newTestEnv(t, WithConcurrency(1))
	env.remote.failCreate["two"] = &notion.RemoteError{StatusCode: 400, Code: "validation_error", Message: "bad"}

	env.writeNote(t, "/one.md", "1\n")
	env.writeNote(t, "/two.md", "2\n")
	env.writeNote(t, "/three.md", "3\n")

	report, err := env.service.RunExportPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.ItemsChanged)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	assert.ElementsMatch(t, []string{"one", "three"}, env.remote.titles())

	cursor, _ := env.cursors.LoadCursor(context.Background())
	assert.Equal(t, passTime, cursor.LastExportedTime)

	require.Len(t, env.events.Failed, 1)
	assert.Equal(t, "two.md", env.events.Failed[0].Ref)
	assert.Equal(t, ErrorTypeRemoteClient, ClassifyError(env.events.Failed[0].Err))

	fm, _ := env.readNote(t, "/two.md")
	assert.Empty(t, fm.NotionID())
}

func TestExportMalformedFrontmatterIsItemFailure(t *testing.T) {
	env := newTestEnv(t)
	env.writeNote(t, "/bad.md", "---\ntitle: [oops\n---\nbody\n")
	env.writeNote(t, "/good.md", "body\n")

	report, err := env.service.RunExportPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	require.Len(t, env.events.Failed, 1)
	assert.Equal(t, ErrorTypeConversion, ClassifyError(env.events.Failed[0].Err))
}

func TestExportConflictFallback(t *testing.T) {
	env := newTestEnv(t)
	env.settings.settings.ExportFolder = "/notes"
	env.remote.failCreate["Dup"] = &notion.ConflictError{Remote: &notion.RemoteError{StatusCode: 409, Code: "conflict_error"}}

	raw := "---\nkeep: me\n---\nDuplicate\n"
	env.writeNote(t, "/notes/Dup.md", raw)
	env.writeNote(t, "/Dup.md", "stale\n")

	report, err := env.service.RunExportPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	data, err := afero.ReadFile(env.fs, "/Dup.md")
	require.NoError(t, err)
	assert.Equal(t, raw, string(data))

	require.Len(t, env.events.Failed, 1)
	assert.Equal(t, ActionFallback, env.events.Failed[0].Action)
	assert.Equal(t, ErrorTypeConflict, ClassifyError(env.events.Failed[0].Err))
}

func TestExportConflictFallbackWithoutRootNote(t *testing.T) {
	env := newTestEnv(t)
	env.settings.settings.ExportFolder = "/notes"
	env.remote.failCreate["Dup"] = &notion.ConflictError{Remote: &notion.RemoteError{StatusCode: 409}}
	env.writeNote(t, "/notes/Dup.md", "Duplicate\n")

	report, err := env.service.RunExportPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	exists, err := afero.Exists(env.fs, "/Dup.md")
	require.NoError(t, err)
	assert.False(t, exists, "no copy is created at the vault root")

	require.Len(t, env.events.Failed, 2)
	types := []ErrorType{ClassifyError(env.events.Failed[0].Err), ClassifyError(env.events.Failed[1].Err)}
	assert.ElementsMatch(t, []ErrorType{ErrorTypeLocalIO, ErrorTypeConflict}, types)
}

func TestExportConflictFallbackFailureIsReported(t *testing.T) {
	env := newTestEnv(t)
	env.settings.settings.ExportFolder = "/notes"
	env.remote.failCreate["Dup"] = &notion.ConflictError{Remote: &notion.RemoteError{StatusCode: 409}}
	env.writeNote(t, "/notes/Dup.md", "Duplicate\n")
	env.writeNote(t, "/Dup.md", "stale\n")

	readOnly := vault.NewRepository(afero.NewReadOnlyFs(env.fs), false)
	service := NewService(env.settings, env.cursors, env.remote, readOnly,
		WithClock(func() time.Time { return passTime }),
		WithObservers(env.events),
	)

	report, err := service.RunExportPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	require.Len(t, env.events.Failed, 2)
	types := []ErrorType{ClassifyError(env.events.Failed[0].Err), ClassifyError(env.events.Failed[1].Err)}
	assert.ElementsMatch(t, []ErrorType{ErrorTypeLocalIO, ErrorTypeConflict}, types)

	data, err := afero.ReadFile(env.fs, "/Dup.md")
	require.NoError(t, err)
	assert.Equal(t, "stale\n", string(data))
}

func TestExportConflictAfterCreateRecordsPage(t *testing.T) {
	env := newTestEnv(t)
	env.remote.failAfter["Late"] = &notion.ConflictError{Remote: &notion.RemoteError{StatusCode: 409}}
	env.writeNote(t, "/Late.md", "body\n")

	report, err := env.service.RunExportPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	require.Len(t, env.events.Failed, 1)
	assert.Equal(t, ActionCreated, env.events.Failed[0].Action)

	fm, _ := env.readNote(t, "/Late.md")
	require.NotEmpty(t, fm.NotionID())
	require.NotNil(t, env.remote.page(fm.NotionID()))

	// The next export updates the recorded page instead of creating a duplicate
	delete(env.remote.failAfter, "Late")
	_, err = env.service.ForceExportPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, env.remote.creates)
	assert.Equal(t, 1, env.remote.updates)
}

// unreadableFs fails every access to one file
type unreadableFs struct {
	afero.Fs
	name string
}

func (f unreadableFs) Stat(name string) (os.FileInfo, error) {
	if name == f.name {
		return nil, os.ErrPermission
	}
	return f.Fs.Stat(name)
}

func (f unreadableFs) Open(name string) (afero.File, error) {
	if name == f.name {
		return nil, os.ErrPermission
	}
	return f.Fs.Open(name)
}

func TestExportUnreadableNoteIsItemFailure(t *testing.T) {
	env := newTestEnv(t)
	env.writeNote(t, "/Good.md", "good\n")
	env.writeNote(t, "/Broken.md", "broken\n")

	repo := vault.NewRepository(unreadableFs{Fs: env.fs, name: "/Broken.md"}, false)
	service := NewService(env.settings, env.cursors, env.remote, repo,
		WithClock(func() time.Time { return passTime }),
		WithObservers(env.events),
	)

	report, err := service.RunExportPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.ItemsChanged)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"Good"}, env.remote.titles())

	require.Len(t, env.events.Failed, 1)
	assert.Equal(t, "Broken.md", env.events.Failed[0].Ref)
	assert.Equal(t, ErrorTypeLocalIO, ClassifyError(env.events.Failed[0].Err))

	cursor, _ := env.cursors.LoadCursor(context.Background())
	assert.Equal(t, passTime, cursor.LastExportedTime)
}

func TestPassRequiresConfiguration(t *testing.T) {
	tests := []struct {
		name     string
		settings config.SyncSettings
		run      func(*Service) (SummaryReport, error)
		missing  []string
	}{
		{
			name:     "export without token",
			settings: config.SyncSettings{ExportDatabaseID: testDatabaseID},
			run:      func(s *Service) (SummaryReport, error) { return s.RunExportPass(context.Background()) },
			missing:  []string{"API token"},
		},
		{
			name:     "export without database",
			settings: config.SyncSettings{Token: "t", ImportDatabaseID: testDatabaseID},
			run:      func(s *Service) (SummaryReport, error) { return s.ForceExportPass(context.Background()) },
			missing:  []string{"export database ID"},
		},
		{
			name:     "import with invalid database",
			settings: config.SyncSettings{Token: "t", ImportDatabaseID: "not-an-id"},
			run:      func(s *Service) (SummaryReport, error) { return s.RunImportPass(context.Background()) },
			missing:  []string{"valid import database ID"},
		},
		{
			name:     "import without anything",
			settings: config.SyncSettings{},
			run:      func(s *Service) (SummaryReport, error) { return s.ForceImportPass(context.Background()) },
			missing:  []string{"API token", "import database ID"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.settings.settings = tt.settings
			env.writeNote(t, "/note.md", "body\n")

			_, err := tt.run(env.service)
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.missing, cfgErr.Missing)

			assert.Equal(t, 0, env.remote.queries)
			assert.Equal(t, 0, env.remote.creates)
			assert.Equal(t, 0, env.cursors.resets, "force does not reset before validation")
		})
	}
}

func TestRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.settings.settings.ImportFolder = "/imported"
	env.settings.settings.ImportTags = []string{"notion"}

	bodies := map[string]string{
		"Headings": "# One\n\n## Two\n\n### Three\n",
		"Prose":    "First paragraph with **bold** text.\n\nSecond paragraph.\n",
		"Lists":    "- alpha\n- beta\n    - gamma\n- delta\n",
	}
	for title, body := range bodies {
		env.writeNote(t, "/"+title+".md", body)
	}

	_, err := env.service.RunExportPass(context.Background())
	require.NoError(t, err)

	report, err := env.service.ForceImportPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Succeeded)

	for title, body := range bodies {
		fm, imported := env.readNote(t, "/imported/"+title+".md")
		assert.Equal(t, body, imported, title)
		assert.NotEmpty(t, fm.NotionID(), "same database records the page ID")
		assert.Equal(t, []string{"notion"}, fm.Tags())
	}
}

func TestImportMergesExistingNote(t *testing.T) {
	env := newTestEnv(t)
	env.settings.settings.ExportDatabaseID = otherDatabaseID
	env.settings.settings.ImportFolder = "imported"

	page := env.remote.addPage("Page", noteTime, notion.NewParagraph(notion.NewText("remote body", nil, "")))
	env.writeNote(t, "/imported/Page.md", "---\ncustom: keep\n---\nlocal body\n")

	report, err := env.service.RunImportPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	fm, body := env.readNote(t, "/imported/Page.md")
	assert.Equal(t, "remote body\n", body)
	assert.Equal(t, "keep", fm.GetString("custom"))
	assert.Equal(t, page.URL, fm.GetString(markdown.KeyLink))
	assert.Empty(t, fm.NotionID(), "different databases do not record the page ID")

	require.Len(t, env.events.Synced, 1)
	assert.Equal(t, ActionUpdated, env.events.Synced[0].Action)

	cursor, _ := env.cursors.LoadCursor(context.Background())
	assert.Equal(t, passTime, cursor.LastImportedTime)
}

func TestImportRemovesTagsDeletedRemotely(t *testing.T) {
	env := newTestEnv(t)
	env.remote.mu.Lock()
	env.remote.addPageLocked("Tagged", []string{}, noteTime, nil)
	env.remote.mu.Unlock()
	env.writeNote(t, "/Tagged.md", "---\ntags: [old]\n---\nbody\n")

	_, err := env.service.ForceImportPass(context.Background())
	require.NoError(t, err)

	fm, _ := env.readNote(t, "/Tagged.md")
	assert.Empty(t, fm.Tags())
}

func TestImportTagsFollowPageAndImportTags(t *testing.T) {
	env := newTestEnv(t)
	env.settings.settings.ImportTags = []string{"notion"}
	env.remote.mu.Lock()
	env.remote.addPageLocked("Tagged", []string{"kept"}, noteTime, nil)
	env.remote.mu.Unlock()
	env.writeNote(t, "/Tagged.md", "---\ntags: [old, kept]\n---\nbody\n")

	_, err := env.service.ForceImportPass(context.Background())
	require.NoError(t, err)

	fm, _ := env.readNote(t, "/Tagged.md")
	assert.Equal(t, []string{"kept", "notion"}, fm.Tags())
}

func TestImportWithoutTagsPropertyKeepsLocalTags(t *testing.T) {
	env := newTestEnv(t)
	env.remote.addPage("Plain", noteTime)
	env.writeNote(t, "/Plain.md", "---\ntags: [local]\n---\nbody\n")

	_, err := env.service.ForceImportPass(context.Background())
	require.NoError(t, err)

	fm, _ := env.readNote(t, "/Plain.md")
	assert.Equal(t, []string{"local"}, fm.Tags())
}

func TestForceImportSelectsAllPages(t *testing.T) {
	env := newTestEnv(t)
	env.remote.addPage("Old", noteTime)
	env.remote.addPage("Older", noteTime.Add(-24*time.Hour))
	env.cursors.cursor.LastImportedTime = noteTime.Add(time.Hour)

	report, err := env.service.RunImportPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.ItemsChanged)
	require.NotNil(t, env.remote.filters[0], "incremental import filters on the server")

	report, err = env.service.ForceImportPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.ItemsChanged)
	assert.Equal(t, 1, env.cursors.resets)
	assert.Nil(t, env.remote.filters[1], "force import queries everything")

	exists, err := afero.Exists(env.fs, "/Older.md")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCancelledPassKeepsCursor(t *testing.T) {
	env := newTestEnv(t)
	env.writeNote(t, "/one.md", "1\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := env.service.RunExportPass(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.ItemsChanged)

	cursor, _ := env.cursors.LoadCursor(context.Background())
	assert.Equal(t, config.Epoch, cursor.LastExportedTime)
}

func TestDryRunAppliesNothing(t *testing.T) {
	env := newTestEnv(t, WithDryRun(true))
	env.writeNote(t, "/one.md", "1\n")
	env.remote.addPage("Remote", noteTime)

	report, err := env.service.ForceExportPass(context.Background())
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.ItemsChanged)

	report, err = env.service.RunImportPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.ItemsChanged)

	assert.Equal(t, 0, env.remote.creates)
	assert.Equal(t, 0, env.cursors.resets)
	cursor, _ := env.cursors.LoadCursor(context.Background())
	assert.Equal(t, config.Epoch, cursor.LastExportedTime)
	assert.Equal(t, config.Epoch, cursor.LastImportedTime)

	exists, _ := afero.Exists(env.fs, "/Remote.md")
	assert.False(t, exists)
}

func TestPlanExportAndImport(t *testing.T) {
	env := newTestEnv(t)
	env.settings.settings.ImportFolder = "/in"
	env.writeNote(t, "/new.md", "new\n")
	env.writeNote(t, "/known.md", "---\nnotionID: abc\n---\nknown\n")
	page := env.remote.addPage("What: now?", noteTime)

	plan, err := env.service.PlanExport(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, plan.Items, 2)
	assert.Equal(t, "known.md", plan.Items[0].Ref)
	assert.Equal(t, ActionUpdated, plan.Items[0].Action)
	assert.Equal(t, ActionCreated, plan.Items[1].Action)

	plan, err = env.service.PlanImport(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, plan.Items, 1)
	assert.Equal(t, page.ID, plan.Items[0].RemoteID)
	assert.Equal(t, "in/What- now-.md", plan.Items[0].Target)

	assert.Equal(t, 0, env.remote.creates)
	assert.Empty(t, env.events.Done, "plans do not run passes")
}

func TestPreviewPage(t *testing.T) {
	env := newTestEnv(t)
	page := env.remote.addPage("Doc", noteTime,
		notion.NewHeading(1, notion.NewText("Doc", nil, "")),
		notion.NewParagraph(notion.NewText("text", nil, "")),
	)

	out, err := env.service.PreviewPage(context.Background(), notion.PageURL(page.ID))
	require.NoError(t, err)
	assert.Equal(t, "# Doc\n\ntext\n", out)

	_, err = env.service.PreviewPage(context.Background(), "nope")
	assert.Error(t, err)
}

func TestArchiveNote(t *testing.T) {
	env := newTestEnv(t)
	page := env.remote.addPage("Old", noteTime)
	env.writeNote(t, "/Old.md", "---\nnotionID: "+page.ID+"\nlink: "+page.URL+"\nkeep: yes\n---\nbody\n")

	id, err := env.service.ArchiveNote(context.Background(), "Old.md")
	require.NoError(t, err)
	assert.Equal(t, page.ID, id)
	assert.True(t, env.remote.page(page.ID).archived)

	fm, body := env.readNote(t, "/Old.md")
	assert.Empty(t, fm.NotionID())
	assert.Empty(t, fm.GetString(markdown.KeyLink))
	assert.Equal(t, "yes", fm.GetString("keep"))
	assert.Equal(t, "body\n", body)

	_, err = env.service.ArchiveNote(context.Background(), "Old.md")
	assert.Error(t, err, "note no longer has a page")
}

type memoryLogRepository struct {
	mu   gosync.Mutex
	logs []*SyncLog
}

func (m *memoryLogRepository) CreateSyncLog(_ context.Context, log *SyncLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

func (m *memoryLogRepository) GetSyncLogs(context.Context, Direction, int, int) ([]*SyncLog, error) {
	return m.logs, nil
}

func (m *memoryLogRepository) GetLatestSyncLog(context.Context, Direction) (*SyncLog, error) {
	return nil, nil
}

func TestLogObserverPersistsPass(t *testing.T) {
	repo := &memoryLogRepository{}
	env := newTestEnv(t, WithObservers(NewLogObserver(repo, loggy.NewNoopLogger())), WithConcurrency(1))
	env.remote.failCreate["bad"] = &notion.RemoteError{StatusCode: 503}
	env.writeNote(t, "/bad.md", "x\n")
	env.writeNote(t, "/good.md", "y\n")

	report, err := env.service.RunExportPass(context.Background())
	require.NoError(t, err)

	require.Len(t, repo.logs, 3)
	byRef := map[string]*SyncLog{}
	for _, log := range repo.logs {
		assert.Equal(t, report.PassID, log.PassID)
		byRef[log.ItemRef] = log
	}

	assert.False(t, byRef["bad.md"].Success)
	assert.Equal(t, ErrorTypeRemoteServer, byRef["bad.md"].ErrorType)
	assert.True(t, byRef["good.md"].Success)
	assert.Equal(t, ActionCreated, byRef["good.md"].Action)

	summary := byRef["2 changed, 1 succeeded, 1 failed"]
	require.NotNil(t, summary)
	assert.Equal(t, ActionPass, summary.Action)
	assert.True(t, summary.Success)
}
