package sync

import (
	"time"

	"github.com/tildaslashalef/notesync/internal/config"
	"github.com/tildaslashalef/notesync/internal/notion"
	"github.com/tildaslashalef/notesync/internal/vault"
)

// DefaultImportBuffer widens import selection so pages edited shortly
// before the previous import are picked up again
const DefaultImportBuffer = 3 * time.Minute

// SelectNotes keeps the notes modified strictly after since
func SelectNotes(notes []vault.Note, since time.Time) []vault.Note {
	var selected []vault.Note
	for _, note := range notes {
		if note.ModTime.After(since) {
			selected = append(selected, note)
		}
	}
	return selected
}

// SelectPages keeps the pages whose last edit plus buffer is strictly after since
func SelectPages(pages []notion.RemotePage, since time.Time, buffer time.Duration) []notion.RemotePage {
	var selected []notion.RemotePage
	for _, page := range pages {
		if page.LastEditedTime.Add(buffer).After(since) {
			selected = append(selected, page)
		}
	}
	return selected
}

// ImportQueryFilter narrows the remote query to a superset of what
// SelectPages keeps. Force mode and a zero cursor query everything.
func ImportQueryFilter(since time.Time, buffer time.Duration, force bool) *notion.QueryFilter {
	if force || !since.After(config.Epoch) {
		return nil
	}
	// The filter has minute granularity on the remote side
	return notion.EditedSince(since.Add(-buffer).Truncate(time.Minute))
}
