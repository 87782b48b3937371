// Package vault reads and writes Markdown notes inside the local vault
package vault

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/tildaslashalef/notesync/internal/markdown"
)

// NoteExtension is the file extension of vault notes
const NoteExtension = ".md"

// Note is a Markdown file of the vault
type Note struct {
	Path        string // vault relative, slash separated
	Raw         string // file content as read
	Frontmatter *markdown.Frontmatter
	Body        string
	ModTime     time.Time
	ParseErr    error // set when the note could not be read or its frontmatter parsed
}

// Title is the file name without extension
func (n Note) Title() string {
	return strings.TrimSuffix(path.Base(n.Path), NoteExtension)
}

// LocalIOError wraps a failed vault operation
type LocalIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("vault %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LocalIOError) Unwrap() error {
	return e.Err
}

// NotePath builds the vault relative path of the note for title inside
// folder. A "/" in the title creates sub folders.
func NotePath(folder, title string) string {
	segments := cleanSegments(folder, false)

	name := cleanSegments(title, true)
	if len(name) == 0 {
		name = []string{"Untitled"}
	}

	segments = append(segments, name...)
	return strings.Join(segments, "/") + NoteExtension
}

// FolderPath normalizes a configured folder to a vault relative path, "" for the root
func FolderPath(folder string) string {
	return strings.Join(cleanSegments(folder, false), "/")
}

// cleanSegments splits p on either separator, dropping empty, "." and ".."
// segments. With sanitize set, characters not allowed in file names are
// replaced by "-".
func cleanSegments(p string, sanitize bool) []string {
	p = strings.ReplaceAll(p, "\\", "/")

	var segments []string
	for _, segment := range strings.Split(p, "/") {
		segment = strings.TrimSpace(segment)
		if sanitize {
			segment = invalidChars.Replace(segment)
		}
		if segment == "" || segment == "." || segment == ".." {
			continue
		}
		segments = append(segments, segment)
	}
	return segments
}

var invalidChars = strings.NewReplacer(
	":", "-",
	"*", "-",
	"?", "-",
	"\"", "-",
	"<", "-",
	">", "-",
	"|", "-",
)
