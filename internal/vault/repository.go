package vault

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/tildaslashalef/notesync/internal/markdown"
)

// Repository gives access to the notes of one vault
type Repository struct {
	fs        afero.Fs
	recursive bool
}

// NewRepository creates a repository over fs, whose root is the vault root.
// With recursive set, listing descends into sub folders.
func NewRepository(fs afero.Fs, recursive bool) *Repository {
	return &Repository{fs: fs, recursive: recursive}
}

// NewOSRepository opens the vault at root on the local disk
func NewOSRepository(root string, recursive bool) *Repository {
	return NewRepository(afero.NewBasePathFs(afero.NewOsFs(), root), recursive)
}

// fsPath maps a vault relative path to a path of the underlying Fs
func fsPath(rel string) string {
	return filepath.FromSlash("/" + strings.TrimPrefix(rel, "/"))
}

// relPath maps a path of the underlying Fs back to a vault relative path
func relPath(p string) string {
	return strings.TrimPrefix(filepath.ToSlash(p), "/")
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// ListChangedCandidates returns the notes of folder ("/" for the vault
// root) modified after since, sorted by path. Only those notes are read.
// A note that cannot be read or whose frontmatter cannot be parsed is
// returned with ParseErr set.
func (r *Repository) ListChangedCandidates(folder string, since time.Time) ([]Note, error) {
	dir := FolderPath(folder)

	type entry struct {
		path    string
		modTime time.Time
	}
	var entries []entry

	if r.recursive {
		err := afero.Walk(r.fs, fsPath(dir), func(p string, info os.FileInfo, err error) error {
			if err != nil {
				if relPath(p) == dir {
					return err
				}
				// Unreadable entries below the folder never fail the listing
				return nil
			}
			if info.IsDir() {
				if isHidden(info.Name()) && relPath(p) != dir {
					return filepath.SkipDir
				}
				return nil
			}
			if isNoteFile(info) {
				entries = append(entries, entry{relPath(p), info.ModTime()})
			}
			return nil
		})
		if err != nil {
			return nil, &LocalIOError{Op: "list", Path: folder, Err: err}
		}
	} else {
		infos, err := afero.ReadDir(r.fs, fsPath(dir))
		if err != nil {
			return nil, &LocalIOError{Op: "list", Path: folder, Err: err}
		}
		for _, info := range infos {
			if !info.IsDir() && isNoteFile(info) {
				entries = append(entries, entry{path.Join(dir, info.Name()), info.ModTime()})
			}
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	var notes []Note
	for _, e := range entries {
		if !e.modTime.After(since) {
			continue
		}
		note, err := r.ReadNote(e.path)
		if err != nil {
			note = Note{
				Path:        e.path,
				Frontmatter: markdown.NewFrontmatter(),
				ModTime:     e.modTime,
				ParseErr:    err,
			}
		}
		notes = append(notes, note)
	}
	return notes, nil
}

func isNoteFile(info os.FileInfo) bool {
	return !isHidden(info.Name()) && strings.EqualFold(filepath.Ext(info.Name()), NoteExtension)
}

// ReadNote reads and parses the note at the vault relative path p
func (r *Repository) ReadNote(p string) (Note, error) {
	info, err := r.fs.Stat(fsPath(p))
	if err != nil {
		return Note{}, &LocalIOError{Op: "stat", Path: p, Err: err}
	}

	data, err := afero.ReadFile(r.fs, fsPath(p))
	if err != nil {
		return Note{}, &LocalIOError{Op: "read", Path: p, Err: err}
	}

	raw := string(data)
	fm, body, parseErr := markdown.ParseFrontmatter(raw)

	return Note{
		Path:        relPath(p),
		Raw:         raw,
		Frontmatter: fm,
		Body:        body,
		ModTime:     info.ModTime(),
		ParseErr:    parseErr,
	}, nil
}

// WriteNote replaces the file at p with content. The content goes to a
// temporary file in the same folder which is then renamed over p, so
// readers see either the old or the new file.
func (r *Repository) WriteNote(p, content string) error {
	target := fsPath(p)
	dir := filepath.Dir(target)

	tmp, err := afero.TempFile(r.fs, dir, ".notesync-*.tmp")
	if err != nil {
		return &LocalIOError{Op: "write", Path: p, Err: err}
	}
	tmpName := tmp.Name()

	cleanup := func(cause error) error {
		_ = tmp.Close()
		_ = r.fs.Remove(tmpName)
		return &LocalIOError{Op: "write", Path: p, Err: cause}
	}

	if _, err := tmp.WriteString(content); err != nil {
		return cleanup(err)
	}
	// Temporary files are private, keep the mode of the note being replaced
	mode := os.FileMode(0o644)
	if info, err := r.fs.Stat(target); err == nil {
		mode = info.Mode().Perm()
	}
	if err := r.fs.Chmod(tmpName, mode); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = r.fs.Remove(tmpName)
		return &LocalIOError{Op: "write", Path: p, Err: err}
	}

	if err := r.fs.Rename(tmpName, target); err != nil {
		_ = r.fs.Remove(tmpName)
		return &LocalIOError{Op: "write", Path: p, Err: err}
	}
	return nil
}

// EnsureDirectory creates the folder dir when it does not exist yet
func (r *Repository) EnsureDirectory(dir string) error {
	rel := FolderPath(dir)
	if rel == "" {
		return nil
	}

	info, err := r.fs.Stat(fsPath(rel))
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return &LocalIOError{Op: "mkdir", Path: rel, Err: errors.New("path exists and is not a directory")}
	case !os.IsNotExist(err):
		return &LocalIOError{Op: "mkdir", Path: rel, Err: err}
	}

	if err := r.fs.MkdirAll(fsPath(rel), 0o755); err != nil {
		return &LocalIOError{Op: "mkdir", Path: rel, Err: err}
	}
	return nil
}

// Exists reports whether a file or folder exists at p
func (r *Repository) Exists(p string) (bool, error) {
	ok, err := afero.Exists(r.fs, fsPath(p))
	if err != nil {
		return false, &LocalIOError{Op: "stat", Path: p, Err: err}
	}
	return ok, nil
}
