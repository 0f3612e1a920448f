package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"path/filepath"
)

// Mode selects how aggressively a walk filters entries.
type Mode int

const (
	// Restricted skips ignored dirs and files and admits only allow-listed types.
	Restricted Mode = iota
	// Unrestricted skips ignored dirs only.
	Unrestricted
)

func (m Mode) String() string {
	switch m {
	case Restricted:
		return "restricted"
	case Unrestricted:
		return "unrestricted"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// FileEntry is a view of one file inside a walked tree.
type FileEntry struct {
	// Root-relative path using forward slashes (e.g., "src/app.py").
	Path string
	// Absolute filesystem path.
	AbsPath string
	// Type tag from Classify; empty when the name has no known type.
	TypeTag string
}

// Name returns the base file name of the entry.
func (e FileEntry) Name() string { return filepath.Base(filepath.FromSlash(e.Path)) }

// Dir returns the slash-separated parent directory, "." for root-level files.
func (e FileEntry) Dir() string {
	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(e.Path)))
	if dir == "" {
		return "."
	}
	return dir
}

// FileAccessError reports an entry whose content could not be used.
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string { return fmt.Sprintf("scan: read %s: %v", e.Path, e.Err) }
func (e *FileAccessError) Unwrap() error { return e.Err }

var errStop = errors.New("scan: stop")

// Walk returns a lazy sequence of the files under root. Nothing is read
// until the sequence is ranged over, and every range restarts from root.
// Entries come in lexical order; unreadable directories are skipped and
// symlinked directories are not followed.
func Walk(root string, mode Mode, opts Options) iter.Seq[FileEntry] {
	f := newFilter(opts)
	return func(yield func(FileEntry) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if d != nil && d.IsDir() && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != root && f.skipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return nil
			}
			tag := Classify(d.Name())
			if !f.admit(d.Name(), tag, mode) {
				return nil
			}
			entry := FileEntry{Path: filepath.ToSlash(rel), AbsPath: path, TypeTag: tag}
			if !yield(entry) {
				return errStop
			}
			return nil
		})
	}
}

// ListPaths returns the relative path of every file an Unrestricted walk
// yields, in walk order.
func ListPaths(root string, opts Options) []string {
	paths := []string{}
	for e := range Walk(root, Unrestricted, opts) {
		paths = append(paths, e.Path)
	}
	return paths
}

// Collect drains a walk into a slice.
func Collect(seq iter.Seq[FileEntry]) []FileEntry {
	var out []FileEntry
	for e := range seq {
		out = append(out, e)
	}
	return out
}
