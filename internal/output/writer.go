package output

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/metafusion/metafusion/pkg/errors"
)

// Writer maintains one YAML file per library under a metadata directory.
// Each mutation rewrites the whole document through a temp file and
// rename, so readers never observe a partial file. A per-library mutex
// serializes writers; items from different libraries commit in parallel.
type Writer struct {
	dir string

	mu        sync.Mutex
	libraries map[string]*libraryFile
}

type libraryFile struct {
	mu   sync.Mutex
	path string
	doc  *Document
}

// NewWriter creates a writer rooted at dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, errors.NewValidationError("dir", dir, "metadata directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapIO("mkdir", dir, err)
	}
	return &Writer{
		dir:       dir,
		libraries: make(map[string]*libraryFile),
	}, nil
}

// Dir returns the metadata directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Path returns the output file path for a library.
func (w *Writer) Path(library string) string {
	return filepath.Join(w.dir, Filename(library))
}

// Filename returns the output file name for a library, e.g.
// "tv_shows_metadata.yml" for "TV Shows".
func Filename(library string) string {
	slug := strings.ToLower(library)
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, slug)
	slug = strings.Trim(slug, "_")
	if slug == "" {
		slug = "library"
	}
	return slug + "_metadata.yml"
}

// Commit upserts an entry under its "Title (Year)" key and persists the
// library's document. Entries for other titles are carried over from the
// loaded state untouched.
func (w *Writer) Commit(library, fullTitle string, entry *Entry) error {
	lf, err := w.library(library)
	if err != nil {
		return err
	}

	lf.mu.Lock()
	defer lf.mu.Unlock()
	lf.doc.Metadata[fullTitle] = entry
	return lf.flush()
}

// Remove deletes an entry from the library's document. It reports
// whether the title was present.
func (w *Writer) Remove(library, fullTitle string) (bool, error) {
	lf, err := w.library(library)
	if err != nil {
		return false, err
	}

	lf.mu.Lock()
	defer lf.mu.Unlock()
	if _, ok := lf.doc.Metadata[fullTitle]; !ok {
		return false, nil
	}
	delete(lf.doc.Metadata, fullTitle)
	return true, lf.flush()
}

// Titles returns every "Title (Year)" key recorded for a library.
func (w *Writer) Titles(library string) ([]string, error) {
	lf, err := w.library(library)
	if err != nil {
		return nil, err
	}

	lf.mu.Lock()
	defer lf.mu.Unlock()
	titles := make([]string, 0, len(lf.doc.Metadata))
	for title := range lf.doc.Metadata {
		titles = append(titles, title)
	}
	return titles, nil
}

// Entry returns the recorded entry for a title, or ok=false.
func (w *Writer) Entry(library, fullTitle string) (*Entry, bool, error) {
	lf, err := w.library(library)
	if err != nil {
		return nil, false, err
	}

	lf.mu.Lock()
	defer lf.mu.Unlock()
	entry, ok := lf.doc.Metadata[fullTitle]
	return entry, ok, nil
}

// library returns the loaded state for a library, reading its file on
// first access.
func (w *Writer) library(name string) (*libraryFile, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if lf, ok := w.libraries[name]; ok {
		return lf, nil
	}

	lf := &libraryFile{
		path: w.Path(name),
		doc:  NewDocument(),
	}
	data, err := os.ReadFile(lf.path)
	switch {
	case os.IsNotExist(err):
		// First run for this library.
	case err != nil:
		return nil, errors.WrapIO("read", lf.path, err)
	default:
		if err := yaml.Unmarshal(data, lf.doc); err != nil {
			return nil, errors.WrapParse("yaml", lf.path, err)
		}
		if lf.doc.Metadata == nil {
			lf.doc.Metadata = make(map[string]*Entry)
		}
	}

	w.libraries[name] = lf
	return lf, nil
}

// flush persists the document. Staged in the target directory so the
// rename never crosses filesystems.
func (lf *libraryFile) flush() error {
	data, err := yaml.Marshal(lf.doc)
	if err != nil {
		return errors.WrapParse("yaml", lf.path, err)
	}

	dir := filepath.Dir(lf.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(lf.path)+".tmp*")
	if err != nil {
		return errors.WrapIO("create", lf.path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.WrapIO("write", lf.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.WrapIO("write", lf.path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return errors.WrapIO("chmod", lf.path, err)
	}
	if err := os.Rename(tmp.Name(), lf.path); err != nil {
		os.Remove(tmp.Name())
		return errors.WrapIO("rename", lf.path, err)
	}
	return nil
}
