// Package store persists tasks and the today queue.
//
// Three backends share the Store interface: a Markdown docstore (one file per
// task with YAML frontmatter), SQLite, and an in-memory store. Each backend
// writes whole snapshots; readers never see a half-applied mutation of their
// own process.
package store

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/oklog/ulid/v2"

	"github.com/amirbrooks/tasker-today/internal/logging"
	"github.com/amirbrooks/tasker-today/internal/model"
)

type Store interface {
	// LoadAll returns every readable task in persisted order. Unreadable
	// records are skipped.
	LoadAll() ([]model.Task, error)
	// SaveAll replaces the persisted task set and its order.
	SaveAll(tasks []model.Task) error
	// Delete removes a single task record. A missing record is not an error.
	Delete(id string) error
	// LoadToday returns the persisted today queue, or an empty queue when it
	// is missing or unreadable.
	LoadToday() ([]model.TodayItem, error)
	SaveToday(items []model.TodayItem) error
	// Commit persists tasks and the today queue together.
	Commit(tasks []model.Task, today []model.TodayItem) error
	Close() error
}

const (
	BackendDocstore = "docstore"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

var ErrUnknownBackend = errors.New("unknown backend")

type Config struct {
	Backend string
	Root    string
	DBPath  string
}

type randReader struct{}

func (randReader) Read(p []byte) (int, error) { return rand.Read(p) }

var timeNow = func() time.Time { return time.Now().UTC() }

// Open returns the backend named by cfg.Backend. An empty backend means the
// docstore.
func Open(cfg Config, logger *log.Logger) (Store, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendDocstore:
		return OpenDocstore(ExpandHome(cfg.Root), logger)
	case BackendSQLite:
		path := strings.TrimSpace(cfg.DBPath)
		if path == "" {
			path = filepath.Join(ExpandHome(cfg.Root), "tasker.db")
		}
		return OpenSQLite(ExpandHome(path), logger)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// NewTaskID returns a fresh task id of the form tsk_<ULID>.
func NewTaskID() string {
	return "tsk_" + newULID()
}

func newULID() string {
	t := ulid.Timestamp(timeNow())
	entropy := ulid.Monotonic(randReader{}, 0)
	id, err := ulid.New(t, entropy)
	if err != nil {
		return fmt.Sprintf("%d", timeNow().UnixNano())
	}
	return strings.ToUpper(id.String())
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~"+string(os.PathSeparator)) || path == "~" {
		home, _ := os.UserHomeDir()
		if home != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func atomicWriteFile(path string, data []byte, perm fs.FileMode) error {
	tmp, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	// Rename is atomic on same filesystem.
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// writeTemp writes data to a temp file next to path and returns its name.
func writeTemp(path string, data []byte, perm fs.FileMode) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	if err := os.Chmod(name, perm); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

// fileBatch stages several file writes and renames them into place together.
// If a rename fails, targets already replaced get their previous content back.
type fileBatch struct {
	staged []stagedFile
}

type stagedFile struct {
	path    string
	tmp     string
	prev    []byte
	existed bool
}

func (b *fileBatch) add(path string, data []byte, perm fs.FileMode) error {
	prev, err := os.ReadFile(path)
	existed := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		b.discard()
		return err
	}
	tmp, err := writeTemp(path, data, perm)
	if err != nil {
		b.discard()
		return err
	}
	b.staged = append(b.staged, stagedFile{path: path, tmp: tmp, prev: prev, existed: existed})
	return nil
}

func (b *fileBatch) commit() error {
	for i, f := range b.staged {
		if err := os.Rename(f.tmp, f.path); err != nil {
			restoreErr := b.restore(b.staged[:i])
			for _, rest := range b.staged[i:] {
				_ = os.Remove(rest.tmp)
			}
			b.staged = nil
			return errors.Join(err, restoreErr)
		}
	}
	b.staged = nil
	return nil
}

func (b *fileBatch) restore(done []stagedFile) error {
	var errs []error
	for _, f := range done {
		if !f.existed {
			if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if err := atomicWriteFile(f.path, f.prev, 0o644); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", f.path, err))
		}
	}
	return errors.Join(errs...)
}

func (b *fileBatch) discard() {
	for _, f := range b.staged {
		_ = os.Remove(f.tmp)
	}
	b.staged = nil
}
