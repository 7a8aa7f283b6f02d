package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/amirbrooks/tasker-today/internal/logging"
	"github.com/amirbrooks/tasker-today/internal/model"
)

const (
	tasksDirName  = "tasks"
	indexFileName = "index.json"
	todayFileName = "today.json"
	taskFileExt   = ".md"
)

// Docstore keeps one Markdown file per task under <root>/tasks, the task
// order in index.json and the today queue in today.json.
type Docstore struct {
	Root   string
	logger *log.Logger
}

func OpenDocstore(root string, logger *log.Logger) (*Docstore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("docstore root is required")
	}
	if logger == nil {
		logger = logging.New(logging.DefaultOptions())
	}
	d := &Docstore{Root: root, logger: logger}
	if err := os.MkdirAll(d.tasksDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create tasks dir: %w", err)
	}
	return d, nil
}

func (d *Docstore) tasksDir() string  { return filepath.Join(d.Root, tasksDirName) }
func (d *Docstore) indexPath() string { return filepath.Join(d.Root, indexFileName) }
func (d *Docstore) todayPath() string { return filepath.Join(d.Root, todayFileName) }

func (d *Docstore) taskPath(id string) string {
	return filepath.Join(d.tasksDir(), id+taskFileExt)
}

// LoadAll reads tasks in index order, then any valid task file the index does
// not mention, in file name order.
func (d *Docstore) LoadAll() ([]model.Task, error) {
	order := d.readIndex()
	tasks := []model.Task{}
	loaded := map[string]bool{}

	for _, id := range order {
		if loaded[id] || !validID(id) {
			continue
		}
		path := d.taskPath(id)
		if _, err := os.Stat(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				d.logger.Warn("skipping task", "id", id, "err", err)
			}
			continue
		}
		t, ok := d.loadTask(path, id)
		if !ok {
			continue
		}
		tasks = append(tasks, t)
		loaded[id] = true
	}

	entries, err := os.ReadDir(d.tasksDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return tasks, nil
		}
		return nil, fmt.Errorf("read tasks dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), taskFileExt) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), taskFileExt)
		if loaded[id] {
			continue
		}
		t, ok := d.loadTask(filepath.Join(d.tasksDir(), e.Name()), id)
		if !ok {
			continue
		}
		d.logger.Debug("recovered task missing from index", "id", id)
		tasks = append(tasks, t)
		loaded[id] = true
	}
	return tasks, nil
}

func (d *Docstore) loadTask(path, id string) (model.Task, bool) {
	t, err := readTaskFile(path)
	if err != nil {
		d.logger.Warn("skipping unreadable task file", "path", path, "err", err)
		return model.Task{}, false
	}
	if t.ID != id {
		d.logger.Warn("skipping task file with mismatched id", "path", path, "id", t.ID)
		return model.Task{}, false
	}
	t.Normalize()
	if err := validateTask(t); err != nil {
		d.logger.Warn("skipping invalid task file", "path", path, "err", err)
		return model.Task{}, false
	}
	return t, true
}

// readIndex returns nil when the index is missing or unreadable, which means
// no known order.
func (d *Docstore) readIndex() []string {
	b, err := os.ReadFile(d.indexPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			d.logger.Warn("ignoring unreadable index", "err", err)
		}
		return nil
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	var order []string
	if err := json.Unmarshal(b, &order); err != nil {
		d.logger.Warn("ignoring corrupt index", "path", d.indexPath(), "err", err)
		return nil
	}
	return order
}

// SaveAll stages every task file and the index, renames them into place,
// and then removes task files that are not part of the new set.
func (d *Docstore) SaveAll(tasks []model.Task) error {
	var batch fileBatch
	keep, err := d.stageTasks(&batch, tasks)
	if err != nil {
		return err
	}
	if err := batch.commit(); err != nil {
		return fmt.Errorf("save tasks: %w", err)
	}
	return d.prune(keep)
}

func (d *Docstore) stageTasks(batch *fileBatch, tasks []model.Task) (map[string]bool, error) {
	keep := make(map[string]bool, len(tasks))
	order := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if !validID(t.ID) {
			batch.discard()
			return nil, fmt.Errorf("%w: task id %q", ErrInvalidRecord, t.ID)
		}
		b, err := encodeTaskFile(t)
		if err != nil {
			batch.discard()
			return nil, fmt.Errorf("encode task %s: %w", t.ID, err)
		}
		if err := batch.add(d.taskPath(t.ID), b, 0o644); err != nil {
			return nil, fmt.Errorf("write task %s: %w", t.ID, err)
		}
		keep[t.ID] = true
		order = append(order, t.ID)
	}
	b, _ := json.MarshalIndent(order, "", "  ")
	if err := batch.add(d.indexPath(), b, 0o644); err != nil {
		return nil, fmt.Errorf("write index: %w", err)
	}
	return keep, nil
}

func (d *Docstore) prune(keep map[string]bool) error {
	entries, err := os.ReadDir(d.tasksDir())
	if err != nil {
		return fmt.Errorf("read tasks dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), taskFileExt) {
			continue
		}
		if keep[strings.TrimSuffix(e.Name(), taskFileExt)] {
			continue
		}
		if err := os.Remove(filepath.Join(d.tasksDir(), e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale task file: %w", err)
		}
	}
	return nil
}

func (d *Docstore) Delete(id string) error {
	if !validID(id) {
		return nil
	}
	if err := os.Remove(d.taskPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

func (d *Docstore) LoadToday() ([]model.TodayItem, error) {
	b, err := os.ReadFile(d.todayPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			d.logger.Warn("ignoring unreadable today queue", "err", err)
		}
		return []model.TodayItem{}, nil
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return []model.TodayItem{}, nil
	}
	if err := validateTodayJSON(b); err != nil {
		d.logger.Warn("ignoring today queue", "path", d.todayPath(), "err", err)
		return []model.TodayItem{}, nil
	}
	var items []model.TodayItem
	if err := json.Unmarshal(b, &items); err != nil {
		d.logger.Warn("ignoring today queue", "path", d.todayPath(), "err", err)
		return []model.TodayItem{}, nil
	}
	if items == nil {
		items = []model.TodayItem{}
	}
	return items, nil
}

func (d *Docstore) SaveToday(items []model.TodayItem) error {
	b, err := encodeToday(items)
	if err != nil {
		return err
	}
	if err := atomicWriteFile(d.todayPath(), b, 0o644); err != nil {
		return fmt.Errorf("write today queue: %w", err)
	}
	return nil
}

func encodeToday(items []model.TodayItem) ([]byte, error) {
	if items == nil {
		items = []model.TodayItem{}
	}
	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode today queue: %w", err)
	}
	return b, nil
}

// Commit stages the today queue together with the task files and the index.
// Nothing is renamed into place until every file is staged, and a failed
// rename puts back the files already replaced.
func (d *Docstore) Commit(tasks []model.Task, today []model.TodayItem) error {
	b, err := encodeToday(today)
	if err != nil {
		return err
	}
	var batch fileBatch
	if err := batch.add(d.todayPath(), b, 0o644); err != nil {
		return fmt.Errorf("write today queue: %w", err)
	}
	keep, err := d.stageTasks(&batch, tasks)
	if err != nil {
		return err
	}
	if err := batch.commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return d.prune(keep)
}

func (d *Docstore) Close() error { return nil }

// validID rejects ids that would escape the tasks directory.
func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && filepath.Base(id) == id
}
