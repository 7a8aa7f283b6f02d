// Package tracker owns the task list and the today queue and applies every
// mutation to both before handing a full snapshot to the store.
//
// Each mutating call builds the new state on copies, persists it, and only
// then swaps it in. A failed call leaves memory and storage as they were.
package tracker

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/amirbrooks/tasker-today/internal/extract"
	"github.com/amirbrooks/tasker-today/internal/logging"
	"github.com/amirbrooks/tasker-today/internal/model"
	"github.com/amirbrooks/tasker-today/internal/store"
)

type Manager struct {
	store  store.Store
	logger *log.Logger
	now    func() time.Time
	newID  func() string

	tasks []model.Task
	today []model.TodayItem
}

type Option func(*Manager)

// WithClock sets the clock used for relative dates and timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// New loads the current tasks and today queue from s.
func New(s store.Store, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:  s,
		logger: logging.Discard(),
		now:    time.Now,
		newID:  store.NewTaskID,
	}
	for _, opt := range opts {
		opt(m)
	}
	tasks, err := s.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	today, err := s.LoadToday()
	if err != nil {
		return nil, fmt.Errorf("load today queue: %w", err)
	}
	m.tasks = model.CloneTasks(tasks)
	m.today = model.CloneItems(today)
	m.logger.Debug("loaded state", "tasks", len(m.tasks), "today", len(m.today))
	return m, nil
}

func (m *Manager) Tasks() []model.Task {
	return model.CloneTasks(m.tasks)
}

func (m *Manager) TodayItems() []model.TodayItem {
	return model.CloneItems(m.today)
}

// Get looks a task up by exact id.
func (m *Manager) Get(id string) (model.Task, bool) {
	if i := m.indexOf(id); i >= 0 {
		return m.tasks[i].Clone(), true
	}
	return model.Task{}, false
}

// Find resolves ref as an exact id first and then as a unique exact name.
func (m *Manager) Find(ref string) (model.Task, error) {
	i, err := m.resolve(ref)
	if err != nil {
		return model.Task{}, err
	}
	return m.tasks[i].Clone(), nil
}

func (m *Manager) resolve(ref string) (int, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return -1, model.NewValidationError(model.CodeEmptyIdentifier, "task identifier cannot be empty")
	}
	if i := m.indexOf(ref); i >= 0 {
		return i, nil
	}
	found := -1
	for i, t := range m.tasks {
		if t.Name != ref {
			continue
		}
		if found >= 0 {
			return -1, model.NewValidationError(model.CodeAmbiguousName, "multiple tasks match the same name; please use the task ID")
		}
		found = i
	}
	if found < 0 {
		return -1, model.NewValidationError(model.CodeTaskNotFound, "task not found")
	}
	return found, nil
}

func (m *Manager) indexOf(id string) int {
	for i, t := range m.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// AddFromText parses text into a new task, executes it and stores it.
func (m *Manager) AddFromText(text string) (model.Task, error) {
	now := m.now()
	parsed, err := extract.Parse(text, now)
	if err != nil {
		return model.Task{}, err
	}
	if err := extract.Validate(parsed, now); err != nil {
		return model.Task{}, err
	}
	task := model.Task{
		ID:          m.newID(),
		Name:        parsed.Name,
		Description: strings.TrimSpace(text),
		DueDate:     parsed.DueString(),
		Priority:    parsed.Priority,
		Raw:         text,
		CreatedAt:   now.UTC().Truncate(time.Second),
		Status:      model.StatusExecuted,
		Subtasks:    []string{},
	}
	task.Result = Execute(task)

	tasks := append(model.CloneTasks(m.tasks), task)
	if err := m.store.SaveAll(tasks); err != nil {
		return model.Task{}, fmt.Errorf("save tasks: %w", err)
	}
	m.tasks = tasks
	m.logger.Debug("task added", "id", task.ID, "name", task.Name, "priority", task.Priority, "due", task.DueDate)
	return task.Clone(), nil
}

// Execute produces the placeholder result recorded for a new task.
func Execute(t model.Task) string {
	if t.DueDate != "" {
		return fmt.Sprintf("Task scheduled: %s, due %s, priority %s.", t.Name, t.DueDate, t.Priority)
	}
	return fmt.Sprintf("Task scheduled: %s, priority %s.", t.Name, t.Priority)
}

func (m *Manager) UpdateStatus(ref string, status model.Status) (model.Task, error) {
	if !status.Valid() {
		return model.Task{}, model.NewValidationError(model.CodeInvalidStatus, "invalid status %q", status)
	}
	i, err := m.resolve(ref)
	if err != nil {
		return model.Task{}, err
	}
	tasks := model.CloneTasks(m.tasks)
	tasks[i].Status = status
	if err := m.store.SaveAll(tasks); err != nil {
		return model.Task{}, fmt.Errorf("save tasks: %w", err)
	}
	m.tasks = tasks
	return tasks[i].Clone(), nil
}

func (m *Manager) AddSubtask(ref, text string) (model.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Task{}, model.NewValidationError(model.CodeEmptySubtask, "subtask cannot be empty")
	}
	i, err := m.resolve(ref)
	if err != nil {
		return model.Task{}, err
	}
	tasks := model.CloneTasks(m.tasks)
	tasks[i].Subtasks = append(tasks[i].Subtasks, text)
	if err := m.store.SaveAll(tasks); err != nil {
		return model.Task{}, fmt.Errorf("save tasks: %w", err)
	}
	m.tasks = tasks
	m.logger.Debug("subtask added", "task", tasks[i].ID, "index", len(tasks[i].Subtasks)-1)
	return tasks[i].Clone(), nil
}

// RemoveSubtask deletes one subtask and repairs the today queue in the same
// commit.
func (m *Manager) RemoveSubtask(ref string, index int) (model.Task, error) {
	task, _, err := m.removeSubtask(ref, index)
	return task, err
}

// CompleteSubtask removes a subtask the same way RemoveSubtask does and
// returns its text.
func (m *Manager) CompleteSubtask(ref string, index int) (string, error) {
	_, removed, err := m.removeSubtask(ref, index)
	return removed, err
}

func (m *Manager) removeSubtask(ref string, index int) (model.Task, string, error) {
	i, err := m.resolve(ref)
	if err != nil {
		return model.Task{}, "", err
	}
	if !m.tasks[i].HasSubtask(index) {
		return model.Task{}, "", invalidIndex()
	}
	tasks := model.CloneTasks(m.tasks)
	t := &tasks[i]
	removed := t.Subtasks[index]
	t.Subtasks = append(t.Subtasks[:index], t.Subtasks[index+1:]...)
	today := Resync(m.today, t.ID, index, t.Subtasks)

	if err := m.store.Commit(tasks, today); err != nil {
		return model.Task{}, "", fmt.Errorf("commit subtask removal: %w", err)
	}
	m.tasks, m.today = tasks, today
	m.logger.Debug("subtask removed", "task", t.ID, "index", index, "today", len(today))
	return t.Clone(), removed, nil
}

// Pick adds the subtask at index to the today queue unless an equal item is
// already there.
func (m *Manager) Pick(ref string, index int) (model.TodayItem, error) {
	i, err := m.resolve(ref)
	if err != nil {
		return model.TodayItem{}, err
	}
	t := m.tasks[i]
	if !t.HasSubtask(index) {
		return model.TodayItem{}, invalidIndex()
	}
	item := model.TodayItem{TaskID: t.ID, SubtaskIndex: index, Subtask: t.Subtasks[index]}
	if model.ContainsItem(m.today, item) {
		return item, nil
	}
	today := append(model.CloneItems(m.today), item)
	if err := m.store.SaveToday(today); err != nil {
		return model.TodayItem{}, fmt.Errorf("save today queue: %w", err)
	}
	m.today = today
	return item, nil
}

// Unpick drops every today item at (task, index). A ref that names no
// current task is taken as a raw task id so stale items can still be
// removed.
func (m *Manager) Unpick(ref string, index int) error {
	taskID := strings.TrimSpace(ref)
	i, err := m.resolve(ref)
	switch {
	case err == nil:
		taskID = m.tasks[i].ID
	case isCode(err, model.CodeTaskNotFound):
	default:
		return err
	}
	today := make([]model.TodayItem, 0, len(m.today))
	for _, it := range m.today {
		if !it.Refers(taskID, index) {
			today = append(today, it)
		}
	}
	if len(today) == len(m.today) {
		return nil
	}
	if err := m.store.SaveToday(today); err != nil {
		return fmt.Errorf("save today queue: %w", err)
	}
	m.today = today
	return nil
}

// PickByKeyword picks every subtask whose text, or whose task's name,
// contains keyword (case-insensitive). It returns all matches, including
// ones that were already picked.
func (m *Manager) PickByKeyword(keyword string) ([]model.TodayItem, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, model.NewValidationError(model.CodeEmptyKeyword, "keyword cannot be empty")
	}
	lowered := strings.ToLower(keyword)
	today := model.CloneItems(m.today)
	matched := []model.TodayItem{}
	added := 0
	for _, t := range m.tasks {
		nameHit := strings.Contains(strings.ToLower(t.Name), lowered)
		for idx, sub := range t.Subtasks {
			if !nameHit && !strings.Contains(strings.ToLower(sub), lowered) {
				continue
			}
			item := model.TodayItem{TaskID: t.ID, SubtaskIndex: idx, Subtask: sub}
			if !model.ContainsItem(today, item) {
				today = append(today, item)
				added++
			}
			matched = append(matched, item)
		}
	}
	if added > 0 {
		if err := m.store.SaveToday(today); err != nil {
			return nil, fmt.Errorf("save today queue: %w", err)
		}
		m.today = today
	}
	m.logger.Debug("picked by keyword", "keyword", keyword, "matched", len(matched), "added", added)
	return matched, nil
}

// Delete removes a task and every today item that points at it.
func (m *Manager) Delete(ref string) (model.Task, error) {
	i, err := m.resolve(ref)
	if err != nil {
		return model.Task{}, err
	}
	victim := m.tasks[i].Clone()
	tasks := make([]model.Task, 0, len(m.tasks)-1)
	for _, t := range m.tasks {
		if t.ID != victim.ID {
			tasks = append(tasks, t.Clone())
		}
	}
	today := make([]model.TodayItem, 0, len(m.today))
	for _, it := range m.today {
		if it.TaskID != victim.ID {
			today = append(today, it)
		}
	}
	if err := m.store.Commit(tasks, today); err != nil {
		return model.Task{}, fmt.Errorf("commit delete: %w", err)
	}
	m.tasks, m.today = tasks, today
	if err := m.store.Delete(victim.ID); err != nil {
		return victim, fmt.Errorf("delete task record: %w", err)
	}
	m.logger.Debug("task deleted", "id", victim.ID, "today", len(today))
	return victim, nil
}

// Search returns tasks whose name or raw text contains keyword,
// case-insensitively. An empty keyword matches nothing.
func (m *Manager) Search(keyword string) []model.Task {
	out := []model.Task{}
	if keyword == "" {
		return out
	}
	lowered := strings.ToLower(keyword)
	for _, t := range m.tasks {
		if strings.Contains(strings.ToLower(t.Name), lowered) || strings.Contains(strings.ToLower(t.Raw), lowered) {
			out = append(out, t.Clone())
		}
	}
	return out
}

func invalidIndex() error {
	return model.NewValidationError(model.CodeInvalidIndex, "invalid subtask index")
}

func isCode(err error, code string) bool {
	c, ok := model.Code(err)
	return ok && c == code
}

// Entry is a today item joined with its task's name for display. Index is
// 1-based. TaskName is empty when the task no longer exists.
type Entry struct {
	TaskID   string `json:"task_id"`
	TaskName string `json:"task_name"`
	Index    int    `json:"index"`
	Subtask  string `json:"subtask"`
}

func (m *Manager) Entries(items []model.TodayItem) []Entry {
	out := make([]Entry, 0, len(items))
	for _, it := range items {
		e := Entry{TaskID: it.TaskID, Index: it.SubtaskIndex + 1, Subtask: it.Subtask}
		if i := m.indexOf(it.TaskID); i >= 0 {
			e.TaskName = m.tasks[i].Name
		}
		out = append(out, e)
	}
	return out
}
