package tracker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/amirbrooks/tasker-today/internal/model"
	"github.com/amirbrooks/tasker-today/internal/store"
)

// 2026-10-14 is a Wednesday.
var clock = time.Date(2026, time.October, 14, 10, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("tsk_%03d", n)
	}
}

func newManager(t *testing.T, s store.Store) *Manager {
	t.Helper()
	m, err := New(s, WithClock(func() time.Time { return clock }), WithIDGenerator(sequentialIDs()))
	require.NoError(t, err)
	return m
}

// seeded returns a manager holding one task with subtasks A, B, C.
func seeded(t *testing.T) (*Manager, *store.Memory, model.Task) {
	t.Helper()
	s := store.NewMemory()
	m := newManager(t, s)
	task, err := m.AddFromText("write report tomorrow, high priority")
	require.NoError(t, err)
	for _, sub := range []string{"A", "B", "C"} {
		task, err = m.AddSubtask(task.ID, sub)
		require.NoError(t, err)
	}
	return m, s, task
}

func TestAddFromTextBuildsExecutedTask(t *testing.T) {
	s := store.NewMemory()
	m := newManager(t, s)

	task, err := m.AddFromText("  write report tomorrow, high priority  ")
	require.NoError(t, err)
	require.Equal(t, "tsk_001", task.ID)
	require.Equal(t, "write report", task.Name)
	require.Equal(t, "2026-10-15", task.DueDate)
	require.Equal(t, model.PriorityHigh, task.Priority)
	require.Equal(t, model.StatusExecuted, task.Status)
	require.Equal(t, "write report tomorrow, high priority", task.Description)
	require.Equal(t, "  write report tomorrow, high priority  ", task.Raw)
	require.Equal(t, "Task scheduled: write report, due 2026-10-15, priority high.", task.Result)
	require.Empty(t, task.Subtasks)

	persisted, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	require.Equal(t, task.ID, persisted[0].ID)
}

func TestAddFromTextRejectsBadInputWithoutSaving(t *testing.T) {
	s := store.NewMemory()
	m := newManager(t, s)

	_, err := m.AddFromText("   ")
	require.ErrorIs(t, err, model.ErrParse)

	_, err = m.AddFromText("pay rent 2026/1/16")
	require.ErrorIs(t, err, model.ErrValidation)

	require.Empty(t, m.Tasks())
	persisted, _ := s.LoadAll()
	require.Empty(t, persisted)
}

func TestExecuteOmitsDueClauseWithoutDate(t *testing.T) {
	require.Equal(t, "Task scheduled: tidy, priority low.", Execute(model.Task{Name: "tidy", Priority: model.PriorityLow}))
}

func TestFindByIDThenUniqueName(t *testing.T) {
	m := newManager(t, store.NewMemory())
	a, err := m.AddFromText("call mom")
	require.NoError(t, err)
	_, err = m.AddFromText("buy milk")
	require.NoError(t, err)
	_, err = m.AddFromText("buy milk")
	require.NoError(t, err)

	got, err := m.Find(a.ID)
	require.NoError(t, err)
	require.Equal(t, "call mom", got.Name)

	got, err = m.Find(" call mom ")
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)

	for ref, code := range map[string]string{
		"":         model.CodeEmptyIdentifier,
		"  ":       model.CodeEmptyIdentifier,
		"buy milk": model.CodeAmbiguousName,
		"call dad": model.CodeTaskNotFound,
	} {
		_, err := m.Find(ref)
		require.ErrorIs(t, err, model.ErrValidation, ref)
		require.True(t, isCode(err, code), "ref %q: %v", ref, err)
	}
}

func TestPickIsIdempotent(t *testing.T) {
	m, s, task := seeded(t)

	item, err := m.Pick(task.ID, 1)
	require.NoError(t, err)
	require.Equal(t, model.TodayItem{TaskID: task.ID, SubtaskIndex: 1, Subtask: "B"}, item)
	_, err = m.Pick(task.Name, 1)
	require.NoError(t, err)

	require.Len(t, m.TodayItems(), 1)
	persisted, _ := s.LoadToday()
	require.Equal(t, m.TodayItems(), persisted)
}

func TestPickRejectsOutOfRangeIndex(t *testing.T) {
	m, _, task := seeded(t)
	for _, idx := range []int{-1, 3, 10} {
		_, err := m.Pick(task.ID, idx)
		require.ErrorIs(t, err, model.ErrValidation)
		require.True(t, isCode(err, model.CodeInvalidIndex))
	}
	require.Empty(t, m.TodayItems())
}

func TestUnpickRemovesMatchAndIgnoresMissing(t *testing.T) {
	m, _, task := seeded(t)
	_, err := m.Pick(task.ID, 0)
	require.NoError(t, err)
	_, err = m.Pick(task.ID, 2)
	require.NoError(t, err)

	require.NoError(t, m.Unpick(task.ID, 0))
	require.Equal(t, []model.TodayItem{{TaskID: task.ID, SubtaskIndex: 2, Subtask: "C"}}, m.TodayItems())

	require.NoError(t, m.Unpick(task.ID, 0))
	require.NoError(t, m.Unpick("tsk_gone", 5))
	require.Len(t, m.TodayItems(), 1)

	_, err = m.AddFromText("write report")
	require.NoError(t, err)
	err = m.Unpick("write report", 2)
	require.True(t, isCode(err, model.CodeAmbiguousName))
}

func TestPickByKeywordMatchesSubtaskOrTaskName(t *testing.T) {
	m := newManager(t, store.NewMemory())
	report, err := m.AddFromText("write report")
	require.NoError(t, err)
	_, err = m.AddSubtask(report.ID, "outline")
	require.NoError(t, err)
	_, err = m.AddSubtask(report.ID, "draft")
	require.NoError(t, err)
	shop, err := m.AddFromText("shopping")
	require.NoError(t, err)
	_, err = m.AddSubtask(shop.ID, "Buy REPORT folder")
	require.NoError(t, err)
	_, err = m.AddSubtask(shop.ID, "milk")
	require.NoError(t, err)

	_, err = m.Pick(report.ID, 1)
	require.NoError(t, err)

	matched, err := m.PickByKeyword("report")
	require.NoError(t, err)
	want := []model.TodayItem{
		{TaskID: report.ID, SubtaskIndex: 0, Subtask: "outline"},
		{TaskID: report.ID, SubtaskIndex: 1, Subtask: "draft"},
		{TaskID: shop.ID, SubtaskIndex: 0, Subtask: "Buy REPORT folder"},
	}
	require.Equal(t, want, matched)
	require.Len(t, m.TodayItems(), 3)

	again, err := m.PickByKeyword("REPORT")
	require.NoError(t, err)
	require.Equal(t, want, again)
	require.Len(t, m.TodayItems(), 3)

	none, err := m.PickByKeyword("nothing here")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestPickByKeywordRejectsBlank(t *testing.T) {
	m, _, _ := seeded(t)
	for _, kw := range []string{"", "   "} {
		_, err := m.PickByKeyword(kw)
		require.ErrorIs(t, err, model.ErrValidation)
		require.True(t, isCode(err, model.CodeEmptyKeyword))
	}
}

func TestRemoveSubtaskResyncsToday(t *testing.T) {
	m, s, task := seeded(t)
	for i := 0; i < 3; i++ {
		_, err := m.Pick(task.ID, i)
		require.NoError(t, err)
	}

	updated, err := m.RemoveSubtask(task.ID, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "C"}, updated.Subtasks)

	want := []model.TodayItem{
		{TaskID: task.ID, SubtaskIndex: 0, Subtask: "A"},
		{TaskID: task.ID, SubtaskIndex: 1, Subtask: "C"},
	}
	require.Equal(t, want, m.TodayItems())
	persisted, _ := s.LoadToday()
	require.Equal(t, want, persisted)
	tasks, _ := s.LoadAll()
	require.Equal(t, []string{"A", "C"}, tasks[0].Subtasks)
}

func TestRemoveSubtaskKeepsDocstoreConsistentWhenTodayUnwritable(t *testing.T) {
	root := t.TempDir()
	d, err := store.OpenDocstore(root, log.New(io.Discard))
	require.NoError(t, err)
	m := newManager(t, d)
	task, err := m.AddFromText("write report tomorrow")
	require.NoError(t, err)
	for _, sub := range []string{"A", "B", "C"} {
		task, err = m.AddSubtask(task.ID, sub)
		require.NoError(t, err)
	}
	_, err = m.Pick(task.ID, 2)
	require.NoError(t, err)

	todayPath := filepath.Join(root, "today.json")
	require.NoError(t, os.Remove(todayPath))
	require.NoError(t, os.MkdirAll(filepath.Join(todayPath, "blocker"), 0o755))

	_, err = m.RemoveSubtask(task.ID, 0)
	require.Error(t, err)

	got, ok := m.Get(task.ID)
	require.True(t, ok)
	require.Equal(t, []string{"A", "B", "C"}, got.Subtasks)
	require.Equal(t, []model.TodayItem{{TaskID: task.ID, SubtaskIndex: 2, Subtask: "C"}}, m.TodayItems())

	reopened, err := store.OpenDocstore(root, log.New(io.Discard))
	require.NoError(t, err)
	persisted, err := reopened.LoadAll()
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	require.Equal(t, []string{"A", "B", "C"}, persisted[0].Subtasks)
}

func TestCompleteSubtaskReturnsTextAndResyncs(t *testing.T) {
	m, _, task := seeded(t)
	_, err := m.Pick(task.ID, 2)
	require.NoError(t, err)

	text, err := m.CompleteSubtask(task.ID, 0)
	require.NoError(t, err)
	require.Equal(t, "A", text)
	require.Equal(t, []model.TodayItem{{TaskID: task.ID, SubtaskIndex: 1, Subtask: "C"}}, m.TodayItems())

	_, err = m.CompleteSubtask(task.ID, 5)
	require.True(t, isCode(err, model.CodeInvalidIndex))
}

func TestDeleteCascadesToToday(t *testing.T) {
	m, s, task := seeded(t)
	other, err := m.AddFromText("call mom")
	require.NoError(t, err)
	_, err = m.AddSubtask(other.ID, "dial")
	require.NoError(t, err)
	_, err = m.Pick(task.ID, 0)
	require.NoError(t, err)
	_, err = m.Pick(other.ID, 0)
	require.NoError(t, err)
	_, err = m.Pick(task.ID, 2)
	require.NoError(t, err)

	deleted, err := m.Delete(task.Name)
	require.NoError(t, err)
	require.Equal(t, task.ID, deleted.ID)

	require.Equal(t, []model.TodayItem{{TaskID: other.ID, SubtaskIndex: 0, Subtask: "dial"}}, m.TodayItems())
	tasks, _ := s.LoadAll()
	require.Len(t, tasks, 1)
	require.Equal(t, other.ID, tasks[0].ID)
	_, ok := m.Get(task.ID)
	require.False(t, ok)
}

func TestAddSubtaskRejectsBlankText(t *testing.T) {
	m, _, task := seeded(t)
	_, err := m.AddSubtask(task.ID, "  ")
	require.True(t, isCode(err, model.CodeEmptySubtask))
	got, _ := m.Get(task.ID)
	require.Len(t, got.Subtasks, 3)

	updated, err := m.AddSubtask(task.ID, "  D  ")
	require.NoError(t, err)
	require.Equal(t, "D", updated.Subtasks[3])
}

func TestUpdateStatus(t *testing.T) {
	m, _, task := seeded(t)
	updated, err := m.UpdateStatus(task.ID, model.StatusPending)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, updated.Status)

	_, err = m.UpdateStatus(task.ID, model.Status("done"))
	require.True(t, isCode(err, model.CodeInvalidStatus))
}

func TestSearchMatchesNameOrRaw(t *testing.T) {
	m := newManager(t, store.NewMemory())
	a, _ := m.AddFromText("Plan meeting next Monday, high priority")
	b, _ := m.AddFromText("buy milk")

	got := m.Search("PRIORITY")
	require.Len(t, got, 1)
	require.Equal(t, a.ID, got[0].ID)

	got = m.Search("milk")
	require.Len(t, got, 1)
	require.Equal(t, b.ID, got[0].ID)

	require.Empty(t, m.Search(""))
}

func TestManagerReloadsPersistedState(t *testing.T) {
	m, s, task := seeded(t)
	_, err := m.Pick(task.ID, 1)
	require.NoError(t, err)

	reloaded := newManager(t, s)
	require.Equal(t, m.Tasks(), reloaded.Tasks())
	require.Equal(t, m.TodayItems(), reloaded.TodayItems())
}

func TestReturnedTasksDoNotAliasState(t *testing.T) {
	m, _, task := seeded(t)
	tasks := m.Tasks()
	tasks[0].Subtasks[0] = "mutated"
	got, _ := m.Get(task.ID)
	require.Equal(t, "A", got.Subtasks[0])
}

// failingStore wraps a store and fails every write once armed.
type failingStore struct {
	store.Store
	fail bool
}

var errDisk = errors.New("disk full")

func (f *failingStore) SaveAll(tasks []model.Task) error {
	if f.fail {
		return errDisk
	}
	return f.Store.SaveAll(tasks)
}

func (f *failingStore) SaveToday(items []model.TodayItem) error {
	if f.fail {
		return errDisk
	}
	return f.Store.SaveToday(items)
}

func (f *failingStore) Commit(tasks []model.Task, today []model.TodayItem) error {
	if f.fail {
		return errDisk
	}
	return f.Store.Commit(tasks, today)
}

func TestFailedWritesLeaveStateUnchanged(t *testing.T) {
	fs := &failingStore{Store: store.NewMemory()}
	m := newManager(t, fs)
	task, err := m.AddFromText("write report")
	require.NoError(t, err)
	for _, sub := range []string{"A", "B"} {
		_, err = m.AddSubtask(task.ID, sub)
		require.NoError(t, err)
	}
	_, err = m.Pick(task.ID, 1)
	require.NoError(t, err)

	tasksBefore, todayBefore := m.Tasks(), m.TodayItems()
	fs.fail = true

	_, err = m.AddFromText("another task")
	require.ErrorIs(t, err, errDisk)
	_, err = m.AddSubtask(task.ID, "C")
	require.ErrorIs(t, err, errDisk)
	_, err = m.RemoveSubtask(task.ID, 0)
	require.ErrorIs(t, err, errDisk)
	_, err = m.Pick(task.ID, 0)
	require.ErrorIs(t, err, errDisk)
	err = m.Unpick(task.ID, 1)
	require.ErrorIs(t, err, errDisk)
	_, err = m.Delete(task.ID)
	require.ErrorIs(t, err, errDisk)

	require.Equal(t, tasksBefore, m.Tasks())
	require.Equal(t, todayBefore, m.TodayItems())
}

func TestEntriesJoinTaskNames(t *testing.T) {
	m, _, task := seeded(t)
	_, err := m.Pick(task.ID, 1)
	require.NoError(t, err)

	items := append(m.TodayItems(), model.TodayItem{TaskID: "tsk_gone", SubtaskIndex: 0, Subtask: "old"})
	require.Equal(t, []Entry{
		{TaskID: task.ID, TaskName: "write report", Index: 2, Subtask: "B"},
		{TaskID: "tsk_gone", Index: 1, Subtask: "old"},
	}, m.Entries(items))
}
