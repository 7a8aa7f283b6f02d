package store

import (
	"sync"

	"github.com/amirbrooks/tasker-today/internal/model"
)

// Memory is a Store that keeps deep copies in process memory.
type Memory struct {
	mu    sync.Mutex
	tasks []model.Task
	today []model.TodayItem
}

func NewMemory() *Memory {
	return &Memory{tasks: []model.Task{}, today: []model.TodayItem{}}
}

func (m *Memory) LoadAll() ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.CloneTasks(m.tasks), nil
}

func (m *Memory) SaveAll(tasks []model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = model.CloneTasks(tasks)
	return nil
}

func (m *Memory) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.tasks[:0]
	for _, t := range m.tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	m.tasks = out
	return nil
}

func (m *Memory) LoadToday() ([]model.TodayItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.CloneItems(m.today), nil
}

func (m *Memory) SaveToday(items []model.TodayItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.today = model.CloneItems(items)
	return nil
}

func (m *Memory) Commit(tasks []model.Task, today []model.TodayItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = model.CloneTasks(tasks)
	m.today = model.CloneItems(today)
	return nil
}

func (m *Memory) Close() error { return nil }
