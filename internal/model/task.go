package model

import (
	"strings"
	"time"
)

// DateLayout is the persisted form of a due date.
const DateLayout = "2006-01-02"

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Severity orders priorities so that a higher value is more urgent.
func (p Priority) Severity() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (p Priority) Valid() bool {
	return p.Severity() > 0
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusExecuted Status = "executed"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusExecuted
}

type Task struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"-" json:"description"`
	DueDate     string    `yaml:"due_date" json:"due_date"`
	Priority    Priority  `yaml:"priority" json:"priority"`
	Raw         string    `yaml:"raw" json:"raw"`
	CreatedAt   time.Time `yaml:"created_at" json:"created_at"`
	Status      Status    `yaml:"status" json:"status"`
	Result      string    `yaml:"result" json:"result"`
	Subtasks    []string  `yaml:"subtasks" json:"subtasks"`
}

// HasSubtask reports whether index addresses an existing subtask.
func (t *Task) HasSubtask(index int) bool {
	return index >= 0 && index < len(t.Subtasks)
}

// Clone returns a copy that shares no slices with t.
func (t Task) Clone() Task {
	out := t
	out.Subtasks = append([]string(nil), t.Subtasks...)
	if out.Subtasks == nil {
		out.Subtasks = []string{}
	}
	return out
}

// Normalize fills defaults for records written by older versions.
func (t *Task) Normalize() {
	if strings.TrimSpace(t.Description) == "" {
		t.Description = t.Raw
	}
	if t.Subtasks == nil {
		t.Subtasks = []string{}
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
}

// CloneTasks deep-copies a task list.
func CloneTasks(in []Task) []Task {
	out := make([]Task, 0, len(in))
	for _, t := range in {
		out = append(out, t.Clone())
	}
	return out
}
