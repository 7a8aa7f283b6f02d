package model

// TodayItem references one subtask picked for today. Subtask caches the text at
// SubtaskIndex and is rewritten whenever the owning task's subtasks shift.
type TodayItem struct {
	TaskID       string `json:"task_id"`
	SubtaskIndex int    `json:"subtask_index"`
	Subtask      string `json:"subtask"`
}

func (i TodayItem) Equal(o TodayItem) bool {
	return i.TaskID == o.TaskID && i.SubtaskIndex == o.SubtaskIndex && i.Subtask == o.Subtask
}

// Refers reports whether the item points at the given task position.
func (i TodayItem) Refers(taskID string, index int) bool {
	return i.TaskID == taskID && i.SubtaskIndex == index
}

// ContainsItem reports whether items already holds an item equal to item.
func ContainsItem(items []TodayItem, item TodayItem) bool {
	for _, it := range items {
		if it.Equal(item) {
			return true
		}
	}
	return false
}

func CloneItems(in []TodayItem) []TodayItem {
	return append([]TodayItem{}, in...)
}
