package tracker

import "github.com/amirbrooks/tasker-today/internal/model"

// Resync repairs today items after the subtask at removed was deleted from
// taskID, leaving that task with subtasks. The item at removed is dropped,
// later items move down one place and pick up the text now at their index,
// earlier items stay as they are. Anything left out of range is dropped.
// Items of other tasks pass through untouched.
func Resync(items []model.TodayItem, taskID string, removed int, subtasks []string) []model.TodayItem {
	out := make([]model.TodayItem, 0, len(items))
	for _, it := range items {
		if it.TaskID != taskID {
			out = append(out, it)
			continue
		}
		idx := it.SubtaskIndex
		switch {
		case idx == removed:
			continue
		case idx > removed:
			idx--
			if idx < 0 || idx >= len(subtasks) {
				continue
			}
			out = append(out, model.TodayItem{TaskID: taskID, SubtaskIndex: idx, Subtask: subtasks[idx]})
		default:
			if idx < 0 || idx >= len(subtasks) {
				continue
			}
			out = append(out, it)
		}
	}
	return out
}
