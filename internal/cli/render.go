package cli

import (
	"fmt"
	"io"

	"github.com/amirbrooks/tasker-today/internal/messages"
	"github.com/amirbrooks/tasker-today/internal/model"
	"github.com/amirbrooks/tasker-today/internal/tracker"
)

// renderTasks writes the long listing: one header line per task followed
// by its numbered subtasks.
func renderTasks(w io.Writer, tr *messages.Translator, tasks []model.Task) {
	for _, t := range tasks {
		due := t.DueDate
		if due == "" {
			due = tr.T("label_not_set", nil)
		}
		fmt.Fprintf(w, "- %s | %s: %s | %s: %s | %s: %s | %s: %s\n",
			t.Name,
			tr.T("label_due", nil), due,
			tr.T("label_priority", nil), t.Priority,
			tr.T("label_status", nil), t.Status,
			tr.T("label_description", nil), t.Description,
		)
		if len(t.Subtasks) == 0 {
			fmt.Fprintf(w, "  %s\n", tr.T("label_subtasks_none", nil))
			continue
		}
		for i, sub := range t.Subtasks {
			fmt.Fprintf(w, "  %s %d: %s\n", tr.T("label_subtask", nil), i+1, sub)
		}
	}
}

func renderToday(w io.Writer, tr *messages.Translator, entries []tracker.Entry) {
	for _, e := range entries {
		name := e.TaskName
		if name == "" {
			name = tr.T("unknown_task", nil)
		}
		fmt.Fprintf(w, "- %s | %s %d: %s\n", name, tr.T("label_subtask", nil), e.Index, e.Subtask)
	}
}
