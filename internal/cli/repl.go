package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/amirbrooks/tasker-today/internal/messages"
	"github.com/amirbrooks/tasker-today/internal/tracker"
)

const maxLineBytes = 1 << 20

// session is the interactive loop: one command or task sentence per line.
type session struct {
	*env
	m *tracker.Manager
}

func cmdRepl(e *env, m *tracker.Manager) int {
	s := &session{env: e, m: m}
	fmt.Fprintln(e.out, e.tr.T("started", nil))
	if n := len(m.Tasks()); n > 0 {
		fmt.Fprintln(e.out, e.tr.T("loaded", map[string]any{"Count": n}))
	}

	scanner := bufio.NewScanner(e.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if s.run(line) {
			return ExitOK
		}
	}
	if err := scanner.Err(); err != nil {
		e.logger.Error("read input", "err", err)
		return ExitInternal
	}
	return ExitOK
}

// run handles one line. A panic is reported like any other unexpected failure
// and the session carries on.
func (s *session) run(line string) (quit bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("command panicked", "line", line, "panic", r)
			s.println(s.tr.T("unknown_error", map[string]any{"Message": fmt.Sprint(r)}))
			quit = false
		}
	}()
	return s.handle(line)
}

// handle runs one line and reports whether the session should end.
func (s *session) handle(line string) bool {
	switch strings.ToLower(line) {
	case "quit", "exit":
		s.println(s.tr.T("exited", nil))
		return true
	case "help":
		s.println(s.tr.T("help_intro", nil))
		s.println(s.tr.T("help_commands", nil))
		return false
	case "list":
		s.list()
		return false
	case "today":
		s.today(s.m.Entries(s.m.TodayItems()))
		return false
	}

	name, rest, _ := strings.Cut(line, " ")
	switch strings.ToLower(name) {
	case "todayadd":
		s.withIndex(line, "todayadd <task_id> <index>", func(ref string, index int) error {
			if _, err := s.m.Pick(ref, index); err != nil {
				return err
			}
			s.println(s.tr.T("today_added", nil))
			return nil
		})
	case "todayrm":
		s.withIndex(line, "todayrm <task_id> <index>", func(ref string, index int) error {
			if err := s.m.Unpick(ref, index); err != nil {
				return err
			}
			s.println(s.tr.T("today_removed", nil))
			return nil
		})
	case "todaydone":
		s.withIndex(line, "todaydone <task_id> <index>", func(ref string, index int) error {
			removed, err := s.m.CompleteSubtask(ref, index)
			if err != nil {
				return err
			}
			s.println(s.tr.T("completed", map[string]any{"Subtask": removed}))
			return nil
		})
	case "subrm":
		s.withIndex(line, "subrm <task_id> <index>", func(ref string, index int) error {
			if _, err := s.m.RemoveSubtask(ref, index); err != nil {
				return err
			}
			s.println(s.tr.T("subtask_removed", nil))
			return nil
		})
	case "subadd":
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 3 {
			s.println(s.errorLine(s.tr.T("usage", map[string]any{"Usage": "subadd <task_id> <subtask>"})))
			return false
		}
		if _, err := s.m.AddSubtask(strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2])); err != nil {
			s.report(err)
			return false
		}
		s.println(s.tr.T("subtask_added", nil))
	case "todaypick":
		matches, err := s.m.PickByKeyword(strings.TrimSpace(rest))
		if err != nil {
			s.report(err)
			return false
		}
		if len(matches) == 0 {
			s.println(s.tr.T("no_matches", nil))
			return false
		}
		s.println(s.tr.T("picked", nil))
		renderToday(s.out, s.tr, s.m.Entries(matches))
	case "delete":
		if _, err := s.m.Delete(strings.TrimSpace(rest)); err != nil {
			s.report(err)
			return false
		}
		s.println(s.tr.T("task_deleted", nil))
	default:
		s.add(line)
	}
	return false
}

// withIndex parses "<cmd> <ref> <index>" and runs fn with a 0-based index.
func (s *session) withIndex(line, usage string, fn func(ref string, index int) error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 {
		s.println(s.errorLine(s.tr.T("usage", map[string]any{"Usage": usage})))
		return
	}
	index, ok := parseIndex(parts[2])
	if !ok {
		s.println(s.errorLine(s.tr.T("index_not_number", nil)))
		return
	}
	if err := fn(strings.TrimSpace(parts[1]), index); err != nil {
		s.report(err)
	}
}

func (s *session) add(line string) {
	task, err := s.m.AddFromText(line)
	if err != nil {
		s.report(err)
		return
	}
	if task.Result != "" {
		s.println(task.Result)
		return
	}
	s.println(s.tr.T("task_added", nil))
}

func (s *session) list() {
	tasks := s.m.Tasks()
	if len(tasks) == 0 {
		s.println(s.tr.T("no_tasks", nil))
		return
	}
	renderTasks(s.out, s.tr, tasks)
}

func (s *session) today(entries []tracker.Entry) {
	if len(entries) == 0 {
		s.println(s.tr.T("no_today", nil))
		return
	}
	renderToday(s.out, s.tr, entries)
}

// report prints an error line and keeps the session alive. Failures other
// than parse and validation errors are also logged.
func (s *session) report(err error) {
	if !messages.IsUserError(err) {
		s.logger.Error("command failed", "err", err)
	}
	s.println(s.tr.ErrorLine(err))
}

func (s *session) println(msg string) {
	fmt.Fprintln(s.out, msg)
}
