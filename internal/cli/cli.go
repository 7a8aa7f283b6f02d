package cli

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/log"

	"github.com/amirbrooks/tasker-today/internal/config"
	"github.com/amirbrooks/tasker-today/internal/logging"
	mcpserver "github.com/amirbrooks/tasker-today/internal/mcp"
	"github.com/amirbrooks/tasker-today/internal/messages"
	"github.com/amirbrooks/tasker-today/internal/model"
	"github.com/amirbrooks/tasker-today/internal/store"
	"github.com/amirbrooks/tasker-today/internal/tracker"
)

// Exit codes
const (
	ExitOK       = 0
	ExitUsage    = 2
	ExitNotFound = 3
	ExitInternal = 10
)

type GlobalFlags struct {
	Root      string
	Backend   string
	DBPath    string
	Lang      string
	LogLevel  string
	LogFormat string
	JSON      bool
	Plain     bool
	Quiet     bool
}

func (gf GlobalFlags) overrides() config.Overrides {
	return config.Overrides{
		Root:      gf.Root,
		Backend:   gf.Backend,
		DBPath:    gf.DBPath,
		Lang:      gf.Lang,
		LogLevel:  gf.LogLevel,
		LogFormat: gf.LogFormat,
	}
}

// env is everything one invocation needs after globals and config are
// resolved.
type env struct {
	gf     GlobalFlags
	cfg    *config.Loaded
	logger *log.Logger
	tr     *messages.Translator
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

var timeNow = time.Now

func reorderFlags(args []string, takesValue map[string]bool) []string {
	if len(args) == 0 {
		return args
	}
	var flags []string
	var rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			if i+1 < len(args) {
				rest = append(rest, args[i+1:]...)
			}
			break
		}
		if strings.HasPrefix(a, "-") {
			flags = append(flags, a)
			if takesValue[a] && !strings.Contains(a, "=") {
				if i+1 < len(args) {
					flags = append(flags, args[i+1])
					i++
				}
			}
			continue
		}
		rest = append(rest, a)
	}
	return append(flags, rest...)
}

func Run(args []string) int {
	return run(args, os.Stdin, os.Stdout, os.Stderr)
}

func run(args []string, in io.Reader, out, errOut io.Writer) int {
	gf, rest, err := extractGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return ExitUsage
	}

	// No command means an interactive session.
	cmd := "repl"
	var cmdArgs []string
	if len(rest) > 0 {
		cmd = rest[0]
		cmdArgs = rest[1:]
	}
	switch cmd {
	case "help", "--help", "-h":
		printHelp(out)
		return ExitOK
	}

	cfg, err := config.Load(gf.overrides())
	if err != nil {
		fmt.Fprintln(errOut, "tasker:", err)
		if errors.Is(err, config.ErrInvalid) {
			return ExitUsage
		}
		return ExitInternal
	}
	logger := logging.NewWithWriter(errOut, cfg.Logging())
	tr, err := messages.New(cfg.Lang, logger)
	if err != nil {
		fmt.Fprintln(errOut, "tasker:", err)
		return ExitInternal
	}
	e := &env{gf: gf, cfg: cfg, logger: logger, tr: tr, in: in, out: out, errOut: errOut}

	if cmd == "config" || cmd == "cfg" {
		return cmdConfig(e, cmdArgs)
	}

	s, err := store.Open(cfg.Store(), logger)
	if err != nil {
		logger.Error("open store", "backend", cfg.Backend, "err", err)
		fmt.Fprintln(errOut, "tasker:", err)
		return ExitInternal
	}
	defer s.Close()

	m, err := tracker.New(s, tracker.WithLogger(logger), tracker.WithClock(timeNow))
	if err != nil {
		logger.Error("load state", "err", err)
		fmt.Fprintln(errOut, "tasker:", err)
		return ExitInternal
	}

	switch cmd {
	case "repl":
		return cmdRepl(e, m)
	case "mcp":
		return cmdMCP(e, m)
	case "add":
		return cmdAdd(e, m, cmdArgs)
	case "ls", "list":
		return cmdList(e, m, cmdArgs)
	case "show":
		return cmdShow(e, m, cmdArgs)
	case "search":
		return cmdSearch(e, m, cmdArgs)
	case "status":
		return cmdStatus(e, m, cmdArgs)
	case "rm", "delete":
		return cmdDelete(e, m, cmdArgs)
	case "sub":
		return cmdSub(e, m, cmdArgs)
	case "today":
		return cmdToday(e, m, cmdArgs)
	case "pick":
		return cmdPick(e, m, cmdArgs)
	case "unpick":
		return cmdUnpick(e, m, cmdArgs)
	case "pickkw":
		return cmdPickKeyword(e, m, cmdArgs)
	case "done":
		return cmdDone(e, m, cmdArgs)
	default:
		fmt.Fprintf(errOut, "%s\n\n", tr.T("unknown_command", map[string]any{"Command": cmd}))
		printHelp(errOut)
		return ExitUsage
	}
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `tasker: natural-language tasks and a today queue (English / 中文)

Usage:
  tasker [global flags] [command] [args]

With no command, tasker starts an interactive session on stdin.

Global flags:
  --root <path>         Store root (default: ~/.tasker or TASKER_ROOT)
  --backend <name>      docstore|sqlite|memory (default: docstore)
  --db <path>           SQLite file (default: <root>/tasker.db)
  --lang <en|zh>        Message language
  --log-level <level>   debug|info|warn|error (default: warn)
  --log-format <fmt>    text|json|logfmt
  --json                JSON output
  --plain               TSV output
  --quiet               Suppress confirmations

Commands:
  add "<sentence>"                  e.g. add "Plan a marketing meeting next Monday, high priority"
  ls [--status pending|executed]
  show <id|name>
  search <keyword>
  status <id|name> <pending|executed>
  rm <id|name>
  sub add <id|name> "<text>"
  sub rm <id|name> <index>
  today
  pick <id|name> <index>
  unpick <id|name> <index>
  pickkw <keyword>
  done <id|name> <index>
  repl
  mcp                               Serve MCP tools on stdio
  config show
  config set <key> <value>

Subtask indices start at 1.
`)
}

func extractGlobalFlags(args []string) (GlobalFlags, []string, error) {
	// Allow flags anywhere by scanning and stripping known globals.
	gf := GlobalFlags{}
	values := map[string]*string{
		"--root":       &gf.Root,
		"--backend":    &gf.Backend,
		"--db":         &gf.DBPath,
		"--lang":       &gf.Lang,
		"--log-level":  &gf.LogLevel,
		"--log-format": &gf.LogFormat,
	}

	out := make([]string, 0, len(args))
	skip := 0

	for i := 0; i < len(args); i++ {
		if skip > 0 {
			skip--
			continue
		}
		a := args[i]
		if a == "--" {
			out = append(out, args[i+1:]...)
			break
		}
		if dst, ok := values[a]; ok {
			if i+1 >= len(args) {
				return gf, nil, fmt.Errorf("%s requires a value", a)
			}
			*dst = args[i+1]
			skip = 1
			continue
		}
		switch a {
		case "--json":
			gf.JSON = true
		case "--plain":
			gf.Plain = true
		case "--quiet":
			gf.Quiet = true
		default:
			out = append(out, a)
		}
	}

	if gf.JSON && gf.Plain {
		return gf, nil, errors.New("--json and --plain are mutually exclusive")
	}
	return gf, out, nil
}

func cmdAdd(e *env, m *tracker.Manager, args []string) int {
	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" {
		return e.usage(`add "<sentence>"`)
	}
	task, err := m.AddFromText(text)
	if err != nil {
		return e.fail("add", err)
	}
	if e.gf.JSON {
		return e.printJSON(map[string]any{"task": task})
	}
	if e.gf.Plain {
		fmt.Fprintf(e.out, "%s\t%s\t%s\t%s\n", task.ID, task.Name, task.DueDate, task.Priority)
		return ExitOK
	}
	msg := task.Result
	if msg == "" {
		msg = e.tr.T("task_added", nil)
	}
	fmt.Fprintf(e.out, "%s (%s)\n", msg, task.ID)
	return ExitOK
}

func cmdList(e *env, m *tracker.Manager, args []string) int {
	args = reorderFlags(args, map[string]bool{"--status": true})
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	fs.SetOutput(e.errOut)
	status := fs.String("status", "", "Filter by status (pending|executed)")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	want := model.Status(strings.ToLower(strings.TrimSpace(*status)))
	if want != "" && !want.Valid() {
		return e.fail("ls", model.NewValidationError(model.CodeInvalidStatus, "invalid status %q", *status))
	}
	tasks := []model.Task{}
	for _, t := range m.Tasks() {
		if want == "" || t.Status == want {
			tasks = append(tasks, t)
		}
	}
	return e.printTasks(tasks, "no_tasks")
}

func cmdShow(e *env, m *tracker.Manager, args []string) int {
	if len(args) == 0 {
		return e.usage("show <id|name>")
	}
	task, err := m.Find(strings.Join(args, " "))
	if err != nil {
		return e.fail("show", err)
	}
	if e.gf.JSON {
		return e.printJSON(map[string]any{"task": task})
	}
	renderTasks(e.out, e.tr, []model.Task{task})
	return ExitOK
}

func cmdSearch(e *env, m *tracker.Manager, args []string) int {
	keyword := strings.TrimSpace(strings.Join(args, " "))
	if keyword == "" {
		return e.usage("search <keyword>")
	}
	return e.printTasks(m.Search(keyword), "no_search_results")
}

func cmdStatus(e *env, m *tracker.Manager, args []string) int {
	if len(args) < 2 {
		return e.usage("status <id|name> <pending|executed>")
	}
	ref := strings.Join(args[:len(args)-1], " ")
	status := model.Status(strings.ToLower(strings.TrimSpace(args[len(args)-1])))
	task, err := m.UpdateStatus(ref, status)
	if err != nil {
		return e.fail("status", err)
	}
	if e.gf.JSON {
		return e.printJSON(map[string]any{"task": task})
	}
	e.say("status_updated", nil)
	return ExitOK
}

func cmdDelete(e *env, m *tracker.Manager, args []string) int {
	if len(args) == 0 {
		return e.usage("rm <id|name>")
	}
	task, err := m.Delete(strings.Join(args, " "))
	if err != nil {
		return e.fail("rm", err)
	}
	if e.gf.JSON {
		return e.printJSON(map[string]any{"deleted": task.ID})
	}
	e.say("task_deleted", nil)
	return ExitOK
}

func cmdSub(e *env, m *tracker.Manager, args []string) int {
	if len(args) == 0 {
		return e.usage("sub <add|rm> ...")
	}
	switch args[0] {
	case "add":
		if len(args) < 3 {
			return e.usage(`sub add <id|name> "<text>"`)
		}
		task, err := m.AddSubtask(args[1], strings.Join(args[2:], " "))
		if err != nil {
			return e.fail("sub add", err)
		}
		if e.gf.JSON {
			return e.printJSON(map[string]any{"task": task})
		}
		e.say("subtask_added", nil)
		return ExitOK
	case "rm", "remove":
		ref, index, code, ok := e.refAndIndex(args[1:], "sub rm <id|name> <index>")
		if !ok {
			return code
		}
		task, err := m.RemoveSubtask(ref, index)
		if err != nil {
			return e.fail("sub rm", err)
		}
		if e.gf.JSON {
			return e.printJSON(map[string]any{"task": task, "today": m.Entries(m.TodayItems())})
		}
		e.say("subtask_removed", nil)
		return ExitOK
	default:
		return e.usage("sub <add|rm> ...")
	}
}

func cmdToday(e *env, m *tracker.Manager, args []string) int {
	entries := m.Entries(m.TodayItems())
	if e.gf.JSON {
		return e.printJSON(map[string]any{"today": entries})
	}
	if e.gf.Plain {
		fmt.Fprintln(e.out, "TASK_ID\tTASK\tINDEX\tSUBTASK")
		for _, en := range entries {
			fmt.Fprintf(e.out, "%s\t%s\t%d\t%s\n", en.TaskID, en.TaskName, en.Index, en.Subtask)
		}
		return ExitOK
	}
	if len(entries) == 0 {
		fmt.Fprintln(e.out, e.tr.T("no_today", nil))
		return ExitOK
	}
	renderToday(e.out, e.tr, entries)
	return ExitOK
}

func cmdPick(e *env, m *tracker.Manager, args []string) int {
	ref, index, code, ok := e.refAndIndex(args, "pick <id|name> <index>")
	if !ok {
		return code
	}
	item, err := m.Pick(ref, index)
	if err != nil {
		return e.fail("pick", err)
	}
	if e.gf.JSON {
		return e.printJSON(map[string]any{"picked": m.Entries([]model.TodayItem{item})})
	}
	e.say("today_added", nil)
	return ExitOK
}

func cmdUnpick(e *env, m *tracker.Manager, args []string) int {
	ref, index, code, ok := e.refAndIndex(args, "unpick <id|name> <index>")
	if !ok {
		return code
	}
	if err := m.Unpick(ref, index); err != nil {
		return e.fail("unpick", err)
	}
	if e.gf.JSON {
		return e.printJSON(map[string]any{"today": m.Entries(m.TodayItems())})
	}
	e.say("today_removed", nil)
	return ExitOK
}

func cmdPickKeyword(e *env, m *tracker.Manager, args []string) int {
	keyword := strings.TrimSpace(strings.Join(args, " "))
	if keyword == "" {
		return e.usage("pickkw <keyword>")
	}
	matches, err := m.PickByKeyword(keyword)
	if err != nil {
		return e.fail("pickkw", err)
	}
	entries := m.Entries(matches)
	if e.gf.JSON {
		return e.printJSON(map[string]any{"picked": entries})
	}
	if len(entries) == 0 {
		fmt.Fprintln(e.out, e.tr.T("no_matches", nil))
		return ExitOK
	}
	fmt.Fprintln(e.out, e.tr.T("picked", nil))
	renderToday(e.out, e.tr, entries)
	return ExitOK
}

func cmdDone(e *env, m *tracker.Manager, args []string) int {
	ref, index, code, ok := e.refAndIndex(args, "done <id|name> <index>")
	if !ok {
		return code
	}
	removed, err := m.CompleteSubtask(ref, index)
	if err != nil {
		return e.fail("done", err)
	}
	if e.gf.JSON {
		return e.printJSON(map[string]any{"completed": removed, "today": m.Entries(m.TodayItems())})
	}
	e.say("completed", map[string]any{"Subtask": removed})
	return ExitOK
}

func cmdMCP(e *env, m *tracker.Manager) int {
	s := mcpserver.NewServer(m, e.tr, e.logger)
	e.logger.Info("serving MCP on stdio", "backend", e.cfg.Backend, "root", e.cfg.Root)
	if err := mcpserver.Serve(s); err != nil {
		e.logger.Error("mcp server stopped", "err", err)
		return ExitInternal
	}
	return ExitOK
}

func cmdConfig(e *env, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(e.errOut, "Usage: tasker config <show|set> ...")
		return ExitUsage
	}
	switch args[0] {
	case "show":
	case "set":
		return cmdConfigSet(e, args[1:])
	default:
		fmt.Fprintln(e.errOut, "Usage: tasker config <show|set> ...")
		return ExitUsage
	}

	_, err := os.Stat(e.cfg.File)
	exists := err == nil

	if e.gf.JSON {
		return e.printJSON(map[string]any{
			"config_path": e.cfg.File,
			"exists":      exists,
			"config":      e.cfg.Config,
			"sources":     e.cfg.Sources,
		})
	}

	if e.gf.Plain {
		w := tabwriter.NewWriter(e.out, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tVALUE\tSOURCE")
		for _, k := range config.Keys() {
			v, _ := e.cfg.Get(k)
			fmt.Fprintf(w, "%s\t%s\t%s\n", k, v, e.cfg.Sources[k])
		}
		_ = w.Flush()
		return ExitOK
	}

	fmt.Fprintln(e.out, "Config")
	if exists {
		fmt.Fprintln(e.out, "  Config file:", e.cfg.File)
	} else {
		fmt.Fprintln(e.out, "  Config file:", e.cfg.File, "(not found; defaults shown)")
	}
	fmt.Fprintln(e.out)
	for _, k := range config.Keys() {
		v, _ := e.cfg.Get(k)
		fmt.Fprintf(e.out, "  %s: %s (%s)\n", k, v, e.cfg.Sources[k])
	}
	return ExitOK
}

func cmdConfigSet(e *env, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(e.errOut, "Usage: tasker config set <key> <value>")
		return ExitUsage
	}
	key := strings.ToLower(strings.TrimSpace(args[0]))
	value := strings.TrimSpace(strings.Join(args[1:], " "))
	if err := config.SetInFile(e.cfg.File, key, value); err != nil {
		fmt.Fprintln(e.errOut, "config set:", err)
		if errors.Is(err, config.ErrInvalid) {
			return ExitUsage
		}
		return ExitInternal
	}
	e.say("config_saved", map[string]any{"Key": key, "Path": e.cfg.File})
	return ExitOK
}

// refAndIndex splits "<ref...> <index>" where the last argument is a
// 1-based subtask number.
func (e *env) refAndIndex(args []string, usage string) (string, int, int, bool) {
	if len(args) < 2 {
		return "", 0, e.usage(usage), false
	}
	index, ok := parseIndex(args[len(args)-1])
	if !ok {
		fmt.Fprintln(e.errOut, e.errorLine(e.tr.T("index_not_number", nil)))
		return "", 0, ExitUsage, false
	}
	return strings.Join(args[:len(args)-1], " "), index, ExitOK, true
}

// parseIndex turns a 1-based number into a 0-based subtask index.
func parseIndex(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n - 1, true
}

func (e *env) fail(cmd string, err error) int {
	if messages.IsUserError(err) {
		fmt.Fprintln(e.errOut, e.tr.ErrorLine(err))
		return ExitNotFound
	}
	e.logger.Error(cmd+" failed", "err", err)
	fmt.Fprintln(e.errOut, e.tr.ErrorLine(err))
	return ExitInternal
}

func (e *env) usage(u string) int {
	fmt.Fprintln(e.errOut, e.errorLine(e.tr.T("usage", map[string]any{"Usage": u})))
	return ExitUsage
}

func (e *env) errorLine(msg string) string {
	return e.tr.T("error_line", map[string]any{"Message": msg})
}

func (e *env) say(id string, data map[string]any) {
	if !e.gf.Quiet {
		fmt.Fprintln(e.out, e.tr.T(id, data))
	}
}

func (e *env) printJSON(payload any) int {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		e.logger.Error("encode json", "err", err)
		return ExitInternal
	}
	return ExitOK
}

func (e *env) printTasks(tasks []model.Task, emptyID string) int {
	if e.gf.JSON {
		return e.printJSON(map[string]any{"tasks": tasks})
	}
	if e.gf.Plain {
		fmt.Fprintln(e.out, "ID\tNAME\tDUE\tPRIORITY\tSTATUS\tSUBTASKS")
		for _, t := range tasks {
			fmt.Fprintf(e.out, "%s\t%s\t%s\t%s\t%s\t%d\n", t.ID, t.Name, t.DueDate, t.Priority, t.Status, len(t.Subtasks))
		}
		return ExitOK
	}
	if len(tasks) == 0 {
		fmt.Fprintln(e.out, e.tr.T(emptyID, nil))
		return ExitOK
	}
	w := tabwriter.NewWriter(e.out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDUE\tPRIORITY\tSTATUS\tSUBTASKS")
	for _, t := range tasks {
		due := t.DueDate
		if due == "" {
			due = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", t.ID, t.Name, due, t.Priority, t.Status, len(t.Subtasks))
	}
	_ = w.Flush()
	return ExitOK
}
