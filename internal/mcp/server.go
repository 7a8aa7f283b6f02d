package mcp

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/amirbrooks/tasker-today/internal/logging"
	"github.com/amirbrooks/tasker-today/internal/messages"
	"github.com/amirbrooks/tasker-today/internal/tracker"
)

const Version = "0.1.0"

// handler serializes tool calls onto the single-threaded manager.
type handler struct {
	mu      sync.Mutex
	manager *tracker.Manager
	tr      *messages.Translator
	logger  *log.Logger
}

// NewServer creates a new MCP server exposing the tracker as tools.
func NewServer(manager *tracker.Manager, tr *messages.Translator, logger *log.Logger) *server.MCPServer {
	if logger == nil {
		logger = logging.Discard()
	}
	h := &handler{manager: manager, tr: tr, logger: logger}
	s := server.NewMCPServer("tasker", Version)

	// Tasks
	s.AddTool(mcp.NewTool("add_task",
		mcp.WithDescription("Add a task from a natural-language sentence (English or Chinese). Priority and due date are inferred."),
		mcp.WithString("text", mcp.Description("Task sentence, e.g. 'Plan a marketing meeting next Monday, high priority'"), mcp.Required()),
	), h.addTask)

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List all tasks with their subtasks."),
	), h.listTasks)

	s.AddTool(mcp.NewTool("search_tasks",
		mcp.WithDescription("Find tasks whose name or original text contains a keyword."),
		mcp.WithString("keyword", mcp.Description("Case-insensitive keyword"), mcp.Required()),
	), h.searchTasks)

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task and drop its subtasks from today's queue."),
		mcp.WithString("task", mcp.Description("Task ID or exact task name"), mcp.Required()),
	), h.deleteTask)

	// Subtasks
	s.AddTool(mcp.NewTool("add_subtask",
		mcp.WithDescription("Append a subtask to a task."),
		mcp.WithString("task", mcp.Description("Task ID or exact task name"), mcp.Required()),
		mcp.WithString("subtask", mcp.Description("Subtask text"), mcp.Required()),
	), h.addSubtask)

	s.AddTool(mcp.NewTool("remove_subtask",
		mcp.WithDescription("Remove a subtask. Today's queue is updated to match."),
		mcp.WithString("task", mcp.Description("Task ID or exact task name"), mcp.Required()),
		mcp.WithNumber("index", mcp.Description("Subtask number, starting at 1"), mcp.Required()),
	), h.removeSubtask)

	// Today queue
	s.AddTool(mcp.NewTool("list_today",
		mcp.WithDescription("List the subtasks picked for today."),
	), h.listToday)

	s.AddTool(mcp.NewTool("pick_today",
		mcp.WithDescription("Add one subtask to today's queue."),
		mcp.WithString("task", mcp.Description("Task ID or exact task name"), mcp.Required()),
		mcp.WithNumber("index", mcp.Description("Subtask number, starting at 1"), mcp.Required()),
	), h.pickToday)

	s.AddTool(mcp.NewTool("unpick_today",
		mcp.WithDescription("Remove one subtask from today's queue."),
		mcp.WithString("task", mcp.Description("Task ID or exact task name"), mcp.Required()),
		mcp.WithNumber("index", mcp.Description("Subtask number, starting at 1"), mcp.Required()),
	), h.unpickToday)

	s.AddTool(mcp.NewTool("pick_today_by_keyword",
		mcp.WithDescription("Add every subtask whose text or task name contains a keyword to today's queue."),
		mcp.WithString("keyword", mcp.Description("Case-insensitive keyword"), mcp.Required()),
	), h.pickTodayByKeyword)

	s.AddTool(mcp.NewTool("complete_today",
		mcp.WithDescription("Complete a subtask: it is removed from its task and from today's queue."),
		mcp.WithString("task", mcp.Description("Task ID or exact task name"), mcp.Required()),
		mcp.WithNumber("index", mcp.Description("Subtask number, starting at 1"), mcp.Required()),
	), h.completeToday)

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func (h *handler) addTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	task, err := h.manager.AddFromText(mcp.ParseString(request, "text", ""))
	if err != nil {
		return h.fail("add_task", err), nil
	}
	return jsonResult(map[string]any{"task": task, "message": task.Result})
}

func (h *handler) listTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return jsonResult(map[string]any{"tasks": h.manager.Tasks()})
}

func (h *handler) searchTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return jsonResult(map[string]any{"tasks": h.manager.Search(mcp.ParseString(request, "keyword", ""))})
}

func (h *handler) deleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.manager.Delete(mcp.ParseString(request, "task", "")); err != nil {
		return h.fail("delete_task", err), nil
	}
	return mcp.NewToolResultText(h.tr.T("task_deleted", nil)), nil
}

func (h *handler) addSubtask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	task, err := h.manager.AddSubtask(mcp.ParseString(request, "task", ""), mcp.ParseString(request, "subtask", ""))
	if err != nil {
		return h.fail("add_subtask", err), nil
	}
	return jsonResult(map[string]any{"task": task, "message": h.tr.T("subtask_added", nil)})
}

func (h *handler) removeSubtask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	i, bad := h.index(request)
	if bad != nil {
		return bad, nil
	}
	task, err := h.manager.RemoveSubtask(mcp.ParseString(request, "task", ""), i)
	if err != nil {
		return h.fail("remove_subtask", err), nil
	}
	return jsonResult(map[string]any{"task": task, "message": h.tr.T("subtask_removed", nil)})
}

func (h *handler) listToday(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return jsonResult(map[string]any{"today": h.manager.Entries(h.manager.TodayItems())})
}

func (h *handler) pickToday(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	i, bad := h.index(request)
	if bad != nil {
		return bad, nil
	}
	if _, err := h.manager.Pick(mcp.ParseString(request, "task", ""), i); err != nil {
		return h.fail("pick_today", err), nil
	}
	return mcp.NewToolResultText(h.tr.T("today_added", nil)), nil
}

func (h *handler) unpickToday(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	i, bad := h.index(request)
	if bad != nil {
		return bad, nil
	}
	if err := h.manager.Unpick(mcp.ParseString(request, "task", ""), i); err != nil {
		return h.fail("unpick_today", err), nil
	}
	return mcp.NewToolResultText(h.tr.T("today_removed", nil)), nil
}

func (h *handler) pickTodayByKeyword(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	matches, err := h.manager.PickByKeyword(mcp.ParseString(request, "keyword", ""))
	if err != nil {
		return h.fail("pick_today_by_keyword", err), nil
	}
	if len(matches) == 0 {
		return mcp.NewToolResultText(h.tr.T("no_matches", nil)), nil
	}
	return jsonResult(map[string]any{"picked": h.manager.Entries(matches)})
}

func (h *handler) completeToday(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	i, bad := h.index(request)
	if bad != nil {
		return bad, nil
	}
	removed, err := h.manager.CompleteSubtask(mcp.ParseString(request, "task", ""), i)
	if err != nil {
		return h.fail("complete_today", err), nil
	}
	return mcp.NewToolResultText(h.tr.T("completed", map[string]any{"Subtask": removed})), nil
}

// index converts the required 1-based "index" argument to a subtask
// position. A missing or non-numeric argument becomes a tool error.
func (h *handler) index(request mcp.CallToolRequest) (int, *mcp.CallToolResult) {
	n, err := request.RequireInt("index")
	if err != nil {
		h.logger.Debug("bad index argument", "err", err)
		return 0, mcp.NewToolResultError(h.tr.T("error_line", map[string]any{"Message": h.tr.T("index_not_number", nil)}))
	}
	return n - 1, nil
}

func (h *handler) fail(tool string, err error) *mcp.CallToolResult {
	if !messages.IsUserError(err) {
		h.logger.Error("tool failed", "tool", tool, "err", err)
	}
	return mcp.NewToolResultError(h.tr.ErrorLine(err))
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
