package mcpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hylla/tavla/internal/adapters/remote"
	"github.com/hylla/tavla/internal/adapters/server/common"
)

// stubTaskService provides deterministic task responses for MCP tool tests.
type stubTaskService struct {
	statuses    []remote.StatusRecord
	list        remote.TaskListResponse
	record      remote.TaskRecord
	changes     []common.StatusChange
	setErr      error
	lastList    common.ListTasksRequest
	lastSet     common.SetTaskStatusRequest
	lastChanges common.ListStatusChangesRequest
}

// ListStatuses returns the fixture statuses.
func (s *stubTaskService) ListStatuses(context.Context) ([]remote.StatusRecord, error) {
	return append([]remote.StatusRecord(nil), s.statuses...), nil
}

// ListTasks records the request and returns the fixture list.
func (s *stubTaskService) ListTasks(_ context.Context, req common.ListTasksRequest) (remote.TaskListResponse, error) {
	s.lastList = req
	return s.list, nil
}

// SetTaskStatus records the request and returns the fixture record or error.
func (s *stubTaskService) SetTaskStatus(_ context.Context, req common.SetTaskStatusRequest) (remote.TaskRecord, error) {
	s.lastSet = req
	if s.setErr != nil {
		return remote.TaskRecord{}, s.setErr
	}
	return s.record, nil
}

// ListStatusChanges records the request and returns the fixture history.
func (s *stubTaskService) ListStatusChanges(_ context.Context, req common.ListStatusChangesRequest) ([]common.StatusChange, error) {
	s.lastChanges = req
	return append([]common.StatusChange(nil), s.changes...), nil
}

// jsonRPCResponse models minimal JSON-RPC response fields used in MCP adapter tests.
type jsonRPCResponse struct {
	ID     float64        `json:"id"`
	Result map[string]any `json:"result"`
}

// callToolRequest constructs one deterministic tools/call JSON-RPC request payload.
func callToolRequest(id int, toolName string, arguments map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": arguments,
		},
	}
}

// toolResultText decodes the first text entry from one tool-call result payload.
func toolResultText(t *testing.T, result map[string]any) string {
	t.Helper()
	contentRaw, ok := result["content"].([]any)
	if !ok || len(contentRaw) == 0 {
		t.Fatalf("content missing in tool result: %#v", result)
	}
	first, ok := contentRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("first content entry has unexpected type: %#v", contentRaw[0])
	}
	text, ok := first["text"].(string)
	if !ok {
		t.Fatalf("content text missing in tool result: %#v", first)
	}
	return text
}

// toolResultStructured decodes structuredContent as one map for stable assertions.
func toolResultStructured(t *testing.T, result map[string]any) map[string]any {
	t.Helper()
	structured, ok := result["structuredContent"].(map[string]any)
	if !ok {
		t.Fatalf("structuredContent missing in tool result: %#v", result)
	}
	return structured
}

// postJSONRPC sends one JSON-RPC payload and decodes the response body.
func postJSONRPC(t *testing.T, client *http.Client, url string, payload any) (*http.Response, jsonRPCResponse) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	var decoded jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return resp, decoded
}

// initializeRequest builds a deterministic MCP initialize request payload.
func initializeRequest() map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"clientInfo": map[string]any{
				"name":    "tavla-test",
				"version": "1.0.0",
			},
		},
	}
}

// newTestServer starts one MCP handler over a stub and runs initialize.
func newTestServer(t *testing.T, stub *stubTaskService) *httptest.Server {
	t.Helper()
	handler, err := NewHandler(Config{}, stub)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	return server
}

// TestNewHandlerRequiresService verifies a nil service is rejected.
func TestNewHandlerRequiresService(t *testing.T) {
	if _, err := NewHandler(Config{}, nil); err == nil {
		t.Fatalf("NewHandler() error = nil, want error")
	}
}

// TestHandlerUsesStatelessTransport verifies MCP transport does not issue session ids.
func TestHandlerUsesStatelessTransport(t *testing.T) {
	handler, err := NewHandler(Config{}, &stubTaskService{})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, decoded := postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if decoded.ID != 1 {
		t.Fatalf("id = %v, want 1", decoded.ID)
	}
	if got := resp.Header.Get("Mcp-Session-Id"); got != "" {
		t.Fatalf("Mcp-Session-Id header = %q, want empty (stateless transport)", got)
	}
}

// TestHandlerRegistersTaskTools verifies tool discovery lists every sandbox tool.
func TestHandlerRegistersTaskTools(t *testing.T) {
	server := newTestServer(t, &stubTaskService{})
	_, toolsResp := postJSONRPC(t, server.Client(), server.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/list",
	})

	toolsRaw, ok := toolsResp.Result["tools"].([]any)
	if !ok {
		t.Fatalf("tools list payload missing tools: %#v", toolsResp.Result)
	}
	toolNames := make([]string, 0, len(toolsRaw))
	for _, toolRaw := range toolsRaw {
		toolMap, ok := toolRaw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := toolMap["name"].(string)
		toolNames = append(toolNames, name)
	}
	for _, required := range []string{
		"tavla.list_statuses",
		"tavla.list_tasks",
		"tavla.set_task_status",
		"tavla.list_status_changes",
	} {
		if !slices.Contains(toolNames, required) {
			t.Fatalf("tool list missing %q: %#v", required, toolNames)
		}
	}
}

// TestHandlerListTasksToolCall verifies limit forwarding and structured task rows.
func TestHandlerListTasksToolCall(t *testing.T) {
	stub := &stubTaskService{
		list: remote.TaskListResponse{
			Tasks:        []remote.TaskRecord{{ID: "1", Subject: "Draft release notes", StatusID: "1"}},
			StatusCounts: []remote.StatusCount{{StatusID: "1", Shown: 1, Total: 2}},
		},
	}
	server := newTestServer(t, stub)

	_, callResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "tavla.list_tasks", map[string]any{
		"limit": 1,
	}))
	structured := toolResultStructured(t, callResp.Result)
	tasksRaw, ok := structured["tasks"].([]any)
	if !ok || len(tasksRaw) != 1 {
		t.Fatalf("tasks = %#v, want one row", structured["tasks"])
	}
	if stub.lastList.Limit != 1 {
		t.Fatalf("limit = %d, want 1", stub.lastList.Limit)
	}
}

// TestHandlerSetTaskStatusToolCall verifies arguments reach the service.
func TestHandlerSetTaskStatusToolCall(t *testing.T) {
	stub := &stubTaskService{record: remote.TaskRecord{ID: "3", Subject: "Fix pagination", StatusID: "4"}}
	server := newTestServer(t, stub)

	_, callResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(4, "tavla.set_task_status", map[string]any{
		"task_id":    "3",
		"status_id":  "4",
		"request_id": "req-mcp",
	}))
	if isError, _ := callResp.Result["isError"].(bool); isError {
		t.Fatalf("isError = true, result %#v", callResp.Result)
	}
	if stub.lastSet != (common.SetTaskStatusRequest{TaskID: "3", StatusID: "4", RequestID: "req-mcp"}) {
		t.Fatalf("request = %#v", stub.lastSet)
	}
	structured := toolResultStructured(t, callResp.Result)
	if structured["subject"] != "Fix pagination" {
		t.Fatalf("subject = %#v, want Fix pagination", structured["subject"])
	}
}

// TestHandlerSetTaskStatusToolErrors verifies missing arguments and mapped service errors.
func TestHandlerSetTaskStatusToolErrors(t *testing.T) {
	stub := &stubTaskService{setErr: errors.Join(common.ErrConflict, errors.New("task is locked"))}
	server := newTestServer(t, stub)

	_, missingArgResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(5, "tavla.set_task_status", map[string]any{
		"task_id": "8",
	}))
	if isError, _ := missingArgResp.Result["isError"].(bool); !isError {
		t.Fatalf("isError = %v, want true", missingArgResp.Result["isError"])
	}

	_, mappedErrResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(6, "tavla.set_task_status", map[string]any{
		"task_id":   "8",
		"status_id": "1",
	}))
	if isError, _ := mappedErrResp.Result["isError"].(bool); !isError {
		t.Fatalf("isError = %v, want true", mappedErrResp.Result["isError"])
	}
	if text := toolResultText(t, mappedErrResp.Result); !strings.HasPrefix(text, "conflict:") {
		t.Fatalf("error text = %q, want conflict prefix", text)
	}
}

// TestHandlerListStatusChangesDefaultsLimit verifies the history tool applies the default limit.
func TestHandlerListStatusChangesDefaultsLimit(t *testing.T) {
	stub := &stubTaskService{
		changes: []common.StatusChange{{
			ID:         "c1",
			TaskID:     "1",
			FromStatus: "1",
			ToStatus:   "2",
			ChangedAt:  time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC),
		}},
	}
	server := newTestServer(t, stub)

	_, callResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(7, "tavla.list_status_changes", map[string]any{
		"task_id": "1",
	}))
	structured := toolResultStructured(t, callResp.Result)
	if changes, ok := structured["changes"].([]any); !ok || len(changes) != 1 {
		t.Fatalf("changes = %#v, want one row", structured["changes"])
	}
	if stub.lastChanges != (common.ListStatusChangesRequest{TaskID: "1", Limit: common.DefaultChangeLimit}) {
		t.Fatalf("request = %#v", stub.lastChanges)
	}
}

// TestToolResultFromErrorPrefixes verifies error-to-prefix mapping.
func TestToolResultFromErrorPrefixes(t *testing.T) {
	cases := map[string]error{
		"invalid_request:": common.ErrInvalidRequest,
		"not_found:":       common.ErrNotFound,
		"conflict:":        common.ErrConflict,
		"internal_error:":  errors.New("boom"),
	}
	for prefix, err := range cases {
		result := toolResultFromError(err)
		if !result.IsError {
			t.Fatalf("IsError = false for %v", err)
		}
		text, ok := result.Content[0].(mcp.TextContent)
		if !ok || !strings.HasPrefix(text.Text, prefix) {
			t.Fatalf("content = %#v, want prefix %q", result.Content, prefix)
		}
	}
}
