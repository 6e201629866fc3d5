package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hylla/tavla/internal/app"
	"github.com/hylla/tavla/internal/domain"
)

// DefaultTimeout bounds one remote request.
const DefaultTimeout = 10 * time.Second

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// maxBodyBytes caps how much of one response body is read.
const maxBodyBytes = 8 << 20

// Config holds remote endpoint configuration.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	TasksPath      string
	StatusesPath   string
	TaskStatusPath string
	// TaskLimit asks the server to cap each status at this many tasks when positive.
	TaskLimit int
}

// DefaultConfig returns the conventional endpoint layout.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		Timeout:        DefaultTimeout,
		TasksPath:      "/tasks",
		StatusesPath:   "/statuses",
		TaskStatusPath: "/task/{id}/status",
	}
}

// Client talks to the remote task service.
type Client struct {
	cfg        Config
	httpClient *http.Client
	requestID  func() string
	logger     app.Logger
}

// Option customizes a client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithRequestID overrides request id generation.
func WithRequestID(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.requestID = fn
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger app.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient constructs a remote client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	defaults := DefaultConfig("")
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: remote base url is required", app.ErrValidation)
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: remote base url: %w", app.ErrValidation, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if strings.TrimSpace(cfg.TasksPath) == "" {
		cfg.TasksPath = defaults.TasksPath
	}
	if strings.TrimSpace(cfg.StatusesPath) == "" {
		cfg.StatusesPath = defaults.StatusesPath
	}
	if !strings.Contains(cfg.TaskStatusPath, "{id}") {
		cfg.TaskStatusPath = defaults.TaskStatusPath
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		requestID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = nopLogger{}
	}
	return c, nil
}

// nopLogger discards client logs.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// ListTasks fetches the task list.
func (c *Client) ListTasks(ctx context.Context) (app.TaskList, error) {
	path := c.cfg.TasksPath
	if c.cfg.TaskLimit > 0 {
		path += "?limit=" + strconv.Itoa(c.cfg.TaskLimit)
	}
	body, _, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return app.TaskList{}, err
	}
	records, counts, err := decodeTaskPayload(body)
	if err != nil {
		return app.TaskList{}, err
	}
	out := app.TaskList{Tasks: make([]domain.Task, 0, len(records))}
	for idx, record := range records {
		task, err := record.toDomain()
		if err != nil {
			c.logger.Warn("task record skipped", "index", idx, "task_id", string(record.ID), "err", err)
			continue
		}
		out.Tasks = append(out.Tasks, task)
	}
	if len(counts) > 0 {
		out.Counters = make(map[string]app.StatusCounter, len(counts))
		for _, count := range counts {
			out.Counters[string(count.StatusID)] = app.StatusCounter{Shown: count.Shown, Total: count.Total}
		}
	}
	return out, nil
}

// ListStatuses fetches the status metadata.
func (c *Client) ListStatuses(ctx context.Context) ([]app.StatusRecord, error) {
	body, _, err := c.do(ctx, http.MethodGet, c.cfg.StatusesPath, nil)
	if err != nil {
		return nil, err
	}
	var records []StatusRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("%w: decode statuses: %w", app.ErrMalformedResponse, err)
	}
	out := make([]app.StatusRecord, 0, len(records))
	for _, record := range records {
		out = append(out, app.StatusRecord{
			ID:       string(record.ID),
			Name:     record.Name,
			Position: record.Position,
			IsClosed: record.IsClosed,
		})
	}
	return out, nil
}

// UpdateTaskStatus sends one status change.
func (c *Client) UpdateTaskStatus(ctx context.Context, taskID, statusID string) (app.Receipt, error) {
	path := strings.ReplaceAll(c.cfg.TaskStatusPath, "{id}", url.PathEscape(taskID))
	payload, err := json.Marshal(StatusUpdateRequest{StatusID: FlexID(statusID)})
	if err != nil {
		return app.Receipt{}, fmt.Errorf("encode body: %w", err)
	}
	body, requestID, err := c.do(ctx, http.MethodPut, path, payload)
	receipt := app.Receipt{TaskID: taskID, RequestID: requestID}
	if err != nil {
		return receipt, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return receipt, fmt.Errorf("%w: empty status update response", app.ErrMalformedResponse)
	}
	var resp StatusUpdateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return receipt, fmt.Errorf("%w: decode status update: %w", app.ErrMalformedResponse, err)
	}
	if !resp.Success {
		return receipt, &app.RejectedError{Reason: resp.Error}
	}
	receipt.StatusID = statusID
	return receipt, nil
}

// do performs one request and classifies transport and HTTP failures.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return nil, "", fmt.Errorf("%w: create request: %w", app.ErrValidation, err)
	}
	requestID := c.requestID()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("remote request failed", "method", method, "path", path, "request_id", requestID, "err", err)
		return nil, requestID, fmt.Errorf("%w: %s %s: %w", app.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, requestID, fmt.Errorf("%w: read %s %s: %w", app.ErrNetwork, method, path, err)
	}
	c.logger.Debug("remote request", "method", method, "path", path, "status", resp.StatusCode, "request_id", requestID, "elapsed", time.Since(start))
	switch {
	case resp.StatusCode >= 500:
		c.logger.Warn("remote server error", "method", method, "path", path, "status", resp.StatusCode, "request_id", requestID)
		return nil, requestID, fmt.Errorf("%w: %s %s: %s", app.ErrNetwork, method, path, rejectionReason(resp.StatusCode, body))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, requestID, &app.RejectedError{Reason: rejectionReason(resp.StatusCode, body)}
	}
	return body, requestID, nil
}

// rejectionReason extracts a readable reason from an error response.
func rejectionReason(status int, body []byte) string {
	prefix := fmt.Sprintf("HTTP %d", status)
	var resp StatusUpdateResponse
	if err := json.Unmarshal(body, &resp); err == nil && strings.TrimSpace(resp.Error) != "" {
		return prefix + ": " + strings.TrimSpace(resp.Error)
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && strings.TrimSpace(envelope.Error.Message) != "" {
		return prefix + ": " + strings.TrimSpace(envelope.Error.Message)
	}
	return prefix + ": " + http.StatusText(status)
}

// errorEnvelope matches the sandbox server's structured error shape.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeTaskPayload accepts either a bare task array or the object form with counters.
func decodeTaskPayload(body []byte) ([]TaskRecord, []StatusCount, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil, fmt.Errorf("%w: empty task list body", app.ErrMalformedResponse)
	}
	switch trimmed[0] {
	case '[':
		var records []TaskRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, nil, fmt.Errorf("%w: decode tasks: %w", app.ErrMalformedResponse, err)
		}
		return records, nil, nil
	case '{':
		var payload TaskListResponse
		if err := json.Unmarshal(trimmed, &payload); err != nil {
			return nil, nil, fmt.Errorf("%w: decode tasks: %w", app.ErrMalformedResponse, err)
		}
		if payload.Tasks == nil {
			return nil, nil, fmt.Errorf("%w: task list object has no tasks field", app.ErrMalformedResponse)
		}
		return payload.Tasks, payload.StatusCounts, nil
	default:
		return nil, nil, fmt.Errorf("%w: unexpected task list body", app.ErrMalformedResponse)
	}
}
