// Package textproc is a thin client for the server's text-processing task
// API. Tasks are submitted asynchronously and polled until they reach a
// terminal state.
package textproc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// SummaryTaskType is the capability required for summarization.
const SummaryTaskType = `OCP\TextProcessing\SummaryTaskType`

// Task status values. Anything else is treated as still in flight.
const (
	StatusSuccessful = "SUCCESSFUL"
	StatusFailed     = "FAILED"
)

var (
	// ErrUnavailable indicates the backend or the required task type
	// cannot be reached or is not offered.
	ErrUnavailable = errors.New("text processing backend unavailable")

	// ErrTaskFailed indicates the task reached FAILED, timed out, or
	// returned a malformed descriptor.
	ErrTaskFailed = errors.New("text processing task failed")
)

// Client talks to the text-processing endpoints.
type Client struct {
	baseURL string
	appID   string
	http    *http.Client
	logger  *slog.Logger

	// pollInterval and pollTimeout govern Await. Overridable in tests.
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// Task is the backend's handle for an in-flight or completed request.
type Task struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Output struct {
		Output string `json:"output"`
	} `json:"output"`
}

// TaskType describes one offered text-processing capability.
type TaskType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// New creates a Client for the given server base URL.
func New(baseURL, appID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      baseURL,
		appID:        appID,
		http:         &http.Client{Timeout: 60 * time.Second},
		logger:       logger.With("component", "textproc"),
		pollInterval: 5 * time.Second,
		pollTimeout:  30 * time.Minute,
	}
}

// TaskTypes returns the capabilities offered by the server.
func (c *Client) TaskTypes(ctx context.Context) ([]TaskType, error) {
	var resp struct {
		Types []TaskType `json:"types"`
	}
	if err := c.do(ctx, http.MethodGet, "/ocs/v2.php/textprocessing/tasktypes", nil, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp.Types, nil
}

// HasSummaryTaskType reports whether the server offers the summary task type.
func (c *Client) HasSummaryTaskType(ctx context.Context) (bool, error) {
	types, err := c.TaskTypes(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range types {
		if t.ID == SummaryTaskType {
			return true, nil
		}
	}
	return false, nil
}

// Schedule submits a prompt as a summary task and returns its descriptor.
func (c *Client) Schedule(ctx context.Context, prompt string) (*Task, error) {
	body := map[string]any{
		"type":  SummaryTaskType,
		"appId": c.appID,
		"input": map[string]string{"input": prompt},
	}
	var resp struct {
		Task *Task `json:"task"`
	}
	if err := c.do(ctx, http.MethodPost, "/ocs/v2.php/textprocessing/schedule", body, &resp); err != nil {
		return nil, fmt.Errorf("%w: schedule: %v", ErrUnavailable, err)
	}
	if resp.Task == nil {
		return nil, fmt.Errorf("%w: schedule returned no task descriptor", ErrTaskFailed)
	}
	c.logger.Debug("task scheduled", "id", resp.Task.ID, "status", resp.Task.Status)
	return resp.Task, nil
}

// Task fetches the current descriptor for a task.
func (c *Client) Task(ctx context.Context, id int64) (*Task, error) {
	var resp struct {
		Task *Task `json:"task"`
	}
	path := fmt.Sprintf("/ocs/v2.php/textprocessing/task/%d", id)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("%w: poll: %v", ErrUnavailable, err)
	}
	if resp.Task == nil {
		return nil, fmt.Errorf("%w: malformed task descriptor", ErrTaskFailed)
	}
	return resp.Task, nil
}

// Await polls the task until it completes, fails, or the polling ceiling is
// reached. Returns the generated text on success. There is no external
// cancellation beyond ctx: once submitted, a task runs to its terminal
// state on the server regardless.
func (c *Client) Await(ctx context.Context, id int64) (string, error) {
	deadline := time.Now().Add(c.pollTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		task, err := c.Task(ctx, id)
		if err != nil {
			return "", err
		}
		switch task.Status {
		case StatusSuccessful:
			return task.Output.Output, nil
		case StatusFailed:
			return "", fmt.Errorf("%w: task %d reported FAILED", ErrTaskFailed, id)
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: task %d timed out after %s", ErrTaskFailed, id, c.pollTimeout)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrTaskFailed, ctx.Err())
		case <-ticker.C:
		}
	}
}

// do performs one JSON request against the backend.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OCS-APIRequest", "true")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, data)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
