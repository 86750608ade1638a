package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// executeRequest is the wire shape sent to a remote runtime service.
type executeRequest struct {
	WorkflowID uuid.UUID       `json:"workflow_id"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	NodeID     string          `json:"node_id"`
	Kind       string          `json:"kind"`
	Attempt    int             `json:"attempt"`
	Params     json.RawMessage `json:"params,omitempty"`
	Degrade    bool            `json:"degrade,omitempty"`
	DeadlineAt time.Time       `json:"deadline_at"`
}

type executeResponse struct {
	Output json.RawMessage `json:"output"`
	Cost   float64         `json:"cost"`
	Error  string          `json:"error,omitempty"`
}

// HTTPAdapter calls a remote task runtime over the typed request/response
// contract, keeping the core decoupled from the runtime's deployment
// topology.
type HTTPAdapter struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAdapter creates an executor against a remote runtime endpoint.
func NewHTTPAdapter(baseURL string) *HTTPAdapter {
	if len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return &HTTPAdapter{
		baseURL: baseURL,
		client:  &http.Client{}, // per-request deadline comes from ctx
	}
}

// Execute posts the task to the runtime and interprets the response.
// Cancellation propagates through the request context.
func (h *HTTPAdapter) Execute(ctx context.Context, task Task) (Result, error) {
	body, err := json.Marshal(executeRequest{
		WorkflowID: task.WorkflowID,
		TenantID:   task.TenantID,
		NodeID:     task.NodeID,
		Kind:       string(task.Kind),
		Attempt:    task.Attempt,
		Params:     task.Params,
		Degrade:    task.Degrade,
		DeadlineAt: task.Deadline,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal execute request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, &Error{Reason: fmt.Sprintf("runtime unreachable: %v", err), Transient: true}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Result{}, &Error{Reason: fmt.Sprintf("read runtime response: %v", err), Transient: true}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var out executeResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return Result{}, &Error{Reason: fmt.Sprintf("malformed runtime response: %v", err), Transient: true}
		}
		return Result{Output: out.Output, Cost: out.Cost}, nil
	case resp.StatusCode >= 500:
		return Result{}, &Error{Reason: fmt.Sprintf("runtime error: status %d", resp.StatusCode), Transient: true}
	default:
		var out executeResponse
		reason := fmt.Sprintf("runtime rejected task: status %d", resp.StatusCode)
		if err := json.Unmarshal(raw, &out); err == nil && out.Error != "" {
			reason = out.Error
		}
		return Result{}, &Error{Reason: reason, Transient: false}
	}
}
