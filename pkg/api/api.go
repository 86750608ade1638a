// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import (
	"encoding/json"
	"time"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeValidation      = "ValidationError"
	CodePolicyDenied    = "PolicyDenied"
	CodeBudgetExceeded  = "BudgetExceeded"
	CodeTimeout         = "TimeoutError"
	CodeNotFound        = "NotFound"
	CodeCapacity        = "CapacityExceeded"
	CodeLedgerViolation = "LedgerViolation"
	CodeInternal        = "InternalError"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// CreateTenantRequest is the request body for creating a new tenant.
// Tier defaults to free; quota fields default from the tier when zero.
type CreateTenantRequest struct {
	Name        string  `json:"name"`
	Tier        string  `json:"tier,omitempty"`
	Weight      int     `json:"weight,omitempty"`
	QueueLimit  int     `json:"queue_limit,omitempty"`
	BudgetLimit float64 `json:"budget_limit,omitempty"`
}

// CreateTenantResponse is the response body after creating a tenant.
// ApiKey is shown exactly once.
type CreateTenantResponse struct {
	ID     string `json:"tenant_id"`
	Name   string `json:"name"`
	Tier   string `json:"tier"`
	ApiKey string `json:"api_key"`
}

// NodeSpec is one node of a submitted workflow graph.
type NodeSpec struct {
	ID                 string          `json:"id"`
	Kind               string          `json:"kind"`
	Params             json.RawMessage `json:"params,omitempty"`
	Priority           int             `json:"priority"`
	Idempotent         bool            `json:"idempotent,omitempty"`
	TimeoutSeconds     int             `json:"timeout_seconds,omitempty"`
	MaxAttempts        int             `json:"max_attempts,omitempty"`
	BackoffMillis      []int           `json:"backoff_ms,omitempty"`
	CompensationID     string          `json:"compensation_id,omitempty"`
	ReviewOnExhaustion bool            `json:"review_on_exhaustion,omitempty"`
}

// EdgeSpec is a directed dependency between two nodes.
type EdgeSpec struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SubmitWorkflowRequest is the request body for submitting a workflow graph.
type SubmitWorkflowRequest struct {
	Nodes []NodeSpec `json:"nodes"`
	Edges []EdgeSpec `json:"edges,omitempty"`
}

// SubmitWorkflowResponse is the response body after submitting a workflow.
type SubmitWorkflowResponse struct {
	WorkflowID string `json:"workflow_id"`
	State      string `json:"state"`
}

// AttemptView is one execution attempt in status responses.
type AttemptView struct {
	Attempt   int        `json:"attempt"`
	Outcome   string     `json:"outcome,omitempty"`
	Priority  int        `json:"priority"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// NodeStatusView is the per-node slice of a workflow status response.
type NodeStatusView struct {
	NodeID   string        `json:"node_id"`
	State    string        `json:"state"`
	Attempts int           `json:"attempts"`
	History  []AttemptView `json:"history,omitempty"`
}

// WorkflowStatusResponse is the response body for workflow status queries.
type WorkflowStatusResponse struct {
	WorkflowID           string           `json:"workflow_id"`
	TenantID             string           `json:"tenant_id"`
	State                string           `json:"state"`
	Nodes                []NodeStatusView `json:"nodes"`
	CommitOrder          []string         `json:"commit_order,omitempty"`
	PartiallyCompensated bool             `json:"partially_compensated"`
	Uncompensated        []string         `json:"uncompensated,omitempty"`
	ReviewNode           string           `json:"review_node,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// ResumeWorkflowRequest carries the operator decision for a workflow waiting
// in human review. Decision is "retry" or "compensate"; empty means retry.
type ResumeWorkflowRequest struct {
	Decision string `json:"decision,omitempty"`
}

// VerifyLedgerRequest selects a chain range to verify. Zero ToSeq means the
// chain head.
type VerifyLedgerRequest struct {
	TenantID string `json:"tenant_id,omitempty"`
	FromSeq  uint64 `json:"from_seq,omitempty"`
	ToSeq    uint64 `json:"to_seq,omitempty"`
}

// VerifyLedgerResponse reports chain integrity for one tenant.
type VerifyLedgerResponse struct {
	TenantID    string `json:"tenant_id"`
	Valid       bool   `json:"valid"`
	Checked     int    `json:"checked"`
	CorruptedAt uint64 `json:"corrupted_at,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// StepView is one transition in replay, simulation and diff responses.
type StepView struct {
	Seq     uint64 `json:"seq,omitempty"`
	NodeID  string `json:"node_id,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
	From    string `json:"from"`
	To      string `json:"to"`
	Reason  string `json:"reason,omitempty"`
}

// ReplayResponse is the deterministic reconstruction of a workflow's history.
type ReplayResponse struct {
	WorkflowID           string            `json:"workflow_id"`
	Steps                []StepView        `json:"steps"`
	NodeStates           map[string]string `json:"node_states"`
	WorkflowState        string            `json:"workflow_state"`
	PartiallyCompensated bool              `json:"partially_compensated"`
	Uncompensated        []string          `json:"uncompensated,omitempty"`
}

// SimulateResponse is the expected trace of a graph with no failures.
type SimulateResponse struct {
	Steps []StepView `json:"steps"`
}

// DivergenceView is one position where two traces disagree.
type DivergenceView struct {
	Position int       `json:"position"`
	A        *StepView `json:"a,omitempty"`
	B        *StepView `json:"b,omitempty"`
}

// DiffResponse compares the replayed histories of two workflows.
type DiffResponse struct {
	Identical   bool             `json:"identical"`
	Divergences []DivergenceView `json:"divergences,omitempty"`
}

// LedgerEntryView is one chain entry in list responses.
type LedgerEntryView struct {
	Seq         uint64    `json:"seq"`
	Timestamp   time.Time `json:"timestamp"`
	WorkflowID  string    `json:"workflow_id"`
	NodeID      string    `json:"node_id,omitempty"`
	Attempt     int       `json:"attempt,omitempty"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Reason      string    `json:"reason,omitempty"`
	PayloadHash string    `json:"payload_hash"`
	PrevHash    string    `json:"prev_hash"`
	Signature   string    `json:"signature"`
}

// ListEntriesResponse is the response body for ledger entry listings.
type ListEntriesResponse struct {
	Entries []LedgerEntryView `json:"entries"`
}
