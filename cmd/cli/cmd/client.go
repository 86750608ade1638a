package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"flowplane/pkg/api"
)

// PlaneClient handles API calls to the flowplane controller.
type PlaneClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewPlaneClient creates a new client with the given base URL and token.
func NewPlaneClient(baseURL, token string) *PlaneClient {
	return &PlaneClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do sends one authenticated JSON request and decodes the response into out.
func (c *PlaneClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// SubmitWorkflow sends POST /workflows to start a new workflow.
func (c *PlaneClient) SubmitWorkflow(req api.SubmitWorkflowRequest) (*api.SubmitWorkflowResponse, error) {
	var result api.SubmitWorkflowResponse
	if err := c.do(http.MethodPost, "/workflows", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetWorkflow sends GET /workflows/{id} to retrieve the live snapshot.
func (c *PlaneClient) GetWorkflow(workflowID string) (*api.WorkflowStatusResponse, error) {
	var result api.WorkflowStatusResponse
	if err := c.do(http.MethodGet, "/workflows/"+workflowID, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelWorkflow sends POST /workflows/{id}/cancel.
func (c *PlaneClient) CancelWorkflow(workflowID string) error {
	return c.do(http.MethodPost, "/workflows/"+workflowID+"/cancel", nil, nil)
}

// ResumeWorkflow sends POST /workflows/{id}/resume with an operator decision.
func (c *PlaneClient) ResumeWorkflow(workflowID, decision string) error {
	return c.do(http.MethodPost, "/workflows/"+workflowID+"/resume",
		api.ResumeWorkflowRequest{Decision: decision}, nil)
}

// VerifyLedger sends POST /ledger/verify for the caller's chain.
func (c *PlaneClient) VerifyLedger(fromSeq, toSeq uint64) (*api.VerifyLedgerResponse, error) {
	var result api.VerifyLedgerResponse
	req := api.VerifyLedgerRequest{FromSeq: fromSeq, ToSeq: toSeq}
	if err := c.do(http.MethodPost, "/ledger/verify", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReplayWorkflow sends GET /ledger/replay/{id}.
func (c *PlaneClient) ReplayWorkflow(workflowID string) (*api.ReplayResponse, error) {
	var result api.ReplayResponse
	if err := c.do(http.MethodGet, "/ledger/replay/"+workflowID, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SimulateGraph sends POST /ledger/simulate.
func (c *PlaneClient) SimulateGraph(req api.SubmitWorkflowRequest) (*api.SimulateResponse, error) {
	var result api.SimulateResponse
	if err := c.do(http.MethodPost, "/ledger/simulate", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DiffWorkflows sends GET /ledger/diff/{a}/{b}.
func (c *PlaneClient) DiffWorkflows(aID, bID string) (*api.DiffResponse, error) {
	var result api.DiffResponse
	if err := c.do(http.MethodGet, "/ledger/diff/"+aID+"/"+bID, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListLedgerEntries sends GET /ledger/entries.
func (c *PlaneClient) ListLedgerEntries(fromSeq, toSeq uint64) (*api.ListEntriesResponse, error) {
	var result api.ListEntriesResponse
	path := fmt.Sprintf("/ledger/entries?from=%d&to=%d", fromSeq, toSeq)
	if err := c.do(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateTenant sends POST /tenants. Requires the internal operator key as the
// bearer token.
func (c *PlaneClient) CreateTenant(req api.CreateTenantRequest) (*api.CreateTenantResponse, error) {
	var result api.CreateTenantResponse
	if err := c.do(http.MethodPost, "/tenants", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
