package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"flowplane/pkg/api"
)

func TestLedgerVerifyCommand_Valid(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ledger/verify" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(api.VerifyLedgerResponse{Valid: true, Checked: 128})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"ledger", "verify"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Ledger valid") || !strings.Contains(output, "128") {
		t.Errorf("expected valid result in output, got: %s", output)
	}
}

func TestLedgerVerifyCommand_Corrupted(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(api.VerifyLedgerResponse{
			Valid:       false,
			Checked:     17,
			CorruptedAt: 18,
			Reason:      "hash chain break",
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"ledger", "verify"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "CORRUPTED") || !strings.Contains(output, "seq 18") {
		t.Errorf("expected corruption report in output, got: %s", output)
	}
}

func TestLedgerReplayCommand(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/ledger/replay/wf-1") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(api.ReplayResponse{
			WorkflowID: "wf-1",
			Steps: []api.StepView{
				{From: "PENDING", To: "RUNNING"},
				{NodeID: "migrate", Attempt: 1, From: "PENDING", To: "SCHEDULED"},
				{NodeID: "migrate", Attempt: 1, From: "SCHEDULED", To: "EXECUTING"},
			},
			WorkflowState: "COMMITTED",
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"ledger", "replay", "wf-1"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "COMMITTED") || !strings.Contains(output, "migrate") {
		t.Errorf("expected replay trace in output, got: %s", output)
	}
}

func TestLedgerDiffCommand_Divergent(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/ledger/diff/wf-a/wf-b") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(api.DiffResponse{
			Identical: false,
			Divergences: []api.DivergenceView{{
				Position: 4,
				A:        &api.StepView{NodeID: "deploy", Attempt: 1, From: "EXECUTING", To: "VERIFYING"},
				B:        &api.StepView{NodeID: "deploy", Attempt: 1, From: "EXECUTING", To: "FAILED", Reason: "TimeoutError"},
			}},
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"ledger", "diff", "wf-a", "wf-b"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "diverge") || !strings.Contains(output, "position 4") {
		t.Errorf("expected divergence report in output, got: %s", output)
	}
	if !strings.Contains(output, "TimeoutError") {
		t.Errorf("expected divergent reason in output, got: %s", output)
	}
}

func TestTenantsCreateCommand(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tenants" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req api.CreateTenantRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Name != "acme" || req.Tier != "pro" {
			t.Errorf("unexpected request body: %+v", req)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(api.CreateTenantResponse{
			ID:     "11111111-0000-0000-0000-000000000000",
			Name:   "acme",
			Tier:   "pro",
			ApiKey: "fp_deadbeef",
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "internal-key")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"tenants", "create", "--name", "acme", "--tier", "pro"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "fp_deadbeef") {
		t.Errorf("expected API key in output, got: %s", output)
	}
	if !strings.Contains(output, "cannot be retrieved again") {
		t.Errorf("expected one-time key warning, got: %s", output)
	}
}
