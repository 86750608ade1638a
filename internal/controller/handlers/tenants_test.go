package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"flowplane/internal/store"
	"flowplane/pkg/api"
)

func TestCreateTenant(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		mockSetup  func(m *mockCore)
		wantStatus int
		wantTier   store.Tier
	}{
		{
			name:       "defaults to free tier",
			body:       `{"name": "acme"}`,
			wantStatus: http.StatusCreated,
			wantTier:   store.TierFree,
		},
		{
			name:       "explicit tier",
			body:       `{"name": "acme", "tier": "enterprise"}`,
			wantStatus: http.StatusCreated,
			wantTier:   store.TierEnterprise,
		},
		{
			name:       "unknown tier",
			body:       `{"name": "acme", "tier": "platinum"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing name",
			body:       `{"tier": "pro"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid json",
			body:       `{oops`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "store failure",
			body:       `{"name": "acme"}`,
			mockSetup:  func(m *mockCore) { m.createTenantErr = errors.New("db down") },
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core := &mockCore{}
			if tt.mockSetup != nil {
				tt.mockSetup(core)
			}
			h := New(core, &mockPinger{})

			req := httptest.NewRequest(http.MethodPost, "/tenants", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()

			h.CreateTenant(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusCreated {
				return
			}

			var resp api.CreateTenantResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if !strings.HasPrefix(resp.ApiKey, "fp_") {
				t.Errorf("got api key %q, want fp_ prefix", resp.ApiKey)
			}
			if core.createdTenant.Tier != tt.wantTier {
				t.Errorf("got tier %q, want %q", core.createdTenant.Tier, tt.wantTier)
			}

			// Quotas come from the tier when not overridden.
			weight, queueLimit, _, _, _ := tt.wantTier.Defaults()
			if core.createdTenant.Weight != weight || core.createdTenant.QueueLimit != queueLimit {
				t.Errorf("tier defaults not applied: %+v", core.createdTenant)
			}
		})
	}
}

func TestCreateTenant_QuotaOverrides(t *testing.T) {
	core := &mockCore{}
	h := New(core, &mockPinger{})

	body := `{"name": "acme", "tier": "pro", "weight": 7, "queue_limit": 999, "budget_limit": 1234.5}`
	req := httptest.NewRequest(http.MethodPost, "/tenants", strings.NewReader(body))
	rr := httptest.NewRecorder()

	h.CreateTenant(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("got status %d, want %d", rr.Code, http.StatusCreated)
	}
	got := core.createdTenant
	if got.Weight != 7 || got.QueueLimit != 999 || got.BudgetLimit != 1234.5 {
		t.Errorf("overrides not applied: %+v", got)
	}
}
