package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"flowplane/internal/auth"
	"flowplane/internal/store"
	"flowplane/pkg/api"
)

// CreateTenant handles POST /tenants (internal key only).
// It generates a new API key, hashes it for storage, and returns the raw key
// ONCE. Quota fields left at zero default from the tier.
func (h *Handlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid JSON", api.CodeValidation, http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		h.httpError(w, "Name is required", api.CodeValidation, http.StatusBadRequest)
		return
	}

	tier := store.Tier(req.Tier)
	if req.Tier == "" {
		tier = store.TierFree
	}
	if !tier.Valid() {
		h.httpError(w, "Unknown tier", api.CodeValidation, http.StatusBadRequest)
		return
	}

	apiKey, err := auth.GenerateKey()
	if err != nil {
		h.httpError(w, "Entropy failure", api.CodeInternal, http.StatusInternalServerError)
		return
	}
	hashedKey := auth.HashKey(apiKey)

	weight, queueLimit, budgetLimit, rateLimit, rateBurst := tier.Defaults()
	tenant := &store.Tenant{
		ID:          uuid.New(),
		Name:        req.Name,
		Tier:        tier,
		Weight:      weight,
		QueueLimit:  queueLimit,
		BudgetLimit: budgetLimit,
		RateLimit:   rateLimit,
		RateBurst:   rateBurst,
		CreatedAt:   time.Now().UTC(),
	}
	if req.Weight > 0 {
		tenant.Weight = req.Weight
	}
	if req.QueueLimit > 0 {
		tenant.QueueLimit = req.QueueLimit
	}
	if req.BudgetLimit > 0 {
		tenant.BudgetLimit = req.BudgetLimit
	}

	if err := h.core.CreateTenant(ctx, tenant, hashedKey); err != nil {
		h.httpError(w, "Failed to create tenant", api.CodeInternal, http.StatusInternalServerError)
		return
	}

	// The raw key is returned only here.
	h.respondJson(w, http.StatusCreated, api.CreateTenantResponse{
		ID:     tenant.ID.String(),
		Name:   tenant.Name,
		Tier:   string(tenant.Tier),
		ApiKey: apiKey,
	})
}
