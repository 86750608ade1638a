// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"net/http"
	"time"

	"flowplane/internal/controller/handlers"
	"flowplane/internal/controller/middleware"
)

// Deps are the collaborators the HTTP server routes into.
type Deps struct {
	Core    handlers.Core
	DB      handlers.Pinger
	Tenants middleware.TenantLookup

	// InternalKey guards tenant creation and the all-tenant ledger audit.
	InternalKey string

	// Metrics, when set, is served on GET /metrics.
	Metrics http.Handler
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(addr string, deps Deps) *Server {
	h := handlers.New(deps.Core, deps.DB)
	authMW := middleware.AuthMiddleware(deps.Tenants)
	rateMW := middleware.RateLimitMiddleware()
	internalMW := middleware.RequireInternalAuth(deps.InternalKey)

	tenantAPI := func(hf http.HandlerFunc) http.Handler {
		return authMW(rateMW(hf))
	}

	mux := http.NewServeMux()

	// Public authenticated apis
	mux.Handle("POST /workflows", tenantAPI(h.CreateWorkflow))
	mux.Handle("GET /workflows/{id}", tenantAPI(h.GetWorkflow))
	mux.Handle("POST /workflows/{id}/cancel", tenantAPI(h.CancelWorkflow))
	mux.Handle("POST /workflows/{id}/resume", tenantAPI(h.ResumeWorkflow))

	// Intent-parser surface. An accepted intent graph starts running
	// immediately, so submission and run are the same operation.
	mux.Handle("POST /intents", tenantAPI(h.CreateWorkflow))
	mux.Handle("GET /tasks/{id}", tenantAPI(h.GetWorkflow))
	mux.Handle("POST /tasks/{id}/cancel", tenantAPI(h.CancelWorkflow))

	mux.Handle("POST /ledger/verify", tenantAPI(h.VerifyLedger))
	mux.Handle("GET /ledger/replay/{id}", tenantAPI(h.ReplayWorkflow))
	mux.Handle("POST /ledger/simulate", tenantAPI(h.SimulateGraph))
	mux.Handle("GET /ledger/diff/{a}/{b}", tenantAPI(h.DiffWorkflows))
	mux.Handle("GET /ledger/entries", tenantAPI(h.ListLedgerEntries))

	// Internal endpoints
	// These should run on a separate port or behind strict network rules.
	mux.Handle("POST /tenants", internalMW(http.HandlerFunc(h.CreateTenant)))
	mux.Handle("GET /internal/ledger/audit", internalMW(http.HandlerFunc(h.InternalAuditLedger)))

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      middleware.RequestID(mux),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
