// Package main is the entry point for the flowplane controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"flowplane/internal/config"
	"flowplane/internal/controller"
	"flowplane/internal/executor"
	"flowplane/internal/kernel"
	"flowplane/internal/ledger"
	"flowplane/internal/logger"
	"flowplane/internal/observability"
	"flowplane/internal/store/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: environment only)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to Postgres (runs pending migrations)
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.Close()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "flowplane-controller", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, registerer, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	// Ledger signing key. An ephemeral key still chains and verifies within
	// this process lifetime, but external verification breaks across restarts.
	var signer *ledger.Signer
	if cfg.SignerSeed != "" {
		signer, err = ledger.SignerFromSeed(cfg.SignerSeed)
	} else {
		slogger.Warn("LEDGER_SIGNER_SEED not set, using ephemeral signing key")
		signer, err = ledger.NewSigner()
	}
	if err != nil {
		log.Fatalf("Failed to init ledger signer: %v", err)
	}

	exec, err := buildExecutor(cfg)
	if err != nil {
		log.Fatalf("Failed to init %s runtime: %v", cfg.Runtime, err)
	}

	// The depth gauge samples the kernel on scrape; the kernel in turn needs
	// the instruments, so the gauge closes over the variable assigned below.
	var core *kernel.Kernel
	metrics := observability.NewPlaneMetrics(registerer, func() float64 {
		if core == nil {
			return 0
		}
		return float64(core.QueueDepth())
	})

	core = kernel.New(kernel.Config{
		DispatcherSlots:  cfg.DispatcherSlots,
		DispatchInterval: cfg.DispatchInterval,
		ShedCeiling:      cfg.ShedCeiling,
		ShedAfter:        cfg.ShedAfter,
		EscalationP1:     cfg.EscalationP1,
		EscalationP2:     cfg.EscalationP2,
		EscalationP3:     cfg.EscalationP3,
		LedgerBlockSize:  cfg.LedgerBlockSize,
		ExecutorName:     cfg.Runtime,
	}, db, db, signer, exec, metrics, slogger)

	if err := core.Start(ctx); err != nil {
		log.Fatalf("Failed to start kernel: %v", err)
	}

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, controller.Deps{
		Core:        core,
		DB:          db,
		Tenants:     db,
		InternalKey: cfg.InternalAPIKey,
		Metrics:     metricsHandler,
	})

	go func() {
		slogger.Info("flowplane controller starting", "addr", addr, "runtime", cfg.Runtime)
		if err := srv.Run(ctx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	<-ctx.Done()

	slogger.Info("shutting down controller")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Wait for in-flight node executions to drain.
	select {
	case <-core.Done():
	case <-shutdownCtx.Done():
		slogger.Warn("dispatcher drain timed out")
	}
	slogger.Info("server exited properly")
}

func buildExecutor(cfg *config.Config) (executor.Executor, error) {
	switch cfg.Runtime {
	case "exec":
		return executor.NewExecAdapter(cfg.RuntimeWorkDir), nil
	case "http":
		return executor.NewHTTPAdapter(cfg.RuntimeURL), nil
	default:
		return executor.NewDockerAdapter()
	}
}
