// Package config loads settings from an optional YAML file and environment
// variables. Environment variables override file values.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// HTTP server port for the controller
	HTTPPort int

	// URL of the controller (used by the CLI and health probes)
	ControllerURL string

	// DispatcherSlots caps how many node executions run concurrently.
	DispatcherSlots int

	// DispatchInterval is the idle poll interval of the dispatcher loop.
	DispatchInterval time.Duration

	// Runtime selects the node executor: exec, docker or http.
	Runtime string

	// RuntimeWorkDir is the working directory for the exec runtime.
	RuntimeWorkDir string

	// RuntimeURL is the endpoint of the remote runtime for Runtime == "http".
	RuntimeURL string

	// SignerSeed is a 64-char hex Ed25519 seed. Empty generates an ephemeral
	// key, which breaks signature verification across restarts.
	SignerSeed string

	// LedgerBlockSize is the number of entries sealed per block.
	LedgerBlockSize int

	// ShedCeiling is the total queue depth that counts as overload.
	ShedCeiling int

	// ShedAfter is how long overload must be sustained before shedding.
	ShedAfter time.Duration

	// EscalationSLA maps wait time to a one-class priority bump, per class.
	EscalationP1 time.Duration
	EscalationP2 time.Duration
	EscalationP3 time.Duration

	// InternalAPIKey protects internal-only endpoints (tenant management).
	InternalAPIKey string

	// OTELEndpoint is the OTLP gRPC collector address.
	OTELEndpoint string
}

// Load reads configuration from the given file path (optional) and the
// environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http_port", 6161)
	v.SetDefault("controller_url", "http://localhost:6161")
	v.SetDefault("dispatcher_slots", 4)
	v.SetDefault("dispatch_interval", "100ms")
	v.SetDefault("runtime", "docker")
	v.SetDefault("ledger_block_size", 64)
	v.SetDefault("shed_ceiling", 10000)
	v.SetDefault("shed_after", "10s")
	v.SetDefault("escalation_p1", "30s")
	v.SetDefault("escalation_p2", "2m")
	v.SetDefault("escalation_p3", "10m")
	v.SetDefault("otel_endpoint", "localhost:4317")

	bindings := map[string]string{
		"database_url":      "DATABASE_URL",
		"http_port":         "PORT",
		"controller_url":    "CONTROLLER_URL",
		"dispatcher_slots":  "DISPATCHER_SLOTS",
		"dispatch_interval": "DISPATCH_INTERVAL",
		"runtime":           "RUNTIME",
		"runtime_workdir":   "RUNTIME_WORKDIR",
		"runtime_url":       "RUNTIME_URL",
		"signer_seed":       "LEDGER_SIGNER_SEED",
		"ledger_block_size": "LEDGER_BLOCK_SIZE",
		"shed_ceiling":      "SHED_CEILING",
		"shed_after":        "SHED_AFTER",
		"escalation_p1":     "ESCALATION_P1",
		"escalation_p2":     "ESCALATION_P2",
		"escalation_p3":     "ESCALATION_P3",
		"internal_api_key":  "INTERNAL_API_KEY",
		"otel_endpoint":     "OTEL_EXPORTER_OTLP_ENDPOINT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		DatabaseURL:      v.GetString("database_url"),
		HTTPPort:         v.GetInt("http_port"),
		ControllerURL:    v.GetString("controller_url"),
		DispatcherSlots:  v.GetInt("dispatcher_slots"),
		DispatchInterval: v.GetDuration("dispatch_interval"),
		Runtime:          v.GetString("runtime"),
		RuntimeWorkDir:   v.GetString("runtime_workdir"),
		RuntimeURL:       v.GetString("runtime_url"),
		SignerSeed:       v.GetString("signer_seed"),
		LedgerBlockSize:  v.GetInt("ledger_block_size"),
		ShedCeiling:      v.GetInt("shed_ceiling"),
		ShedAfter:        v.GetDuration("shed_after"),
		EscalationP1:     v.GetDuration("escalation_p1"),
		EscalationP2:     v.GetDuration("escalation_p2"),
		EscalationP3:     v.GetDuration("escalation_p3"),
		InternalAPIKey:   v.GetString("internal_api_key"),
		OTELEndpoint:     v.GetString("otel_endpoint"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required (env: DATABASE_URL)")
	}
	switch cfg.Runtime {
	case "exec", "docker", "http":
	default:
		return nil, fmt.Errorf("invalid runtime %q: must be exec, docker or http", cfg.Runtime)
	}
	if cfg.Runtime == "http" && cfg.RuntimeURL == "" {
		return nil, fmt.Errorf("runtime_url is required for the http runtime (env: RUNTIME_URL)")
	}
	if cfg.DispatcherSlots <= 0 {
		return nil, fmt.Errorf("dispatcher_slots must be positive, got %d", cfg.DispatcherSlots)
	}

	return cfg, nil
}
