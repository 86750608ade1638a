// Package kernel assembles the orchestration core: it owns the scheduler,
// the saga coordinator, the ledger and the gates, runs the dispatcher loop
// that feeds free execution slots, and recovers in-flight workflows at
// startup.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowplane/internal/dag"
	"flowplane/internal/executor"
	"flowplane/internal/gate"
	"flowplane/internal/ledger"
	"flowplane/internal/observability"
	"flowplane/internal/saga"
	"flowplane/internal/scheduler"
	"flowplane/internal/store"
)

// Stores is the persistence surface the kernel needs.
type Stores interface {
	store.TenantStore
	store.WorkflowStore
}

// Config tunes the kernel.
type Config struct {
	// DispatcherSlots caps concurrent node executions.
	DispatcherSlots int
	// DispatchInterval is the idle poll interval; backoff doubles up to
	// MaxBackoff while the queue stays empty.
	DispatchInterval time.Duration
	MaxBackoff       time.Duration

	ShedCeiling  int
	ShedAfter    time.Duration
	EscalationP1 time.Duration
	EscalationP2 time.Duration
	EscalationP3 time.Duration

	LedgerBlockSize int

	// ExecutorName labels task attempts with the configured runtime.
	ExecutorName string
}

// Kernel is the top-level facade the HTTP layer talks to.
type Kernel struct {
	cfg         Config
	log         *slog.Logger
	stores      Stores
	ledger      *ledger.Ledger
	ledgerStore ledger.Store
	sched       *scheduler.Scheduler
	coord       *saga.Coordinator
	budget      *gate.TrackedBudget
	metrics     *observability.PlaneMetrics

	mu     sync.Mutex
	graphs map[uuid.UUID]*dag.Graph

	done chan struct{}
}

// New wires the kernel together. exec runs node work; ledgerStore persists
// the chains.
func New(cfg Config, stores Stores, ledgerStore ledger.Store, signer *ledger.Signer, exec executor.Executor, metrics *observability.PlaneMetrics, log *slog.Logger) *Kernel {
	if cfg.DispatcherSlots <= 0 {
		cfg.DispatcherSlots = 4
	}
	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	k := &Kernel{
		cfg:         cfg,
		log:         log,
		stores:      stores,
		ledgerStore: ledgerStore,
		budget:      gate.NewTrackedBudget(),
		metrics:     metrics,
		graphs:      make(map[uuid.UUID]*dag.Graph),
		done:        make(chan struct{}),
	}

	ledgerOpts := []ledger.Option{}
	if cfg.LedgerBlockSize > 0 {
		ledgerOpts = append(ledgerOpts, ledger.WithBlockSize(uint64(cfg.LedgerBlockSize)))
	}
	k.ledger = ledger.New(ledgerStore, signer, ledgerOpts...)

	k.sched = scheduler.New(scheduler.Config{
		ShedCeiling: cfg.ShedCeiling,
		ShedAfter:   cfg.ShedAfter,
		EscalationSLA: map[dag.Priority]time.Duration{
			dag.P1: cfg.EscalationP1,
			dag.P2: cfg.EscalationP2,
			dag.P3: cfg.EscalationP3,
		},
		OnEvent: k.onSchedulerEvent,
	}, log)

	k.coord = saga.New(saga.Config{
		Queue:        k.sched,
		Ledger:       k.ledger,
		Policy:       gate.NewRulePolicy(gate.DefaultRules()),
		Budget:       k.budget,
		Exec:         exec,
		ExecutorName: cfg.ExecutorName,
		Persist:      &persister{k: k},
		Log:          log,
		OnAttempt:    k.onAttempt,
		OnCompensation: func(outcome string) {
			if k.metrics != nil {
				k.metrics.Compensations.WithLabelValues(outcome).Inc()
			}
		},
	})
	return k
}

// Ledger exposes the chain for read-path handlers (verify, replay, diff).
func (k *Kernel) Ledger() *ledger.Ledger { return k.ledger }

// QueueDepth reports the total queued nodes, for the depth gauge.
func (k *Kernel) QueueDepth() int { return k.sched.Depth() }

func (k *Kernel) onSchedulerEvent(ev scheduler.Event) {
	switch ev.Kind {
	case scheduler.EventEscalated:
		if k.metrics != nil {
			k.metrics.NodesEscalated.Inc()
		}
	case scheduler.EventLoadShed:
		if k.metrics != nil {
			k.metrics.NodesShed.Inc()
		}
		// Shed nodes fail with LoadShed and retry per their policy.
		go k.coord.NodeShed(ev.Item.WorkflowID, ev.Item.NodeID)
	}
}

func (k *Kernel) onAttempt(note saga.AttemptNote) {
	if k.metrics != nil {
		k.metrics.NodesDispatched.WithLabelValues(note.Record.Outcome).Inc()
		k.metrics.DispatchSeconds.Observe(note.Record.EndedAt.Sub(note.Record.StartedAt).Seconds())
	}
	att := &store.TaskAttempt{
		WorkflowID: note.WorkflowID,
		TenantID:   note.TenantID,
		NodeID:     note.NodeID,
		Attempt:    note.Record.Attempt,
		Outcome:    note.Record.Outcome,
		Priority:   int(note.Record.Priority),
		StartedAt:  note.Record.StartedAt,
	}
	if !note.Record.EndedAt.IsZero() {
		ended := note.Record.EndedAt
		att.EndedAt = &ended
	}
	if err := k.stores.RecordAttempt(context.Background(), nil, att); err != nil {
		k.log.Error("record attempt failed",
			"workflow_id", note.WorkflowID, "node_id", note.NodeID, "error", err)
	}
}

// Start loads tenants, recovers in-flight workflows and starts the dispatcher
// and budget-kill listener. It returns once recovery is complete; the loops
// stop when ctx is cancelled.
func (k *Kernel) Start(ctx context.Context) error {
	tenants, err := k.stores.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("kernel: load tenants: %w", err)
	}
	for i := range tenants {
		k.registerTenant(&tenants[i])
	}
	k.log.Info("tenants registered", "count", len(tenants))

	if err := k.recover(ctx, tenants); err != nil {
		return err
	}

	go k.runDispatcher(ctx)
	go k.runKillListener(ctx)
	return nil
}

// Done is closed once the dispatcher has drained after ctx cancellation.
func (k *Kernel) Done() <-chan struct{} { return k.done }

func (k *Kernel) registerTenant(t *store.Tenant) {
	k.sched.RegisterTenant(t.ID, t.Weight, t.QueueLimit)
	if t.BudgetLimit > 0 {
		k.budget.SetLimit(t.ID, t.BudgetLimit)
	}
}

// recover reloads workflows that were in flight when the last process
// stopped. The ledger already holds their history; only scheduler state is
// rebuilt.
func (k *Kernel) recover(ctx context.Context, tenants []store.Tenant) error {
	active := []string{ledger.StateRunning, ledger.StateHumanReview}
	recovered := 0
	for i := range tenants {
		records, err := k.stores.ListWorkflowsByState(ctx, tenants[i].ID, active, 0)
		if err != nil {
			return fmt.Errorf("kernel: list workflows for %s: %w", tenants[i].ID, err)
		}
		for j := range records {
			if err := k.restoreRecord(ctx, &records[j]); err != nil {
				k.log.Error("workflow recovery failed",
					"workflow_id", records[j].ID, "error", err)
				continue
			}
			recovered++
		}
	}
	if recovered > 0 {
		k.log.Info("workflows recovered", "count", recovered)
	}
	return nil
}

func (k *Kernel) restoreRecord(ctx context.Context, rec *store.WorkflowRecord) error {
	g, err := decodeGraph(rec.Graph)
	if err != nil {
		return err
	}
	snap, err := decodeSnapshot(rec.Snapshot)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.graphs[rec.ID] = g
	k.mu.Unlock()
	return k.coord.Restore(ctx, g, snap)
}

// runDispatcher hands queued nodes to free execution slots. The poll backs
// off exponentially while the queue is empty and snaps back on work; a slot
// freeing up triggers an immediate re-poll.
func (k *Kernel) runDispatcher(ctx context.Context) {
	sem := make(chan struct{}, k.cfg.DispatcherSlots)
	var wg sync.WaitGroup

	pollNow := make(chan struct{}, 1)
	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
		}
	}
	triggerPoll()

	backoff := k.cfg.DispatchInterval
	for {
		select {
		case <-ctx.Done():
			k.log.Info("dispatcher stopping, draining in-flight nodes")
			wg.Wait()
			close(k.done)
			return

		case <-time.After(backoff):
			triggerPoll()

		case <-pollNow:
			dispatched := 0
			for {
				available := k.cfg.DispatcherSlots - len(sem)
				if available <= 0 {
					break
				}
				item, ok := k.sched.DequeueNext(available)
				if !ok {
					break
				}
				dispatched++

				sem <- struct{}{}
				wg.Add(1)
				go func(item scheduler.Item) {
					defer wg.Done()
					defer func() {
						<-sem
						triggerPoll()
					}()
					if err := k.coord.Dispatch(ctx, item.WorkflowID, item.NodeID); err != nil {
						k.log.Error("dispatch failed",
							"workflow_id", item.WorkflowID, "node_id", item.NodeID, "error", err)
					}
				}(item)
			}

			if dispatched == 0 {
				backoff *= 2
				if backoff > k.cfg.MaxBackoff {
					backoff = k.cfg.MaxBackoff
				}
			} else {
				backoff = k.cfg.DispatchInterval
			}
		}
	}
}

// runKillListener force-fails a tenant's executing nodes when its budget runs
// out mid-flight.
func (k *Kernel) runKillListener(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tenantID := <-k.budget.Kills():
			k.log.Warn("budget exhausted, killing tenant executions", "tenant_id", tenantID)
			k.coord.KillTenant(tenantID)
		}
	}
}
