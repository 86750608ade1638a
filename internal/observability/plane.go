package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PlaneMetrics holds the Prometheus instruments for the orchestration core.
type PlaneMetrics struct {
	WorkflowsSubmitted prometheus.Counter
	WorkflowsFinished  *prometheus.CounterVec // label: state
	NodesDispatched    *prometheus.CounterVec // label: outcome
	NodesShed          prometheus.Counter
	NodesEscalated     prometheus.Counter
	Compensations      *prometheus.CounterVec // label: outcome
	QueueDepth         prometheus.GaugeFunc
	DispatchSeconds    prometheus.Histogram
}

// NewPlaneMetrics registers the core instruments on the given registerer.
// queueDepth is sampled on scrape.
func NewPlaneMetrics(reg prometheus.Registerer, queueDepth func() float64) *PlaneMetrics {
	factory := promauto.With(reg)
	return &PlaneMetrics{
		WorkflowsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowplane_workflows_submitted_total",
			Help: "Workflows accepted for execution.",
		}),
		WorkflowsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowplane_workflows_finished_total",
			Help: "Workflows reaching a terminal state.",
		}, []string{"state"}),
		NodesDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowplane_nodes_dispatched_total",
			Help: "Node execution attempts by outcome.",
		}, []string{"outcome"}),
		NodesShed: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowplane_nodes_shed_total",
			Help: "Queued nodes dropped under sustained overload.",
		}),
		NodesEscalated: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowplane_nodes_escalated_total",
			Help: "Nodes bumped one priority class after waiting past the class SLA.",
		}),
		Compensations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowplane_compensations_total",
			Help: "Compensation handler runs by outcome.",
		}, []string{"outcome"}),
		QueueDepth: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "flowplane_queue_depth",
			Help: "Total nodes queued across all tenants.",
		}, queueDepth),
		DispatchSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowplane_dispatch_seconds",
			Help:    "Wall time of node execution attempts.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
