package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewPlaneMetrics_RegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	depth := 7.0
	m := NewPlaneMetrics(reg, func() float64 { return depth })

	m.WorkflowsSubmitted.Inc()
	m.NodesDispatched.WithLabelValues("success").Add(3)
	m.Compensations.WithLabelValues("failure").Inc()

	if got := testutil.ToFloat64(m.WorkflowsSubmitted); got != 1 {
		t.Errorf("workflows submitted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.NodesDispatched.WithLabelValues("success")); got != 3 {
		t.Errorf("nodes dispatched = %v, want 3", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	var sawDepth bool
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "flowplane_queue_depth") {
			sawDepth = true
			if v := mf.GetMetric()[0].GetGauge().GetValue(); v != 7 {
				t.Errorf("queue depth = %v, want 7", v)
			}
		}
	}
	if !sawDepth {
		t.Error("queue depth gauge not registered")
	}
}
