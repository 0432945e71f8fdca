package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
)

func TestDependencyOp(t *testing.T) {
	m := NewUnregistered()

	m.DependencyOp("add", nil)
	m.DependencyOp("add", errors.NewCycleError([]string{"a", "b", "a"}))
	m.DependencyOp("add", errors.NewValidationError("dup"))
	m.DependencyOp("remove", errors.NewNotFoundError("dependency", "a->b"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.dependencyOps.WithLabelValues("add", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dependencyOps.WithLabelValues("add", "cycle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dependencyOps.WithLabelValues("add", "validation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dependencyOps.WithLabelValues("remove", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycleRejections))
}

func TestReadinessAndReassignment(t *testing.T) {
	m := NewUnregistered()

	m.ReadinessChanged(3, 1)
	m.ReadinessChanged(1, 0)
	m.Reassignment("bulk", "success")
	m.Reassignment("bulk", "failed")
	m.Reassignment("bulk", "success")
	m.Assignment("round_robin", nil)
	m.Split(nil)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.readinessPromotions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.readinessDemotions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.reassignments.WithLabelValues("bulk", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.assignments.WithLabelValues("round_robin", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.splits.WithLabelValues("ok")))
}

func TestHistogramsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test")

	m.CriticalPath(5 * time.Millisecond)
	m.GraphBuilt(42)

	count, err := testutil.GatherAndCount(reg, "test_critical_path_duration_seconds", "test_graph_nodes")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.DependencyOp("add", nil)
	m.ReadinessChanged(1, 1)
	m.Split(nil)
	m.Assignment("x", nil)
	m.Reassignment("x", "y")
	m.CriticalPath(time.Second)
	m.GraphBuilt(1)
}
