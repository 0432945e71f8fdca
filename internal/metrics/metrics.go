// Package metrics exposes Prometheus instrumentation for the scheduling
// engine. Collectors are registered on a caller-supplied registry so tests
// and multiple engines in one process do not collide on the default one.
//
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "mesched"

// Metrics holds the engine's collectors.
type Metrics struct {
	dependencyOps       *prometheus.CounterVec
	cycleRejections     prometheus.Counter
	readinessPromotions prometheus.Counter
	readinessDemotions  prometheus.Counter
	splits              *prometheus.CounterVec
	assignments         *prometheus.CounterVec
	reassignments       *prometheus.CounterVec
	criticalPathSeconds prometheus.Histogram
	graphNodes          prometheus.Histogram
}

// New registers the collectors on reg under namespace.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	f := promauto.With(reg)

	return &Metrics{
		dependencyOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dependency_operations_total",
			Help:      "Dependency graph mutations by operation and result",
		}, []string{"operation", "result"}),

		cycleRejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dependency_cycle_rejections_total",
			Help:      "Dependency insertions rejected because they would close a cycle",
		}),

		readinessPromotions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readiness_promotions_total",
			Help:      "Tasks promoted from PENDING to READY",
		}),

		readinessDemotions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readiness_demotions_total",
			Help:      "Tasks demoted from READY to PENDING",
		}),

		splits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_splits_total",
			Help:      "Task split requests by result",
		}, []string{"result"}),

		assignments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Assignment engine selections by method and result",
		}, []string{"method", "result"}),

		reassignments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reassignments_total",
			Help:      "Per-task reassignment outcomes by batch operation",
		}, []string{"operation", "outcome"}),

		criticalPathSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "critical_path_duration_seconds",
			Help:      "Critical path computation time in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
		}),

		graphNodes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_nodes",
			Help:      "Number of nodes in dependency graphs built per operation",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		}),
	}
}

// NewUnregistered builds collectors on a private registry. Useful for tests
// and for commands that never expose metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry(), DefaultNamespace)
}

// DependencyOp records a graph mutation outcome. Cycle errors also bump the
// cycle rejection counter.
func (m *Metrics) DependencyOp(operation string, err error) {
	if m == nil {
		return
	}
	kind := errors.Kind(err)
	m.dependencyOps.WithLabelValues(operation, kind).Inc()
	if kind == "cycle" {
		m.cycleRejections.Inc()
	}
}

// ReadinessChanged records promotions and demotions from one evaluation.
func (m *Metrics) ReadinessChanged(promoted, demoted int) {
	if m == nil {
		return
	}
	m.readinessPromotions.Add(float64(promoted))
	m.readinessDemotions.Add(float64(demoted))
}

// Split records a split request outcome.
func (m *Metrics) Split(err error) {
	if m == nil {
		return
	}
	m.splits.WithLabelValues(errors.Kind(err)).Inc()
}

// Assignment records an assignment engine selection.
func (m *Metrics) Assignment(method string, err error) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(method, errors.Kind(err)).Inc()
}

// Reassignment records one per-task outcome: "success", "failed" or "skipped".
func (m *Metrics) Reassignment(operation, outcome string) {
	if m == nil {
		return
	}
	m.reassignments.WithLabelValues(operation, outcome).Inc()
}

// CriticalPath records computation time.
func (m *Metrics) CriticalPath(d time.Duration) {
	if m == nil {
		return
	}
	m.criticalPathSeconds.Observe(d.Seconds())
}

// GraphBuilt records the size of a graph built for an operation.
func (m *Metrics) GraphBuilt(nodes int) {
	if m == nil {
		return
	}
	m.graphNodes.Observe(float64(nodes))
}
