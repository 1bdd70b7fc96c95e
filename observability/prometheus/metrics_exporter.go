package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-rapid-task/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every collector when no namespace is given.
const DefaultNamespace = "rapidtask"

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	workDurationSeconds *prom.HistogramVec
	panicTotal          *prom.CounterVec
	rejectedTotal       *prom.CounterVec
	queueDepth          *prom.GaugeVec
	taskOutcomeTotal    *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "work_duration_seconds",
		Help:      "Executor work duration in seconds.",
		Buckets:   buckets,
	}, []string{"component", "priority"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "panic_total",
		Help:      "Total number of recovered panics in executors and the affinity queue.",
	}, []string{"component"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "rejected_total",
		Help:      "Total number of rejected submissions and posts.",
	}, []string{"component", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current queue depth.",
	}, []string{"component"})
	outcomeVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_outcome_total",
		Help:      "Terminal callbacks delivered, by task name and outcome.",
	}, []string{"task", "outcome"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if outcomeVec, err = registerCollector(reg, outcomeVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		workDurationSeconds: durationVec,
		panicTotal:          panicVec,
		rejectedTotal:       rejectedVec,
		queueDepth:          queueDepthVec,
		taskOutcomeTotal:    outcomeVec,
	}, nil
}

// RecordTaskDuration records executor work duration.
func (m *MetricsExporter) RecordTaskDuration(component string, priority core.TaskPriority, duration time.Duration) {
	if m == nil {
		return
	}
	m.workDurationSeconds.WithLabelValues(normalizeLabel(component, "unknown"), priorityLabel(priority)).Observe(duration.Seconds())
}

// RecordTaskPanic records recovered panics.
func (m *MetricsExporter) RecordTaskPanic(component string, panicInfo any) {
	if m == nil {
		return
	}
	m.panicTotal.WithLabelValues(normalizeLabel(component, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(component string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(component, "unknown")).Set(float64(depth))
}

// RecordTaskRejected records rejection events.
func (m *MetricsExporter) RecordTaskRejected(component string, reason string) {
	if m == nil {
		return
	}
	m.rejectedTotal.WithLabelValues(normalizeLabel(component, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordTaskOutcome counts delivered terminal callbacks.
func (m *MetricsExporter) RecordTaskOutcome(taskName string, outcome string) {
	if m == nil {
		return
	}
	m.taskOutcomeTotal.WithLabelValues(normalizeLabel(taskName, "unknown"), normalizeLabel(outcome, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func priorityLabel(priority core.TaskPriority) string {
	switch priority {
	case core.TaskPriorityUserBlocking:
		return "user_blocking"
	case core.TaskPriorityUserVisible:
		return "user_visible"
	case core.TaskPriorityBestEffort:
		return "best_effort"
	default:
		return "unknown"
	}
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
