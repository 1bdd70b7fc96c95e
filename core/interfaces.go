package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling panics in work and affinity callbacks
// =============================================================================

// PanicHandler is called when a Runnable panics on a pool worker, or when a
// message handler panics on the affinity goroutine.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a unit of work panics.
	//
	// Parameters:
	// - ctx: The context the work ran with (may carry the task ID)
	// - component: The name of the executor or dispatch queue where the panic occurred
	// - workerID: The ID of the pool worker, -1 for the affinity goroutine
	// - panicInfo: The recovered panic value
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, component string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs the panic at error level.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs panic information with its stack trace.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, component string, workerID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	fields := []Field{F("component", component), F("panic", panicInfo), F("stack", string(stackTrace))}
	if workerID >= 0 {
		fields = append(fields, F("worker", workerID))
	}
	if id, ok := GetCurrentTaskID(ctx); ok {
		fields = append(fields, F("task", id.Short()))
	}
	logger.Error("panic recovered", fields...)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a unit of work ran on an executor.
	RecordTaskDuration(component string, priority TaskPriority, duration time.Duration)

	// RecordTaskPanic records that a unit of work or an affinity callback panicked.
	RecordTaskPanic(component string, panicInfo any)

	// RecordQueueDepth records the current backlog of an executor or dispatch queue.
	RecordQueueDepth(component string, depth int)

	// RecordTaskRejected records work or a message refused after shutdown.
	RecordTaskRejected(component string, reason string)

	// RecordTaskOutcome records the terminal branch taken by an AsyncTask
	// ("success", "cancelled" or "error").
	RecordTaskOutcome(component string, outcome string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(component string, priority TaskPriority, duration time.Duration) {
}
func (m *NilMetrics) RecordTaskPanic(component string, panicInfo any)    {}
func (m *NilMetrics) RecordQueueDepth(component string, depth int)       {}
func (m *NilMetrics) RecordTaskRejected(component string, reason string) {}
func (m *NilMetrics) RecordTaskOutcome(component string, outcome string) {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected work
// =============================================================================

// RejectedTaskHandler is called when an executor or dispatch queue refuses
// work because it has been shut down.
type RejectedTaskHandler interface {
	HandleRejectedTask(component string, reason string)
}

// DefaultRejectedTaskHandler logs rejected work at warn level.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected work.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(component string, reason string) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Warn("work rejected", F("component", component), F("reason", reason))
}

// =============================================================================
// HandlerConfig: Observability hooks shared by executors and the dispatch queue
// =============================================================================

// HandlerConfig holds the pluggable handlers of a component.
// All handlers are optional; if not provided, default implementations will be used.
type HandlerConfig struct {
	// PanicHandler is called when work panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics records execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when work is rejected. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// Logger receives lifecycle and warning logs. Defaults to DefaultLogger.
	Logger Logger
}

// DefaultHandlerConfig returns a config with default handlers.
func DefaultHandlerConfig() *HandlerConfig {
	logger := NewDefaultLogger()
	return &HandlerConfig{
		PanicHandler:        &DefaultPanicHandler{Logger: logger},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{Logger: logger},
		Logger:              logger,
	}
}

// withDefaults returns a copy of c with every nil handler replaced by its default.
func (c *HandlerConfig) withDefaults() HandlerConfig {
	var out HandlerConfig
	if c != nil {
		out = *c
	}
	if out.Logger == nil {
		out.Logger = NewDefaultLogger()
	}
	if out.PanicHandler == nil {
		out.PanicHandler = &DefaultPanicHandler{Logger: out.Logger}
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.RejectedTaskHandler == nil {
		out.RejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: out.Logger}
	}
	return out
}
