package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ExecutorKind selects the default executor of a Runtime.
type ExecutorKind string

const (
	ExecutorSerial ExecutorKind = "serial"
	ExecutorPool   ExecutorKind = "pool"
)

// RuntimeConfig configures a Runtime.
type RuntimeConfig struct {
	// Name prefixes the component names used in logs and metrics.
	Name string
	Pool PoolConfig
	// DefaultExecutor is used by AsyncTask.Execute and ExecuteRunnable.
	DefaultExecutor ExecutorKind
	Handlers        *HandlerConfig
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Name:            "rapidtask",
		Pool:            DefaultPoolConfig(),
		DefaultExecutor: ExecutorSerial,
	}
}

func (c RuntimeConfig) Validate() error {
	switch c.DefaultExecutor {
	case ExecutorSerial, ExecutorPool, "":
	default:
		return fmt.Errorf("runtime config: unknown default executor %q", c.DefaultExecutor)
	}
	return c.Pool.Validate()
}

type executorHolder struct {
	exec Executor
}

// Runtime groups the affinity DispatchQueue with the shared pool and serial
// executors that AsyncTasks run on.
type Runtime struct {
	name     string
	handlers HandlerConfig

	queue  *DispatchQueue
	pool   *PoolExecutor
	serial *SerialExecutor

	defaultExec atomic.Pointer[executorHolder]

	shutdownOnce sync.Once
}

// NewRuntime creates a Runtime. The dispatch queue is not started; call Start, or
// Run on the goroutine that should own the affinity.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = "rapidtask"
	}
	handlers := cfg.Handlers.withDefaults()

	pool, err := NewPoolExecutor(cfg.Name+"-pool", cfg.Pool, &handlers)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		name:     cfg.Name,
		handlers: handlers,
		queue:    NewDispatchQueue(cfg.Name+"-affinity", &handlers),
		pool:     pool,
	}
	r.serial = NewSerialExecutor(cfg.Name+"-serial", pool, &handlers)

	if cfg.DefaultExecutor == ExecutorPool {
		r.SetDefaultExecutor(r.pool)
	} else {
		r.SetDefaultExecutor(r.serial)
	}
	return r, nil
}

func (r *Runtime) Name() string { return r.name }

// Start spawns the affinity goroutine.
func (r *Runtime) Start() {
	r.queue.Start()
	r.handlers.Logger.Debug("runtime started", F("runtime", r.name))
}

// Run makes the calling goroutine the affinity goroutine until ctx is done or the
// runtime is shut down.
func (r *Runtime) Run(ctx context.Context) error {
	return r.queue.Run(ctx)
}

func (r *Runtime) Queue() *DispatchQueue { return r.queue }

func (r *Runtime) Pool() *PoolExecutor { return r.pool }

func (r *Runtime) Serial() *SerialExecutor { return r.serial }

func (r *Runtime) Logger() Logger { return r.handlers.Logger }

func (r *Runtime) Metrics() Metrics { return r.handlers.Metrics }

// DefaultExecutor returns the executor used by AsyncTask.Execute.
func (r *Runtime) DefaultExecutor() Executor {
	return r.defaultExec.Load().exec
}

// SetDefaultExecutor replaces the default executor. Tasks already submitted are unaffected.
func (r *Runtime) SetDefaultExecutor(exec Executor) {
	if exec == nil {
		return
	}
	r.defaultExec.Store(&executorHolder{exec: exec})
}

// ExecuteRunnable runs plain work on the default executor.
func (r *Runtime) ExecuteRunnable(work Runnable) error {
	return r.DefaultExecutor().Execute(work)
}

// Shutdown stops the executors and then the dispatch queue. Running bodies see
// their context cancelled, queued work runs with a cancelled context, and every
// terminal message already posted is still delivered. Must not be called from the
// affinity goroutine.
func (r *Runtime) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.serial.Close()
		r.pool.Shutdown()
		r.queue.Stop()
		r.handlers.Logger.Debug("runtime stopped", F("runtime", r.name))
	})
}

// ShutdownGraceful lets queued and running work finish for up to timeout before
// shutting down.
func (r *Runtime) ShutdownGraceful(timeout time.Duration) error {
	var err error
	r.shutdownOnce.Do(func() {
		r.serial.Close()
		err = r.pool.ShutdownGraceful(timeout)
		r.queue.Stop()
		r.handlers.Logger.Debug("runtime stopped", F("runtime", r.name))
	})
	return err
}
