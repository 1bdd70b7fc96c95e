package rapidtask

import (
	"sync"

	"github.com/Swind/go-rapid-task/core"
)

var (
	globalRuntime *core.Runtime
	globalMu      sync.Mutex
)

// InitGlobalRuntime creates and starts the process-wide runtime. Repeated calls
// are no-ops while a global runtime exists.
func InitGlobalRuntime(cfg core.RuntimeConfig) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalRuntime != nil {
		return nil // Already initialized
	}

	rt, err := core.NewRuntime(cfg)
	if err != nil {
		return err
	}
	rt.Start()
	globalRuntime = rt
	return nil
}

// GetGlobalRuntime returns the global runtime instance.
// It panics if InitGlobalRuntime has not been called.
func GetGlobalRuntime() *core.Runtime {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalRuntime == nil {
		panic("global runtime not initialized. Call InitGlobalRuntime() first.")
	}
	return globalRuntime
}

// ShutdownGlobalRuntime stops the global runtime. Terminal callbacks already
// posted are delivered before it returns.
func ShutdownGlobalRuntime() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalRuntime != nil {
		globalRuntime.Shutdown()
		globalRuntime = nil
	}
}

// NewTask creates a pending task bound to the global runtime.
func NewTask[P, R any](body core.Body[P, R]) *core.AsyncTask[P, R] {
	return core.NewAsyncTask(GetGlobalRuntime(), body)
}

// ExecuteRunnable runs plain work on the global runtime's default executor.
func ExecuteRunnable(work core.Runnable) error {
	return GetGlobalRuntime().ExecuteRunnable(work)
}

// SetDefaultExecutor replaces the global runtime's default executor.
func SetDefaultExecutor(exec core.Executor) {
	GetGlobalRuntime().SetDefaultExecutor(exec)
}
