// Package rapidtask provides a single-shot asynchronous task primitive for Go programs
// that have one goroutine owning UI (or other non-thread-safe) state.
//
// A task runs its body on an executor goroutine and delivers progress updates and
// exactly one terminal callback back on the affinity goroutine, in post order. The
// affinity goroutine is driven by a DispatchQueue; work runs on a bounded
// PoolExecutor, or one unit at a time on a SerialExecutor.
//
// # Quick Start
//
// Initialize the global runtime at application startup:
//
//	rapidtask.InitGlobalRuntime(rapidtask.DefaultRuntimeConfig())
//	defer rapidtask.ShutdownGlobalRuntime()
//
// Create and execute a task:
//
//	task := rapidtask.NewTask(func(ctx context.Context, t *rapidtask.AsyncTask[string, int], files []string) (int, error) {
//		for i, f := range files {
//			if t.IsCancelled() {
//				return i, nil
//			}
//			copyFile(ctx, f)
//			t.ReportProgress(i + 1)
//		}
//		return len(files), nil
//	}).
//		WithDialogFactory(newProgressDialog).
//		OnSuccess(func(n int) { fmt.Println("copied", n) })
//
//	task.Execute("a.txt", "b.txt")
//
// # Key Concepts
//
// AsyncTask: Lifecycle Pending → Running → Finished. A task can be submitted once.
// Cancel sets a flag the body polls, and with interrupt also cancels the body's context.
//
// DispatchQueue: The affinity goroutine's mailbox. Every callback, progress update
// and dialog mutation is a message dispatched there, one at a time, in post order.
//
// Executors: The PoolExecutor runs bodies concurrently within [core, max] workers.
// The SerialExecutor (the default) runs them one at a time in submission order.
//
// DialogTransaction: A batch of dialog mutations recorded on the worker and
// applied in one message on the affinity goroutine.
//
// # Thread Safety
//
// Hooks (OnSuccess, OnCancelled, OnError, dialog methods) only ever run on the
// affinity goroutine, so they may touch affinity-owned state without locks.
package rapidtask
