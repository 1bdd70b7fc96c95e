package core_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	core "github.com/Swind/go-rapid-task/core"
)

// TestAsyncTask_SerialSuccess_DeliversResultOnce verifies the basic success scenario
// Given: A task that returns 42 after a short delay, with a dialog
// When: The task is executed on the default (serial) executor
// Then: OnSuccess(42) runs once on the affinity goroutine after one dismissal, status becomes Finished
func TestAsyncTask_SerialSuccess_DeliversResultOnce(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	dialog := &recordingDialog{}
	var successes atomic.Int32
	var got atomic.Int64
	var dismissedBeforeSuccess atomic.Bool

	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		time.Sleep(20 * time.Millisecond)
		return 42, nil
	}).
		WithDialogFactory(func() core.Dialog { return dialog }).
		OnSuccess(func(result int) {
			dismissedBeforeSuccess.Store(dialog.Count("dismiss") == 1)
			got.Store(int64(result))
			successes.Add(1)
		}).
		OnCancelled(func(int) { t.Error("OnCancelled called for a successful task") }).
		OnError(func(err error) { t.Errorf("OnError called: %v", err) })

	// Act
	if _, err := task.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	result, err := task.Await(context.Background())
	waitIdle(t, rt)

	// Assert
	if err != nil || result != 42 {
		t.Fatalf("Await() = (%d, %v), want (42, nil)", result, err)
	}
	if successes.Load() != 1 || got.Load() != 42 {
		t.Errorf("OnSuccess calls = %d with %d, want 1 call with 42", successes.Load(), got.Load())
	}
	if !dismissedBeforeSuccess.Load() {
		t.Error("dialog was not dismissed before OnSuccess")
	}
	if n := dialog.Count("dismiss"); n != 1 {
		t.Errorf("dismiss count = %d, want 1", n)
	}
	if task.Status() != core.StatusFinished {
		t.Errorf("Status() = %v, want finished", task.Status())
	}
}

// TestAsyncTask_PreStartRunsBeforeSubmitReturns verifies submission side effects
// Given: A task with a dialog factory and a pre-start hook
// When: Submit is called
// Then: Both ran on the calling goroutine, in order, before Submit returns
func TestAsyncTask_PreStartRunsBeforeSubmitReturns(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	exec := &blockingExecutor{}
	var order []string

	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		return 0, nil
	}).
		WithDialogFactory(func() core.Dialog {
			order = append(order, "dialog")
			return &recordingDialog{}
		}).
		OnPreStart(func() { order = append(order, "pre-start") })

	// Act
	if _, err := task.Submit(exec); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// Assert
	if len(order) != 2 || order[0] != "dialog" || order[1] != "pre-start" {
		t.Errorf("order = %v, want [dialog pre-start]", order)
	}
	if task.Status() != core.StatusRunning {
		t.Errorf("Status() = %v, want running", task.Status())
	}
	if exec.Len() != 1 {
		t.Errorf("executor received %d units, want 1", exec.Len())
	}
}

// TestAsyncTask_Resubmit_ReturnsStateError verifies a task is single-shot
// Given: A running task and a finished task
// When: Each is submitted again
// Then: Both return a *StateError matching ErrIllegalState with the matching status
func TestAsyncTask_Resubmit_ReturnsStateError(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	body := func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		return 1, nil
	}

	held := &blockingExecutor{}
	running := core.NewAsyncTask(rt, body)
	if _, err := running.Submit(held); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	finished := core.NewAsyncTask(rt, body)
	if _, err := finished.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if _, err := finished.Await(context.Background()); err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	waitIdle(t, rt)

	// Act
	_, errRunning := running.Submit(held)
	_, errFinished := finished.Execute()

	// Assert
	var stateErr *core.StateError
	if !errors.As(errRunning, &stateErr) || stateErr.Status != core.StatusRunning {
		t.Errorf("resubmit running task error = %v, want StateError(running)", errRunning)
	}
	if !errors.As(errFinished, &stateErr) || stateErr.Status != core.StatusFinished {
		t.Errorf("resubmit finished task error = %v, want StateError(finished)", errFinished)
	}
	if !errors.Is(errFinished, core.ErrIllegalState) {
		t.Error("StateError does not match ErrIllegalState")
	}
	if held.Len() != 1 {
		t.Errorf("executor received %d units, want 1", held.Len())
	}
}

// TestAsyncTask_CancelBeforeBodyStarts verifies the cancelled-before-start path
// Given: A submitted task whose body has not been picked up yet
// When: Cancel(false) is called and the executor later runs the unit
// Then: The body never runs, OnCancelled receives the zero value, OnSuccess never runs
func TestAsyncTask_CancelBeforeBodyStarts(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	exec := &blockingExecutor{}
	dialog := &recordingDialog{}
	var bodyRan, succeeded atomic.Bool
	cancelled := make(chan string, 1)

	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[string, string], params []string) (string, error) {
		bodyRan.Store(true)
		return "done", nil
	}).
		WithDialogFactory(func() core.Dialog { return dialog }).
		OnSuccess(func(string) { succeeded.Store(true) }).
		OnCancelled(func(result string) { cancelled <- result })

	if _, err := task.Submit(exec, "a"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// Act
	accepted := task.Cancel(false)
	exec.RunNext(context.Background())
	waitIdle(t, rt)

	// Assert
	if !accepted {
		t.Error("Cancel() = false, want true")
	}
	select {
	case result := <-cancelled:
		if result != "" {
			t.Errorf("OnCancelled result = %q, want zero value", result)
		}
	default:
		t.Fatal("OnCancelled was not called")
	}
	if bodyRan.Load() {
		t.Error("body ran after cancellation")
	}
	if succeeded.Load() {
		t.Error("OnSuccess called for a cancelled task")
	}
	if n := dialog.Count("dismiss"); n != 1 {
		t.Errorf("dismiss count = %d, want 1", n)
	}
	if task.Cancel(false) {
		t.Error("second Cancel() = true, want false once the future is cancelled")
	}
}

// TestAsyncTask_CancelWhilePending verifies cancellation before Submit
// Given: A task cancelled before it was submitted
// When: The task is executed
// Then: Submit succeeds, the body never runs, OnCancelled fires exactly once
func TestAsyncTask_CancelWhilePending(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	var bodyRan atomic.Bool
	var cancelledCalls atomic.Int32

	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		bodyRan.Store(true)
		return 1, nil
	}).OnCancelled(func(int) { cancelledCalls.Add(1) })

	// Act
	accepted := task.Cancel(true)
	_, err := task.Execute()
	waitIdle(t, rt)

	// Assert
	if !accepted {
		t.Error("Cancel() on a pending task = false, want true")
	}
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if bodyRan.Load() {
		t.Error("body ran for a task cancelled while pending")
	}
	if cancelledCalls.Load() != 1 {
		t.Errorf("OnCancelled calls = %d, want 1", cancelledCalls.Load())
	}
	if task.Status() != core.StatusFinished {
		t.Errorf("Status() = %v, want finished", task.Status())
	}
}

// TestAsyncTask_CancelledNeverSubmitted_AwaitEvenIfCancelled verifies no wait without a worker
// Given: A task cancelled while pending and never submitted
// When: AwaitWithStrategy is called with WaitEvenIfCancelled
// Then: It returns the zero result immediately instead of waiting for the context
func TestAsyncTask_CancelledNeverSubmitted_AwaitEvenIfCancelled(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		return 1, nil
	})
	task.Cancel(false)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Act
	start := time.Now()
	result, err := task.AwaitWithStrategy(ctx, core.WaitEvenIfCancelled)
	elapsed := time.Since(start)

	// Assert
	if err != nil || result != 0 {
		t.Errorf("AwaitWithStrategy() = (%d, %v), want (0, nil)", result, err)
	}
	if elapsed > time.Second {
		t.Errorf("AwaitWithStrategy() took %v, want an immediate return", elapsed)
	}
	if task.Status() != core.StatusPending {
		t.Errorf("Status() = %v, want pending", task.Status())
	}
}

// TestAsyncTask_CancelInterrupt_AwaitNormal verifies WaitNormal after an interrupt
// Given: A running task whose body blocks until its context is cancelled
// When: Cancel(true) is called and Await is called with WaitNormal
// Then: Await returns ErrCancelled, OnCancelled fires, OnSuccess and OnError never fire
func TestAsyncTask_CancelInterrupt_AwaitNormal(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	started := make(chan struct{})
	var succeeded, failed atomic.Bool
	var cancelledCalls atomic.Int32

	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	}).
		OnSuccess(func(int) { succeeded.Store(true) }).
		OnError(func(error) { failed.Store(true) }).
		OnCancelled(func(int) { cancelledCalls.Add(1) })

	if _, err := task.Submit(rt.Pool()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-started

	// Act
	accepted := task.Cancel(true)
	_, err := task.Await(context.Background())

	// Assert
	if !accepted {
		t.Error("Cancel() = false, want true")
	}
	if !errors.Is(err, core.ErrCancelled) {
		t.Fatalf("Await() error = %v, want ErrCancelled", err)
	}
	waitFor(t, 2*time.Second, func() bool { return task.Status() == core.StatusFinished }, "task to finish")
	if succeeded.Load() || failed.Load() {
		t.Error("OnSuccess or OnError fired for a cancelled task")
	}
	if cancelledCalls.Load() != 1 {
		t.Errorf("OnCancelled calls = %d, want 1", cancelledCalls.Load())
	}
}

// TestAsyncTask_AwaitEvenIfCancelled_WaitsForCleanup verifies true-completion waiting
// Given: A running task whose body ignores cancellation and cleans up for 100ms
// When: The task is cancelled and Await is called with WaitEvenIfCancelled
// Then: Await returns the zero value only after the cleanup has run
func TestAsyncTask_AwaitEvenIfCancelled_WaitsForCleanup(t *testing.T) {
	// Arrange
	const cleanup = 100 * time.Millisecond
	rt := newTestRuntime(t, nil)
	started := make(chan struct{})
	var cleanedUp atomic.Bool

	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		close(started)
		time.Sleep(cleanup)
		cleanedUp.Store(true)
		return 7, nil
	}).OnCancelled(func(int) {})

	if _, err := task.Submit(rt.Pool()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-started
	task.Cancel(false)

	// Act
	begin := time.Now()
	result, err := task.AwaitWithStrategy(context.Background(), core.WaitEvenIfCancelled)
	elapsed := time.Since(begin)

	// Assert
	if err != nil || result != 0 {
		t.Fatalf("AwaitWithStrategy() = (%d, %v), want (0, nil)", result, err)
	}
	if !cleanedUp.Load() {
		t.Error("AwaitWithStrategy returned before the body finished")
	}
	if elapsed < cleanup/2 {
		t.Errorf("AwaitWithStrategy returned after %v, want it to wait for cleanup", elapsed)
	}
}

// TestAsyncTask_CancelledAfterBody_OnCancelledGetsResult verifies the result is handed over
// Given: A task whose body finishes normally after Cancel(false) was called
// When: The terminal message is delivered
// Then: OnCancelled receives the body's result
func TestAsyncTask_CancelledAfterBody_OnCancelledGetsResult(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	started := make(chan struct{})
	proceed := make(chan struct{})
	got := make(chan int, 1)

	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		close(started)
		<-proceed
		return 99, nil
	}).OnCancelled(func(result int) { got <- result })

	if _, err := task.Submit(rt.Pool()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-started

	// Act
	task.Cancel(false)
	close(proceed)
	task.AwaitWithStrategy(context.Background(), core.WaitEvenIfCancelled)
	waitIdle(t, rt)

	// Assert
	select {
	case result := <-got:
		if result != 99 {
			t.Errorf("OnCancelled result = %d, want 99", result)
		}
	default:
		t.Fatal("OnCancelled was not called")
	}
}

// TestAsyncTask_BodyError_ReachesOnError verifies error identity
// Given: A body that returns a domain error
// When: The task runs
// Then: OnError receives that exact error, Await returns a ComputationError wrapping it
func TestAsyncTask_BodyError_ReachesOnError(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	errDomain := errors.New("disk full")
	received := make(chan error, 1)
	var otherCallbacks atomic.Int32

	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		return 0, errDomain
	}).
		OnError(func(err error) { received <- err }).
		OnSuccess(func(int) { otherCallbacks.Add(1) }).
		OnCancelled(func(int) { otherCallbacks.Add(1) })

	// Act
	task.Execute()
	_, err := task.Await(context.Background())
	waitIdle(t, rt)

	// Assert
	var cerr *core.ComputationError
	if !errors.As(err, &cerr) || cerr.TaskID != task.ID() {
		t.Fatalf("Await() error = %v, want ComputationError for this task", err)
	}
	if !errors.Is(err, errDomain) {
		t.Error("ComputationError does not unwrap to the body error")
	}
	select {
	case got := <-received:
		if got != errDomain {
			t.Errorf("OnError received %v, want the exact body error", got)
		}
	default:
		t.Fatal("OnError was not called")
	}
	if otherCallbacks.Load() != 0 {
		t.Error("OnSuccess or OnCancelled fired for a failed task")
	}
}

// TestAsyncTask_BodyPanic_BecomesPanicError verifies panics are captured on the worker
// Given: A body that panics
// When: The task runs
// Then: OnError receives a *PanicError carrying the panic value
func TestAsyncTask_BodyPanic_BecomesPanicError(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	received := make(chan error, 1)

	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		panic("boom")
	}).OnError(func(err error) { received <- err })

	// Act
	task.Submit(rt.Pool())
	task.Await(context.Background())
	waitIdle(t, rt)

	// Assert
	select {
	case err := <-received:
		var perr *core.PanicError
		if !errors.As(err, &perr) || perr.Value != "boom" {
			t.Fatalf("OnError received %v, want PanicError(boom)", err)
		}
		if len(perr.Stack) == 0 {
			t.Error("PanicError has no stack")
		}
	default:
		t.Fatal("OnError was not called")
	}
}

// TestAsyncTask_DefaultOnError_EscalatesToPanicHandler verifies errors are never silent
// Given: A failing task without an OnError hook
// When: The exception is delivered
// Then: The dispatch queue reports a panic, the task is Finished, later messages still run
func TestAsyncTask_DefaultOnError_EscalatesToPanicHandler(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		return 0, errors.New("unhandled")
	})

	// Act
	task.Execute()
	task.Await(context.Background())
	waitIdle(t, rt)

	ran := make(chan struct{})
	rt.Queue().PostFunc(func() { close(ran) })
	waitIdle(t, rt)

	// Assert
	if got := rt.Queue().Stats().Panics; got != 1 {
		t.Errorf("dispatch queue panics = %d, want 1", got)
	}
	if task.Status() != core.StatusFinished {
		t.Errorf("Status() = %v, want finished", task.Status())
	}
	select {
	case <-ran:
	default:
		t.Error("message after the escalated error was not dispatched")
	}
}

// TestAsyncTask_ProgressOrdering verifies progress is delivered in order before the terminal message
// Given: A body that reports progress 1..5 and updates title and message
// When: The task completes
// Then: The dialog sees the updates in post order, then exactly one dismissal, and nothing after it
func TestAsyncTask_ProgressOrdering(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	dialog := &recordingDialog{}

	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		task.SetStatusTitle("copying")
		for i := 1; i <= 5; i++ {
			task.ReportProgress(i)
		}
		task.SetStatusMessage("almost")
		return 5, nil
	}).WithDialogFactory(func() core.Dialog { return dialog })

	// Act
	task.Execute()
	task.Await(context.Background())
	waitIdle(t, rt)

	// Late progress after the terminal message must not reach the dialog
	task.ReportProgress(6)
	waitIdle(t, rt)

	// Assert
	want := []string{"title:copying", "progress:1", "progress:2", "progress:3", "progress:4", "progress:5", "message:almost", "dismiss"}
	got := dialog.Events()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestAsyncTask_ProgressAfterCancel_IsDropped verifies progress is a no-op once cancelled
// Given: A running task that reports progress before and after being cancelled
// When: The task finishes
// Then: Only the progress posted before cancellation reaches the dialog
func TestAsyncTask_ProgressAfterCancel_IsDropped(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	dialog := &recordingDialog{}
	reported := make(chan struct{})
	proceed := make(chan struct{})

	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		task.ReportProgress(1)
		close(reported)
		<-proceed
		task.ReportProgress(2)
		return 0, nil
	}).
		WithDialogFactory(func() core.Dialog { return dialog }).
		OnCancelled(func(int) {})

	task.Submit(rt.Pool())
	<-reported

	// Act
	task.Cancel(false)
	close(proceed)
	task.AwaitWithStrategy(context.Background(), core.WaitEvenIfCancelled)
	waitIdle(t, rt)

	// Assert
	got := dialog.Events()
	if len(got) != 2 || got[0] != "progress:1" || got[1] != "dismiss" {
		t.Errorf("events = %v, want [progress:1 dismiss]", got)
	}
}

// TestAsyncTask_RunOnAffinityThread verifies runnables are ordered with task messages
// Given: A body that interleaves progress with affinity runnables
// When: The task completes
// Then: Every runnable runs on the affinity goroutine in post order, before the terminal callback
func TestAsyncTask_RunOnAffinityThread(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	events := &eventLog{}

	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		for i := range 3 {
			task.RunOnAffinityThread(func() { events.Add(fmt.Sprintf("run:%d", i)) })
		}
		return 0, nil
	}).OnSuccess(func(int) { events.Add("success") })

	// Act
	task.Execute()
	task.Await(context.Background())
	waitIdle(t, rt)

	// Assert
	want := []string{"run:0", "run:1", "run:2", "success"}
	got := events.Events()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

// TestAsyncTask_AwaitTimeout verifies bounded waiting
// Given: A task whose body blocks
// When: AwaitTimeout is called with a short timeout
// Then: ErrTimeout is returned and the task is unaffected and later succeeds
func TestAsyncTask_AwaitTimeout(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	proceed := make(chan struct{})

	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		<-proceed
		return 3, nil
	})
	task.Submit(rt.Pool())

	// Act
	_, err := task.AwaitTimeout(20 * time.Millisecond)

	// Assert
	if !errors.Is(err, core.ErrTimeout) {
		t.Fatalf("AwaitTimeout() error = %v, want ErrTimeout", err)
	}
	if task.IsCancelled() || task.Status() != core.StatusRunning {
		t.Errorf("task changed by timeout: cancelled=%v status=%v", task.IsCancelled(), task.Status())
	}

	close(proceed)
	result, err := task.AwaitTimeout(2 * time.Second)
	if err != nil || result != 3 {
		t.Errorf("AwaitTimeout() after release = (%d, %v), want (3, nil)", result, err)
	}
}

// TestAsyncTask_AwaitInterrupted verifies the waiting context is honoured
// Given: A task whose body blocks
// When: Await is called with a context that is cancelled
// Then: An InterruptedError wrapping context.Canceled is returned
func TestAsyncTask_AwaitInterrupted(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	proceed := make(chan struct{})
	defer close(proceed)

	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		<-proceed
		return 0, nil
	})
	task.Submit(rt.Pool())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Act
	_, err := task.Await(ctx)

	// Assert
	var ie *core.InterruptedError
	if !errors.As(err, &ie) || !errors.Is(err, context.Canceled) {
		t.Errorf("Await() error = %v, want InterruptedError(context.Canceled)", err)
	}
}

// TestAsyncTask_RejectedSubmit verifies submission to a stopped executor
// Given: A task with a dialog and an executor that rejects work
// When: The task is submitted
// Then: Submit and Await return the rejection, no terminal callback fires, the dialog is dismissed
func TestAsyncTask_RejectedSubmit(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	dialog := &recordingDialog{}
	var callbacks atomic.Int32

	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		return 1, nil
	}).
		WithDialogFactory(func() core.Dialog { return dialog }).
		OnSuccess(func(int) { callbacks.Add(1) }).
		OnCancelled(func(int) { callbacks.Add(1) }).
		OnError(func(error) { callbacks.Add(1) })

	// Act
	_, submitErr := task.Submit(rejectingExecutor{})
	_, awaitErr := task.Await(context.Background())
	waitIdle(t, rt)

	// Assert
	if !errors.Is(submitErr, core.ErrExecutorShutdown) {
		t.Errorf("Submit() error = %v, want ErrExecutorShutdown", submitErr)
	}
	if !errors.Is(awaitErr, core.ErrExecutorShutdown) {
		t.Errorf("Await() error = %v, want ErrExecutorShutdown", awaitErr)
	}
	if callbacks.Load() != 0 {
		t.Errorf("terminal callbacks = %d, want 0", callbacks.Load())
	}
	if dialog.Count("dismiss") != 1 {
		t.Errorf("dismiss count = %d, want 1", dialog.Count("dismiss"))
	}
	if task.Status() != core.StatusFinished {
		t.Errorf("Status() = %v, want finished", task.Status())
	}
}

// TestAsyncTask_ExecuteAfterRuntimeShutdown_DismissesDialog verifies dismissal without an affinity loop
// Given: A runtime that has been shut down and a task with a dialog
// When: The task is executed
// Then: The rejection is returned, the dialog is dismissed exactly once and the task is finished
func TestAsyncTask_ExecuteAfterRuntimeShutdown_DismissesDialog(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	rt.Shutdown()
	dialog := &recordingDialog{}
	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		return 1, nil
	}).WithDialogFactory(func() core.Dialog { return dialog })

	// Act
	_, err := task.Execute()

	// Assert
	if !errors.Is(err, core.ErrExecutorShutdown) {
		t.Errorf("Execute() error = %v, want ErrExecutorShutdown", err)
	}
	if got := dialog.Count("dismiss"); got != 1 {
		t.Errorf("dismiss count = %d, want 1", got)
	}
	if task.Status() != core.StatusFinished {
		t.Errorf("Status() = %v, want finished", task.Status())
	}
}

// TestAsyncTask_ExecutorShutdownBeforeStart verifies accepted work observes shutdown
// Given: A task held by an executor
// When: The executor runs the unit with an already-cancelled context
// Then: The body never runs and the task takes the cancelled branch
func TestAsyncTask_ExecutorShutdownBeforeStart(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	exec := &blockingExecutor{}
	var bodyRan atomic.Bool
	cancelled := make(chan struct{})

	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		bodyRan.Store(true)
		return 1, nil
	}).OnCancelled(func(int) { close(cancelled) })
	task.Submit(exec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Act
	exec.RunNext(ctx)
	waitIdle(t, rt)

	// Assert
	if bodyRan.Load() {
		t.Error("body ran with a cancelled executor context")
	}
	if !task.IsCancelled() {
		t.Error("IsCancelled() = false, want true")
	}
	select {
	case <-cancelled:
	default:
		t.Error("OnCancelled was not called")
	}
}

// TestAsyncTask_ParamsAndTaskID verifies the body receives its params and task ID
// Given: A task submitted with three params
// When: The body runs
// Then: It sees the params in order and its own ID in the context
func TestAsyncTask_ParamsAndTaskID(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	var ctxID core.TaskID

	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[string, string], params []string) (string, error) {
		ctxID, _ = core.GetCurrentTaskID(ctx)
		out := ""
		for _, p := range params {
			out += p
		}
		return out, nil
	})

	// Act
	task.Execute("a", "b", "c")
	result, err := task.Await(context.Background())

	// Assert
	if err != nil || result != "abc" {
		t.Fatalf("Await() = (%q, %v), want (abc, nil)", result, err)
	}
	if ctxID != task.ID() {
		t.Errorf("context task ID = %s, want %s", ctxID, task.ID())
	}
}

// TestAsyncTask_PriorityAndName_ReachExecutor verifies traits are derived from the task
// Given: A named task with UserBlocking priority run on the pool
// When: The pool records the execution
// Then: The record carries the task name and priority; later SetPriority calls are ignored
func TestAsyncTask_PriorityAndName_ReachExecutor(t *testing.T) {
	// Arrange
	rt := newTestRuntime(t, nil)
	task := core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		return 0, nil
	}).SetName("thumbnail").SetPriority(core.TaskPriorityUserBlocking)

	// Act
	task.Submit(rt.Pool())
	task.SetPriority(core.TaskPriorityBestEffort)
	task.Await(context.Background())

	// Assert
	if task.Priority() != core.TaskPriorityUserBlocking {
		t.Errorf("Priority() = %v, want user_blocking", task.Priority())
	}
	var record core.TaskExecutionRecord
	waitFor(t, 2*time.Second, func() bool {
		var ok bool
		record, ok = rt.Pool().LastTask()
		return ok
	}, "execution record")
	if record.Name != "thumbnail" || record.Priority != core.TaskPriorityUserBlocking {
		t.Errorf("record = {%s %v}, want {thumbnail user_blocking}", record.Name, record.Priority)
	}
}

// TestAsyncTask_TerminalExactlyOnce_UnderRacingCancels verifies the post-once guarantee
// Given: Many tasks cancelled concurrently with their execution
// When: All tasks settle
// Then: Each task delivers exactly one terminal callback
func TestAsyncTask_TerminalExactlyOnce_UnderRacingCancels(t *testing.T) {
	// Arrange
	const n = 200
	rt := newTestRuntime(t, func(cfg *core.RuntimeConfig) { cfg.DefaultExecutor = core.ExecutorPool })
	counts := make([]atomic.Int32, n)
	tasks := make([]*core.AsyncTask[int, int], n)

	for i := range n {
		tasks[i] = core.NewAsyncTask(rt, func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
			if params[0]%3 == 0 {
				return 0, errors.New("odd failure")
			}
			return params[0], nil
		}).
			OnSuccess(func(int) { counts[i].Add(1) }).
			OnCancelled(func(int) { counts[i].Add(1) }).
			OnError(func(error) { counts[i].Add(1) })
	}

	// Act
	var wg sync.WaitGroup
	for i := range n {
		tasks[i].Execute(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			tasks[i].Cancel(i%2 == 0)
		}()
	}
	wg.Wait()
	for i := range n {
		tasks[i].AwaitWithStrategy(context.Background(), core.WaitEvenIfCancelled)
	}
	waitFor(t, 5*time.Second, func() bool {
		for i := range n {
			if tasks[i].Status() != core.StatusFinished {
				return false
			}
		}
		return true
	}, "all tasks to finish")

	// Assert
	for i := range n {
		if got := counts[i].Load(); got != 1 {
			t.Errorf("task %d terminal callbacks = %d, want 1", i, got)
		}
	}
}
