package rapidtask_test

import (
	"context"
	"errors"
	"fmt"

	rapidtask "github.com/Swind/go-rapid-task"
)

// ExampleNewTask demonstrates the basic usage with only one import.
func ExampleNewTask() {
	// Initialize global runtime
	rapidtask.InitGlobalRuntime(rapidtask.DefaultRuntimeConfig())
	defer rapidtask.ShutdownGlobalRuntime()

	task := rapidtask.NewTask(func(ctx context.Context, t *rapidtask.AsyncTask[int, int], params []int) (int, error) {
		sum := 0
		for _, p := range params {
			sum += p
		}
		return sum, nil
	}).
		OnPreStart(func() { fmt.Println("starting") }).
		OnSuccess(func(sum int) { fmt.Println("sum:", sum) })

	task.Execute(1, 2, 3)
	task.Await(context.Background())
	rapidtask.GetGlobalRuntime().Queue().WaitIdle(context.Background())

	// Output:
	// starting
	// sum: 6
}

// ExampleNewTask_progress demonstrates progress delivered in order before the result.
func ExampleNewTask_progress() {
	rapidtask.InitGlobalRuntime(rapidtask.DefaultRuntimeConfig())
	defer rapidtask.ShutdownGlobalRuntime()

	task := rapidtask.NewTask(func(ctx context.Context, t *rapidtask.AsyncTask[string, int], files []string) (int, error) {
		for i := range files {
			t.ReportProgress(i + 1)
		}
		return len(files), nil
	}).
		WithDialogFactory(func() rapidtask.Dialog { return &printDialog{} }).
		OnSuccess(func(n int) { fmt.Println("copied", n) })

	task.Execute("a.txt", "b.txt", "c.txt")
	task.Await(context.Background())
	rapidtask.GetGlobalRuntime().Queue().WaitIdle(context.Background())

	// Output:
	// progress 1
	// progress 2
	// progress 3
	// dismissed
	// copied 3
}

// ExampleNewTask_cancel demonstrates cancelling a task before its body starts.
func ExampleNewTask_cancel() {
	rapidtask.InitGlobalRuntime(rapidtask.DefaultRuntimeConfig())
	defer rapidtask.ShutdownGlobalRuntime()

	task := rapidtask.NewTask(func(ctx context.Context, t *rapidtask.AsyncTask[int, string], params []int) (string, error) {
		return "never", nil
	}).
		OnSuccess(func(s string) { fmt.Println("success:", s) }).
		OnCancelled(func(s string) { fmt.Printf("cancelled with %q\n", s) })

	task.Cancel(false)
	task.Execute()
	_, err := task.Await(context.Background())
	rapidtask.GetGlobalRuntime().Queue().WaitIdle(context.Background())

	fmt.Println(errors.Is(err, rapidtask.ErrCancelled))

	// Output:
	// cancelled with ""
	// true
}

// ExampleNewTask_onError demonstrates error delivery on the affinity goroutine.
func ExampleNewTask_onError() {
	rapidtask.InitGlobalRuntime(rapidtask.DefaultRuntimeConfig())
	defer rapidtask.ShutdownGlobalRuntime()

	errDisk := errors.New("disk full")
	task := rapidtask.NewTask(func(ctx context.Context, t *rapidtask.AsyncTask[int, int], params []int) (int, error) {
		return 0, errDisk
	}).OnError(func(err error) { fmt.Println("failed:", err, err == errDisk) })

	task.Execute()
	task.Await(context.Background())
	rapidtask.GetGlobalRuntime().Queue().WaitIdle(context.Background())

	// Output:
	// failed: disk full true
}

// printDialog prints progress and dismissal.
type printDialog struct{}

func (printDialog) SetTitle(string)       {}
func (printDialog) SetMessage(string)     {}
func (printDialog) SetProgress(p int)     { fmt.Println("progress", p) }
func (printDialog) SetMax(int)            {}
func (printDialog) SetIndeterminate(bool) {}
func (printDialog) Show()                 {}
func (printDialog) Dismiss()              { fmt.Println("dismissed") }
