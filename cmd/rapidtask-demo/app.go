package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Swind/go-rapid-task/config"
	"github.com/Swind/go-rapid-task/core"
	obs "github.com/Swind/go-rapid-task/observability/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var errStepFailed = errors.New("step failed")

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "rapidtask-demo",
		Usage:  "run progress-reporting tasks on a RapidTask runtime",
		Writer: out,
		// main reports the error and sets the exit status.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file (RAPIDTASK_* variables override it)",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			configCommand(),
		},
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.String("config")
	if path == "" {
		return config.FromEnv(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return *cfg, nil
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print the effective configuration",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if err := cfg.Validate(); err != nil {
				return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), 1)
			}
			b, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = c.App.Writer.Write(b)
			return err
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run a batch of tasks and report their outcomes",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "tasks", Aliases: []string{"n"}, Value: 5, Usage: "number of tasks"},
			&cli.IntFlag{Name: "steps", Value: 10, Usage: "progress steps per task"},
			&cli.DurationFlag{Name: "step-delay", Value: 20 * time.Millisecond, Usage: "time spent on each step"},
			&cli.IntFlag{Name: "fail", Value: -1, Usage: "index of a task whose body fails half way"},
			&cli.IntFlag{Name: "cancel", Value: -1, Usage: "index of a task cancelled right after it is submitted"},
			&cli.StringFlag{Name: "executor", Usage: "override the default executor (serial or pool)"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve /metrics on this address"},
			&cli.DurationFlag{Name: "hold", Usage: "keep serving metrics this long after the batch"},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if exec := c.String("executor"); exec != "" {
		cfg.DefaultExecutor = exec
	}
	if addr := c.String("metrics-addr"); addr != "" {
		cfg.Metrics.Addr = addr
	}
	if c.Int("tasks") < 1 || c.Int("steps") < 1 {
		return cli.Exit("tasks and steps must be at least 1", 1)
	}

	reg := prom.NewRegistry()
	exporter, err := obs.NewMetricsExporter(cfg.Metrics.Namespace, reg, obs.ExporterOptions{})
	if err != nil {
		return err
	}
	poller, err := obs.NewSnapshotPoller(cfg.Metrics.Namespace, reg, cfg.Metrics.PollInterval)
	if err != nil {
		return err
	}

	rc := cfg.RuntimeConfig()
	rc.Handlers = &core.HandlerConfig{Metrics: exporter, Logger: core.NewNoOpLogger()}
	rt, err := core.NewRuntime(rc)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), 1)
	}
	rt.Start()
	defer rt.Shutdown()

	poller.AddRuntime(rt)
	poller.Start(c.Context)
	defer poller.Stop()

	if cfg.Metrics.Addr != "" {
		stop := serveMetrics(cfg.Metrics.Addr, reg)
		defer stop()
		fmt.Fprintf(c.App.Writer, "metrics at http://%s/metrics\n", cfg.Metrics.Addr)
	}

	summary := runBatch(c.Context, rt, c.App.Writer, batchOptions{
		tasks:     c.Int("tasks"),
		steps:     c.Int("steps"),
		stepDelay: c.Duration("step-delay"),
		fail:      c.Int("fail"),
		cancel:    c.Int("cancel"),
	})
	poller.CollectOnce()
	fmt.Fprintf(c.App.Writer, "succeeded=%d cancelled=%d failed=%d\n", summary.succeeded, summary.cancelled, summary.failed)

	if hold := c.Duration("hold"); hold > 0 && cfg.Metrics.Addr != "" {
		select {
		case <-time.After(hold):
		case <-c.Context.Done():
		}
	}
	return nil
}

func serveMetrics(addr string, reg *prom.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		_ = server.ListenAndServe()
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

type batchOptions struct {
	tasks     int
	steps     int
	stepDelay time.Duration
	fail      int
	cancel    int
}

// batchSummary is only touched on the affinity goroutine.
type batchSummary struct {
	succeeded int
	cancelled int
	failed    int
}

func runBatch(ctx context.Context, rt *core.Runtime, out io.Writer, opts batchOptions) batchSummary {
	var summary batchSummary
	var wg sync.WaitGroup

	for i := range opts.tasks {
		name := fmt.Sprintf("task-%d", i)
		task := core.NewAsyncTask(rt, stepBody(opts, i)).
			SetName(name).
			WithDialogFactory(func() core.Dialog { return newTerminalDialog(out, name) }).
			OnSuccess(func(steps int) {
				summary.succeeded++
				fmt.Fprintf(out, "%s finished %d steps\n", name, steps)
			}).
			OnCancelled(func(steps int) {
				summary.cancelled++
				fmt.Fprintf(out, "%s cancelled\n", name)
			}).
			OnError(func(err error) {
				summary.failed++
				fmt.Fprintf(out, "%s failed: %v\n", name, err)
			})

		if _, err := task.Execute(opts.steps); err != nil {
			fmt.Fprintf(out, "%s not started: %v\n", name, err)
			continue
		}
		if i == opts.cancel {
			task.Cancel(true)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			task.AwaitWithStrategy(ctx, core.WaitEvenIfCancelled)
		}()
	}

	wg.Wait()
	rt.Queue().WaitIdle(ctx)
	return summary
}

func stepBody(opts batchOptions, index int) core.Body[int, int] {
	return func(ctx context.Context, task *core.AsyncTask[int, int], params []int) (int, error) {
		steps := params[0]
		task.BeginTransaction().
			SetTitle(task.Name()).
			SetMax(steps).
			SetIndeterminate(false).
			Show().
			Commit()

		for step := 1; step <= steps; step++ {
			if task.IsCancelled() {
				return step - 1, nil
			}
			select {
			case <-ctx.Done():
				return step - 1, ctx.Err()
			case <-time.After(opts.stepDelay):
			}
			if index == opts.fail && step*2 >= steps {
				return step, fmt.Errorf("%s step %d: %w", task.Name(), step, errStepFailed)
			}
			task.ReportProgress(step)
		}
		task.SetStatusMessage("done")
		return steps, nil
	}
}
