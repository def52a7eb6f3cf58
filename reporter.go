package reporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/ethereum-optimism/infra/op-reporter/host"
	"github.com/ethereum-optimism/infra/op-reporter/registry"
	"github.com/ethereum-optimism/infra/op-reporter/reporting"
	"github.com/ethereum-optimism/infra/op-reporter/runner"
	"github.com/ethereum-optimism/infra/op-reporter/trigger"
)

// reporter implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &reporter{}

// reporter runs the declared tests and reports their results, either once or
// on demand through the trigger endpoint.
type reporter struct {
	config   *Config
	version  string
	resource *trigger.Resource
	server   *trigger.Server
	sinks    *reporting.Sinks
	summary  *reporting.SummaryFormatter

	mu      sync.Mutex
	lastRun *runner.Run

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*reporter, error) {
	return newReporter(ctx, config, version, shutdownCallback, os.Stdout)
}

func newReporter(ctx context.Context, config *Config, version string, shutdownCallback func(error), out io.Writer) (*reporter, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Reporter == nil {
		return nil, errors.New("reporter configuration is required")
	}

	config.Log.Debug("Creating reporter with config",
		"testDir", config.TestDir,
		"declarations", config.Declarations,
		"serve", config.Serve,
		"save", config.Reporter.Save,
		"publish", config.Reporter.Publish)

	reg, err := registry.NewRegistry(registry.Config{
		Log:             config.Log,
		DeclarationFile: config.Declarations,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	controller, err := host.NewController(host.Config{
		Log:      config.Log,
		Registry: reg,
		WorkDir:  config.TestDir,
		GoBinary: config.GoBinary,
		Timeout:  config.Timeout,
		Executor: config.Executor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}

	sinks, err := reporting.NewSinks(ctx, config.Reporter, config.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create sinks: %w", err)
	}

	r := &reporter{
		config:           config,
		version:          version,
		sinks:            sinks,
		summary:          reporting.NewSummaryFormatter(out),
		shutdownCallback: shutdownCallback,
	}

	r.resource, err = trigger.NewResource(trigger.Config{
		Log:        config.Log,
		Reporter:   config.Reporter,
		Controller: controller,
		Persist:    sinks.Persist,
		Publish:    sinks.Publish,
		Observer:   r.onRunEnd,
	})
	if err != nil {
		_ = sinks.Close()
		return nil, fmt.Errorf("failed to create trigger resource: %w", err)
	}
	if config.Serve {
		r.server = trigger.NewServer(r.resource, config.Log).WithRateLimit(config.RateLimit, 1)
	}

	config.Log.Info("reporter.New: created registry, controller and trigger")
	return r, nil
}

// Start runs the tests once, or starts the trigger endpoint in serve mode.
// Start implements the cliapp.Lifecycle interface.
func (r *reporter) Start(ctx context.Context) error {
	r.running.Store(true)
	if r.config.Service != nil {
		r.config.Service.Healthz.SetRunning(r.resource.Running)
		r.config.Service.Start(ctx)
	}

	if r.server != nil {
		r.config.Log.Info("Starting op-reporter in serve mode", "addr", r.config.TriggerAddr)
		if err := r.server.Start(r.config.TriggerAddr); err != nil {
			return NewRuntimeError(fmt.Errorf("failed to start trigger server: %w", err))
		}
		return nil
	}

	r.config.Log.Info("Starting op-reporter in run-once mode")
	seed, err := r.resource.Run(ctx, trigger.Request{
		Filters:  r.config.Filters,
		Seed:     r.config.Seed,
		Category: r.config.Category,
	})
	if err != nil {
		r.config.Log.Error("Runtime error running tests", "error", err)
		return NewRuntimeError(err)
	}

	if run := r.LastRun(); run != nil {
		if _, failed := run.Stats(); failed > 0 {
			r.config.Log.Warn("Run-once test run completed with failures, returning exit code 1", "seed", seed)
			return NewTestFailureError(run.ID, failed)
		}
	}

	r.config.Log.Info("Tests completed, exiting (run-once mode)", "seed", seed)
	if r.shutdownCallback != nil {
		go r.shutdownCallback(nil)
	}
	return nil
}

// Stop implements the cliapp.Lifecycle interface.
func (r *reporter) Stop(ctx context.Context) error {
	r.config.Log.Info("Stopping op-reporter")
	if !r.running.Swap(false) {
		r.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	var errs []error
	if r.server != nil {
		errs = append(errs, r.server.Stop(ctx))
	}
	errs = append(errs, r.sinks.Close())
	if r.config.Service != nil {
		r.config.Service.Shutdown()
	}

	r.config.Log.Info("op-reporter stopped successfully")
	return errors.Join(errs...)
}

// Stopped implements the cliapp.Lifecycle interface.
func (r *reporter) Stopped() bool {
	return !r.running.Load()
}

// LastRun returns the most recent finalized run, if any
func (r *reporter) LastRun() *runner.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun
}

func (r *reporter) onRunEnd(run *runner.Run, report runner.DispatchReport) {
	r.mu.Lock()
	r.lastRun = run
	r.mu.Unlock()

	r.summary.Format(run, report)
	passed, failed := run.Stats()
	r.config.Log.Info("Test run completed", "run_id", run.ID, "status", run.Status(), "passed", passed, "failed", failed)
}
