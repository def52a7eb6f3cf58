package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-reporter/config"
	"github.com/ethereum-optimism/infra/op-reporter/metrics"
	"github.com/ethereum-optimism/infra/op-reporter/types"
)

// RunObserver is notified with every run handed to the dispatcher, after dispatch.
type RunObserver func(run *Run, report DispatchReport)

// Config holds configuration for creating a new Listener
type Config struct {
	Reporter *config.Config
	Log      log.Logger
	Category string // listener default category
	Persist  Sink
	Publish  Sink
	Observer RunObserver
}

// Listener is the callback surface a host drives during a run
type Listener struct {
	cfg        *config.Config
	log        log.Logger
	aggregator *Aggregator
	dispatcher *Dispatcher
	observer   RunObserver
}

// NewListener creates a new listener
func NewListener(cfg Config) (*Listener, error) {
	if cfg.Reporter == nil {
		return nil, errors.New("reporter configuration is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Listener{
		cfg:        cfg.Reporter,
		log:        cfg.Log,
		aggregator: NewAggregator(cfg.Reporter, cfg.Category, cfg.Log),
		dispatcher: NewDispatcher(cfg.Reporter, cfg.Persist, cfg.Publish, cfg.Log),
		observer:   cfg.Observer,
	}, nil
}

// TestRunStart opens a new run
func (l *Listener) TestRunStart(ctx context.Context) {
	if l.cfg.Disabled {
		return
	}
	l.aggregator.Start()
}

// TestEnd records one completed test
func (l *Listener) TestEnd(ctx context.Context, c *types.Candidate) {
	if l.cfg.Disabled {
		return
	}
	l.aggregator.OnTestEnd(c)
}

// TestRunEnd finalizes the current run and dispatches it
func (l *Listener) TestRunEnd(ctx context.Context) {
	if l.cfg.Disabled {
		return
	}
	run := l.aggregator.Finish()
	if run == nil {
		l.log.Debug("No run to dispatch")
		return
	}
	passed, failed := run.Stats()
	metrics.RecordRun(run.ID, passed, failed)

	report := l.dispatcher.OnRunEnd(context.WithoutCancel(ctx), run)
	l.log.Info("Test run finalized", "run_id", run.ID, "results", run.Len(), "passed", passed, "failed", failed, "payload", report.Payload != nil)
	if err := l.notify(run, report); err != nil {
		l.log.Warn("Run observer failed", "run_id", run.ID, "err", err)
		metrics.RecordErrorDetails("run observer failed", err)
	}
}

func (l *Listener) notify(run *Run, report DispatchReport) (err error) {
	if l.observer == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panicked: %v", r)
		}
	}()
	l.observer(run, report)
	return nil
}
