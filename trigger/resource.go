// Package trigger starts test runs on demand. A Resource turns a request
// into filters, listeners and a seed and hands them to the host controller;
// Server exposes it over HTTP.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-reporter/config"
	"github.com/ethereum-optimism/infra/op-reporter/filter"
	"github.com/ethereum-optimism/infra/op-reporter/host"
	"github.com/ethereum-optimism/infra/op-reporter/metrics"
	"github.com/ethereum-optimism/infra/op-reporter/runner"
)

const (
	// FilterName is the key of the token filter in the filters map
	FilterName = "reporterFilter"
	// ListenerName is the key of the reporting listener in the listeners map
	ListenerName = "reporterListener"
)

var (
	// ErrRunInProgress is returned when a run is requested while another one is executing
	ErrRunInProgress = errors.New("a test run is already in progress")
	// ErrInvalidOptions is returned when the options hook rejects the request options
	ErrInvalidOptions = errors.New("invalid options")
)

// Controller executes a run
type Controller interface {
	Run(ctx context.Context, filters map[string]host.Filter, listeners map[string]host.Listener, seed int64) (int64, error)
}

// Hooks let an embedding application extend each run
type Hooks struct {
	// ParseOptions receives the raw options value of the request
	ParseOptions func(options string) error
	// AdditionalFilters returns tokens added to the request filters
	AdditionalFilters func() []string
	// AdditionalListeners returns listeners registered next to the reporting one
	AdditionalListeners func(category string) map[string]host.Listener
}

// Request describes a run to start
type Request struct {
	Filters  string // comma separated filter tokens
	Seed     *int64
	Category string
	Options  string
}

// Config holds configuration for creating a new Resource
type Config struct {
	Log        log.Logger
	Reporter   *config.Config
	Controller Controller
	Persist    runner.Sink
	Publish    runner.Sink
	Observer   runner.RunObserver
	Hooks      Hooks
}

// Resource starts runs, one at a time
type Resource struct {
	cfg     Config
	log     log.Logger
	now     func() time.Time
	running atomic.Bool
}

// NewResource creates a new resource
func NewResource(cfg Config) (*Resource, error) {
	if cfg.Reporter == nil {
		return nil, errors.New("reporter configuration is required")
	}
	if cfg.Controller == nil {
		return nil, errors.New("controller is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Resource{cfg: cfg, log: cfg.Log, now: time.Now}, nil
}

// Seed picks the generator seed: the configured seed wins over the request
// seed, and the current time in milliseconds is used when neither is set.
func (r *Resource) Seed(requested *int64) int64 {
	if r.cfg.Reporter.GeneratorSeed != nil {
		return *r.cfg.Reporter.GeneratorSeed
	}
	if requested != nil {
		return *requested
	}
	return r.now().UnixMilli()
}

// Run executes one run and returns the seed the controller used
func (r *Resource) Run(ctx context.Context, req Request) (int64, error) {
	if !r.running.CompareAndSwap(false, true) {
		return 0, ErrRunInProgress
	}
	defer r.running.Store(false)

	if hook := r.cfg.Hooks.ParseOptions; hook != nil {
		if err := hook(req.Options); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
		}
	}
	r.log.Debug("Run requested", "filters", req.Filters, "seed", req.Seed, "category", req.Category)

	tokens := filter.ParseTokens(req.Filters)
	if hook := r.cfg.Hooks.AdditionalFilters; hook != nil {
		tokens = append(tokens, hook()...)
	}

	listener, err := runner.NewListener(runner.Config{
		Reporter: r.cfg.Reporter,
		Log:      r.log,
		Category: req.Category,
		Persist:  r.cfg.Persist,
		Publish:  r.cfg.Publish,
		Observer: r.cfg.Observer,
	})
	if err != nil {
		return 0, err
	}

	filters := map[string]host.Filter{FilterName: filter.New(tokens)}
	listeners := map[string]host.Listener{ListenerName: listener}
	if hook := r.cfg.Hooks.AdditionalListeners; hook != nil {
		maps.Copy(listeners, hook(req.Category))
	}

	seed, err := r.cfg.Controller.Run(ctx, filters, listeners, r.Seed(req.Seed))
	if err != nil {
		metrics.RecordErrorDetails("run", err)
		return seed, fmt.Errorf("test run failed: %w", err)
	}
	r.log.Info("Generator seed", "seed", seed)
	return seed, nil
}

// Running reports whether a run is executing
func (r *Resource) Running() bool {
	return r.running.Load()
}
