package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"os/exec"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-reporter/metrics"
	"github.com/ethereum-optimism/infra/op-reporter/registry"
	"github.com/ethereum-optimism/infra/op-reporter/testlist"
	"github.com/ethereum-optimism/infra/op-reporter/types"
)

const (
	// DefaultGoBinary is the go command used to run tests
	DefaultGoBinary = "go"
	// DefaultTestTimeout bounds a single package run
	DefaultTestTimeout = 10 * time.Minute
)

// Filter decides whether a candidate may run
type Filter interface {
	IsRunnable(c *types.Candidate) bool
}

// Listener receives the lifecycle callbacks of a run
type Listener interface {
	TestRunStart(ctx context.Context)
	TestEnd(ctx context.Context, c *types.Candidate)
	TestRunEnd(ctx context.Context)
}

// Executor runs the named tests of one package and returns test2json output.
// A non-zero exit caused by failing tests is not an error.
type Executor func(ctx context.Context, workDir, pkg string, tests []string) ([]byte, error)

// Discoverer lists the test functions of a package
type Discoverer func(pkg, workDir string) ([]string, error)

// Config holds configuration for creating a new Controller
type Config struct {
	Log      log.Logger
	Registry *registry.Registry
	WorkDir  string
	GoBinary string
	Timeout  time.Duration

	Executor   Executor
	Discoverer Discoverer
}

// Controller runs declared tests and reports their outcomes
type Controller struct {
	log      log.Logger
	registry *registry.Registry
	workDir  string
	timeout  time.Duration
	execute  Executor
	discover Discoverer
	tracer   trace.Tracer
}

// NewController creates a new controller
func NewController(cfg Config) (*Controller, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.GoBinary == "" {
		cfg.GoBinary = DefaultGoBinary
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTestTimeout
	}
	if cfg.Executor == nil {
		cfg.Executor = GoTestExecutor(cfg.GoBinary)
	}
	if cfg.Discoverer == nil {
		cfg.Discoverer = testlist.FindTestFunctions
	}
	return &Controller{
		log:      cfg.Log,
		registry: cfg.Registry,
		workDir:  cfg.WorkDir,
		timeout:  cfg.Timeout,
		execute:  cfg.Executor,
		discover: cfg.Discoverer,
		tracer:   otel.Tracer("op-reporter/host"),
	}, nil
}

// Run executes one test run. Candidates are shuffled with a generator seeded
// from seed, a candidate runs only if every filter accepts it, and each pass
// or failure is reported to every listener. Skipped tests are not reported.
// The seed is returned unchanged.
func (c *Controller) Run(ctx context.Context, filters map[string]Filter, listeners map[string]Listener, seed int64) (int64, error) {
	ctx, span := c.tracer.Start(ctx, "test run", trace.WithAttributes(attribute.Int64("seed", seed)))
	defer span.End()

	ls := sortedValues(listeners)
	fs := sortedValues(filters)

	for _, l := range ls {
		l.TestRunStart(ctx)
	}
	defer func() {
		for _, l := range ls {
			l.TestRunEnd(ctx)
		}
	}()

	candidates, err := c.candidates()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return seed, err
	}
	shuffle(candidates, seed)

	selected := selectRunnable(candidates, fs)
	c.log.Info("Selected tests", "seed", seed, "candidates", len(candidates), "selected", len(selected))
	span.SetAttributes(attribute.Int("selected", len(selected)))

	for _, batch := range byPackage(selected) {
		if err := ctx.Err(); err != nil {
			return seed, err
		}
		c.runPackage(ctx, batch, ls)
	}
	return seed, nil
}

func (c *Controller) candidates() ([]*types.Candidate, error) {
	var out []*types.Candidate
	found := make(map[string]struct{})
	for _, pkg := range c.registry.Packages() {
		names, err := c.discover(pkg, c.workDir)
		if err != nil {
			return nil, fmt.Errorf("failed to discover tests in %s: %w", pkg, err)
		}
		for _, name := range names {
			found[pkg+"."+name] = struct{}{}
			out = append(out, c.registry.Candidate(pkg, name))
		}
	}

	// declarations nothing in the sources matches are never run
	for _, declared := range c.registry.Candidates() {
		if _, ok := found[declared.Package+"."+declared.Method]; !ok {
			c.log.Warn("Declared test not found in sources", "package", declared.Package, "test", declared.Method)
			metrics.RecordSkipped(metrics.SkipNotFound)
		}
	}
	return out, nil
}

func (c *Controller) runPackage(ctx context.Context, batch []*types.Candidate, listeners []Listener) {
	pkg := batch[0].Package
	names := make([]string, 0, len(batch))
	for _, cand := range batch {
		names = append(names, cand.Method)
	}

	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("package %s", pkg), trace.WithAttributes(attribute.Int("tests", len(names))))
	defer span.End()

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	output, err := c.execute(runCtx, c.workDir, pkg, names)
	outcomes := ParseEvents(output)
	if err != nil {
		span.RecordError(err)
		c.log.Error("Failed to run tests", "package", pkg, "err", err)
	}

	for _, cand := range batch {
		o, ok := outcomes[cand.Method]
		if !ok {
			// no result: build failure, timeout or a crashed binary
			msg := "test did not report a result"
			if err != nil {
				msg = fmt.Sprintf("%s: %v", msg, err)
			}
			cand.Fail(time.Now(), time.Since(start), msg)
		} else if !o.Reportable() {
			c.log.Debug("Test skipped", "test", cand.Name(), "package", pkg)
			continue
		} else if o.Passed() {
			cand.Pass(endTime(o), o.Duration)
		} else {
			cand.Fail(endTime(o), o.Duration, o.Message())
		}

		for _, l := range listeners {
			l.TestEnd(ctx, cand)
		}
	}
}

func endTime(o *Outcome) time.Time {
	if o.End.IsZero() {
		return time.Now()
	}
	return o.End
}

// GoTestExecutor runs tests with `go test -json -count=1 -run ^(A|B)$ <pkg>`
func GoTestExecutor(goBinary string) Executor {
	return func(ctx context.Context, workDir, pkg string, tests []string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, goBinary, TestArgs(pkg, tests)...)
		cmd.Dir = workDir
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && stdout.Len() > 0 {
			// failing tests exit non-zero
			err = nil
		}
		if err != nil && stderr.Len() > 0 {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return stdout.Bytes(), err
	}
}

// TestArgs builds the go test arguments selecting exactly tests
func TestArgs(pkg string, tests []string) []string {
	quoted := make([]string, len(tests))
	for i, t := range tests {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return []string{
		"test", "-json", "-count=1",
		"-run", "^(" + strings.Join(quoted, "|") + ")$",
		pkg,
	}
}

func shuffle(cs []*types.Candidate, seed int64) {
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1))
	rng.Shuffle(len(cs), func(i, j int) { cs[i], cs[j] = cs[j], cs[i] })
}

func selectRunnable(cs []*types.Candidate, filters []Filter) []*types.Candidate {
	var out []*types.Candidate
	for _, cand := range cs {
		if !cand.Runnable {
			continue
		}
		ok := true
		for _, f := range filters {
			if !f.IsRunnable(cand) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, cand)
		}
	}
	return out
}

// byPackage splits candidates per package, keeping the shuffled order both
// across and within packages.
func byPackage(cs []*types.Candidate) [][]*types.Candidate {
	index := make(map[string]int)
	var batches [][]*types.Candidate
	for _, cand := range cs {
		i, ok := index[cand.Package]
		if !ok {
			i = len(batches)
			index[cand.Package] = i
			batches = append(batches, nil)
		}
		batches[i] = append(batches[i], cand)
	}
	return batches
}

func sortedValues[T any](m map[string]T) []T {
	out := make([]T, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[k])
	}
	return out
}
