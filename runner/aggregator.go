package runner

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-reporter/config"
	"github.com/ethereum-optimism/infra/op-reporter/metrics"
	"github.com/ethereum-optimism/infra/op-reporter/resolver"
	"github.com/ethereum-optimism/infra/op-reporter/types"
)

// Reserved data keys seeded on every descriptor
const (
	DataPackage  = "package"
	DataClass    = "class"
	DataMethod   = "method"
	DataRollback = "rollback"
)

// Aggregator collects completed tests into the current Run
type Aggregator struct {
	cfg      *config.Config
	log      log.Logger
	category string
	now      func() time.Time

	mu  sync.Mutex
	run *Run
}

// NewAggregator creates an aggregator. category is the listener default used
// when neither the test nor the configuration provides one.
func NewAggregator(cfg *config.Config, category string, logger log.Logger) *Aggregator {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	return &Aggregator{
		cfg:      cfg,
		log:      logger,
		category: category,
		now:      time.Now,
	}
}

// Category returns the effective category of runs collected by this aggregator
func (a *Aggregator) Category() string {
	return resolver.Category("", "", a.cfg.Category, a.category)
}

// Start opens a new run. A run still collecting is discarded.
func (a *Aggregator) Start() {
	if a.cfg.Disabled {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.run != nil && a.run.Len() > 0 {
		a.log.Warn("Discarding unfinished run", "run_id", a.run.ID, "results", a.run.Len())
	}
	a.run = a.newRun()
}

// OnTestEnd records the outcome of a completed candidate. Candidates without
// a declaration or with a blank key are logged and skipped.
func (a *Aggregator) OnTestEnd(c *types.Candidate) {
	if a.cfg.Disabled || c == nil {
		return
	}

	if c.Declaration == nil {
		a.log.Warn("Test declaration is missing", "test", c.Name(), "package", c.Package)
		metrics.RecordSkipped(metrics.SkipMissingMetadata)
		return
	}
	if strings.TrimSpace(c.Declaration.Key) == "" {
		a.log.Warn("Test declaration is present but the key is not configured", "test", c.Name(), "package", c.Package)
		metrics.RecordSkipped(metrics.SkipEmptyKey)
		return
	}

	descriptor := a.describe(c)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.run == nil {
		a.run = a.newRun()
	}
	if err := a.run.Append(descriptor); err != nil {
		a.log.Warn("Dropping test result", "test", c.Name(), "run_id", a.run.ID, "err", err)
		return
	}
	metrics.RecordAggregated(descriptor.Status())
}

// Finish finalizes the current run and hands it over to the caller. The
// aggregator keeps no reference to it; the next result starts a new run.
func (a *Aggregator) Finish() *Run {
	a.mu.Lock()
	defer a.mu.Unlock()
	run := a.run
	a.run = nil
	if run == nil {
		return nil
	}
	category := a.Category()
	run.Category = category
	run.finalize(a.now(), a.cfg.RunUID(category, run.ProjectAPIID, run.ProjectVersion))
	return run
}

func (a *Aggregator) newRun() *Run {
	run := NewRun(a.now())
	run.ProjectAPIID = a.cfg.ProjectAPIID
	run.ProjectVersion = a.cfg.ProjectVersion
	run.Group = a.cfg.Group
	return run
}

func (a *Aggregator) describe(c *types.Candidate) types.TestDescriptor {
	decl := c.Declaration

	end := c.EndTime
	if end.IsZero() {
		end = a.now()
	}

	return types.TestDescriptor{
		Key:            decl.Key,
		Name:           resolver.Name(c),
		Category:       resolver.CategoryOf(decl, c.GroupDeclaration, a.cfg.Category, a.category),
		Tags:           resolver.Tags(a.cfg.Tags, decl, c.GroupDeclaration),
		Tickets:        resolver.Tickets(a.cfg.Tickets, decl, c.GroupDeclaration),
		Flags:          types.FlagsValue(decl.Flags),
		Data:           a.data(c),
		Passed:         c.Passed,
		Message:        c.Message,
		EndTimestamp:   end.UnixMilli(),
		DurationMillis: c.Duration.Milliseconds(),
	}
}

// data copies the caller entries first, then writes the reserved keys so
// they always hold the authoritative values.
func (a *Aggregator) data(c *types.Candidate) *types.Data {
	data := types.NewData()
	if extra := c.Data(); extra != nil {
		for pair := extra.Oldest(); pair != nil; pair = pair.Next() {
			data.Set(pair.Key, pair.Value)
		}
	}

	rollback := !c.NoRollback && !types.HasFlag(c.Declaration.Flags, types.FlagNoRollback)
	seeded := [][2]string{
		{DataPackage, c.Package},
		{DataClass, c.Group},
		{DataMethod, c.Method},
		{DataRollback, strconv.FormatBool(rollback)},
	}
	for _, kv := range seeded {
		if old, present := data.Set(kv[0], kv[1]); present && old != kv[1] {
			a.log.Warn("Reserved data key overrides test data", "test", c.Name(), "key", kv[0], "dropped", old)
		}
	}
	return data
}
