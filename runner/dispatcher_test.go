package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-reporter/config"
	"github.com/ethereum-optimism/infra/op-reporter/types"
)

type recordingSink struct {
	name  string
	err   error
	panic bool

	mu       sync.Mutex
	payloads []*types.Payload
	ctxErrs  []error
	bounded  []bool
	order    *[]string
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Dispatch(ctx context.Context, p *types.Payload) error {
	s.mu.Lock()
	s.payloads = append(s.payloads, p)
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	_, hasDeadline := ctx.Deadline()
	s.bounded = append(s.bounded, hasDeadline)
	if s.order != nil {
		*s.order = append(*s.order, s.name)
	}
	s.mu.Unlock()
	if s.panic {
		panic("sink exploded")
	}
	return s.err
}

func (s *recordingSink) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func dispatchConfig() *config.Config {
	cfg := config.Default()
	cfg.Save = true
	cfg.Publish = true
	cfg.ServerURL = "http://collector.invalid"
	cfg.ProjectAPIID = "payments"
	cfg.ProjectVersion = "1.4.0"
	return cfg
}

func finishedRun(t *testing.T, cfg *config.Config, n int) *Run {
	t.Helper()
	agg := NewAggregator(cfg, "", log.NewLogger(log.DiscardHandler()))
	agg.Start()
	for i := 0; i < n; i++ {
		c := declared("TestDummyMethod", "PAY-1")
		if i%2 == 0 {
			c.Pass(time.Now(), time.Second)
		} else {
			c.Fail(time.Now(), time.Second, "boom")
		}
		agg.OnTestEnd(c)
	}
	return agg.Finish()
}

func TestDispatcher_SaveThenPublish(t *testing.T) {
	cfg := dispatchConfig()
	var order []string
	persist := &recordingSink{name: "file", order: &order}
	publish := &recordingSink{name: "http", order: &order}
	d := NewDispatcher(cfg, persist, publish, log.NewLogger(log.DiscardHandler()))

	run := finishedRun(t, cfg, 2)
	report := d.OnRunEnd(context.Background(), run)

	require.NotNil(t, report.Payload)
	assert.False(t, report.Failed())
	assert.Equal(t, []string{"file", "http"}, order)
	require.Equal(t, 1, persist.calls())
	require.Equal(t, 1, publish.calls())
	assert.Same(t, persist.payloads[0], publish.payloads[0])

	p := report.Payload
	assert.Equal(t, types.PayloadVersion, p.Version)
	assert.Equal(t, run.ID, p.RunID)
	assert.Equal(t, "payments", p.TestRun.ProjectAPIID)
	assert.Equal(t, "1.4.0", p.TestRun.ProjectVersion)
	assert.Equal(t, run.UID, p.TestRun.UID)
	assert.Equal(t, run.EndTime.UnixMilli(), p.TestRun.EndTimestamp)
	assert.Len(t, p.TestRun.Results, 2)
}

func TestDispatcher_EmptyRun(t *testing.T) {
	cfg := dispatchConfig()
	persist := &recordingSink{name: "file"}
	publish := &recordingSink{name: "http"}
	d := NewDispatcher(cfg, persist, publish, log.NewLogger(log.DiscardHandler()))

	report := d.OnRunEnd(context.Background(), finishedRun(t, cfg, 0))
	assert.Nil(t, report.Payload)
	assert.Empty(t, report.Results)
	assert.Zero(t, persist.calls())
	assert.Zero(t, publish.calls())

	report = d.OnRunEnd(context.Background(), nil)
	assert.Nil(t, report.Payload)
}

func TestDispatcher_NothingEnabled(t *testing.T) {
	cfg := dispatchConfig()
	cfg.Save = false
	cfg.Publish = false
	persist := &recordingSink{name: "file"}
	publish := &recordingSink{name: "http"}
	d := NewDispatcher(cfg, persist, publish, log.NewLogger(log.DiscardHandler()))

	report := d.OnRunEnd(context.Background(), finishedRun(t, cfg, 1))
	assert.Nil(t, report.Payload)
	assert.Zero(t, persist.calls())
	assert.Zero(t, publish.calls())
}

func TestDispatcher_OnlyEnabledSinks(t *testing.T) {
	cfg := dispatchConfig()
	cfg.Save = false
	persist := &recordingSink{name: "file"}
	publish := &recordingSink{name: "http"}
	d := NewDispatcher(cfg, persist, publish, log.NewLogger(log.DiscardHandler()))

	report := d.OnRunEnd(context.Background(), finishedRun(t, cfg, 1))
	require.NotNil(t, report.Payload)
	assert.Zero(t, persist.calls())
	assert.Equal(t, 1, publish.calls())
	require.Len(t, report.Results, 1)
	assert.Equal(t, "http", report.Results[0].Sink)
}

func TestDispatcher_PersistFailureDoesNotStopPublish(t *testing.T) {
	cfg := dispatchConfig()
	logger, logs := testlog.CaptureLogger(t, log.LevelWarn)
	persist := &recordingSink{name: "file", err: errors.New("disk full")}
	publish := &recordingSink{name: "http"}
	d := NewDispatcher(cfg, persist, publish, logger)

	report := d.OnRunEnd(context.Background(), finishedRun(t, cfg, 1))
	require.NotNil(t, report.Payload)
	assert.True(t, report.Failed())
	require.Len(t, report.Results, 2)
	assert.EqualError(t, report.Results[0].Err, "disk full")
	assert.NoError(t, report.Results[1].Err)
	assert.Equal(t, 1, publish.calls())
	require.NotNil(t, logs.FindLog(testlog.NewMessageFilter("Unable to save the payload")))
}

func TestDispatcher_PanickingSink(t *testing.T) {
	cfg := dispatchConfig()
	persist := &recordingSink{name: "file", panic: true}
	publish := &recordingSink{name: "http"}
	d := NewDispatcher(cfg, persist, publish, log.NewLogger(log.DiscardHandler()))

	var report DispatchReport
	require.NotPanics(t, func() {
		report = d.OnRunEnd(context.Background(), finishedRun(t, cfg, 1))
	})
	require.Len(t, report.Results, 2)
	require.Error(t, report.Results[0].Err)
	assert.Contains(t, report.Results[0].Err.Error(), "sink exploded")
	assert.Equal(t, 1, publish.calls())
}

func TestDispatcher_MissingSink(t *testing.T) {
	cfg := dispatchConfig()
	publish := &recordingSink{name: "http"}
	d := NewDispatcher(cfg, nil, publish, log.NewLogger(log.DiscardHandler()))

	report := d.OnRunEnd(context.Background(), finishedRun(t, cfg, 1))
	require.Len(t, report.Results, 2)
	assert.ErrorIs(t, report.Results[0].Err, ErrSinkNotConfigured)
	assert.Equal(t, 1, publish.calls())
}

func TestDispatcher_RunDispatchedOnce(t *testing.T) {
	cfg := dispatchConfig()
	persist := &recordingSink{name: "file"}
	publish := &recordingSink{name: "http"}
	d := NewDispatcher(cfg, persist, publish, log.NewLogger(log.DiscardHandler()))

	run := finishedRun(t, cfg, 1)
	first := d.OnRunEnd(context.Background(), run)
	second := d.OnRunEnd(context.Background(), run)
	assert.NotNil(t, first.Payload)
	assert.Nil(t, second.Payload)
	assert.Equal(t, 1, persist.calls())
	assert.Equal(t, 1, publish.calls())
}

func TestDispatcher_Disabled(t *testing.T) {
	cfg := dispatchConfig()
	run := finishedRun(t, cfg, 1)
	cfg.Disabled = true
	persist := &recordingSink{name: "file"}
	d := NewDispatcher(cfg, persist, nil, log.NewLogger(log.DiscardHandler()))

	report := d.OnRunEnd(context.Background(), run)
	assert.Nil(t, report.Payload)
	assert.Zero(t, persist.calls())
}

func TestDispatcher_CanceledContext(t *testing.T) {
	cfg := dispatchConfig()
	persist := &recordingSink{name: "file"}
	publish := &recordingSink{name: "http"}
	run := finishedRun(t, cfg, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := NewDispatcher(cfg, persist, publish, log.NewLogger(log.DiscardHandler())).OnRunEnd(ctx, run)

	require.NotNil(t, report.Payload)
	assert.False(t, report.Failed())
	for _, sink := range []*recordingSink{persist, publish} {
		require.Equal(t, 1, sink.calls())
		assert.NoError(t, sink.ctxErrs[0], "a finished run is dispatched after cancellation")
		assert.True(t, sink.bounded[0], "every sink call carries the publish timeout")
	}
}
