package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-reporter/config"
	"github.com/ethereum-optimism/infra/op-reporter/metrics"
	"github.com/ethereum-optimism/infra/op-reporter/types"
)

var (
	// ErrSinkNotConfigured is reported when a sink is enabled but none was provided
	ErrSinkNotConfigured = errors.New("sink enabled but not configured")
)

// Sink stores or transmits a payload
type Sink interface {
	Name() string
	Dispatch(ctx context.Context, payload *types.Payload) error
}

// SinkResult is the outcome of one sink call
type SinkResult struct {
	Sink string
	Err  error
}

// DispatchReport describes what happened at run end. Payload is nil when no
// payload was built.
type DispatchReport struct {
	Payload *types.Payload
	Results []SinkResult
}

// Failed reports whether any sink call failed
func (r DispatchReport) Failed() bool {
	for _, res := range r.Results {
		if res.Err != nil {
			return true
		}
	}
	return false
}

// Dispatcher routes finalized runs to the persist and publish sinks
type Dispatcher struct {
	cfg     *config.Config
	log     log.Logger
	persist Sink
	publish Sink
	tracer  trace.Tracer
}

// NewDispatcher creates a dispatcher. Either sink may be nil when the
// corresponding feature is disabled.
func NewDispatcher(cfg *config.Config, persist, publish Sink, logger log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	return &Dispatcher{
		cfg:     cfg,
		log:     logger,
		persist: persist,
		publish: publish,
		tracer:  otel.Tracer("op-reporter/runner"),
	}
}

// OnRunEnd builds one payload from the run and hands it to every enabled sink
// in order, persist first. Sink failures are logged and reported, never
// returned. Cancellation of ctx does not stop the dispatch of a finished run;
// each sink call is bounded by the publish timeout instead.
func (d *Dispatcher) OnRunEnd(ctx context.Context, run *Run) DispatchReport {
	var report DispatchReport
	if d.cfg.Disabled || run == nil || run.Len() == 0 {
		return report
	}
	if !d.cfg.Dispatching() {
		d.log.Debug("Neither save nor publish is enabled, skipping dispatch", "run_id", run.ID)
		return report
	}
	if !run.claim() {
		d.log.Warn("Run was already dispatched", "run_id", run.ID)
		return report
	}

	ctx, span := d.tracer.Start(context.WithoutCancel(ctx), "dispatch run", trace.WithAttributes(
		attribute.String("run_id", run.ID),
		attribute.Int("results", run.Len()),
	))
	defer span.End()

	payload := NewPayload(run)
	metrics.RecordPayload()
	report.Payload = payload

	if d.cfg.Save {
		report.Results = append(report.Results, d.dispatch(ctx, "save", d.persist, payload))
	}
	if d.cfg.Publish {
		report.Results = append(report.Results, d.dispatch(ctx, "publish", d.publish, payload))
	}
	if report.Failed() {
		span.SetStatus(codes.Error, "one or more sinks failed")
	}
	return report
}

func (d *Dispatcher) dispatch(ctx context.Context, action string, sink Sink, payload *types.Payload) (res SinkResult) {
	res.Sink = action
	if sink == nil {
		res.Err = ErrSinkNotConfigured
		d.log.Warn("Unable to "+action+" the payload", "run_id", payload.RunID, "err", res.Err)
		metrics.RecordSinkDispatch(action, res.Err)
		return res
	}
	res.Sink = sink.Name()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout())
	defer cancel()
	ctx, span := d.tracer.Start(ctx, action+" payload", trace.WithAttributes(attribute.String("sink", res.Sink)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("sink %s panicked: %v", res.Sink, r)
		}
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			d.log.Warn("Unable to "+action+" the payload", "sink", res.Sink, "run_id", payload.RunID, "err", res.Err)
		} else {
			d.log.Info("Payload dispatched", "sink", res.Sink, "run_id", payload.RunID, "results", len(payload.TestRun.Results))
		}
		metrics.RecordSinkDispatch(res.Sink, res.Err)
	}()

	res.Err = sink.Dispatch(ctx, payload)
	return res
}

// NewPayload snapshots a finalized run
func NewPayload(run *Run) *types.Payload {
	return &types.Payload{
		Version: types.PayloadVersion,
		RunID:   run.ID,
		TestRun: types.TestRunPayload{
			ProjectAPIID:   run.ProjectAPIID,
			ProjectVersion: run.ProjectVersion,
			EndTimestamp:   run.EndTime.UnixMilli(),
			DurationMillis: run.Duration().Milliseconds(),
			Group:          run.Group,
			UID:            run.UID,
			Results:        run.Results(),
		},
	}
}
