package metrics

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/op-reporter/types"
)

const (
	MetricsNamespace = "op_reporter"
)

// Skip reasons recorded by RecordSkipped
const (
	SkipMissingMetadata = "missing_metadata"
	SkipEmptyKey        = "empty_key"
	SkipNotFound        = "not_found"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	filterDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "filter_decisions_total",
		Help:      "Count of filter decisions by outcome",
	}, []string{
		"result",
	})

	testsAggregatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_aggregated_total",
		Help:      "Count of test outcomes added to a run",
	}, []string{
		"result",
	})

	testsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_skipped_total",
		Help:      "Count of test outcomes not aggregated",
	}, []string{
		"reason",
	})

	payloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "payloads_total",
		Help:      "Count of payloads built at run end",
	})

	sinkDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "sink_dispatch_total",
		Help:      "Count of payload dispatches per sink and outcome",
	}, []string{
		"sink",
		"result",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Number of results per run and outcome",
	}, []string{
		"run_id",
		"result",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordFilterDecision counts one runnable/not-runnable decision
func RecordFilterDecision(runnable bool) {
	result := "excluded"
	if runnable {
		result = "runnable"
	}
	filterDecisionsTotal.WithLabelValues(result).Inc()
}

// RecordAggregated counts one test outcome added to a run
func RecordAggregated(status types.TestStatus) {
	testsAggregatedTotal.WithLabelValues(string(status)).Inc()
}

// RecordSkipped counts one test outcome dropped before aggregation
func RecordSkipped(reason string) {
	if Debug {
		log.Debug("metric inc",
			"m", "tests_skipped_total",
			"reason", reason,
		)
	}
	testsSkippedTotal.WithLabelValues(reason).Inc()
}

// RecordPayload counts one payload handed to the sinks
func RecordPayload() {
	payloadsTotal.Inc()
}

// RecordSinkDispatch counts one sink call and its outcome
func RecordSinkDispatch(sink string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
		RecordErrorDetails("sink."+sink, err)
	}
	sinkDispatchTotal.WithLabelValues(sink, result).Inc()
}

// RecordRun publishes the pass/fail totals of a finalized run
func RecordRun(runID string, passed, failed int) {
	runResults.WithLabelValues(runID, string(types.TestStatusPass)).Set(float64(passed))
	runResults.WithLabelValues(runID, string(types.TestStatusFail)).Set(float64(failed))
}
