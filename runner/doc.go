// Package runner turns the host's per-test callbacks into one reportable run.
//
// The main components are:
//   - Run: the accumulated descriptors of one reporting cycle
//   - Aggregator: builds a TestDescriptor for every completed, declared test
//   - Dispatcher: wraps a finalized Run into a Payload and hands it to the sinks
//   - Listener: the callback surface a host drives, combining the two above
//
// Callbacks are expected on a single logical sequence per run, but the
// aggregation path is locked so concurrent TestEnd calls never lose a result.
// No failure in this package is returned to the host.
package runner
