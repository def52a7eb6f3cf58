package types

// PayloadVersion identifies the payload schema understood by collectors.
const PayloadVersion = "1"

// TestRunPayload carries the run level metadata and results of a Payload.
type TestRunPayload struct {
	ProjectAPIID   string           `json:"projectApiId"`
	ProjectVersion string           `json:"projectVersion"`
	EndTimestamp   int64            `json:"endDate"`
	DurationMillis int64            `json:"duration"`
	Group          string           `json:"group,omitempty"`
	UID            string           `json:"uid"`
	Results        []TestDescriptor `json:"results"`
}

// Payload is the dispatch-ready snapshot of a finalized run. It is built once
// and must not be modified by sinks.
type Payload struct {
	Version string         `json:"version"`
	RunID   string         `json:"-"`
	TestRun TestRunPayload `json:"testRun"`
}
