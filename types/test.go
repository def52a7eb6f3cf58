package types

import "time"

// TestStatus represents the possible states of a test execution
type TestStatus string

const (
	TestStatusPass TestStatus = "pass"
	TestStatusFail TestStatus = "fail"
	TestStatusSkip TestStatus = "skip"
)

// StatusOf maps a boolean outcome to a TestStatus
func StatusOf(passed bool) TestStatus {
	if passed {
		return TestStatusPass
	}
	return TestStatusFail
}

// TestDescriptor is the normalized record of one executed test.
type TestDescriptor struct {
	Key            string   `json:"key"`
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	Tags           []string `json:"tags"`
	Tickets        []string `json:"tickets"`
	Flags          int      `json:"flags"`
	Data           *Data    `json:"data"`
	Passed         bool     `json:"passed"`
	Message        string   `json:"message,omitempty"`
	EndTimestamp   int64    `json:"endDate"`
	DurationMillis int64    `json:"duration"`
}

// Status returns the TestStatus of the descriptor
func (d TestDescriptor) Status() TestStatus {
	return StatusOf(d.Passed)
}

// Duration returns the test duration
func (d TestDescriptor) Duration() time.Duration {
	return time.Duration(d.DurationMillis) * time.Millisecond
}
