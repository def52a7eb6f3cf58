package types

import (
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Data is an insertion-ordered string mapping attached to a test.
type Data = orderedmap.OrderedMap[string, string]

// NewData creates an empty Data mapping
func NewData() *Data {
	return orderedmap.New[string, string]()
}

// Candidate is a test unit known to the host. The host fills in the outcome
// fields once the test has been executed.
type Candidate struct {
	Package string // Go import path or relative package directory
	Group   string // Simple name of the enclosing suite/class
	Method  string // Test function name

	// Runnable is false when the test is disabled at declaration level.
	Runnable   bool
	NoRollback bool

	Declaration      *Declaration
	GroupDeclaration *GroupDeclaration

	data *Data

	Passed   bool
	Message  string
	EndTime  time.Time
	Duration time.Duration
}

// NewCandidate creates a runnable candidate for the given test function
func NewCandidate(pkg, group, method string) *Candidate {
	return &Candidate{
		Package:  pkg,
		Group:    group,
		Method:   method,
		Runnable: true,
	}
}

// Name returns the qualified identity of the candidate used in diagnostics.
func (c *Candidate) Name() string {
	if c.Group == "" {
		return c.Method
	}
	return c.Group + "." + c.Method
}

// AddData records a free-form entry to be reported with the test.
func (c *Candidate) AddData(key, value string) *Candidate {
	if c.data == nil {
		c.data = NewData()
	}
	c.data.Set(key, value)
	return c
}

// Data returns the caller supplied entries, or nil when there are none.
func (c *Candidate) Data() *Data {
	return c.data
}

// Pass marks the candidate as passed at the given time.
func (c *Candidate) Pass(end time.Time, duration time.Duration) *Candidate {
	c.Passed = true
	c.Message = ""
	c.EndTime = end
	c.Duration = duration
	return c
}

// Fail marks the candidate as failed with a diagnostic message.
func (c *Candidate) Fail(end time.Time, duration time.Duration, message string) *Candidate {
	c.Passed = false
	c.Message = message
	c.EndTime = end
	c.Duration = duration
	return c
}
