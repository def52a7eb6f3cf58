// Package exitcodes defines the exit codes of op-reporter.
package exitcodes

// A run-once invocation exits with:
//
// * Success (0) when every reported test passed
// * TestFailure (1) when at least one reported test failed
// * RuntimeErr (2) for configuration errors, discovery failures and panics
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
