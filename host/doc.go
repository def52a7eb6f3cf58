// Package host drives test execution for the reporter. A Controller
// discovers the declared tests, asks every Filter whether a candidate may
// run, executes the selected tests with `go test -json` and reports each
// outcome to the registered Listeners.
//
// All listener callbacks are made on the goroutine that called Run.
package host
