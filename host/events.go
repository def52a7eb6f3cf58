package host

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
)

// test2json actions
const (
	ActionStart  = "start"
	ActionRun    = "run"
	ActionPass   = "pass"
	ActionFail   = "fail"
	ActionSkip   = "skip"
	ActionOutput = "output"
)

// TestEvent is one line of `go test -json` output
type TestEvent struct {
	Time    time.Time
	Action  string
	Package string
	Test    string
	Elapsed float64
	Output  string
}

// Outcome is the final state of one top-level test
type Outcome struct {
	Action   string // pass, fail or skip
	End      time.Time
	Duration time.Duration
	Output   string
}

// Passed reports whether the test passed
func (o *Outcome) Passed() bool { return o.Action == ActionPass }

// Reportable reports whether the outcome is a pass or a failure
func (o *Outcome) Reportable() bool {
	return o.Action == ActionPass || o.Action == ActionFail
}

// Message returns the cleaned output of a failed test
func (o *Outcome) Message() string {
	if o.Action != ActionFail {
		return ""
	}
	return o.Output
}

// ParseEvents folds test2json output into one Outcome per top-level test.
// Lines that are not JSON, package level events and subtests are ignored,
// though subtest output is kept with its parent. Lines have no length limit.
func ParseEvents(output []byte) map[string]*Outcome {
	outcomes := make(map[string]*Outcome)
	starts := make(map[string]time.Time)
	var messages = make(map[string]*strings.Builder)

	for line := range bytes.Lines(output) {
		var event TestEvent
		if err := json.Unmarshal(line, &event); err != nil || event.Test == "" {
			continue
		}

		name, _, subtest := strings.Cut(event.Test, "/")
		switch event.Action {
		case ActionRun, ActionStart:
			if !subtest {
				starts[name] = event.Time
			}
		case ActionOutput:
			appendOutput(messages, name, event.Output)
		case ActionPass, ActionFail, ActionSkip:
			if subtest {
				continue
			}
			o := &Outcome{Action: event.Action, End: event.Time}
			if start, ok := starts[name]; ok && !event.Time.IsZero() && !event.Time.Before(start) {
				o.Duration = event.Time.Sub(start)
			} else if event.Elapsed > 0 {
				o.Duration = time.Duration(event.Elapsed * float64(time.Second))
			}
			outcomes[name] = o
		}
	}

	for name, o := range outcomes {
		if msg, ok := messages[name]; ok {
			o.Output = strings.TrimSpace(stripansi.Strip(msg.String()))
		}
	}
	return outcomes
}

func appendOutput(messages map[string]*strings.Builder, name, output string) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" || strings.HasPrefix(trimmed, "=== RUN") ||
		strings.HasPrefix(trimmed, "=== PAUSE") || strings.HasPrefix(trimmed, "=== CONT") {
		return
	}
	b, ok := messages[name]
	if !ok {
		b = &strings.Builder{}
		messages[name] = b
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(strings.TrimRight(output, "\n"))
}
