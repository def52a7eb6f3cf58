package reporting

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-reporter/runner"
	"github.com/ethereum-optimism/infra/op-reporter/types"
)

// SummaryFormatter renders a finalized run as a console table
type SummaryFormatter struct {
	out io.Writer
}

// NewSummaryFormatter creates a formatter writing to out
func NewSummaryFormatter(out io.Writer) *SummaryFormatter {
	return &SummaryFormatter{out: out}
}

// Format writes the run summary. Results are listed in completion order.
func (f *SummaryFormatter) Format(run *runner.Run, report runner.DispatchReport) {
	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetTitle(fmt.Sprintf("Test Run %s (%s)", run.ID, formatDuration(run.Duration())))

	t.AppendHeader(table.Row{"Key", "Name", "Category", "Tags", "Duration", "Status", "Message"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Name", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Category", AutoMerge: true},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Message", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, d := range run.Results() {
		t.AppendRow(table.Row{
			d.Key,
			d.Name,
			d.Category,
			fmt.Sprint(d.Tags),
			formatDuration(d.Duration()),
			getResultString(d.Status()),
			d.Message,
		})
	}

	switch run.Status() {
	case types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.TestStatusSkip:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	passed, failed := run.Stats()
	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d passed, %d failed", passed, failed),
		run.Category,
		"",
		formatDuration(run.Duration()),
		getResultString(run.Status()),
		"",
	})
	t.Render()

	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Fprintf(f.out, "%s: %v\n", res.Sink, res.Err)
		} else {
			fmt.Fprintf(f.out, "%s: ok\n", res.Sink)
		}
	}
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	default:
		return "✗ fail"
	}
}
