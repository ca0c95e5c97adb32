package metrics

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/logrusorgru/aurora"
	"github.com/olekukonko/tablewriter"
)

// Stage is one line of a progress table, Counter is the metrics counter it follows.
type Stage struct {
	Title   string
	Counter string
}

// Eta estimates the time left for counter to reach its total, zero when unknown.
func Eta(counter string) time.Duration {
	c, exists := lookup(counter)
	if !exists || c.total <= 0 || c.value >= c.total {
		return 0
	}
	rate := c.rate1s
	if rate <= 0 {
		rate = c.performance(time.Now())
	}
	if rate <= 0 {
		return 0
	}
	left := float64(c.total-c.value) / rate
	return (time.Duration(left * float64(time.Second))).Round(time.Second)
}

// PrintProgress writes a status table with one row per stage.
func PrintProgress(w io.Writer, started time.Time, stages []Stage) {
	fmt.Fprintf(w, "Running for: %s\n", aurora.BrightCyan(time.Since(started).Round(time.Second)))

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Stage", "Done", "Total", "Percent", "Rate 1s", "Avg rate", "ETA"})
	for _, stage := range stages {
		done, total := Get(stage.Counter), GetTotal(stage.Counter)

		totalStr, percent, eta := "-", "-", "-"
		if total > 0 {
			totalStr = humanize.Comma(total)
			percent = fmt.Sprintf("%5.1f%%", 100*float64(done)/float64(total))
			if done >= total {
				eta = "done"
			} else if left := Eta(stage.Counter); left > 0 {
				eta = left.String()
			}
		}

		tw.Append([]string{
			stage.Title,
			humanize.Comma(done),
			totalStr,
			percent,
			fmt.Sprintf("%5.2f", GetRate1s(stage.Counter)),
			fmt.Sprintf("%5.2f", GetPerformance(stage.Counter)),
			eta,
		})
	}
	tw.Render()
}

// ReportProgress prints the progress table every interval until ctx is done.
func ReportProgress(ctx context.Context, w io.Writer, interval time.Duration, stages []Stage) {
	if interval <= 0 {
		return
	}
	started := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			PrintProgress(w, started, stages)
		}
	}
}
