package ingest

import (
	"fmt"
	"io"

	"github.com/d0rc/geo-locator/metrics"
	"github.com/dustin/go-humanize"
	"github.com/logrusorgru/aurora"
	"github.com/olekukonko/tablewriter"
)

// ProgressStages are the counters LoadImagesIntoDB advances.
var ProgressStages = []metrics.Stage{
	{Title: "checked", Counter: "ingest.checked"},
	{Title: "failed to load", Counter: "ingest.failed"},
	{Title: "embedded", Counter: "ingest.embedded"},
	{Title: "uploaded", Counter: "ingest.uploaded"},
}

func (r *Report) Print(w io.Writer) {
	rate := 0.0
	if r.Duration > 0 {
		rate = float64(r.Embedded) / r.Duration.Seconds()
	}
	_, _ = fmt.Fprintf(w, "Samples: %s, embedded: %s, uploaded: %s, failed: %s, took %s (%s)\n",
		aurora.BrightCyan(humanize.Comma(int64(r.Total))),
		aurora.BrightCyan(humanize.Comma(int64(r.Embedded))),
		aurora.Green(humanize.Comma(int64(r.Uploaded))),
		failedColor(r.Failed),
		r.Duration,
		humanize.SIWithDigits(rate, 2, "img/s"))

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Stage", "Samples"})
	tw.Append([]string{"total", fmt.Sprintf("%d", r.Total)})
	tw.Append([]string{"outside bounds", fmt.Sprintf("%d", r.Clipped)})
	tw.Append([]string{"already stored", fmt.Sprintf("%d", r.Existing)})
	tw.Append([]string{"failed to load", fmt.Sprintf("%d", r.Failed)})
	tw.Append([]string{"embedded", fmt.Sprintf("%d", r.Embedded)})
	tw.Append([]string{"uploaded", fmt.Sprintf("%d", r.Uploaded)})
	tw.Render()
}

func failedColor(failed int) aurora.Value {
	if failed > 0 {
		return aurora.Red(humanize.Comma(int64(failed)))
	}
	return aurora.Green(humanize.Comma(int64(failed)))
}

// PrintCounters dumps every in-process counter with its last per-second rate.
func PrintCounters(w io.Writer) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Counter", "Value", "Rate 1s", "Avg rate"})
	for _, snapshot := range metrics.Snapshots() {
		tw.Append([]string{
			snapshot.Name,
			humanize.Comma(snapshot.Value),
			fmt.Sprintf("%5.2f", snapshot.Rate1s),
			fmt.Sprintf("%5.2f", snapshot.Performance),
		})
	}
	tw.Render()
}
