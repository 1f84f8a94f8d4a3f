package export

import (
	"fmt"
	"io"
	"time"

	"github.com/rodaine/table"

	"linkcheck/internal/crawler"
)

type TableExporter struct{}

func NewTableExporter() Exporter {
	return &TableExporter{}
}

// Export prints one row per referrer, grouped under each target, followed by
// the summary line.
func (e *TableExporter) Export(w io.Writer, report *crawler.Report) error {
	if len(report.Entries) > 0 {
		tbl := table.New("Target", "Status", "Kind", "Referrer", "Anchor Text").WithWriter(w)
		for _, entry := range report.Entries {
			status := describe(entry.Status)
			if entry.Classification == crawler.ClassFlagged {
				status = "flagged " + status
			}
			if len(entry.Referrers) == 0 {
				tbl.AddRow(entry.Target, status, entry.Kind, "", first(entry.AnchorTexts))
				continue
			}
			for i, ref := range entry.Referrers {
				if i == 0 {
					tbl.AddRow(entry.Target, status, entry.Kind, ref, first(entry.AnchorTexts))
				} else {
					tbl.AddRow("", "", "", ref, "")
				}
			}
		}
		tbl.Print()
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	s := report.Summary
	_, err := fmt.Fprintf(w, "%d links checked: %d healthy, %d broken, %d skipped, %d flagged; %d pages crawled in %s\n",
		s.Total, s.Healthy, s.Broken, s.Skipped, s.Flagged, s.PagesCrawled, report.Stats.Duration.Round(time.Millisecond))
	if err != nil {
		return err
	}
	if report.Incomplete {
		_, err = fmt.Fprintln(w, "run was interrupted; results are incomplete")
	}
	return err
}
