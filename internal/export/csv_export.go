package export

import (
	"io"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"linkcheck/internal/crawler"
)

// EntryRow is one referrer of a broken or flagged target. The target columns
// are only filled on the first row of each target; Scanned is on every row.
type EntryRow struct {
	Scanned        string `csv:"Scanned"`
	Target         string `csv:"Target"`
	Classification string `csv:"Classification"`
	Status         string `csv:"Status"`
	Code           string `csv:"Code,omitempty"`
	Kind           string `csv:"Kind"`
	Attempts       string `csv:"Attempts,omitempty"`
	Referrer       string `csv:"Referrer"`
	AnchorText     string `csv:"Anchor Text"`
}

type CSVExporter struct{}

func NewCSVExporter() Exporter {
	return &CSVExporter{}
}

func (e *CSVExporter) Export(w io.Writer, report *crawler.Report) error {
	rows := e.transformData(report)
	return gocsv.Marshal(&rows, w)
}

func (e *CSVExporter) transformData(report *crawler.Report) []EntryRow {
	var scanned string
	if !report.StartedAt.IsZero() {
		scanned = report.StartedAt.UTC().Format(time.RFC3339)
	}
	rows := make([]EntryRow, 0, len(report.Entries))
	for _, entry := range report.Entries {
		head := EntryRow{
			Scanned:        scanned,
			Target:         entry.Target,
			Classification: string(entry.Classification),
			Status:         describe(entry.Status),
			Kind:           string(entry.Kind),
			AnchorText:     first(entry.AnchorTexts),
		}
		if entry.Status.Code > 0 {
			head.Code = strconv.Itoa(entry.Status.Code)
		}
		if entry.Attempts > 0 {
			head.Attempts = strconv.Itoa(entry.Attempts)
		}
		if len(entry.Referrers) == 0 {
			rows = append(rows, head)
			continue
		}
		for i, ref := range entry.Referrers {
			if i == 0 {
				head.Referrer = ref
				rows = append(rows, head)
				continue
			}
			rows = append(rows, EntryRow{Scanned: scanned, Referrer: ref})
		}
	}
	return rows
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
