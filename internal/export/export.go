package export

import (
	"fmt"
	"io"
	"strings"

	"linkcheck/internal/crawler"
)

// Exporter renders a finished report.
type Exporter interface {
	// Export writes report to w.
	Export(w io.Writer, report *crawler.Report) error
}

// New returns the exporter for format: table, csv or json.
func New(format string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "table":
		return NewTableExporter(), nil
	case "csv":
		return NewCSVExporter(), nil
	case "json":
		return NewJSONExporter(), nil
	}
	return nil, fmt.Errorf("unknown report format %q", format)
}

func describe(st crawler.Status) string {
	if st.Message != "" && st.Kind == crawler.StatusNetworkError {
		return st.String() + ": " + st.Message
	}
	return st.String()
}
