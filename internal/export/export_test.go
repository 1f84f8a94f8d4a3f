package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gocarina/gocsv"

	"linkcheck/internal/crawler"
)

func sampleReport() *crawler.Report {
	records := []crawler.VisitRecord{
		{URL: "https://example.com/", Mode: crawler.ModeFullPage, Status: crawler.Status{Kind: crawler.StatusSuccess, Code: 200}},
		{
			URL:            "https://example.com/missing.html",
			Mode:           crawler.ModeFullPage,
			Kind:           crawler.KindInternalPage,
			Status:         crawler.Status{Kind: crawler.StatusClientError, Code: 404, Message: "Not Found"},
			DiscoveredFrom: []string{"https://example.com/", "https://example.com/about/"},
			AnchorTexts:    []string{"Old page"},
			AttemptCount:   1,
		},
		{
			URL:            "https://example.org/x",
			Mode:           crawler.ModeExistenceCheck,
			Kind:           crawler.KindExternal,
			Status:         crawler.Status{Kind: crawler.StatusNetworkError, NetworkError: crawler.NetTimeout, Message: "i/o timeout"},
			DiscoveredFrom: []string{"https://example.com/"},
			AttemptCount:   3,
		},
	}
	report := crawler.Finalize(records, crawler.ReportOptions{})
	report.RunID = "run-1"
	report.Seeds = []string{"https://example.com/"}
	report.StartedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	report.FinishedAt = report.StartedAt.Add(3 * time.Second)
	report.Stats.Duration = 3 * time.Second
	return &report
}

func TestNewSelectsExporter(t *testing.T) {
	for format, want := range map[string]string{"": "table", "TABLE": "table", "csv": "csv", " json ": "json"} {
		got, err := New(format)
		if err != nil {
			t.Fatalf("New(%q) failed: %v", format, err)
		}
		if typeName(got) != want {
			t.Fatalf("New(%q) = %s, want %s", format, typeName(got), want)
		}
	}
	if _, err := New("xml"); err == nil {
		t.Fatal("expected unknown format to fail")
	}
}

func TestCSVExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter().Export(&buf, sampleReport()); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var rows []EntryRow
	if err := gocsv.UnmarshalString(buf.String(), &rows); err != nil {
		t.Fatalf("csv output did not parse: %v\n%s", err, buf.String())
	}
	if len(rows) != 3 {
		t.Fatalf("expected one row per referrer, got %d:\n%s", len(rows), buf.String())
	}
	if rows[0].Target != "https://example.com/missing.html" || rows[0].Code != "404" || rows[0].AnchorText != "Old page" {
		t.Fatalf("unexpected first row %+v", rows[0])
	}
	if rows[1].Target != "" || rows[1].Referrer != "https://example.com/about/" {
		t.Fatalf("expected continuation row, got %+v", rows[1])
	}
	for i, row := range rows {
		if row.Scanned != "2024-05-01T12:00:00Z" {
			t.Fatalf("row %d: expected scan timestamp, got %q", i, row.Scanned)
		}
	}
	if !strings.HasPrefix(rows[2].Status, "network_error(timeout)") || rows[2].Attempts != "3" {
		t.Fatalf("unexpected network error row %+v", rows[2])
	}
}

func TestJSONExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONExporter().Export(&buf, sampleReport()); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	var doc Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("json output did not parse: %v", err)
	}
	if doc.RunID != "run-1" || doc.Summary.Broken != 2 || doc.Summary.Healthy != 1 {
		t.Fatalf("unexpected document %+v", doc)
	}
	if len(doc.Entries) != 2 || len(doc.Entries[0].Referrers) != 2 {
		t.Fatalf("unexpected entries %+v", doc.Entries)
	}
	if doc.Entries[1].Status != "network_error(timeout)" {
		t.Fatalf("unexpected status %q", doc.Entries[1].Status)
	}
}

func TestTableExporter(t *testing.T) {
	var buf bytes.Buffer
	report := sampleReport()
	report.Incomplete = true
	if err := NewTableExporter().Export(&buf, report); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Target",
		"https://example.com/missing.html",
		"client_error(404)",
		"https://example.com/about/",
		"3 links checked: 1 healthy, 2 broken, 0 skipped, 0 flagged",
		"results are incomplete",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestTableExporterWithoutEntries(t *testing.T) {
	var buf bytes.Buffer
	report := crawler.Finalize(nil, crawler.ReportOptions{})
	if err := NewTableExporter().Export(&buf, &report); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if strings.Contains(buf.String(), "Target") {
		t.Fatalf("no table expected for a clean report, got %q", buf.String())
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *TableExporter:
		return "table"
	case *CSVExporter:
		return "csv"
	case *JSONExporter:
		return "json"
	}
	return "unknown"
}
