package crawler

import (
	"slices"
	"testing"
)

func TestFinalizeClassifiesRecords(t *testing.T) {
	t.Parallel()

	records := []VisitRecord{
		{URL: "https://example.com/", Mode: ModeFullPage, Kind: KindInternalPage, Status: Status{Kind: StatusSuccess, Code: 200}},
		{URL: "https://example.com/missing", Mode: ModeFullPage, Kind: KindInternalPage, Status: Status{Kind: StatusClientError, Code: 404},
			DiscoveredFrom: []string{"https://example.com/b", "https://example.com/"}, AnchorTexts: []string{"Missing"}, AttemptCount: 1},
		{URL: "https://example.com/missing", DiscoveredFrom: []string{"https://example.com/", "https://example.com/c"}},
		{URL: "https://example.com/old", Mode: ModeFullPage, Kind: KindInternalPage, Status: Status{Kind: StatusRedirected, Code: 200, FinalURL: "https://example.com/new"}},
		{URL: "https://example.org/", Mode: ModeExistenceCheck, Kind: KindExternal, Status: Status{Kind: StatusNetworkError, NetworkError: NetTimeout}, AttemptCount: 3},
		{URL: "https://example.com/private/", Mode: ModeFullPage, Kind: KindInternalPage, Status: Status{Kind: StatusSkipped, SkipReason: SkipRobots}},
		{URL: "http://bad host/", Status: Status{Kind: StatusSkipped, SkipReason: SkipMalformed}, DiscoveredFrom: []string{"https://example.com/"}},
	}

	report := Finalize(records, ReportOptions{})
	want := Summary{Total: 6, Healthy: 2, Broken: 2, Skipped: 2, Flagged: 1, PagesCrawled: 2}
	if report.Summary != want {
		t.Fatalf("unexpected summary: got %+v want %+v", report.Summary, want)
	}
	if got := report.Summary.Healthy + report.Summary.Broken + report.Summary.Skipped; got != report.Summary.Total {
		t.Fatalf("summary classes must partition the records: %d != %d", got, report.Summary.Total)
	}

	missing, ok := report.Entry("https://example.com/missing")
	if !ok {
		t.Fatal("expected missing to be reported")
	}
	wantRefs := []string{"https://example.com/", "https://example.com/b", "https://example.com/c"}
	if !slices.Equal(missing.Referrers, wantRefs) {
		t.Fatalf("unexpected referrers %v", missing.Referrers)
	}
	if _, ok := report.Entry("https://example.com/old"); ok {
		t.Fatal("redirects are not flagged by default")
	}
	bad, ok := report.Entry("http://bad host/")
	if !ok || bad.Classification != ClassFlagged {
		t.Fatalf("expected malformed link to be flagged, got %+v", bad)
	}
	if len(report.Broken()) != 2 {
		t.Fatalf("expected two broken entries, got %+v", report.Broken())
	}
	if !slices.IsSortedFunc(report.Entries, func(a, b ReportEntry) int {
		if a.Target < b.Target {
			return -1
		}
		if a.Target > b.Target {
			return 1
		}
		return 0
	}) {
		t.Fatal("entries must be sorted by target")
	}
}

func TestFinalizeFlagsRedirectsWhenRequested(t *testing.T) {
	t.Parallel()

	records := []VisitRecord{
		{URL: "https://example.com/old", Mode: ModeExistenceCheck, Status: Status{Kind: StatusRedirected, Code: 200, FinalURL: "https://example.com/new"}},
	}
	report := Finalize(records, ReportOptions{FlagRedirects: true})
	entry, ok := report.Entry("https://example.com/old")
	if !ok || entry.Classification != ClassFlagged {
		t.Fatalf("expected flagged redirect, got %+v", entry)
	}
	if report.Summary.Healthy != 1 || report.Summary.Flagged != 1 {
		t.Fatalf("flagged redirects stay healthy: %+v", report.Summary)
	}
}

func TestFinalizeEmpty(t *testing.T) {
	t.Parallel()

	report := Finalize(nil, ReportOptions{})
	if report.Summary.Total != 0 || len(report.Entries) != 0 || len(report.Broken()) != 0 {
		t.Fatalf("unexpected report for no records: %+v", report)
	}
}
