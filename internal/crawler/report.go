package crawler

import (
	"slices"
	"sort"
)

// ReportOptions tunes classification in Finalize.
type ReportOptions struct {
	// FlagRedirects lists followed redirects as flagged entries. They still
	// count as healthy.
	FlagRedirects bool
}

// Finalize classifies records into a Report. Records are expected to be
// terminal; any that are not are counted as skipped. Output order is by target URL.
func Finalize(records []VisitRecord, opts ReportOptions) Report {
	merged := make(map[string]*VisitRecord, len(records))
	order := make([]string, 0, len(records))
	for i := range records {
		rec := records[i]
		if existing, ok := merged[rec.URL]; ok {
			existing.DiscoveredFrom = union(existing.DiscoveredFrom, rec.DiscoveredFrom)
			existing.AnchorTexts = union(existing.AnchorTexts, rec.AnchorTexts)
			continue
		}
		rec.DiscoveredFrom = union(nil, rec.DiscoveredFrom)
		rec.AnchorTexts = union(nil, rec.AnchorTexts)
		merged[rec.URL] = &rec
		order = append(order, rec.URL)
	}
	sort.Strings(order)

	report := Report{Records: make([]VisitRecord, 0, len(order))}
	for _, target := range order {
		rec := merged[target]
		report.Records = append(report.Records, *rec)
		report.Summary.Total++
		if rec.Mode == ModeFullPage && rec.Status.Healthy() {
			report.Summary.PagesCrawled++
		}

		switch {
		case rec.Status.Broken():
			report.Summary.Broken++
			report.Entries = append(report.Entries, newEntry(rec, ClassBroken))
		case rec.Status.Healthy():
			report.Summary.Healthy++
			if opts.FlagRedirects && rec.Status.Kind == StatusRedirected {
				report.Summary.Flagged++
				report.Entries = append(report.Entries, newEntry(rec, ClassFlagged))
			}
		default:
			report.Summary.Skipped++
			if rec.Status.Kind == StatusSkipped && rec.Status.SkipReason == SkipMalformed {
				report.Summary.Flagged++
				report.Entries = append(report.Entries, newEntry(rec, ClassFlagged))
			}
		}
	}
	return report
}

func newEntry(rec *VisitRecord, class Classification) ReportEntry {
	return ReportEntry{
		Target:         rec.URL,
		Classification: class,
		Status:         rec.Status,
		Kind:           rec.Kind,
		Referrers:      slices.Clone(rec.DiscoveredFrom),
		AnchorTexts:    slices.Clone(rec.AnchorTexts),
		Attempts:       rec.AttemptCount,
	}
}

func union(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	slices.Sort(out)
	return slices.Compact(out)
}

// Broken returns the broken entries only.
func (r *Report) Broken() []ReportEntry {
	out := make([]ReportEntry, 0, r.Summary.Broken)
	for _, e := range r.Entries {
		if e.Classification == ClassBroken {
			out = append(out, e)
		}
	}
	return out
}

// Entry returns the entry for target, if listed.
func (r *Report) Entry(target string) (ReportEntry, bool) {
	i := sort.Search(len(r.Entries), func(i int) bool { return r.Entries[i].Target >= target })
	if i < len(r.Entries) && r.Entries[i].Target == target {
		return r.Entries[i], true
	}
	return ReportEntry{}, false
}

// Record returns the visit record for target.
func (r *Report) Record(target string) (VisitRecord, bool) {
	i := sort.Search(len(r.Records), func(i int) bool { return r.Records[i].URL >= target })
	if i < len(r.Records) && r.Records[i].URL == target {
		return r.Records[i], true
	}
	return VisitRecord{}, false
}
