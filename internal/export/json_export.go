package export

import (
	"encoding/json"
	"io"
	"time"

	"linkcheck/internal/crawler"
)

type Document struct {
	RunID      string    `json:"run_id"`
	Seeds      []string  `json:"seeds"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Duration   string    `json:"duration"`
	Incomplete bool      `json:"incomplete"`
	Summary    Summary   `json:"summary"`
	Entries    []Entry   `json:"entries"`
}

type Summary struct {
	Total        int `json:"total"`
	Healthy      int `json:"healthy"`
	Broken       int `json:"broken"`
	Skipped      int `json:"skipped"`
	Flagged      int `json:"flagged"`
	PagesCrawled int `json:"pages_crawled"`
	Requests     int `json:"requests"`
	Retries      int `json:"retries"`
}

type Entry struct {
	Target         string   `json:"target"`
	Classification string   `json:"classification"`
	Status         string   `json:"status"`
	Code           int      `json:"code,omitempty"`
	FinalURL       string   `json:"final_url,omitempty"`
	Message        string   `json:"message,omitempty"`
	Kind           string   `json:"kind,omitempty"`
	Attempts       int      `json:"attempts,omitempty"`
	Referrers      []string `json:"referrers"`
	AnchorTexts    []string `json:"anchor_texts,omitempty"`
}

type JSONExporter struct{}

func NewJSONExporter() Exporter {
	return &JSONExporter{}
}

func (e *JSONExporter) Export(w io.Writer, report *crawler.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(e.transformData(report))
}

func (e *JSONExporter) transformData(report *crawler.Report) Document {
	doc := Document{
		RunID:      report.RunID,
		Seeds:      report.Seeds,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Duration:   report.Stats.Duration.String(),
		Incomplete: report.Incomplete,
		Summary: Summary{
			Total:        report.Summary.Total,
			Healthy:      report.Summary.Healthy,
			Broken:       report.Summary.Broken,
			Skipped:      report.Summary.Skipped,
			Flagged:      report.Summary.Flagged,
			PagesCrawled: report.Summary.PagesCrawled,
			Requests:     report.Stats.Requests,
			Retries:      report.Stats.Retries,
		},
		Entries: make([]Entry, 0, len(report.Entries)),
	}
	for _, entry := range report.Entries {
		referrers := entry.Referrers
		if referrers == nil {
			referrers = []string{}
		}
		doc.Entries = append(doc.Entries, Entry{
			Target:         entry.Target,
			Classification: string(entry.Classification),
			Status:         entry.Status.String(),
			Code:           entry.Status.Code,
			FinalURL:       entry.Status.FinalURL,
			Message:        entry.Status.Message,
			Kind:           string(entry.Kind),
			Attempts:       entry.Attempts,
			Referrers:      referrers,
			AnchorTexts:    entry.AnchorTexts,
		})
	}
	return doc
}
