package crawler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultUserAgent = "linkcheck-bot/1.0"

// Config defines inputs for the crawler.
type Config struct {
	Seeds    []string
	Sitemaps []string
	Scope    ScopeConfig

	MaxWorkers               int
	PerHostConcurrency       int
	PerHostRequestsPerMinute int
	Timeout                  time.Duration
	MaxRetries               int // 0 selects the default, negative disables retries
	MaxRedirects             int
	BackoffBase              time.Duration
	BackoffMax               time.Duration
	MaxBodyBytes             int64
	RunTimeout               time.Duration
	GracePeriod              time.Duration

	UserAgent     string
	Client        *http.Client
	IgnoreRobots  bool
	SkipExternal  bool // external links are counted but never checked
	CheckAssets   bool
	FlagRedirects bool

	Logger   logrus.FieldLogger
	Metrics  *Metrics
	Progress func(string)
}

// ScopeConfig is the raw form of a CrawlScope. Patterns are regular expressions
// matched against the normalized URL.
type ScopeConfig struct {
	RootHost string
	MaxDepth int
	MaxPages int
	Include  []string
	Exclude  []string
	Ignore   []string
}

// LinkKind classifies a discovered link.
type LinkKind string

const (
	// KindInternalPage is a page on the crawled site that may be crawled itself.
	KindInternalPage LinkKind = "internal_page"
	// KindInternalAsset is an image, script or stylesheet on the crawled site.
	KindInternalAsset LinkKind = "internal_asset"
	// KindExternal targets another host.
	KindExternal LinkKind = "external"
	// KindSitemap references a nested sitemap document.
	KindSitemap LinkKind = "sitemap"
)

// Link describes a reference found on a page.
type Link struct {
	Source     string
	Target     string
	AnchorText string
	Kind       LinkKind
	Tag        string
	// Err is set when the reference could not be normalized; Target then holds the raw value.
	Err error
}

// FetchMode selects how much of a target is retrieved.
type FetchMode string

const (
	ModeFullPage       FetchMode = "full_page"
	ModeExistenceCheck FetchMode = "existence_check"
	ModeSitemap        FetchMode = "sitemap"
)

// StatusKind is the state of a VisitRecord.
type StatusKind string

const (
	StatusPending      StatusKind = "pending"
	StatusInFlight     StatusKind = "in_flight"
	StatusRetrying     StatusKind = "retrying"
	StatusSuccess      StatusKind = "success"
	StatusRedirected   StatusKind = "redirected"
	StatusClientError  StatusKind = "client_error"
	StatusServerError  StatusKind = "server_error"
	StatusNetworkError StatusKind = "network_error"
	StatusSkipped      StatusKind = "skipped"
)

// NetworkErrorKind refines StatusNetworkError.
type NetworkErrorKind string

const (
	NetTimeout          NetworkErrorKind = "timeout"
	NetConnectionFailed NetworkErrorKind = "connection_failed"
	NetRedirectLoop     NetworkErrorKind = "redirect_loop"
)

// SkipReason refines StatusSkipped.
type SkipReason string

const (
	SkipMalformed SkipReason = "malformed"
	SkipCancelled SkipReason = "cancelled"
	SkipRobots    SkipReason = "robots"
	SkipIgnored   SkipReason = "ignored"
)

// Status is the classification of a visit.
type Status struct {
	Kind         StatusKind
	Code         int
	FinalURL     string
	NetworkError NetworkErrorKind
	SkipReason   SkipReason
	Message      string
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s.Kind {
	case StatusPending, StatusInFlight, StatusRetrying, "":
		return false
	}
	return true
}

// Broken reports whether the status marks the target as broken.
func (s Status) Broken() bool {
	switch s.Kind {
	case StatusClientError, StatusServerError, StatusNetworkError:
		return true
	}
	return false
}

// Healthy reports a success or a followed redirect.
func (s Status) Healthy() bool {
	return s.Kind == StatusSuccess || s.Kind == StatusRedirected
}

func (s Status) String() string {
	switch s.Kind {
	case StatusSuccess, StatusClientError, StatusServerError:
		return string(s.Kind) + "(" + strconv.Itoa(s.Code) + ")"
	case StatusRedirected:
		return "redirected(" + s.FinalURL + ", " + strconv.Itoa(s.Code) + ")"
	case StatusNetworkError:
		return "network_error(" + string(s.NetworkError) + ")"
	case StatusSkipped:
		return "skipped(" + string(s.SkipReason) + ")"
	}
	return string(s.Kind)
}

// VisitRecord is the per-URL state of a run.
type VisitRecord struct {
	URL            string
	Status         Status
	DiscoveredFrom []string
	AnchorTexts    []string
	AttemptCount   int
	Depth          int
	Mode           FetchMode
	Kind           LinkKind
}

// Report captures the outcome of a crawl.
type Report struct {
	RunID      string
	Seeds      []string
	Entries    []ReportEntry
	Records    []VisitRecord
	Summary    Summary
	Stats      Stats
	Incomplete bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Classification of a report entry.
type Classification string

const (
	ClassBroken  Classification = "broken"
	ClassFlagged Classification = "flagged"
)

// ReportEntry is one broken or flagged target with every page referencing it.
type ReportEntry struct {
	Target         string
	Classification Classification
	Status         Status
	Kind           LinkKind
	Referrers      []string
	AnchorTexts    []string
	Attempts       int
}

// Summary holds the mutually exclusive healthy/broken/skipped counts.
type Summary struct {
	Total        int
	Healthy      int
	Broken       int
	Skipped      int
	Flagged      int
	PagesCrawled int
}

// Stats aggregates crawl level counters.
type Stats struct {
	PagesVisited         int
	UniqueInternalPages  int
	UniqueExternalLinks  int
	UniqueAssets         int
	TotalInternalLinks   int
	TotalExternalLinks   int
	TotalAssetLinks      int
	ExternalLinksChecked int
	Requests             int
	Retries              int
	Duration             time.Duration
	SkippedByRobots      int
	SkippedByDepth       int
	SkippedByLimit       int
	SkippedByScope       int
	SkippedMalformed     int
	SkippedIgnored       int
	SkippedCancelled     int
}
