package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"linkcheck/internal/logging"
)

const (
	defaultMaxWorkers         = 10
	defaultPerHostConcurrency = 2
	defaultRequestsPerMinute  = 120
	defaultGracePeriod        = 5 * time.Second
)

type crawler struct {
	fetcher       *Fetcher
	robots        *robotsAgent
	scope         *Scope
	frontier      *frontier
	logger        logrus.FieldLogger
	metrics       *Metrics
	progress      func(string)
	maxWorkers    int
	gracePeriod   time.Duration
	ignoreRobots  bool
	checkAssets   bool
	flagRedirects bool

	// dispatch is unbuffered: a send completes only when a worker owns the task.
	dispatch chan task
	events   chan event
	done     chan struct{}

	stats    Stats
	inflight int
}

// Crawl runs one crawl-and-check pass and returns its report. Cancelling ctx
// or reaching cfg.RunTimeout stops the run early; the report is then marked
// Incomplete. Only configuration problems return an error.
func Crawl(ctx context.Context, cfg Config) (*Report, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	seeds, err := buildSeeds(cfg.Seeds, logger)
	if err != nil {
		return nil, err
	}
	first, _ := url.Parse(seeds[0])

	scopeCfg := cfg.Scope
	if strings.TrimSpace(scopeCfg.RootHost) == "" {
		scopeCfg.RootHost = first.Host
	}
	scope, err := NewScope(scopeCfg, nil)
	if err != nil {
		return nil, err
	}

	sitemaps := make([]string, 0, len(cfg.Sitemaps))
	for _, raw := range cfg.Sitemaps {
		target, err := Normalize(first, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid sitemap %q: %w", raw, err)
		}
		sitemaps = append(sitemaps, target)
	}

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	perHost := cfg.PerHostConcurrency
	if perHost <= 0 {
		perHost = defaultPerHostConcurrency
	}
	rpm := cfg.PerHostRequestsPerMinute
	if rpm == 0 {
		rpm = defaultRequestsPerMinute
	}
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	limiter := NewHostLimiter(perHost, rpm)
	fetcher := NewFetcher(FetcherOptions{
		Client:       cfg.Client,
		UserAgent:    userAgent,
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		MaxRetries:   cfg.MaxRetries,
		BackoffBase:  cfg.BackoffBase,
		BackoffMax:   cfg.BackoffMax,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Limiter:      limiter,
		Metrics:      cfg.Metrics,
	})

	c := &crawler{
		fetcher:       fetcher,
		scope:         scope,
		logger:        logger,
		metrics:       cfg.Metrics,
		progress:      cfg.Progress,
		maxWorkers:    maxWorkers,
		gracePeriod:   grace,
		ignoreRobots:  cfg.IgnoreRobots,
		checkAssets:   cfg.CheckAssets,
		flagRedirects: cfg.FlagRedirects,
		dispatch:      make(chan task),
		events:        make(chan event, maxWorkers*4),
		done:          make(chan struct{}),
	}
	if !cfg.IgnoreRobots {
		c.robots = newRobotsAgent(fetcher.Client(), userAgent, limiter)
	}
	c.frontier = newFrontier(scope, !cfg.SkipExternal, &c.stats)
	for _, s := range seeds {
		c.frontier.seed(s, ModeFullPage)
	}
	for _, s := range sitemaps {
		c.frontier.seed(s, ModeSitemap)
	}

	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	started := time.Now()
	logger.WithFields(logrus.Fields{
		"seeds":    len(seeds),
		"sitemaps": len(sitemaps),
		"workers":  maxWorkers,
		"root":     scope.RootHost,
	}).Info("crawl started")

	incomplete := c.run(ctx)
	finished := time.Now()

	records := c.frontier.snapshot()
	report := Finalize(records, ReportOptions{FlagRedirects: cfg.FlagRedirects})
	report.RunID = uuid.NewString()
	report.Seeds = seeds
	report.Stats = c.collectStats(finished.Sub(started))
	report.Incomplete = incomplete
	report.StartedAt = started
	report.FinishedAt = finished

	logger.WithFields(logrus.Fields{
		"run_id":     report.RunID,
		"records":    report.Summary.Total,
		"healthy":    report.Summary.Healthy,
		"broken":     report.Summary.Broken,
		"skipped":    report.Summary.Skipped,
		"incomplete": report.Incomplete,
		"duration":   report.Stats.Duration.String(),
	}).Info("crawl finished")
	return &report, nil
}

// run is the coordinator loop. It reports whether the run was cut short.
func (c *crawler) run(ctx context.Context) bool {
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var wg sync.WaitGroup
	for i := 0; i < c.maxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(workerCtx)
		}()
	}

	incomplete := false
	var next task
	have := false
loop:
	for {
		if !have {
			next, have = c.frontier.take()
		}
		if !have && c.inflight == 0 {
			break
		}
		var dispatch chan task
		if have {
			dispatch = c.dispatch
		}
		select {
		case dispatch <- next:
			c.markInFlight(next)
			have = false
		case ev := <-c.events:
			c.ingest(ev, true)
		case <-ctx.Done():
			incomplete = true
			c.logger.WithFields(logrus.Fields{
				"inflight": c.inflight,
				"reason":   ctx.Err().Error(),
			}).Warn("crawl interrupted, draining in-flight work")
			break loop
		}
	}

	if incomplete {
		c.drain()
	}
	close(c.done)
	cancelWorkers()
	if !waitTimeout(&wg, c.gracePeriod) {
		c.logger.Warn("workers did not stop within grace period")
	}
	c.cancelRemaining()
	return incomplete
}

// drain collects outcomes of in-flight work for at most the grace period.
// Links discovered while draining are not followed.
func (c *crawler) drain() {
	timer := time.NewTimer(c.gracePeriod)
	defer timer.Stop()
	for c.inflight > 0 {
		select {
		case ev := <-c.events:
			c.ingest(ev, false)
		case <-timer.C:
			return
		}
	}
}

func (c *crawler) markInFlight(t task) {
	r := c.frontier.get(t.url)
	r.Status = Status{Kind: StatusInFlight}
	c.inflight++
	c.metrics.setInflight(c.inflight)
}

// ingest is the single entry point through which worker results mutate records.
func (c *crawler) ingest(ev event, follow bool) {
	r := c.frontier.get(ev.url)
	if r == nil || r.Status.Terminal() {
		return
	}
	switch ev.kind {
	case eventAttempt:
		r.Status = Status{Kind: StatusInFlight}
		r.AttemptCount = ev.attempt
	case eventRetry:
		r.Status = Status{Kind: StatusRetrying, Code: ev.status.Code, Message: ev.status.String()}
		r.AttemptCount = ev.attempt
		c.stats.Retries++
	case eventOutcome:
		c.inflight--
		c.metrics.setInflight(c.inflight)
		c.finish(r, ev.outcome)
		if !follow {
			return
		}
		depth := r.Depth + 1
		if r.Mode == ModeSitemap {
			depth = r.Depth
		}
		for _, link := range ev.links {
			c.frontier.offer(link, depth)
		}
	}
}

func (c *crawler) finish(r *record, out Outcome) {
	r.Status = out.Status
	if out.Attempts > 0 {
		r.AttemptCount = out.Attempts
	}
	c.stats.Requests += out.Attempts
	c.metrics.observeRecord(r.Status)

	switch {
	case r.Status.Kind == StatusSkipped && r.Status.SkipReason == SkipRobots:
		c.stats.SkippedByRobots++
	case r.Status.Kind == StatusSkipped && r.Status.SkipReason == SkipCancelled:
		c.stats.SkippedCancelled++
	case r.Mode == ModeFullPage:
		c.stats.PagesVisited++
	case r.Kind == KindExternal:
		c.stats.ExternalLinksChecked++
	}

	entry := c.logger.WithFields(logrus.Fields{
		"url":      r.URL,
		"mode":     string(r.Mode),
		"status":   r.Status.String(),
		"attempts": r.AttemptCount,
	})
	if r.Status.Broken() {
		entry.Debug("broken link")
	} else {
		entry.Debug("link checked")
	}
}

// cancelRemaining finalizes every record that never reached a terminal state.
func (c *crawler) cancelRemaining() {
	for _, r := range c.frontier.records {
		if r.Status.Terminal() {
			continue
		}
		r.Status = cancelledStatus()
		c.stats.SkippedCancelled++
		c.metrics.observeRecord(r.Status)
	}
	c.inflight = 0
	c.metrics.setInflight(0)
}

func buildSeeds(raw []string, logger logrus.FieldLogger) ([]string, error) {
	seeds := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "://") {
			s = "https://" + s
		}
		normalized, err := Normalize(nil, s)
		if err != nil {
			logger.WithError(err).WithField("seed", s).Warn("ignoring invalid seed")
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		seeds = append(seeds, normalized)
	}
	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}
	return seeds, nil
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-finished:
		return true
	case <-timer.C:
		return false
	}
}

func (c *crawler) emitProgress(u string) {
	if c.progress == nil {
		return
	}
	c.progress(u)
}
