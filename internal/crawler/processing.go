package crawler

import (
	"context"
	"net/url"
)

func (c *crawler) process(ctx context.Context, t task) {
	c.emitProgress(t.url)

	if t.mode == ModeFullPage && c.robots != nil {
		parsed, err := url.Parse(t.url)
		if err == nil && !c.robots.Allowed(ctx, parsed) {
			status := Status{Kind: StatusSkipped, SkipReason: SkipRobots, Message: "blocked by robots.txt"}
			if ctx.Err() != nil {
				status = cancelledStatus()
			}
			c.report(event{kind: eventOutcome, url: t.url, outcome: Outcome{URL: t.url, Mode: t.mode, Status: status}})
			return
		}
	}

	hooks := FetchHooks{
		OnAttempt: func(n int) {
			c.report(event{kind: eventAttempt, url: t.url, attempt: n})
		},
		OnRetry: func(n int, status Status) {
			c.report(event{kind: eventRetry, url: t.url, attempt: n, status: status})
		},
	}
	out := c.fetcher.FetchWithHooks(ctx, t.url, t.mode, hooks)

	ev := event{kind: eventOutcome, url: t.url}
	if t.mode != ModeExistenceCheck && out.Status.Healthy() {
		base := t.url
		if out.Status.FinalURL != "" {
			base = out.Status.FinalURL
		}
		if t.mode == ModeSitemap || c.scope.Internal(base) {
			for link := range Extract(base, out.Body, out.ContentType, c.scope, c.checkAssets) {
				if ctx.Err() != nil {
					break
				}
				link.Source = t.url
				ev.links = append(ev.links, link)
			}
		}
	}
	out.Body = nil
	ev.outcome = out
	c.report(ev)
}
