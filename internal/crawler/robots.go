package crawler

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// robotsAgent caches robots.txt per host for the lifetime of a run. Fetch
// failures and error statuses fail open.
type robotsAgent struct {
	client    *http.Client
	userAgent string
	limiter   *HostLimiter

	mu     sync.RWMutex
	cache  map[string]*robotstxt.RobotsData
	flight singleflight.Group
}

func newRobotsAgent(client *http.Client, userAgent string, limiter *HostLimiter) *robotsAgent {
	return &robotsAgent{
		client:    client,
		userAgent: userAgent,
		limiter:   limiter,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether u may be crawled.
func (a *robotsAgent) Allowed(ctx context.Context, u *url.URL) bool {
	if a == nil || u == nil {
		return true
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return true
	}

	a.mu.RLock()
	data, ok := a.cache[host]
	a.mu.RUnlock()
	if !ok {
		v, _, _ := a.flight.Do(host, func() (any, error) {
			a.mu.RLock()
			cached, done := a.cache[host]
			a.mu.RUnlock()
			if done {
				return cached, nil
			}
			rules := a.fetch(ctx, u)
			if ctx.Err() == nil {
				a.mu.Lock()
				a.cache[host] = rules
				a.mu.Unlock()
			}
			return rules, nil
		})
		data, _ = v.(*robotstxt.RobotsData)
	}
	if data == nil {
		return true
	}
	return data.TestAgent(u.RequestURI(), a.userAgent)
}

func (a *robotsAgent) fetch(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	robotsURL := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}
	release, err := a.limiter.Acquire(ctx, u.Host)
	if err != nil {
		return nil
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil
	}
	return data
}
