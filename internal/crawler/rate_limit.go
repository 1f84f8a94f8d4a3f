package crawler

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter enforces the politeness policy: at most perHost concurrent
// requests and a token-bucket request rate per host, shared by all workers.
type HostLimiter struct {
	perHost int
	every   time.Duration

	mu       sync.Mutex
	slots    map[string]chan struct{}
	limiters map[string]*rate.Limiter
}

// NewHostLimiter creates a limiter. A non-positive requestsPerMinute disables
// rate limiting; a non-positive concurrency means one request per host at a time.
func NewHostLimiter(concurrency, requestsPerMinute int) *HostLimiter {
	if concurrency <= 0 {
		concurrency = 1
	}
	limiter := &HostLimiter{
		perHost:  concurrency,
		slots:    make(map[string]chan struct{}),
		limiters: make(map[string]*rate.Limiter),
	}
	if requestsPerMinute > 0 {
		limiter.every = time.Minute / time.Duration(requestsPerMinute)
		if limiter.every <= 0 {
			limiter.every = time.Millisecond
		}
	}
	return limiter
}

// Acquire blocks until host has a free slot and a rate token. The returned
// release func must be called once the request is finished.
func (h *HostLimiter) Acquire(ctx context.Context, host string) (func(), error) {
	if h == nil {
		return func() {}, nil
	}
	host = strings.ToLower(host)

	h.mu.Lock()
	slot, ok := h.slots[host]
	if !ok {
		slot = make(chan struct{}, h.perHost)
		h.slots[host] = slot
	}
	limiter := h.ensureLimiterLocked(host)
	h.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case slot <- struct{}{}:
	}
	release := func() { <-slot }

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			release()
			return nil, err
		}
	}
	return release, nil
}

func (h *HostLimiter) ensureLimiterLocked(host string) *rate.Limiter {
	if h.every <= 0 {
		return nil
	}
	limiter, ok := h.limiters[host]
	if ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Every(h.every), h.perHost)
	h.limiters[host] = limiter
	return limiter
}
