package crawler

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxRedirects = 5
	defaultMaxRetries   = 2
	defaultBackoffBase  = 500 * time.Millisecond
	defaultBackoffMax   = 10 * time.Second
	defaultMaxBodyBytes = 5 * 1024 * 1024
	discardLimit        = 64 * 1024
)

// FetcherOptions controls request behaviour.
type FetcherOptions struct {
	Client       *http.Client
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
	MaxRetries   int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	MaxBodyBytes int64
	Limiter      *HostLimiter
	Metrics      *Metrics
}

// Fetcher performs requests with the redirect ceiling, retry policy and host
// limits applied, and maps every result onto a Status.
type Fetcher struct {
	client       *http.Client
	userAgent    string
	maxRetries   int
	maxBodyBytes int64
	limiter      *HostLimiter
	metrics      *Metrics
	retry        retrypolicy.RetryPolicy[attempt]
}

// Outcome is the terminal result of Fetch.
type Outcome struct {
	URL         string
	Mode        FetchMode
	Status      Status
	Attempts    int
	ContentType string
	Body        []byte
}

// FetchHooks observe the retry state machine of a single Fetch.
type FetchHooks struct {
	// OnAttempt is called before attempt n (1-based) is sent.
	OnAttempt func(n int)
	// OnRetry is called after attempt n failed transiently and before the backoff.
	OnRetry func(n int, status Status)
}

type attempt struct {
	status      Status
	contentType string
	body        []byte
	transient   bool
}

// NewFetcher builds a Fetcher. A provided client is copied so its redirect
// policy can be replaced.
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = defaultMaxRedirects
	}
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = defaultMaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = defaultBackoffMax
	}
	if opts.BackoffMax <= opts.BackoffBase {
		opts.BackoffMax = 2 * opts.BackoffBase
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}

	var client http.Client
	if opts.Client != nil {
		client = *opts.Client
	} else {
		client.Transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: opts.Timeout, KeepAlive: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout:   opts.Timeout,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   8,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	}
	if client.Timeout <= 0 {
		client.Timeout = opts.Timeout
	}
	maxRedirects := opts.MaxRedirects
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return ErrRedirectLoop
		}
		return nil
	}

	retry := retrypolicy.NewBuilder[attempt]().
		HandleIf(func(a attempt, _ error) bool {
			return a.transient
		}).
		WithMaxRetries(opts.MaxRetries).
		WithBackoff(opts.BackoffBase, opts.BackoffMax).
		WithJitterFactor(0.1).
		Build()

	return &Fetcher{
		client:       &client,
		userAgent:    opts.UserAgent,
		maxRetries:   opts.MaxRetries,
		maxBodyBytes: opts.MaxBodyBytes,
		limiter:      opts.Limiter,
		metrics:      opts.Metrics,
		retry:        retry,
	}
}

// Client exposes the configured client for auxiliary requests such as robots.txt.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// Fetch retrieves target in the given mode.
func (f *Fetcher) Fetch(ctx context.Context, target string, mode FetchMode) Outcome {
	return f.FetchWithHooks(ctx, target, mode, FetchHooks{})
}

// FetchWithHooks is Fetch with attempt and retry notifications. Transient
// failures are retried until the retry ceiling; cancellation abandons the
// remaining attempts.
func (f *Fetcher) FetchWithHooks(ctx context.Context, target string, mode FetchMode, hooks FetchHooks) Outcome {
	var last attempt
	attempts := 0

	_, _ = failsafe.With(f.retry).WithContext(ctx).Get(func() (attempt, error) {
		attempts++
		if hooks.OnAttempt != nil {
			hooks.OnAttempt(attempts)
		}
		last = f.do(ctx, target, mode)
		f.metrics.observeRequest(mode, last.status)
		if last.transient && attempts <= f.maxRetries && ctx.Err() == nil {
			f.metrics.observeRetry()
			if hooks.OnRetry != nil {
				hooks.OnRetry(attempts, last.status)
			}
		}
		return last, nil
	})

	status := last.status
	if attempts == 0 || (ctx.Err() != nil && (last.transient || !status.Terminal())) {
		status = cancelledStatus()
	}
	return Outcome{
		URL:         target,
		Mode:        mode,
		Status:      status,
		Attempts:    attempts,
		ContentType: last.contentType,
		Body:        last.body,
	}
}

func (f *Fetcher) do(ctx context.Context, target string, mode FetchMode) attempt {
	release, err := f.limiter.Acquire(ctx, hostOf(target))
	if err != nil {
		return attempt{status: cancelledStatus()}
	}
	defer release()

	method := http.MethodGet
	if mode == ModeExistenceCheck {
		method = http.MethodHead
	}
	resp, err := f.send(ctx, method, target)
	if err == nil && method == http.MethodHead &&
		(resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		resp.Body.Close()
		resp, err = f.send(ctx, http.MethodGet, target)
	}
	if err != nil {
		return classifyError(ctx, err)
	}
	defer resp.Body.Close()

	result := attempt{
		status:      classifyResponse(resp),
		contentType: resp.Header.Get("Content-Type"),
		transient:   (&StatusError{Code: resp.StatusCode}).Transient(),
	}
	if mode == ModeExistenceCheck || !result.status.Healthy() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, discardLimit))
		return result
	}
	body, err := f.readBody(resp)
	if err != nil {
		failed := classifyError(ctx, err)
		failed.contentType = result.contentType
		return failed
	}
	result.body = body
	return result
}

func (f *Fetcher) send(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, &MalformedURLError{Raw: target, Reason: "request", Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	return f.client.Do(req)
}

func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	var closers []io.Closer

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func classifyResponse(resp *http.Response) Status {
	code := resp.StatusCode
	st := Status{Code: code, Message: http.StatusText(code)}
	redirected := resp.Request != nil && resp.Request.Response != nil
	if redirected {
		st.FinalURL = resp.Request.URL.String()
	}
	switch {
	case code >= 500:
		st.Kind = StatusServerError
	case code >= 400:
		st.Kind = StatusClientError
	case redirected:
		st.Kind = StatusRedirected
	default:
		st.Kind = StatusSuccess
	}
	return st
}

func classifyError(ctx context.Context, err error) attempt {
	if ctx.Err() != nil {
		return attempt{status: cancelledStatus()}
	}
	var malformed *MalformedURLError
	if errors.As(err, &malformed) {
		return attempt{status: Status{Kind: StatusSkipped, SkipReason: SkipMalformed, Message: err.Error()}}
	}
	if errors.Is(err, ErrRedirectLoop) {
		return attempt{status: Status{Kind: StatusNetworkError, NetworkError: NetRedirectLoop, Message: err.Error()}}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return attempt{status: Status{Kind: StatusNetworkError, NetworkError: NetTimeout, Message: err.Error()}, transient: true}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return attempt{status: Status{Kind: StatusNetworkError, NetworkError: NetConnectionFailed, Message: err.Error()}}
	}
	return attempt{status: Status{Kind: StatusNetworkError, NetworkError: NetConnectionFailed, Message: err.Error()}, transient: true}
}

func cancelledStatus() Status {
	return Status{Kind: StatusSkipped, SkipReason: SkipCancelled, Message: ErrCancelled.Error()}
}
