package crawler

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMalformedURL marks a reference that cannot be turned into an absolute http(s) URL.
	ErrMalformedURL = errors.New("malformed url")
	// ErrRedirectLoop is returned when a request exceeds the redirect ceiling.
	ErrRedirectLoop = errors.New("redirect limit exceeded")
	// ErrCancelled marks work abandoned because the run was cancelled.
	ErrCancelled = errors.New("crawl cancelled")
	// ErrNoSeeds is returned when no seed URL survives validation.
	ErrNoSeeds = errors.New("no valid seed URL")
	// ErrInvalidScope is returned for scope settings that cannot be compiled.
	ErrInvalidScope = errors.New("invalid crawl scope")
)

// MalformedURLError describes why a raw reference failed normalization.
type MalformedURLError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *MalformedURLError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed url %q: %s: %v", e.Raw, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed url %q: %s", e.Raw, e.Reason)
}

func (e *MalformedURLError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedURL, e.Err}
	}
	return []error{ErrMalformedURL}
}

// StatusError is an HTTP status that classifies a link as broken.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d %s", e.Code, http.StatusText(e.Code))
}

// Client reports a 4xx status.
func (e *StatusError) Client() bool { return e.Code >= 400 && e.Code < 500 }

// Server reports a 5xx status.
func (e *StatusError) Server() bool { return e.Code >= 500 }

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code == http.StatusServiceUnavailable
}
