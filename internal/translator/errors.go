package translator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrMissingCredential means the provider needs a credential and has none
	// left. It is expected and short-circuits the provider without retry.
	ErrMissingCredential = errors.New("missing credential")
	// ErrUpstreamFormat means the response did not carry a translation.
	ErrUpstreamFormat = errors.New("unexpected response format")
	// ErrUnsupportedLanguage means the provider has no code for a language.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrAuthFailure is wrapped by 401 and 403 answers.
	ErrAuthFailure = errors.New("authentication failed")
)

// StatusError is a non-2xx answer from a provider endpoint.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s: API returned status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: API returned status %d: %s", e.Provider, e.StatusCode, body)
}

// Capacity reports upstream throttling or overload.
func (e *StatusError) Capacity() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == 456 || // DeepL quota exceeded
		e.StatusCode >= http.StatusInternalServerError
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrAuthFailure
	}
	return nil
}

// ExhaustedError is returned once a provider has used its whole attempt budget.
type ExhaustedError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Provider, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// IsRecoverable reports whether err is an expected operating condition that
// callers should not alarm on: missing credential, network failure, timeout
// or upstream capacity.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMissingCredential) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Capacity()
	}
	return false
}

// matchesAuth reports whether err is a 401/403 answer or carries one of
// the given substrings.
func matchesAuth(err error, signatures []string) bool {
	if err == nil || errors.Is(err, ErrMissingCredential) {
		return false
	}
	if errors.Is(err, ErrAuthFailure) {
		return true
	}
	msg := err.Error()
	for _, sig := range signatures {
		if sig != "" && strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
