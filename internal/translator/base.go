package translator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/valpere/tlumach/internal/chunker"
	"github.com/valpere/tlumach/internal/identity"
	"github.com/valpere/tlumach/internal/metrics"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxAttempts  = 3
	defaultConcurrency  = 4
	defaultBackoffBase  = 500 * time.Millisecond
	maxResponseBodySize = 8 << 20
)

// attemptFunc performs one request with the given credential.
type attemptFunc func(ctx context.Context, req Request, credential string) (string, error)

// base carries what every provider shares: descriptor, credentials, the
// identity-rotating HTTP client and the retry policy.
type base struct {
	desc    *Descriptor
	creds   *Credentials
	client  *http.Client
	limiter *rate.Limiter
	sem     chan struct{}
	log     log.FieldLogger
	metrics *metrics.Metrics
}

func newBase(desc Descriptor, cfg ServiceConfig, deps Deps) *base {
	if cfg.BaseURL != "" {
		desc.Endpoint = strings.TrimRight(cfg.BaseURL, "/")
	}
	t := &desc.Tuning
	if cfg.Timeout > 0 {
		t.Timeout = cfg.Timeout
	}
	if cfg.MaxAttempts > 0 {
		t.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.Interval > 0 {
		t.Interval = cfg.Interval
	}
	if cfg.Concurrency > 0 {
		t.Concurrency = cfg.Concurrency
	}
	if cfg.MaxChars > 0 {
		t.MaxChars = cfg.MaxChars
	}
	if t.Timeout <= 0 {
		t.Timeout = defaultTimeout
	}
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = defaultMaxAttempts
	}
	if t.Concurrency <= 0 {
		t.Concurrency = defaultConcurrency
	}

	limit := rate.Inf
	if t.Interval > 0 {
		limit = rate.Every(t.Interval)
	}

	return &base{
		desc:    &desc,
		creds:   NewCredentials(cfg.Credentials),
		client:  identity.NewHTTPClient(deps.Rotator, cfg.Proxy),
		limiter: rate.NewLimiter(limit, 1),
		sem:     make(chan struct{}, t.Concurrency),
		log:     deps.logger().WithField("provider", desc.Name),
		metrics: deps.Metrics,
	}
}

func (b *base) Descriptor() *Descriptor { return b.desc }

func (b *base) LanguageCode(lang string) (string, bool) { return b.desc.Code(lang) }

func (b *base) IsRecoverable(err error) bool { return IsRecoverable(err) }

func (b *base) IsAuthFailure(err error) bool { return matchesAuth(err, b.desc.AuthSignatures) }

// Credentials exposes the provider's credential set.
func (b *base) Credentials() *Credentials { return b.creds }

// codes resolves the request languages to provider codes.
func (b *base) codes(req Request) (string, string, error) {
	src, ok := b.desc.Code(req.SourceLang)
	if !ok {
		return "", "", fmt.Errorf("%s: source %q: %w", b.desc.Name, req.SourceLang, ErrUnsupportedLanguage)
	}
	tgt, ok := b.desc.Code(req.TargetLang)
	if !ok || tgt == "" {
		return "", "", fmt.Errorf("%s: target %q: %w", b.desc.Name, req.TargetLang, ErrUnsupportedLanguage)
	}
	return src, tgt, nil
}

// run applies the shared request policy around attempt. Plain texts longer
// than Tuning.MaxChars are split and translated piece by piece.
func (b *base) run(ctx context.Context, req Request, attempt attemptFunc) (string, error) {
	if b.desc.NeedsCredential {
		if _, ok := b.creds.Current(); !ok {
			return "", fmt.Errorf("%s: %w", b.desc.Name, ErrMissingCredential)
		}
	}

	maxChars := b.desc.Tuning.MaxChars
	if req.Kind != KindText || maxChars <= 0 || len([]rune(req.Text)) <= maxChars {
		return b.runOnce(ctx, req, attempt)
	}

	chunks, joiner := chunker.Split(req.Text, maxChars)
	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		part := req
		part.Text = chunk
		translated, err := b.runOnce(ctx, part, attempt)
		if err != nil {
			return "", err
		}
		out = append(out, translated)
	}
	return strings.Join(out, joiner), nil
}

func (b *base) runOnce(ctx context.Context, req Request, attempt attemptFunc) (string, error) {
	select {
	case b.sem <- struct{}{}:
		defer func() { <-b.sem }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	tuning := b.desc.Tuning
	backoff := tuning.Interval
	if backoff <= 0 {
		backoff = defaultBackoffBase
	}

	var lastErr error
	for i := 1; i <= tuning.MaxAttempts; {
		credential, ok := b.creds.Current()
		if b.desc.NeedsCredential && !ok {
			return "", fmt.Errorf("%s: %w", b.desc.Name, ErrMissingCredential)
		}
		if err := b.limiter.Wait(ctx); err != nil {
			return "", err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, tuning.Timeout)
		start := time.Now()
		out, err := attempt(attemptCtx, req, credential)
		cancel()

		if err == nil {
			b.metrics.ObserveAttempt(b.desc.Name, "ok", time.Since(start))
			return out, nil
		}
		b.metrics.ObserveAttempt(b.desc.Name, "error", time.Since(start))
		lastErr = err

		if b.IsAuthFailure(err) && credential != "" {
			if b.creds.Swap(credential) {
				b.metrics.CredentialSwapped(b.desc.Name)
				b.log.WithError(err).Warn("credential rejected, switching to the next one")
				continue
			}
			b.log.WithError(err).Warn("credential rejected, no credentials left")
			return "", fmt.Errorf("%s: %w: %v", b.desc.Name, ErrMissingCredential, err)
		}
		if errors.Is(err, ErrMissingCredential) || errors.Is(err, ErrUnsupportedLanguage) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", &ExhaustedError{Provider: b.desc.Name, Attempts: i, Err: lastErr}
		}

		b.log.WithError(err).WithField("attempt", i).Debug("translation attempt failed")
		if i < tuning.MaxAttempts {
			select {
			case <-ctx.Done():
				return "", &ExhaustedError{Provider: b.desc.Name, Attempts: i, Err: lastErr}
			case <-time.After(time.Duration(i) * backoff):
			}
		}
		i++
	}
	return "", &ExhaustedError{Provider: b.desc.Name, Attempts: tuning.MaxAttempts, Err: lastErr}
}

// do sends req and returns the body of a 2xx response. Any other status
// becomes a *StatusError carrying the body.
func (b *base) do(req *http.Request) ([]byte, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", b.desc.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", b.desc.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Provider: b.desc.Name, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// stream sends req and hands the open body of a 2xx response to consume.
func (b *base) stream(req *http.Request, consume func(io.Reader) (string, error)) (string, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: request failed: %w", b.desc.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
		return "", &StatusError{Provider: b.desc.Name, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return consume(resp.Body)
}

func (b *base) upstreamFormat(detail string) error {
	return fmt.Errorf("%s: %w: %s", b.desc.Name, ErrUpstreamFormat, detail)
}
