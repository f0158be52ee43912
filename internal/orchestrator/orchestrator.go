// Package orchestrator combines the configured providers into one
// translation call: cache lookups, parallel fan-out with a merge policy,
// fallback to a free provider, and the HTML segment-and-splice pipeline.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/valpere/tlumach/internal/cache"
	"github.com/valpere/tlumach/internal/logging"
	"github.com/valpere/tlumach/internal/segmenter"
	"github.com/valpere/tlumach/internal/translator"
)

// ErrAllProvidersFailed is returned by Translate when no provider produced a
// translation, including the free fallback.
var ErrAllProvidersFailed = errors.New("all providers failed")

// Mode selects between racing every provider and using only the first.
type Mode string

const (
	ModeMulti  Mode = "multi"
	ModeSingle Mode = "single"
)

// Merge selects how several successful results become one.
type Merge string

const (
	MergeFirst   Merge = "first"
	MergeVote    Merge = "vote"
	MergeAverage Merge = "average"
)

// DefaultFreeOnlyThreshold is the node count above which HTML units go to
// free providers first.
const DefaultFreeOnlyThreshold = 10

// SourceResolver turns "auto" into a concrete source language.
type SourceResolver interface {
	Resolve(text, lang string) string
}

type Config struct {
	Mode  Mode
	Merge Merge
	// SourceLang is used by Translate and TranslateHTML. Empty means "auto".
	SourceLang string
	// Timeout bounds one provider call including its retries. Zero leaves
	// the bound to the provider's own per-attempt timeout.
	Timeout           time.Duration
	FreeOnlyThreshold int
	Segmenter         segmenter.Options
	Cache             *cache.Cache
	// Detector, when set, replaces "auto" before providers are called.
	Detector SourceResolver
	Logger   log.FieldLogger
}

// Result is one provider's successful answer.
type Result struct {
	Provider string
	Text     string
	Latency  time.Duration
}

type OrchestratorResult struct {
	// Results are in provider order.
	Results   []Result
	Errors    []error
	Succeeded int
	Failed    int
}

type Orchestrator struct {
	providers []translator.Provider
	config    Config
	log       log.FieldLogger
}

func New(providers []translator.Provider, config Config) *Orchestrator {
	if config.Mode == "" {
		config.Mode = ModeMulti
	}
	if config.Merge == "" {
		config.Merge = MergeFirst
	}
	if config.SourceLang == "" {
		config.SourceLang = "auto"
	}
	if config.FreeOnlyThreshold <= 0 {
		config.FreeOnlyThreshold = DefaultFreeOnlyThreshold
	}
	logger := config.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Orchestrator{
		providers: providers,
		config:    config,
		log:       logger.WithField("component", "orchestrator"),
	}
}

// Providers returns the configured providers in priority order.
func (o *Orchestrator) Providers() []translator.Provider {
	return o.providers
}

// Cache returns the configured cache, which may be nil.
func (o *Orchestrator) Cache() *cache.Cache {
	return o.config.Cache
}

// ClearCache empties the cache and its durable copy.
func (o *Orchestrator) ClearCache(ctx context.Context) error {
	if o.config.Cache == nil {
		return nil
	}
	return o.config.Cache.Clear(ctx)
}

// Execute calls every provider concurrently and waits for all of them.
func (o *Orchestrator) Execute(ctx context.Context, providers []translator.Provider, req translator.Request) *OrchestratorResult {
	type outcome struct {
		index int
		res   Result
		err   error
	}

	ch := make(chan outcome, len(providers))
	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(index int, p translator.Provider) {
			defer wg.Done()
			start := time.Now()
			text, err := o.call(ctx, p, req)
			ch <- outcome{
				index: index,
				res:   Result{Provider: p.Descriptor().Name, Text: text, Latency: time.Since(start)},
				err:   err,
			}
		}(i, p)
	}

	go func() {
		wg.Wait()
		close(ch)
	}()

	ordered := make([]outcome, len(providers))
	for oc := range ch {
		ordered[oc.index] = oc
	}

	result := &OrchestratorResult{}
	for _, oc := range ordered {
		if oc.err != nil {
			result.Errors = append(result.Errors, oc.err)
			result.Failed++
			continue
		}
		result.Results = append(result.Results, oc.res)
		result.Succeeded++
	}
	return result
}

// Translate translates text from the configured source language.
func (o *Orchestrator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	return o.TranslateFrom(ctx, text, o.config.SourceLang, targetLang)
}

// TranslateFrom translates plain text. Blank text comes back unchanged.
func (o *Orchestrator) TranslateFrom(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	sourceLang = o.resolveSource(text, sourceLang)

	if hit, ok := o.lookup(o.providers, text, sourceLang, targetLang); ok {
		return hit, nil
	}

	req := translator.Request{Text: text, SourceLang: sourceLang, TargetLang: targetLang, Kind: translator.KindText}
	out, invoked, err := o.translate(ctx, req)
	if err != nil {
		return "", err
	}
	o.store(invoked, text, sourceLang, targetLang, out)
	return out, nil
}

func (o *Orchestrator) translate(ctx context.Context, req translator.Request) (string, []translator.Provider, error) {
	if len(o.providers) == 0 {
		return "", nil, fmt.Errorf("%w: no providers configured", ErrAllProvidersFailed)
	}

	if o.config.Mode == ModeSingle || len(o.providers) == 1 {
		p := o.providers[0]
		out, err := o.call(ctx, p, req)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrAllProvidersFailed, err)
		}
		return out, o.providers[:1], nil
	}

	result := o.Execute(ctx, o.providers, req)
	if result.Succeeded > 0 {
		return o.merge(ctx, result.Results), o.providers, nil
	}

	if free := o.firstFree(); free != nil {
		o.logger(ctx).WithField("provider", free.Descriptor().Name).Info("all providers failed, retrying with free provider")
		out, err := o.call(ctx, free, req)
		if err == nil {
			return out, o.providers, nil
		}
		result.Errors = append(result.Errors, err)
	}
	return "", nil, fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(result.Errors...))
}

// call runs one provider and rejects blank answers.
func (o *Orchestrator) call(ctx context.Context, p translator.Provider, req translator.Request) (string, error) {
	if o.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()
	}

	name := p.Descriptor().Name
	out, err := p.Translate(ctx, req)
	if err == nil && strings.TrimSpace(out) == "" {
		err = fmt.Errorf("%w: empty translation", translator.ErrUpstreamFormat)
	}
	if err != nil {
		entry := o.logger(ctx).WithField("provider", name).WithError(err)
		if p.IsRecoverable(err) {
			entry.Debug("provider failed")
		} else {
			entry.Warn("provider failed")
		}
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func (o *Orchestrator) merge(ctx context.Context, results []Result) string {
	switch o.config.Merge {
	case MergeVote, MergeAverage:
		o.logger(ctx).WithField("merge", o.config.Merge).Debug("merge strategy not implemented, using first")
	}
	return results[0].Text
}

func (o *Orchestrator) firstFree() translator.Provider {
	for _, p := range o.providers {
		if p.Descriptor().Free {
			return p
		}
	}
	return nil
}

func (o *Orchestrator) freeProviders() []translator.Provider {
	var free []translator.Provider
	for _, p := range o.providers {
		if p.Descriptor().Free {
			free = append(free, p)
		}
	}
	return free
}

func (o *Orchestrator) lookup(providers []translator.Provider, text, sourceLang, targetLang string) (string, bool) {
	if o.config.Cache == nil {
		return "", false
	}
	for _, p := range providers {
		if hit, ok := o.config.Cache.Get(text, sourceLang, targetLang, p.Descriptor().Name); ok {
			return hit, true
		}
	}
	return "", false
}

func (o *Orchestrator) store(providers []translator.Provider, text, sourceLang, targetLang, translation string) {
	if o.config.Cache == nil {
		return
	}
	for _, p := range providers {
		o.config.Cache.Set(text, sourceLang, targetLang, p.Descriptor().Name, translation)
	}
}

func (o *Orchestrator) resolveSource(text, sourceLang string) string {
	if sourceLang == "" {
		sourceLang = "auto"
	}
	if o.config.Detector != nil && strings.EqualFold(sourceLang, "auto") {
		return o.config.Detector.Resolve(text, sourceLang)
	}
	return sourceLang
}

func (o *Orchestrator) logger(ctx context.Context) log.FieldLogger {
	return logging.FromContext(ctx, o.log)
}
