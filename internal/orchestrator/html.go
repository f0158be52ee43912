package orchestrator

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/valpere/tlumach/internal/segmenter"
	"github.com/valpere/tlumach/internal/translator"
)

// TranslateHTML translates an HTML fragment from the configured source
// language. It never fails: whatever could not be translated stays as it
// was.
func (o *Orchestrator) TranslateHTML(ctx context.Context, markup, targetLang string) string {
	return o.TranslateHTMLFrom(ctx, markup, o.config.SourceLang, targetLang)
}

// TranslateHTMLFrom translates the text nodes of markup and splices the
// translations back, keeping the tag structure.
func (o *Orchestrator) TranslateHTMLFrom(ctx context.Context, markup, sourceLang, targetLang string) string {
	if strings.TrimSpace(markup) == "" {
		return markup
	}
	logger := o.logger(ctx)

	if !segmenter.HasTags(markup) {
		out, err := o.TranslateFrom(ctx, markup, sourceLang, targetLang)
		if err != nil {
			logger.WithError(err).Warn("fragment left untranslated")
			return markup
		}
		return out
	}

	if out, ok := o.translateDirectHTML(ctx, markup, sourceLang, targetLang); ok {
		return out
	}

	nodes, err := segmenter.Extract(markup)
	if err != nil {
		logger.WithError(err).Debug("cannot parse fragment, translating as text")
		out, err := o.TranslateFrom(ctx, markup, sourceLang, targetLang)
		if err != nil {
			return markup
		}
		return out
	}
	if len(nodes) == 0 {
		return markup
	}
	if o.config.Detector != nil {
		sample, err := segmenter.PlainText(markup)
		if err != nil || sample == "" {
			texts := make([]string, len(nodes))
			for i, n := range nodes {
				texts[i] = n.Text
			}
			sample = strings.Join(texts, " ")
		}
		sourceLang = o.resolveSource(sample, sourceLang)
	}

	groups := segmenter.Batch(nodes, o.config.Segmenter)
	freeFirst := len(nodes) > o.config.FreeOnlyThreshold
	translated := make([][]string, len(groups))

	err = segmenter.RunWaves(ctx, len(groups), o.config.Segmenter, func(ctx context.Context, i int) error {
		translated[i] = o.translateGroup(ctx, groups[i], sourceLang, targetLang, freeFirst)
		return nil
	})
	if err != nil {
		logger.WithError(err).Debug("html translation interrupted")
	}

	var reps []segmenter.Replacement
	kept := 0
	for i, g := range groups {
		if translated[i] == nil {
			kept += len(g.Indices)
			continue
		}
		for j, idx := range g.Indices {
			n := nodes[idx]
			if translated[i][j] == n.Text {
				kept++
				continue
			}
			reps = append(reps, segmenter.Replacement{Start: n.Start, End: n.End, Translated: translated[i][j]})
		}
	}
	logger.WithFields(log.Fields{
		"nodes":  len(nodes),
		"groups": len(groups),
		"kept":   kept,
	}).Debug("html translated")
	return segmenter.Splice(markup, reps)
}

// translateDirectHTML hands the whole fragment to a markup-aware provider
// when running in single mode.
func (o *Orchestrator) translateDirectHTML(ctx context.Context, markup, sourceLang, targetLang string) (string, bool) {
	if o.config.Mode != ModeSingle || len(o.providers) == 0 {
		return "", false
	}
	p := o.providers[0]
	if !p.Descriptor().HTMLSafe {
		return "", false
	}
	sourceLang = o.resolveSource(markup, sourceLang)
	providers := o.providers[:1]
	if hit, ok := o.lookup(providers, markup, sourceLang, targetLang); ok {
		return hit, true
	}
	req := translator.Request{Text: markup, SourceLang: sourceLang, TargetLang: targetLang, Kind: translator.KindHTML}
	out, err := o.call(ctx, p, req)
	if err != nil {
		return "", false
	}
	o.store(providers, markup, sourceLang, targetLang, out)
	return out, true
}

// translateGroup returns one translation per node of g, or nil when nothing
// in the group could be translated. A group whose answer does not keep one
// line per node is retried node by node.
func (o *Orchestrator) translateGroup(ctx context.Context, g segmenter.Group, sourceLang, targetLang string, freeFirst bool) []string {
	out, err := o.translateUnit(ctx, g.Text(), sourceLang, targetLang, freeFirst)
	if err == nil {
		if parts, ok := g.Split(out); ok {
			return parts
		}
	}
	if len(g.Texts) == 1 {
		return nil
	}

	parts := make([]string, len(g.Texts))
	for i, text := range g.Texts {
		out, err := o.translateUnit(ctx, text, sourceLang, targetLang, freeFirst)
		if err != nil {
			parts[i] = text
			continue
		}
		parts[i] = strings.TrimSpace(out)
	}
	return parts
}

// translateUnit tries the free providers one at a time when freeFirst is
// set, then the full provider path.
func (o *Orchestrator) translateUnit(ctx context.Context, text, sourceLang, targetLang string, freeFirst bool) (string, error) {
	if freeFirst {
		src := o.resolveSource(text, sourceLang)
		for _, p := range o.freeProviders() {
			providers := []translator.Provider{p}
			if hit, ok := o.lookup(providers, text, src, targetLang); ok {
				return hit, nil
			}
			req := translator.Request{Text: text, SourceLang: src, TargetLang: targetLang, Kind: translator.KindText}
			if out, err := o.call(ctx, p, req); err == nil {
				o.store(providers, text, src, targetLang, out)
				return out, nil
			}
		}
	}
	return o.TranslateFrom(ctx, text, sourceLang, targetLang)
}
