// Package detector guesses the language of a text so that providers without
// their own auto-detection receive a concrete source code.
package detector

import (
	"strings"
	"sync"

	lingua "github.com/pemistahl/lingua-go"
)

// Detector wraps a lingua detector that is built on first use; building it
// loads the language models.
type Detector struct {
	once      sync.Once
	languages []lingua.Language
	detector  lingua.LanguageDetector
}

// New creates a detector limited to the given languages, or to every
// language lingua knows when none are given.
func New(languages ...lingua.Language) *Detector {
	return &Detector{languages: languages}
}

func (d *Detector) build() lingua.LanguageDetector {
	d.once.Do(func() {
		builder := lingua.NewLanguageDetectorBuilder()
		if len(d.languages) >= 2 {
			d.detector = builder.FromLanguages(d.languages...).Build()
			return
		}
		d.detector = builder.FromAllLanguages().Build()
	})
	return d.detector
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.build().DetectLanguageOf(text)
}

// DetectISO returns the lower-case ISO 639-1 code of text.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// Resolve returns lang unless it is empty or "auto", in which case the
// detected code of text is returned. "auto" comes back when detection fails.
func (d *Detector) Resolve(text, lang string) string {
	if l := strings.TrimSpace(lang); l != "" && !strings.EqualFold(l, "auto") {
		return l
	}
	if code, ok := d.DetectISO(text); ok {
		return code
	}
	return "auto"
}
