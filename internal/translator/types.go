package translator

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/valpere/tlumach/internal/identity"
	"github.com/valpere/tlumach/internal/metrics"
)

// Kind tells a provider whether the request text carries markup.
type Kind int

const (
	KindText Kind = iota
	KindHTML
)

func (k Kind) String() string {
	if k == KindHTML {
		return "html"
	}
	return "text"
}

// Request is a single translation call. SourceLang may be "auto".
type Request struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	Kind       Kind   `json:"kind"`
}

// Tuning holds the per-provider request policy.
type Tuning struct {
	// Timeout bounds each individual attempt.
	Timeout time.Duration
	// MaxAttempts is the retry budget per call, including the first attempt.
	MaxAttempts int
	// Interval is the minimum spacing between requests and the backoff base.
	Interval time.Duration
	// Concurrency caps in-flight requests for one provider instance.
	Concurrency int
	// MaxChars splits longer plain texts into chunks. Zero disables splitting.
	MaxChars int
}

// Descriptor holds the static facts about a provider. It is not modified
// after the provider is constructed.
type Descriptor struct {
	Name            string
	Alias           string
	Free            bool
	NeedsCredential bool
	HTMLSafe        bool
	Endpoint        string
	// AutoCode is the provider's spelling of "detect the source language".
	// An empty AutoCode means the source parameter is omitted.
	AutoCode string
	// Languages maps lower-cased human language names to provider codes.
	// A nil map accepts any well-formed language tag.
	Languages map[string]string
	Tuning    Tuning
	// AuthSignatures are substrings of an error that mark a rejected credential.
	AuthSignatures []string
}

// Provider is one external translation service.
type Provider interface {
	Descriptor() *Descriptor
	Translate(ctx context.Context, req Request) (string, error)
	LanguageCode(lang string) (string, bool)
	IsRecoverable(err error) bool
	IsAuthFailure(err error) bool
}

// ServiceConfig is the user-supplied configuration of one provider. Every
// field is optional; zero values fall back to the provider defaults.
type ServiceConfig struct {
	Credentials []string      `mapstructure:"credentials" json:"credentials"`
	Email       string        `mapstructure:"email" json:"email"`
	Model       string        `mapstructure:"model" json:"model"`
	Models      []string      `mapstructure:"models" json:"models"`
	BaseURL     string        `mapstructure:"base_url" json:"base_url"`
	Proxy       string        `mapstructure:"proxy" json:"proxy"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts" json:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval" json:"interval"`
	Concurrency int           `mapstructure:"concurrency" json:"concurrency"`
	MaxChars    int           `mapstructure:"max_chars" json:"max_chars"`
}

// Deps are the shared collaborators injected into every provider.
type Deps struct {
	Rotator *identity.Rotator
	Logger  log.FieldLogger
	Metrics *metrics.Metrics
}

func (d Deps) logger() log.FieldLogger {
	if d.Logger == nil {
		return log.StandardLogger()
	}
	return d.Logger
}
