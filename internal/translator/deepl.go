package translator

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	deeplProEndpoint  = "https://api.deepl.com"
	deeplFreeEndpoint = "https://api-free.deepl.com"
)

// DeepLService uses the DeepL v2 REST API. Keys ending in ":fx" belong to
// the free plan and are sent to the free endpoint.
type DeepLService struct {
	*base
	fixedEndpoint bool
}

func NewDeepLService(cfg ServiceConfig, deps Deps) *DeepLService {
	return &DeepLService{
		fixedEndpoint: cfg.BaseURL != "",
		base: newBase(Descriptor{
			Name:            "deepl",
			Alias:           "DeepL",
			NeedsCredential: true,
			HTMLSafe:        true,
			Endpoint:        deeplProEndpoint,
			AutoCode:        "",
			Languages: map[string]string{
				"bulgarian":             "BG",
				"chinese":               "ZH",
				"chinese (simplified)":  "ZH",
				"chinese (traditional)": "ZH-HANT",
				"czech":                 "CS",
				"danish":                "DA",
				"dutch":                 "NL",
				"english":               "EN",
				"finnish":               "FI",
				"french":                "FR",
				"german":                "DE",
				"greek":                 "EL",
				"hungarian":             "HU",
				"indonesian":            "ID",
				"italian":               "IT",
				"japanese":              "JA",
				"korean":                "KO",
				"norwegian":             "NB",
				"polish":                "PL",
				"portuguese":            "PT",
				"romanian":              "RO",
				"russian":               "RU",
				"spanish":               "ES",
				"swedish":               "SV",
				"turkish":               "TR",
				"ukrainian":             "UK",
			},
			Tuning: Tuning{Timeout: defaultTimeout, MaxAttempts: 3, Concurrency: 4},
			AuthSignatures: []string{
				"status 403",
				"Authorization failure",
				"Wrong endpoint",
			},
		}, cfg, deps),
	}
}

func (s *DeepLService) Translate(ctx context.Context, req Request) (string, error) {
	return s.run(ctx, req, s.attempt)
}

func (s *DeepLService) endpoint(apiKey string) string {
	if s.fixedEndpoint {
		return s.desc.Endpoint
	}
	if strings.HasSuffix(apiKey, ":fx") {
		return deeplFreeEndpoint
	}
	return deeplProEndpoint
}

func (s *DeepLService) attempt(ctx context.Context, req Request, apiKey string) (string, error) {
	src, tgt, err := s.codes(req)
	if err != nil {
		return "", err
	}
	// Bare EN and PT are accepted as sources only.
	switch tgt {
	case "EN":
		tgt = "EN-US"
	case "PT":
		tgt = "PT-BR"
	}
	if i := strings.IndexByte(src, '-'); i > 0 {
		src = src[:i]
	}

	form := url.Values{}
	form.Set("text", req.Text)
	form.Set("target_lang", tgt)
	if src != "" {
		form.Set("source_lang", src)
	}
	if req.Kind == KindHTML {
		form.Set("tag_handling", "html")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(apiKey)+"/v2/translate", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "DeepL-Auth-Key "+apiKey)

	body, err := s.do(httpReq)
	if err != nil {
		return "", err
	}
	out := gjson.GetBytes(body, "translations.0.text").String()
	if out == "" {
		return "", s.upstreamFormat("no translations in response")
	}
	return out, nil
}
