package translator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// LingvaService queries a Lingva Translate instance, a keyless front end
// for Google Translate.
type LingvaService struct {
	*base
}

func NewLingvaService(cfg ServiceConfig, deps Deps) *LingvaService {
	return &LingvaService{base: newBase(Descriptor{
		Name:     "lingva",
		Alias:    "Lingva Translate",
		Free:     true,
		Endpoint: "https://lingva.ml",
		AutoCode: "auto",
		Languages: languageTable(map[string]string{
			"chinese":               "zh",
			"chinese (simplified)":  "zh",
			"chinese (traditional)": "zh_HANT",
			"hebrew":                "iw",
		}),
		// The text travels in the URL path.
		Tuning: Tuning{Timeout: defaultTimeout, MaxAttempts: 2, Concurrency: 2, MaxChars: 1500},
	}, cfg, deps)}
}

func (s *LingvaService) Translate(ctx context.Context, req Request) (string, error) {
	return s.run(ctx, req, s.attempt)
}

func (s *LingvaService) attempt(ctx context.Context, req Request, _ string) (string, error) {
	src, tgt, err := s.codes(req)
	if err != nil {
		return "", err
	}

	reqURL := fmt.Sprintf("%s/api/v1/%s/%s/%s", s.desc.Endpoint, src, tgt, url.PathEscape(req.Text))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}
	body, err := s.do(httpReq)
	if err != nil {
		return "", err
	}

	res := gjson.ParseBytes(body)
	if msg := res.Get("error").String(); msg != "" {
		return "", s.upstreamFormat(msg)
	}
	out := res.Get("translation").String()
	if out == "" {
		return "", s.upstreamFormat("empty translation")
	}
	return out, nil
}
