package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/tidwall/gjson"
)

// SystranService calls the Systran translation API through RapidAPI.
type SystranService struct {
	*base
}

func NewSystranService(cfg ServiceConfig, deps Deps) *SystranService {
	return &SystranService{base: newBase(Descriptor{
		Name:            "systran",
		Alias:           "Systran",
		NeedsCredential: true,
		Endpoint:        "https://api-systran-systran-translation-v1.p.rapidapi.com/translation/text/translate",
		AutoCode:        "auto",
		Languages: languageTable(nil,
			"catalan", "hindi", "malay", "thai", "vietnamese"),
		Tuning: Tuning{Timeout: defaultTimeout, MaxAttempts: 3, Concurrency: 2, MaxChars: 5000},
		AuthSignatures: []string{
			"status 401",
			"status 403",
			"You are not subscribed",
			"Invalid API key",
		},
	}, cfg, deps)}
}

func (s *SystranService) Translate(ctx context.Context, req Request) (string, error) {
	return s.run(ctx, req, s.attempt)
}

func (s *SystranService) attempt(ctx context.Context, req Request, apiKey string) (string, error) {
	src, tgt, err := s.codes(req)
	if err != nil {
		return "", err
	}

	format := "text"
	if req.Kind == KindHTML {
		format = "html"
	}
	payload, err := json.Marshal(map[string]any{
		"input":  []string{req.Text},
		"source": src,
		"target": tgt,
		"format": format,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.desc.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-RapidAPI-Key", apiKey)
	httpReq.Header.Set("X-RapidAPI-Host", httpReq.URL.Host)

	body, err := s.do(httpReq)
	if err != nil {
		return "", err
	}
	out := gjson.GetBytes(body, "outputs.0.output").String()
	if out == "" {
		if msg := gjson.GetBytes(body, "outputs.0.error").String(); msg != "" {
			return "", s.upstreamFormat(msg)
		}
		return "", s.upstreamFormat("empty translation response")
	}
	return out, nil
}
