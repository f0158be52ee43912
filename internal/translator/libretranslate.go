package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/tidwall/gjson"
)

// LibreTranslateService talks to a LibreTranslate server. Self-hosted
// instances need no key; public ones take one in the request body.
type LibreTranslateService struct {
	*base
}

func NewLibreTranslateService(cfg ServiceConfig, deps Deps) *LibreTranslateService {
	return &LibreTranslateService{base: newBase(Descriptor{
		Name:     "libretranslate",
		Alias:    "LibreTranslate",
		HTMLSafe: true,
		Endpoint: "http://localhost:5000",
		AutoCode: "auto",
		Languages: languageTable(map[string]string{
			"chinese (traditional)": "zt",
			"norwegian":             "nb",
		}),
		Tuning: Tuning{Timeout: 2 * defaultTimeout, MaxAttempts: 3, Concurrency: 4},
		AuthSignatures: []string{
			"Invalid API key",
			"Visit https://portal.libretranslate.com",
			"status 403",
		},
	}, cfg, deps)}
}

func (s *LibreTranslateService) Translate(ctx context.Context, req Request) (string, error) {
	return s.run(ctx, req, s.attempt)
}

func (s *LibreTranslateService) attempt(ctx context.Context, req Request, apiKey string) (string, error) {
	src, tgt, err := s.codes(req)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"q":      req.Text,
		"source": src,
		"target": tgt,
		"format": "text",
	}
	if req.Kind == KindHTML {
		payload["format"] = "html"
	}
	if apiKey != "" {
		payload["api_key"] = apiKey
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.desc.Endpoint+"/translate", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	body, err := s.do(httpReq)
	if err != nil {
		return "", err
	}
	res := gjson.ParseBytes(body)
	if msg := res.Get("error").String(); msg != "" {
		return "", s.upstreamFormat(msg)
	}
	out := res.Get("translatedText").String()
	if out == "" {
		return "", s.upstreamFormat("empty translatedText")
	}
	return out, nil
}
