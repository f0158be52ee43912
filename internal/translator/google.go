package translator

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// GoogleService talks to the keyless Google Translate web endpoint used by
// browser extensions (client=gtx).
type GoogleService struct {
	*base
}

// NewGoogleService creates the free Google Translate provider.
func NewGoogleService(cfg ServiceConfig, deps Deps) *GoogleService {
	return &GoogleService{base: newBase(Descriptor{
		Name:     "google",
		Alias:    "Google Translate",
		Free:     true,
		Endpoint: "https://translate.googleapis.com/translate_a/single",
		AutoCode: "auto",
		Languages: languageTable(map[string]string{
			"chinese":               "zh-CN",
			"chinese (simplified)":  "zh-CN",
			"chinese (traditional)": "zh-TW",
			"hebrew":                "iw",
		}),
		Tuning: Tuning{Timeout: defaultTimeout, MaxAttempts: 3, Concurrency: 4, MaxChars: 4500},
	}, cfg, deps)}
}

func (s *GoogleService) Translate(ctx context.Context, req Request) (string, error) {
	return s.run(ctx, req, s.attempt)
}

func (s *GoogleService) attempt(ctx context.Context, req Request, _ string) (string, error) {
	src, tgt, err := s.codes(req)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", src)
	q.Set("tl", tgt)
	q.Set("dt", "t")
	q.Set("q", req.Text)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.desc.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	body, err := s.do(httpReq)
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(body) {
		return "", s.upstreamFormat("invalid JSON")
	}

	// [[["translated","source",...],["more","source",...]],null,"en",...]
	var sb strings.Builder
	gjson.GetBytes(body, "0").ForEach(func(_, sentence gjson.Result) bool {
		sb.WriteString(sentence.Get("0").String())
		return true
	})
	if sb.Len() == 0 {
		return "", s.upstreamFormat("no sentences in response")
	}
	return sb.String(), nil
}
