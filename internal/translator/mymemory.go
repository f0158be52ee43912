package translator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// MyMemoryService is the free MyMemory translation memory API. An email
// raises the anonymous daily quota; an optional key unlocks private memories.
type MyMemoryService struct {
	*base
	email string
}

func NewMyMemoryService(cfg ServiceConfig, deps Deps) *MyMemoryService {
	return &MyMemoryService{
		email: cfg.Email,
		base: newBase(Descriptor{
			Name:     "mymemory",
			Alias:    "MyMemory",
			Free:     true,
			Endpoint: "https://api.mymemory.translated.net/get",
			// MyMemory has no auto-detect; English is the usual source.
			AutoCode: "en",
			Languages: languageTable(map[string]string{
				"chinese":               "zh-CN",
				"chinese (simplified)":  "zh-CN",
				"chinese (traditional)": "zh-TW",
			}),
			Tuning: Tuning{Timeout: defaultTimeout, MaxAttempts: 2, Concurrency: 2, MaxChars: 500},
		}, cfg, deps),
	}
}

func (s *MyMemoryService) Translate(ctx context.Context, req Request) (string, error) {
	return s.run(ctx, req, s.attempt)
}

func (s *MyMemoryService) attempt(ctx context.Context, req Request, key string) (string, error) {
	src, tgt, err := s.codes(req)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("q", req.Text)
	q.Set("langpair", fmt.Sprintf("%s|%s", src, tgt))
	if s.email != "" {
		q.Set("de", s.email)
	}
	if key != "" {
		q.Set("key", key)
	}

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

	// responseStatus is a number on success and sometimes a string on errors.
	res := gjson.ParseBytes(body)
	status := int(res.Get("responseStatus").Int())
	text := res.Get("responseData.translatedText").String()
	if status != http.StatusOK {
		return "", &StatusError{Provider: s.desc.Name, StatusCode: status, Body: res.Get("responseDetails").String()}
	}
	// Quota exhaustion comes back as 200 with a warning in place of the text.
	if strings.HasPrefix(text, "MYMEMORY WARNING") {
		return "", &StatusError{Provider: s.desc.Name, StatusCode: http.StatusTooManyRequests, Body: text}
	}
	if text == "" {
		return "", s.upstreamFormat("empty translatedText")
	}
	return text, nil
}
