package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/tlumach/internal/cache"
	"github.com/valpere/tlumach/internal/metrics"
	"github.com/valpere/tlumach/internal/orchestrator"
	"github.com/valpere/tlumach/internal/segmenter"
	"github.com/valpere/tlumach/internal/translator"
)

type stubProvider struct {
	desc translator.Descriptor
	fail bool
}

func (p *stubProvider) Descriptor() *translator.Descriptor { return &p.desc }

func (p *stubProvider) Translate(_ context.Context, req translator.Request) (string, error) {
	if p.fail {
		return "", errors.New("down")
	}
	return strings.ToUpper(req.Text), nil
}

func (p *stubProvider) LanguageCode(lang string) (string, bool) { return lang, true }
func (p *stubProvider) IsRecoverable(error) bool                { return true }
func (p *stubProvider) IsAuthFailure(error) bool                { return false }

func newTestServer(t *testing.T, fail bool) (*Server, *cache.Cache) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := cache.New(cache.Options{Metrics: m})
	orch := orchestrator.New(
		[]translator.Provider{&stubProvider{desc: translator.Descriptor{Name: "stub", Alias: "Stub", Free: true}, fail: fail}},
		orchestrator.Config{Cache: c, Segmenter: segmenter.Options{WavePause: time.Millisecond}},
	)
	return New(orch, Options{Gatherer: reg}), c
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, false)
	w := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestTranslate(t *testing.T) {
	s, _ := newTestServer(t, false)
	w := do(t, s, http.MethodPost, "/v1/translate", `{"text":"hello","target_lang":"uk"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp translateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "HELLO", resp.Translation)
	assert.Equal(t, "auto", resp.SourceLang)
	assert.Equal(t, "uk", resp.TargetLang)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestTranslate_BadRequest(t *testing.T) {
	s, _ := newTestServer(t, false)
	w := do(t, s, http.MethodPost, "/v1/translate", `{"text":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTranslate_AllProvidersFailed(t *testing.T) {
	s, _ := newTestServer(t, true)
	w := do(t, s, http.MethodPost, "/v1/translate", `{"text":"hello","target_lang":"uk"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "all providers failed")
}

func TestTranslateHTML(t *testing.T) {
	s, _ := newTestServer(t, false)
	w := do(t, s, http.MethodPost, "/v1/translate/html", `{"html":"<p>Hello</p><p>World</p>","target_lang":"uk"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp htmlResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "<p>HELLO</p><p>WORLD</p>", resp.HTML)
}

func TestTranslateHTML_FailureReturnsOriginal(t *testing.T) {
	s, _ := newTestServer(t, true)
	w := do(t, s, http.MethodPost, "/v1/translate/html", `{"html":"<p>Hello</p>","target_lang":"uk"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp htmlResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "<p>Hello</p>", resp.HTML)
}

func TestProviders(t *testing.T) {
	s, _ := newTestServer(t, false)
	w := do(t, s, http.MethodGet, "/v1/providers", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`{"providers":[{"name":"stub","alias":"Stub","free":true,"needs_credential":false,"html_safe":false}]}`,
		w.Body.String())
}

func TestCacheStatsAndClear(t *testing.T) {
	s, c := newTestServer(t, false)
	do(t, s, http.MethodPost, "/v1/translate", `{"text":"hello","target_lang":"uk"}`)
	require.Equal(t, 1, c.Len())

	w := do(t, s, http.MethodGet, "/v1/cache", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"entries":1`)

	w = do(t, s, http.MethodDelete, "/v1/cache", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, c.Len())
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t, false)
	do(t, s, http.MethodPost, "/v1/translate", `{"text":"hello","target_lang":"uk"}`)

	w := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `tlumach_cache_lookups_total{result="miss"} 1`)
}
