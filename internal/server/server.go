// Package server exposes the orchestrator over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/valpere/tlumach/internal/cache"
	"github.com/valpere/tlumach/internal/logging"
	"github.com/valpere/tlumach/internal/orchestrator"
	"github.com/valpere/tlumach/internal/translator"
)

// Translator is the part of the orchestrator the server needs.
type Translator interface {
	TranslateFrom(ctx context.Context, text, sourceLang, targetLang string) (string, error)
	TranslateHTMLFrom(ctx context.Context, markup, sourceLang, targetLang string) string
	Providers() []translator.Provider
	ClearCache(ctx context.Context) error
	Cache() *cache.Cache
}

type Options struct {
	Addr string
	// Gatherer serves /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   log.FieldLogger
}

type Server struct {
	translator Translator
	engine     *gin.Engine
	server     *http.Server
	log        log.FieldLogger
}

// New builds the router. Call gin.SetMode beforehand to pick the mode.
func New(t Translator, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{translator: t, log: logger.WithField("component", "server")}

	engine := gin.New()
	engine.Use(logging.GinLogger(s.log), logging.GinRecovery(s.log))

	engine.GET("/healthz", s.health)
	metrics := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	engine.GET("/metrics", func(c *gin.Context) {
		logging.SkipRequestLogging(c)
		metrics.ServeHTTP(c.Writer, c.Request)
	})

	v1 := engine.Group("/v1")
	v1.POST("/translate", s.translate)
	v1.POST("/translate/html", s.translateHTML)
	v1.GET("/providers", s.providers)
	v1.GET("/cache", s.cacheStats)
	v1.DELETE("/cache", s.clearCache)

	s.engine = engine
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.log.Infof("listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

type translateRequest struct {
	Text       string `json:"text" binding:"required"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang" binding:"required"`
}

type translateResponse struct {
	Translation string `json:"translation"`
	SourceLang  string `json:"source_lang"`
	TargetLang  string `json:"target_lang"`
}

type htmlRequest struct {
	HTML       string `json:"html" binding:"required"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang" binding:"required"`
}

type htmlResponse struct {
	HTML       string `json:"html"`
	TargetLang string `json:"target_lang"`
}

type providerInfo struct {
	Name            string `json:"name"`
	Alias           string `json:"alias"`
	Free            bool   `json:"free"`
	NeedsCredential bool   `json:"needs_credential"`
	HTMLSafe        bool   `json:"html_safe"`
}

func (s *Server) health(c *gin.Context) {
	logging.SkipRequestLogging(c)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) translate(c *gin.Context) {
	var req translateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	src := sourceOrAuto(req.SourceLang)
	out, err := s.translator.TranslateFrom(c.Request.Context(), req.Text, src, req.TargetLang)
	if err != nil {
		_ = c.Error(err)
		status := http.StatusInternalServerError
		if errors.Is(err, orchestrator.ErrAllProvidersFailed) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, translateResponse{Translation: out, SourceLang: src, TargetLang: req.TargetLang})
}

func (s *Server) translateHTML(c *gin.Context) {
	var req htmlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out := s.translator.TranslateHTMLFrom(c.Request.Context(), req.HTML, sourceOrAuto(req.SourceLang), req.TargetLang)
	c.JSON(http.StatusOK, htmlResponse{HTML: out, TargetLang: req.TargetLang})
}

func (s *Server) providers(c *gin.Context) {
	list := make([]providerInfo, 0, len(s.translator.Providers()))
	for _, p := range s.translator.Providers() {
		d := p.Descriptor()
		list = append(list, providerInfo{
			Name:            d.Name,
			Alias:           d.Alias,
			Free:            d.Free,
			NeedsCredential: d.NeedsCredential,
			HTMLSafe:        d.HTMLSafe,
		})
	}
	c.JSON(http.StatusOK, gin.H{"providers": list})
}

func (s *Server) cacheStats(c *gin.Context) {
	cc := s.translator.Cache()
	if cc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "cache disabled"})
		return
	}
	c.JSON(http.StatusOK, cc.Stats())
}

func (s *Server) clearCache(c *gin.Context) {
	if err := s.translator.ClearCache(c.Request.Context()); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func sourceOrAuto(lang string) string {
	if lang == "" {
		return "auto"
	}
	return lang
}
