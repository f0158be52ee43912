/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/valpere/tlumach/internal/cache"
	"github.com/valpere/tlumach/internal/config"
	"github.com/valpere/tlumach/internal/detector"
	"github.com/valpere/tlumach/internal/identity"
	"github.com/valpere/tlumach/internal/logging"
	"github.com/valpere/tlumach/internal/metrics"
	"github.com/valpere/tlumach/internal/orchestrator"
	"github.com/valpere/tlumach/internal/store"
	"github.com/valpere/tlumach/internal/translator"
)

// runtime is everything a command needs to translate.
type runtime struct {
	cfg       *config.Config
	logger    *log.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	providers []translator.Provider
	cache     *cache.Cache
	orch      *orchestrator.Orchestrator

	closers []io.Closer
}

// loadConfig reads the config and applies the persistent flags on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if len(providerList) > 0 {
		cfg.Enabled = nil
		for _, name := range providerList {
			cfg.Enabled = append(cfg.Enabled, strings.ToLower(strings.TrimSpace(name)))
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if detect {
		cfg.Orchestrator.Detect = true
	}
	return cfg, nil
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	rt := &runtime{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	rt.registry = prometheus.NewRegistry()
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.metrics = metrics.New(rt.registry)

	deps := translator.Deps{
		Rotator: identity.New(cfg.Identity.PoolSize, cfg.Identity.Seed),
		Logger:  logger,
		Metrics: rt.metrics,
	}
	for _, name := range cfg.Enabled {
		p, err := translator.New(name, cfg.Service(name), deps)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.providers = append(rt.providers, p)
	}

	if cfg.Cache.Enabled {
		c, closer, err := openCache(ctx, cfg.Cache, logger, rt.metrics)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.cache = c
		rt.closers = append(rt.closers, closer)
	}

	ocfg := orchestrator.Config{
		Mode:              orchestrator.Mode(cfg.Orchestrator.Mode),
		Merge:             orchestrator.Merge(cfg.Orchestrator.Merge),
		SourceLang:        cfg.Orchestrator.SourceLang,
		Timeout:           cfg.Orchestrator.Timeout,
		FreeOnlyThreshold: cfg.Orchestrator.FreeOnlyThreshold,
		Segmenter:         cfg.Segmenter.Options(),
		Cache:             rt.cache,
		Logger:            logger,
	}
	if cfg.Orchestrator.Detect {
		ocfg.Detector = detector.New()
	}
	rt.orch = orchestrator.New(rt.providers, ocfg)
	return rt, nil
}

// Close flushes the cache and releases storage and log files.
func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// openCache builds the cache over the configured backend and restores its
// saved entries. The closer flushes pending writes before closing storage.
func openCache(ctx context.Context, cc config.Cache, logger log.FieldLogger, m *metrics.Metrics) (*cache.Cache, io.Closer, error) {
	var (
		persister cache.Persister
		storage   io.Closer
	)
	switch cc.Backend {
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cc.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		db, err := store.New(cc.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		persister, storage = db, db
	case config.BackendFile:
		persister = cache.NewFilePersister(cc.Path)
	}

	c := cache.New(cache.Options{
		TTL:        cc.TTL,
		MaxEntries: cc.MaxEntries,
		Persister:  persister,
		Logger:     logger,
		Metrics:    m,
	})
	if n := c.Load(ctx); n > 0 {
		logger.WithField("entries", n).Debug("cache restored")
	}
	return c, closerFunc(func() error {
		err := c.Close()
		if storage != nil {
			err = errors.Join(err, storage.Close())
		}
		return err
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// readInput returns the named file, or stdin for "" and "-".
func readInput(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read input file: %w", err)
	}
	return string(data), nil
}

// writeOutput writes to the named file, or stdout for "" and "-".
func writeOutput(path, content string) error {
	if path == "" || path == "-" {
		_, err := io.WriteString(os.Stdout, content)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
