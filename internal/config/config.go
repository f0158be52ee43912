// Package config loads tlumach settings from a config file, TLUMACH_*
// environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/valpere/tlumach/internal/cache"
	"github.com/valpere/tlumach/internal/identity"
	"github.com/valpere/tlumach/internal/orchestrator"
	"github.com/valpere/tlumach/internal/segmenter"
	"github.com/valpere/tlumach/internal/translator"
)

const EnvPrefix = "TLUMACH"

// Cache backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

type Config struct {
	// Enabled lists the providers to use, in priority order.
	Enabled      []string                            `mapstructure:"enabled"`
	Providers    map[string]translator.ServiceConfig `mapstructure:"providers"`
	Orchestrator Orchestrator                        `mapstructure:"orchestrator"`
	Cache        Cache                               `mapstructure:"cache"`
	Identity     Identity                            `mapstructure:"identity"`
	Segmenter    Segmenter                           `mapstructure:"segmenter"`
	Log          Log                                 `mapstructure:"log"`
	Server       Server                              `mapstructure:"server"`
}

type Orchestrator struct {
	Mode              string        `mapstructure:"mode"`
	Merge             string        `mapstructure:"merge"`
	SourceLang        string        `mapstructure:"source_lang"`
	Timeout           time.Duration `mapstructure:"timeout"`
	FreeOnlyThreshold int           `mapstructure:"free_only_threshold"`
	// Detect resolves "auto" locally before providers are called.
	Detect bool `mapstructure:"detect"`
}

type Cache struct {
	Enabled    bool          `mapstructure:"enabled"`
	Backend    string        `mapstructure:"backend"`
	Path       string        `mapstructure:"path"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

type Identity struct {
	PoolSize int   `mapstructure:"pool_size"`
	Seed     int64 `mapstructure:"seed"`
}

type Segmenter struct {
	GroupCap    int           `mapstructure:"group_cap"`
	SmallNode   int           `mapstructure:"small_node"`
	Concurrency int           `mapstructure:"concurrency"`
	WavePause   time.Duration `mapstructure:"wave_pause"`
}

// Options converts the section for the segmenter package.
func (s Segmenter) Options() segmenter.Options {
	return segmenter.Options{
		GroupCap:    s.GroupCap,
		SmallNode:   s.SmallNode,
		Concurrency: s.Concurrency,
		WavePause:   s.WavePause,
	}
}

type Log struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type Server struct {
	Addr string `mapstructure:"addr"`
	// GinMode is passed to gin.SetMode.
	GinMode string `mapstructure:"gin_mode"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("enabled", []string{"google", "lingva", "mymemory"})

	v.SetDefault("orchestrator.mode", string(orchestrator.ModeMulti))
	v.SetDefault("orchestrator.merge", string(orchestrator.MergeFirst))
	v.SetDefault("orchestrator.source_lang", "auto")
	v.SetDefault("orchestrator.timeout", time.Duration(0))
	v.SetDefault("orchestrator.free_only_threshold", orchestrator.DefaultFreeOnlyThreshold)
	v.SetDefault("orchestrator.detect", false)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", BackendSQLite)
	v.SetDefault("cache.path", "./data/tlumach.db")
	v.SetDefault("cache.ttl", cache.DefaultTTL)
	v.SetDefault("cache.max_entries", cache.DefaultMaxEntries)

	v.SetDefault("identity.pool_size", identity.DefaultPoolSize)
	v.SetDefault("identity.seed", int64(0))

	v.SetDefault("segmenter.group_cap", segmenter.DefaultGroupCap)
	v.SetDefault("segmenter.small_node", segmenter.DefaultSmallNode)
	v.SetDefault("segmenter.concurrency", segmenter.DefaultConcurrency)
	v.SetDefault("segmenter.wave_pause", segmenter.DefaultWavePause)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.gin_mode", "release")
}

// Load reads the configuration. An empty path searches ./tlumach.* and
// $HOME/.config/tlumach/tlumach.*; a missing file there is not an error.
// A .env file in the working directory is loaded first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("failed to load .env file")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("tlumach")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/tlumach")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]translator.ServiceConfig)
	}
	cfg.Enabled = normalizeNames(cfg.Enabled)
	applyEnvCredentials(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvCredentials adds keys from TLUMACH_<PROVIDER>_KEYS (comma
// separated) ahead of any configured ones.
func applyEnvCredentials(cfg *Config) {
	for _, name := range translator.Names() {
		raw := os.Getenv(EnvPrefix + "_" + strings.ToUpper(name) + "_KEYS")
		if strings.TrimSpace(raw) == "" {
			continue
		}
		var keys []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		sc := cfg.Providers[name]
		sc.Credentials = append(keys, sc.Credentials...)
		cfg.Providers[name] = sc
	}
}

func normalizeNames(names []string) []string {
	var out []string
	for _, n := range names {
		for _, part := range strings.Split(n, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" && !slices.Contains(out, part) {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if len(c.Enabled) == 0 {
		return errors.New("no providers enabled")
	}
	known := translator.Names()
	for _, name := range c.Enabled {
		if !slices.Contains(known, name) {
			return fmt.Errorf("unknown provider %q (known: %s)", name, strings.Join(known, ", "))
		}
	}
	switch orchestrator.Mode(c.Orchestrator.Mode) {
	case orchestrator.ModeMulti, orchestrator.ModeSingle:
	default:
		return fmt.Errorf("invalid orchestrator mode %q", c.Orchestrator.Mode)
	}
	switch orchestrator.Merge(c.Orchestrator.Merge) {
	case orchestrator.MergeFirst, orchestrator.MergeVote, orchestrator.MergeAverage:
	default:
		return fmt.Errorf("invalid merge strategy %q", c.Orchestrator.Merge)
	}
	switch c.Cache.Backend {
	case BackendSQLite, BackendFile, BackendMemory:
	default:
		return fmt.Errorf("invalid cache backend %q", c.Cache.Backend)
	}
	for _, name := range slices.Sorted(maps.Keys(c.Providers)) {
		if proxy := c.Providers[name].Proxy; proxy != "" {
			if _, err := identity.ParseProxy(proxy); err != nil {
				return fmt.Errorf("providers.%s.proxy: %w", name, err)
			}
		}
	}
	return nil
}

// Service returns the configuration of the named provider.
func (c *Config) Service(name string) translator.ServiceConfig {
	return c.Providers[name]
}
