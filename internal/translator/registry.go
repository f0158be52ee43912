package translator

import (
	"fmt"
	"sort"
)

// Constructor builds a provider from its configuration.
type Constructor func(cfg ServiceConfig, deps Deps) Provider

var registry = map[string]Constructor{
	"google":         func(c ServiceConfig, d Deps) Provider { return NewGoogleService(c, d) },
	"googlecloud":    func(c ServiceConfig, d Deps) Provider { return NewGoogleCloudService(c, d) },
	"mymemory":       func(c ServiceConfig, d Deps) Provider { return NewMyMemoryService(c, d) },
	"lingva":         func(c ServiceConfig, d Deps) Provider { return NewLingvaService(c, d) },
	"libretranslate": func(c ServiceConfig, d Deps) Provider { return NewLibreTranslateService(c, d) },
	"deepl":          func(c ServiceConfig, d Deps) Provider { return NewDeepLService(c, d) },
	"systran":        func(c ServiceConfig, d Deps) Provider { return NewSystranService(c, d) },
	"openai":         func(c ServiceConfig, d Deps) Provider { return NewOpenAIService(c, d) },
	"openrouter":     func(c ServiceConfig, d Deps) Provider { return NewOpenRouterService(c, d) },
	"deepseek":       func(c ServiceConfig, d Deps) Provider { return NewDeepSeekService(c, d) },
	"ollama":         func(c ServiceConfig, d Deps) Provider { return NewOllamaService(c, d) },
}

// DefaultOrder is the provider order used when none is configured: free
// services first, then credentialed ones.
var DefaultOrder = []string{
	"google", "lingva", "mymemory", "libretranslate",
	"deepl", "googlecloud", "systran", "openrouter", "openai", "deepseek", "ollama",
}

// New builds the named provider.
func New(name string, cfg ServiceConfig, deps Deps) (Provider, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return ctor(cfg, deps), nil
}

// Names lists every registered provider in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
