package translator

var DefaultOpenAIModels = []string{"gpt-4o-mini"}

var DefaultOpenRouterModels = []string{
	"google/gemini-2.0-flash-exp:free",
	"qwen/qwen2.5-72b-instruct:free",
	"mistralai/mistral-nemo:free",
	"meta-llama/llama-3.1-8b-instruct:free",
}

var DefaultDeepSeekModels = []string{"deepseek-chat"}

func chatDescriptor(name, alias, endpoint string) Descriptor {
	return Descriptor{
		Name:            name,
		Alias:           alias,
		NeedsCredential: true,
		HTMLSafe:        true,
		Endpoint:        endpoint,
		Tuning:          Tuning{Timeout: 3 * defaultTimeout, MaxAttempts: 2, Concurrency: 2, MaxChars: 6000},
		AuthSignatures:  chatAuthSignatures,
	}
}

// NewOpenAIService creates the OpenAI chat completions provider.
func NewOpenAIService(cfg ServiceConfig, deps Deps) *PromptAdapter {
	return newPromptAdapter(chatDescriptor("openai", "OpenAI", "https://api.openai.com/v1"),
		DefaultOpenAIModels, cfg, deps)
}

// NewOpenRouterService creates the OpenRouter provider. Requests pick a model
// at random from the configured pool.
func NewOpenRouterService(cfg ServiceConfig, deps Deps) *PromptAdapter {
	p := newPromptAdapter(chatDescriptor("openrouter", "OpenRouter", "https://openrouter.ai/api/v1"),
		DefaultOpenRouterModels, cfg, deps)
	p.headers.Set("HTTP-Referer", "https://github.com/valpere/tlumach")
	p.headers.Set("X-Title", "tlumach")
	return p
}

// NewDeepSeekService creates the DeepSeek provider.
func NewDeepSeekService(cfg ServiceConfig, deps Deps) *PromptAdapter {
	return newPromptAdapter(chatDescriptor("deepseek", "DeepSeek", "https://api.deepseek.com/v1"),
		DefaultDeepSeekModels, cfg, deps)
}
