package providers

import "strings"

// ProviderSpec holds metadata for one LLM provider.
type ProviderSpec struct {
	Name              string          // config value, e.g. "deepseek"
	Keywords          []string        // model-name keywords for matching (lowercase)
	EnvKey            string          // env var for API key
	DisplayName       string          // shown in status
	RoutePrefix       string          // model prefix a gateway expects
	IsGateway         bool            // can route any model (OpenRouter)
	IsLocal           bool            // local deployment (vLLM)
	Native            bool            // served by a vendor SDK instead of the OpenAI-compatible client
	DetectByKeyPrefix string          // match api key prefix
	DetectByBaseKW    string          // match substring in api base URL
	DefaultAPIBase    string          // fallback base URL
	StripModelPrefix  bool            // strip "provider/" before re-prefixing
	ModelOverrides    []ModelOverride // per-model param overrides
}

// ModelOverride applies parameter overrides when a model name matches a pattern.
type ModelOverride struct {
	Pattern   string         // substring to match in model name (lowercase)
	Overrides map[string]any // params to override
}

// Label returns a display label.
func (s *ProviderSpec) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	if s.Name == "" {
		return ""
	}
	return strings.ToUpper(s.Name[:1]) + s.Name[1:]
}

// Providers is the registry. Order = priority. Gateways first.
var Providers = []*ProviderSpec{
	{
		Name: "custom", EnvKey: "OPENAI_API_KEY",
		DisplayName: "Custom", IsGateway: true, StripModelPrefix: true,
	},
	{
		Name: "openrouter", Keywords: []string{"openrouter"},
		EnvKey: "OPENROUTER_API_KEY", DisplayName: "OpenRouter",
		IsGateway:         true,
		DetectByKeyPrefix: "sk-or-", DetectByBaseKW: "openrouter",
		DefaultAPIBase: "https://openrouter.ai/api/v1",
	},
	{
		Name: "anthropic", Keywords: []string{"anthropic", "claude"},
		EnvKey: "ANTHROPIC_API_KEY", DisplayName: "Anthropic", Native: true,
	},
	{
		Name: "gemini", Keywords: []string{"gemini"},
		EnvKey: "GEMINI_API_KEY", DisplayName: "Gemini", Native: true,
	},
	{
		Name: "openai", Keywords: []string{"openai", "gpt"},
		EnvKey: "OPENAI_API_KEY", DisplayName: "OpenAI",
		DefaultAPIBase: defaultOpenAIBase,
	},
	{
		Name: "deepseek", Keywords: []string{"deepseek"},
		EnvKey: "DEEPSEEK_API_KEY", DisplayName: "DeepSeek",
		DefaultAPIBase: "https://api.deepseek.com/v1",
	},
	{
		Name: "groq", Keywords: []string{"groq", "llama"},
		EnvKey: "GROQ_API_KEY", DisplayName: "Groq",
		DefaultAPIBase: "https://api.groq.com/openai/v1",
		ModelOverrides: []ModelOverride{
			{Pattern: "qwen3", Overrides: map[string]any{"temperature": 0.6}},
		},
	},
	{
		Name: "vllm", Keywords: []string{"vllm"},
		EnvKey: "HOSTED_VLLM_API_KEY", DisplayName: "vLLM/Local",
		IsLocal: true, DefaultAPIBase: "http://localhost:8000/v1",
	},
}

// FindByModel returns a standard provider spec matching a model name keyword.
// Skips gateways and local providers.
func FindByModel(model string) *ProviderSpec {
	lower := strings.ToLower(model)
	for _, spec := range Providers {
		if spec.IsGateway || spec.IsLocal {
			continue
		}
		for _, kw := range spec.Keywords {
			if strings.Contains(lower, kw) {
				return spec
			}
		}
	}
	return nil
}

// FindGateway detects a gateway/local provider.
// Priority: 1) provider name  2) api key prefix  3) api base keyword.
func FindGateway(providerName, apiKey, apiBase string) *ProviderSpec {
	if providerName != "" {
		spec := FindByName(providerName)
		if spec != nil && (spec.IsGateway || spec.IsLocal) {
			return spec
		}
	}
	for _, spec := range Providers {
		if spec.DetectByKeyPrefix != "" && apiKey != "" &&
			strings.HasPrefix(apiKey, spec.DetectByKeyPrefix) {
			return spec
		}
		if spec.DetectByBaseKW != "" && apiBase != "" &&
			strings.Contains(apiBase, spec.DetectByBaseKW) {
			return spec
		}
	}
	return nil
}

// FindByName finds a provider spec by config name.
func FindByName(name string) *ProviderSpec {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, spec := range Providers {
		if spec.Name == name {
			return spec
		}
	}
	return nil
}
