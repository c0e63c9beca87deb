package providers

import (
	"context"
	"os"

	"github.com/pkg/errors"
)

// Options selects and configures one backend.
type Options struct {
	Provider string // registry name; empty means detect from the model
	Model    string
	APIKey   string
	APIBase  string
}

// New builds the provider named by opts. A missing key falls back to the
// registry's env var. Hosted providers without any key are an error.
func New(ctx context.Context, opts Options) (LLMProvider, error) {
	spec := FindByName(opts.Provider)
	if spec == nil && opts.Provider != "" {
		return nil, errors.Errorf("unknown provider %q", opts.Provider)
	}
	if spec == nil {
		spec = FindGateway("", opts.APIKey, opts.APIBase)
	}
	if spec == nil {
		spec = FindByModel(opts.Model)
	}

	apiKey := opts.APIKey
	if apiKey == "" && spec != nil && spec.EnvKey != "" {
		apiKey = os.Getenv(spec.EnvKey)
	}

	name := ""
	if spec != nil {
		name = spec.Name
	}
	switch name {
	case "gemini":
		p, err := NewGeminiProvider(ctx, apiKey, opts.Model)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "anthropic":
		p, err := NewAnthropicProvider(apiKey, opts.APIBase, opts.Model)
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	if apiKey == "" && (spec == nil || !spec.IsLocal) {
		return nil, errors.Wrapf(ErrNoAPIKey, "provider %q", name)
	}
	apiBase := opts.APIBase
	if apiBase == "" && spec != nil {
		apiBase = spec.DefaultAPIBase
	}
	return NewProvider(apiKey, apiBase, opts.Model, name), nil
}
