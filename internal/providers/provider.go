package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/dayuer/haggle-go/internal/utils"
)

const defaultOpenAIBase = "https://api.openai.com/v1"

// Provider talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, OpenRouter, DeepSeek, Groq, a local vLLM).
type Provider struct {
	APIKey       string
	APIBase      string
	Model        string // default model
	ExtraHeaders map[string]string
	HTTPClient   *http.Client

	gateway *ProviderSpec // detected gateway, if any
}

// NewProvider creates a Provider with given config.
func NewProvider(apiKey, apiBase, defaultModel, providerName string) *Provider {
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}

	p := &Provider{
		APIKey:     apiKey,
		APIBase:    apiBase,
		Model:      defaultModel,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}

	p.gateway = FindGateway(providerName, apiKey, apiBase)
	return p
}

// DefaultModel satisfies the LLMProvider interface.
func (p *Provider) DefaultModel() string { return p.Model }

// maxResponseBytes caps how much of a completion body is read.
const maxResponseBytes = 1 << 20

// HTTPError is a non-200 answer from a chat completions endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("LLM returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the call may succeed if repeated later.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type completionRequest struct {
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	MaxTokens      int               `json:"max_tokens"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

// Chat sends one chat completion request.
func (p *Provider) Chat(ctx context.Context, req ChatRequest) (*LLMResponse, error) {
	model := req.Model
	if model == "" {
		model = p.Model
	}
	model = p.resolveModel(model)

	body := completionRequest{
		Model:       model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: p.temperatureFor(model, req.Temperature),
	}
	if body.MaxTokens < 1 {
		body.MaxTokens = 1024
	}
	if req.JSON {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	apiBase, apiKey := p.endpoint(model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(apiBase, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}
	for k, v := range p.ExtraHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "call LLM")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: utils.TruncateString(string(raw), 300, "...")}
	}
	return decodeCompletion(raw)
}

// endpoint resolves the base URL and key for a model. An explicit APIBase
// wins; otherwise the registry supplies the provider's default base and
// its env var key.
func (p *Provider) endpoint(model string) (string, string) {
	apiBase, apiKey := p.APIBase, p.APIKey
	if apiBase == "" {
		if spec := FindByModel(model); spec != nil {
			apiBase = spec.DefaultAPIBase
			if apiKey == "" && spec.EnvKey != "" {
				apiKey = os.Getenv(spec.EnvKey)
			}
		}
	}
	if apiBase == "" && p.gateway != nil {
		apiBase = p.gateway.DefaultAPIBase
	}
	if apiBase == "" {
		apiBase = defaultOpenAIBase
	}
	return apiBase, apiKey
}

func (p *Provider) resolveModel(model string) string {
	if p.gateway != nil {
		prefix := p.gateway.RoutePrefix
		if p.gateway.StripModelPrefix {
			parts := strings.SplitN(model, "/", 2)
			model = parts[len(parts)-1]
		}
		if prefix != "" && !strings.HasPrefix(model, prefix+"/") {
			model = prefix + "/" + model
		}
		return model
	}

	// Direct calls to a provider's own API drop the "provider/" prefix.
	spec := FindByModel(model)
	if spec != nil && spec.DefaultAPIBase != "" {
		if idx := strings.Index(model, "/"); idx >= 0 {
			model = model[idx+1:]
		}
	}
	return model
}

// temperatureFor applies registry overrides for models that pin their
// sampling temperature.
func (p *Provider) temperatureFor(model string, requested float64) float64 {
	spec := FindByModel(model)
	if spec == nil {
		return requested
	}
	lower := strings.ToLower(model)
	for _, ov := range spec.ModelOverrides {
		if !strings.Contains(lower, ov.Pattern) {
			continue
		}
		if t, ok := ov.Overrides["temperature"].(float64); ok {
			return t
		}
		break
	}
	return requested
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func decodeCompletion(raw []byte) (*LLMResponse, error) {
	var resp completionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Wrap(err, "parse response")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}
	choice := resp.Choices[0]
	if choice.Message.Content == nil || strings.TrimSpace(*choice.Message.Content) == "" {
		return nil, ErrEmptyResponse
	}

	out := &LLMResponse{
		Content:      *choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: map[string]int{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		},
	}
	if out.FinishReason == "" {
		out.FinishReason = "stop"
	}
	return out, nil
}
