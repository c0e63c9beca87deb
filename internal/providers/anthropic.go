package providers

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"
)

// AnthropicProvider calls the Messages API through the official SDK.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider creates a Claude-backed provider. apiBase is optional.
func NewAnthropicProvider(apiKey, apiBase, model string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errors.Wrap(ErrNoAPIKey, "anthropic")
	}
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{client: &client, model: strings.TrimPrefix(model, "anthropic/")}, nil
}

// DefaultModel satisfies the LLMProvider interface.
func (a *AnthropicProvider) DefaultModel() string { return a.model }

// Chat sends one Messages.New call.
func (a *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*LLMResponse, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}
	maxTokens := req.MaxTokens
	if maxTokens < 1 {
		maxTokens = 1024
	}

	system, msgs := toAnthropicMessages(req.Messages)
	params := anthropic.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Model:     anthropic.Model(model),
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic messages")
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return nil, ErrEmptyResponse
	}

	return &LLMResponse{
		Content:      sb.String(),
		FinishReason: string(resp.StopReason),
		Usage: map[string]int{
			"prompt_tokens":     int(resp.Usage.InputTokens),
			"completion_tokens": int(resp.Usage.OutputTokens),
			"total_tokens":      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// toAnthropicMessages merges consecutive turns of the same role, since the
// Messages API expects user and assistant to alternate starting with user.
func toAnthropicMessages(msgs []Message) (string, []anthropic.MessageParam) {
	system, turns := splitSystem(msgs)

	type turn struct {
		role string
		text []string
	}
	var merged []turn
	for _, m := range turns {
		role := RoleUser
		if m.Role == RoleAssistant {
			role = RoleAssistant
		}
		if len(merged) == 0 && role == RoleAssistant {
			merged = append(merged, turn{role: RoleUser, text: []string{"(conversation start)"}})
		}
		if n := len(merged); n > 0 && merged[n-1].role == role {
			merged[n-1].text = append(merged[n-1].text, m.Content)
			continue
		}
		merged = append(merged, turn{role: role, text: []string{m.Content}})
	}

	out := make([]anthropic.MessageParam, 0, len(merged))
	for _, t := range merged {
		block := anthropic.NewTextBlock(strings.Join(t.text, "\n\n"))
		if t.role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return system, out
}
