package decision

import (
	"context"

	"github.com/pkg/errors"

	"github.com/dayuer/haggle-go/internal/providers"
)

// LLMOptions are the call parameters shared by LLM-backed tiers.
type LLMOptions struct {
	Model         string
	MaxTokens     int
	Temperature   float64
	HistoryWindow int
	// TokenBudget bounds prompt history in tokens. Zero derives it from Model.
	TokenBudget int
}

func (o LLMOptions) prompts() PromptBuilder {
	return PromptBuilder{HistoryWindow: o.HistoryWindow, Model: o.Model, TokenBudget: o.TokenBudget}
}

// AgentTier asks the primary model for the whole move.
type AgentTier struct {
	provider providers.LLMProvider
	opts     LLMOptions
	prompts  PromptBuilder
}

// NewAgentTier returns nil when provider is nil so the pipeline skips it.
func NewAgentTier(p providers.LLMProvider, opts LLMOptions) Tier {
	if p == nil {
		return nil
	}
	return &AgentTier{provider: p, opts: opts, prompts: opts.prompts()}
}

func (t *AgentTier) Name() string { return "agent" }

// Decide sends the negotiation context and parses the JSON reply.
func (t *AgentTier) Decide(ctx context.Context, dc Context) (Result, error) {
	resp, err := t.provider.Chat(ctx, providers.ChatRequest{
		Messages:    t.prompts.Messages(dc),
		Model:       t.opts.Model,
		MaxTokens:   t.opts.MaxTokens,
		Temperature: t.opts.Temperature,
		JSON:        true,
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "agent chat")
	}
	return ParseReply(resp.Content)
}

// EnhancerTier keeps the rule-based action and price and lets a second
// model write the message.
type EnhancerTier struct {
	provider providers.LLMProvider
	opts     LLMOptions
	prompts  PromptBuilder
}

// NewEnhancerTier returns nil when provider is nil so the pipeline skips it.
func NewEnhancerTier(p providers.LLMProvider, opts LLMOptions) Tier {
	if p == nil {
		return nil
	}
	return &EnhancerTier{provider: p, opts: opts, prompts: opts.prompts()}
}

func (t *EnhancerTier) Name() string { return "enhancer" }

// Decide computes the baseline verdict and asks the model to phrase it.
func (t *EnhancerTier) Decide(ctx context.Context, dc Context) (Result, error) {
	v := dc.Config.Evaluate(dc.State)
	draft := Compose(v, dc)

	resp, err := t.provider.Chat(ctx, providers.ChatRequest{
		Messages:    t.prompts.EnhancerMessages(dc, v, draft),
		Model:       t.opts.Model,
		MaxTokens:   t.opts.MaxTokens,
		Temperature: t.opts.Temperature,
		JSON:        true,
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "enhancer chat")
	}
	refined, err := ParseReply(resp.Content)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Action:     v.Action,
		Price:      v.Price,
		Text:       refined.Text,
		Confidence: refined.Confidence,
	}, nil
}
