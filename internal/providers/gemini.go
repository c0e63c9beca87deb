package providers

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

// GeminiProvider calls Google's Gemini API through the genai SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini-backed provider.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.Wrap(ErrNoAPIKey, "gemini")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	return &GeminiProvider{client: client, model: strings.TrimPrefix(model, "gemini/")}, nil
}

// DefaultModel satisfies the LLMProvider interface.
func (g *GeminiProvider) DefaultModel() string { return g.model }

// Chat sends one GenerateContent call.
func (g *GeminiProvider) Chat(ctx context.Context, req ChatRequest) (*LLMResponse, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}
	system, contents := toGeminiContents(req.Messages)

	maxTokens := req.MaxTokens
	if maxTokens < 1 {
		maxTokens = 1024
	}
	temp := float32(req.Temperature)
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Temperature:     &temp,
	}
	if system != nil {
		config.SystemInstruction = system
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, errors.Wrap(err, "gemini generate")
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}

	out := &LLMResponse{Content: text, FinishReason: "stop", Usage: map[string]int{}}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		out.FinishReason = strings.ToLower(string(resp.Candidates[0].FinishReason))
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage["prompt_tokens"] = int(u.PromptTokenCount)
		out.Usage["completion_tokens"] = int(u.CandidatesTokenCount)
		out.Usage["total_tokens"] = int(u.TotalTokenCount)
	}
	return out, nil
}

func toGeminiContents(msgs []Message) (*genai.Content, []*genai.Content) {
	system, turns := splitSystem(msgs)
	var sys *genai.Content
	if system != "" {
		sys = genai.NewContentFromText(system, genai.RoleUser)
	}
	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return sys, contents
}
