package decision

import (
	"strings"
	"unicode/utf8"

	"github.com/dayuer/haggle-go/internal/providers"
)

// contextLimits maps model name prefixes to context window sizes in tokens.
var contextLimits = map[string]int{
	"gemini-1.5":    1_000_000,
	"gemini-2":      1_000_000,
	"claude":        200_000,
	"gpt-4o":        128_000,
	"gpt-4-turbo":   128_000,
	"deepseek":      64_000,
	"llama-3.1":     128_000,
	"qwen2.5":       32_000,
	"moonshot-v1-8": 8_000,
}

const (
	defaultContextLimit = 32_000
	// historyShare is the part of the context window prompt history may fill.
	historyShare = 0.5
)

// ContextLimit returns the context window of model. The longest matching
// prefix wins; the provider prefix ("anthropic/...") is ignored.
func ContextLimit(model string) int {
	if i := strings.LastIndexByte(model, '/'); i >= 0 {
		model = model[i+1:]
	}
	best, limit := 0, defaultContextLimit
	for prefix, n := range contextLimits {
		if strings.HasPrefix(model, prefix) && len(prefix) > best {
			best, limit = len(prefix), n
		}
	}
	return limit
}

// EstimateTokens over-estimates the token count of msgs at one token per
// three runes.
func EstimateTokens(msgs []providers.Message) int {
	total := 0
	for _, m := range msgs {
		total += utf8.RuneCountInString(m.Content) + 4
	}
	return total / 3
}

// fitHistory drops the oldest turns until the rest fits in budget tokens.
// The newest turn is always kept.
func fitHistory(msgs []providers.Message, budget int) []providers.Message {
	if budget <= 0 {
		return msgs
	}
	for len(msgs) > 1 && EstimateTokens(msgs) > budget {
		msgs = msgs[1:]
	}
	return msgs
}
