package decision

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/haggle-go/internal/providers"
)

func TestContextLimit(t *testing.T) {
	assert.Equal(t, 200_000, ContextLimit("claude-3-5-haiku-latest"))
	assert.Equal(t, 200_000, ContextLimit("anthropic/claude-sonnet-4"))
	assert.Equal(t, 1_000_000, ContextLimit("gemini-2.5-flash"))
	assert.Equal(t, 8_000, ContextLimit("moonshot-v1-8k"))
	assert.Equal(t, defaultContextLimit, ContextLimit("mystery-model"))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(nil))
	msgs := []providers.Message{{Content: strings.Repeat("a", 296)}}
	assert.Equal(t, 100, EstimateTokens(msgs))
	// Runes, not bytes.
	assert.Equal(t, EstimateTokens([]providers.Message{{Content: "ababab"}}),
		EstimateTokens([]providers.Message{{Content: "₹₹₹₹₹₹"}}))
}

func TestPromptBuilder_TokenBudgetTrimsOldest(t *testing.T) {
	dc := testContext()
	msgs := PromptBuilder{TokenBudget: 10}.Messages(dc)

	require.Len(t, msgs, 3)
	assert.Equal(t, "I can do 95,000", msgs[1].Content)

	full := PromptBuilder{Model: "gemini-2.5-flash"}.Messages(dc)
	assert.Len(t, full, 4)
}

func TestFitHistory_KeepsNewest(t *testing.T) {
	msgs := []providers.Message{{Content: strings.Repeat("x", 600)}, {Content: strings.Repeat("y", 600)}}
	got := fitHistory(msgs, 1)
	require.Len(t, got, 1)
	assert.Equal(t, byte('y'), got[0].Content[0])
	assert.Len(t, fitHistory(msgs, 0), 2)
}
