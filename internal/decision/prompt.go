package decision

import (
	"fmt"
	"strings"

	"github.com/dayuer/haggle-go/internal/pricing"
	"github.com/dayuer/haggle-go/internal/providers"
	"github.com/dayuer/haggle-go/internal/strategy"
	"github.com/dayuer/haggle-go/internal/utils"
)

const replySchema = `Reply with a single JSON object and nothing else:
{"actionType": "counter-offer" | "accept" | "reject" | "question" | "walk-away",
 "price": <integer rupees, required for counter-offer and accept>,
 "text": "<the message to send to the seller>",
 "confidence": <number between 0 and 1>}`

// PromptBuilder assembles the messages sent to LLM tiers.
type PromptBuilder struct {
	// HistoryWindow caps how many past turns are included. Zero means all.
	HistoryWindow int
	// Model selects the context window used to bound history.
	Model string
	// TokenBudget overrides the history token budget derived from Model.
	TokenBudget int
}

func (b PromptBuilder) historyBudget() int {
	if b.TokenBudget > 0 {
		return b.TokenBudget
	}
	return int(float64(ContextLimit(b.Model)) * historyShare)
}

// SystemPrompt describes the buyer's role, brief and hard limits.
func (b PromptBuilder) SystemPrompt(dc Context) string {
	var parts []string
	cfg := dc.Config

	parts = append(parts, fmt.Sprintf(`# Role

You negotiate on behalf of a buyer on an online marketplace. Your tone is %s.
Never reveal the buyer's maximum budget. Never offer or accept more than %s.`,
		cfg.Profile().Tone, pricing.Format(cfg.MaxBudget)))

	brief := fmt.Sprintf(`# Brief

Target price: %s
Maximum budget: %s
Approach: %s
Timeline: %s (about %d rounds)`,
		pricing.Format(cfg.TargetPrice), pricing.Format(cfg.MaxBudget),
		cfg.Approach, cfg.Timeline, cfg.TurnCeiling())
	if cfg.SpecialRequirements != "" {
		brief += "\nBuyer notes: " + cfg.SpecialRequirements
	}
	parts = append(parts, brief)

	if l := dc.Listing; l != nil {
		item := fmt.Sprintf(`# Item

Title: %s
Listed price: %s
Category: %s
Condition: %s`, l.Title, pricing.Format(l.Price), l.Category, l.Condition)
		if l.Description != "" {
			item += "\nDescription: " + utils.TruncateString(l.Description, 600, "...")
		}
		if l.Synthetic {
			item += "\n(Details are estimated; the listing page could not be read.)"
		}
		parts = append(parts, item)
	}

	parts = append(parts, replySchema)
	return strings.Join(parts, "\n\n---\n\n")
}

// Messages builds the full message list for the primary agent.
func (b PromptBuilder) Messages(dc Context) []providers.Message {
	msgs := []providers.Message{{Role: providers.RoleSystem, Content: b.SystemPrompt(dc)}}
	msgs = append(msgs, b.history(dc)...)
	msgs = append(msgs, providers.Message{Role: providers.RoleUser, Content: b.situation(dc)})
	return msgs
}

// EnhancerMessages asks a model to rephrase a fixed move.
func (b PromptBuilder) EnhancerMessages(dc Context, v strategy.Verdict, draft string) []providers.Message {
	system := b.SystemPrompt(dc) + "\n\n---\n\n" + `# Task

The move below is already decided. Rewrite the draft message so it sounds natural
and persuasive in the given tone. Keep the action and the price exactly as given.`

	move := fmt.Sprintf("Decided move: %s", v.Action)
	if v.Price > 0 {
		move += " at " + pricing.Format(v.Price)
	}
	move += "\nDraft: " + draft

	msgs := []providers.Message{{Role: providers.RoleSystem, Content: system}}
	msgs = append(msgs, b.history(dc)...)
	msgs = append(msgs, providers.Message{Role: providers.RoleUser, Content: b.situation(dc) + "\n\n" + move})
	return msgs
}

func (b PromptBuilder) history(dc Context) []providers.Message {
	turns := dc.History
	if b.HistoryWindow > 0 && len(turns) > b.HistoryWindow {
		turns = turns[len(turns)-b.HistoryWindow:]
	}
	out := make([]providers.Message, 0, len(turns))
	for _, t := range turns {
		role := providers.RoleUser
		if t.Role == RoleBuyer {
			role = providers.RoleAssistant
		}
		out = append(out, providers.Message{Role: role, Content: t.Content})
	}
	return fitHistory(out, b.historyBudget())
}

func (b PromptBuilder) situation(dc Context) string {
	var sb strings.Builder
	if dc.Opening() {
		sb.WriteString("The seller has joined the chat. Make your opening move.")
	} else {
		fmt.Fprintf(&sb, "Seller says: %s", dc.Incoming)
	}
	fmt.Fprintf(&sb, "\n\nRound: %d\nSeller's current ask: %s", dc.State.Turn, pricing.Format(dc.State.Ask()))
	if dc.State.LastCounter > 0 {
		fmt.Fprintf(&sb, "\nYour last offer: %s", pricing.Format(dc.State.LastCounter))
	}
	if dc.Signals.Firm {
		sb.WriteString("\nThe seller says this price is final. Accept it only if it is within budget, otherwise make one last counter or walk away.")
	}
	if dc.Signals.Question {
		sb.WriteString("\nThe seller asked a question. Answer it before talking price.")
	}
	return sb.String()
}

