package decision

import (
	"context"
	"fmt"
	"strings"

	"github.com/dayuer/haggle-go/internal/pricing"
	"github.com/dayuer/haggle-go/internal/strategy"
)

// RulesTier answers from the strategy package alone. It never fails.
type RulesTier struct{}

func (RulesTier) Name() string { return "rules" }

// Decide evaluates the strategy and phrases the verdict.
func (RulesTier) Decide(_ context.Context, dc Context) (Result, error) {
	v := dc.Config.Evaluate(dc.State)
	return Result{
		Action:     v.Action,
		Price:      v.Price,
		Text:       Compose(v, dc),
		Confidence: 1,
		Tier:       "rules",
	}, nil
}

// templates are indexed by action then approach. Each entry is a format
// string taking the formatted price (ignored when the action has none).
var templates = map[strategy.Action]map[strategy.Approach][]string{
	strategy.ActionCounter: {
		strategy.Assertive: {
			"I've looked at similar listings. %s is what I can pay.",
			"My offer is %s. That is a fair number for this item.",
		},
		strategy.Diplomatic: {
			"Thanks for getting back to me. Would you consider %s?",
			"I appreciate the details. I could do %s if that works for you.",
		},
		strategy.Considerate: {
			"I understand you want a good price for it. Would %s be possible for you?",
			"I really like the item and I hope we can meet at %s.",
		},
	},
	strategy.ActionAccept: {
		strategy.Assertive:   {"Done at %s. Let's arrange payment and pickup."},
		strategy.Diplomatic:  {"%s works for me. When would be a good time to complete the purchase?"},
		strategy.Considerate: {"Thank you, %s is perfect. Please let me know what time suits you for pickup."},
	},
	strategy.ActionReject: {
		strategy.Assertive:   {"That's higher than before. I can't go along with a price increase."},
		strategy.Diplomatic:  {"I noticed the price went up from your earlier number. I'm not able to agree to that."},
		strategy.Considerate: {"I understand, but I can't manage a higher price than we discussed earlier."},
	},
	strategy.ActionQuestion: {
		strategy.Assertive:   {"What is your best price?"},
		strategy.Diplomatic:  {"Could you tell me more about the condition, and is there some flexibility on the price?"},
		strategy.Considerate: {"Thanks for the reply. Could you share a bit more about the item and what price you have in mind?"},
	},
	strategy.ActionWalkAway: {
		strategy.Assertive:   {"%s is my limit. I'll look at other options. Thanks for your time."},
		strategy.Diplomatic:  {"I understand your position, but %s is really the maximum I can go. Thank you for your time."},
		strategy.Considerate: {"I'm sorry we couldn't make it work. %s is the most I can spend. I wish you luck with the sale."},
	},
}

// Compose phrases a verdict in the configured approach's tone. Template
// choice rotates with the turn so repeated counters don't read identically.
func Compose(v strategy.Verdict, dc Context) string {
	approach := dc.Config.Approach
	if approach == "" {
		approach = strategy.Diplomatic
	}
	options := templates[v.Action][approach]
	if len(options) == 0 {
		options = templates[v.Action][strategy.Diplomatic]
	}
	if len(options) == 0 {
		return string(v.Action)
	}
	tmpl := options[dc.State.Turn%len(options)]

	price := v.Price
	if v.Action == strategy.ActionWalkAway {
		price = dc.Config.MaxBudget
	}
	text := tmpl
	if price > 0 && strings.Contains(tmpl, "%s") {
		text = fmt.Sprintf(tmpl, pricing.Format(price))
	}
	if dc.Opening() && v.Action == strategy.ActionCounter && dc.Listing != nil && dc.Listing.Title != "" {
		text = fmt.Sprintf("Hi, I'm interested in your %s. ", dc.Listing.Title) + text
	}
	return text
}
