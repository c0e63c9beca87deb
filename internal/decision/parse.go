package decision

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/dayuer/haggle-go/internal/pricing"
	"github.com/dayuer/haggle-go/internal/strategy"
)

// reply is the JSON shape LLM tiers are asked to produce.
type reply struct {
	ActionType string          `json:"actionType"`
	Price      json.RawMessage `json:"price"`
	Text       string          `json:"text"`
	Confidence *float64        `json:"confidence"`
}

var actionAliases = map[string]strategy.Action{
	"counter":       strategy.ActionCounter,
	"counter-offer": strategy.ActionCounter,
	"counteroffer":  strategy.ActionCounter,
	"offer":         strategy.ActionCounter,
	"accept":        strategy.ActionAccept,
	"accept-offer":  strategy.ActionAccept,
	"agree":         strategy.ActionAccept,
	"reject":        strategy.ActionReject,
	"decline":       strategy.ActionReject,
	"question":      strategy.ActionQuestion,
	"ask":           strategy.ActionQuestion,
	"clarify":       strategy.ActionQuestion,
	"walk-away":     strategy.ActionWalkAway,
	"walkaway":      strategy.ActionWalkAway,
	"end":           strategy.ActionWalkAway,
}

// ParseAction maps the loose spellings models use onto an Action.
func ParseAction(s string) (strategy.Action, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	a, ok := actionAliases[key]
	return a, ok
}

// ParseReply extracts a Result from raw model output. The JSON object may be
// wrapped in prose or a code fence; the first '{' through the last '}' is used.
func ParseReply(raw string) (Result, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Result{}, errors.Wrap(ErrMalformedOutput, "no JSON object in reply")
	}

	var r reply
	dec := json.NewDecoder(bytes.NewReader([]byte(raw[start : end+1])))
	if err := dec.Decode(&r); err != nil {
		return Result{}, errors.Wrapf(ErrMalformedOutput, "decode reply: %v", err)
	}

	action, ok := ParseAction(r.ActionType)
	if !ok {
		return Result{}, errors.Wrapf(ErrMalformedOutput, "unknown actionType %q", r.ActionType)
	}
	if r.Confidence == nil {
		return Result{}, errors.Wrap(ErrMalformedOutput, "missing confidence")
	}
	price, err := parsePrice(r.Price)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Action:     action,
		Price:      price,
		Text:       strings.TrimSpace(r.Text),
		Confidence: *r.Confidence,
	}, nil
}

// parsePrice accepts a JSON number, a numeric string or a currency string.
// Absent and null prices are zero.
func parsePrice(raw json.RawMessage) (int64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f < 0 || f > math.MaxInt64/2 {
			return 0, errors.Wrapf(ErrMalformedOutput, "price %v out of range", f)
		}
		return int64(math.Round(f)), nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, errors.Wrapf(ErrMalformedOutput, "price %s", s)
	}
	if strings.TrimSpace(str) == "" {
		return 0, nil
	}
	v, err := pricing.ParseAmount(str)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedOutput, "price %q: %v", str, err)
	}
	return v, nil
}
