// Package strategy holds the pure negotiation policy: concession curve,
// acceptance and walk-away rules. Nothing here performs I/O.
package strategy

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrConfigInvalid is returned for configs that cannot be negotiated.
var ErrConfigInvalid = errors.New("invalid negotiation config")

// Approach sets concession pace and tone.
type Approach string

const (
	Diplomatic  Approach = "diplomatic"
	Assertive   Approach = "assertive"
	Considerate Approach = "considerate"
)

// Timeline sets how many turns the buyer is willing to spend.
type Timeline string

const (
	Flexible Timeline = "flexible"
	Week     Timeline = "week"
	Urgent   Timeline = "urgent"
)

// Config is the buyer's negotiation brief. Immutable once a session starts.
type Config struct {
	TargetPrice         int64    `json:"targetPrice"`
	MaxBudget           int64    `json:"maxBudget"`
	Approach            Approach `json:"approach"`
	Timeline            Timeline `json:"timeline"`
	SpecialRequirements string   `json:"specialRequirements,omitempty"`
}

// Profile is the numeric personality of an approach.
type Profile struct {
	// Pace is the share of the remaining gap to target closed per turn.
	Pace float64
	// Tolerance is the share of target accepted above target on the opening move.
	Tolerance float64
	Tone      string
}

var profiles = map[Approach]Profile{
	Assertive:   {Pace: 0.45, Tolerance: 0, Tone: "firm and direct"},
	Diplomatic:  {Pace: 0.30, Tolerance: 0.05, Tone: "polite and balanced"},
	Considerate: {Pace: 0.20, Tolerance: 0.10, Tone: "warm and understanding"},
}

var timelinePace = map[Timeline]float64{
	Urgent:   0.7,
	Week:     1.0,
	Flexible: 1.2,
}

var turnCeilings = map[Timeline]int{
	Urgent:   5,
	Week:     8,
	Flexible: 12,
}

// ParseApproach accepts an approach name case-insensitively. Empty means diplomatic.
func ParseApproach(s string) (Approach, error) {
	a := Approach(strings.ToLower(strings.TrimSpace(s)))
	if a == "" {
		return Diplomatic, nil
	}
	if _, ok := profiles[a]; !ok {
		return "", errors.Wrapf(ErrConfigInvalid, "unknown approach %q", s)
	}
	return a, nil
}

// ParseTimeline accepts a timeline name case-insensitively. Empty means flexible.
func ParseTimeline(s string) (Timeline, error) {
	tl := Timeline(strings.ToLower(strings.TrimSpace(s)))
	if tl == "" {
		return Flexible, nil
	}
	if _, ok := turnCeilings[tl]; !ok {
		return "", errors.Wrapf(ErrConfigInvalid, "unknown timeline %q", s)
	}
	return tl, nil
}

// Normalize fills defaults for empty enumerants and validates the result.
func (c Config) Normalize() (Config, error) {
	a, err := ParseApproach(string(c.Approach))
	if err != nil {
		return c, err
	}
	tl, err := ParseTimeline(string(c.Timeline))
	if err != nil {
		return c, err
	}
	c.Approach, c.Timeline = a, tl
	c.SpecialRequirements = strings.TrimSpace(c.SpecialRequirements)
	return c, c.Validate()
}

// Validate enforces 0 < target <= max budget and known enumerants.
func (c Config) Validate() error {
	if c.TargetPrice <= 0 || c.MaxBudget <= 0 {
		return errors.Wrap(ErrConfigInvalid, "prices must be positive")
	}
	if c.TargetPrice > c.MaxBudget {
		return errors.Wrapf(ErrConfigInvalid, "target %d exceeds max budget %d", c.TargetPrice, c.MaxBudget)
	}
	if _, ok := profiles[c.Approach]; !ok {
		return errors.Wrapf(ErrConfigInvalid, "unknown approach %q", c.Approach)
	}
	if _, ok := turnCeilings[c.Timeline]; !ok {
		return errors.Wrapf(ErrConfigInvalid, "unknown timeline %q", c.Timeline)
	}
	return nil
}

// Profile returns the approach profile, falling back to diplomatic.
func (c Config) Profile() Profile {
	if p, ok := profiles[c.Approach]; ok {
		return p
	}
	return profiles[Diplomatic]
}

// TurnCeiling is the number of seller turns after which an unconverged
// negotiation is abandoned.
func (c Config) TurnCeiling() int {
	if n, ok := turnCeilings[c.Timeline]; ok {
		return n
	}
	return turnCeilings[Flexible]
}

// Tolerance is the absolute amount above target accepted on the opening move.
func (c Config) Tolerance() int64 {
	return int64(float64(c.TargetPrice) * c.Profile().Tolerance)
}
