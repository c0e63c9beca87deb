// Package decision turns a seller message into exactly one buyer move by
// consulting an ordered list of tiers. LLM tiers go first; the deterministic
// rules tier always closes the list and cannot fail.
package decision

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/dayuer/haggle-go/internal/listing"
	"github.com/dayuer/haggle-go/internal/strategy"
)

// DefaultThreshold is the minimum confidence a tier result needs.
const DefaultThreshold = 0.6

// Turn roles in Context.History.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

var (
	ErrLowConfidence   = errors.New("confidence below threshold")
	ErrMalformedOutput = errors.New("malformed tier output")
	ErrInvalidResult   = errors.New("invalid decision result")
	ErrTierPanic       = errors.New("tier panicked")
)

// Turn is one line of negotiation history as tiers see it.
type Turn struct {
	Role    string
	Content string
}

// Context is everything a tier may look at for one decision.
type Context struct {
	SessionID    string
	Listing      *listing.Listing
	Config       strategy.Config
	History      []Turn
	CurrentOffer int64
	// Incoming is the seller message being answered, empty on the opening move.
	Incoming string
	Signals  strategy.Signals
	State    strategy.State
}

// Opening reports whether this is the agent's first move.
func (c Context) Opening() bool { return c.State.Turn == 0 }

// Result is a single buyer move.
type Result struct {
	Action     strategy.Action `json:"action"`
	Price      int64           `json:"price,omitempty"`
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"`
	Tier       string          `json:"tier"`
}

// HasPrice reports whether the result carries a price.
func (r Result) HasPrice() bool { return r.Price > 0 }

// Validate checks the structural rules every accepted result must meet.
func (r Result) Validate(cfg strategy.Config) error {
	switch {
	case !r.Action.Known():
		return errors.Wrapf(ErrInvalidResult, "unknown action %q", r.Action)
	case r.Action.NeedsPrice() && !r.HasPrice():
		return errors.Wrapf(ErrInvalidResult, "%s without price", r.Action)
	case r.Price < 0:
		return errors.Wrap(ErrInvalidResult, "negative price")
	case r.Price > cfg.MaxBudget:
		return errors.Wrapf(ErrInvalidResult, "price %d above max budget %d", r.Price, cfg.MaxBudget)
	case r.Text == "":
		return errors.Wrap(ErrInvalidResult, "empty text")
	case r.Confidence < 0 || r.Confidence > 1:
		return errors.Wrapf(ErrInvalidResult, "confidence %.2f out of range", r.Confidence)
	}
	return nil
}

// CheckAccept rejects an accept at any price other than the one the seller
// put on the table: the agreed price when there is one, else the last ask.
func (r Result) CheckAccept(st strategy.State) error {
	if r.Action != strategy.ActionAccept {
		return nil
	}
	want := st.Ask()
	if st.Agreed > 0 {
		want = st.Agreed
	}
	if r.Price != want {
		return errors.Wrapf(ErrInvalidResult, "accept at %d but seller is at %d", r.Price, want)
	}
	return nil
}

// Tier is one decision source.
type Tier interface {
	Name() string
	Decide(ctx context.Context, dc Context) (Result, error)
}

// TierFunc adapts a function into a Tier.
type TierFunc struct {
	ID string
	Fn func(ctx context.Context, dc Context) (Result, error)
}

func (t TierFunc) Name() string { return t.ID }

func (t TierFunc) Decide(ctx context.Context, dc Context) (Result, error) { return t.Fn(ctx, dc) }

// TierFailure records why a tier's output was not used.
type TierFailure struct {
	Tier string
	Err  error
}

func (f *TierFailure) Error() string { return fmt.Sprintf("tier %s: %v", f.Tier, f.Err) }

func (f *TierFailure) Unwrap() error { return f.Err }
