package strategy

import "math"

// Action is the closed set of moves the buyer agent can make.
type Action string

const (
	ActionCounter  Action = "counter-offer"
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionQuestion Action = "question"
	ActionWalkAway Action = "walk-away"
)

// Known reports whether a is one of the defined actions.
func (a Action) Known() bool {
	switch a {
	case ActionCounter, ActionAccept, ActionReject, ActionQuestion, ActionWalkAway:
		return true
	}
	return false
}

// NeedsPrice reports whether the action must carry a price.
func (a Action) NeedsPrice() bool {
	return a == ActionCounter || a == ActionAccept
}

// Terminal reports whether the action ends the negotiation.
func (a Action) Terminal() bool {
	return a == ActionAccept || a == ActionWalkAway
}

// StagnationTurns is how many consecutive seller asks above budget without a
// price drop make the buyer walk away.
const StagnationTurns = 3

// State is the numeric view of a negotiation at one turn.
type State struct {
	ListingPrice int64
	// Turn counts seller messages received so far. Zero is the opening move.
	Turn int
	// SellerOffers are the seller's asks in order, starting with the listing price.
	SellerOffers []int64
	// NewOffer is set when the latest seller message carried a price.
	NewOffer bool
	// Agreed is the price the seller just agreed to, zero if none.
	Agreed int64
	// LastCounter is the agent's previous counter price, zero if none.
	LastCounter int64
}

// Ask is the seller's latest asking price.
func (s State) Ask() int64 {
	if n := len(s.SellerOffers); n > 0 {
		return s.SellerOffers[n-1]
	}
	return s.ListingPrice
}

// Verdict is a deterministic decision.
type Verdict struct {
	Action Action
	Price  int64
	Reason string
}

// Counter returns the n-th counter price (n >= 1). The sequence starts near the
// listing price and moves toward target; it never rises between turns, never
// drops below target and never exceeds max budget.
func (c Config) Counter(listingPrice int64, n int) int64 {
	if n < 1 {
		n = 1
	}
	price := listingPrice
	if gap := listingPrice - c.TargetPrice; gap > 0 {
		pace := c.Profile().Pace * timelinePace[c.Timeline]
		if pace <= 0 {
			pace = profiles[Diplomatic].Pace
		}
		if pace > 1 {
			pace = 1
		}
		progress := 1 - math.Pow(1-pace, float64(n))
		price = listingPrice - int64(float64(gap)*progress)
		price = price / 100 * 100
	}
	if price > c.MaxBudget {
		price = c.MaxBudget / 100 * 100
	}
	if price < c.TargetPrice {
		price = c.TargetPrice
	}
	return price
}

// ShouldAccept reports whether a seller offer can be taken as is.
func (c Config) ShouldAccept(offer int64) bool {
	if offer <= 0 {
		return false
	}
	return offer <= c.MaxBudget || offer <= c.openingLimit()
}

// openingLimit is target plus tolerance, capped at max budget.
func (c Config) openingLimit() int64 {
	limit := c.TargetPrice + c.Tolerance()
	if limit > c.MaxBudget {
		limit = c.MaxBudget
	}
	return limit
}

// ShouldWalkAway reports whether the negotiation has stopped converging.
func (c Config) ShouldWalkAway(s State) bool {
	if s.Ask() <= c.MaxBudget {
		return false
	}
	if s.Turn > c.TurnCeiling() {
		return true
	}
	return stagnant(s.SellerOffers, c.MaxBudget)
}

func stagnant(offers []int64, budget int64) bool {
	if len(offers) < StagnationTurns {
		return false
	}
	tail := offers[len(offers)-StagnationTurns:]
	for i, o := range tail {
		if o <= budget {
			return false
		}
		if i > 0 && o < tail[i-1] {
			return false
		}
	}
	return true
}

// Evaluate computes the rule-based move for the current state.
func (c Config) Evaluate(s State) Verdict {
	if s.Agreed > 0 && s.Agreed <= c.MaxBudget {
		return Verdict{Action: ActionAccept, Price: s.Agreed, Reason: "seller agreed within budget"}
	}

	if s.Turn == 0 {
		if s.ListingPrice <= c.openingLimit() {
			return Verdict{Action: ActionAccept, Price: s.ListingPrice, Reason: "listing price already within target range"}
		}
		return Verdict{Action: ActionCounter, Price: c.Counter(s.ListingPrice, 1), Reason: "opening offer"}
	}

	if c.ShouldWalkAway(s) {
		return Verdict{Action: ActionWalkAway, Reason: "seller not converging toward budget"}
	}

	if !s.NewOffer {
		return Verdict{Action: ActionQuestion, Reason: "no price in seller message"}
	}

	ask := s.Ask()
	if c.ShouldAccept(ask) {
		return Verdict{Action: ActionAccept, Price: ask, Reason: "offer within budget"}
	}

	if n := len(s.SellerOffers); n >= 2 && s.SellerOffers[n-1] > s.SellerOffers[n-2] {
		return Verdict{Action: ActionReject, Reason: "seller raised the price"}
	}

	return Verdict{Action: ActionCounter, Price: c.nextCounter(s), Reason: "counter toward target"}
}

// nextCounter follows the schedule but never climbs above a lower counter
// already on the table, and never drops below target.
func (c Config) nextCounter(s State) int64 {
	price := c.Counter(s.ListingPrice, s.Turn+1)
	if s.LastCounter > 0 && s.LastCounter < price {
		price = s.LastCounter
	}
	if price < c.TargetPrice {
		price = c.TargetPrice
	}
	return price
}
