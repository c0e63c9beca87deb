package listing

// Market positions of an asking price relative to its category estimate.
const (
	PositionPremium     = "premium_priced"
	PositionAbove       = "above_market"
	PositionAverage     = "market_average"
	PositionCompetitive = "competitive"
	PositionBelow       = "below_market"
)

// MarketView places a listing's asking price against its category.
type MarketView struct {
	Category string `json:"category"`
	Min      int64  `json:"min"`
	Max      int64  `json:"max"`
	Estimate int64  `json:"estimate"`
	Position string `json:"position"`
	// Potential is the share of the asking price that looks negotiable, 0.1 to 0.3.
	Potential float64 `json:"negotiationPotential"`
}

// Assess compares l's price with the typical price of c.
func Assess(l *Listing, c Category) MarketView {
	est := c.price()
	v := MarketView{
		Category: c.Name,
		Min:      c.Min,
		Max:      c.Max,
		Estimate: est,
		Position: position(l.Price, est),
	}

	over := float64(l.Price-est) / float64(est)
	if over < 0 {
		over = 0
	}
	v.Potential = 0.1 + over*0.5
	if v.Potential > 0.3 {
		v.Potential = 0.3
	}
	return v
}

func position(price, est int64) string {
	ratio := float64(price) / float64(est)
	switch {
	case ratio > 1.3:
		return PositionPremium
	case ratio > 1.1:
		return PositionAbove
	case ratio < 0.8:
		return PositionBelow
	case ratio < 0.9:
		return PositionCompetitive
	}
	return PositionAverage
}
