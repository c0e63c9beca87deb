package strategy

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{TargetPrice: 75_000, MaxBudget: 90_000, Approach: Diplomatic, Timeline: Flexible}
}

// --- Config validation ---

func TestValidate_TargetAboveBudget(t *testing.T) {
	cfg := testConfig()
	cfg.TargetPrice = 95_000
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigInvalid))
}

func TestValidate_NonPositive(t *testing.T) {
	for _, cfg := range []Config{
		{TargetPrice: 0, MaxBudget: 10_000, Approach: Diplomatic, Timeline: Week},
		{TargetPrice: -5, MaxBudget: 10_000, Approach: Diplomatic, Timeline: Week},
		{TargetPrice: 5_000, MaxBudget: 0, Approach: Diplomatic, Timeline: Week},
	} {
		assert.True(t, errors.Is(cfg.Validate(), ErrConfigInvalid), "%+v", cfg)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	cfg, err := Config{TargetPrice: 100, MaxBudget: 200}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, Diplomatic, cfg.Approach)
	assert.Equal(t, Flexible, cfg.Timeline)
}

func TestNormalize_UnknownApproach(t *testing.T) {
	_, err := Config{TargetPrice: 100, MaxBudget: 200, Approach: "sneaky"}.Normalize()
	assert.True(t, errors.Is(err, ErrConfigInvalid))
}

func TestParseApproach_CaseInsensitive(t *testing.T) {
	a, err := ParseApproach(" Assertive ")
	require.NoError(t, err)
	assert.Equal(t, Assertive, a)
}

func TestTurnCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.Timeline = Urgent
	assert.Equal(t, 5, cfg.TurnCeiling())
	cfg.Timeline = Week
	assert.Equal(t, 8, cfg.TurnCeiling())
	cfg.Timeline = Flexible
	assert.Equal(t, 12, cfg.TurnCeiling())
}

// --- Concession curve ---

func TestCounter_MonotonicAndBounded(t *testing.T) {
	for _, a := range []Approach{Diplomatic, Assertive, Considerate} {
		for _, tl := range []Timeline{Flexible, Week, Urgent} {
			cfg := Config{TargetPrice: 75_000, MaxBudget: 90_000, Approach: a, Timeline: tl}
			prev := int64(1 << 62)
			for n := 1; n <= 30; n++ {
				c := cfg.Counter(100_000, n)
				assert.LessOrEqual(t, c, cfg.MaxBudget, "%s/%s n=%d", a, tl, n)
				assert.GreaterOrEqual(t, c, cfg.TargetPrice, "%s/%s n=%d", a, tl, n)
				assert.LessOrEqual(t, c, prev, "%s/%s n=%d", a, tl, n)
				prev = c
			}
		}
	}
}

func TestCounter_Values(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, int64(90_000), cfg.Counter(100_000, 1))
	assert.Equal(t, int64(85_200), cfg.Counter(100_000, 2))
	assert.Equal(t, int64(81_500), cfg.Counter(100_000, 3))
}

func TestCounter_AssertiveMovesFaster(t *testing.T) {
	d := testConfig()
	a := testConfig()
	a.Approach = Assertive
	assert.Less(t, a.Counter(100_000, 2), d.Counter(100_000, 2))
}

func TestCounter_ListingBelowTarget(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, int64(75_000), cfg.Counter(60_000, 1))
}

// --- Acceptance / walk-away ---

func TestShouldAccept(t *testing.T) {
	cfg := testConfig()
	assert.True(t, cfg.ShouldAccept(80_000))
	assert.True(t, cfg.ShouldAccept(90_000))
	assert.False(t, cfg.ShouldAccept(90_001))
	assert.False(t, cfg.ShouldAccept(0))
}

func TestEvaluate_AcceptsOfferWithinBudget(t *testing.T) {
	cfg := testConfig()
	v := cfg.Evaluate(State{
		ListingPrice: 100_000,
		Turn:         1,
		SellerOffers: []int64{100_000, 80_000},
		NewOffer:     true,
	})
	assert.Equal(t, ActionAccept, v.Action)
	assert.Equal(t, int64(80_000), v.Price)
}

func TestEvaluate_WalksAwayOnStagnation(t *testing.T) {
	cfg := testConfig()
	v := cfg.Evaluate(State{
		ListingPrice: 100_000,
		Turn:         3,
		SellerOffers: []int64{100_000, 95_000, 95_000, 95_000},
		NewOffer:     true,
	})
	assert.Equal(t, ActionWalkAway, v.Action)
	assert.Zero(t, v.Price)
}

func TestEvaluate_CountersWhileSellerMoves(t *testing.T) {
	cfg := testConfig()
	v := cfg.Evaluate(State{
		ListingPrice: 100_000,
		Turn:         2,
		SellerOffers: []int64{100_000, 95_000, 95_000},
		NewOffer:     true,
	})
	assert.Equal(t, ActionCounter, v.Action)
	assert.Equal(t, cfg.Counter(100_000, 3), v.Price)
}

func TestEvaluate_CounterNeverAboveLastCounter(t *testing.T) {
	cfg := testConfig()
	s := State{
		ListingPrice: 100_000,
		Turn:         2,
		SellerOffers: []int64{100_000, 95_000, 94_000},
		NewOffer:     true,
		LastCounter:  76_000,
	}
	v := cfg.Evaluate(s)
	assert.Equal(t, ActionCounter, v.Action)
	assert.Equal(t, int64(76_000), v.Price)

	s.LastCounter = 70_000
	assert.Equal(t, int64(75_000), cfg.Evaluate(s).Price, "floored at target")

	s.LastCounter = 89_000
	assert.Equal(t, cfg.Counter(100_000, 3), cfg.Evaluate(s).Price, "schedule below previous counter")
}

func TestEvaluate_WalksAwayPastCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.Timeline = Urgent
	v := cfg.Evaluate(State{
		ListingPrice: 100_000,
		Turn:         6,
		SellerOffers: []int64{100_000, 99_000, 98_000, 97_000, 96_000, 95_000, 94_000},
		NewOffer:     true,
	})
	assert.Equal(t, ActionWalkAway, v.Action)
}

func TestEvaluate_RejectsRaisedPrice(t *testing.T) {
	cfg := testConfig()
	v := cfg.Evaluate(State{
		ListingPrice: 100_000,
		Turn:         2,
		SellerOffers: []int64{100_000, 95_000, 97_000},
		NewOffer:     true,
	})
	assert.Equal(t, ActionReject, v.Action)
}

func TestEvaluate_QuestionWithoutPrice(t *testing.T) {
	cfg := testConfig()
	v := cfg.Evaluate(State{ListingPrice: 100_000, Turn: 1, SellerOffers: []int64{100_000}})
	assert.Equal(t, ActionQuestion, v.Action)
}

func TestEvaluate_Opening(t *testing.T) {
	cfg := testConfig()
	v := cfg.Evaluate(State{ListingPrice: 100_000, SellerOffers: []int64{100_000}})
	assert.Equal(t, ActionCounter, v.Action)
	assert.Equal(t, int64(90_000), v.Price)

	v = cfg.Evaluate(State{ListingPrice: 78_000, SellerOffers: []int64{78_000}})
	assert.Equal(t, ActionAccept, v.Action, "within tolerance of target")

	cfg.Approach = Assertive
	v = cfg.Evaluate(State{ListingPrice: 78_000, SellerOffers: []int64{78_000}})
	assert.Equal(t, ActionCounter, v.Action)
	assert.Equal(t, int64(76_300), v.Price)
}

func TestEvaluate_SellerAgreement(t *testing.T) {
	cfg := testConfig()
	v := cfg.Evaluate(State{ListingPrice: 100_000, Turn: 2, SellerOffers: []int64{100_000, 95_000}, Agreed: 85_200})
	assert.Equal(t, ActionAccept, v.Action)
	assert.Equal(t, int64(85_200), v.Price)

	v = cfg.Evaluate(State{ListingPrice: 100_000, Turn: 1, SellerOffers: []int64{100_000, 95_000}, NewOffer: true, Agreed: 95_000})
	assert.NotEqual(t, ActionAccept, v.Action, "agreement above budget is not binding")
}

func TestAction_Properties(t *testing.T) {
	assert.True(t, ActionCounter.NeedsPrice())
	assert.True(t, ActionAccept.NeedsPrice())
	assert.False(t, ActionQuestion.NeedsPrice())
	assert.True(t, ActionWalkAway.Terminal())
	assert.False(t, Action("haggle").Known())
}

// --- Seller signals ---

func TestReadSeller(t *testing.T) {
	sig := ReadSeller("Best I can do is ₹ 92,000, final price")
	assert.True(t, sig.HasOffer)
	assert.Equal(t, int64(92_000), sig.Offer)
	assert.True(t, sig.Firm)
	assert.False(t, sig.Agreed)

	sig = ReadSeller("Okay deal, it's yours")
	assert.True(t, sig.Agreed)
	assert.False(t, sig.HasOffer)

	sig = ReadSeller("No deal, I cannot accept that")
	assert.False(t, sig.Agreed)

	sig = ReadSeller("Is pickup fine on Sunday?")
	assert.True(t, sig.Question)
}
