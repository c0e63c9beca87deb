package strategy

import (
	"regexp"
	"strings"

	"github.com/dayuer/haggle-go/internal/pricing"
)

// Signals is what the rules can read from a seller message.
type Signals struct {
	Offer    int64
	HasOffer bool
	Agreed   bool
	Firm     bool
	Question bool
}

var (
	agreeRe  = regexp.MustCompile(`(?i)\b(deal|agreed?|accept(ed)?|sold|you can have it|it'?s yours)\b`)
	refuseRe = regexp.MustCompile(`(?i)\b(no deal|not agreed?|don'?t agree|can'?t agree|can'?t accept|cannot accept|don'?t accept|won'?t accept|not accept(ed|able)?|no way)\b`)
	firmRe   = regexp.MustCompile(`(?i)\b(final|last price|fixed( price)?|non[- ]?negotiable|not negotiable|lowest)\b`)
)

// ReadSeller extracts offer, agreement and firmness signals from a seller message.
func ReadSeller(text string) Signals {
	var sig Signals
	if v, err := pricing.ParseAmount(text); err == nil {
		sig.Offer, sig.HasOffer = v, true
	}
	sig.Agreed = agreeRe.MatchString(text) && !refuseRe.MatchString(text)
	sig.Firm = firmRe.MatchString(text)
	sig.Question = strings.Contains(text, "?")
	return sig
}
