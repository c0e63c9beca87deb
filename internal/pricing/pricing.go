// Package pricing parses and validates currency amounts found in listing pages
// and chat messages.
//
// Amounts are whole units of the listing currency. A digit run longer than
// MaxDigits is never treated as a price: such tokens are item identifiers or
// phone numbers.
package pricing

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	MinPrice  int64 = 100
	MaxPrice  int64 = 50_000_000
	MaxDigits       = 8
)

var (
	ErrNoAmount        = errors.New("no amount found")
	ErrOutOfRange      = errors.New("amount out of range")
	ErrIdentifierToken = errors.New("digit token too long for a price")
)

// tokenRe captures an optional currency marker, a number with separators and
// an optional multiplier suffix.
var tokenRe = regexp.MustCompile(`(?i)(₹|\brs\.?|\binr)?\s*(\d[\d,]*(?:\.\d+)?)(?:\s*(k|lakhs?|lacs?)\b)?`)

// Token is one numeric candidate found in text.
type Token struct {
	Raw      string
	Digits   string
	Value    int64
	Currency bool
	Err      error
}

// Valid reports whether the token survived validation.
func (t Token) Valid() bool { return t.Err == nil }

// Validate checks that v lies in [MinPrice, MaxPrice].
func Validate(v int64) error {
	if v < MinPrice || v > MaxPrice {
		return errors.Wrapf(ErrOutOfRange, "%d not in [%d, %d]", v, MinPrice, MaxPrice)
	}
	return nil
}

// Scan returns every numeric token in text, validated, in order of appearance.
func Scan(text string) []Token {
	matches := tokenRe.FindAllStringSubmatch(text, -1)
	tokens := make([]Token, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, parseToken(m))
	}
	return tokens
}

func parseToken(m []string) Token {
	tok := Token{Raw: strings.TrimSpace(m[0]), Currency: m[1] != ""}
	number := strings.ReplaceAll(m[2], ",", "")
	intPart, frac, _ := strings.Cut(number, ".")
	tok.Digits = intPart

	if len(intPart) > MaxDigits {
		tok.Err = errors.Wrapf(ErrIdentifierToken, "%q", intPart)
		return tok
	}

	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		tok.Err = errors.Wrapf(ErrNoAmount, "%q", m[2])
		return tok
	}

	suffix := strings.ToLower(m[3])
	var mult int64 = 1
	switch {
	case suffix == "k":
		mult = 1_000
	case strings.HasPrefix(suffix, "la"):
		mult = 100_000
	}
	value := whole * mult
	if mult > 1 && frac != "" {
		if f, err := strconv.ParseFloat("0."+frac, 64); err == nil {
			value += int64(f * float64(mult))
		}
	}
	if mult > 1 {
		tok.Currency = true
	}

	tok.Value = value
	tok.Err = Validate(value)
	return tok
}

// ParseAmount returns the first valid amount in text. Currency-marked tokens
// win over bare numbers, and bare numbers that look like a year are skipped.
func ParseAmount(text string) (int64, error) {
	tokens := Scan(text)
	for _, t := range tokens {
		if t.Valid() && t.Currency {
			return t.Value, nil
		}
	}
	for _, t := range tokens {
		if t.Valid() && !looksLikeYear(t) {
			return t.Value, nil
		}
	}
	for _, t := range tokens {
		if t.Err != nil {
			return 0, t.Err
		}
	}
	return 0, ErrNoAmount
}

// ParseCurrencyAmount is ParseAmount restricted to currency-marked tokens.
func ParseCurrencyAmount(text string) (int64, error) {
	for _, t := range Scan(text) {
		if t.Valid() && t.Currency {
			return t.Value, nil
		}
	}
	return 0, ErrNoAmount
}

func looksLikeYear(t Token) bool {
	return len(t.Digits) == 4 && t.Value >= 1950 && t.Value <= 2100 && t.Raw == t.Digits
}

// Format renders an amount with thousands separators and the rupee sign.
func Format(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-₹" + b.String()
	}
	return "₹" + b.String()
}
