package pricing

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Range(t *testing.T) {
	assert.NoError(t, Validate(100))
	assert.NoError(t, Validate(50_000_000))
	assert.True(t, errors.Is(Validate(99), ErrOutOfRange))
	assert.True(t, errors.Is(Validate(50_000_001), ErrOutOfRange))
}

func TestParseAmount_RejectsIdentifierToken(t *testing.T) {
	_, err := ParseAmount("listing iid-1821022551")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIdentifierToken))

	for _, tok := range Scan("https://www.olx.in/item/iphone-13-iid-1821022551") {
		assert.False(t, tok.Valid(), tok.Raw)
	}
}

func TestParseAmount_RejectsPhoneNumber(t *testing.T) {
	_, err := ParseAmount("call me on 9876543210")
	assert.Error(t, err)
}

func TestParseAmount_CurrencyFormats(t *testing.T) {
	cases := map[string]int64{
		"₹ 50,000":                 50_000,
		"Rs. 1,20,000":             120_000,
		"INR 85000":                85_000,
		"I can do 80,000 for you":  80_000,
		"how about 85k":            85_000,
		"final 1.2 lakh":           120_000,
		"2019 model, price 95000":  95_000,
		"₹ 45,999.00 only":         45_999,
	}
	for in, want := range cases {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseAmount_PrefersCurrencyMarked(t *testing.T) {
	got, err := ParseAmount("bought it for 120000 but now ₹ 90,000")
	require.NoError(t, err)
	assert.Equal(t, int64(90_000), got)
}

func TestParseAmount_NoNumbers(t *testing.T) {
	_, err := ParseAmount("is it still available?")
	assert.True(t, errors.Is(err, ErrNoAmount))
}

func TestParseAmount_OutOfRange(t *testing.T) {
	_, err := ParseAmount("I have 2 of these")
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

func TestParseCurrencyAmount_IgnoresBareNumbers(t *testing.T) {
	_, err := ParseCurrencyAmount("128 GB storage, 2 years old")
	assert.Error(t, err)

	v, err := ParseCurrencyAmount("Price: ₹ 34,500")
	require.NoError(t, err)
	assert.Equal(t, int64(34_500), v)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "₹80,000", Format(80_000))
	assert.Equal(t, "₹1,200,000", Format(1_200_000))
	assert.Equal(t, "₹999", Format(999))
}
