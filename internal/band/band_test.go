package band

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestClassifyBoundaries(t *testing.T) {
	th := Thresholds{Min: dec("6.5"), Max: dec("8.5")}

	cases := []struct {
		price string
		want  Band
	}{
		{"-100", VeryGreen},
		{"-0.0001", VeryGreen},
		{"0", Green},
		{"6.4999", Green},
		{"6.5", Yellow},
		{"8.4999", Yellow},
		{"8.5", Red},
		{"9.9999", Red},
		{"10", VeryRed},
		{"250", VeryRed},
	}

	for _, tc := range cases {
		t.Run(tc.price, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(dec(tc.price), th))
		})
	}
}

func TestClassifyFixedEdgesIgnoreThresholds(t *testing.T) {
	thresholds := []Thresholds{
		{Min: dec("0"), Max: dec("0.01")},
		{Min: dec("6.5"), Max: dec("8.5")},
		{Min: dec("11"), Max: dec("40")},
	}
	for _, th := range thresholds {
		assert.Equal(t, VeryGreen, Classify(dec("-0.5"), th), "negative price with %+v", th)
		assert.Equal(t, VeryRed, Classify(dec("10"), th), "price 10 with %+v", th)
		assert.Equal(t, VeryRed, Classify(dec("12.3"), th), "price 12.3 with %+v", th)
	}
}

func TestClassifyIsMonotonic(t *testing.T) {
	th := Thresholds{Min: dec("3"), Max: dec("7")}
	prev := None
	for cents := -300; cents <= 1500; cents++ {
		price := decimal.New(int64(cents), -2)
		got := Classify(price, th)
		require.GreaterOrEqual(t, got, prev, "band went backwards at %s", price)
		require.NotEqual(t, None, got)
		prev = got
	}
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, Thresholds{Min: dec("0"), Max: dec("1")}.Validate())

	err := Thresholds{Min: dec("5"), Max: dec("3")}.Validate()
	assert.True(t, errors.Is(err, ErrInvalidThresholds))

	err = Thresholds{Min: dec("4"), Max: dec("4")}.Validate()
	assert.True(t, errors.Is(err, ErrInvalidThresholds))

	err = Thresholds{Min: dec("-1"), Max: dec("4")}.Validate()
	assert.True(t, errors.Is(err, ErrInvalidThresholds))
}

func TestBandTextEncoding(t *testing.T) {
	payload, err := json.Marshal(map[string]Band{"b": VeryRed})
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":"VERY_RED"}`, string(payload))

	var decoded map[string]Band
	require.NoError(t, json.Unmarshal([]byte(`{"b":"very_green","n":"none"}`), &decoded))
	assert.Equal(t, VeryGreen, decoded["b"])
	assert.Equal(t, None, decoded["n"])

	_, err = ParseBand("PURPLE")
	assert.Error(t, err)
}
