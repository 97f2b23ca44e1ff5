package domain

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestInvert_RoundsToEightDigits(t *testing.T) {
	got, err := Invert(decimal.RequireFromString("1.0786"))
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("0.92712776").Equal(got), got.String())

	got, err = Invert(decimal.RequireFromString("59337.21"))
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("0.00001685").Equal(got), got.String())
}

func TestInvert_RejectsNonPositive(t *testing.T) {
	_, err := Invert(decimal.Zero)
	require.ErrorIs(t, err, ErrNonPositivePrice)
	_, err = Invert(decimal.NewFromInt(-2))
	require.ErrorIs(t, err, ErrNonPositivePrice)
}

func TestPriceFromFloat(t *testing.T) {
	p, ok := PriceFromFloat(59337.21)
	require.True(t, ok)
	require.Equal(t, "59337.21", p.String())

	for _, f := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, ok := PriceFromFloat(f)
		require.False(t, ok, f)
	}
}

func TestRateRecord_DeriveReverse(t *testing.T) {
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r := RateRecord{Pair: NewPairKey("EUR", "USD"), Rate: decimal.RequireFromString("1.0786"), ObservedAt: at, Source: "ExchangeRate-API"}

	d, err := r.DeriveReverse()
	require.NoError(t, err)
	require.Equal(t, NewPairKey("USD", "EUR"), d.Pair)
	require.Equal(t, at, d.ObservedAt)
	require.Equal(t, r.Source, d.Source)
	require.True(t, d.IsDerived())
	require.Equal(t, r.Pair, *d.DerivedFrom)
	require.False(t, r.IsDerived())
}

func TestRateRecord_FreshAt(t *testing.T) {
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r := RateRecord{ObservedAt: at}
	require.True(t, r.FreshAt(at.Add(300*time.Second), 300*time.Second))
	require.False(t, r.FreshAt(at.Add(301*time.Second), 300*time.Second))
}
