package roundfmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound3BankersRounding(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{1.0005, 1.0}, // halfway, floor (1.000) is even -> stays
		{1.0015, 1.002},
		{1.0025, 1.002}, // halfway, 1.002 is even -> rounds down
		{1.0035, 1.004},
		{0.0, 0.0},
		{-1.0005, -1.0},
		{104.5905, 104.59}, // halfway, 104.590 is even -> rounds down
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Round3(c.in))
	}
}

func TestRat1000RoundTrip(t *testing.T) {
	r := NewRat1000(0.7)
	assert.Equal(t, 0.7, r.Float())
	sum := NewRat1000(0.6).Add(NewRat1000(0.25))
	assert.Equal(t, 0.85, sum.Float())
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, Clamp01(1.5))
	assert.Equal(t, 0.0, Clamp01(-0.2))
	assert.Equal(t, 0.4, Clamp01(0.4))
	assert.Equal(t, 100.0, ClampPct(150))
	assert.Equal(t, 0.0, ClampPct(-5))
	assert.Equal(t, 42.0, ClampPct(42))
}
