package finance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskline/internal/config"
)

func cheongdamCalculator(t *testing.T) *Calculator {
	t.Helper()
	cfg := config.Default()
	tpl, _, err := cfg.Template("cheongdam")
	require.NoError(t, err)
	return NewCalculator(LoanFromTemplate(tpl), cfg.Finance.RateTiers)
}

func TestTierTable(t *testing.T) {
	c := cheongdamCalculator(t)
	cases := []struct {
		months float64
		bp     int
	}{
		{0, 0}, {0.84, 0}, {1.99, 0}, {2, 20}, {3.9, 20},
		{4, 50}, {6.99, 50}, {7, 100}, {24, 100}, {-1, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.bp, c.TierBP(tc.months), "months %v", tc.months)
	}
}

func TestShortDelayHasNoRateIncrease(t *testing.T) {
	c := cheongdamCalculator(t)
	got := c.Calculate(3.6)
	assert.InDelta(t, 0.84, got.DelayMonths, 1e-9)
	assert.Equal(t, 0, got.RateIncreaseBP)
	assert.Zero(t, got.InterestIncrease)
	assert.InDelta(t, 2.03e9*0.001*25.2, got.IndirectCost, 1e-3)
	assert.InDelta(t, got.IndirectCost, got.Total, 1e-9)
	assert.InDelta(t, 0.055, got.NewInterestRate, 1e-12)
}

func TestLongDelayRaisesRate(t *testing.T) {
	c := cheongdamCalculator(t)
	got := c.Calculate(20) // 140 days, 4.67 months
	assert.Equal(t, 50, got.RateIncreaseBP)
	assert.InDelta(t, 2.03e9*0.7*0.005*140/365, got.InterestIncrease, 1e-3)
	assert.InDelta(t, 0.055+0.005, got.NewInterestRate, 1e-12)
	assert.InDelta(t, got.InterestIncrease+got.IndirectCost, got.Total, 1e-6)
}

func TestNegativeDelayIsFree(t *testing.T) {
	c := cheongdamCalculator(t)
	got := c.Calculate(-2)
	assert.Zero(t, got.Total)
	assert.Zero(t, got.DelayMonths)
}

func TestRatchetNeverDecreases(t *testing.T) {
	assert.Equal(t, 0.06, Ratchet(0.06, 0.055))
	assert.Equal(t, 0.07, Ratchet(0.06, 0.07))
}
