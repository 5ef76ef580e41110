package detection

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskline/internal/catalog"
	"riskline/internal/config"
	"riskline/internal/domain"
	"riskline/internal/finance"
	"riskline/internal/negotiation"
)

func ptr(v float64) *float64 { return &v }

func TestPresetScoresAndLevels(t *testing.T) {
	cfg := config.Default()
	want := map[string]float64{"excellent": 0.9275, "good": 0.79, "average": 0.55, "poor": 0.25}
	for name, score := range want {
		q, err := cfg.QualityPreset(name)
		require.NoError(t, err)
		got := Score(cfg.Detection, q)
		assert.InDelta(t, score, got, 1e-9, name)
		assert.Equal(t, name, Level(got))
	}
}

func TestNormalizeClamps(t *testing.T) {
	n := Normalize(domain.QualityVector{WarningDensity: 10, ClashDensity: 5, AttributeFill: 1.4, PhaseLink: -0.2})
	assert.Equal(t, Normalized{WD: 0, CD: 0, AF: 1, PL: 0}, n)
}

func TestEffectivenessAndProbabilityStayInUnitInterval(t *testing.T) {
	cfg := config.Default().Detection
	rng := rand.New(rand.NewPCG(3, 5))
	for i := 0; i < 1000; i++ {
		q := domain.QualityVector{
			WarningDensity: rng.Float64() * 4,
			ClashDensity:   rng.Float64() * 3,
			AttributeFill:  rng.Float64()*1.4 - 0.2,
			PhaseLink:      rng.Float64()*1.4 - 0.2,
		}
		eff := Effectiveness(q, cfg.DefaultWeights)
		assert.GreaterOrEqual(t, eff, 0.0)
		assert.LessOrEqual(t, eff, 1.0)

		p := Probability(cfg, ptr(rng.Float64()), eff)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, cfg.MaxProbability)

		assert.Zero(t, Probability(cfg, ptr(0), eff))
	}
}

func TestMalformedBaseIsUndetectable(t *testing.T) {
	cfg := config.Default().Detection
	assert.Zero(t, Probability(cfg, nil, 0.9))
	assert.Zero(t, Probability(cfg, ptr(math.NaN()), 0.9))
	assert.Zero(t, Probability(cfg, ptr(-0.1), 0.9))
	assert.Zero(t, Probability(cfg, ptr(1.5), 0.9))
}

func TestProbabilityIsCapped(t *testing.T) {
	cfg := config.Default().Detection
	assert.InDelta(t, cfg.MaxProbability, Probability(cfg, ptr(1), 1), 1e-12)
}

func TestReductionTable(t *testing.T) {
	cfg := config.Default()
	c := NewCalculator(cfg.Detection, Options{})
	r := c.ReductionFor("design", 0)
	assert.InDelta(t, 0.70, r.Delay, 1e-12)
	assert.InDelta(t, 0.80, r.Cost, 1e-12)

	r = c.ReductionFor("design", 1)
	assert.InDelta(t, 0.85, r.Delay, 1e-12)
	assert.InDelta(t, 0.95, r.Cost, 1e-12)

	r = c.ReductionFor("somewhere", 0)
	assert.InDelta(t, 0.3, r.Delay, 1e-12)
	assert.InDelta(t, 0.4, r.Cost, 1e-12)
}

type fixture struct {
	cfg      *config.Config
	resolver *negotiation.Resolver
	finance  *finance.Calculator
	project  negotiation.Project
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := config.Default()
	tpl, _, err := cfg.Template("cheongdam")
	require.NoError(t, err)
	return fixture{
		cfg:      cfg,
		resolver: negotiation.NewResolver(cfg.Negotiation),
		finance:  finance.NewCalculator(finance.LoanFromTemplate(tpl), cfg.Finance.RateTiers),
		project:  negotiation.Project{Name: tpl.Name, Budget: tpl.Budget, Day: 200, PlannedDuration: tpl.Duration},
	}
}

func (f fixture) calculator(enabled bool, quality string, seed uint64) *Calculator {
	q := f.cfg.QualityPresets[quality]
	return NewCalculator(f.cfg.Detection, Options{
		Enabled:  enabled,
		Quality:  q,
		Resolver: f.resolver,
		Finance:  f.finance,
		Rand:     rand.New(rand.NewPCG(seed, 2)),
	})
}

func TestDisabledAppliesUncertaintyOnly(t *testing.T) {
	f := newFixture(t)
	issue, err := catalog.Default().Get("I-01")
	require.NoError(t, err)

	base, err := f.resolver.Negotiate(issue, false, f.project)
	require.NoError(t, err)

	for seed := uint64(0); seed < 50; seed++ {
		impact, err := f.calculator(false, "excellent", seed).Calculate(issue, 200, "construction", f.project)
		require.NoError(t, err)
		assert.False(t, impact.Detected)
		assert.Zero(t, impact.DetectionProbability)
		assert.Nil(t, impact.Savings)
		assert.GreaterOrEqual(t, impact.DelayWeeks, base.DelayWeeks)
		assert.LessOrEqual(t, impact.DelayWeeks, base.DelayWeeks*1.15)
		assert.InDelta(t, f.finance.Calculate(impact.DelayWeeks).Total, impact.Financial.Total, 1e-6)
	}
}

func TestDetectedImpactIsReduced(t *testing.T) {
	f := newFixture(t)
	issue, err := catalog.Default().Get("I-01")
	require.NoError(t, err)
	undetected, err := f.resolver.Negotiate(issue, false, f.project)
	require.NoError(t, err)

	var detected, missed int
	for seed := uint64(0); seed < 200; seed++ {
		impact, err := f.calculator(true, "excellent", seed).Calculate(issue, 200, "construction", f.project)
		require.NoError(t, err)
		assert.Greater(t, impact.DetectionProbability, 0.5)
		if impact.Detected {
			detected++
			assert.Equal(t, "design", impact.DetectionPhase)
			require.NotNil(t, impact.Savings)
			assert.Less(t, impact.DelayWeeks, undetected.DelayWeeks)
			assert.Less(t, impact.CostIncrease, undetected.CostIncrease)
			assert.Greater(t, impact.Savings.DelayAvoided, 0.0)
		} else {
			missed++
			assert.GreaterOrEqual(t, impact.DelayWeeks, undetected.DelayWeeks*1.05-1e-12)
		}
	}
	assert.Positive(t, detected)
	assert.Positive(t, missed)
}

func TestUndetectableIssueIsNeverDetected(t *testing.T) {
	f := newFixture(t)
	issue, err := catalog.Default().Get("I-11")
	require.NoError(t, err)
	for seed := uint64(0); seed < 50; seed++ {
		impact, err := f.calculator(true, "excellent", seed).Calculate(issue, 200, "construction", f.project)
		require.NoError(t, err)
		assert.False(t, impact.Detected)
		assert.Zero(t, impact.DetectionProbability)
	}
}

func TestInvertedRangeSurfacesError(t *testing.T) {
	f := newFixture(t)
	issue := domain.Issue{ID: "X", DelayWeeksMin: 5, DelayWeeksMax: 1}
	_, err := f.calculator(false, "good", 1).Calculate(issue, 1, "design", f.project)
	require.Error(t, err)
}
