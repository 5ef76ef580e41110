package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskline/internal/config"
	"riskline/internal/domain"
	"riskline/internal/schedule"
)

func testTemplate() config.ProjectTemplate {
	return config.ProjectTemplate{
		Name:             "test",
		Budget:           1000,
		Duration:         10,
		Phases:           []config.Phase{{Name: "design", Days: 3}, {Name: "construction", Days: 5}},
		BaseInterestRate: 0.05,
	}
}

func TestAdvanceDayRecordsPhases(t *testing.T) {
	s := NewProjectState(testTemplate(), nil)
	for !s.Done() {
		s.AdvanceDay()
	}
	assert.Equal(t, 8, s.Day)
	assert.Equal(t, []domain.PhaseMark{{Phase: "design", EndDay: 3}, {Phase: "construction", EndDay: 8}}, s.PhaseHistory)
	assert.InDelta(t, 0.8, s.Progress(), 1e-12)
}

func TestApplyImpactLedger(t *testing.T) {
	s := NewProjectState(testTemplate(), Independent{})
	s.AdvanceDay()

	s.ApplyImpact(domain.Impact{
		IssueID: "I-01", WorkType: "structure", DelayWeeks: 2, CostIncrease: 0.05,
		Financial: domain.FinancialCost{Total: 30, RateIncreaseBP: 20, NewInterestRate: 0.052, DelayMonths: 0.46},
	}, nil)
	s.ApplyImpact(domain.Impact{
		IssueID: "I-02", WorkType: "mep", DelayWeeks: 1, CostIncrease: 0.02, Detected: true,
		Financial: domain.FinancialCost{Total: 10, RateIncreaseBP: 20, NewInterestRate: 0.051},
	}, nil)
	s.ApplyImpact(domain.Impact{IssueID: "I-03", CostIncrease: -0.01, Financial: domain.FinancialCost{Total: -5}}, nil)

	assert.InDelta(t, 3.0, s.DelayWeeks, 1e-12)
	assert.InDelta(t, 0.07, s.CostIncrease, 1e-12)
	assert.InDelta(t, 40.0, s.FinancialCost, 1e-12)
	assert.InDelta(t, 0.052, s.InterestRate, 1e-12, "rate never goes down")
	require.Len(t, s.RateHistory, 2)
	assert.InDelta(t, 0.052, s.RateHistory[1].NewRate, 1e-12)
	assert.Equal(t, []string{"I-02"}, s.Detected)
	assert.Equal(t, []string{"I-01", "I-03"}, s.Missed)
	assert.Len(t, s.Active, 3)

	m := s.Metrics()
	assert.InDelta(t, 21.0, m.DelayDays, 1e-12)
	assert.InDelta(t, 31.0, m.ActualDuration, 1e-12)
	assert.InDelta(t, 2.1, m.ScheduleDelayRate, 1e-12)
	assert.InDelta(t, 1000+70+40, m.ActualCost, 1e-9)
	assert.InDelta(t, 0.11, m.BudgetOverrunRate, 1e-12)
	assert.InDelta(t, 1.0/3, m.DetectionRate, 1e-12)
	assert.Equal(t, 3, m.IssuesCount)
}

func TestMetricsZeroDenominators(t *testing.T) {
	s := NewProjectState(config.ProjectTemplate{}, nil)
	m := s.Metrics()
	assert.Zero(t, m.ScheduleDelayRate)
	assert.Zero(t, m.BudgetOverrunRate)
	assert.Zero(t, m.DetectionRate)
	assert.Zero(t, s.Progress())
}

func TestCriticalPathRecombinerKeepsMonotonicDelay(t *testing.T) {
	network, err := schedule.NewNetwork(config.Default().Schedule)
	require.NoError(t, err)
	rec, err := NewRecombiner(RecombinerCriticalPath, network)
	require.NoError(t, err)
	s := NewProjectState(testTemplate(), rec)

	var last float64
	for i, d := range []float64{3, 0.5, 2, 4} {
		s.ApplyImpact(domain.Impact{IssueID: "I-" + string(rune('a'+i)), WorkType: "structure", DelayWeeks: d}, nil)
		assert.GreaterOrEqual(t, s.DelayWeeks, last)
		last = s.DelayWeeks
	}
	agg := schedule.NewAggregator(network)
	assert.InDelta(t, agg.TotalDelay(s.Active), s.DelayWeeks, 1e-12)
}

func TestPercentiles(t *testing.T) {
	p := percentiles([]float64{5, 1, 4, 2, 3, 6, 7, 8, 9, 10})
	assert.Equal(t, 6.0, p.P50)
	assert.Equal(t, 9.0, p.P85)
	assert.Equal(t, 10.0, p.P95)
	assert.InDelta(t, 5.5, p.Mean, 1e-12)
	assert.Equal(t, Percentiles{}, percentiles(nil))
}
