package schedule

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskline/internal/config"
	"riskline/internal/domain"
)

func defaultNetwork(t *testing.T) *Network {
	t.Helper()
	n, err := NewNetwork(config.Default().Schedule)
	require.NoError(t, err)
	return n
}

func rec(cat string, weeks float64) domain.ActiveImpact {
	return domain.ActiveImpact{IssueID: cat, WorkType: cat, DelayWeeks: weeks}
}

func ptr(v float64) *float64 { return &v }

func TestNetworkLookups(t *testing.T) {
	n := defaultNetwork(t)
	assert.Equal(t, []string{"civil", "design"}, n.Predecessors("structure"))
	assert.Empty(t, n.Predecessors("landscaping"))
	assert.Equal(t, 14.0, n.FloatDays("finishing"))
	assert.Equal(t, 7.0, n.FloatDays("landscaping"))
	assert.True(t, n.IsCritical("structure"))
	assert.False(t, n.IsCritical("mechanical"))
	assert.True(t, n.CanRunInParallel("mechanical", "electrical"))
	assert.False(t, n.CanRunInParallel("mechanical", "civil"))
	assert.Equal(t, []string{"civil", "contract", "design", "structure"}, n.CriticalPath())
}

func TestNewNetworkRejectsCycle(t *testing.T) {
	_, err := NewNetwork(config.ScheduleConfig{
		Dependencies: map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"a"}},
	})
	require.Error(t, err)
}

func TestEmptyBatch(t *testing.T) {
	agg := NewAggregator(defaultNetwork(t))
	assert.Zero(t, agg.TotalDelay(nil))
	b := agg.Breakdown([]domain.ActiveImpact{})
	assert.Equal(t, 1.0, b.Overhead)
}

func TestFiveRecordsInFloatCategory(t *testing.T) {
	agg := NewAggregator(defaultNetwork(t))
	var batch []domain.ActiveImpact
	for i := 0; i < 5; i++ {
		batch = append(batch, rec("finishing", 2))
	}
	b := agg.Breakdown(batch)
	require.Len(t, b.Categories, 1)
	assert.InDelta(t, 10, b.Categories[0].RawWeeks, 1e-12)
	assert.InDelta(t, 8, b.Categories[0].Effective, 1e-12)
	assert.Equal(t, 1.0, b.Overhead)
	assert.InDelta(t, 8, b.TotalWeeks, 1e-12)
}

func TestIndependentCategoriesTakeMax(t *testing.T) {
	agg := NewAggregator(defaultNetwork(t))
	// contract and material have no edges between them.
	got := agg.TotalDelay([]domain.ActiveImpact{rec("contract", 3), rec("material", 5)})
	assert.InDelta(t, 3.0, got, 1e-12)

	got = agg.TotalDelay([]domain.ActiveImpact{rec("contract", 3), rec("landscaping", 1)})
	assert.InDelta(t, 3.0, got, 1e-12)
}

func TestPredecessorChainAccumulates(t *testing.T) {
	agg := NewAggregator(defaultNetwork(t))
	got := agg.TotalDelay([]domain.ActiveImpact{rec("design", 1), rec("civil", 2), rec("structure", 3)})
	assert.InDelta(t, 6.0, got, 1e-12)

	// mechanical absorbs 1 week of float downstream of structure.
	got = agg.TotalDelay([]domain.ActiveImpact{rec("structure", 3), rec("mechanical", 2)})
	assert.InDelta(t, 4.0, got, 1e-12)
}

func TestFloatAbsorptionNeverNegative(t *testing.T) {
	agg := NewAggregator(defaultNetwork(t))
	assert.Zero(t, agg.TotalDelay([]domain.ActiveImpact{rec("finishing", 1)}))
}

func TestFloatOverrideTightensSlack(t *testing.T) {
	agg := NewAggregator(defaultNetwork(t))
	r := rec("finishing", 3)
	r.FloatDays = ptr(0)
	assert.InDelta(t, 3.0, agg.TotalDelay([]domain.ActiveImpact{r}), 1e-12)
}

func TestIncreasingFloatIsMonotonic(t *testing.T) {
	batch := []domain.ActiveImpact{rec("civil", 2), rec("structure", 1.5), rec("finishing", 3), rec("material", 4)}
	prev := -1.0
	for _, days := range []float64{35, 28, 21, 14, 7, 0} {
		cfg := config.Default().Schedule
		cfg.FloatDays["structure"] = days
		n, err := NewNetwork(cfg)
		require.NoError(t, err)
		got := NewAggregator(n).TotalDelay(batch)
		assert.GreaterOrEqual(t, got, prev, "float %v", days)
		prev = got
	}
}

func TestOverheadMultiplier(t *testing.T) {
	for n := 0; n <= 5; n++ {
		assert.Equal(t, 1.0, OverheadMultiplier(n))
	}
	prev := 1.0
	for n := 6; n < 20; n++ {
		m := OverheadMultiplier(n)
		assert.Greater(t, m, prev)
		prev = m
	}
	assert.InDelta(t, 1.25, OverheadMultiplier(10), 1e-12)
}

func TestAggregationIsOrderIndependent(t *testing.T) {
	agg := NewAggregator(defaultNetwork(t))
	batch := []domain.ActiveImpact{
		rec("design", 1), rec("structure", 2.5), rec("finishing", 3),
		rec("mechanical", 2), rec("electrical", 1), rec("material", 3), rec("landscaping", 2),
	}
	want := agg.TotalDelay(batch)
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 20; i++ {
		shuffled := append([]domain.ActiveImpact(nil), batch...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, agg.TotalDelay(shuffled))
	}
}

func TestSameCategorySumIsOrderIndependent(t *testing.T) {
	agg := NewAggregator(defaultNetwork(t))
	forward := []domain.ActiveImpact{rec("structure", 0.1), rec("structure", 0.2), rec("structure", 0.3)}
	reversed := []domain.ActiveImpact{forward[2], forward[1], forward[0]}
	a, b := agg.Breakdown(forward), agg.Breakdown(reversed)
	assert.Equal(t, a, b)
	assert.Equal(t, a.TotalWeeks, b.TotalWeeks)

	batch := []domain.ActiveImpact{
		rec("finishing", 0.7), rec("finishing", 1.1), rec("finishing", 0.3), rec("finishing", 2.9),
		rec("structure", 0.1), rec("structure", 0.2), rec("structure", 0.3), rec("material", 1.3),
	}
	want := agg.Breakdown(batch)
	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 20; i++ {
		shuffled := append([]domain.ActiveImpact(nil), batch...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, agg.Breakdown(shuffled))
	}
}

func TestAggregatorDoesNotMutateInput(t *testing.T) {
	agg := NewAggregator(defaultNetwork(t))
	batch := []domain.ActiveImpact{rec("finishing", 3), rec("finishing", 4)}
	before := append([]domain.ActiveImpact(nil), batch...)
	agg.TotalDelay(batch)
	assert.Equal(t, before, batch)
}
