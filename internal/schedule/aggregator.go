package schedule

import (
	"math"
	"sort"

	"riskline/internal/domain"
)

const (
	daysPerWeek         = 7.0
	overheadFreeRecords = 5
	overheadPerRecord   = 0.05
)

// CategoryDelay is the per-category view of one aggregation.
type CategoryDelay struct {
	Category   string  `json:"category"`
	RawWeeks   float64 `json:"raw_weeks"`
	FloatDays  float64 `json:"float_days"`
	Effective  float64 `json:"effective_weeks"`
	Cumulative float64 `json:"cumulative_weeks"`
}

// Breakdown explains how a batch turned into a project delay.
type Breakdown struct {
	Categories []CategoryDelay `json:"categories"`
	PathWeeks  float64         `json:"path_weeks"`
	Records    int             `json:"records"`
	Overhead   float64         `json:"overhead_multiplier"`
	TotalWeeks float64         `json:"total_weeks"`
}

// Aggregator reconciles concurrently active impacts into one project delay.
// It is pure: inputs are never mutated and the result depends only on the
// set of records supplied.
type Aggregator struct {
	network *Network
}

func NewAggregator(network *Network) *Aggregator {
	return &Aggregator{network: network}
}

// TotalDelay returns the effective project delay in weeks.
func (a *Aggregator) TotalDelay(records []domain.ActiveImpact) float64 {
	return a.Breakdown(records).TotalWeeks
}

// OverheadMultiplier is 1 for up to five records and grows 5% per extra record.
func OverheadMultiplier(count int) float64 {
	if count <= overheadFreeRecords {
		return 1.0
	}
	return 1.0 + overheadPerRecord*float64(count-overheadFreeRecords)
}

// Breakdown runs grouping, float absorption, longest-path propagation and
// the concurrency overhead, returning every intermediate value.
func (a *Aggregator) Breakdown(records []domain.ActiveImpact) Breakdown {
	out := Breakdown{Records: len(records), Overhead: 1.0}
	if len(records) == 0 {
		return out
	}

	delays := map[string][]float64{}
	floats := map[string]float64{}
	for _, r := range records {
		delays[r.WorkType] = append(delays[r.WorkType], r.DelayWeeks)
		f, ok := floats[r.WorkType]
		if !ok {
			f = a.network.FloatDays(r.WorkType)
		}
		if r.FloatDays != nil && *r.FloatDays >= 0 {
			f = math.Min(f, *r.FloatDays)
		}
		floats[r.WorkType] = f
	}

	// summed in sorted order so float rounding does not depend on arrival order
	raw := make(map[string]float64, len(delays))
	for cat, ds := range delays {
		sort.Float64s(ds)
		sum := 0.0
		for _, d := range ds {
			sum += d
		}
		raw[cat] = sum
	}

	effective := make(map[string]float64, len(raw))
	for cat, weeks := range raw {
		effective[cat] = math.Max(0, weeks-floats[cat]/daysPerWeek)
	}

	memo := map[string]float64{}
	var cumulative func(cat string) float64
	cumulative = func(cat string) float64 {
		if v, ok := memo[cat]; ok {
			return v
		}
		best := 0.0
		for _, p := range a.network.preds[cat] {
			best = math.Max(best, cumulative(p))
		}
		v := best + effective[cat]
		memo[cat] = v
		return v
	}

	nodes := a.network.Categories()
	for cat := range raw {
		if _, known := a.network.preds[cat]; !known {
			nodes = append(nodes, cat)
		}
	}
	sort.Strings(nodes)

	path := 0.0
	seen := map[string]bool{}
	for _, cat := range nodes {
		if seen[cat] {
			continue
		}
		seen[cat] = true
		c := cumulative(cat)
		path = math.Max(path, c)
		if w, ok := raw[cat]; ok {
			f := floats[cat]
			out.Categories = append(out.Categories, CategoryDelay{
				Category:   cat,
				RawWeeks:   w,
				FloatDays:  f,
				Effective:  effective[cat],
				Cumulative: c,
			})
		}
	}

	out.PathWeeks = path
	out.Overhead = OverheadMultiplier(len(records))
	out.TotalWeeks = path * out.Overhead
	return out
}
