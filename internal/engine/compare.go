package engine

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Comparison pairs a run without detection against one with detection on
// the same seed.
type Comparison struct {
	Traditional Result `json:"traditional"`
	Detection   Result `json:"detection"`

	DelayDaysReduced  float64 `json:"delay_days_reduced"`
	CostReduced       float64 `json:"cost_reduced"`
	CostReductionRate float64 `json:"cost_reduction_rate"`
	DetectionRate     float64 `json:"detection_rate"`
	ROI               float64 `json:"roi"`
}

// Compare runs both regimes concurrently. opts.DetectionEnabled is ignored.
func (s *Simulation) Compare(ctx context.Context, opts Options) (Comparison, error) {
	off, on := opts, opts
	off.DetectionEnabled = false
	on.DetectionEnabled = true

	var cmp Comparison
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.Run(gctx, off)
		if err != nil {
			return fmt.Errorf("run without detection: %w", err)
		}
		cmp.Traditional = res
		return nil
	})
	g.Go(func() error {
		res, err := s.Run(gctx, on)
		if err != nil {
			return fmt.Errorf("run with detection: %w", err)
		}
		cmp.Detection = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return Comparison{}, err
	}

	a, b := cmp.Traditional.Run.Metrics, cmp.Detection.Run.Metrics
	cmp.DelayDaysReduced = a.DelayDays - b.DelayDays
	cmp.CostReduced = a.ActualCost - b.ActualCost
	if a.ActualCost > 0 {
		cmp.ROI = cmp.CostReduced / a.ActualCost
	}
	// share of the traditional overrun that detection avoided
	if a.CostIncrease > 0 {
		cmp.CostReductionRate = cmp.CostReduced / a.CostIncrease
	}
	cmp.DetectionRate = b.DetectionRate
	s.logger.Info("comparison finished",
		zap.Int64("seed", opts.Seed),
		zap.Float64("delay_days_reduced", cmp.DelayDaysReduced),
		zap.Float64("cost_reduced", cmp.CostReduced))
	return cmp, nil
}

// Percentiles are nearest-rank percentiles of a sample.
type Percentiles struct {
	P50  float64 `json:"p50"`
	P85  float64 `json:"p85"`
	P95  float64 `json:"p95"`
	Mean float64 `json:"mean"`
}

func percentiles(values []float64) Percentiles {
	if len(values) == 0 {
		return Percentiles{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	at := func(p float64) float64 {
		i := int(float64(n) * p)
		if i >= n {
			i = n - 1
		}
		return sorted[i]
	}
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return Percentiles{P50: at(0.50), P85: at(0.85), P95: at(0.95), Mean: sum / float64(n)}
}

// RegimeSummary aggregates one detection regime across a sweep.
type RegimeSummary struct {
	DelayWeeks    Percentiles `json:"delay_weeks"`
	OverrunRate   Percentiles `json:"budget_overrun_rate"`
	DetectionRate Percentiles `json:"detection_rate"`
}

// SweepResult is a Monte-Carlo summary over consecutive seeds.
type SweepResult struct {
	Template    string        `json:"template"`
	FirstSeed   int64         `json:"first_seed"`
	Runs        int           `json:"runs"`
	Traditional RegimeSummary `json:"traditional"`
	Detection   RegimeSummary `json:"detection"`
}

// Sweep compares both regimes for n consecutive seeds starting at opts.Seed,
// with at most workers comparisons in flight.
func (s *Simulation) Sweep(ctx context.Context, opts Options, n, workers int) (SweepResult, error) {
	if n <= 0 {
		return SweepResult{}, fmt.Errorf("sweep needs at least one run")
	}
	if workers <= 0 {
		workers = 4
	}
	comparisons := make([]Comparison, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			o := opts
			o.Seed = opts.Seed + int64(i)
			c, err := s.Compare(gctx, o)
			if err != nil {
				return err
			}
			comparisons[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SweepResult{}, err
	}

	collect := func(pick func(Comparison) Result) RegimeSummary {
		delay := make([]float64, n)
		overrun := make([]float64, n)
		detected := make([]float64, n)
		for i, c := range comparisons {
			m := pick(c).Run.Metrics
			delay[i] = m.DelayWeeks
			overrun[i] = m.BudgetOverrunRate
			detected[i] = m.DetectionRate
		}
		return RegimeSummary{
			DelayWeeks:    percentiles(delay),
			OverrunRate:   percentiles(overrun),
			DetectionRate: percentiles(detected),
		}
	}
	out := SweepResult{
		Template:    comparisons[0].Traditional.Run.Template,
		FirstSeed:   opts.Seed,
		Runs:        n,
		Traditional: collect(func(c Comparison) Result { return c.Traditional }),
		Detection:   collect(func(c Comparison) Result { return c.Detection }),
	}
	return out, nil
}
