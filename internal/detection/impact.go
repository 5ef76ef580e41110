package detection

import (
	"fmt"
	"math"
	"math/rand/v2"

	"riskline/internal/config"
	"riskline/internal/domain"
	"riskline/internal/finance"
	"riskline/internal/negotiation"
)

// Calculator resolves a fired issue into its final impact.
type Calculator struct {
	cfg      config.DetectionConfig
	enabled  bool
	quality  domain.QualityVector
	resolver *negotiation.Resolver
	finance  *finance.Calculator
	rng      *rand.Rand
}

type Options struct {
	Enabled  bool
	Quality  domain.QualityVector
	Resolver *negotiation.Resolver
	Finance  *finance.Calculator
	Rand     *rand.Rand
}

func NewCalculator(cfg config.DetectionConfig, opts Options) *Calculator {
	return &Calculator{
		cfg:      cfg,
		enabled:  opts.Enabled,
		quality:  opts.Quality,
		resolver: opts.Resolver,
		finance:  opts.Finance,
		rng:      opts.Rand,
	}
}

// ReductionFor returns the delay and cost reduction for a detection phase,
// including the quality bonus and the cap.
func (c *Calculator) ReductionFor(phase string, effectiveness float64) config.Reduction {
	base, ok := c.cfg.PhaseReductions[phase]
	if !ok {
		base = c.cfg.FallbackReduction
	}
	bonus := clamp01(effectiveness) * c.cfg.QualityBonus
	return config.Reduction{
		Delay: math.Min(c.cfg.MaxReduction, base.Delay+bonus),
		Cost:  math.Min(c.cfg.MaxReduction, base.Cost+bonus),
	}
}

// Calculate settles one fired issue. Detection-disabled runs draw only the
// uncertainty factor; enabled runs draw detection first.
func (c *Calculator) Calculate(issue domain.Issue, day int, phase string, p negotiation.Project) (domain.Impact, error) {
	impact := domain.Impact{
		IssueID:   issue.ID,
		IssueName: issue.Name,
		Day:       day,
		Phase:     phase,
		WorkType:  issue.WorkType,
	}

	if !c.enabled {
		out, err := c.resolver.Negotiate(issue, false, p)
		if err != nil {
			return domain.Impact{}, err
		}
		factor := c.uniform(c.cfg.Uncertainty.Disabled)
		c.settle(&impact, out, out.DelayWeeks*factor, out.CostIncrease*factor)
		return impact, nil
	}

	eff := Effectiveness(c.quality, Weights(c.cfg, issue.ID))
	prob := Probability(c.cfg, issue.Detection.BaseDetectability, eff)
	impact.Effectiveness = eff
	impact.DetectionProbability = prob

	detected := c.rng.Float64() < prob
	if !detected {
		out, err := c.resolver.Negotiate(issue, false, p)
		if err != nil {
			return domain.Impact{}, err
		}
		factor := c.uniform(c.cfg.Uncertainty.Undetected)
		c.settle(&impact, out, out.DelayWeeks*factor, out.CostIncrease*factor)
		return impact, nil
	}

	out, err := c.resolver.Negotiate(issue, true, p)
	if err != nil {
		return domain.Impact{}, err
	}
	baseline, err := c.resolver.Negotiate(issue, false, p)
	if err != nil {
		return domain.Impact{}, err
	}
	red := c.ReductionFor(issue.Detection.DetectionPhase, eff)
	delay := out.DelayWeeks * (1 - red.Delay)
	cost := out.CostIncrease * (1 - red.Cost)
	c.settle(&impact, out, delay, cost)
	impact.Detected = true
	impact.DetectionPhase = issue.Detection.DetectionPhase
	impact.NegotiationSummary = fmt.Sprintf("%s reduction=%.2f/%.2f", impact.NegotiationSummary, red.Delay, red.Cost)
	impact.Savings = &domain.Savings{
		DelayAvoided: baseline.DelayWeeks - delay,
		CostAvoided:  baseline.CostIncrease - cost,
	}
	return impact, nil
}

func (c *Calculator) settle(impact *domain.Impact, out negotiation.Outcome, delay, cost float64) {
	impact.DelayWeeks = delay
	impact.CostIncrease = cost
	impact.NegotiatedPosition = out.Position
	impact.NegotiationSummary = out.Summary()
	impact.Financial = c.finance.Calculate(delay)
}

// uniform draws from [r.Min, r.Max); a zero-width range still consumes a draw.
func (c *Calculator) uniform(r config.Range) float64 {
	return r.Min + (r.Max-r.Min)*c.rng.Float64()
}
