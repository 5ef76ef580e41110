package engine

import (
	"fmt"

	"riskline/internal/domain"
	"riskline/internal/schedule"
)

const (
	RecombinerIndependent  = "independent"
	RecombinerCriticalPath = "critical_path"
)

// Recombiner folds a new active record into the cumulative project delay.
// The caller keeps the larger of the previous and returned values.
type Recombiner interface {
	Name() string
	Recombine(previous float64, active []domain.ActiveImpact, latest domain.ActiveImpact) float64
}

// Independent adds each event's delay on top of the running total.
type Independent struct{}

func (Independent) Name() string { return RecombinerIndependent }

func (Independent) Recombine(previous float64, _ []domain.ActiveImpact, latest domain.ActiveImpact) float64 {
	return previous + latest.DelayWeeks
}

// CriticalPath reconciles every active record through the schedule
// aggregator, treating the whole run as one epoch.
type CriticalPath struct {
	Aggregator *schedule.Aggregator
}

func (CriticalPath) Name() string { return RecombinerCriticalPath }

func (c CriticalPath) Recombine(_ float64, active []domain.ActiveImpact, _ domain.ActiveImpact) float64 {
	return c.Aggregator.TotalDelay(active)
}

// NewRecombiner resolves a recombiner by name; empty means independent.
func NewRecombiner(name string, network *schedule.Network) (Recombiner, error) {
	switch name {
	case "", RecombinerIndependent:
		return Independent{}, nil
	case RecombinerCriticalPath:
		return CriticalPath{Aggregator: schedule.NewAggregator(network)}, nil
	default:
		return nil, fmt.Errorf("unknown recombiner %s", name)
	}
}
