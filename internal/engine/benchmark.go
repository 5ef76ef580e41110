package engine

import (
	"riskline/internal/config"
	"riskline/internal/domain"
)

// BenchmarkCheck compares run metrics with industry reference values.
type BenchmarkCheck struct {
	Regime                 string  `json:"regime"`
	BudgetOverrunInRange   bool    `json:"budget_overrun_in_range"`
	ScheduleDelayInRange   bool    `json:"schedule_delay_in_range"`
	BudgetOverrunDeviation float64 `json:"budget_overrun_deviation"`
	ScheduleDelayDeviation float64 `json:"schedule_delay_deviation"`
	ReferenceBudgetOverrun float64 `json:"reference_budget_overrun"`
	ReferenceScheduleDelay float64 `json:"reference_schedule_delay"`
}

// Validate checks metrics against the configured ranges. Deviations are
// relative to the regime's reference average, 0 when that average is 0.
func Validate(b config.BenchmarkConfig, m domain.Metrics, detectionEnabled bool) BenchmarkCheck {
	ref := b.Traditional
	regime := "traditional"
	if detectionEnabled {
		ref = b.BIM
		regime = "detection"
	}
	r := b.Range
	check := BenchmarkCheck{
		Regime:                 regime,
		BudgetOverrunInRange:   m.BudgetOverrunRate >= r.BudgetOverrunMin && m.BudgetOverrunRate <= r.BudgetOverrunMax,
		ScheduleDelayInRange:   m.ScheduleDelayRate >= r.ScheduleDelayMin && m.ScheduleDelayRate <= r.ScheduleDelayMax,
		ReferenceBudgetOverrun: ref.BudgetOverrun,
		ReferenceScheduleDelay: ref.ScheduleDelay,
	}
	if ref.BudgetOverrun != 0 {
		check.BudgetOverrunDeviation = (m.BudgetOverrunRate - ref.BudgetOverrun) / ref.BudgetOverrun
	}
	if ref.ScheduleDelay != 0 {
		check.ScheduleDelayDeviation = (m.ScheduleDelayRate - ref.ScheduleDelay) / ref.ScheduleDelay
	}
	return check
}
