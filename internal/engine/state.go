package engine

import (
	"riskline/internal/config"
	"riskline/internal/domain"
	"riskline/internal/finance"
)

const daysPerWeek = 7.0

// ProjectState is the mutable ledger of one run. It is owned by a single
// simulation and mutated only through AdvanceDay and ApplyImpact.
type ProjectState struct {
	Name            string
	Budget          float64
	PlannedDuration int
	Template        config.ProjectTemplate

	Day   int
	Phase string

	DelayWeeks    float64
	CostIncrease  float64
	FinancialCost float64
	InterestRate  float64

	Occurred []domain.Impact
	Detected []string
	Missed   []string

	RateHistory  []domain.RateChange
	PhaseHistory []domain.PhaseMark
	Active       []domain.ActiveImpact

	recombiner Recombiner
}

func NewProjectState(tpl config.ProjectTemplate, recombiner Recombiner) *ProjectState {
	if recombiner == nil {
		recombiner = Independent{}
	}
	return &ProjectState{
		Name:            tpl.Name,
		Budget:          tpl.Budget,
		PlannedDuration: tpl.Duration,
		Template:        tpl,
		InterestRate:    tpl.BaseInterestRate,
		recombiner:      recombiner,
	}
}

// TotalDays is the number of days the run steps through.
func (s *ProjectState) TotalDays() int {
	return s.Template.TotalDays()
}

// Done reports whether the terminal day has been reached.
func (s *ProjectState) Done() bool {
	return s.Day >= s.TotalDays()
}

// AdvanceDay moves to the next day and recomputes the phase, closing the
// previous phase in the history when it changes.
func (s *ProjectState) AdvanceDay() {
	s.Day++
	next := s.Template.PhaseByDay(s.Day)
	if s.Phase != "" && next != s.Phase {
		s.PhaseHistory = append(s.PhaseHistory, domain.PhaseMark{Phase: s.Phase, EndDay: s.Day - 1})
	}
	s.Phase = next
	if s.Done() && s.Phase != "" {
		s.PhaseHistory = append(s.PhaseHistory, domain.PhaseMark{Phase: s.Phase, EndDay: s.Day})
	}
}

// Progress is the elapsed fraction of the planned duration.
func (s *ProjectState) Progress() float64 {
	if s.PlannedDuration <= 0 {
		return 0
	}
	return float64(s.Day) / float64(s.PlannedDuration)
}

// ApplyImpact folds one resolved impact into the ledger. floatDays is the
// issue's float override, carried into the active record.
func (s *ProjectState) ApplyImpact(impact domain.Impact, floatDays *float64) {
	record := impact.ActiveRecord(floatDays)
	s.Active = append(s.Active, record)
	s.Occurred = append(s.Occurred, impact)
	if impact.Detected {
		s.Detected = append(s.Detected, impact.IssueID)
	} else {
		s.Missed = append(s.Missed, impact.IssueID)
	}

	if d := s.recombiner.Recombine(s.DelayWeeks, s.Active, record); d > s.DelayWeeks {
		s.DelayWeeks = d
	}
	if impact.CostIncrease > 0 {
		s.CostIncrease += impact.CostIncrease
	}
	if impact.Financial.Total > 0 {
		s.FinancialCost += impact.Financial.Total
	}
	if impact.Financial.RateIncreaseBP > 0 {
		s.InterestRate = finance.Ratchet(s.InterestRate, impact.Financial.NewInterestRate)
		s.RateHistory = append(s.RateHistory, domain.RateChange{
			Day:         s.Day,
			DelayMonths: impact.Financial.DelayMonths,
			IncreaseBP:  impact.Financial.RateIncreaseBP,
			NewRate:     s.InterestRate,
		})
	}
}

// Metrics projects the ledger into final metrics without mutating it.
func (s *ProjectState) Metrics() domain.Metrics {
	delayDays := s.DelayWeeks * daysPerWeek
	direct := s.Budget * s.CostIncrease
	actual := s.Budget + direct + s.FinancialCost
	m := domain.Metrics{
		PlannedDuration:    s.PlannedDuration,
		ActualDuration:     float64(s.PlannedDuration) + delayDays,
		DelayDays:          delayDays,
		DelayWeeks:         s.DelayWeeks,
		PlannedBudget:      s.Budget,
		ActualCost:         actual,
		CostIncrease:       actual - s.Budget,
		DirectCostIncrease: direct,
		FinancialCost:      s.FinancialCost,
		IssuesCount:        len(s.Occurred),
		DetectedCount:      len(s.Detected),
		MissedCount:        len(s.Missed),
		FinalInterestRate:  s.InterestRate,
	}
	if s.PlannedDuration > 0 {
		m.ScheduleDelayRate = delayDays / float64(s.PlannedDuration)
	}
	if s.Budget > 0 {
		m.BudgetOverrunRate = m.CostIncrease / s.Budget
	}
	if m.IssuesCount > 0 {
		m.DetectionRate = float64(m.DetectedCount) / float64(m.IssuesCount)
	}
	return m
}
