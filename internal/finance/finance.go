package finance

import (
	"math"

	"riskline/internal/config"
	"riskline/internal/domain"
)

const (
	daysPerWeek  = 7.0
	daysPerMonth = 30.0
	daysPerYear  = 365.0
	bpPerUnit    = 10000.0
)

// Loan holds the financing parameters of one project.
type Loan struct {
	Budget                 float64
	PFRatio                float64
	BaseInterestRate       float64
	DailyIndirectCostRatio float64
}

// LoanFromTemplate extracts financing parameters from a project template.
func LoanFromTemplate(t config.ProjectTemplate) Loan {
	return Loan{
		Budget:                 t.Budget,
		PFRatio:                t.PFRatio,
		BaseInterestRate:       t.BaseInterestRate,
		DailyIndirectCostRatio: t.DailyIndirectCostRatio,
	}
}

type Calculator struct {
	loan  Loan
	tiers []config.RateTier
}

// NewCalculator expects tiers sorted ascending by months, as config validation enforces.
func NewCalculator(loan Loan, tiers []config.RateTier) *Calculator {
	return &Calculator{loan: loan, tiers: append([]config.RateTier(nil), tiers...)}
}

// TierBP returns the rate increase for a delay measured in months. Only
// whole months count toward a tier.
func (c *Calculator) TierBP(months float64) int {
	if months <= 0 || math.IsNaN(months) {
		return 0
	}
	bucket := int(months)
	bp := 0
	for _, t := range c.tiers {
		if bucket >= t.Months {
			bp = t.BP
		}
	}
	return bp
}

// Calculate prices a delay: interest on the loan-financed share of the
// budget at the tier increase, plus flat daily indirect cost.
func (c *Calculator) Calculate(delayWeeks float64) domain.FinancialCost {
	if delayWeeks < 0 || math.IsNaN(delayWeeks) {
		delayWeeks = 0
	}
	days := delayWeeks * daysPerWeek
	months := days / daysPerMonth
	bp := c.TierBP(months)

	loan := c.loan.Budget * c.loan.PFRatio
	interest := loan * (float64(bp) / bpPerUnit) * (days / daysPerYear)
	indirect := c.loan.Budget * c.loan.DailyIndirectCostRatio * days

	return domain.FinancialCost{
		InterestIncrease: interest,
		IndirectCost:     indirect,
		Total:            interest + indirect,
		RateIncreaseBP:   bp,
		NewInterestRate:  c.loan.BaseInterestRate + float64(bp)/bpPerUnit,
		DelayMonths:      months,
	}
}

// Ratchet returns the higher of the current and candidate rates.
func Ratchet(current, candidate float64) float64 {
	return math.Max(current, candidate)
}
