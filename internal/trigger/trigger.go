package trigger

import (
	"math"
	"math/rand/v2"

	"riskline/internal/domain"
)

// DefaultFallbackRate is the daily probability used for issues with a
// missing or malformed occurrence rate.
const DefaultFallbackRate = 0.01

// Fired is one issue that fired on a given day.
type Fired struct {
	Issue domain.Issue
	Day   int
	Phase string
}

// IssueManager draws daily Bernoulli trials for pending issues. Each issue
// fires at most once per simulation.
type IssueManager struct {
	rng          *rand.Rand
	fallbackRate float64
	pending      []domain.Issue
	triggered    []Fired
}

func NewIssueManager(issues []domain.Issue, rng *rand.Rand, fallbackRate float64) *IssueManager {
	if fallbackRate < 0 || math.IsNaN(fallbackRate) {
		fallbackRate = DefaultFallbackRate
	}
	return &IssueManager{
		rng:          rng,
		fallbackRate: fallbackRate,
		pending:      append([]domain.Issue(nil), issues...),
	}
}

// Rate resolves the daily probability for an issue, clamped to [0,1].
func (m *IssueManager) Rate(issue domain.Issue) float64 {
	rate := m.fallbackRate
	if r := issue.OccurrenceRate; r != nil && !math.IsNaN(*r) && *r >= 0 {
		rate = *r
	}
	return math.Min(1, rate)
}

// Trigger walks pending issues in catalog order and returns those whose
// phase matches and whose draw succeeds. Issues in other phases consume no
// randomness.
func (m *IssueManager) Trigger(phase string, day int) []Fired {
	var fired []Fired
	kept := m.pending[:0]
	for _, issue := range m.pending {
		if issue.Phase != phase {
			kept = append(kept, issue)
			continue
		}
		if m.rng.Float64() < m.Rate(issue) {
			f := Fired{Issue: issue, Day: day, Phase: phase}
			fired = append(fired, f)
			m.triggered = append(m.triggered, f)
			continue
		}
		kept = append(kept, issue)
	}
	m.pending = kept
	return fired
}

// Pending returns the issues that have not fired yet.
func (m *IssueManager) Pending() []domain.Issue {
	return append([]domain.Issue(nil), m.pending...)
}

// Triggered returns every fired issue in firing order.
func (m *IssueManager) Triggered() []Fired {
	return append([]Fired(nil), m.triggered...)
}
