package negotiation

import (
	"fmt"
	"math"
	"strings"

	"riskline/internal/config"
	"riskline/internal/domain"
)

// Project is the slice of project state the resolver reads.
type Project struct {
	Name            string
	Budget          float64
	Day             int
	PlannedDuration int
}

// Progress is the elapsed fraction of the planned duration, 0 when unknown.
func (p Project) Progress() float64 {
	if p.PlannedDuration <= 0 {
		return 0
	}
	return float64(p.Day) / float64(p.PlannedDuration)
}

// Postures band a settled preference: firm stakeholders push toward the low
// end of a range, lenient ones toward the high end.
const (
	PostureFirm     = "firm"
	PostureModerate = "moderate"
	PostureLenient  = "lenient"

	firmBelow    = 0.3
	lenientAbove = 0.7
)

// Stance is one stakeholder's settled preference and weight. Label is the
// stakeholder's display role; Posture is derived from the preference.
type Stance struct {
	Name       string  `json:"name"`
	Label      string  `json:"label,omitempty"`
	Posture    string  `json:"posture"`
	Preference float64 `json:"preference"`
	Weight     float64 `json:"weight"`
}

// PostureFor maps a preference onto its band.
func PostureFor(pref float64) string {
	switch {
	case pref < firmBelow:
		return PostureFirm
	case pref > lenientAbove:
		return PostureLenient
	default:
		return PostureModerate
	}
}

// Outcome is a settled point inside the permissible ranges.
type Outcome struct {
	Position     float64  `json:"position"`
	DelayWeeks   float64  `json:"delay_weeks"`
	CostIncrease float64  `json:"cost_increase"`
	Stances      []Stance `json:"stances"`
	Rules        []string `json:"rules,omitempty"`
}

// Summary renders a one-line trace of the outcome.
func (o Outcome) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "position=%.3f delay=%.2fw cost=%.4f", o.Position, o.DelayWeeks, o.CostIncrease)
	if len(o.Rules) > 0 {
		fmt.Fprintf(&b, " rules=%s", strings.Join(o.Rules, ","))
	}
	return b.String()
}

type Resolver struct {
	cfg config.NegotiationConfig
}

func NewResolver(cfg config.NegotiationConfig) *Resolver {
	return &Resolver{cfg: cfg}
}

// Stances applies the rule table to the base stakeholders and returns the
// adjusted stances plus the names of the rules that fired.
func (r *Resolver) Stances(detected bool, p Project) ([]Stance, []string) {
	stances := make([]Stance, len(r.cfg.Stakeholders))
	index := make(map[string]int, len(stances))
	for i, s := range r.cfg.Stakeholders {
		stances[i] = Stance{Name: s.Name, Label: s.Label, Preference: s.Preference, Weight: s.Weight}
		index[s.Name] = i
	}

	var applied []string
	groupsUsed := map[string]bool{}
	for _, rule := range r.cfg.Rules {
		if rule.Group != "" && groupsUsed[rule.Group] {
			continue
		}
		if !matches(rule.When, detected, p) {
			continue
		}
		if rule.Group != "" {
			groupsUsed[rule.Group] = true
		}
		for _, adj := range rule.Adjust {
			i, ok := index[adj.Stakeholder]
			if !ok {
				continue
			}
			apply(&stances[i], adj)
		}
		applied = append(applied, rule.Name)
	}
	for i := range stances {
		stances[i].Posture = PostureFor(stances[i].Preference)
	}
	return stances, applied
}

func matches(c config.RuleCondition, detected bool, p Project) bool {
	if c.Detected && !detected {
		return false
	}
	if c.BudgetAbove > 0 && !(p.Budget > c.BudgetAbove) {
		return false
	}
	if c.BudgetBelow > 0 && !(p.Budget < c.BudgetBelow) {
		return false
	}
	if len(c.NameContains) > 0 {
		name := strings.ToLower(p.Name)
		found := false
		for _, kw := range c.NameContains {
			if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.ProgressAtLeast > 0 && p.Progress() < c.ProgressAtLeast {
		return false
	}
	return true
}

func apply(s *Stance, adj config.Adjustment) {
	field := &s.Preference
	if adj.Field == config.FieldWeight {
		field = &s.Weight
	}
	v := *field
	if adj.Set != nil {
		v = *adj.Set
	}
	v += adj.Delta
	if adj.Floor != nil {
		v = math.Max(*adj.Floor, v)
	}
	if adj.Field == config.FieldWeight {
		v = math.Max(0, v)
	} else {
		v = clamp01(v)
	}
	*field = v
}

// Position blends stance preferences by weight. With normalization the
// result is a convex combination; without it the raw weighted sum is used.
// Either way the result is clamped to [0,1].
func (r *Resolver) Position(stances []Stance) float64 {
	var sum, weights float64
	for _, s := range stances {
		sum += s.Preference * s.Weight
		weights += s.Weight
	}
	if r.cfg.NormalizeWeights {
		if weights <= 0 {
			return 0
		}
		sum /= weights
	}
	return clamp01(sum)
}

// Negotiate settles an issue's delay and cost ranges to a single point.
func (r *Resolver) Negotiate(issue domain.Issue, detected bool, p Project) (Outcome, error) {
	if issue.DelayWeeksMax < issue.DelayWeeksMin {
		return Outcome{}, fmt.Errorf("issue %s: delay range max %g < min %g", issue.ID, issue.DelayWeeksMax, issue.DelayWeeksMin)
	}
	if issue.CostIncreaseMax < issue.CostIncreaseMin {
		return Outcome{}, fmt.Errorf("issue %s: cost range max %g < min %g", issue.ID, issue.CostIncreaseMax, issue.CostIncreaseMin)
	}
	stances, rules := r.Stances(detected, p)
	pos := r.Position(stances)
	return Outcome{
		Position:     pos,
		DelayWeeks:   Interpolate(issue.DelayWeeksMin, issue.DelayWeeksMax, pos),
		CostIncrease: Interpolate(issue.CostIncreaseMin, issue.CostIncreaseMax, pos),
		Stances:      stances,
		Rules:        rules,
	}, nil
}

// Interpolate maps a position in [0,1] onto [lo,hi]. Zero-width ranges
// return lo.
func Interpolate(lo, hi, pos float64) float64 {
	if hi == lo {
		return lo
	}
	v := lo + (hi-lo)*pos
	return math.Min(hi, math.Max(lo, v))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
