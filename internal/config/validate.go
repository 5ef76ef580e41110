package config

import (
	"fmt"
	"math"
)

// Validate checks structural constraints on the config.
func (c *Config) Validate() error {
	if len(c.Templates) == 0 {
		return fmt.Errorf("config.project_templates is required")
	}
	if c.DefaultTemplate == "" {
		return fmt.Errorf("config.default_template is required")
	}
	if _, ok := c.Templates[c.DefaultTemplate]; !ok {
		return fmt.Errorf("config.default_template %s is not a defined template", c.DefaultTemplate)
	}
	for key, t := range c.Templates {
		if err := t.validate(key); err != nil {
			return err
		}
	}
	if err := c.Finance.validate(); err != nil {
		return err
	}
	if err := c.Schedule.validate(); err != nil {
		return err
	}
	if err := c.Detection.validate(); err != nil {
		return err
	}
	if err := c.Negotiation.validate(); err != nil {
		return err
	}
	for name, q := range c.QualityPresets {
		if q.WarningDensity < 0 || q.ClashDensity < 0 {
			return fmt.Errorf("quality preset %s has negative density", name)
		}
	}
	if c.Trigger.FallbackRate < 0 || math.IsNaN(c.Trigger.FallbackRate) {
		return fmt.Errorf("config.trigger.fallback_rate must be >= 0")
	}
	return nil
}

func (t ProjectTemplate) validate(key string) error {
	if t.Name == "" {
		return fmt.Errorf("template %s has empty name", key)
	}
	if t.Budget <= 0 {
		return fmt.Errorf("template %s budget must be positive", key)
	}
	if t.Duration <= 0 {
		return fmt.Errorf("template %s duration must be positive", key)
	}
	if len(t.Phases) == 0 {
		return fmt.Errorf("template %s has no phases", key)
	}
	seen := map[string]bool{}
	for _, p := range t.Phases {
		if p.Name == "" {
			return fmt.Errorf("template %s has a phase with empty name", key)
		}
		if seen[p.Name] {
			return fmt.Errorf("template %s repeats phase %s", key, p.Name)
		}
		seen[p.Name] = true
		if p.Days <= 0 {
			return fmt.Errorf("template %s phase %s must span at least one day", key, p.Name)
		}
	}
	if t.PFRatio < 0 || t.PFRatio > 1 {
		return fmt.Errorf("template %s pf_ratio must be in [0,1]", key)
	}
	if t.BaseInterestRate < 0 {
		return fmt.Errorf("template %s base_interest_rate must be >= 0", key)
	}
	if t.DailyIndirectCostRatio < 0 {
		return fmt.Errorf("template %s daily_indirect_cost_ratio must be >= 0", key)
	}
	return nil
}

func (f FinanceConfig) validate() error {
	if len(f.RateTiers) == 0 {
		return fmt.Errorf("config.finance.rate_tiers is required")
	}
	prev := -1
	for _, tier := range f.RateTiers {
		if tier.Months <= prev {
			return fmt.Errorf("config.finance.rate_tiers must be strictly ascending by months")
		}
		if tier.BP < 0 {
			return fmt.Errorf("rate tier at %d months has negative bp", tier.Months)
		}
		prev = tier.Months
	}
	return nil
}

func (s ScheduleConfig) validate() error {
	if s.DefaultFloatDays < 0 {
		return fmt.Errorf("config.schedule.default_float_days must be >= 0")
	}
	for cat, days := range s.FloatDays {
		if days < 0 {
			return fmt.Errorf("float days for %s must be >= 0", cat)
		}
	}
	for cat, preds := range s.Dependencies {
		for _, p := range preds {
			if p == cat {
				return fmt.Errorf("category %s depends on itself", cat)
			}
		}
	}
	return nil
}

func (d DetectionConfig) validate() error {
	if d.MaxProbability <= 0 || d.MaxProbability > 1 {
		return fmt.Errorf("config.detection.max_probability must be in (0,1]")
	}
	if d.MaxReduction < 0 || d.MaxReduction > 1 {
		return fmt.Errorf("config.detection.max_reduction must be in [0,1]")
	}
	for phase, r := range d.PhaseReductions {
		if !r.valid() {
			return fmt.Errorf("phase reduction %s must be in [0,1]", phase)
		}
	}
	if !d.FallbackReduction.valid() {
		return fmt.Errorf("config.detection.fallback_reduction must be in [0,1]")
	}
	for name, r := range map[string]Range{"disabled": d.Uncertainty.Disabled, "undetected": d.Uncertainty.Undetected} {
		if r.Min < 1 || r.Max < r.Min {
			return fmt.Errorf("uncertainty range %s must satisfy 1 <= min <= max", name)
		}
	}
	return nil
}

func (r Reduction) valid() bool {
	return r.Delay >= 0 && r.Delay <= 1 && r.Cost >= 0 && r.Cost <= 1
}

func (n NegotiationConfig) validate() error {
	if len(n.Stakeholders) == 0 {
		return fmt.Errorf("config.negotiation.stakeholders is required")
	}
	names := map[string]bool{}
	for _, s := range n.Stakeholders {
		if s.Name == "" {
			return fmt.Errorf("stakeholder with empty name")
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate stakeholder %s", s.Name)
		}
		names[s.Name] = true
		if s.Preference < 0 || s.Preference > 1 {
			return fmt.Errorf("stakeholder %s preference must be in [0,1]", s.Name)
		}
		if s.Weight < 0 {
			return fmt.Errorf("stakeholder %s weight must be >= 0", s.Name)
		}
	}
	for _, r := range n.Rules {
		if r.Name == "" {
			return fmt.Errorf("negotiation rule with empty name")
		}
		for _, a := range r.Adjust {
			if !names[a.Stakeholder] {
				return fmt.Errorf("rule %s references unknown stakeholder %s", r.Name, a.Stakeholder)
			}
			if a.Field != FieldPreference && a.Field != FieldWeight {
				return fmt.Errorf("rule %s adjusts unknown field %s", r.Name, a.Field)
			}
		}
	}
	return nil
}
