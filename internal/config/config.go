package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"riskline/internal/domain"
)

//go:embed default.yml
var defaultYAML []byte

// Config models riskline.yml.
type Config struct {
	DefaultTemplate string                          `yaml:"default_template" json:"default_template"`
	Templates       map[string]ProjectTemplate      `yaml:"project_templates" json:"project_templates"`
	Finance         FinanceConfig                   `yaml:"finance" json:"finance"`
	Schedule        ScheduleConfig                  `yaml:"schedule" json:"schedule"`
	Detection       DetectionConfig                 `yaml:"detection" json:"detection"`
	Negotiation     NegotiationConfig               `yaml:"negotiation" json:"negotiation"`
	QualityPresets  map[string]domain.QualityVector `yaml:"quality_presets" json:"quality_presets"`
	Trigger         TriggerConfig                   `yaml:"trigger" json:"trigger"`
	Benchmarks      BenchmarkConfig                 `yaml:"benchmarks" json:"benchmarks"`
}

type ProjectTemplate struct {
	Name                   string  `yaml:"name" json:"name"`
	Location               string  `yaml:"location" json:"location"`
	BuildingType           string  `yaml:"building_type" json:"building_type"`
	GFA                    float64 `yaml:"gfa" json:"gfa"`
	Budget                 float64 `yaml:"budget" json:"budget"`
	Duration               int     `yaml:"duration" json:"duration"`
	Phases                 []Phase `yaml:"phases" json:"phases"`
	PFRatio                float64 `yaml:"pf_ratio" json:"pf_ratio"`
	BaseInterestRate       float64 `yaml:"base_interest_rate" json:"base_interest_rate"`
	DailyIndirectCostRatio float64 `yaml:"daily_indirect_cost_ratio" json:"daily_indirect_cost_ratio"`
}

type Phase struct {
	Name string `yaml:"name" json:"name"`
	Days int    `yaml:"days" json:"days"`
}

// TotalDays is the number of simulated days for the template.
func (t ProjectTemplate) TotalDays() int {
	total := 0
	for _, p := range t.Phases {
		total += p.Days
	}
	return total
}

// PhaseByDay returns the phase active on a 1-based day. Days past the
// schedule stay in the last phase.
func (t ProjectTemplate) PhaseByDay(day int) string {
	if len(t.Phases) == 0 {
		return ""
	}
	start := 1
	for _, p := range t.Phases {
		if day >= start && day <= start+p.Days-1 {
			return p.Name
		}
		start += p.Days
	}
	return t.Phases[len(t.Phases)-1].Name
}

// PhaseBounds returns the first and last day of a phase, or 0,0 if unknown.
func (t ProjectTemplate) PhaseBounds(name string) (int, int) {
	start := 1
	for _, p := range t.Phases {
		if p.Name == name {
			return start, start + p.Days - 1
		}
		start += p.Days
	}
	return 0, 0
}

type FinanceConfig struct {
	RateTiers []RateTier `yaml:"rate_tiers" json:"rate_tiers"`
}

// RateTier applies BP once the whole-month delay reaches Months.
type RateTier struct {
	Months int `yaml:"months" json:"months"`
	BP     int `yaml:"bp" json:"bp"`
}

type ScheduleConfig struct {
	Dependencies     map[string][]string `yaml:"dependencies" json:"dependencies"`
	FloatDays        map[string]float64  `yaml:"float_days" json:"float_days"`
	DefaultFloatDays float64             `yaml:"default_float_days" json:"default_float_days"`
	ParallelGroups   [][]string          `yaml:"parallel_groups" json:"parallel_groups"`
}

type DetectionConfig struct {
	SigmoidK          float64                         `yaml:"sigmoid_k" json:"sigmoid_k"`
	SigmoidX0         float64                         `yaml:"sigmoid_x0" json:"sigmoid_x0"`
	MaxProbability    float64                         `yaml:"max_probability" json:"max_probability"`
	DefaultWeights    domain.MetricWeights            `yaml:"default_weights" json:"default_weights"`
	IssueWeights      map[string]domain.MetricWeights `yaml:"issue_weights" json:"issue_weights"`
	PhaseReductions   map[string]Reduction            `yaml:"phase_reductions" json:"phase_reductions"`
	FallbackReduction Reduction                       `yaml:"fallback_reduction" json:"fallback_reduction"`
	QualityBonus      float64                         `yaml:"quality_bonus" json:"quality_bonus"`
	MaxReduction      float64                         `yaml:"max_reduction" json:"max_reduction"`
	Uncertainty       UncertaintyConfig               `yaml:"uncertainty" json:"uncertainty"`
}

type Reduction struct {
	Delay float64 `yaml:"delay" json:"delay"`
	Cost  float64 `yaml:"cost" json:"cost"`
}

// UncertaintyConfig keeps the two inflation ranges separate: runs without
// detection and detection-enabled runs that miss the issue.
type UncertaintyConfig struct {
	Disabled   Range `yaml:"disabled" json:"disabled"`
	Undetected Range `yaml:"undetected" json:"undetected"`
}

type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

type NegotiationConfig struct {
	Stakeholders     []Stakeholder     `yaml:"stakeholders" json:"stakeholders"`
	NormalizeWeights bool              `yaml:"normalize_weights" json:"normalize_weights"`
	Rules            []NegotiationRule `yaml:"rules" json:"rules"`
}

type Stakeholder struct {
	Name       string  `yaml:"name" json:"name"`
	Label      string  `yaml:"label,omitempty" json:"label,omitempty"`
	Preference float64 `yaml:"preference" json:"preference"`
	Weight     float64 `yaml:"weight" json:"weight"`
}

// NegotiationRule perturbs stakeholder positions when its condition holds.
// Within a non-empty Group only the first matching rule applies.
type NegotiationRule struct {
	Name   string        `yaml:"name" json:"name"`
	Group  string        `yaml:"group,omitempty" json:"group,omitempty"`
	When   RuleCondition `yaml:"when" json:"when"`
	Adjust []Adjustment  `yaml:"adjust" json:"adjust"`
}

// RuleCondition fields are ANDed; zero values are ignored.
type RuleCondition struct {
	Detected        bool     `yaml:"detected,omitempty" json:"detected,omitempty"`
	BudgetAbove     float64  `yaml:"budget_above,omitempty" json:"budget_above,omitempty"`
	BudgetBelow     float64  `yaml:"budget_below,omitempty" json:"budget_below,omitempty"`
	NameContains    []string `yaml:"name_contains,omitempty" json:"name_contains,omitempty"`
	ProgressAtLeast float64  `yaml:"progress_at_least,omitempty" json:"progress_at_least,omitempty"`
}

// Adjustment sets or shifts one stakeholder field, then applies an optional floor.
type Adjustment struct {
	Stakeholder string   `yaml:"stakeholder" json:"stakeholder"`
	Field       string   `yaml:"field" json:"field"`
	Set         *float64 `yaml:"set,omitempty" json:"set,omitempty"`
	Delta       float64  `yaml:"delta,omitempty" json:"delta,omitempty"`
	Floor       *float64 `yaml:"floor,omitempty" json:"floor,omitempty"`
}

const (
	FieldPreference = "preference"
	FieldWeight     = "weight"
)

type TriggerConfig struct {
	FallbackRate float64 `yaml:"fallback_rate" json:"fallback_rate"`
}

type BenchmarkConfig struct {
	Traditional BenchmarkAverages `yaml:"traditional" json:"traditional"`
	BIM         BenchmarkAverages `yaml:"bim" json:"bim"`
	Range       BenchmarkRange    `yaml:"validation_range" json:"validation_range"`
}

type BenchmarkAverages struct {
	BudgetOverrun float64 `yaml:"budget_overrun" json:"budget_overrun"`
	ScheduleDelay float64 `yaml:"schedule_delay" json:"schedule_delay"`
}

type BenchmarkRange struct {
	BudgetOverrunMin float64 `yaml:"budget_overrun_min" json:"budget_overrun_min"`
	BudgetOverrunMax float64 `yaml:"budget_overrun_max" json:"budget_overrun_max"`
	ScheduleDelayMin float64 `yaml:"schedule_delay_min" json:"schedule_delay_min"`
	ScheduleDelayMax float64 `yaml:"schedule_delay_max" json:"schedule_delay_max"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; write one with rl config show > %s", path, path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the workspace has none.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "riskline.yml")
}

// DefaultYAML returns the embedded default configuration document.
func DefaultYAML() []byte {
	out := make([]byte, len(defaultYAML))
	copy(out, defaultYAML)
	return out
}

// Default returns the embedded default Config.
func Default() *Config {
	cfg, err := FromYAML(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config is invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes. Sections missing
// from data keep their embedded defaults.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		return nil, fmt.Errorf("invalid default config yaml: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Template resolves a project template by key, falling back to the default.
func (c *Config) Template(key string) (ProjectTemplate, string, error) {
	if key == "" {
		key = c.DefaultTemplate
	}
	t, ok := c.Templates[key]
	if !ok {
		return ProjectTemplate{}, "", fmt.Errorf("unknown project template %s", key)
	}
	return t, key, nil
}

// TemplateKeys returns the template keys in sorted order.
func (c *Config) TemplateKeys() []string {
	keys := make([]string, 0, len(c.Templates))
	for k := range c.Templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// QualityPreset resolves a named quality vector.
func (c *Config) QualityPreset(name string) (domain.QualityVector, error) {
	q, ok := c.QualityPresets[name]
	if !ok {
		return domain.QualityVector{}, fmt.Errorf("unknown quality preset %s", name)
	}
	return q, nil
}
