package domain

// Issue is an immutable catalog entry describing one risk event.
type Issue struct {
	ID              string           `yaml:"id" json:"id"`
	Name            string           `yaml:"name" json:"name"`
	Category        string           `yaml:"category" json:"category"`
	Phase           string           `yaml:"phase" json:"phase"`
	Severity        string           `yaml:"severity" json:"severity" enum:"S1,S2,S3"`
	WorkType        string           `yaml:"work_type" json:"work_type"`
	FloatDays       *float64         `yaml:"float_days,omitempty" json:"float_days,omitempty"`
	OccurrenceRate  *float64         `yaml:"occurrence_rate,omitempty" json:"occurrence_rate,omitempty"`
	DelayWeeksMin   float64          `yaml:"delay_weeks_min" json:"delay_weeks_min"`
	DelayWeeksMax   float64          `yaml:"delay_weeks_max" json:"delay_weeks_max"`
	CostIncreaseMin float64          `yaml:"cost_increase_min" json:"cost_increase_min"`
	CostIncreaseMax float64          `yaml:"cost_increase_max" json:"cost_increase_max"`
	Detection       DetectionProfile `yaml:"bim_effect" json:"bim_effect"`
}

// DetectionProfile describes how an inspection model can catch an issue early.
// A nil BaseDetectability marks the profile as malformed.
type DetectionProfile struct {
	BaseDetectability *float64 `yaml:"base_detectability,omitempty" json:"base_detectability,omitempty"`
	DetectionPhase    string   `yaml:"detection_phase,omitempty" json:"detection_phase,omitempty"`
}

// QualityVector holds the four inspection model fidelity metrics.
type QualityVector struct {
	WarningDensity float64 `yaml:"warning_density" json:"warning_density"`
	ClashDensity   float64 `yaml:"clash_density" json:"clash_density"`
	AttributeFill  float64 `yaml:"attribute_fill" json:"attribute_fill"`
	PhaseLink      float64 `yaml:"phase_link" json:"phase_link"`
}

// MetricWeights weights the normalized quality metrics.
type MetricWeights struct {
	WD float64 `yaml:"wd" json:"wd"`
	CD float64 `yaml:"cd" json:"cd"`
	AF float64 `yaml:"af" json:"af"`
	PL float64 `yaml:"pl" json:"pl"`
}

// ActiveImpact is the transient record consumed by the delay aggregator.
type ActiveImpact struct {
	IssueID    string   `json:"issue_id"`
	WorkType   string   `json:"work_type"`
	DelayWeeks float64  `json:"delay_weeks"`
	FloatDays  *float64 `json:"float_days,omitempty"`
	Detected   bool     `json:"detected"`
}

type FinancialCost struct {
	InterestIncrease float64 `json:"interest_increase"`
	IndirectCost     float64 `json:"indirect_cost"`
	Total            float64 `json:"total_financial_cost"`
	RateIncreaseBP   int     `json:"rate_increase_bp"`
	NewInterestRate  float64 `json:"new_interest_rate"`
	DelayMonths      float64 `json:"delay_months"`
}

type Savings struct {
	DelayAvoided float64 `json:"delay_avoided"`
	CostAvoided  float64 `json:"cost_avoided"`
}

// Impact is the resolved effect of one fired issue.
type Impact struct {
	IssueID              string        `json:"issue_id"`
	IssueName            string        `json:"issue_name"`
	Day                  int           `json:"day"`
	Phase                string        `json:"phase"`
	WorkType             string        `json:"work_type"`
	DelayWeeks           float64       `json:"delay_weeks"`
	CostIncrease         float64       `json:"cost_increase"`
	Detected             bool          `json:"detected"`
	DetectionPhase       string        `json:"detection_phase,omitempty"`
	Effectiveness        float64       `json:"bim_effectiveness"`
	DetectionProbability float64       `json:"detection_probability"`
	NegotiatedPosition   float64       `json:"negotiated_position"`
	Financial            FinancialCost `json:"financial_cost"`
	NegotiationSummary   string        `json:"negotiation_summary,omitempty"`
	Savings              *Savings      `json:"savings,omitempty"`
}

// ActiveRecord projects an impact onto the aggregator input.
func (i Impact) ActiveRecord(floatDays *float64) ActiveImpact {
	return ActiveImpact{
		IssueID:    i.IssueID,
		WorkType:   i.WorkType,
		DelayWeeks: i.DelayWeeks,
		FloatDays:  floatDays,
		Detected:   i.Detected,
	}
}

type RateChange struct {
	Day         int     `json:"day"`
	DelayMonths float64 `json:"delay_months"`
	IncreaseBP  int     `json:"increase_bp"`
	NewRate     float64 `json:"new_rate"`
}

type PhaseMark struct {
	Phase  string `json:"phase"`
	EndDay int    `json:"end_day"`
}

// Metrics is the finalized projection of a project state.
type Metrics struct {
	PlannedDuration    int     `json:"planned_duration"`
	ActualDuration     float64 `json:"actual_duration"`
	DelayDays          float64 `json:"delay_days"`
	DelayWeeks         float64 `json:"delay_weeks"`
	ScheduleDelayRate  float64 `json:"schedule_delay_rate"`
	PlannedBudget      float64 `json:"planned_budget"`
	ActualCost         float64 `json:"actual_cost"`
	CostIncrease       float64 `json:"cost_increase"`
	BudgetOverrunRate  float64 `json:"budget_overrun_rate"`
	DirectCostIncrease float64 `json:"direct_cost_increase"`
	FinancialCost      float64 `json:"financial_cost"`
	IssuesCount        int     `json:"issues_count"`
	DetectedCount      int     `json:"detected_count"`
	MissedCount        int     `json:"missed_count"`
	DetectionRate      float64 `json:"detection_rate"`
	FinalInterestRate  float64 `json:"final_interest_rate"`
}

// Run is a stored, finalized simulation run.
type Run struct {
	ID               string  `json:"id"`
	Template         string  `json:"template"`
	ProjectName      string  `json:"project_name"`
	Seed             int64   `json:"seed"`
	DetectionEnabled bool    `json:"detection_enabled"`
	QualityLevel     string  `json:"quality_level,omitempty"`
	Recombiner       string  `json:"recombiner" enum:"independent,critical_path"`
	Metrics          Metrics `json:"metrics"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	RunID      string `json:"run_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
