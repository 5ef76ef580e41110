package server

import (
	"encoding/json"

	"riskline/internal/config"
	"riskline/internal/domain"
	"riskline/internal/engine"
)

// Request payloads

type RunRequest struct {
	Template         string                `json:"template,omitempty"`
	Seed             *int64                `json:"seed,omitempty"`
	DetectionEnabled bool                  `json:"detection_enabled,omitempty"`
	Quality          string                `json:"quality,omitempty" enum:"excellent,good,average,poor"`
	QualityVector    *domain.QualityVector `json:"quality_vector,omitempty"`
	Recombiner       string                `json:"recombiner,omitempty" enum:"independent,critical_path"`
}

type ComparisonRequest struct {
	Template      string                `json:"template,omitempty"`
	Seed          *int64                `json:"seed,omitempty"`
	Quality       string                `json:"quality,omitempty" enum:"excellent,good,average,poor"`
	QualityVector *domain.QualityVector `json:"quality_vector,omitempty"`
	Recombiner    string                `json:"recombiner,omitempty" enum:"independent,critical_path"`
}

const defaultSeed int64 = 42

func (r RunRequest) options() engine.Options {
	return engine.Options{
		Template:         r.Template,
		Seed:             seedOrDefault(r.Seed),
		DetectionEnabled: r.DetectionEnabled,
		Quality:          r.Quality,
		QualityVector:    r.QualityVector,
		Recombiner:       r.Recombiner,
	}
}

func (r ComparisonRequest) options() engine.Options {
	return engine.Options{
		Template:      r.Template,
		Seed:          seedOrDefault(r.Seed),
		Quality:       r.Quality,
		QualityVector: r.QualityVector,
		Recombiner:    r.Recombiner,
	}
}

func seedOrDefault(seed *int64) int64 {
	if seed == nil {
		return defaultSeed
	}
	return *seed
}

// Response payloads

type RunResponse struct {
	Run          domain.Run            `json:"run"`
	Quality      domain.QualityVector  `json:"quality"`
	Impacts      []domain.Impact       `json:"impacts"`
	PhaseHistory []domain.PhaseMark    `json:"phase_history"`
	RateHistory  []domain.RateChange   `json:"rate_history"`
	Benchmark    engine.BenchmarkCheck `json:"benchmark"`
}

type ComparisonResponse struct {
	Traditional       domain.Run `json:"traditional"`
	Detection         domain.Run `json:"detection"`
	DelayDaysReduced  float64    `json:"delay_days_reduced"`
	CostReduced       float64    `json:"cost_reduced"`
	CostReductionRate float64    `json:"cost_reduction_rate"`
	DetectionRate     float64    `json:"detection_rate"`
	ROI               float64    `json:"roi"`
}

type TemplateResponse struct {
	Key string `json:"key"`
	config.ProjectTemplate
	TotalDays int `json:"total_days"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	RunID      string         `json:"run_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedRuns struct {
	Items      []domain.Run `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type impactList struct {
	Items []domain.Impact `json:"items"`
}

func runResponse(b config.BenchmarkConfig, res engine.Result) RunResponse {
	impacts := res.Impacts
	if impacts == nil {
		impacts = []domain.Impact{}
	}
	return RunResponse{
		Run:          res.Run,
		Quality:      res.Quality,
		Impacts:      impacts,
		PhaseHistory: res.PhaseHistory,
		RateHistory:  res.RateHistory,
		Benchmark:    engine.Validate(b, res.Run.Metrics, res.Run.DetectionEnabled),
	}
}

func comparisonResponse(c engine.Comparison) ComparisonResponse {
	return ComparisonResponse{
		Traditional:       c.Traditional.Run,
		Detection:         c.Detection.Run,
		DelayDaysReduced:  c.DelayDaysReduced,
		CostReduced:       c.CostReduced,
		CostReductionRate: c.CostReductionRate,
		DetectionRate:     c.DetectionRate,
		ROI:               c.ROI,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		RunID:      e.RunID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
