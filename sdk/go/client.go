package risklinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Riskline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "v0",
		Timeout:  30 * time.Second,
	}
}

// QualityVector holds the inspection model fidelity metrics.
type QualityVector struct {
	WarningDensity float64 `json:"warning_density"`
	ClashDensity   float64 `json:"clash_density"`
	AttributeFill  float64 `json:"attribute_fill"`
	PhaseLink      float64 `json:"phase_link"`
}

// RunRequest selects one simulation run. A nil Seed lets the server pick.
type RunRequest struct {
	Template         string         `json:"template,omitempty"`
	Seed             *int64         `json:"seed,omitempty"`
	DetectionEnabled bool           `json:"detection_enabled"`
	Quality          string         `json:"quality,omitempty"`
	QualityVector    *QualityVector `json:"quality_vector,omitempty"`
	Recombiner       string         `json:"recombiner,omitempty"`
}

// Metrics is the finalized outcome of a run (partial).
type Metrics struct {
	PlannedDuration   int     `json:"planned_duration"`
	DelayDays         float64 `json:"delay_days"`
	DelayWeeks        float64 `json:"delay_weeks"`
	ScheduleDelayRate float64 `json:"schedule_delay_rate"`
	PlannedBudget     float64 `json:"planned_budget"`
	ActualCost        float64 `json:"actual_cost"`
	CostIncrease      float64 `json:"cost_increase"`
	BudgetOverrunRate float64 `json:"budget_overrun_rate"`
	FinancialCost     float64 `json:"financial_cost"`
	IssuesCount       int     `json:"issues_count"`
	DetectedCount     int     `json:"detected_count"`
	DetectionRate     float64 `json:"detection_rate"`
	FinalInterestRate float64 `json:"final_interest_rate"`
}

// Run is a recorded simulation run.
type Run struct {
	ID               string  `json:"id"`
	Template         string  `json:"template"`
	ProjectName      string  `json:"project_name"`
	Seed             int64   `json:"seed"`
	DetectionEnabled bool    `json:"detection_enabled"`
	QualityLevel     string  `json:"quality_level,omitempty"`
	Recombiner       string  `json:"recombiner"`
	Metrics          Metrics `json:"metrics"`
	CreatedAt        string  `json:"created_at"`
}

// Impact is the resolved effect of one fired issue (partial).
type Impact struct {
	IssueID      string  `json:"issue_id"`
	IssueName    string  `json:"issue_name"`
	Day          int     `json:"day"`
	Phase        string  `json:"phase"`
	WorkType     string  `json:"work_type"`
	DelayWeeks   float64 `json:"delay_weeks"`
	CostIncrease float64 `json:"cost_increase"`
	Detected     bool    `json:"detected"`
}

// RunResult is the response to CreateRun.
type RunResult struct {
	Run     Run      `json:"run"`
	Impacts []Impact `json:"impacts"`
}

// Comparison pairs both detection regimes on one seed.
type Comparison struct {
	Traditional       Run     `json:"traditional"`
	Detection         Run     `json:"detection"`
	DelayDaysReduced  float64 `json:"delay_days_reduced"`
	CostReduced       float64 `json:"cost_reduced"`
	CostReductionRate float64 `json:"cost_reduction_rate"`
	DetectionRate     float64 `json:"detection_rate"`
	ROI               float64 `json:"roi"`
}

// Template is a project template summary.
type Template struct {
	Key       string  `json:"key"`
	Name      string  `json:"name"`
	Budget    float64 `json:"budget"`
	Duration  int     `json:"duration"`
	TotalDays int     `json:"total_days"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	RunID      string         `json:"run_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedRuns wraps run listings with cursors.
type PaginatedRuns struct {
	Items      []Run  `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Health reports server status.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodGet, c.path("health"), nil, &resp)
	return resp, err
}

func (c *Client) Templates(ctx context.Context) ([]Template, error) {
	var resp []Template
	err := c.do(ctx, http.MethodGet, c.path("templates"), nil, &resp)
	return resp, err
}

// CreateRun simulates and records one run.
func (c *Client) CreateRun(ctx context.Context, req RunRequest) (RunResult, error) {
	var resp RunResult
	err := c.do(ctx, http.MethodPost, c.path("runs"), req, &resp)
	return resp, err
}

// Compare simulates both detection regimes on one seed.
func (c *Client) Compare(ctx context.Context, req RunRequest) (Comparison, error) {
	body := map[string]any{
		"template":   req.Template,
		"quality":    req.Quality,
		"recombiner": req.Recombiner,
	}
	if req.Seed != nil {
		body["seed"] = *req.Seed
	}
	if req.QualityVector != nil {
		body["quality_vector"] = req.QualityVector
	}
	for k, v := range body {
		if s, ok := v.(string); ok && s == "" {
			delete(body, k)
		}
	}
	var resp Comparison
	err := c.do(ctx, http.MethodPost, c.path("comparisons"), body, &resp)
	return resp, err
}

func (c *Client) GetRun(ctx context.Context, id string) (Run, error) {
	var resp Run
	err := c.do(ctx, http.MethodGet, c.path("runs/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// RunImpacts returns a recorded run's impacts in firing order.
func (c *Client) RunImpacts(ctx context.Context, id string) ([]Impact, error) {
	var resp struct {
		Items []Impact `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.path("runs/"+url.PathEscape(id)+"/impacts"), nil, &resp)
	return resp.Items, err
}

// RunsPage returns a page of recorded runs, newest first.
func (c *Client) RunsPage(ctx context.Context, template string, limit int, cursor string) (PaginatedRuns, error) {
	q := url.Values{}
	if template != "" {
		q.Set("template", template)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedRuns
	err := c.do(ctx, http.MethodGet, withQuery(c.path("runs"), q), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, "", limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing, optionally for one run.
func (c *Client) EventsPage(ctx context.Context, runID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if runID != "" {
		q.Set("run_id", runID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery(c.path("events"), q), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) path(p string) string {
	base := strings.Trim(c.BasePath, "/")
	if base == "" {
		return strings.TrimLeft(p, "/")
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
