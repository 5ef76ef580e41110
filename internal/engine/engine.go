package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"riskline/internal/catalog"
	"riskline/internal/config"
	"riskline/internal/events"
	"riskline/internal/repo"
)

// Engine runs simulations and records finalized results. A nil DB turns
// recording off.
type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Catalog *catalog.Catalog
	Logger  *zap.Logger
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config, cat *catalog.Catalog, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Config:  cfg,
		Catalog: cat,
		Logger:  logger,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) simulation() (*Simulation, error) {
	if e.Config == nil {
		return nil, errors.New("config not loaded")
	}
	return NewSimulation(e.Config, e.Catalog, e.Logger)
}

// Run simulates one regime and records the result.
func (e Engine) Run(ctx context.Context, opts Options) (Result, error) {
	sim, err := e.simulation()
	if err != nil {
		return Result{}, err
	}
	res, err := sim.Run(ctx, opts)
	if err != nil {
		return Result{}, err
	}
	res.Run.CreatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.record(ctx, res, nil); err != nil {
		return Result{}, err
	}
	return res, nil
}

// Compare simulates both regimes on one seed and records both runs.
func (e Engine) Compare(ctx context.Context, opts Options) (Comparison, error) {
	sim, err := e.simulation()
	if err != nil {
		return Comparison{}, err
	}
	cmp, err := sim.Compare(ctx, opts)
	if err != nil {
		return Comparison{}, err
	}
	ts := e.now().UTC().Format(time.RFC3339)
	cmp.Traditional.Run.CreatedAt = ts
	cmp.Detection.Run.CreatedAt = ts
	if err := e.record(ctx, cmp.Traditional, nil); err != nil {
		return Comparison{}, err
	}
	if err := e.record(ctx, cmp.Detection, &cmp); err != nil {
		return Comparison{}, err
	}
	return cmp, nil
}

// Sweep runs a Monte-Carlo comparison; individual runs are not recorded.
func (e Engine) Sweep(ctx context.Context, opts Options, n, workers int) (SweepResult, error) {
	sim, err := e.simulation()
	if err != nil {
		return SweepResult{}, err
	}
	return sim.Sweep(ctx, opts, n, workers)
}

func (e Engine) record(ctx context.Context, res Result, cmp *Comparison) error {
	if e.DB == nil {
		return nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.UpsertRunTx(ctx, tx, res.Run); err != nil {
		return err
	}
	if err := e.Repo.InsertImpactsTx(ctx, tx, res.Run.ID, res.Impacts); err != nil {
		return err
	}
	m := res.Run.Metrics
	if err := e.Events.Append(ctx, tx, events.TypeRunRecorded, res.Run.ID, "run", res.Run.ID, events.Payload{
		"template":            res.Run.Template,
		"seed":                res.Run.Seed,
		"detection_enabled":   res.Run.DetectionEnabled,
		"issues":              m.IssuesCount,
		"delay_days":          m.DelayDays,
		"budget_overrun_rate": m.BudgetOverrunRate,
	}); err != nil {
		return err
	}
	if cmp != nil {
		if err := e.Events.Append(ctx, tx, events.TypeComparisonRecorded, res.Run.ID, "comparison", cmp.Traditional.Run.ID, events.Payload{
			"traditional_run_id": cmp.Traditional.Run.ID,
			"detection_run_id":   cmp.Detection.Run.ID,
			"delay_days_reduced": cmp.DelayDaysReduced,
			"cost_reduced":       cmp.CostReduced,
			"roi":                cmp.ROI,
		}); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", res.Run.ID, err)
	}
	return nil
}
