package engine

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"riskline/internal/catalog"
	"riskline/internal/config"
	"riskline/internal/detection"
	"riskline/internal/domain"
	"riskline/internal/finance"
	"riskline/internal/negotiation"
	"riskline/internal/schedule"
	"riskline/internal/trigger"
)

// PCG stream selectors. The trigger stream is shared by both detection
// regimes so they see the same fired issues.
const (
	streamTrigger uint64 = 1
	streamImpact  uint64 = 2
)

const reviewEveryDays = 30

var runNamespace = uuid.MustParse("6f1d4c1e-6a52-4bde-9d0a-3b7f5c2a9e10")

// Options selects one run.
type Options struct {
	Template         string                `json:"template"`
	Seed             int64                 `json:"seed"`
	DetectionEnabled bool                  `json:"detection_enabled"`
	Quality          string                `json:"quality,omitempty"`
	QualityVector    *domain.QualityVector `json:"quality_vector,omitempty"`
	Recombiner       string                `json:"recombiner,omitempty"`
}

// Review is a periodic snapshot of the ledger.
type Review struct {
	Day          int     `json:"day"`
	Phase        string  `json:"phase"`
	DelayWeeks   float64 `json:"delay_weeks"`
	CostIncrease float64 `json:"cost_increase"`
	Issues       int     `json:"issues"`
	InterestRate float64 `json:"interest_rate"`
}

// Result is everything one run produced.
type Result struct {
	Run          domain.Run           `json:"run"`
	Quality      domain.QualityVector `json:"quality"`
	Impacts      []domain.Impact      `json:"impacts"`
	PhaseHistory []domain.PhaseMark   `json:"phase_history"`
	RateHistory  []domain.RateChange  `json:"rate_history"`
	Reviews      []Review             `json:"reviews"`
}

// Simulation holds the immutable inputs shared by runs. It is safe for
// concurrent use; each Run owns its own state and random streams.
type Simulation struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	network *schedule.Network
	logger  *zap.Logger
}

func NewSimulation(cfg *config.Config, cat *catalog.Catalog, logger *zap.Logger) (*Simulation, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	if cat == nil {
		cat = catalog.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	network, err := schedule.NewNetwork(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("schedule network: %w", err)
	}
	return &Simulation{cfg: cfg, catalog: cat, network: network, logger: logger}, nil
}

func (s *Simulation) Network() *schedule.Network {
	return s.network
}

// RunID derives a stable id from the options, so a reproduced run keeps its id.
// Quality is keyed only when detection is on.
func RunID(template string, opts Options) string {
	if !opts.DetectionEnabled {
		opts.Quality, opts.QualityVector = "", nil
	}
	key := fmt.Sprintf("%s|%d|%t|%s|%s", template, opts.Seed, opts.DetectionEnabled, opts.Quality, opts.Recombiner)
	if opts.QualityVector != nil {
		q := opts.QualityVector
		key += fmt.Sprintf("|%g,%g,%g,%g", q.WarningDensity, q.ClashDensity, q.AttributeFill, q.PhaseLink)
	}
	return uuid.NewSHA1(runNamespace, []byte(key)).String()
}

func (s *Simulation) resolveQuality(opts Options) (domain.QualityVector, string, error) {
	if opts.QualityVector != nil {
		score := detection.Score(s.cfg.Detection, *opts.QualityVector)
		return *opts.QualityVector, detection.Level(score), nil
	}
	name := opts.Quality
	if name == "" {
		name = detection.LevelGood
	}
	q, err := s.cfg.QualityPreset(name)
	if err != nil {
		return domain.QualityVector{}, "", err
	}
	return q, name, nil
}

// Run steps the project day by day until the schedule ends. Every fired
// issue is negotiated, checked for detection, priced and folded into state.
func (s *Simulation) Run(ctx context.Context, opts Options) (Result, error) {
	tpl, key, err := s.cfg.Template(opts.Template)
	if err != nil {
		return Result{}, err
	}
	quality, level, err := s.resolveQuality(opts)
	if err != nil {
		return Result{}, err
	}
	recombiner, err := NewRecombiner(opts.Recombiner, s.network)
	if err != nil {
		return Result{}, err
	}

	seed := uint64(opts.Seed)
	issues := trigger.NewIssueManager(s.catalog.Issues(), rand.New(rand.NewPCG(seed, streamTrigger)), s.cfg.Trigger.FallbackRate)
	calc := detection.NewCalculator(s.cfg.Detection, detection.Options{
		Enabled:  opts.DetectionEnabled,
		Quality:  quality,
		Resolver: negotiation.NewResolver(s.cfg.Negotiation),
		Finance:  finance.NewCalculator(finance.LoanFromTemplate(tpl), s.cfg.Finance.RateTiers),
		Rand:     rand.New(rand.NewPCG(seed, streamImpact)),
	})
	state := NewProjectState(tpl, recombiner)

	runID := RunID(key, opts)
	log := s.logger.With(zap.String("run_id", runID), zap.String("template", key), zap.Bool("detection", opts.DetectionEnabled))
	log.Info("run started", zap.Int64("seed", opts.Seed), zap.Int("days", state.TotalDays()), zap.String("recombiner", recombiner.Name()))

	var reviews []Review
	for !state.Done() {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		state.AdvanceDay()
		for _, fired := range issues.Trigger(state.Phase, state.Day) {
			impact, err := calc.Calculate(fired.Issue, state.Day, state.Phase, negotiation.Project{
				Name:            state.Name,
				Budget:          state.Budget,
				Day:             state.Day,
				PlannedDuration: state.PlannedDuration,
			})
			if err != nil {
				return Result{}, fmt.Errorf("day %d: %w", state.Day, err)
			}
			state.ApplyImpact(impact, fired.Issue.FloatDays)
			log.Debug("issue resolved",
				zap.Int("day", state.Day),
				zap.String("issue", impact.IssueID),
				zap.Bool("detected", impact.Detected),
				zap.Float64("delay_weeks", impact.DelayWeeks),
				zap.Float64("cost_increase", impact.CostIncrease))
		}
		if state.Day%reviewEveryDays == 0 {
			r := Review{
				Day:          state.Day,
				Phase:        state.Phase,
				DelayWeeks:   state.DelayWeeks,
				CostIncrease: state.CostIncrease,
				Issues:       len(state.Occurred),
				InterestRate: state.InterestRate,
			}
			reviews = append(reviews, r)
			log.Debug("periodic review", zap.Int("day", r.Day), zap.String("phase", r.Phase),
				zap.Float64("delay_weeks", r.DelayWeeks), zap.Int("issues", r.Issues))
		}
	}

	metrics := state.Metrics()
	log.Info("run finished",
		zap.Int("issues", metrics.IssuesCount),
		zap.Int("detected", metrics.DetectedCount),
		zap.Float64("delay_days", metrics.DelayDays),
		zap.Float64("budget_overrun_rate", metrics.BudgetOverrunRate))

	run := domain.Run{
		ID:               runID,
		Template:         key,
		ProjectName:      tpl.Name,
		Seed:             opts.Seed,
		DetectionEnabled: opts.DetectionEnabled,
		Recombiner:       recombiner.Name(),
		Metrics:          metrics,
	}
	if opts.DetectionEnabled {
		run.QualityLevel = level
	}
	return Result{
		Run:          run,
		Quality:      quality,
		Impacts:      state.Occurred,
		PhaseHistory: state.PhaseHistory,
		RateHistory:  state.RateHistory,
		Reviews:      reviews,
	}, nil
}
