package detection

import (
	"math"

	"riskline/internal/config"
	"riskline/internal/domain"
)

const (
	warningDensityScale = 2.0
	clashDensityScale   = 1.0
)

// Quality levels returned by Level.
const (
	LevelExcellent = "excellent"
	LevelGood      = "good"
	LevelAverage   = "average"
	LevelPoor      = "poor"
)

// Normalized is a quality vector mapped onto [0,1] per metric, higher is better.
type Normalized struct {
	WD float64 `json:"wd"`
	CD float64 `json:"cd"`
	AF float64 `json:"af"`
	PL float64 `json:"pl"`
}

// Normalize maps the two densities through 1-x/scale and clamps the two
// fractions.
func Normalize(q domain.QualityVector) Normalized {
	return Normalized{
		WD: clamp01(1 - q.WarningDensity/warningDensityScale),
		CD: clamp01(1 - q.ClashDensity/clashDensityScale),
		AF: clamp01(q.AttributeFill),
		PL: clamp01(q.PhaseLink),
	}
}

// Effectiveness is the weighted sum of the normalized metrics, clamped to [0,1].
func Effectiveness(q domain.QualityVector, w domain.MetricWeights) float64 {
	n := Normalize(q)
	return clamp01(n.WD*w.WD + n.CD*w.CD + n.AF*w.AF + n.PL*w.PL)
}

// Weights returns the issue-specific weights, or the configured default.
func Weights(cfg config.DetectionConfig, issueID string) domain.MetricWeights {
	if w, ok := cfg.IssueWeights[issueID]; ok {
		return w
	}
	return cfg.DefaultWeights
}

// Score is the effectiveness under the default weights.
func Score(cfg config.DetectionConfig, q domain.QualityVector) float64 {
	return Effectiveness(q, cfg.DefaultWeights)
}

func Level(score float64) string {
	switch {
	case score >= 0.85:
		return LevelExcellent
	case score >= 0.70:
		return LevelGood
	case score >= 0.50:
		return LevelAverage
	default:
		return LevelPoor
	}
}

// Probability is base × sigmoid(k(eff−x0)), capped at the configured
// maximum. A missing or out-of-range base means the issue cannot be detected.
func Probability(cfg config.DetectionConfig, base *float64, effectiveness float64) float64 {
	if base == nil || math.IsNaN(*base) || *base <= 0 || *base > 1 {
		return 0
	}
	sig := 1 / (1 + math.Exp(-cfg.SigmoidK*(clamp01(effectiveness)-cfg.SigmoidX0)))
	return clamp01(math.Min(cfg.MaxProbability, *base*sig))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
