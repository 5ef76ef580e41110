package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	tpl, key, err := cfg.Template("")
	require.NoError(t, err)
	assert.Equal(t, "cheongdam", key)
	assert.Equal(t, 430, tpl.TotalDays())
	assert.Equal(t, 360, tpl.Duration)
	assert.InDelta(t, 2.03e9, tpl.Budget, 1)
	assert.Equal(t, []string{"apartment", "cheongdam", "commercial", "house", "office", "officetel"}, cfg.TemplateKeys())
}

func TestPhaseByDay(t *testing.T) {
	tpl, _, err := Default().Template("cheongdam")
	require.NoError(t, err)

	cases := map[int]string{
		1:   "design",
		90:  "design",
		91:  "bidding",
		110: "bidding",
		111: "construction",
		410: "construction",
		411: "completion",
		430: "completion",
		999: "completion",
	}
	for day, want := range cases {
		assert.Equal(t, want, tpl.PhaseByDay(day), "day %d", day)
	}
	start, end := tpl.PhaseBounds("construction")
	assert.Equal(t, 111, start)
	assert.Equal(t, 410, end)
}

func TestFromYAMLOverridesOnlyGivenSections(t *testing.T) {
	cfg, err := FromYAML([]byte("trigger:\n  fallback_rate: 0.02\nnegotiation:\n  normalize_weights: false\n"))
	require.NoError(t, err)
	assert.InDelta(t, 0.02, cfg.Trigger.FallbackRate, 1e-12)
	assert.False(t, cfg.Negotiation.NormalizeWeights)
	assert.Len(t, cfg.Negotiation.Stakeholders, 5)
	assert.Len(t, cfg.Finance.RateTiers, 4)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"unknown default":   "default_template: nope\n",
		"descending tiers":  "finance:\n  rate_tiers:\n    - {months: 2, bp: 20}\n    - {months: 1, bp: 10}\n",
		"bad stakeholder":   "negotiation:\n  rules:\n    - name: x\n      adjust:\n        - {stakeholder: ghost, field: weight, set: 0.1}\n",
		"bad field":         "negotiation:\n  rules:\n    - name: x\n      adjust:\n        - {stakeholder: owner, field: mood, set: 0.1}\n",
		"shrinking range":   "detection:\n  uncertainty:\n    disabled: {min: 1.2, max: 1.1}\n",
		"negative fallback": "trigger:\n  fallback_rate: -1\n",
		"self dependency":   "schedule:\n  dependencies:\n    civil: [civil]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, "cheongdam", cfg.DefaultTemplate)

	_, err = Load(dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "riskline.yml"), []byte("default_template: house\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "house", cfg.DefaultTemplate)
}

func TestQualityPreset(t *testing.T) {
	cfg := Default()
	q, err := cfg.QualityPreset("excellent")
	require.NoError(t, err)
	assert.InDelta(t, 0.95, q.AttributeFill, 1e-12)
	_, err = cfg.QualityPreset("legendary")
	require.Error(t, err)
}
