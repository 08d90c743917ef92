package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 2, cfg.KMin)
	assert.Equal(t, 8, cfg.KMax)
	assert.Equal(t, 30, cfg.ForecastHorizonDays)
	assert.Equal(t, 0.2, cfg.ValidationFraction)
	assert.Equal(t, 10, cfg.EarlyStoppingPatience)
	assert.Equal(t, 0.5, cfg.ChurnThreshold)
	assert.Equal(t, 0.95, cfg.ConfidenceLevel)
	assert.Equal(t, 10, cfg.MinPricePairs)
	assert.Equal(t, uint64(42), cfg.RandomSeed)
	assert.Equal(t, 30, cfg.MinRows)
	assert.Equal(t, HistoryPolicyDrop, cfg.HistoryPolicy)
	assert.Equal(t, 300*time.Second, cfg.RequestBudget)
	assert.Equal(t, 120*time.Second, cfg.PhaseBudget)
}

func TestFromMap(t *testing.T) {
	cfg, err := FromMap(map[string]interface{}{
		"k_max":           5,
		"min_price_pairs": 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.KMax)
	assert.Equal(t, 3, cfg.MinPricePairs)
	assert.Equal(t, 2, cfg.KMin)
}

func TestFromMap_Rejects(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"unknown option":       {"k_maximum": 5},
		"k_min below 2":        {"k_min": 1},
		"k_min above k_max":    {"k_min": 6, "k_max": 4},
		"min_price_pairs < 3":  {"min_price_pairs": 2},
		"threshold above 1":    {"churn_threshold": 1.5},
		"bad history policy":   {"history_policy": "interpolate"},
		"horizon above max":    {"forecast_horizon_days": 400},
		"phase above request":  {"phase_budget": "10m"},
		"validation_fraction1": {"validation_fraction": 1.0},
	}

	for name, options := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromMap(options)
			assert.Error(t, err)
		})
	}
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "insights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("k_max: 6\nlog_level: debug\n"), 0o600))

	t.Setenv("INSIGHTS_CHURN_THRESHOLD", "0.7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.KMax)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.7, cfg.ChurnThreshold)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
