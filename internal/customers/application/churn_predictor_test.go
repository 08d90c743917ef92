package application

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"demandinsights/internal/customers/domain"
	featuresapp "demandinsights/internal/features/application"
	featuresdomain "demandinsights/internal/features/domain"
	shareddomain "demandinsights/internal/shared/domain"
	"demandinsights/internal/testhelpers"
)

func newChurnPredictor(t testing.TB) *ChurnPredictor {
	return NewChurnPredictor(testhelpers.TestConfig(t, nil), newRegistry(t), zap.NewNop())
}

// lapsedFrame frame dont les clients à faible fréquence ont cessé d'acheter
// (récence > 90 jours), les autres restant récents
func lapsedFrame(n int, seed uint64) *featuresdomain.CustomerFrame {
	frame := testhelpers.RFMFrame(n, seed)
	for i := range frame.Customers {
		c := &frame.Customers[i]
		if c.Frequency < 8 {
			c.RecencyDays = float64(120 + i%200)
		} else {
			c.RecencyDays = float64(5 + i%60)
		}
	}
	return frame
}

func TestPredictChurn_ProxyLabels(t *testing.T) {
	p := newChurnPredictor(t)
	frame := lapsedFrame(120, 3)

	out, err := p.PredictChurn(context.Background(), frame, 0.5)
	require.NoError(t, err)

	assert.Equal(t, LabelSourceProxy, out.LabelSource)
	require.Len(t, out.Predictions, 120)
	assert.Equal(t, 120, out.Summary.TotalCustomers)

	var lapsed, recent []float64
	atRisk := 0
	for i, r := range out.Predictions {
		assert.Equal(t, frame.Customers[i].CustomerID, r.CustomerID)
		assert.GreaterOrEqual(t, r.ChurnProbability, 0.0)
		assert.LessOrEqual(t, r.ChurnProbability, 1.0)
		assert.Equal(t, domain.RiskLevelFor(r.ChurnProbability), r.RiskLevel)
		assert.LessOrEqual(t, len(r.TopFactors), 3)
		for j := 1; j < len(r.TopFactors); j++ {
			assert.GreaterOrEqual(t, math.Abs(r.TopFactors[j-1].Contribution), math.Abs(r.TopFactors[j].Contribution))
		}
		for _, f := range r.TopFactors {
			assert.NotZero(t, f.Contribution)
		}
		if r.ChurnProbability >= 0.5 {
			atRisk++
		}
		if frame.Customers[i].RecencyDays > 90 {
			lapsed = append(lapsed, r.ChurnProbability)
		} else {
			recent = append(recent, r.ChurnProbability)
		}
	}
	assert.Equal(t, atRisk, out.AtRiskCount)
	assert.InDelta(t, float64(atRisk)/120*100, out.Summary.AtRiskPercentage, 1e-9)
	require.NotEmpty(t, lapsed)
	require.NotEmpty(t, recent)
	assert.Greater(t, mean(lapsed), mean(recent))
	require.Len(t, out.FeatureImportances, len(featuresdomain.ChurnProxyFeatures))
	assert.Equal(t, "frequency", out.FeatureImportances[0].Feature)
}

func TestPredictChurn_ProxyLabelsIgnoreRecency(t *testing.T) {
	p := newChurnPredictor(t)

	out, err := p.PredictChurn(context.Background(), lapsedFrame(150, 8), 0.5)
	require.NoError(t, err)
	require.Equal(t, LabelSourceProxy, out.LabelSource)

	for _, fi := range out.FeatureImportances {
		assert.NotContains(t, []string{"recency_days", "recency_ratio"}, fi.Feature)
	}
	for _, r := range out.Predictions {
		for _, f := range r.TopFactors {
			assert.NotContains(t, []string{"recency_days", "recency_ratio"}, f.Feature, r.CustomerID)
		}
	}
}

func TestPredictChurn_HoldoutMetrics(t *testing.T) {
	p := newChurnPredictor(t)
	frame := lapsedFrame(200, 9)

	out, err := p.PredictChurn(context.Background(), frame, 0.5)
	require.NoError(t, err)

	m := out.ValidationMetrics
	require.Contains(t, m, "holdout_auc")
	assert.Equal(t, 200.0, m["train_rows"]+m["holdout_rows"])
	assert.InDelta(t, 40, m["holdout_rows"], 2)
	assert.Greater(t, m["holdout_auc"], 0.8)
	assert.LessOrEqual(t, m["tree_depth"], float64(churnMaxDepth))
	assert.LessOrEqual(t, m["holdout_auc"], 1.0)
	assert.Greater(t, m["holdout_log_loss"], 0.0)
	assert.Less(t, m["holdout_log_loss"], 0.69)
	for _, k := range []string{"holdout_precision", "holdout_recall"} {
		assert.GreaterOrEqual(t, m[k], 0.0, k)
		assert.LessOrEqual(t, m[k], 1.0, k)
	}

	// même graine, même split
	again, err := NewChurnPredictor(testhelpers.TestConfig(t, nil), newRegistry(t), zap.NewNop()).
		PredictChurn(context.Background(), frame, 0.5)
	require.NoError(t, err)
	assert.Equal(t, m, again.ValidationMetrics)
}

func TestPredictChurn_NoHoldoutForRareClass(t *testing.T) {
	p := newChurnPredictor(t)
	frame := testhelpers.RFMFrame(60, 10)
	for i := range frame.Customers {
		frame.Customers[i].RecencyDays = 10
	}
	for i := 0; i < 3; i++ {
		frame.Customers[i].RecencyDays = 300
	}

	out, err := p.PredictChurn(context.Background(), frame, 0.5)
	require.NoError(t, err)
	assert.NotContains(t, out.ValidationMetrics, "holdout_auc")
	assert.Equal(t, 60.0, out.ValidationMetrics["train_rows"])
}

func TestPredictChurn_ObservedLabels(t *testing.T) {
	p := newChurnPredictor(t)
	frame := testhelpers.RFMFrame(80, 4)
	for i := range frame.Customers {
		churned := frame.Customers[i].Frequency < 6
		frame.Customers[i].Churned = &churned
	}

	out, err := p.PredictChurn(context.Background(), frame, 0.5)
	require.NoError(t, err)
	assert.Equal(t, LabelSourceObserved, out.LabelSource)
	assert.Equal(t, "frequency", out.FeatureImportances[0].Feature)
}

func TestAtRisk_SortedAndFiltered(t *testing.T) {
	p := newChurnPredictor(t)
	frame := testhelpers.RFMFrame(100, 5)

	out, err := p.PredictChurn(context.Background(), frame, 0.4)
	require.NoError(t, err)
	atRisk, err := p.AtRisk(context.Background(), frame, 0.4)
	require.NoError(t, err)

	require.Len(t, atRisk, out.AtRiskCount)
	for i, r := range atRisk {
		assert.GreaterOrEqual(t, r.ChurnProbability, 0.4)
		if i > 0 {
			prev := atRisk[i-1]
			assert.True(t, prev.ChurnProbability > r.ChurnProbability ||
				(prev.ChurnProbability == r.ChurnProbability && prev.CustomerID < r.CustomerID))
		}
	}

	all, err := p.AtRisk(context.Background(), frame, 0)
	require.NoError(t, err)
	assert.Len(t, all, 100)

	stricter, err := p.AtRisk(context.Background(), frame, 0.8)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(stricter), len(atRisk))
}

func TestFilterAtRisk_TiesByCustomerID(t *testing.T) {
	got := FilterAtRisk([]domain.ChurnResult{
		{CustomerID: "C3", ChurnProbability: 0.7},
		{CustomerID: "C1", ChurnProbability: 0.7},
		{CustomerID: "C2", ChurnProbability: 0.9},
		{CustomerID: "C4", ChurnProbability: 0.1},
	}, 0.5)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"C2", "C1", "C3"}, []string{got[0].CustomerID, got[1].CustomerID, got[2].CustomerID})
}

func TestPredictChurn_Errors(t *testing.T) {
	p := newChurnPredictor(t)
	frame := testhelpers.RFMFrame(60, 6)

	_, err := p.PredictChurn(context.Background(), frame, 1.5)
	assert.ErrorIs(t, err, shareddomain.ErrValidation)
	_, err = p.AtRisk(context.Background(), frame, -0.1)
	assert.ErrorIs(t, err, shareddomain.ErrValidation)
	_, err = p.PredictChurn(context.Background(), nil, 0.5)
	assert.ErrorIs(t, err, shareddomain.ErrValidation)

	_, err = p.PredictChurn(context.Background(), testhelpers.RFMFrame(10, 6), 0.5)
	assert.ErrorIs(t, err, shareddomain.ErrDataInsufficient)

	for i := range frame.Customers {
		frame.Customers[i].RecencyDays = 10
	}
	_, err = p.PredictChurn(context.Background(), frame, 0.5)
	assert.ErrorIs(t, err, shareddomain.ErrDataInsufficient, "a single label class cannot be learned")
}

func mean(values []float64) float64 {
	s := 0.0
	for _, v := range values {
		s += v
	}
	return s / float64(len(values))
}

// ========================================
// Benchmarks
// ========================================

// BenchmarkPredictChurn_1000 mesure entraînement et scoring de 1000 clients
func BenchmarkPredictChurn_1000(b *testing.B) {
	frame := testhelpers.RFMFrame(1000, 1)
	cfg := testhelpers.TestConfig(b, nil)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		p := NewChurnPredictor(cfg, newRegistry(b), zap.NewNop())
		_, _ = p.PredictChurn(context.Background(), frame, 0.5)
	}
}

func TestPredictFrom_HoldoutTrainingFrame(t *testing.T) {
	cfg := testhelpers.TestConfig(t, map[string]interface{}{"forest_trees": 30})
	registry := newRegistry(t)
	engineer := featuresapp.NewFeatureEngineer(cfg, zap.NewNop())
	txs := testhelpers.Transactions(200, testhelpers.AsOf, 1)

	training, err := engineer.BuildLabeledCustomerFeatures(txs, testhelpers.AsOf, 90)
	require.NoError(t, err)
	current, err := engineer.BuildCustomerFeatures(txs, testhelpers.AsOf)
	require.NoError(t, err)

	churn, err := NewChurnPredictor(cfg, registry, zap.NewNop()).PredictChurnFrom(context.Background(), training, current, 0.5)
	require.NoError(t, err)
	assert.Equal(t, LabelSourceObserved, churn.LabelSource)
	assert.Len(t, churn.Predictions, len(current.Customers))

	clv, err := NewCLVPredictor(cfg, registry, zap.NewNop()).PredictCLVFrom(context.Background(), training, current)
	require.NoError(t, err)
	assert.Equal(t, MethodRandomForest, clv.Method)
	assert.Len(t, clv.Predictions, len(current.Active()))
	assert.Equal(t, 2, registry.Len())
}
