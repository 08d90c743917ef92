package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demandinsights/internal/shared/domain"
)

// blobs trois groupes bien séparés en 2D
func blobs(perCluster int, seed uint64) [][]float64 {
	rng := NewRand(seed, 0)
	centers := [][]float64{{0, 0}, {10, 10}, {-10, 10}}
	var X [][]float64
	for _, c := range centers {
		for i := 0; i < perCluster; i++ {
			X = append(X, []float64{c[0] + rng.NormFloat64()*0.5, c[1] + rng.NormFloat64()*0.5})
		}
	}
	return X
}

func TestStandardScaler(t *testing.T) {
	X := [][]float64{{1, 5}, {2, 5}, {3, 5}}
	s := FitScaler(X)
	Z := s.Transform(X)

	assert.InDelta(t, 0, Z[1][0], 1e-12)
	assert.InDelta(t, -Z[0][0], Z[2][0], 1e-12)
	for _, row := range Z {
		assert.Equal(t, 0.0, row[1], "zero-variance column maps to 0")
	}
	assert.InDeltaSlice(t, []float64{3, 5}, s.Inverse([]float64{Z[2][0], 0}), 1e-9)
}

func TestKMeans_SeparatesBlobs(t *testing.T) {
	X := blobs(20, 7)
	res, err := KMeans(X, KMeansParams{K: 3, Seed: 42}, nil)
	require.NoError(t, err)

	require.Len(t, res.Labels, len(X))
	for c := 0; c < 3; c++ {
		first := res.Labels[c*20]
		for i := c * 20; i < (c+1)*20; i++ {
			assert.Equal(t, first, res.Labels[i])
		}
	}
	assert.Greater(t, Silhouette(X, res.Labels, 3), 0.8)
}

func TestKMeans_Deterministic(t *testing.T) {
	X := blobs(15, 3)
	a, err := KMeans(X, KMeansParams{K: 4, Seed: 11}, nil)
	require.NoError(t, err)
	b, err := KMeans(X, KMeansParams{K: 4, Seed: 11}, nil)
	require.NoError(t, err)

	assert.Equal(t, a.Labels, b.Labels)
	assert.Equal(t, a.Inertia, b.Inertia)
}

func TestKMeans_TooFewPoints(t *testing.T) {
	_, err := KMeans([][]float64{{1}, {2}}, KMeansParams{K: 3}, nil)
	assert.ErrorIs(t, err, domain.ErrDataInsufficient)
}

func TestSilhouette_SingletonIsZero(t *testing.T) {
	X := [][]float64{{0}, {10}}
	assert.Equal(t, 0.0, Silhouette(X, []int{0, 1}, 2))
}

func TestGBM_FitsStepFunction(t *testing.T) {
	var train, valid Dataset
	for i := 0; i < 200; i++ {
		x := float64(i)
		y := 1.0
		if i%100 >= 50 {
			y = 5.0
		}
		ds := &train
		if i%5 == 0 {
			ds = &valid
		}
		ds.X = append(ds.X, []float64{math.Mod(x, 100)})
		ds.Y = append(ds.Y, y)
	}

	m, report, err := FitGBM(train, valid, BoostParams{
		Loss:         SquaredLoss,
		Rounds:       300,
		LearningRate: 0.1,
		Tree:         TreeParams{MaxDepth: 2, MinLeaf: 2},
		Patience:     10,
	}, nil)
	require.NoError(t, err)

	assert.True(t, report.EarlyStopped)
	assert.Equal(t, report.BestIteration, m.Trees())
	assert.InDelta(t, 1.0, m.Predict([]float64{10}), 0.05)
	assert.InDelta(t, 5.0, m.Predict([]float64{70}), 0.05)
	assert.InDelta(t, 1.0, m.Importances()[0], 1e-9)
	assert.GreaterOrEqual(t, m.Depth(), 1)
	assert.LessOrEqual(t, m.Depth(), 2)
}

func TestGBM_ContributionsSumToRaw(t *testing.T) {
	var data Dataset
	for i := 0; i < 120; i++ {
		a, b := float64(i%10), float64(i%7)
		label := 0.0
		if a+b > 8 {
			label = 1
		}
		data.X = append(data.X, []float64{a, b})
		data.Y = append(data.Y, label)
	}

	m, _, err := FitGBM(data, Dataset{}, BoostParams{
		Loss:         LogisticLoss,
		Rounds:       50,
		LearningRate: 0.1,
		Tree:         TreeParams{MaxDepth: 3, MinLeaf: 1},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 50, m.Trees())

	for _, x := range data.X[:20] {
		bias, contribs := m.Contributions(x)
		sum := bias
		for _, c := range contribs {
			sum += c
		}
		assert.InDelta(t, m.Raw(x), sum, 1e-9)
		p := m.Predict(x)
		assert.True(t, p >= 0 && p <= 1)
	}
	assert.Greater(t, m.Predict([]float64{9, 6}), m.Predict([]float64{0, 0}))
}

func TestGBM_EmptyTrainingSet(t *testing.T) {
	_, _, err := FitGBM(Dataset{}, Dataset{}, BoostParams{Rounds: 10}, nil)
	assert.ErrorIs(t, err, domain.ErrModelTraining)
}

func TestGBM_NotConverged(t *testing.T) {
	var train Dataset
	for i := 0; i < 100; i++ {
		train.X = append(train.X, []float64{float64(i)})
		train.Y = append(train.Y, float64(i*i))
	}
	_, _, err := FitGBM(train, train, BoostParams{
		Loss:         SquaredLoss,
		Rounds:       3,
		LearningRate: 0.1,
		Tree:         TreeParams{MaxDepth: 3, MinLeaf: 1},
		Patience:     1,
	}, nil)
	assert.ErrorIs(t, err, domain.ErrModelTraining)
}

func TestForest_OOBMetrics(t *testing.T) {
	rng := NewRand(5, 0)
	var data Dataset
	for i := 0; i < 200; i++ {
		a, b := rng.Float64()*10, rng.Float64()*10
		data.X = append(data.X, []float64{a, b, rng.Float64()})
		data.Y = append(data.Y, 3*a+b)
	}

	f, report, err := FitForest(data, ForestParams{Trees: 30, MaxDepth: 8, MinLeaf: 2, MaxFeatures: 3, Seed: 42}, nil)
	require.NoError(t, err)

	assert.Greater(t, report.OOBRows, 150)
	assert.Greater(t, report.OOBR2, 0.8)
	assert.InDelta(t, 3*5+5, f.Predict([]float64{5, 5, 0.5}), 4)

	again, report2, err := FitForest(data, ForestParams{Trees: 30, MaxDepth: 8, MinLeaf: 2, MaxFeatures: 3, Seed: 42}, nil)
	require.NoError(t, err)
	assert.Equal(t, report.OOBRMSE, report2.OOBRMSE)
	assert.Equal(t, f.Predict(data.X[0]), again.Predict(data.X[0]))
}

func TestOLS_PriceQuantityScenario(t *testing.T) {
	prices := []float64{10, 12, 15, 18}
	quantities := []float64{100, 85, 70, 55}
	x := make([]float64, len(prices))
	y := make([]float64, len(prices))
	for i := range prices {
		x[i] = math.Log(prices[i])
		y[i] = math.Log(quantities[i])
	}

	res, err := OLS(x, y, 0.95)
	require.NoError(t, err)

	assert.InDelta(t, -0.9986, res.Slope, 1e-3)
	assert.InDelta(t, 4.303, res.TCritical, 1e-3)
	assert.Less(t, res.CIHigh, 0.0)
	assert.LessOrEqual(t, res.CILow, res.Slope)
	assert.GreaterOrEqual(t, res.CIHigh, res.Slope)
	assert.Greater(t, res.RSquared, 0.95)
}

func TestOLS_ZeroVariance(t *testing.T) {
	_, err := OLS([]float64{1, 1, 1}, []float64{1, 2, 3}, 0.95)
	assert.ErrorIs(t, err, domain.ErrModelTraining)
}

func TestEvaluate(t *testing.T) {
	ev := Evaluate([]float64{0, 2, 4}, []float64{1, 2, 3})
	assert.InDelta(t, math.Sqrt(2.0/3.0), ev.RMSE, 1e-12)
	assert.InDelta(t, 2.0/3.0, ev.MAE, 1e-12)
	assert.InDelta(t, 12.5, ev.MAPE, 1e-12)
	assert.InDelta(t, 0.75, ev.R2, 1e-12)
}

func TestAUC(t *testing.T) {
	labels := []float64{0, 1, 0, 1, 1, 1}
	scores := []float64{0, 3, 5, 6, 7.5, 8}
	assert.InDelta(t, 0.875, AUC(labels, scores), 1e-12)

	assert.InDelta(t, 1.0, AUC([]float64{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}), 1e-12)
	assert.InDelta(t, 0.0, AUC([]float64{1, 1, 0, 0}, []float64{0.1, 0.2, 0.8, 0.9}), 1e-12)
	assert.InDelta(t, 0.5, AUC([]float64{0, 1, 0, 1}, []float64{0.4, 0.4, 0.4, 0.4}), 1e-12)
	assert.Equal(t, 0.5, AUC([]float64{1, 1}, []float64{0.2, 0.9}))
}

func TestEvaluateClassifier(t *testing.T) {
	labels := []float64{1, 1, 0, 0, 1}
	probs := []float64{0.9, 0.4, 0.6, 0.1, 0.8}

	c := EvaluateClassifier(labels, probs, 0.5)
	assert.InDelta(t, 2.0/3, c.Precision, 1e-12)
	assert.InDelta(t, 2.0/3, c.Recall, 1e-12)
	want := -(math.Log(0.9) + math.Log(0.4) + math.Log(0.4) + math.Log(0.9) + math.Log(0.8)) / 5
	assert.InDelta(t, want, c.LogLoss, 1e-12)
	assert.InDelta(t, 5.0/6, c.AUC, 1e-12)

	sure := EvaluateClassifier([]float64{1, 0}, []float64{1, 0}, 0.5)
	assert.True(t, IsFinite(sure.LogLoss))
	assert.Less(t, sure.LogLoss, 1e-12)

	assert.Equal(t, Classification{}, EvaluateClassifier(nil, nil, 0.5))
}

func TestQuantileAndMedian(t *testing.T) {
	assert.Equal(t, 0.0, Quantile(nil, 0.5))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	values := []float64{5, 1, 4, 2, 3}
	assert.LessOrEqual(t, Quantile(values, 0.25), Quantile(values, 0.5))
	assert.LessOrEqual(t, Quantile(values, 0.5), Quantile(values, 0.75))
	assert.Equal(t, []float64{5, 1, 4, 2, 3}, values, "input is not reordered")
}

func TestNamedImportances_SortedByWeight(t *testing.T) {
	got := NamedImportances([]string{"a", "b", "c"}, []float64{0.2, 0.5, 0.3})
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Feature)
	assert.Equal(t, "c", got[1].Feature)
	assert.Equal(t, "a", got[2].Feature)
}

func TestFingerprinter(t *testing.T) {
	a := NewFingerprinter().String("p1").Floats([]float64{1, 2}).Sum()
	b := NewFingerprinter().String("p1").Floats([]float64{1, 2}).Sum()
	c := NewFingerprinter().String("p1").Floats([]float64{1, 3}).Sum()
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

// ========================================
// Benchmarks
// ========================================

// BenchmarkKMeans_K4 mesure un k-means complet (10 initialisations)
func BenchmarkKMeans_K4(b *testing.B) {
	X := blobs(200, 1)
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = KMeans(X, KMeansParams{K: 4, Seed: 42}, nil)
	}
}

// BenchmarkFitGBM_100Rounds mesure 100 tours de boosting sur 400 lignes
func BenchmarkFitGBM_100Rounds(b *testing.B) {
	var data Dataset
	for i := 0; i < 400; i++ {
		x := float64(i)
		data.X = append(data.X, []float64{math.Sin(x / 10), math.Cos(x / 7), x})
		data.Y = append(data.Y, 10+3*math.Sin(x/10))
	}
	params := BoostParams{Loss: SquaredLoss, Rounds: 100, LearningRate: 0.1, Tree: TreeParams{MaxDepth: 4, MinLeaf: 5}}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _, _ = FitGBM(data, Dataset{}, params, nil)
	}
}
