package ml

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"demandinsights/internal/shared/domain"
)

// OLSResult régression simple y = a + b·x avec intervalle de confiance sur b
type OLSResult struct {
	Intercept     float64
	Slope         float64
	StandardError float64
	CILow         float64
	CIHigh        float64
	RSquared      float64
	TCritical     float64
	N             int
}

// OLS ajuste y = a + b·x par moindres carrés
// L'intervalle est b ± t(1-(1-confidence)/2, n-2)·SE(b).
func OLS(x, y []float64, confidence float64) (*OLSResult, error) {
	n := len(x)
	if n != len(y) {
		return nil, domain.NewValidationError("ols", "x and y lengths differ")
	}
	if n < 3 {
		return nil, domain.NewDataInsufficientError("regression points", 3, n)
	}
	if !(confidence > 0 && confidence < 1) {
		return nil, domain.NewValidationError("confidence_level", "must be in (0, 1)")
	}

	mean := stat.Mean(x, nil)
	sxx := 0.0
	for _, v := range x {
		sxx += (v - mean) * (v - mean)
	}
	if sxx <= 1e-12*float64(n) {
		return nil, domain.NewModelTrainingError("ols", "zero variance in predictor", nil)
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)

	sse := 0.0
	for i := range x {
		r := y[i] - (alpha + beta*x[i])
		sse += r * r
	}
	df := float64(n - 2)
	se := math.Sqrt(sse / df / sxx)

	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Quantile(1 - (1-confidence)/2)

	r2 := 0.0
	if stat.Variance(y, nil) > 0 {
		r2 = stat.RSquared(x, y, nil, alpha, beta)
	}

	res := &OLSResult{
		Intercept:     alpha,
		Slope:         beta,
		StandardError: se,
		CILow:         beta - t*se,
		CIHigh:        beta + t*se,
		RSquared:      r2,
		TCritical:     t,
		N:             n,
	}
	if !IsFinite(res.Slope) || !IsFinite(res.StandardError) {
		return nil, domain.NewModelTrainingError("ols", "non-finite estimate", nil)
	}
	return res, nil
}

// Evaluation métriques de régression sur un jeu de validation
type Evaluation struct {
	RMSE float64
	MAE  float64
	MAPE float64
	R2   float64
}

// Evaluate compare prédictions et valeurs observées
// Le MAPE ignore les valeurs observées nulles.
func Evaluate(actual, predicted []float64) Evaluation {
	n := len(actual)
	if n == 0 {
		return Evaluation{}
	}
	var sse, sae, ape float64
	nonZero := 0
	for i := range actual {
		d := actual[i] - predicted[i]
		sse += d * d
		sae += math.Abs(d)
		if actual[i] != 0 {
			ape += math.Abs(d / actual[i])
			nonZero++
		}
	}
	ev := Evaluation{
		RMSE: math.Sqrt(sse / float64(n)),
		MAE:  sae / float64(n),
	}
	if nonZero > 0 {
		ev.MAPE = 100 * ape / float64(nonZero)
	}
	mean := stat.Mean(actual, nil)
	sst := 0.0
	for _, v := range actual {
		sst += (v - mean) * (v - mean)
	}
	if sst > 0 {
		ev.R2 = 1 - sse/sst
	}
	return ev
}
