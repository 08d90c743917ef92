package ml

import (
	"math"

	"demandinsights/internal/shared/domain"
)

// ForestParams hyperparamètres d'une forêt aléatoire de régression
type ForestParams struct {
	Trees       int
	MaxDepth    int
	MinLeaf     int
	MaxFeatures int
	Seed        uint64
}

// ForestReport métriques out-of-bag
type ForestReport struct {
	OOBRMSE float64
	OOBMAE  float64
	OOBR2   float64
	OOBRows int
}

// Forest moyenne d'arbres entraînés sur des échantillons bootstrap
type Forest struct {
	trees     []*Tree
	nFeatures int
}

// FitForest entraîne une forêt; chaque arbre a son propre flux PCG dérivé de Seed
func FitForest(data Dataset, params ForestParams, check Checker) (*Forest, *ForestReport, error) {
	n := data.Len()
	if n == 0 {
		return nil, nil, domain.NewModelTrainingError("random_forest", "empty training set", nil)
	}
	if params.Trees <= 0 {
		return nil, nil, domain.NewValidationError("forest_trees", "must be positive")
	}
	nFeatures := len(data.X[0])
	if params.MaxFeatures <= 0 {
		params.MaxFeatures = max(1, (nFeatures+2)/3)
	}

	ones := filled(n, 1)
	oobSum := make([]float64, n)
	oobCount := make([]int, n)
	f := &Forest{nFeatures: nFeatures}

	for t := 0; t < params.Trees; t++ {
		if err := checkBudget(check); err != nil {
			return nil, nil, err
		}
		rng := NewRand(params.Seed, uint64(t)+1)

		inBag := make([]bool, n)
		rows := make([]int, n)
		for i := range rows {
			r := rng.IntN(n)
			rows[i] = r
			inBag[r] = true
		}

		tree := FitTree(data.X, data.Y, ones, rows, TreeParams{
			MaxDepth:    params.MaxDepth,
			MinLeaf:     params.MinLeaf,
			MaxFeatures: params.MaxFeatures,
		}, rng)
		f.trees = append(f.trees, tree)

		for i := 0; i < n; i++ {
			if !inBag[i] {
				oobSum[i] += tree.Predict(data.X[i])
				oobCount[i]++
			}
		}
	}

	return f, oobReport(data.Y, oobSum, oobCount), nil
}

func oobReport(y, sums []float64, counts []int) *ForestReport {
	report := &ForestReport{}
	var sse, sae, mean float64
	for i, c := range counts {
		if c == 0 {
			continue
		}
		report.OOBRows++
		mean += y[i]
	}
	if report.OOBRows == 0 {
		return report
	}
	mean /= float64(report.OOBRows)

	var sst float64
	for i, c := range counts {
		if c == 0 {
			continue
		}
		d := y[i] - sums[i]/float64(c)
		sse += d * d
		sae += math.Abs(d)
		sst += (y[i] - mean) * (y[i] - mean)
	}
	rows := float64(report.OOBRows)
	report.OOBRMSE = math.Sqrt(sse / rows)
	report.OOBMAE = sae / rows
	if sst > 0 {
		report.OOBR2 = 1 - sse/sst
	}
	return report
}

// Predict moyenne des arbres
func (f *Forest) Predict(x []float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}
	s := 0.0
	for _, t := range f.trees {
		s += t.Predict(x)
	}
	return s / float64(len(f.trees))
}

// Importances importance par gain, normalisée
func (f *Forest) Importances() []float64 {
	gains := make([]float64, f.nFeatures)
	for _, t := range f.trees {
		t.AddGains(gains)
	}
	return NormalizeImportances(gains)
}
