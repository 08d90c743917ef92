package ml

import (
	"math"

	"demandinsights/internal/shared/domain"
)

// Loss fonction de perte du boosting
type Loss int

const (
	// SquaredLoss régression (erreur quadratique moyenne)
	SquaredLoss Loss = iota
	// LogisticLoss classification binaire (log-loss, feuilles de Newton)
	LogisticLoss
)

// convergenceTolerance amélioration relative de validation, sur la dernière fenêtre
// de patience, au-delà de laquelle un budget de tours épuisé est un échec
const convergenceTolerance = 0.01

// BoostParams hyperparamètres du gradient boosting
type BoostParams struct {
	Loss         Loss
	Rounds       int
	LearningRate float64
	Tree         TreeParams
	Patience     int
	Name         string
}

// BoostReport déroulé de l'entraînement
type BoostReport struct {
	Rounds         int
	BestIteration  int
	EarlyStopped   bool
	TrainLoss      []float64
	ValidationLoss []float64
}

// GBM modèle de gradient boosting sur arbres
type GBM struct {
	loss         Loss
	base         float64
	learningRate float64
	trees        []*Tree
	nFeatures    int
}

// FitGBM entraîne un modèle par boosting
//
// Si valid est non vide, l'entraînement s'arrête après Patience tours sans
// amélioration de la perte de validation et le modèle est tronqué au meilleur tour.
// Un budget de tours épuisé alors que la validation progresse encore de plus de 1%
// sur la dernière fenêtre est une non-convergence.
func FitGBM(train, valid Dataset, params BoostParams, check Checker) (*GBM, *BoostReport, error) {
	name := params.Name
	if name == "" {
		name = "gbm"
	}
	n := train.Len()
	if n == 0 {
		return nil, nil, domain.NewModelTrainingError(name, "empty training set", nil)
	}
	if params.Rounds <= 0 {
		return nil, nil, domain.NewValidationError("max_boosting_rounds", "must be positive")
	}
	if params.Patience <= 0 {
		params.Patience = 10
	}

	m := &GBM{
		loss:         params.Loss,
		base:         baseScore(params.Loss, train.Y),
		learningRate: params.LearningRate,
		nFeatures:    len(train.X[0]),
	}

	rawTrain := filled(n, m.base)
	rawValid := filled(valid.Len(), m.base)
	grad := make([]float64, n)
	hess := make([]float64, n)
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}

	report := &BoostReport{}
	bestLoss := math.Inf(1)

	for round := 1; round <= params.Rounds; round++ {
		if err := checkBudget(check); err != nil {
			return nil, nil, err
		}

		m.gradients(train.Y, rawTrain, grad, hess)
		tree := FitTree(train.X, grad, hess, rows, params.Tree, nil)
		m.trees = append(m.trees, tree)

		for i, x := range train.X {
			rawTrain[i] += m.learningRate * tree.Predict(x)
		}
		for i, x := range valid.X {
			rawValid[i] += m.learningRate * tree.Predict(x)
		}

		trainLoss := m.lossOf(train.Y, rawTrain)
		if !IsFinite(trainLoss) {
			return nil, nil, domain.NewModelTrainingError(name, "non-finite training loss", nil)
		}
		report.TrainLoss = append(report.TrainLoss, trainLoss)
		report.Rounds = round

		if valid.Len() == 0 {
			report.BestIteration = round
			continue
		}

		validLoss := m.lossOf(valid.Y, rawValid)
		if !IsFinite(validLoss) {
			return nil, nil, domain.NewModelTrainingError(name, "non-finite validation loss", nil)
		}
		report.ValidationLoss = append(report.ValidationLoss, validLoss)

		if validLoss < bestLoss-1e-12 {
			bestLoss = validLoss
			report.BestIteration = round
		} else if round-report.BestIteration >= params.Patience {
			report.EarlyStopped = true
			break
		}
	}

	if valid.Len() > 0 && !report.EarlyStopped && notConverged(report.ValidationLoss, params.Patience) {
		return nil, nil, domain.NewModelTrainingError(name, "validation loss still improving when round budget was exhausted", nil)
	}

	m.trees = m.trees[:report.BestIteration]
	return m, report, nil
}

func notConverged(losses []float64, patience int) bool {
	if len(losses) <= patience {
		return false
	}
	before := losses[len(losses)-1-patience]
	last := losses[len(losses)-1]
	if before <= 0 {
		return false
	}
	return (before-last)/before > convergenceTolerance
}

func baseScore(loss Loss, y []float64) float64 {
	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	if loss == LogisticLoss {
		p := math.Min(math.Max(mean, 1e-6), 1-1e-6)
		return math.Log(p / (1 - p))
	}
	return mean
}

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// gradients calcule le gradient négatif et le hessien de la perte
func (m *GBM) gradients(y, raw, grad, hess []float64) {
	for i := range y {
		if m.loss == LogisticLoss {
			p := Sigmoid(raw[i])
			grad[i] = y[i] - p
			hess[i] = math.Max(p*(1-p), 1e-12)
			continue
		}
		grad[i] = y[i] - raw[i]
		hess[i] = 1
	}
}

func (m *GBM) lossOf(y, raw []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	total := 0.0
	for i := range y {
		if m.loss == LogisticLoss {
			p := math.Min(math.Max(Sigmoid(raw[i]), 1e-15), 1-1e-15)
			total -= y[i]*math.Log(p) + (1-y[i])*math.Log(1-p)
			continue
		}
		d := y[i] - raw[i]
		total += d * d
	}
	return total / float64(len(y))
}

// Raw score brut (log-odds pour la perte logistique)
func (m *GBM) Raw(x []float64) float64 {
	s := m.base
	for _, t := range m.trees {
		s += m.learningRate * t.Predict(x)
	}
	return s
}

// Predict prédiction (probabilité pour la perte logistique)
func (m *GBM) Predict(x []float64) float64 {
	if m.loss == LogisticLoss {
		return Sigmoid(m.Raw(x))
	}
	return m.Raw(x)
}

// Contributions décompose le score brut de x: bias + somme(contribs) == Raw(x)
func (m *GBM) Contributions(x []float64) (bias float64, contribs []float64) {
	contribs = make([]float64, m.nFeatures)
	bias = m.base
	for _, t := range m.trees {
		bias += m.learningRate * t.RootValue()
		t.AddContributions(x, m.learningRate, contribs)
	}
	return bias, contribs
}

// Importances importance par gain, normalisée
func (m *GBM) Importances() []float64 {
	gains := make([]float64, m.nFeatures)
	for _, t := range m.trees {
		t.AddGains(gains)
	}
	return NormalizeImportances(gains)
}

// Trees nombre d'arbres conservés
func (m *GBM) Trees() int {
	return len(m.trees)
}

// Depth profondeur effective maximale des arbres conservés
func (m *GBM) Depth() int {
	depth := 0
	for _, t := range m.trees {
		depth = max(depth, t.Depth())
	}
	return depth
}
