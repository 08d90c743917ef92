package application

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"demandinsights/internal/config"
	"demandinsights/internal/customers/domain"
	featuresdomain "demandinsights/internal/features/domain"
	"demandinsights/internal/ml"
	shareddomain "demandinsights/internal/shared/domain"
	sharedinfra "demandinsights/internal/shared/infrastructure"
)

// ChurnModelKind type de modèle churn dans le registre
const ChurnModelKind = "churn"

// Origine des labels d'entraînement
const (
	LabelSourceObserved = "observed"
	LabelSourceProxy    = "recency_proxy"
)

// Hyperparamètres du classifieur churn
const (
	churnMaxDepth     = 3
	churnRounds       = 100
	churnLearningRate = 0.1
	churnMinLeaf      = 5
	topFactorCount    = 3
	// churnHoldoutMinClass effectif minimal de chaque classe pour réserver un holdout
	churnHoldoutMinClass = 5
)

// ChurnOutcome probabilités de churn de tous les clients du frame
type ChurnOutcome struct {
	Predictions        []domain.ChurnResult
	AtRiskCount        int
	Threshold          float64
	Summary            domain.ChurnSummary
	LabelSource        string
	ValidationMetrics  map[string]float64
	FeatureImportances []shareddomain.FeatureImportance
	ArtifactID         string
}

type churnModel struct {
	gbm         *ml.GBM
	features    []featuresdomain.CustomerFeature
	names       []string
	labelSource string
}

// ChurnPredictor risque de churn par gradient boosting logistique
type ChurnPredictor struct {
	cfg      config.Config
	registry sharedinfra.Registry
	logger   *zap.Logger
}

// NewChurnPredictor crée une nouvelle instance de ChurnPredictor
func NewChurnPredictor(cfg config.Config, registry sharedinfra.Registry, logger *zap.Logger) *ChurnPredictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChurnPredictor{cfg: cfg, registry: registry, logger: logger}
}

// PredictChurn probabilité, palier de risque et facteurs principaux de chaque client
// Les clients inactifs sont inclus: l'inactivité est elle-même un signal.
func (p *ChurnPredictor) PredictChurn(
	ctx context.Context,
	frame *featuresdomain.CustomerFrame,
	threshold float64,
) (*ChurnOutcome, error) {
	return p.PredictChurnFrom(ctx, frame, frame, threshold)
}

// PredictChurnFrom entraîne sur training et évalue tous les clients de target
func (p *ChurnPredictor) PredictChurnFrom(
	ctx context.Context,
	training, target *featuresdomain.CustomerFrame,
	threshold float64,
) (*ChurnOutcome, error) {
	if !(threshold >= 0 && threshold <= 1) {
		return nil, shareddomain.NewValidationError("threshold", fmt.Sprintf("must be in [0, 1], got %g", threshold))
	}
	if training == nil || target == nil {
		return nil, shareddomain.NewValidationError("feature_frame", "is required")
	}
	if len(training.Customers) < p.cfg.MinRows {
		return nil, shareddomain.NewDataInsufficientError("customers", p.cfg.MinRows, len(training.Customers))
	}
	if len(target.Customers) == 0 {
		return nil, shareddomain.NewDataInsufficientError("customers to score", 1, 0)
	}

	fingerprint := sharedinfra.NewCacheKeyBuilder().
		Add(training.Fingerprint(ChurnModelKind)).
		AddInt(p.cfg.ChurnInactivityDays).
		AddInt(p.cfg.MinRows).
		Build()

	artifact, err := p.registry.GetOrTrain(ctx, ChurnModelKind, fingerprint, func(ctx context.Context) (*shareddomain.TrainedModel, error) {
		return p.train(ctx, training)
	})
	if err != nil {
		return nil, err
	}
	model, ok := artifact.Model.(*churnModel)
	if !ok {
		return nil, shareddomain.NewModelTrainingError(ChurnModelKind, "unexpected artifact type", nil)
	}

	features, err := featuresdomain.Project(target.Customers, model.features)
	if err != nil {
		return nil, err
	}

	outcome := &ChurnOutcome{
		Predictions:        make([]domain.ChurnResult, len(target.Customers)),
		Threshold:          threshold,
		LabelSource:        model.labelSource,
		ValidationMetrics:  artifact.ValidationMetrics,
		FeatureImportances: append([]shareddomain.FeatureImportance(nil), artifact.FeatureImportances...),
		ArtifactID:         artifact.ID,
	}
	sum := 0.0
	for i, x := range features.Matrix() {
		prob := model.gbm.Predict(x)
		outcome.Predictions[i] = domain.ChurnResult{
			CustomerID:       target.Customers[i].CustomerID,
			ChurnProbability: prob,
			RiskLevel:        domain.RiskLevelFor(prob),
			TopFactors:       model.topFactors(x),
		}
		sum += prob
		if prob >= threshold {
			outcome.AtRiskCount++
		}
	}

	n := float64(len(outcome.Predictions))
	outcome.Summary = domain.ChurnSummary{
		TotalCustomers:      len(outcome.Predictions),
		AtRiskPercentage:    float64(outcome.AtRiskCount) / n * 100,
		AvgChurnProbability: sum / n,
	}
	return outcome, nil
}

// AtRisk clients dont la probabilité atteint le seuil, par probabilité décroissante
// (égalités départagées par identifiant client)
func (p *ChurnPredictor) AtRisk(
	ctx context.Context,
	frame *featuresdomain.CustomerFrame,
	threshold float64,
) ([]domain.ChurnResult, error) {
	outcome, err := p.PredictChurn(ctx, frame, threshold)
	if err != nil {
		return nil, err
	}
	return FilterAtRisk(outcome.Predictions, threshold), nil
}

// FilterAtRisk filtre et trie des prédictions existantes
func FilterAtRisk(predictions []domain.ChurnResult, threshold float64) []domain.ChurnResult {
	out := make([]domain.ChurnResult, 0, len(predictions))
	for _, r := range predictions {
		if r.ChurnProbability >= threshold {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].ChurnProbability != out[b].ChurnProbability {
			return out[a].ChurnProbability > out[b].ChurnProbability
		}
		return out[a].CustomerID < out[b].CustomerID
	})
	return out
}

// ============================================================================
// ENTRAÎNEMENT
//
// Labels observés (fenêtre de holdout) si au moins min_rows clients en portent,
// sinon label proxy: récence > churn_inactivity_days, appris sans les features
// de récence. Les deux classes doivent être présentes.
// Split stratifié et seedé: validation_fraction de chaque classe est mise de côté
// pour la log-loss, l'AUC, la précision et le rappel (seuil 0.5) hors échantillon.
// Le modèle rendu est celui entraîné sur le reste.
// ============================================================================
func (p *ChurnPredictor) train(ctx context.Context, frame *featuresdomain.CustomerFrame) (*shareddomain.TrainedModel, error) {
	records, labels, source := p.labels(frame)

	positives := 0
	for _, y := range labels {
		positives += int(y)
	}
	if positives == 0 || positives == len(labels) {
		return nil, shareddomain.NewDataInsufficientError("churn label classes ("+source+")", 2, 1)
	}

	set := featuresdomain.ChurnFeatures
	if source == LabelSourceProxy {
		set = featuresdomain.ChurnProxyFeatures
	}
	features, err := featuresdomain.Project(records, set)
	if err != nil {
		return nil, err
	}
	all := ml.Dataset{X: features.Matrix(), Y: labels}
	trainSet, holdout := p.stratifiedSplit(all)

	phase := sharedinfra.NewPhase(ctx, "boosting", p.cfg.PhaseBudget)
	gbm, report, err := ml.FitGBM(trainSet, ml.Dataset{}, ml.BoostParams{
		Loss:         ml.LogisticLoss,
		Rounds:       churnRounds,
		LearningRate: churnLearningRate,
		Tree:         ml.TreeParams{MaxDepth: churnMaxDepth, MinLeaf: churnMinLeaf},
		Patience:     p.cfg.EarlyStoppingPatience,
		Name:         ChurnModelKind,
	}, phase)
	if err != nil {
		return nil, err
	}

	trainLoss := report.TrainLoss[len(report.TrainLoss)-1]
	metrics := map[string]float64{
		"train_log_loss": trainLoss,
		"positive_rate":  float64(positives) / float64(len(labels)),
		"rounds":         float64(report.Rounds),
		"tree_depth":     float64(gbm.Depth()),
		"train_rows":     float64(trainSet.Len()),
	}
	fields := []zap.Field{
		zap.Int("rows", len(records)),
		zap.Int("positives", positives),
		zap.String("label_source", source),
		zap.Float64("train_log_loss", trainLoss),
	}
	if holdout.Len() > 0 {
		probs := make([]float64, holdout.Len())
		for i, x := range holdout.X {
			probs[i] = gbm.Predict(x)
		}
		eval := ml.EvaluateClassifier(holdout.Y, probs, 0.5)
		metrics["holdout_rows"] = float64(holdout.Len())
		metrics["holdout_log_loss"] = eval.LogLoss
		metrics["holdout_auc"] = eval.AUC
		metrics["holdout_precision"] = eval.Precision
		metrics["holdout_recall"] = eval.Recall
		fields = append(fields, zap.Float64("holdout_log_loss", eval.LogLoss), zap.Float64("holdout_auc", eval.AUC))
	}
	p.logger.Info("churn model trained", append(fields, zap.Duration("elapsed", phase.Elapsed()))...)

	return &shareddomain.TrainedModel{
		Model:              &churnModel{gbm: gbm, features: set, names: features.Schema(), labelSource: source},
		ValidationMetrics:  metrics,
		FeatureImportances: ml.NamedImportances(features.Schema(), gbm.Importances()),
	}, nil
}

// stratifiedSplit met de côté validation_fraction de chaque classe (tirage seedé)
// Sans au moins churnHoldoutMinClass lignes par classe, tout sert à l'entraînement.
func (p *ChurnPredictor) stratifiedSplit(data ml.Dataset) (train, holdout ml.Dataset) {
	var byClass [2][]int
	for i, y := range data.Y {
		c := int(y)
		byClass[c] = append(byClass[c], i)
	}
	if len(byClass[0]) < churnHoldoutMinClass || len(byClass[1]) < churnHoldoutMinClass {
		return data, ml.Dataset{}
	}

	held := make([]bool, data.Len())
	rng := ml.NewRand(p.cfg.RandomSeed, 7)
	for _, rows := range byClass {
		rng.Shuffle(len(rows), func(a, b int) { rows[a], rows[b] = rows[b], rows[a] })
		n := max(1, int(math.Round(float64(len(rows))*p.cfg.ValidationFraction)))
		for _, i := range rows[:n] {
			held[i] = true
		}
	}
	for i := range data.X {
		if held[i] {
			holdout.X = append(holdout.X, data.X[i])
			holdout.Y = append(holdout.Y, data.Y[i])
		} else {
			train.X = append(train.X, data.X[i])
			train.Y = append(train.Y, data.Y[i])
		}
	}
	return train, holdout
}

func (p *ChurnPredictor) labels(frame *featuresdomain.CustomerFrame) ([]domain.CustomerRecord, []float64, string) {
	if frame.LabeledChurn() >= p.cfg.MinRows {
		var records []domain.CustomerRecord
		var labels []float64
		for _, c := range frame.Customers {
			if c.Churned == nil {
				continue
			}
			records = append(records, c)
			labels = append(labels, boolToFloat(*c.Churned))
		}
		return records, labels, LabelSourceObserved
	}

	labels := make([]float64, len(frame.Customers))
	limit := float64(p.cfg.ChurnInactivityDays)
	for i, c := range frame.Customers {
		labels[i] = boolToFloat(c.RecencyDays > limit)
	}
	return frame.Customers, labels, LabelSourceProxy
}

// topFactors contributions en log-odds, top 3 non nulles par valeur absolue
func (m *churnModel) topFactors(x []float64) []domain.ChurnFactor {
	_, contribs := m.gbm.Contributions(x)
	factors := make([]domain.ChurnFactor, 0, len(contribs))
	for j, c := range contribs {
		if c != 0 {
			factors = append(factors, domain.ChurnFactor{Feature: m.names[j], Contribution: c})
		}
	}
	sort.SliceStable(factors, func(a, b int) bool {
		return math.Abs(factors[a].Contribution) > math.Abs(factors[b].Contribution)
	})
	if len(factors) > topFactorCount {
		factors = factors[:topFactorCount]
	}
	return factors
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
