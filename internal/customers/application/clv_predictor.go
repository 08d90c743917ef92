package application

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"demandinsights/internal/config"
	"demandinsights/internal/customers/domain"
	featuresdomain "demandinsights/internal/features/domain"
	"demandinsights/internal/ml"
	shareddomain "demandinsights/internal/shared/domain"
	sharedinfra "demandinsights/internal/shared/infrastructure"
)

// CLVModelKind type de modèle CLV dans le registre
const CLVModelKind = "clv"

// Méthodes d'estimation de la CLV
const (
	MethodRandomForest   = "random_forest"
	MethodSimpleEstimate = "simple_estimate"
)

// Hyperparamètres de la forêt CLV
const (
	clvMaxDepth = 8
	clvMinLeaf  = 2
)

// CLVOutcome prédictions CLV d'un lot de clients actifs
type CLVOutcome struct {
	Predictions        []domain.CLVResult
	AvgCLV             float64
	Quartiles          domain.CLVQuartiles
	Method             string
	ValidationMetrics  map[string]float64
	FeatureImportances []shareddomain.FeatureImportance
	ArtifactID         string
}

type clvModel struct {
	forest *ml.Forest
}

// CLVPredictor valeur vie client par forêt aléatoire, avec estimation simple en repli
type CLVPredictor struct {
	cfg      config.Config
	registry sharedinfra.Registry
	logger   *zap.Logger
}

// NewCLVPredictor crée une nouvelle instance de CLVPredictor
func NewCLVPredictor(cfg config.Config, registry sharedinfra.Registry, logger *zap.Logger) *CLVPredictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CLVPredictor{cfg: cfg, registry: registry, logger: logger}
}

// ============================================================================
// PRÉDICTION CLV
//
// Avec au moins min_rows clients actifs labellisés (observed_clv): forêt
// aléatoire entraînée sur ces clients puis appliquée à tous les actifs.
// Sinon, ou si l'entraînement échoue numériquement: aov × achats/an × durée de vie,
// simple_estimate=true. Le dépassement de budget n'est jamais masqué par le repli.
// ============================================================================
func (p *CLVPredictor) PredictCLV(ctx context.Context, frame *featuresdomain.CustomerFrame) (*CLVOutcome, error) {
	return p.PredictCLVFrom(ctx, frame, frame)
}

// PredictCLVFrom entraîne sur les labels de training et prédit les clients actifs de target
// (typiquement: frame labellisé sur un holdout, puis frame courant)
func (p *CLVPredictor) PredictCLVFrom(
	ctx context.Context,
	training, target *featuresdomain.CustomerFrame,
) (*CLVOutcome, error) {
	if training == nil || target == nil {
		return nil, shareddomain.NewValidationError("feature_frame", "is required")
	}
	active := target.Active()
	if len(active) == 0 {
		return nil, shareddomain.NewDataInsufficientError("active customers", 1, 0)
	}

	if training.LabeledCLV() >= p.cfg.MinRows {
		outcome, err := p.predictForest(ctx, training, active)
		switch {
		case err == nil:
			return outcome, nil
		case errors.Is(err, shareddomain.ErrModelTraining), errors.Is(err, shareddomain.ErrDataInsufficient):
			p.logger.Warn("clv model unavailable, falling back to simple estimate", zap.Error(err))
		default:
			return nil, err
		}
	}
	return p.simpleEstimate(active), nil
}

func (p *CLVPredictor) predictForest(
	ctx context.Context,
	training *featuresdomain.CustomerFrame,
	active []domain.CustomerRecord,
) (*CLVOutcome, error) {
	fingerprint := sharedinfra.NewCacheKeyBuilder().
		Add(training.Fingerprint(CLVModelKind)).
		AddInt(p.cfg.ForestTrees).
		AddInt(int(p.cfg.RandomSeed)).
		Build()

	artifact, err := p.registry.GetOrTrain(ctx, CLVModelKind, fingerprint, func(ctx context.Context) (*shareddomain.TrainedModel, error) {
		return p.train(ctx, training.Active())
	})
	if err != nil {
		return nil, err
	}
	model, ok := artifact.Model.(*clvModel)
	if !ok {
		return nil, shareddomain.NewModelTrainingError(CLVModelKind, "unexpected artifact type", nil)
	}

	all, err := featuresdomain.Project(active, featuresdomain.CLVFeatures)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(active))
	for i, x := range all.Matrix() {
		values[i] = max(0, model.forest.Predict(x))
	}

	outcome := assembleCLV(active, values, false)
	outcome.Method = MethodRandomForest
	outcome.ValidationMetrics = artifact.ValidationMetrics
	outcome.FeatureImportances = append([]shareddomain.FeatureImportance(nil), artifact.FeatureImportances...)
	outcome.ArtifactID = artifact.ID
	return outcome, nil
}

func (p *CLVPredictor) train(ctx context.Context, active []domain.CustomerRecord) (*shareddomain.TrainedModel, error) {
	labeled := make([]domain.CustomerRecord, 0, len(active))
	targets := make([]float64, 0, len(active))
	for _, c := range active {
		if c.ObservedCLV != nil {
			labeled = append(labeled, c)
			targets = append(targets, *c.ObservedCLV)
		}
	}
	if len(labeled) < p.cfg.MinRows {
		return nil, shareddomain.NewDataInsufficientError("labeled clv rows", p.cfg.MinRows, len(labeled))
	}

	frame, err := featuresdomain.Project(labeled, featuresdomain.CLVFeatures)
	if err != nil {
		return nil, err
	}

	phase := sharedinfra.NewPhase(ctx, "forest", p.cfg.PhaseBudget)
	forest, report, err := ml.FitForest(ml.Dataset{X: frame.Matrix(), Y: targets}, ml.ForestParams{
		Trees:    p.cfg.ForestTrees,
		MaxDepth: clvMaxDepth,
		MinLeaf:  clvMinLeaf,
		Seed:     p.cfg.RandomSeed,
	}, phase)
	if err != nil {
		return nil, err
	}

	p.logger.Info("clv model trained",
		zap.Int("rows", len(labeled)),
		zap.Int("trees", p.cfg.ForestTrees),
		zap.Float64("oob_rmse", report.OOBRMSE),
		zap.Float64("oob_r2", report.OOBR2),
		zap.Duration("elapsed", phase.Elapsed()),
	)

	return &shareddomain.TrainedModel{
		Model: &clvModel{forest: forest},
		ValidationMetrics: map[string]float64{
			"oob_rmse": report.OOBRMSE,
			"oob_mae":  report.OOBMAE,
			"oob_r2":   report.OOBR2,
			"oob_rows": float64(report.OOBRows),
		},
		FeatureImportances: ml.NamedImportances(frame.Schema(), forest.Importances()),
	}, nil
}

func (p *CLVPredictor) simpleEstimate(active []domain.CustomerRecord) *CLVOutcome {
	values := make([]float64, len(active))
	for i, c := range active {
		values[i] = max(0, c.AvgOrderValue*c.PurchasesPerYear*p.cfg.CLVLifespanYears)
	}
	outcome := assembleCLV(active, values, true)
	outcome.Method = MethodSimpleEstimate
	return outcome
}

// assembleCLV arrondit les valeurs, calcule les quartiles du lot et segmente
func assembleCLV(active []domain.CustomerRecord, values []float64, simple bool) *CLVOutcome {
	total := shareddomain.ZeroMoney()
	for i, v := range values {
		values[i] = shareddomain.RoundCurrency(v)
		if m, err := shareddomain.NewMoney(values[i]); err == nil {
			total = total.Add(m)
		}
	}

	q := domain.CLVQuartiles{
		Q1: ml.Quantile(values, 0.25),
		Q2: ml.Quantile(values, 0.50),
		Q3: ml.Quantile(values, 0.75),
	}

	predictions := make([]domain.CLVResult, len(active))
	for i, c := range active {
		predictions[i] = domain.CLVResult{
			CustomerID:     c.CustomerID,
			PredictedCLV:   values[i],
			CLVSegment:     q.Segment(values[i]),
			SimpleEstimate: simple,
		}
	}

	return &CLVOutcome{
		Predictions: predictions,
		AvgCLV:      shareddomain.RoundCurrency(total.Divide(len(values)).Amount()),
		Quartiles:   q,
	}
}
