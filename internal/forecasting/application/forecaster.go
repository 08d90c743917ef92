package application

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"demandinsights/internal/config"
	demanddomain "demandinsights/internal/demand/domain"
	featuresapp "demandinsights/internal/features/application"
	featuresdomain "demandinsights/internal/features/domain"
	"demandinsights/internal/ml"
	shareddomain "demandinsights/internal/shared/domain"
	sharedinfra "demandinsights/internal/shared/infrastructure"
)

// ModelKind type de modèle dans le registre
const ModelKind = "demand_forecast"

// minLeafRows taille minimale d'une feuille des arbres de demande
const minLeafRows = 5

// ForecastOutcome prévisions multi-pas et diagnostic du modèle utilisé
type ForecastOutcome struct {
	ProductID          string
	Forecasts          []demanddomain.ForecastResult
	Accuracy           demanddomain.ModelAccuracy
	FeatureImportances []shareddomain.FeatureImportance
	ArtifactID         string
}

// forecastModel artefact entraîné
type forecastModel struct {
	gbm      *ml.GBM
	offset   float64
	accuracy demanddomain.ModelAccuracy
}

// DemandForecaster prévision de la demande par gradient boosting récursif
type DemandForecaster struct {
	cfg      config.Config
	engineer *featuresapp.FeatureEngineer
	registry sharedinfra.Registry
	logger   *zap.Logger
}

// NewDemandForecaster crée une nouvelle instance de DemandForecaster
func NewDemandForecaster(
	cfg config.Config,
	engineer *featuresapp.FeatureEngineer,
	registry sharedinfra.Registry,
	logger *zap.Logger,
) *DemandForecaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DemandForecaster{
		cfg:      cfg,
		engineer: engineer,
		registry: registry,
		logger:   logger,
	}
}

// Forecast prévoit la demande journalière des horizonDays jours suivant la dernière
// date de l'historique (d'un produit, ou agrégée si productID est nil)
func (f *DemandForecaster) Forecast(
	ctx context.Context,
	history []demanddomain.SalesRecord,
	horizonDays int,
	productID *string,
) (*ForecastOutcome, error) {
	if horizonDays < 1 || horizonDays > f.cfg.MaxForecastHorizonDays {
		return nil, shareddomain.NewValidationError("horizon_days",
			fmt.Sprintf("must be in [1, %d], got %d", f.cfg.MaxForecastHorizonDays, horizonDays))
	}

	window, err := historyWindow(history, productID)
	if err != nil {
		return nil, err
	}
	frame, err := f.engineer.BuildDemandFeatures(history, window, productID)
	if err != nil {
		return nil, err
	}

	artifact, err := f.registry.GetOrTrain(ctx, ModelKind, f.fingerprint(frame), func(ctx context.Context) (*shareddomain.TrainedModel, error) {
		return f.train(ctx, frame)
	})
	if err != nil {
		return nil, err
	}
	model, ok := artifact.Model.(*forecastModel)
	if !ok {
		return nil, shareddomain.NewModelTrainingError(ModelKind, "unexpected artifact type", nil)
	}

	forecasts, err := f.recursive(ctx, model, frame, horizonDays)
	if err != nil {
		return nil, err
	}

	return &ForecastOutcome{
		ProductID:          frame.ProductID,
		Forecasts:          forecasts,
		Accuracy:           model.accuracy,
		FeatureImportances: append([]shareddomain.FeatureImportance(nil), artifact.FeatureImportances...),
		ArtifactID:         artifact.ID,
	}, nil
}

func (f *DemandForecaster) fingerprint(frame *featuresdomain.DemandFrame) string {
	return sharedinfra.NewCacheKeyBuilder().
		Add(frame.Fingerprint()).
		Add(fmt.Sprintf("%g/%g/%d/%d/%d/%g/%g",
			f.cfg.ValidationFraction, f.cfg.LearningRate, f.cfg.MaxTreeDepth,
			f.cfg.MaxBoostingRounds, f.cfg.EarlyStoppingPatience,
			f.cfg.IntervalLowerQuantile, f.cfg.IntervalUpperQuantile)).
		Build()
}

// ============================================================================
// ENTRAÎNEMENT
//
//   - split chronologique: les validation_fraction dernières lignes servent à
//     l'early stopping et aux résidus, jamais mélangées
//   - modèle tronqué au meilleur tour de validation
//   - écart des bandes: max(|q_bas|, |q_haut|) des résidus de validation
//
// ============================================================================
func (f *DemandForecaster) train(ctx context.Context, frame *featuresdomain.DemandFrame) (*shareddomain.TrainedModel, error) {
	n := frame.Frame.Len()
	nValid := int(math.Round(float64(n) * f.cfg.ValidationFraction))
	nTrain := n - nValid
	if nValid == 0 {
		return nil, shareddomain.NewModelTrainingError(ModelKind, "empty validation set", nil)
	}
	if nTrain == 0 {
		return nil, shareddomain.NewModelTrainingError(ModelKind, "empty training set", nil)
	}

	X := frame.Frame.Matrix()
	train := ml.Dataset{X: X[:nTrain], Y: frame.Targets[:nTrain]}
	valid := ml.Dataset{X: X[nTrain:], Y: frame.Targets[nTrain:]}

	phase := sharedinfra.NewPhase(ctx, "boosting", f.cfg.PhaseBudget)
	gbm, report, err := ml.FitGBM(train, valid, ml.BoostParams{
		Loss:         ml.SquaredLoss,
		Rounds:       f.cfg.MaxBoostingRounds,
		LearningRate: f.cfg.LearningRate,
		Tree:         ml.TreeParams{MaxDepth: f.cfg.MaxTreeDepth, MinLeaf: minLeafRows},
		Patience:     f.cfg.EarlyStoppingPatience,
		Name:         ModelKind,
	}, phase)
	if err != nil {
		return nil, err
	}

	predicted := make([]float64, valid.Len())
	residuals := make([]float64, valid.Len())
	for i, x := range valid.X {
		predicted[i] = gbm.Predict(x)
		residuals[i] = valid.Y[i] - predicted[i]
	}
	offset := math.Max(
		math.Abs(ml.Quantile(residuals, f.cfg.IntervalLowerQuantile)),
		math.Abs(ml.Quantile(residuals, f.cfg.IntervalUpperQuantile)),
	)

	ev := ml.Evaluate(valid.Y, predicted)
	accuracy := demanddomain.ModelAccuracy{
		RMSE:           ev.RMSE,
		MAE:            ev.MAE,
		MAPE:           ev.MAPE,
		R2:             ev.R2,
		BestIteration:  report.BestIteration,
		TrainingRows:   nTrain,
		ValidationRows: nValid,
	}

	f.logger.Info("demand forecaster trained",
		zap.String("product_id", frame.ProductID),
		zap.Int("rounds", report.Rounds),
		zap.Int("best_iteration", report.BestIteration),
		zap.Bool("early_stopped", report.EarlyStopped),
		zap.Float64("validation_rmse", ev.RMSE),
		zap.Duration("elapsed", phase.Elapsed()),
	)

	return &shareddomain.TrainedModel{
		Model: &forecastModel{gbm: gbm, offset: offset, accuracy: accuracy},
		ValidationMetrics: map[string]float64{
			"rmse":           ev.RMSE,
			"mae":            ev.MAE,
			"mape":           ev.MAPE,
			"r2":             ev.R2,
			"best_iteration": float64(report.BestIteration),
			"band_offset":    offset,
		},
		FeatureImportances: ml.NamedImportances(frame.Frame.Schema(), gbm.Importances()),
	}, nil
}

// recursive prévision pas à pas: chaque prédiction devient le lag-1 du pas suivant
// L'historique est copié, la série du frame n'est jamais modifiée; le prix futur
// est le dernier prix observé.
func (f *DemandForecaster) recursive(
	ctx context.Context,
	model *forecastModel,
	frame *featuresdomain.DemandFrame,
	horizon int,
) ([]demanddomain.ForecastResult, error) {
	phase := sharedinfra.NewPhase(ctx, "forecast", f.cfg.PhaseBudget)

	series := make([]featuresdomain.DailyPoint, len(frame.Series), len(frame.Series)+horizon)
	copy(series, frame.Series)
	last := series[len(series)-1]

	results := make([]demanddomain.ForecastResult, 0, horizon)
	for h := 1; h <= horizon; h++ {
		if err := phase.Check(); err != nil {
			return nil, err
		}
		date := last.Date.AddDate(0, 0, h)
		row, ok := featuresdomain.DemandFeatureRow(series, date, last.Price, frame.Policy)
		if !ok {
			return nil, shareddomain.NewDataInsufficientError("forecast history days", featuresdomain.HistoryRequired, len(series))
		}

		point := math.Max(0, model.gbm.Predict(row))
		off := model.offset * (1 + f.cfg.IntervalGrowthPerStep*float64(h-1))
		results = append(results, demanddomain.ForecastResult{
			Date:          date,
			PointForecast: point,
			LowerBound:    math.Max(0, point-off),
			UpperBound:    point + off,
		})
		series = append(series, featuresdomain.DailyPoint{Date: date, Quantity: point, Price: last.Price})
	}
	return results, nil
}

// historyWindow fenêtre calendaire couverte par l'historique (du produit demandé)
func historyWindow(history []demanddomain.SalesRecord, productID *string) (shareddomain.DateRange, error) {
	var first, last time.Time
	for _, s := range history {
		if productID != nil && s.ProductID != *productID {
			continue
		}
		if s.Date.IsZero() {
			continue
		}
		if first.IsZero() || s.Date.Before(first) {
			first = s.Date
		}
		if last.IsZero() || s.Date.After(last) {
			last = s.Date
		}
	}
	if first.IsZero() {
		return shareddomain.DateRange{}, shareddomain.NewDataInsufficientError("sales history rows", 1, 0)
	}
	return shareddomain.NewDateRange(first, last)
}
