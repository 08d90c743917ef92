package application

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"demandinsights/internal/config"
	customersapp "demandinsights/internal/customers/application"
	customersdomain "demandinsights/internal/customers/domain"
	featuresapp "demandinsights/internal/features/application"
	featuresdomain "demandinsights/internal/features/domain"
	forecastingapp "demandinsights/internal/forecasting/application"
	"demandinsights/internal/insights/domain"
	pricingapp "demandinsights/internal/pricing/application"
	segmentationapp "demandinsights/internal/segmentation/application"
	shareddomain "demandinsights/internal/shared/domain"
	sharedinfra "demandinsights/internal/shared/infrastructure"
)

// Noms d'opérations (logs et métriques)
const (
	OpSegments          = "segments"
	OpForecast          = "forecast"
	OpElasticity        = "elasticity"
	OpPriceOptimization = "price_optimization"
	OpCLV               = "clv"
	OpChurn             = "churn"
	OpAtRisk            = "at_risk"
	OpCustomerOverview  = "customer_overview"
)

// sensitivitySteps variations de prix par défaut de la courbe de sensibilité (-20% à +20%)
var sensitivitySteps = []float64{-0.20, -0.15, -0.10, -0.05, 0, 0.05, 0.10, 0.15, 0.20}

// Engine orchestre features → registre → modèle → réponse, sous le budget de requête
type Engine struct {
	cfg        config.Config
	engineer   *featuresapp.FeatureEngineer
	segmenter  *segmentationapp.Segmenter
	forecaster *forecastingapp.DemandForecaster
	analyzer   *pricingapp.ElasticityAnalyzer
	clv        *customersapp.CLVPredictor
	churn      *customersapp.ChurnPredictor
	assembler  *InsightAssembler
	validate   *validator.Validate
	logger     *zap.Logger
}

// NewEngine crée une nouvelle instance de Engine; tous les modèles partagent le registre
func NewEngine(cfg config.Config, registry sharedinfra.Registry, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	engineer := featuresapp.NewFeatureEngineer(cfg, logger.Named("features"))
	return &Engine{
		cfg:        cfg,
		engineer:   engineer,
		segmenter:  segmentationapp.NewSegmenter(cfg, registry, logger.Named("segmentation")),
		forecaster: forecastingapp.NewDemandForecaster(cfg, engineer, registry, logger.Named("forecasting")),
		analyzer:   pricingapp.NewElasticityAnalyzer(cfg, logger.Named("pricing")),
		clv:        customersapp.NewCLVPredictor(cfg, registry, logger.Named("clv")),
		churn:      customersapp.NewChurnPredictor(cfg, registry, logger.Named("churn")),
		assembler:  NewInsightAssembler(),
		validate:   newRequestValidator(),
		logger:     logger,
	}
}

// Config configuration effective du moteur
func (e *Engine) Config() config.Config {
	return e.cfg
}

// ============================================================================
// BUDGET DE REQUÊTE
//
// Chaque opération tourne sous context.WithTimeout(request_budget). Une échéance
// atteinte hors d'une phase instrumentée est convertie en TimeoutError.
// ============================================================================
func run[T any](ctx context.Context, e *Engine, op string, fn func(ctx context.Context) (*T, error)) (*T, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestBudget)
	defer cancel()

	start := time.Now()
	out, err := fn(ctx)
	elapsed := time.Since(start)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, shareddomain.ErrTimeout) {
		err = shareddomain.NewTimeoutError("request", e.cfg.RequestBudget, elapsed)
	}
	sharedinfra.ObserveRequest(op, err, elapsed)

	if err != nil {
		e.logger.Warn("operation failed",
			zap.String("operation", op),
			zap.String("outcome", sharedinfra.Outcome(err)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}
	e.logger.Info("operation completed",
		zap.String("operation", op),
		zap.Duration("elapsed", elapsed),
	)
	return out, nil
}

// Segments segmentation RFM des clients actifs
func (e *Engine) Segments(ctx context.Context, req domain.CustomerRequest) (*domain.SegmentsResponse, error) {
	return run(ctx, e, OpSegments, func(ctx context.Context) (*domain.SegmentsResponse, error) {
		if err := e.check(req); err != nil {
			return nil, err
		}
		kMin, kMax := e.cfg.KMin, e.cfg.KMax
		if req.KMin > 0 {
			kMin = req.KMin
		}
		if req.KMax > 0 {
			kMax = req.KMax
		}
		_, current, err := e.customerFrames(req, false, false)
		if err != nil {
			return nil, err
		}
		res, err := e.segmenter.SegmentCustomers(ctx, current, kMin, kMax)
		if err != nil {
			return nil, err
		}
		return e.assembler.Segments(e.assembler.Meta(), res), nil
	})
}

// Forecast prévision journalière sur horizon_days (défaut forecast_horizon_days)
func (e *Engine) Forecast(ctx context.Context, req domain.ForecastRequest) (*domain.ForecastResponse, error) {
	return run(ctx, e, OpForecast, func(ctx context.Context) (*domain.ForecastResponse, error) {
		if err := e.check(req); err != nil {
			return nil, err
		}
		horizon := req.HorizonDays
		if horizon == 0 {
			horizon = e.cfg.ForecastHorizonDays
		}
		out, err := e.forecaster.Forecast(ctx, req.Sales, horizon, req.ProductID)
		if err != nil {
			return nil, err
		}
		return e.assembler.Forecast(e.assembler.Meta(), out), nil
	})
}

// Elasticity élasticité de chaque produit de l'historique
func (e *Engine) Elasticity(ctx context.Context, req domain.ElasticityRequest) (*domain.ElasticityResponse, error) {
	return run(ctx, e, OpElasticity, func(ctx context.Context) (*domain.ElasticityResponse, error) {
		if err := e.check(req); err != nil {
			return nil, err
		}
		results, skipped, err := e.analyzer.AnalyzeAll(ctx, req.History)
		if err != nil {
			return nil, err
		}
		return e.assembler.Elasticity(e.assembler.Meta(), results, skipped), nil
	})
}

// OptimizePrice élasticité d'un produit, prix recommandé et courbe de sensibilité
// Sans price_points, la courbe couvre le prix courant de -20% à +20%.
func (e *Engine) OptimizePrice(ctx context.Context, req domain.PriceOptimizationRequest) (*domain.PriceOptimizationResponse, error) {
	return run(ctx, e, OpPriceOptimization, func(ctx context.Context) (*domain.PriceOptimizationResponse, error) {
		if err := e.check(req); err != nil {
			return nil, err
		}
		elasticity, err := e.analyzer.Analyze(req.History)
		if err != nil {
			return nil, err
		}
		rec, err := e.analyzer.OptimizePrice(elasticity, req.CurrentPrice, req.CurrentQuantity, req.UnitCost)
		if err != nil {
			return nil, err
		}

		prices := req.PricePoints
		if len(prices) == 0 {
			prices = make([]float64, len(sensitivitySteps))
			for i, step := range sensitivitySteps {
				prices[i] = shareddomain.RoundCurrency(req.CurrentPrice * (1 + step))
			}
		}
		curve, err := e.analyzer.SensitivityCurve(elasticity, prices)
		if err != nil {
			return nil, err
		}
		return e.assembler.PriceOptimization(e.assembler.Meta(), elasticity, rec, curve), nil
	})
}

// CLV valeur vie client des clients actifs
func (e *Engine) CLV(ctx context.Context, req domain.CustomerRequest) (*domain.CLVResponse, error) {
	return run(ctx, e, OpCLV, func(ctx context.Context) (*domain.CLVResponse, error) {
		if err := e.check(req); err != nil {
			return nil, err
		}
		training, current, err := e.customerFrames(req, true, true)
		if err != nil {
			return nil, err
		}
		out, err := e.clv.PredictCLVFrom(ctx, training, current)
		if err != nil {
			return nil, err
		}
		return e.assembler.CLV(e.assembler.Meta(), out), nil
	})
}

// Churn probabilités de churn de tous les clients
func (e *Engine) Churn(ctx context.Context, req domain.CustomerRequest) (*domain.ChurnResponse, error) {
	return run(ctx, e, OpChurn, func(ctx context.Context) (*domain.ChurnResponse, error) {
		out, err := e.predictChurn(ctx, req)
		if err != nil {
			return nil, err
		}
		return e.assembler.Churn(e.assembler.Meta(), out), nil
	})
}

// AtRisk clients dont la probabilité de churn atteint le seuil
func (e *Engine) AtRisk(ctx context.Context, req domain.CustomerRequest) (*domain.AtRiskResponse, error) {
	return run(ctx, e, OpAtRisk, func(ctx context.Context) (*domain.AtRiskResponse, error) {
		out, err := e.predictChurn(ctx, req)
		if err != nil {
			return nil, err
		}
		return e.assembler.AtRisk(e.assembler.Meta(), out, req.AtRiskLimit()), nil
	})
}

// ============================================================================
// VUE CLIENT
//
// CLV et churn lisent les mêmes frames (jamais modifiés) et s'exécutent en
// parallèle; la première erreur annule l'autre calcul. Le churn n'a pas de repli
// quand l'historique précède mal le holdout: la vue échoue alors entière.
// ============================================================================
func (e *Engine) CustomerOverview(ctx context.Context, req domain.CustomerRequest) (*domain.CustomerOverviewResponse, error) {
	return run(ctx, e, OpCustomerOverview, func(ctx context.Context) (*domain.CustomerOverviewResponse, error) {
		if err := e.check(req); err != nil {
			return nil, err
		}
		training, current, err := e.customerFrames(req, true, false)
		if err != nil {
			return nil, err
		}

		var clv *customersapp.CLVOutcome
		var churn *customersapp.ChurnOutcome
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			clv, err = e.clv.PredictCLVFrom(gctx, training, current)
			return err
		})
		g.Go(func() error {
			var err error
			churn, err = e.churn.PredictChurnFrom(gctx, training, current, e.threshold(req))
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		meta := e.assembler.Meta()
		return &domain.CustomerOverviewResponse{
			Meta:  meta,
			CLV:   *e.assembler.CLV(meta, clv),
			Churn: *e.assembler.Churn(meta, churn),
		}, nil
	})
}

func (e *Engine) predictChurn(ctx context.Context, req domain.CustomerRequest) (*customersapp.ChurnOutcome, error) {
	if err := e.check(req); err != nil {
		return nil, err
	}
	training, current, err := e.customerFrames(req, true, false)
	if err != nil {
		return nil, err
	}
	return e.churn.PredictChurnFrom(ctx, training, current, e.threshold(req))
}

func (e *Engine) threshold(req domain.CustomerRequest) float64 {
	if req.Threshold != nil {
		return *req.Threshold
	}
	return e.cfg.ChurnThreshold
}

// customerFrames frame courant à as_of et, si labeled, frame d'entraînement
// (labels observés sur le holdout quand holdout_days > 0, sinon le frame courant).
// Avec fallback, un historique trop court avant le holdout entraîne sur le frame
// courant, sans labels: le CLV passe alors à l'estimation simple.
func (e *Engine) customerFrames(
	req domain.CustomerRequest,
	labeled, fallback bool,
) (training, current *featuresdomain.CustomerFrame, err error) {
	if len(req.Transactions) == 0 {
		return nil, nil, shareddomain.NewDataInsufficientError("transactions", 1, 0)
	}
	asOf := latestOrderDate(req.Transactions)
	if req.AsOf != nil {
		asOf = *req.AsOf
	}

	current, err = e.engineer.BuildCustomerFeatures(req.Transactions, asOf)
	if err != nil {
		return nil, nil, err
	}
	if !labeled || req.HoldoutDays == 0 {
		return current, current, nil
	}
	training, err = e.engineer.BuildLabeledCustomerFeatures(req.Transactions, asOf, req.HoldoutDays)
	if fallback && errors.Is(err, shareddomain.ErrDataInsufficient) {
		e.logger.Info("holdout history too short, training on current frame",
			zap.Int("holdout_days", req.HoldoutDays),
			zap.Error(err),
		)
		return current, current, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return training, current, nil
}

func latestOrderDate(transactions []customersdomain.TransactionRecord) time.Time {
	var latest time.Time
	for _, tx := range transactions {
		if tx.OrderDate.After(latest) {
			latest = tx.OrderDate
		}
	}
	return latest
}

// newRequestValidator validateur qui nomme les champs par leur clé JSON
func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check applique les tags validate de la requête et les convertit en ValidationError
func (e *Engine) check(req any) error {
	err := e.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := fe.Tag()
		if fe.Param() != "" {
			reason = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		}
		return shareddomain.NewValidationError(fe.Field(), "failed "+reason)
	}
	return shareddomain.NewValidationError("request", err.Error())
}
