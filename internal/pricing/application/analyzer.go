package application

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"demandinsights/internal/config"
	demanddomain "demandinsights/internal/demand/domain"
	"demandinsights/internal/ml"
	shareddomain "demandinsights/internal/shared/domain"
	sharedinfra "demandinsights/internal/shared/infrastructure"
)

// Seuils de recommandation autour du prix actuel
const (
	increaseThreshold = 1.05
	decreaseThreshold = 0.95
	heuristicMarkup   = 0.5
)

// ElasticityAnalyzer élasticité prix par régression log-log
type ElasticityAnalyzer struct {
	cfg    config.Config
	logger *zap.Logger
}

// NewElasticityAnalyzer crée une nouvelle instance de ElasticityAnalyzer
func NewElasticityAnalyzer(cfg config.Config, logger *zap.Logger) *ElasticityAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ElasticityAnalyzer{cfg: cfg, logger: logger}
}

// ============================================================================
// ANALYSE D'UN PRODUIT
//
// ln Q = a + b·ln P par moindres carrés sur les couples strictement positifs.
// Prix optimal (revenu) sous la demande linéaire locale ancrée au prix moyen
// géométrique P0: Q = Q0·(1 + b·(P-P0)/P0), d'où P* = P0·(b-1)/(2b) pour -1 < b < 0.
// b <= -1 (ou unitaire à 1e-9 près): revenu sans maximum intérieur, aucun prix n'est rendu.
// b >= 0: anomalie de signe signalée, jamais corrigée.
// ============================================================================
func (a *ElasticityAnalyzer) Analyze(history []demanddomain.PricePoint) (*demanddomain.ElasticityResult, error) {
	if len(history) == 0 {
		return nil, shareddomain.NewDataInsufficientError("price pairs", a.cfg.MinPricePairs, 0)
	}
	productID := history[0].ProductID
	for _, p := range history {
		if p.ProductID != productID {
			return nil, shareddomain.NewValidationError("product_id", "history mixes several products, use AnalyzeAll")
		}
	}

	var prices, quantities, x, y []float64
	for _, p := range history {
		if !p.Positive() {
			continue
		}
		prices = append(prices, p.Price)
		quantities = append(quantities, p.Quantity)
		x = append(x, math.Log(p.Price))
		y = append(y, math.Log(p.Quantity))
	}
	excluded := len(history) - len(x)
	if len(x) < a.cfg.MinPricePairs {
		return nil, shareddomain.NewDataInsufficientError("positive price pairs for "+productID, a.cfg.MinPricePairs, len(x))
	}

	fit, err := ml.OLS(x, y, a.cfg.ConfidenceLevel)
	if err != nil {
		return nil, err
	}

	b := fit.Slope
	res := &demanddomain.ElasticityResult{
		ProductID:     productID,
		Coefficient:   b,
		CILow:         fit.CILow,
		CIHigh:        fit.CIHigh,
		Intercept:     fit.Intercept,
		RSquared:      fit.RSquared,
		StandardError: fit.StandardError,
		SampleSize:    fit.N,
		ExcludedPairs: excluded,
		Type:          demanddomain.ClassifyElasticity(b),
		PriceRange:    observedRange(prices),
		QuantityRange: observedRange(quantities),
	}

	switch {
	case b >= 0:
		res.SignAnomaly = true
	case b <= -1, res.Type == demanddomain.UnitElastic:
		res.Note = demanddomain.NoFiniteOptimumNote
	default:
		p0 := math.Exp(stat.Mean(x, nil))
		optimal := p0 * (b - 1) / (2 * b)
		tol := a.cfg.PriceToleranceFactor
		res.ExtrapolationRisk = optimal < res.PriceRange.Min/tol || optimal > res.PriceRange.Max*tol
		res.OptimalPrice = &optimal
	}

	a.logger.Debug("price elasticity computed",
		zap.String("product_id", productID),
		zap.Float64("elasticity", b),
		zap.Int("pairs", fit.N),
		zap.Int("excluded", excluded),
		zap.String("type", string(res.Type)),
	)
	return res, nil
}

// AnalyzeAll analyse chaque produit de l'historique en parallèle (pool de workers)
// Les produits en données insuffisantes ou en échec numérique sont écartés et listés;
// si aucun produit n'aboutit, l'erreur du premier produit est retournée.
func (a *ElasticityAnalyzer) AnalyzeAll(
	ctx context.Context,
	history []demanddomain.PricePoint,
) ([]demanddomain.ElasticityResult, []demanddomain.Skipped, error) {
	if len(history) == 0 {
		return nil, nil, shareddomain.NewDataInsufficientError("price pairs", a.cfg.MinPricePairs, 0)
	}
	ids, groups := demanddomain.GroupByProduct(history)
	phase := sharedinfra.NewPhase(ctx, "elasticity", a.cfg.PhaseBudget)

	results := make([]*demanddomain.ElasticityResult, len(ids))
	failures := make([]error, len(ids))

	pool := sharedinfra.NewWorkerPool(ctx, a.cfg.Workers)
	pool.Start()
	for i, id := range ids {
		err := pool.Submit(func(ctx context.Context) error {
			if err := phase.Check(); err != nil {
				return err
			}
			res, err := a.Analyze(groups[id])
			switch {
			case err == nil:
				results[i] = res
			case errors.Is(err, shareddomain.ErrDataInsufficient), errors.Is(err, shareddomain.ErrModelTraining):
				failures[i] = err
			default:
				return err
			}
			return nil
		})
		if err != nil {
			break
		}
	}
	if errs := pool.Wait(); len(errs) > 0 {
		return nil, nil, errs[0]
	}
	if err := phase.Check(); err != nil {
		return nil, nil, err
	}

	var (
		out     []demanddomain.ElasticityResult
		skipped []demanddomain.Skipped
	)
	for i, id := range ids {
		switch {
		case results[i] != nil:
			out = append(out, *results[i])
		case failures[i] != nil:
			skipped = append(skipped, demanddomain.Skipped{ProductID: id, Reason: failures[i].Error()})
		}
	}
	if len(out) == 0 {
		for _, err := range failures {
			if err != nil {
				return nil, skipped, err
			}
		}
	}

	a.logger.Info("price elasticity analysis completed",
		zap.Int("products", len(ids)),
		zap.Int("analyzed", len(out)),
		zap.Int("skipped", len(skipped)),
		zap.Duration("elapsed", phase.Elapsed()),
	)
	return out, skipped, nil
}

// SensitivityCurve demande et revenu estimés aux prix donnés, autour des moyennes observées
func (a *ElasticityAnalyzer) SensitivityCurve(
	result *demanddomain.ElasticityResult,
	prices []float64,
) (*demanddomain.SensitivityCurve, error) {
	if result == nil {
		return nil, shareddomain.NewValidationError("elasticity", "is required")
	}
	if len(prices) == 0 {
		return nil, shareddomain.NewValidationError("price_points", "must not be empty")
	}
	base, baseQty := result.PriceRange.Mean, result.QuantityRange.Mean
	if base <= 0 {
		return nil, shareddomain.NewValidationError("base_price", "must be positive")
	}

	curve := &demanddomain.SensitivityCurve{
		ProductID:    result.ProductID,
		BasePrice:    base,
		BaseQuantity: baseQty,
		Elasticity:   result.Coefficient,
		Points:       make([]demanddomain.SensitivityPoint, 0, len(prices)),
	}
	best := -1
	for _, price := range prices {
		if !(price > 0) || math.IsInf(price, 0) {
			return nil, shareddomain.NewValidationError("price_points", "prices must be positive and finite")
		}
		change := (price - base) / base
		quantity := math.Max(0, baseQty*(1+result.Coefficient*change))
		curve.Points = append(curve.Points, demanddomain.SensitivityPoint{
			Price:             price,
			EstimatedQuantity: quantity,
			EstimatedRevenue:  shareddomain.RoundCurrency(price * quantity),
			PriceChangePct:    change * 100,
		})
		if last := len(curve.Points) - 1; best < 0 || curve.Points[last].EstimatedRevenue > curve.Points[best].EstimatedRevenue {
			best = last
		}
	}
	curve.RevenueMaximizingPrice = curve.Points[best].Price
	curve.MaxEstimatedRevenue = curve.Points[best].EstimatedRevenue
	return curve, nil
}

// ============================================================================
// OPTIMISATION DU PROFIT
//
// Règle de Lerner sous élasticité constante: marge = -1/(b+1) sur le coût
// unitaire pour b < -1. Pour b >= -1 le profit n'a pas d'optimum fini: une marge
// conservatrice de 50% est appliquée et signalée (heuristic=true).
// L'impact est estimé par l'approximation linéaire ΔQ/Q = b·ΔP/P.
// ============================================================================
func (a *ElasticityAnalyzer) OptimizePrice(
	result *demanddomain.ElasticityResult,
	currentPrice, currentQuantity, unitCost float64,
) (*demanddomain.PriceRecommendation, error) {
	switch {
	case result == nil:
		return nil, shareddomain.NewValidationError("elasticity", "is required")
	case !(currentPrice > 0):
		return nil, shareddomain.NewValidationError("current_price", "must be positive")
	case !(currentQuantity > 0):
		return nil, shareddomain.NewValidationError("current_quantity", "must be positive")
	case !(unitCost > 0):
		return nil, shareddomain.NewValidationError("unit_cost", "must be positive")
	}

	b := result.Coefficient
	rec := &demanddomain.PriceRecommendation{
		ProductID:      result.ProductID,
		CurrentPrice:   currentPrice,
		ElasticityUsed: b,
	}

	markup := heuristicMarkup
	if b < -1 {
		markup = -1 / (b + 1)
	} else {
		rec.Heuristic = true
		rec.Note = demanddomain.HeuristicMarkupNote
	}
	optimal := unitCost * (1 + markup)

	priceChange := (optimal - currentPrice) / currentPrice
	quantityChange := b * priceChange
	quantity := math.Max(0, currentQuantity*(1+quantityChange))

	currentRevenue := currentPrice * currentQuantity
	currentProfit := (currentPrice - unitCost) * currentQuantity
	revenue := optimal * quantity
	profit := (optimal - unitCost) * quantity

	rec.OptimalPrice = shareddomain.RoundCurrency(optimal)
	rec.PriceChangePct = priceChange * 100
	rec.Recommendation = demanddomain.RecommendMaintain
	switch {
	case optimal > currentPrice*increaseThreshold:
		rec.Recommendation = demanddomain.RecommendIncrease
	case optimal < currentPrice*decreaseThreshold:
		rec.Recommendation = demanddomain.RecommendDecrease
	}

	rec.EstimatedImpact = demanddomain.PriceImpact{
		QuantityChangePct: (quantity/currentQuantity - 1) * 100,
		RevenueChangePct:  (revenue - currentRevenue) / currentRevenue * 100,
		EstimatedQuantity: quantity,
		EstimatedRevenue:  shareddomain.RoundCurrency(revenue),
		EstimatedProfit:   shareddomain.RoundCurrency(profit),
	}
	// Variation de profit indéfinie à profit courant nul
	if currentProfit != 0 {
		pct := (profit - currentProfit) / math.Abs(currentProfit) * 100
		rec.EstimatedImpact.ProfitChangePct = &pct
	}
	rec.CurrentMetrics = demanddomain.CurrentMetrics{
		Quantity:  currentQuantity,
		Revenue:   shareddomain.RoundCurrency(currentRevenue),
		Profit:    shareddomain.RoundCurrency(currentProfit),
		MarginPct: (currentPrice - unitCost) / currentPrice * 100,
	}

	a.logger.Info("price optimization",
		zap.String("product_id", result.ProductID),
		zap.String("recommendation", rec.Recommendation),
		zap.Float64("current_price", currentPrice),
		zap.Float64("optimal_price", rec.OptimalPrice),
		zap.Bool("heuristic", rec.Heuristic),
	)
	return rec, nil
}

func observedRange(values []float64) demanddomain.Range {
	return demanddomain.Range{
		Min:  floats.Min(values),
		Max:  floats.Max(values),
		Mean: stat.Mean(values, nil),
	}
}
