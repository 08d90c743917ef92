package application

import (
	"time"

	"github.com/google/uuid"

	customersapp "demandinsights/internal/customers/application"
	demanddomain "demandinsights/internal/demand/domain"
	forecastingapp "demandinsights/internal/forecasting/application"
	"demandinsights/internal/insights/domain"
	segmentationapp "demandinsights/internal/segmentation/application"
)

// InsightAssembler met en forme les sorties des modèles en réponses JSON
type InsightAssembler struct {
	now   func() time.Time
	newID func() string
}

// NewInsightAssembler crée une nouvelle instance de InsightAssembler
func NewInsightAssembler() *InsightAssembler {
	return &InsightAssembler{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Meta nouvel identifiant de requête
func (a *InsightAssembler) Meta() domain.Meta {
	return domain.Meta{RequestID: a.newID(), GeneratedAt: a.now()}
}

// Segments {segments, total_customers, n_clusters, selection_method}
func (a *InsightAssembler) Segments(meta domain.Meta, res *segmentationapp.SegmentationResult) *domain.SegmentsResponse {
	return &domain.SegmentsResponse{
		Meta:            meta,
		Segments:        nonNil(res.Segments),
		TotalCustomers:  res.TotalCustomers,
		NClusters:       res.K,
		SelectionMethod: res.SelectionMethod,
		Assignments:     res.Assignments,
	}
}

// Forecast {forecasts, model_accuracy, feature_importance}
func (a *InsightAssembler) Forecast(meta domain.Meta, out *forecastingapp.ForecastOutcome) *domain.ForecastResponse {
	return &domain.ForecastResponse{
		Meta:              meta,
		ProductID:         out.ProductID,
		Forecasts:         nonNil(out.Forecasts),
		ModelAccuracy:     out.Accuracy,
		FeatureImportance: out.FeatureImportances,
	}
}

// Elasticity {elasticity, analysis_date, skipped}
func (a *InsightAssembler) Elasticity(
	meta domain.Meta,
	results []demanddomain.ElasticityResult,
	skipped []demanddomain.Skipped,
) *domain.ElasticityResponse {
	return &domain.ElasticityResponse{
		Meta:         meta,
		Elasticity:   nonNil(results),
		AnalysisDate: meta.GeneratedAt,
		Skipped:      skipped,
	}
}

// PriceOptimization élasticité, recommandation et courbe (optionnelle)
func (a *InsightAssembler) PriceOptimization(
	meta domain.Meta,
	elasticity *demanddomain.ElasticityResult,
	rec *demanddomain.PriceRecommendation,
	curve *demanddomain.SensitivityCurve,
) *domain.PriceOptimizationResponse {
	return &domain.PriceOptimizationResponse{
		Meta:           meta,
		Elasticity:     *elasticity,
		Recommendation: *rec,
		Sensitivity:    curve,
	}
}

// CLV {predictions, avg_clv, clv_quartiles, method}
func (a *InsightAssembler) CLV(meta domain.Meta, out *customersapp.CLVOutcome) *domain.CLVResponse {
	return &domain.CLVResponse{
		Meta:              meta,
		Predictions:       nonNil(out.Predictions),
		AvgCLV:            out.AvgCLV,
		CLVQuartiles:      out.Quartiles,
		Method:            out.Method,
		ValidationMetrics: out.ValidationMetrics,
		FeatureImportance: out.FeatureImportances,
	}
}

// Churn {predictions, at_risk_count, summary, label_source}
func (a *InsightAssembler) Churn(meta domain.Meta, out *customersapp.ChurnOutcome) *domain.ChurnResponse {
	return &domain.ChurnResponse{
		Meta:              meta,
		Predictions:       nonNil(out.Predictions),
		AtRiskCount:       out.AtRiskCount,
		Threshold:         out.Threshold,
		Summary:           out.Summary,
		LabelSource:       out.LabelSource,
		ValidationMetrics: out.ValidationMetrics,
		FeatureImportance: out.FeatureImportances,
	}
}

// AtRisk clients filtrés et triés par probabilité décroissante, tronqués à limit
func (a *InsightAssembler) AtRisk(meta domain.Meta, out *customersapp.ChurnOutcome, limit int) *domain.AtRiskResponse {
	atRisk := customersapp.FilterAtRisk(out.Predictions, out.Threshold)
	total := len(atRisk)
	if limit > 0 && len(atRisk) > limit {
		atRisk = atRisk[:limit]
	}
	return &domain.AtRiskResponse{
		Meta:            meta,
		AtRiskCustomers: nonNil(atRisk),
		Count:           len(atRisk),
		TotalAtRisk:     total,
		Threshold:       out.Threshold,
		Limit:           limit,
	}
}

// nonNil sérialise les listes vides en [] plutôt qu'en null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
