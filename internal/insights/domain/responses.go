package domain

import (
	"time"

	customersdomain "demandinsights/internal/customers/domain"
	demanddomain "demandinsights/internal/demand/domain"
	shareddomain "demandinsights/internal/shared/domain"
)

// Meta identifiant et horodatage de chaque réponse
type Meta struct {
	RequestID   string    `json:"request_id"`
	GeneratedAt time.Time `json:"generated_at"`
}

// SegmentsResponse segments clients et méthode de choix de k
type SegmentsResponse struct {
	Meta
	Segments        []customersdomain.Segment `json:"segments"`
	TotalCustomers  int                       `json:"total_customers"`
	NClusters       int                       `json:"n_clusters"`
	SelectionMethod string                    `json:"selection_method"`
	Assignments     map[string]int            `json:"assignments"`
}

// ForecastResponse prévisions journalières avec intervalles
type ForecastResponse struct {
	Meta
	ProductID         string                           `json:"product_id,omitempty"`
	Forecasts         []demanddomain.ForecastResult    `json:"forecasts"`
	ModelAccuracy     demanddomain.ModelAccuracy       `json:"model_accuracy"`
	FeatureImportance []shareddomain.FeatureImportance `json:"feature_importance"`
}

// ElasticityResponse élasticités par produit; les produits non analysables sont listés à part
type ElasticityResponse struct {
	Meta
	Elasticity   []demanddomain.ElasticityResult `json:"elasticity"`
	AnalysisDate time.Time                       `json:"analysis_date"`
	Skipped      []demanddomain.Skipped          `json:"skipped,omitempty"`
}

// PriceOptimizationResponse recommandation de prix et courbe de sensibilité
type PriceOptimizationResponse struct {
	Meta
	Elasticity     demanddomain.ElasticityResult    `json:"elasticity"`
	Recommendation demanddomain.PriceRecommendation `json:"recommendation"`
	Sensitivity    *demanddomain.SensitivityCurve   `json:"sensitivity,omitempty"`
}

// CLVResponse valeurs vie client du lot
type CLVResponse struct {
	Meta
	Predictions       []customersdomain.CLVResult      `json:"predictions"`
	AvgCLV            float64                          `json:"avg_clv"`
	CLVQuartiles      customersdomain.CLVQuartiles     `json:"clv_quartiles"`
	Method            string                           `json:"method"`
	ValidationMetrics map[string]float64               `json:"validation_metrics,omitempty"`
	FeatureImportance []shareddomain.FeatureImportance `json:"feature_importance,omitempty"`
}

// ChurnResponse probabilités de churn du lot
type ChurnResponse struct {
	Meta
	Predictions       []customersdomain.ChurnResult    `json:"predictions"`
	AtRiskCount       int                              `json:"at_risk_count"`
	Threshold         float64                          `json:"threshold"`
	Summary           customersdomain.ChurnSummary     `json:"summary"`
	LabelSource       string                           `json:"label_source"`
	ValidationMetrics map[string]float64               `json:"validation_metrics,omitempty"`
	FeatureImportance []shareddomain.FeatureImportance `json:"feature_importance,omitempty"`
}

// AtRiskResponse clients au-dessus du seuil, les plus risqués d'abord
// Count compte les clients rendus, TotalAtRisk tous ceux au-dessus du seuil.
type AtRiskResponse struct {
	Meta
	AtRiskCustomers []customersdomain.ChurnResult `json:"at_risk_customers"`
	Count           int                           `json:"count"`
	TotalAtRisk     int                           `json:"total_at_risk"`
	Threshold       float64                       `json:"threshold"`
	Limit           int                           `json:"limit"`
}

// CustomerOverviewResponse CLV et churn calculés sur les mêmes transactions
type CustomerOverviewResponse struct {
	Meta
	CLV   CLVResponse   `json:"clv"`
	Churn ChurnResponse `json:"churn"`
}
