package domain

import "math"

// ElasticityType classification de la réponse de la demande au prix
type ElasticityType string

const (
	Elastic     ElasticityType = "elastic"
	UnitElastic ElasticityType = "unit_elastic"
	Inelastic   ElasticityType = "inelastic"
	Anomalous   ElasticityType = "anomalous"
)

// NoFiniteOptimumNote message rendu quand le modèle n'admet pas de prix optimal fini
const NoFiniteOptimumNote = "no finite revenue-maximizing price under current model"

// ClassifyElasticity classe un coefficient b
func ClassifyElasticity(b float64) ElasticityType {
	switch {
	case b >= 0:
		return Anomalous
	case math.Abs(b+1) <= 1e-9:
		return UnitElastic
	case b < -1:
		return Elastic
	default:
		return Inelastic
	}
}

// Range min / max / moyenne d'une série observée
type Range struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// ElasticityResult élasticité prix d'un produit; invariant CILow <= Coefficient <= CIHigh
type ElasticityResult struct {
	ProductID         string         `json:"product_id"`
	Coefficient       float64        `json:"elasticity_coefficient"`
	CILow             float64        `json:"ci_low"`
	CIHigh            float64        `json:"ci_high"`
	OptimalPrice      *float64       `json:"optimal_price"`
	Intercept         float64        `json:"intercept"`
	RSquared          float64        `json:"r_squared"`
	StandardError     float64        `json:"standard_error"`
	SampleSize        int            `json:"sample_size"`
	ExcludedPairs     int            `json:"excluded_pairs"`
	Type              ElasticityType `json:"elasticity_type"`
	SignAnomaly       bool           `json:"sign_anomaly"`
	ExtrapolationRisk bool           `json:"extrapolation_risk"`
	Note              string         `json:"note,omitempty"`
	PriceRange        Range          `json:"price_range"`
	QuantityRange     Range          `json:"quantity_range"`
}

// Significant vrai si l'intervalle de confiance exclut 0
func (r ElasticityResult) Significant() bool {
	return r.CIHigh < 0 || r.CILow > 0
}

// ExpectedQuantity quantité prédite par le modèle log-log à un prix donné
func (r ElasticityResult) ExpectedQuantity(price float64) float64 {
	if price <= 0 {
		return 0
	}
	return math.Exp(r.Intercept + r.Coefficient*math.Log(price))
}
