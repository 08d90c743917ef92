package domain

import (
	"time"

	customersdomain "demandinsights/internal/customers/domain"
	demanddomain "demandinsights/internal/demand/domain"
)

// DefaultAtRiskLimit nombre maximal de clients à risque rendus sans limit explicite
const DefaultAtRiskLimit = 100

// CustomerRequest entrée commune des opérations clients (segments, CLV, churn)
// AsOf absent: date de la dernière transaction. HoldoutDays > 0: les modèles CLV
// et churn apprennent sur des labels observés pendant les derniers jours.
// Limit ne concerne que la liste des clients à risque.
type CustomerRequest struct {
	Transactions []customersdomain.TransactionRecord `json:"transactions" validate:"required"`
	AsOf         *time.Time                          `json:"as_of,omitempty"`
	KMin         int                                 `json:"k_min,omitempty" validate:"omitempty,gte=2"`
	KMax         int                                 `json:"k_max,omitempty" validate:"omitempty,gte=2,lte=20"`
	HoldoutDays  int                                 `json:"holdout_days,omitempty" validate:"gte=0"`
	Threshold    *float64                            `json:"threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	Limit        int                                 `json:"limit,omitempty" validate:"gte=0"`
}

// AtRiskLimit limite demandée, DefaultAtRiskLimit si absente
func (r CustomerRequest) AtRiskLimit() int {
	if r.Limit > 0 {
		return r.Limit
	}
	return DefaultAtRiskLimit
}

// ForecastRequest historique de ventes et horizon de prévision
type ForecastRequest struct {
	Sales       []demanddomain.SalesRecord `json:"sales" validate:"required"`
	HorizonDays int                        `json:"horizon_days,omitempty" validate:"gte=0"`
	ProductID   *string                    `json:"product_id,omitempty"`
}

// ElasticityRequest paires prix/quantité d'un ou plusieurs produits
type ElasticityRequest struct {
	History []demanddomain.PricePoint `json:"history" validate:"required"`
}

// PriceOptimizationRequest élasticité d'un produit puis prix recommandé
type PriceOptimizationRequest struct {
	History         []demanddomain.PricePoint `json:"history" validate:"required"`
	CurrentPrice    float64                   `json:"current_price" validate:"gt=0"`
	CurrentQuantity float64                   `json:"current_quantity" validate:"gt=0"`
	UnitCost        float64                   `json:"unit_cost" validate:"gt=0"`
	PricePoints     []float64                 `json:"price_points,omitempty" validate:"omitempty,dive,gt=0"`
}
