package domain

import (
	"time"

	shareddomain "demandinsights/internal/shared/domain"
)

// SalesRecord vente d'un produit (granularité journalière ou plus fine)
type SalesRecord struct {
	ProductID string    `json:"product_id"`
	Date      time.Time `json:"date"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
}

// Validate une vente doit avoir un produit, une date, une quantité >= 0 et un prix > 0
func (s SalesRecord) Validate() error {
	switch {
	case s.ProductID == "":
		return shareddomain.NewValidationError("product_id", "must not be empty")
	case s.Date.IsZero():
		return shareddomain.NewValidationError("date", "is required for product "+s.ProductID)
	case s.Quantity < 0:
		return shareddomain.NewValidationError("quantity", "must not be negative for product "+s.ProductID)
	case s.Price <= 0:
		return shareddomain.NewValidationError("price", "must be positive for product "+s.ProductID)
	}
	return nil
}

// PricePoint observation (prix, quantité) de l'historique de prix
// Les couples non strictement positifs sont acceptés ici et exclus (comptés) par l'analyse.
type PricePoint struct {
	ProductID string    `json:"product_id"`
	Date      time.Time `json:"date"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
}

// Positive vérifie que le couple est exploitable en log-log
func (p PricePoint) Positive() bool {
	return p.Price > 0 && p.Quantity > 0
}

// ForecastResult prévision pour une date; invariant LowerBound <= PointForecast <= UpperBound
type ForecastResult struct {
	Date          time.Time `json:"date"`
	PointForecast float64   `json:"point_forecast"`
	LowerBound    float64   `json:"lower_bound"`
	UpperBound    float64   `json:"upper_bound"`
}

// ModelAccuracy précision mesurée sur le jeu de validation chronologique
type ModelAccuracy struct {
	RMSE           float64 `json:"rmse"`
	MAE            float64 `json:"mae"`
	MAPE           float64 `json:"mape"`
	R2             float64 `json:"r2"`
	BestIteration  int     `json:"best_iteration"`
	TrainingRows   int     `json:"training_rows"`
	ValidationRows int     `json:"validation_rows"`
}
