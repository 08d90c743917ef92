package domain

import (
	"strconv"
	"time"

	shareddomain "demandinsights/internal/shared/domain"
)

// TransactionRecord ligne de commande brute, jamais modifiée après lecture
// OrderID regroupe les lignes d'une même commande; vide, chaque ligne compte
// pour une commande.
type TransactionRecord struct {
	CustomerID        string    `json:"customer_id" validate:"required"`
	OrderID           string    `json:"order_id,omitempty"`
	OrderDate         time.Time `json:"order_date" validate:"required"`
	Amount            float64   `json:"amount" validate:"gte=0"`
	ProductID         string    `json:"product_id,omitempty"`
	Quantity          float64   `json:"quantity,omitempty" validate:"gte=0"`
	UnitPrice         float64   `json:"unit_price,omitempty" validate:"gte=0"`
	EngagementScore   *float64  `json:"engagement_score,omitempty"`
	SatisfactionScore *float64  `json:"satisfaction_score,omitempty"`
}

// Validate vérifie les invariants d'une ligne de transaction
func (t TransactionRecord) Validate() error {
	switch {
	case t.CustomerID == "":
		return shareddomain.NewValidationError("customer_id", "must not be empty")
	case t.OrderDate.IsZero():
		return shareddomain.NewValidationError("order_date", "is required for customer "+t.CustomerID)
	case t.Amount < 0:
		return shareddomain.NewValidationError("amount", "must not be negative for customer "+t.CustomerID)
	case t.Quantity < 0:
		return shareddomain.NewValidationError("quantity", "must not be negative for customer "+t.CustomerID)
	case t.UnitPrice < 0:
		return shareddomain.NewValidationError("unit_price", "must not be negative for customer "+t.CustomerID)
	}
	return nil
}

// OrderKey identifiant de commande utilisé pour compter la fréquence
func (t TransactionRecord) OrderKey(index int) string {
	if t.OrderID != "" {
		return t.OrderID
	}
	return t.CustomerID + "#" + t.OrderDate.Format(time.RFC3339Nano) + "#" + strconv.Itoa(index)
}
