package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Money représente une valeur monétaire avec garanties d'invariants
// Les sommes sont accumulées en décimal pour éviter la dérive des float64
// sur des milliers de lignes de commande.
type Money struct {
	amount decimal.Decimal
}

// ZeroMoney retourne un montant nul
func ZeroMoney() Money {
	return Money{amount: decimal.Zero}
}

// NewMoney crée une nouvelle instance de Money avec validation
func NewMoney(amount float64) (Money, error) {
	if amount < 0 {
		return Money{}, errors.New("amount cannot be negative")
	}
	return Money{amount: decimal.NewFromFloat(amount)}, nil
}

// Amount retourne le montant en float64
func (m Money) Amount() float64 {
	return m.amount.InexactFloat64()
}

// Add additionne deux montants
func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

// Divide divise le montant par n (0 si n <= 0)
func (m Money) Divide(n int) Money {
	if n <= 0 {
		return ZeroMoney()
	}
	return Money{amount: m.amount.Div(decimal.NewFromInt(int64(n)))}
}

// IsZero vérifie si le montant est zéro
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// RoundCurrency arrondit un montant (éventuellement négatif) au centime, demi vers le haut
func RoundCurrency(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
