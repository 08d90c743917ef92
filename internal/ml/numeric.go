// Package ml regroupe les primitives numériques utilisées par les modèles:
// standardisation, k-means, arbres de décision, boosting, forêts, OLS.
//
// Tout est déterministe pour une graine donnée: les générateurs sont des PCG
// math/rand/v2 dérivés explicitement, jamais l'état global.
package ml

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Checker est consulté entre deux unités de travail (tour de boosting,
// itération de Lloyd...) pour respecter le budget de temps d'une phase
type Checker interface {
	Check() error
}

func checkBudget(c Checker) error {
	if c == nil {
		return nil
	}
	return c.Check()
}

// Dataset matrice de features (lignes) et cible associée
type Dataset struct {
	X [][]float64
	Y []float64
}

// Len retourne le nombre de lignes
func (d Dataset) Len() int {
	return len(d.X)
}

// NewRand crée un générateur PCG déterministe pour (seed, stream)
func NewRand(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream^0x9e3779b97f4a7c15))
}

// Sigmoid fonction logistique, stable numériquement
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// IsFinite vérifie qu'une valeur n'est ni NaN ni infinie
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Quantile retourne le quantile p (interpolation linéaire) d'un échantillon non trié
// Retourne 0 pour un échantillon vide.
func Quantile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}

// Median retourne la médiane d'un échantillon (0 si vide)
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Column extrait la colonne j d'une matrice
func Column(X [][]float64, j int) []float64 {
	col := make([]float64, len(X))
	for i, row := range X {
		col[i] = row[j]
	}
	return col
}
