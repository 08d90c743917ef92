package ml

import (
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centre-réduit chaque colonne sur le lot d'entraînement
// Une colonne de variance nulle est transformée en 0.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler calcule moyenne et écart-type (population) par colonne
func FitScaler(X [][]float64) *StandardScaler {
	if len(X) == 0 {
		return &StandardScaler{}
	}
	cols := len(X[0])
	s := &StandardScaler{
		Mean: make([]float64, cols),
		Std:  make([]float64, cols),
	}
	for j := 0; j < cols; j++ {
		s.Mean[j], s.Std[j] = stat.PopMeanStdDev(Column(X, j), nil)
	}
	return s
}

// Transform retourne une copie standardisée de X
func (s *StandardScaler) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		z := make([]float64, len(row))
		for j, v := range row {
			if s.Std[j] > 0 {
				z[j] = (v - s.Mean[j]) / s.Std[j]
			}
		}
		out[i] = z
	}
	return out
}

// Inverse ramène un point standardisé dans les unités d'origine
func (s *StandardScaler) Inverse(z []float64) []float64 {
	out := make([]float64, len(z))
	for j, v := range z {
		out[j] = v*s.Std[j] + s.Mean[j]
	}
	return out
}
