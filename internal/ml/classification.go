package ml

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// probabilityClip borne les probabilités avant le log de la log-loss
const probabilityClip = 1e-15

// Classification métriques d'un classifieur binaire sur un jeu de validation
type Classification struct {
	LogLoss   float64
	AUC       float64
	Precision float64
	Recall    float64
}

// EvaluateClassifier compare des probabilités aux labels 0/1
// Précision et rappel sont calculés au seuil donné; l'AUC vaut 0.5 quand une seule
// classe est présente.
func EvaluateClassifier(labels, probs []float64, threshold float64) Classification {
	n := len(labels)
	if n == 0 {
		return Classification{}
	}

	var loss float64
	var tp, fp, fn int
	for i, y := range labels {
		p := math.Min(math.Max(probs[i], probabilityClip), 1-probabilityClip)
		loss -= y*math.Log(p) + (1-y)*math.Log(1-p)

		predicted := probs[i] >= threshold
		switch {
		case predicted && y == 1:
			tp++
		case predicted:
			fp++
		case y == 1:
			fn++
		}
	}

	c := Classification{LogLoss: loss / float64(n), AUC: AUC(labels, probs)}
	if tp+fp > 0 {
		c.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		c.Recall = float64(tp) / float64(tp+fn)
	}
	return c
}

// AUC aire sous la courbe ROC (trapèzes), scores ex aequo regroupés
func AUC(labels, probs []float64) float64 {
	idx := make([]int, len(labels))
	positives := 0
	for i := range idx {
		idx[i] = i
		if labels[i] == 1 {
			positives++
		}
	}
	if positives == 0 || positives == len(labels) {
		return 0.5
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] < probs[idx[b]] })

	scores := make([]float64, len(idx))
	classes := make([]bool, len(idx))
	for i, j := range idx {
		scores[i] = probs[j]
		classes[i] = labels[j] == 1
	}
	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}
