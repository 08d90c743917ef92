package ml

import (
	"math/rand/v2"
	"slices"
	"sort"

	"demandinsights/internal/shared/domain"
)

// TreeParams hyperparamètres d'un arbre de régression
type TreeParams struct {
	MaxDepth    int
	MinLeaf     int
	MaxFeatures int     // 0 = toutes les features à chaque split
	Lambda      float64 // régularisation L2 des valeurs de feuille
}

type treeNode struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Gain      float64
	Samples   int
}

func (n treeNode) isLeaf() bool {
	return n.Left < 0
}

// Tree arbre binaire ajusté sur des couples (gradient, hessien)
//
// Chaque nœud, interne ou feuille, garde la valeur G/(H+λ) de ses lignes: c'est
// ce qui permet de décomposer une prédiction en contributions par feature.
// Avec h=1 et g=cible, la valeur d'une feuille est la moyenne de la cible.
type Tree struct {
	nodes     []treeNode
	nFeatures int
}

type treeBuilder struct {
	X      [][]float64
	grad   []float64
	hess   []float64
	params TreeParams
	rng    *rand.Rand
	tree   *Tree
}

// FitTree construit un arbre sur les lignes `rows` (doublons autorisés pour le bootstrap)
func FitTree(X [][]float64, grad, hess []float64, rows []int, params TreeParams, rng *rand.Rand) *Tree {
	if params.MinLeaf < 1 {
		params.MinLeaf = 1
	}
	nFeatures := 0
	if len(X) > 0 {
		nFeatures = len(X[0])
	}
	b := &treeBuilder{
		X:      X,
		grad:   grad,
		hess:   hess,
		params: params,
		rng:    rng,
		tree:   &Tree{nFeatures: nFeatures},
	}
	b.build(rows, 0)
	return b.tree
}

func (b *treeBuilder) sums(rows []int) (g, h float64) {
	for _, r := range rows {
		g += b.grad[r]
		h += b.hess[r]
	}
	return g, h
}

func (b *treeBuilder) leafValue(g, h float64) float64 {
	denom := h + b.params.Lambda
	if denom <= 0 {
		return 0
	}
	return g / denom
}

func (b *treeBuilder) score(g, h float64) float64 {
	denom := h + b.params.Lambda
	if denom <= 0 {
		return 0
	}
	return g * g / denom
}

func (b *treeBuilder) build(rows []int, depth int) int {
	g, h := b.sums(rows)
	idx := len(b.tree.nodes)
	b.tree.nodes = append(b.tree.nodes, treeNode{
		Feature: -1,
		Left:    -1,
		Right:   -1,
		Value:   b.leafValue(g, h),
		Samples: len(rows),
	})

	if depth >= b.params.MaxDepth || len(rows) < 2*b.params.MinLeaf {
		return idx
	}

	feature, threshold, gain, ok := b.bestSplit(rows, g, h)
	if !ok {
		return idx
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	for _, r := range rows {
		if b.X[r][feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	l := b.build(left, depth+1)
	rr := b.build(right, depth+1)

	n := &b.tree.nodes[idx]
	n.Feature = feature
	n.Threshold = threshold
	n.Gain = gain
	n.Left = l
	n.Right = rr
	return idx
}

func (b *treeBuilder) candidateFeatures() []int {
	all := b.tree.nFeatures
	if b.params.MaxFeatures <= 0 || b.params.MaxFeatures >= all || b.rng == nil {
		features := make([]int, all)
		for i := range features {
			features[i] = i
		}
		return features
	}
	features := b.rng.Perm(all)[:b.params.MaxFeatures]
	slices.Sort(features)
	return features
}

func (b *treeBuilder) bestSplit(rows []int, g, h float64) (feature int, threshold, gain float64, ok bool) {
	parent := b.score(g, h)
	minLeaf := b.params.MinLeaf
	sorted := make([]int, len(rows))

	for _, f := range b.candidateFeatures() {
		copy(sorted, rows)
		slices.SortFunc(sorted, func(i, j int) int {
			vi, vj := b.X[i][f], b.X[j][f]
			switch {
			case vi < vj:
				return -1
			case vi > vj:
				return 1
			default:
				return i - j
			}
		})

		var gl, hl float64
		for i := 0; i < len(sorted)-1; i++ {
			r := sorted[i]
			gl += b.grad[r]
			hl += b.hess[r]
			if i+1 < minLeaf || len(sorted)-(i+1) < minLeaf {
				continue
			}
			v, next := b.X[r][f], b.X[sorted[i+1]][f]
			if v == next {
				continue
			}
			candidate := b.score(gl, hl) + b.score(g-gl, h-hl) - parent
			if candidate > gain+1e-12 {
				feature, threshold, gain, ok = f, (v+next)/2, candidate, true
			}
		}
	}
	return feature, threshold, gain, ok
}

// Predict retourne la valeur de la feuille atteinte par x
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for !t.nodes[i].isLeaf() {
		n := t.nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.nodes[i].Value
}

// RootValue valeur moyenne (G/H) de toutes les lignes d'entraînement
func (t *Tree) RootValue() float64 {
	return t.nodes[0].Value
}

// AddContributions ajoute à out les variations de valeur le long du chemin de x,
// multipliées par scale, imputées à la feature de chaque split
func (t *Tree) AddContributions(x []float64, scale float64, out []float64) {
	i := 0
	for !t.nodes[i].isLeaf() {
		n := t.nodes[i]
		next := n.Right
		if x[n.Feature] <= n.Threshold {
			next = n.Left
		}
		out[n.Feature] += scale * (t.nodes[next].Value - n.Value)
		i = next
	}
}

// AddGains ajoute le gain de chaque split à la feature concernée
func (t *Tree) AddGains(out []float64) {
	for _, n := range t.nodes {
		if !n.isLeaf() {
			out[n.Feature] += n.Gain
		}
	}
}

// Depth profondeur maximale effective
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.nodes[i]
		if n.isLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

// NormalizeImportances ramène des gains à une somme de 1
func NormalizeImportances(gains []float64) []float64 {
	total := 0.0
	for _, g := range gains {
		total += g
	}
	out := make([]float64, len(gains))
	if total <= 0 {
		return out
	}
	for i, g := range gains {
		out[i] = g / total
	}
	return out
}

// NamedImportances associe les poids aux noms de features, triés par poids décroissant
func NamedImportances(names []string, weights []float64) []domain.FeatureImportance {
	out := make([]domain.FeatureImportance, len(names))
	for i, name := range names {
		out[i] = domain.FeatureImportance{Feature: name, Importance: weights[i]}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Importance > out[b].Importance })
	return out
}
