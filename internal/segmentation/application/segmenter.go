package application

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"demandinsights/internal/config"
	customersdomain "demandinsights/internal/customers/domain"
	featuresdomain "demandinsights/internal/features/domain"
	"demandinsights/internal/ml"
	shareddomain "demandinsights/internal/shared/domain"
	sharedinfra "demandinsights/internal/shared/infrastructure"
)

// ModelKind type de modèle dans le registre
const ModelKind = "segmentation"

// Méthodes de sélection du nombre de clusters
const (
	SelectionElbow      = "elbow"
	SelectionSilhouette = "silhouette"
	SelectionSingle     = "single_candidate"
)

// SegmentationResult partition des clients actifs en segments nommés
type SegmentationResult struct {
	Segments        []customersdomain.Segment
	Assignments     map[string]int
	K               int
	SelectionMethod string
	Candidates      []int
	Inertias        []float64
	Silhouettes     []float64
	TotalCustomers  int
}

// segmentationModel artefact entraîné: balayage des k et partition retenue
type segmentationModel struct {
	customerIDs []string
	raw         [][]float64
	scaler      *ml.StandardScaler
	k           int
	method      string
	candidates  []int
	inertias    []float64
	silhouettes []float64
	centroids   [][]float64
	labels      []int
}

// Segmenter segmentation RFM par k-means avec choix automatique de k
type Segmenter struct {
	cfg      config.Config
	registry sharedinfra.Registry
	logger   *zap.Logger
}

// NewSegmenter crée une nouvelle instance de Segmenter
func NewSegmenter(cfg config.Config, registry sharedinfra.Registry, logger *zap.Logger) *Segmenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Segmenter{cfg: cfg, registry: registry, logger: logger}
}

// SegmentCustomers segmente les clients actifs du frame pour k dans [kMin, kMax]
// Les clients inactifs (aucune commande dans la fenêtre) ne sont pas segmentés.
func (s *Segmenter) SegmentCustomers(
	ctx context.Context,
	frame *featuresdomain.CustomerFrame,
	kMin, kMax int,
) (*SegmentationResult, error) {
	if kMin < 2 {
		return nil, shareddomain.NewValidationError("k_min", "must be at least 2")
	}
	if kMin > kMax {
		return nil, shareddomain.NewValidationError("k_min", fmt.Sprintf("%d exceeds k_max %d", kMin, kMax))
	}
	if frame == nil {
		return nil, shareddomain.NewValidationError("feature_frame", "is required")
	}

	active := frame.Active()
	if len(active) < kMin {
		return nil, shareddomain.NewDataInsufficientError("active customers", kMin, len(active))
	}

	fingerprint := sharedinfra.NewCacheKeyBuilder().
		Add(frame.Fingerprint(ModelKind)).
		AddInt(kMin).
		AddInt(kMax).
		AddInt(int(s.cfg.RandomSeed)).
		Build()

	artifact, err := s.registry.GetOrTrain(ctx, ModelKind, fingerprint, func(ctx context.Context) (*shareddomain.TrainedModel, error) {
		return s.train(ctx, active, kMin, kMax)
	})
	if err != nil {
		return nil, err
	}

	model, ok := artifact.Model.(*segmentationModel)
	if !ok {
		return nil, shareddomain.NewModelTrainingError(ModelKind, "unexpected artifact type", nil)
	}
	return model.result(), nil
}

// ============================================================================
// BALAYAGE DES K
//
// Pour chaque k: k-means++ (n_init graines dérivées de random_seed), inertie et
// silhouette moyenne. Le budget de la phase "clustering" est vérifié à chaque k
// et à chaque itération de Lloyd.
// ============================================================================
func (s *Segmenter) train(
	ctx context.Context,
	active []customersdomain.CustomerRecord,
	kMin, kMax int,
) (*shareddomain.TrainedModel, error) {
	phase := sharedinfra.NewPhase(ctx, "clustering", s.cfg.PhaseBudget)

	rfm, err := featuresdomain.Project(active, featuresdomain.RFMFeatures)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(active))
	for i, c := range active {
		ids[i] = c.CustomerID
	}
	raw := rfm.Matrix()
	scaler := ml.FitScaler(raw)
	Z := scaler.Transform(raw)

	kHigh := min(kMax, len(active))
	model := &segmentationModel{customerIDs: ids, raw: raw, scaler: scaler}
	runs := make(map[int]*ml.KMeansResult)

	for k := kMin; k <= kHigh; k++ {
		if err := phase.Check(); err != nil {
			return nil, err
		}
		res, err := ml.KMeans(Z, ml.KMeansParams{K: k, Seed: s.cfg.RandomSeed}, phase)
		if err != nil {
			return nil, err
		}
		runs[k] = res
		model.candidates = append(model.candidates, k)
		model.inertias = append(model.inertias, res.Inertia)
		model.silhouettes = append(model.silhouettes, ml.Silhouette(Z, res.Labels, k))
	}

	model.k, model.method = SelectK(model.candidates, model.inertias, model.silhouettes, s.cfg.ElbowSensitivity)
	chosen := runs[model.k]
	model.centroids = chosen.Centroids
	model.labels = chosen.Labels

	s.logger.Info("customer segmentation trained",
		zap.Int("customers", len(active)),
		zap.Int("k", model.k),
		zap.String("selection_method", model.method),
		zap.Duration("elapsed", phase.Elapsed()),
	)

	return &shareddomain.TrainedModel{
		Model: model,
		ValidationMetrics: map[string]float64{
			"k":          float64(model.k),
			"inertia":    chosen.Inertia,
			"silhouette": model.silhouettes[model.k-kMin],
		},
	}, nil
}

// SelectK choisit k par le coude de l'inertie (seconde différence maximale),
// ou par la meilleure silhouette si le coude est ambigu
//
// Ambigu: moins de 3 candidats, ou seconde différence maximale inférieure ou égale
// à sensitivity × (max - min) des premières différences.
func SelectK(candidates []int, inertias, silhouettes []float64, sensitivity float64) (int, string) {
	m := len(candidates)
	if m == 1 {
		return candidates[0], SelectionSingle
	}

	if m >= 3 {
		drops := make([]float64, m-1)
		for i := range drops {
			drops[i] = inertias[i] - inertias[i+1]
		}
		minDrop, maxDrop := drops[0], drops[0]
		for _, d := range drops {
			minDrop = math.Min(minDrop, d)
			maxDrop = math.Max(maxDrop, d)
		}

		best, bestSecond := -1, math.Inf(-1)
		for j := 1; j < m-1; j++ {
			if second := drops[j-1] - drops[j]; second > bestSecond {
				best, bestSecond = j, second
			}
		}
		if best >= 0 && bestSecond > sensitivity*(maxDrop-minDrop) {
			return candidates[best], SelectionElbow
		}
	}

	best := 0
	for i := 1; i < m; i++ {
		if silhouettes[i] > silhouettes[best] {
			best = i
		}
	}
	return candidates[best], SelectionSilhouette
}

// ============================================================================
// LIBELLÉS
//
// Les clusters sont classés par (rang monétaire décroissant + rang récence
// croissante), égalités départagées par monétaire décroissant puis indice.
// La position ordinale p est projetée sur la taxonomie à l'indice round(p·5/(k-1)).
// ============================================================================
type clusterStats struct {
	index     int
	members   int
	recency   float64
	frequency float64
	monetary  float64
	total     float64
}

func (m *segmentationModel) result() *SegmentationResult {
	stats := make([]clusterStats, m.k)
	for c := range stats {
		stats[c].index = c
	}
	for i, l := range m.labels {
		st := &stats[l]
		st.members++
		st.recency += m.raw[i][0]
		st.frequency += m.raw[i][1]
		st.total += m.raw[i][2]
	}
	for c := range stats {
		if n := float64(stats[c].members); n > 0 {
			stats[c].recency /= n
			stats[c].frequency /= n
			stats[c].monetary = stats[c].total / n
		}
	}

	order := rankClusters(stats)
	names := labelNames(m.k)

	segmentOf := make([]int, m.k)
	segments := make([]customersdomain.Segment, m.k)
	for p, c := range order {
		st := stats[c]
		segmentOf[c] = p
		segments[p] = customersdomain.Segment{
			ID:           p,
			Name:         names[p],
			Centroid:     m.scaler.Inverse(m.centroids[c]),
			MemberCount:  st.members,
			AvgRecency:   st.recency,
			AvgFrequency: st.frequency,
			AvgMonetary:  st.monetary,
			TotalValue:   st.total,
		}
	}

	assignments := make(map[string]int, len(m.customerIDs))
	for i, id := range m.customerIDs {
		assignments[id] = segmentOf[m.labels[i]]
	}

	return &SegmentationResult{
		Segments:        segments,
		Assignments:     assignments,
		K:               m.k,
		SelectionMethod: m.method,
		Candidates:      append([]int(nil), m.candidates...),
		Inertias:        append([]float64(nil), m.inertias...),
		Silhouettes:     append([]float64(nil), m.silhouettes...),
		TotalCustomers:  len(m.customerIDs),
	}
}

func rankClusters(stats []clusterStats) []int {
	k := len(stats)
	byMonetary := make([]int, k)
	byRecency := make([]int, k)
	for i := range byMonetary {
		byMonetary[i], byRecency[i] = i, i
	}
	sort.SliceStable(byMonetary, func(a, b int) bool {
		return stats[byMonetary[a]].monetary > stats[byMonetary[b]].monetary
	})
	sort.SliceStable(byRecency, func(a, b int) bool {
		return stats[byRecency[a]].recency < stats[byRecency[b]].recency
	})

	score := make([]int, k)
	for rank, c := range byMonetary {
		score[c] += rank
	}
	for rank, c := range byRecency {
		score[c] += rank
	}

	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := order[a], order[b]
		if score[ca] != score[cb] {
			return score[ca] < score[cb]
		}
		if stats[ca].monetary != stats[cb].monetary {
			return stats[ca].monetary > stats[cb].monetary
		}
		return ca < cb
	})
	return order
}

// labelNames noms des k positions ordinales, suffixés " II", " III"... en cas de doublon
func labelNames(k int) []string {
	taxonomy := customersdomain.SegmentTaxonomy
	last := len(taxonomy) - 1
	names := make([]string, k)
	seen := make(map[string]int)
	for p := 0; p < k; p++ {
		idx := 0
		if k > 1 {
			idx = int(math.Round(float64(p) * float64(last) / float64(k-1)))
		}
		name := taxonomy[idx]
		seen[name]++
		if n := seen[name]; n > 1 {
			name += " " + roman(n)
		}
		names[p] = name
	}
	return names
}

func roman(n int) string {
	numerals := []string{"", "I", "II", "III", "IV", "V", "VI", "VII", "VIII", "IX", "X"}
	if n < len(numerals) {
		return numerals[n]
	}
	return fmt.Sprintf("%d", n)
}
