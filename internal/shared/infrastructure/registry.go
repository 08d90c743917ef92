package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"demandinsights/internal/shared/domain"
)

// TrainFunc entraîne un modèle pour une empreinte de données absente du registre
type TrainFunc func(ctx context.Context) (*domain.TrainedModel, error)

// Registry interface pour l'abstraction du registre de modèles
type Registry interface {
	GetOrTrain(ctx context.Context, kind, fingerprint string, train TrainFunc) (*domain.ModelArtifact, error)
	Current(kind string) (*domain.ModelArtifact, bool)
}

// ModelRegistry cache local au processus: (type de modèle, empreinte) -> artefact entraîné
//
//   - LRU borné: la mémoire du processus hôte reste plafonnée
//   - singleflight par clé: deux requêtes concurrentes sur la même empreinte
//     non cachée ne déclenchent qu'un seul entraînement, la seconde attend;
//     si le premier appelant est annulé, l'attente reprend sous le contexte du second
//   - un artefact n'est publié qu'une fois complet (pointeur ajouté au LRU sous verrou)
//
// Rien n'est persisté: le registre disparaît avec le processus.
type ModelRegistry struct {
	entries *lru.Cache
	group   singleflight.Group
	logger  *zap.Logger

	mu      sync.RWMutex
	current map[string]*domain.ModelArtifact
}

// NewModelRegistry crée un registre pouvant contenir `capacity` artefacts
func NewModelRegistry(capacity int, logger *zap.Logger) (*ModelRegistry, error) {
	if capacity <= 0 {
		return nil, domain.NewValidationError("registry_capacity", "must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("create registry cache: %w", err)
	}
	return &ModelRegistry{
		entries: entries,
		logger:  logger,
		current: make(map[string]*domain.ModelArtifact),
	}, nil
}

// GetOrTrain retourne l'artefact caché pour (kind, fingerprint) ou l'entraîne
// Une erreur d'entraînement n'est jamais avalée: rien n'est stocké et l'artefact
// précédent (s'il existe) reste inchangé.
func (r *ModelRegistry) GetOrTrain(
	ctx context.Context,
	kind, fingerprint string,
	train TrainFunc,
) (*domain.ModelArtifact, error) {
	if kind == "" || fingerprint == "" {
		return nil, domain.NewValidationError("registry_key", "kind and fingerprint are required")
	}
	key := NewCacheKeyBuilder().Add(kind).Add(fingerprint).Build()

	if artifact, ok := r.lookup(key); ok {
		registryLookups.WithLabelValues(kind, "hit").Inc()
		return artifact, nil
	}

	for {
		ran := false
		ch := r.group.DoChan(key, func() (interface{}, error) {
			ran = true
			// Un autre appel a pu publier l'artefact entre le lookup et le DoChan
			if artifact, ok := r.lookup(key); ok {
				return artifact, nil
			}
			registryLookups.WithLabelValues(kind, "miss").Inc()
			return r.train(ctx, kind, fingerprint, key, train)
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res = <-ch:
		}

		if res.Err != nil {
			// Entraînement interrompu par le contexte d'un autre appelant: le nôtre
			// est encore valide, on relance (ou on rejoint) un entraînement
			if !ran && ctx.Err() == nil && isCancellation(res.Err) {
				registryLookups.WithLabelValues(kind, "retry").Inc()
				continue
			}
			return nil, res.Err
		}
		if res.Shared && !ran {
			registryLookups.WithLabelValues(kind, "shared").Inc()
		}
		return res.Val.(*domain.ModelArtifact), nil
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, domain.ErrTimeout)
}

func (r *ModelRegistry) train(
	ctx context.Context,
	kind, fingerprint, key string,
	train TrainFunc,
) (*domain.ModelArtifact, error) {
	start := time.Now()
	trained, err := train(ctx)
	elapsed := time.Since(start)
	trainingDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if err != nil {
		trainingFailures.WithLabelValues(kind).Inc()
		r.logger.Warn("model training failed",
			zap.String("kind", kind),
			zap.String("fingerprint", fingerprint),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}
	if trained == nil || trained.Model == nil {
		trainingFailures.WithLabelValues(kind).Inc()
		return nil, domain.NewModelTrainingError(kind, "training function returned no model", nil)
	}

	artifact := &domain.ModelArtifact{
		ID:                 uuid.NewString(),
		Kind:               kind,
		DataFingerprint:    fingerprint,
		TrainedAt:          time.Now().UTC(),
		ValidationMetrics:  copyMetrics(trained.ValidationMetrics),
		FeatureImportances: append([]domain.FeatureImportance(nil), trained.FeatureImportances...),
		Model:              trained.Model,
	}

	r.mu.Lock()
	r.entries.Add(key, artifact)
	previous := r.current[kind]
	r.current[kind] = artifact
	r.mu.Unlock()

	fields := []zap.Field{
		zap.String("kind", kind),
		zap.String("fingerprint", fingerprint),
		zap.String("artifact_id", artifact.ID),
		zap.Duration("elapsed", elapsed),
	}
	if previous != nil && previous.DataFingerprint != fingerprint {
		fields = append(fields, zap.String("replaced_fingerprint", previous.DataFingerprint))
	}
	r.logger.Info("model trained", fields...)

	return artifact, nil
}

// Current retourne le dernier artefact publié pour un type de modèle
func (r *ModelRegistry) Current(kind string) (*domain.ModelArtifact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	artifact, ok := r.current[kind]
	return artifact, ok
}

// Len retourne le nombre d'artefacts en cache
func (r *ModelRegistry) Len() int {
	return r.entries.Len()
}

// Purge vide complètement le registre
func (r *ModelRegistry) Purge() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries.Purge()
	r.current = make(map[string]*domain.ModelArtifact)
}

func (r *ModelRegistry) lookup(key string) (*domain.ModelArtifact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok := r.entries.Get(key)
	if !ok {
		return nil, false
	}
	return value.(*domain.ModelArtifact), true
}

func copyMetrics(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// CacheKeyBuilder aide à construire des clés de cache cohérentes
type CacheKeyBuilder struct {
	parts []string
}

// NewCacheKeyBuilder crée un nouveau builder de clé
func NewCacheKeyBuilder() *CacheKeyBuilder {
	return &CacheKeyBuilder{
		parts: make([]string, 0, 4),
	}
}

// Add ajoute une partie à la clé
func (b *CacheKeyBuilder) Add(part string) *CacheKeyBuilder {
	b.parts = append(b.parts, part)
	return b
}

// AddInt ajoute un entier à la clé
func (b *CacheKeyBuilder) AddInt(value int) *CacheKeyBuilder {
	b.parts = append(b.parts, fmt.Sprintf("%d", value))
	return b
}

// Build construit la clé finale
func (b *CacheKeyBuilder) Build() string {
	return strings.Join(b.parts, ":")
}
