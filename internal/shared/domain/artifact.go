package domain

import "time"

// FeatureImportance associe une feature à son poids dans un modèle entraîné
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// ModelArtifact représente un modèle entraîné pour une empreinte de données
// Un artefact n'est jamais modifié après sa création: un nouvel entraînement
// produit un nouvel objet qui remplace l'ancien dans le registre.
type ModelArtifact struct {
	ID                 string              `json:"id"`
	Kind               string              `json:"kind"`
	DataFingerprint    string              `json:"data_fingerprint"`
	TrainedAt          time.Time           `json:"trained_at"`
	ValidationMetrics  map[string]float64  `json:"validation_metrics"`
	FeatureImportances []FeatureImportance `json:"feature_importances"`
	Model              any                 `json:"-"`
}

// Metric retourne une métrique de validation (0 si absente)
func (a *ModelArtifact) Metric(name string) float64 {
	if a == nil || a.ValidationMetrics == nil {
		return 0
	}
	return a.ValidationMetrics[name]
}

// TrainedModel est le résultat brut d'une fonction d'entraînement,
// que le registre transforme en ModelArtifact
type TrainedModel struct {
	Model              any
	ValidationMetrics  map[string]float64
	FeatureImportances []FeatureImportance
}
