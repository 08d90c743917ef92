package domain

import (
	"fmt"
	"time"

	"demandinsights/internal/ml"
	shareddomain "demandinsights/internal/shared/domain"
)

// FeatureRow vecteur de features d'une entité (client, ou produit à une date)
type FeatureRow struct {
	EntityID string
	Date     time.Time
	Values   []float64
}

// FeatureFrame collection ordonnée de vecteurs au schéma fixe
// Invariant: aucune valeur NaN ou infinie (vérifié à la construction).
type FeatureFrame struct {
	schema []string
	index  map[string]int
	rows   []FeatureRow
}

// NewFeatureFrame crée un nouveau frame après vérification des valeurs
func NewFeatureFrame(schema []string, rows []FeatureRow) (*FeatureFrame, error) {
	index := make(map[string]int, len(schema))
	for i, name := range schema {
		if _, dup := index[name]; dup {
			return nil, shareddomain.NewValidationError("schema", "duplicate feature "+name)
		}
		index[name] = i
	}
	for _, row := range rows {
		if len(row.Values) != len(schema) {
			return nil, shareddomain.NewValidationError("feature_row",
				fmt.Sprintf("entity %s has %d values, schema has %d", row.EntityID, len(row.Values), len(schema)))
		}
		for j, v := range row.Values {
			if !ml.IsFinite(v) {
				return nil, shareddomain.NewValidationError("feature_row",
					fmt.Sprintf("entity %s: feature %s is not finite", row.EntityID, schema[j]))
			}
		}
	}
	return &FeatureFrame{
		schema: append([]string(nil), schema...),
		index:  index,
		rows:   rows,
	}, nil
}

// Schema retourne les noms de features dans l'ordre des colonnes
func (f *FeatureFrame) Schema() []string {
	return append([]string(nil), f.schema...)
}

// Rows retourne les lignes du frame
func (f *FeatureFrame) Rows() []FeatureRow {
	return f.rows
}

// Len retourne le nombre de lignes
func (f *FeatureFrame) Len() int {
	return len(f.rows)
}

// Index position d'une feature dans le schéma (-1 si absente)
func (f *FeatureFrame) Index(name string) int {
	if i, ok := f.index[name]; ok {
		return i
	}
	return -1
}

// Matrix retourne les valeurs sous forme de matrice (lignes partagées, non copiées)
func (f *FeatureFrame) Matrix() [][]float64 {
	X := make([][]float64, len(f.rows))
	for i, row := range f.rows {
		X[i] = row.Values
	}
	return X
}

// Column retourne une colonne par son nom
func (f *FeatureFrame) Column(name string) ([]float64, error) {
	j := f.Index(name)
	if j < 0 {
		return nil, shareddomain.NewValidationError("feature", "unknown feature "+name)
	}
	col := make([]float64, len(f.rows))
	for i, row := range f.rows {
		col[i] = row.Values[j]
	}
	return col, nil
}

// Fingerprint empreinte du frame: nombre de lignes, bornes de dates et contenu
func (f *FeatureFrame) Fingerprint() string {
	fp := ml.NewFingerprinter().Int(len(f.rows))
	for _, name := range f.schema {
		fp.String(name)
	}
	if len(f.rows) > 0 {
		fp.Time(f.rows[0].Date).Time(f.rows[len(f.rows)-1].Date)
	}
	for _, row := range f.rows {
		fp.String(row.EntityID).Floats(row.Values)
	}
	return fp.Sum()
}
