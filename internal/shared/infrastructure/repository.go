package infrastructure

import (
	"context"
	"database/sql"
)

// QueryRepository interface de base pour les opérations de lecture
type QueryRepository interface {
	// WithContext permet d'ajouter un contexte pour l'annulation/timeout
	WithContext(ctx context.Context) QueryRepository
}

// BaseRepository structure de base pour les sources de lignes SQL
// Le moteur ne fait que lire des jeux de lignes déjà matérialisés (vues, tables
// d'export): pas d'écriture, pas de transaction.
type BaseRepository struct {
	db  *sql.DB
	ctx context.Context
}

// NewBaseRepository crée un nouveau repository de base
func NewBaseRepository(db *sql.DB) BaseRepository {
	return BaseRepository{
		db:  db,
		ctx: context.Background(),
	}
}

// Context retourne le contexte actuel
func (r *BaseRepository) Context() context.Context {
	return r.ctx
}

// SetContext remplace le contexte utilisé par les requêtes
func (r *BaseRepository) SetContext(ctx context.Context) {
	if ctx != nil {
		r.ctx = ctx
	}
}

// Query exécute une requête de lecture
func (r *BaseRepository) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return r.db.QueryContext(r.ctx, query, args...)
}

// QueryRow exécute une requête de lecture pour une seule ligne
func (r *BaseRepository) QueryRow(query string, args ...interface{}) *sql.Row {
	return r.db.QueryRowContext(r.ctx, query, args...)
}
