package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"

	customersdomain "demandinsights/internal/customers/domain"
	demanddomain "demandinsights/internal/demand/domain"
	shareddomain "demandinsights/internal/shared/domain"
	sharedinfra "demandinsights/internal/shared/infrastructure"
)

// relationName nom de vue ou table, éventuellement qualifié par un schéma
var relationName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// OpenPostgres ouvre un pool de connexions vers l'entrepôt (lecture seule)
func OpenPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// SQLSource lit des jeux de lignes déjà matérialisés (vues, tables d'export)
// Pas de pagination ni de retry: la requête est exécutée une fois.
type SQLSource struct {
	sharedinfra.BaseRepository
}

// NewSQLSource crée une nouvelle instance de SQLSource
func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{BaseRepository: sharedinfra.NewBaseRepository(db)}
}

// WithContext utilise ctx pour les requêtes suivantes
func (s *SQLSource) WithContext(ctx context.Context) sharedinfra.QueryRepository {
	s.SetContext(ctx)
	return s
}

// Transactions lit les transactions de relation jusqu'à asOf inclus
func (s *SQLSource) Transactions(relation string, asOf time.Time) ([]customersdomain.TransactionRecord, error) {
	if !relationName.MatchString(relation) {
		return nil, shareddomain.NewValidationError("relation", "invalid name "+relation)
	}
	query := `
		SELECT customer_id, COALESCE(order_id, ''), order_date, amount,
			COALESCE(product_id, ''), COALESCE(quantity, 0), COALESCE(unit_price, 0),
			engagement_score, satisfaction_score
		FROM ` + relation + `
		WHERE order_date <= $1
		ORDER BY order_date, customer_id`

	rows, err := s.Query(query, asOf)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", relation, err)
	}
	defer rows.Close()

	var out []customersdomain.TransactionRecord
	for rows.Next() {
		var (
			tx                       customersdomain.TransactionRecord
			engagement, satisfaction sql.NullFloat64
		)
		if err := rows.Scan(
			&tx.CustomerID, &tx.OrderID, &tx.OrderDate, &tx.Amount,
			&tx.ProductID, &tx.Quantity, &tx.UnitPrice,
			&engagement, &satisfaction,
		); err != nil {
			return nil, err
		}
		tx.OrderDate = tx.OrderDate.UTC()
		tx.EngagementScore = nullable(engagement)
		tx.SatisfactionScore = nullable(satisfaction)
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Sales lit les ventes de relation, d'un seul produit si productID est non nil
func (s *SQLSource) Sales(relation string, productID *string) ([]demanddomain.SalesRecord, error) {
	if !relationName.MatchString(relation) {
		return nil, shareddomain.NewValidationError("relation", "invalid name "+relation)
	}
	query := `SELECT product_id, date, quantity, price FROM ` + relation
	var args []interface{}
	if productID != nil {
		query += ` WHERE product_id = $1`
		args = append(args, *productID)
	}
	query += ` ORDER BY product_id, date`

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", relation, err)
	}
	defer rows.Close()

	var out []demanddomain.SalesRecord
	for rows.Next() {
		var r demanddomain.SalesRecord
		if err := rows.Scan(&r.ProductID, &r.Date, &r.Quantity, &r.Price); err != nil {
			return nil, err
		}
		r.Date = r.Date.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
