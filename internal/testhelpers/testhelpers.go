package testhelpers

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"demandinsights/internal/config"
)

// TestConfig configuration par défaut avec surcharges nommées
func TestConfig(tb testing.TB, overrides map[string]interface{}) config.Config {
	tb.Helper()

	if len(overrides) == 0 {
		return config.Default()
	}
	cfg, err := config.FromMap(overrides)
	require.NoError(tb, err)
	return cfg
}

// Float retourne un pointeur vers v
func Float(v float64) *float64 {
	return &v
}

// String retourne un pointeur vers s
func String(s string) *string {
	return &s
}

// SetupTestDB ouvre une connexion vers la base de test, ou skip si elle est indisponible
func SetupTestDB(tb testing.TB) *sql.DB {
	tb.Helper()

	// Charger les variables d'environnement
	_ = godotenv.Load("../../../.env")

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_USER", "insights"),
		getEnv("DB_PASSWORD", "insights"),
		getEnv("DB_NAME", "insights_test"),
		getEnv("DB_SSLMODE", "disable"),
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		tb.Skip("Database not available:", err)
	}
	db.SetMaxOpenConns(5)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		tb.Skip("Database not available:", err)
	}
	tb.Cleanup(func() { _ = db.Close() })

	return db
}

// getEnv récupère une variable d'environnement avec fallback
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
