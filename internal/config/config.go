package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix préfixe des variables d'environnement (INSIGHTS_K_MAX=6...)
const EnvPrefix = "INSIGHTS"

// History policies pour les premières lignes d'une série sans historique complet
const (
	HistoryPolicyDrop     = "drop"
	HistoryPolicyBackfill = "backfill"
)

// Config regroupe toutes les options nommées du moteur
// Chaque option est typée et validée; une clé inconnue dans le fichier est rejetée.
type Config struct {
	// Segmentation
	KMin             int     `mapstructure:"k_min" validate:"gte=2"`
	KMax             int     `mapstructure:"k_max" validate:"gte=2,lte=20"`
	ElbowSensitivity float64 `mapstructure:"elbow_sensitivity" validate:"gte=0,lte=1"`

	// Prévision de la demande
	ForecastHorizonDays    int     `mapstructure:"forecast_horizon_days" validate:"gte=1"`
	MaxForecastHorizonDays int     `mapstructure:"max_forecast_horizon_days" validate:"gte=1,lte=730"`
	ValidationFraction     float64 `mapstructure:"validation_fraction" validate:"gt=0,lt=1"`
	EarlyStoppingPatience  int     `mapstructure:"early_stopping_patience" validate:"gte=1"`
	MaxBoostingRounds      int     `mapstructure:"max_boosting_rounds" validate:"gte=1,lte=5000"`
	LearningRate           float64 `mapstructure:"learning_rate" validate:"gt=0,lte=1"`
	MaxTreeDepth           int     `mapstructure:"max_tree_depth" validate:"gte=1,lte=12"`
	IntervalLowerQuantile  float64 `mapstructure:"interval_lower_quantile" validate:"gt=0,lt=0.5"`
	IntervalUpperQuantile  float64 `mapstructure:"interval_upper_quantile" validate:"gt=0.5,lt=1"`
	IntervalGrowthPerStep  float64 `mapstructure:"interval_growth_per_step" validate:"gte=0"`
	HistoryPolicy          string  `mapstructure:"history_policy" validate:"oneof=drop backfill"`

	// Churn
	ChurnThreshold      float64 `mapstructure:"churn_threshold" validate:"gte=0,lte=1"`
	ChurnInactivityDays int     `mapstructure:"churn_inactivity_days" validate:"gte=1"`

	// Élasticité prix
	ConfidenceLevel      float64 `mapstructure:"confidence_level" validate:"gt=0,lt=1"`
	MinPricePairs        int     `mapstructure:"min_price_pairs" validate:"gte=3"`
	PriceToleranceFactor float64 `mapstructure:"price_tolerance_factor" validate:"gte=1"`

	// CLV
	CLVLifespanYears float64 `mapstructure:"clv_lifespan_years" validate:"gt=0"`
	ForestTrees      int     `mapstructure:"forest_trees" validate:"gte=1,lte=1000"`

	// Features
	RandomSeed    uint64 `mapstructure:"random_seed"`
	RFMWindowDays int    `mapstructure:"rfm_window_days" validate:"gte=1"`
	MinRows       int    `mapstructure:"min_rows" validate:"gte=1"`

	// Runtime
	RegistryCapacity int           `mapstructure:"registry_capacity" validate:"gte=1"`
	Workers          int           `mapstructure:"workers" validate:"gte=1,lte=256"`
	RequestBudget    time.Duration `mapstructure:"request_budget" validate:"gt=0"`
	PhaseBudget      time.Duration `mapstructure:"phase_budget" validate:"gt=0"`

	// Ambiant
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	HTTPAddr string `mapstructure:"http_addr" validate:"required"`
}

// defaults valeurs par défaut de chaque option
var defaults = map[string]interface{}{
	"k_min":                     2,
	"k_max":                     8,
	"elbow_sensitivity":         0.10,
	"forecast_horizon_days":     30,
	"max_forecast_horizon_days": 365,
	"validation_fraction":       0.2,
	"early_stopping_patience":   10,
	"max_boosting_rounds":       500,
	"learning_rate":             0.1,
	"max_tree_depth":            4,
	"interval_lower_quantile":   0.10,
	"interval_upper_quantile":   0.90,
	"interval_growth_per_step":  0.05,
	"history_policy":            HistoryPolicyDrop,
	"churn_threshold":           0.5,
	"churn_inactivity_days":     90,
	"confidence_level":          0.95,
	"min_price_pairs":           10,
	"price_tolerance_factor":    2.0,
	"clv_lifespan_years":        3.0,
	"forest_trees":              100,
	"random_seed":               42,
	"rfm_window_days":           365,
	"min_rows":                  30,
	"registry_capacity":         64,
	"workers":                   4,
	"request_budget":            "300s",
	"phase_budget":              "120s",
	"log_level":                 "info",
	"http_addr":                 ":8080",
}

// Default retourne la configuration par défaut, déjà validée
func Default() Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic("default configuration is invalid: " + err.Error())
	}
	return cfg
}

// Load charge .env (si présent), le fichier YAML optionnel puis les variables
// d'environnement INSIGHTS_*; les options inconnues sont rejetées
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return decode(v)
}

// FromMap construit une configuration à partir d'options nommées (requêtes, tests)
func FromMap(options map[string]interface{}) (Config, error) {
	v := newViper()
	if err := v.MergeConfigMap(options); err != nil {
		return Config{}, fmt.Errorf("merge options: %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate vérifie les contraintes par option et entre options
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.KMin > c.KMax {
		return fmt.Errorf("invalid config: k_min (%d) must not exceed k_max (%d)", c.KMin, c.KMax)
	}
	if c.ForecastHorizonDays > c.MaxForecastHorizonDays {
		return fmt.Errorf("invalid config: forecast_horizon_days (%d) exceeds max_forecast_horizon_days (%d)",
			c.ForecastHorizonDays, c.MaxForecastHorizonDays)
	}
	if c.PhaseBudget > c.RequestBudget {
		return fmt.Errorf("invalid config: phase_budget (%s) exceeds request_budget (%s)", c.PhaseBudget, c.RequestBudget)
	}
	return nil
}

// Getenv récupère une variable d'environnement avec fallback
func Getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
