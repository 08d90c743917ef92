package domain

import "sort"

// Recommandations de prix
const (
	RecommendIncrease = "Increase price"
	RecommendDecrease = "Decrease price"
	RecommendMaintain = "Maintain current price"
)

// HeuristicMarkupNote marge conservatrice appliquée quand la demande n'est pas assez élastique
const HeuristicMarkupNote = "demand not elastic enough for a finite profit optimum; conservative 50% markup applied"

// PriceImpact effet estimé du prix recommandé
type PriceImpact struct {
	QuantityChangePct float64  `json:"quantity_change_pct"`
	RevenueChangePct  float64  `json:"revenue_change_pct"`
	ProfitChangePct   *float64 `json:"profit_change_pct"`
	EstimatedQuantity float64  `json:"estimated_quantity"`
	EstimatedRevenue  float64  `json:"estimated_revenue"`
	EstimatedProfit   float64  `json:"estimated_profit"`
}

// CurrentMetrics situation au prix actuel
type CurrentMetrics struct {
	Quantity  float64 `json:"quantity"`
	Revenue   float64 `json:"revenue"`
	Profit    float64 `json:"profit"`
	MarginPct float64 `json:"margin_pct"`
}

// PriceRecommendation prix maximisant le profit pour une élasticité donnée
type PriceRecommendation struct {
	ProductID       string         `json:"product_id"`
	CurrentPrice    float64        `json:"current_price"`
	OptimalPrice    float64        `json:"optimal_price"`
	PriceChangePct  float64        `json:"price_change_pct"`
	Recommendation  string         `json:"recommendation"`
	ElasticityUsed  float64        `json:"elasticity_used"`
	Heuristic       bool           `json:"heuristic"`
	Note            string         `json:"note,omitempty"`
	EstimatedImpact PriceImpact    `json:"estimated_impact"`
	CurrentMetrics  CurrentMetrics `json:"current_metrics"`
}

// SensitivityPoint demande et revenu estimés à un prix
type SensitivityPoint struct {
	Price             float64 `json:"price"`
	EstimatedQuantity float64 `json:"estimated_quantity"`
	EstimatedRevenue  float64 `json:"estimated_revenue"`
	PriceChangePct    float64 `json:"price_change_pct"`
}

// SensitivityCurve courbe de sensibilité autour du prix moyen observé
type SensitivityCurve struct {
	ProductID              string             `json:"product_id"`
	BasePrice              float64            `json:"base_price"`
	BaseQuantity           float64            `json:"base_quantity"`
	Elasticity             float64            `json:"elasticity"`
	Points                 []SensitivityPoint `json:"sensitivity_curve"`
	RevenueMaximizingPrice float64            `json:"revenue_maximizing_price"`
	MaxEstimatedRevenue    float64            `json:"max_estimated_revenue"`
}

// Skipped produit écarté d'une analyse groupée, avec la raison
type Skipped struct {
	ProductID string `json:"product_id"`
	Reason    string `json:"reason"`
}

// PricePointsFromSales convertit des ventes en couples (prix, quantité)
func PricePointsFromSales(sales []SalesRecord) []PricePoint {
	out := make([]PricePoint, len(sales))
	for i, s := range sales {
		out[i] = PricePoint{ProductID: s.ProductID, Date: s.Date, Price: s.Price, Quantity: s.Quantity}
	}
	return out
}

// GroupByProduct regroupe l'historique par produit, identifiants triés
func GroupByProduct(history []PricePoint) ([]string, map[string][]PricePoint) {
	groups := make(map[string][]PricePoint)
	for _, p := range history {
		groups[p.ProductID] = append(groups[p.ProductID], p)
	}
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, groups
}
