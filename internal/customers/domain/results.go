package domain

// Taxonomie des segments RFM, du meilleur au moins bon
var SegmentTaxonomy = []string{
	"Champions",
	"Loyal",
	"Potential Loyalist",
	"At Risk",
	"Hibernating",
	"Lost",
}

// Segment groupe de clients issu du clustering RFM
// Centroid: (récence, fréquence, monétaire) en unités d'origine.
type Segment struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Centroid     []float64 `json:"centroid"`
	MemberCount  int       `json:"member_count"`
	AvgRecency   float64   `json:"avg_recency"`
	AvgFrequency float64   `json:"avg_frequency"`
	AvgMonetary  float64   `json:"avg_monetary"`
	TotalValue   float64   `json:"total_value"`
}

// CLVSegment quartile de valeur vie client dans le lot courant
type CLVSegment string

const (
	CLVLow      CLVSegment = "Low"
	CLVMedium   CLVSegment = "Medium"
	CLVHigh     CLVSegment = "High"
	CLVVeryHigh CLVSegment = "Very High"
)

// CLVQuartiles bornes des segments CLV du lot (interpolation linéaire)
type CLVQuartiles struct {
	Q1 float64 `json:"q1"`
	Q2 float64 `json:"q2"`
	Q3 float64 `json:"q3"`
}

// Segment segment d'une valeur: <= q1 Low, <= q2 Medium, <= q3 High, sinon Very High
func (q CLVQuartiles) Segment(v float64) CLVSegment {
	switch {
	case v <= q.Q1:
		return CLVLow
	case v <= q.Q2:
		return CLVMedium
	case v <= q.Q3:
		return CLVHigh
	default:
		return CLVVeryHigh
	}
}

// CLVResult valeur vie client prédite
type CLVResult struct {
	CustomerID     string     `json:"customer_id"`
	PredictedCLV   float64    `json:"predicted_clv"`
	CLVSegment     CLVSegment `json:"clv_segment"`
	SimpleEstimate bool       `json:"simple_estimate"`
}

// RiskLevel palier de risque de churn
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

// RiskLevelFor classe une probabilité: [0,.25) Low, [.25,.5) Medium, [.5,.75) High, [.75,1] Critical
func RiskLevelFor(probability float64) RiskLevel {
	switch {
	case probability >= 0.75:
		return RiskCritical
	case probability >= 0.5:
		return RiskHigh
	case probability >= 0.25:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ChurnFactor contribution signée d'une feature (en log-odds) à une prédiction
type ChurnFactor struct {
	Feature      string  `json:"feature"`
	Contribution float64 `json:"contribution"`
}

// ChurnResult probabilité de churn d'un client
type ChurnResult struct {
	CustomerID       string        `json:"customer_id"`
	ChurnProbability float64       `json:"churn_probability"`
	RiskLevel        RiskLevel     `json:"risk_level"`
	TopFactors       []ChurnFactor `json:"top_factors"`
}

// ChurnSummary agrégats d'un lot de prédictions de churn
type ChurnSummary struct {
	TotalCustomers      int     `json:"total_customers"`
	AtRiskPercentage    float64 `json:"at_risk_percentage"`
	AvgChurnProbability float64 `json:"avg_churn_probability"`
}
