package domain

// CustomerRecord instantané comportemental d'un client, calculé à chaque analyse
type CustomerRecord struct {
	CustomerID        string  `json:"customer_id"`
	RecencyDays       float64 `json:"recency_days"`
	Frequency         float64 `json:"frequency"`
	Monetary          float64 `json:"monetary"`
	EngagementScore   float64 `json:"engagement_score"`
	SatisfactionScore float64 `json:"satisfaction_score"`
	AvgOrderValue     float64 `json:"avg_order_value"`
	TenureDays        float64 `json:"tenure_days"`
	PurchasesPerYear  float64 `json:"purchases_per_year"`
	MeanGapDays       float64 `json:"mean_gap_days"`
	// Inactive aucun achat dans la fenêtre RFM: exclu des modèles RFM, gardé pour le churn
	Inactive bool `json:"inactive"`

	// Labels observés sur une fenêtre de holdout (absents hors entraînement supervisé)
	ObservedCLV *float64 `json:"observed_clv,omitempty"`
	Churned     *bool    `json:"churned,omitempty"`
}

// RecencyRatio récence rapportée à l'intervalle moyen entre deux achats
func (c CustomerRecord) RecencyRatio() float64 {
	if c.MeanGapDays <= 0 {
		return c.RecencyDays / 365
	}
	return c.RecencyDays / c.MeanGapDays
}

// InactiveFlag retourne 1 pour un client inactif, 0 sinon
func (c CustomerRecord) InactiveFlag() float64 {
	if c.Inactive {
		return 1
	}
	return 0
}
