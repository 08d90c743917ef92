package domain

import (
	"time"

	customersdomain "demandinsights/internal/customers/domain"
	"demandinsights/internal/ml"
)

// CustomerFeature extraction d'une feature nommée depuis un CustomerRecord
type CustomerFeature struct {
	Name  string
	Value func(c customersdomain.CustomerRecord) float64
}

var (
	featRecency      = CustomerFeature{"recency_days", func(c customersdomain.CustomerRecord) float64 { return c.RecencyDays }}
	featFrequency    = CustomerFeature{"frequency", func(c customersdomain.CustomerRecord) float64 { return c.Frequency }}
	featMonetary     = CustomerFeature{"monetary", func(c customersdomain.CustomerRecord) float64 { return c.Monetary }}
	featAOV          = CustomerFeature{"avg_order_value", func(c customersdomain.CustomerRecord) float64 { return c.AvgOrderValue }}
	featTenure       = CustomerFeature{"tenure_days", func(c customersdomain.CustomerRecord) float64 { return c.TenureDays }}
	featPerYear      = CustomerFeature{"purchases_per_year", func(c customersdomain.CustomerRecord) float64 { return c.PurchasesPerYear }}
	featEngagement   = CustomerFeature{"engagement_score", func(c customersdomain.CustomerRecord) float64 { return c.EngagementScore }}
	featSatisfaction = CustomerFeature{"satisfaction_score", func(c customersdomain.CustomerRecord) float64 { return c.SatisfactionScore }}
	featInactive     = CustomerFeature{"inactive", customersdomain.CustomerRecord.InactiveFlag}
	featRecencyRatio = CustomerFeature{"recency_ratio", customersdomain.CustomerRecord.RecencyRatio}
)

// Jeux de features par modèle
var (
	RFMFeatures = []CustomerFeature{featRecency, featFrequency, featMonetary}

	CLVFeatures = []CustomerFeature{
		featRecency, featFrequency, featMonetary, featAOV,
		featTenure, featPerYear, featEngagement, featSatisfaction,
	}

	ChurnFeatures = []CustomerFeature{
		featRecency, featFrequency, featMonetary, featAOV, featEngagement,
		featSatisfaction, featTenure, featInactive, featRecencyRatio,
	}

	// ChurnProxyFeatures sans récence ni ratio de récence: le label proxy en est
	// une fonction directe
	ChurnProxyFeatures = []CustomerFeature{
		featFrequency, featMonetary, featAOV, featEngagement,
		featSatisfaction, featTenure, featInactive,
	}
)

// FeatureNames noms d'un jeu de features
func FeatureNames(features []CustomerFeature) []string {
	names := make([]string, len(features))
	for i, f := range features {
		names[i] = f.Name
	}
	return names
}

// CustomerFrame instantanés clients calculés à une date d'analyse, triés par identifiant
type CustomerFrame struct {
	AsOf       time.Time
	WindowDays int
	Customers  []customersdomain.CustomerRecord
}

// Active clients ayant au moins une commande dans la fenêtre RFM
func (f *CustomerFrame) Active() []customersdomain.CustomerRecord {
	active := make([]customersdomain.CustomerRecord, 0, len(f.Customers))
	for _, c := range f.Customers {
		if !c.Inactive {
			active = append(active, c)
		}
	}
	return active
}

// LabeledCLV nombre de clients portant une CLV observée
func (f *CustomerFrame) LabeledCLV() int {
	n := 0
	for _, c := range f.Customers {
		if !c.Inactive && c.ObservedCLV != nil {
			n++
		}
	}
	return n
}

// LabeledChurn nombre de clients portant un label de churn observé
func (f *CustomerFrame) LabeledChurn() int {
	n := 0
	for _, c := range f.Customers {
		if c.Churned != nil {
			n++
		}
	}
	return n
}

// Project construit le FeatureFrame d'un sous-ensemble de clients
func Project(records []customersdomain.CustomerRecord, features []CustomerFeature) (*FeatureFrame, error) {
	rows := make([]FeatureRow, len(records))
	for i, c := range records {
		values := make([]float64, len(features))
		for j, f := range features {
			values[j] = f.Value(c)
		}
		rows[i] = FeatureRow{EntityID: c.CustomerID, Values: values}
	}
	return NewFeatureFrame(FeatureNames(features), rows)
}

// Fingerprint empreinte des clients et de leurs labels pour un type de modèle
func (f *CustomerFrame) Fingerprint(kind string) string {
	fp := ml.NewFingerprinter().String(kind).Time(f.AsOf).Int(f.WindowDays).Int(len(f.Customers))
	for _, c := range f.Customers {
		fp.String(c.CustomerID).Floats([]float64{
			c.RecencyDays, c.Frequency, c.Monetary, c.EngagementScore, c.SatisfactionScore,
			c.AvgOrderValue, c.TenureDays, c.PurchasesPerYear, c.MeanGapDays, c.InactiveFlag(),
		})
		if c.ObservedCLV != nil {
			fp.Float(*c.ObservedCLV)
		} else {
			fp.Float(-1)
		}
		switch {
		case c.Churned == nil:
			fp.Int(-1)
		case *c.Churned:
			fp.Int(1)
		default:
			fp.Int(0)
		}
	}
	return fp.Sum()
}
