package testhelpers

import (
	"fmt"
	"math"
	"time"

	customersdomain "demandinsights/internal/customers/domain"
	demanddomain "demandinsights/internal/demand/domain"
	featuresdomain "demandinsights/internal/features/domain"
	"demandinsights/internal/ml"
)

// AsOf date d'analyse commune aux fixtures
var AsOf = time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)

// customerProfile comportement d'achat synthétique
type customerProfile struct {
	gapDays   int
	spend     float64
	stopAfter int // jours avant AsOf où le client cesse d'acheter
}

var profiles = []customerProfile{
	{gapDays: 10, spend: 220, stopAfter: 0},  // fidèles à forte valeur
	{gapDays: 30, spend: 90, stopAfter: 0},   // réguliers
	{gapDays: 60, spend: 45, stopAfter: 0},   // occasionnels
	{gapDays: 45, spend: 60, stopAfter: 200}, // partis
	{gapDays: 90, spend: 30, stopAfter: 120}, // en sommeil
}

// Transactions génère un historique de commandes sur ~2 ans pour `customers` clients
// Un client sur deux n'a pas de scores d'engagement/satisfaction (imputation).
func Transactions(customers int, asOf time.Time, seed uint64) []customersdomain.TransactionRecord {
	rng := ml.NewRand(seed, 0)
	var out []customersdomain.TransactionRecord

	for c := 0; c < customers; c++ {
		id := fmt.Sprintf("C%04d", c)
		p := profiles[c%len(profiles)]
		stop := p.stopAfter + rng.IntN(15)
		engagement := 1 + rng.Float64()*9
		satisfaction := 1 + rng.Float64()*4

		for d := 700 - rng.IntN(60); d >= stop; d -= p.gapDays/2 + rng.IntN(p.gapDays) + 1 {
			quantity := float64(1 + rng.IntN(3))
			amount := math.Round(p.spend*(0.5+rng.Float64())*100) / 100
			tx := customersdomain.TransactionRecord{
				CustomerID: id,
				OrderID:    fmt.Sprintf("%s-%d", id, d),
				OrderDate:  asOf.AddDate(0, 0, -d),
				Amount:     amount,
				ProductID:  fmt.Sprintf("P%02d", rng.IntN(5)),
				Quantity:   quantity,
				UnitPrice:  amount / quantity,
			}
			if c%2 == 0 {
				tx.EngagementScore = Float(engagement)
				tx.SatisfactionScore = Float(satisfaction)
			}
			out = append(out, tx)
		}
	}
	return out
}

// DailySales génère `days` jours de ventes se terminant à `end` (saisonnalité annuelle
// et hebdomadaire, promotions périodiques avec effet prix, bruit gaussien)
func DailySales(productID string, days int, end time.Time, seed uint64) []demanddomain.SalesRecord {
	rng := ml.NewRand(seed, 1)
	out := make([]demanddomain.SalesRecord, 0, days)
	start := end.AddDate(0, 0, -(days - 1))

	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i)
		price := 20.0
		if i%14 < 3 {
			price = 16
		}
		base := 50 + 10*math.Sin(2*math.Pi*float64(date.YearDay())/365.25)
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			base += 8
		}
		quantity := base*math.Pow(price/20, -1.5) + rng.NormFloat64()*3
		out = append(out, demanddomain.SalesRecord{
			ProductID: productID,
			Date:      date,
			Quantity:  math.Max(0, math.Round(quantity)),
			Price:     price,
		})
	}
	return out
}

// PriceHistory construit un historique (prix, quantité) à partir de couples
func PriceHistory(productID string, pairs [][2]float64) []demanddomain.PricePoint {
	out := make([]demanddomain.PricePoint, len(pairs))
	for i, p := range pairs {
		out[i] = demanddomain.PricePoint{
			ProductID: productID,
			Date:      AsOf.AddDate(0, 0, -7*(len(pairs)-i)),
			Price:     p[0],
			Quantity:  p[1],
		}
	}
	return out
}

// NoisyPriceHistory historique suivant Q = e^a·P^b avec bruit multiplicatif
func NoisyPriceHistory(productID string, n int, elasticity float64, seed uint64) []demanddomain.PricePoint {
	rng := ml.NewRand(seed, 2)
	out := make([]demanddomain.PricePoint, n)
	for i := range out {
		price := 5 + rng.Float64()*15
		quantity := math.Exp(6+elasticity*math.Log(price)) * math.Exp(rng.NormFloat64()*0.05)
		out[i] = demanddomain.PricePoint{
			ProductID: productID,
			Date:      AsOf.AddDate(0, 0, -i),
			Price:     price,
			Quantity:  quantity,
		}
	}
	return out
}

// RFMFrame frame de `n` clients actifs: récence dans [1,365], fréquence dans [1,20],
// monétaire dans [10,5000]
func RFMFrame(n int, seed uint64) *featuresdomain.CustomerFrame {
	rng := ml.NewRand(seed, 3)
	customers := make([]customersdomain.CustomerRecord, n)
	for i := range customers {
		frequency := float64(1 + rng.IntN(20))
		monetary := 10 + rng.Float64()*4990
		customers[i] = customersdomain.CustomerRecord{
			CustomerID:        fmt.Sprintf("C%04d", i),
			RecencyDays:       float64(1 + rng.IntN(365)),
			Frequency:         frequency,
			Monetary:          monetary,
			AvgOrderValue:     monetary / frequency,
			PurchasesPerYear:  frequency,
			TenureDays:        float64(365 + rng.IntN(365)),
			EngagementScore:   rng.Float64() * 10,
			SatisfactionScore: 1 + rng.Float64()*4,
		}
	}
	return &featuresdomain.CustomerFrame{
		AsOf:       AsOf,
		WindowDays: 365,
		Customers:  customers,
	}
}
