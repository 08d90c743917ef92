package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/schollz/progressbar/v3"

	customersdomain "demandinsights/internal/customers/domain"
	demanddomain "demandinsights/internal/demand/domain"
	"demandinsights/internal/ml"
)

// profile comportement d'achat d'une population de clients
type profile struct {
	name      string
	weight    float64
	gapDays   int     // intervalle moyen entre deux commandes
	spend     float64 // panier moyen
	churnRate float64 // part des clients qui arrêtent d'acheter
}

var profiles = []profile{
	{name: "champions", weight: 0.10, gapDays: 12, spend: 180, churnRate: 0.05},
	{name: "loyal", weight: 0.25, gapDays: 30, spend: 90, churnRate: 0.10},
	{name: "occasional", weight: 0.35, gapDays: 75, spend: 50, churnRate: 0.30},
	{name: "one_shot", weight: 0.30, gapDays: 240, spend: 35, churnRate: 0.70},
}

// Options paramètres de génération
type Options struct {
	Customers int
	Products  int
	Years     int
	End       time.Time
	Seed      uint64
	Progress  bool
}

// Generator produit des jeux de données synthétiques reproductibles
type Generator struct {
	opts  Options
	rng   *rand.Rand
	price []float64 // prix catalogue par produit
	elast []float64 // élasticité réelle par produit
}

// NewGenerator crée une nouvelle instance de Generator
func NewGenerator(opts Options) *Generator {
	rng := ml.NewRand(opts.Seed, 0)
	g := &Generator{
		opts:  opts,
		rng:   rng,
		price: make([]float64, opts.Products),
		elast: make([]float64, opts.Products),
	}
	for p := range g.price {
		g.price[p] = math.Round((5+rng.Float64()*45)*100) / 100
		g.elast[p] = -0.4 - rng.Float64()*2.2
	}
	return g
}

func productID(p int) string {
	return fmt.Sprintf("P%03d", p)
}

func (g *Generator) bar(total int, description string) *progressbar.ProgressBar {
	if !g.opts.Progress {
		return progressbar.DefaultSilent(int64(total), description)
	}
	return progressbar.Default(int64(total), description)
}

func (g *Generator) pickProfile() profile {
	r := g.rng.Float64()
	for _, p := range profiles {
		if r < p.weight {
			return p
		}
		r -= p.weight
	}
	return profiles[len(profiles)-1]
}

// ============================================================================
// TRANSACTIONS
//
// Chaque client tire un profil, une date d'arrivée dans la fenêtre et, selon le
// taux de churn du profil, une date d'arrêt. Une commande contient 1 à 4 lignes;
// un client sur trois n'a pas de scores d'engagement/satisfaction.
// ============================================================================
func (g *Generator) Transactions() []customersdomain.TransactionRecord {
	days := g.opts.Years * 365
	bar := g.bar(g.opts.Customers, "transactions")
	defer bar.Finish()

	out := make([]customersdomain.TransactionRecord, 0, g.opts.Customers*8)
	for c := 0; c < g.opts.Customers; c++ {
		id := fmt.Sprintf("C%06d", c)
		p := g.pickProfile()

		first := g.rng.IntN(days)
		last := 0
		if g.rng.Float64() < p.churnRate {
			last = g.rng.IntN(first + 1)
		}
		var engagement, satisfaction *float64
		if c%3 != 0 {
			e := math.Round((1+g.rng.Float64()*9)*10) / 10
			s := math.Round((1+g.rng.Float64()*4)*10) / 10
			engagement, satisfaction = &e, &s
		}

		order := 0
		for d := first; d >= last; d -= 1 + int(float64(p.gapDays)*g.rng.ExpFloat64()) {
			date := g.opts.End.AddDate(0, 0, -d)
			orderID := fmt.Sprintf("%s-%04d", id, order)
			order++
			lines := 1 + g.rng.IntN(4)
			for line := 0; line < lines; line++ {
				prod := g.rng.IntN(g.opts.Products)
				quantity := float64(1 + g.rng.IntN(3))
				unit := g.price[prod] * (0.9 + g.rng.Float64()*0.2) * p.spend / 90
				unit = math.Round(unit*100) / 100
				out = append(out, customersdomain.TransactionRecord{
					CustomerID:        id,
					OrderID:           orderID,
					OrderDate:         date,
					Amount:            math.Round(unit*quantity*100) / 100,
					ProductID:         productID(prod),
					Quantity:          quantity,
					UnitPrice:         unit,
					EngagementScore:   engagement,
					SatisfactionScore: satisfaction,
				})
			}
		}
		_ = bar.Add(1)
	}
	return out
}

// ============================================================================
// VENTES JOURNALIÈRES
//
// Demande de base avec saisonnalité annuelle et hebdomadaire; promotions de 3
// jours toutes les 2 à 6 semaines; la quantité suit Q ∝ P^b (b élasticité du
// produit) avec bruit gaussien, tronquée à 0.
// ============================================================================
func (g *Generator) Sales() []demanddomain.SalesRecord {
	days := g.opts.Years * 365
	start := g.opts.End.AddDate(0, 0, -(days - 1))
	bar := g.bar(g.opts.Products, "sales")
	defer bar.Finish()

	out := make([]demanddomain.SalesRecord, 0, g.opts.Products*days)
	for prod := 0; prod < g.opts.Products; prod++ {
		base := 20 + g.rng.Float64()*80
		list := g.price[prod]
		promoEvery := 14 + g.rng.IntN(29)

		for i := 0; i < days; i++ {
			date := start.AddDate(0, 0, i)
			price := list
			if i%promoEvery < 3 {
				price = math.Round(list*(0.7+g.rng.Float64()*0.2)*100) / 100
			}
			level := base * (1 + 0.25*math.Sin(2*math.Pi*float64(date.YearDay())/365.25))
			if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
				level *= 1.3
			}
			quantity := level*math.Pow(price/list, g.elast[prod]) + g.rng.NormFloat64()*math.Sqrt(level)
			out = append(out, demanddomain.SalesRecord{
				ProductID: productID(prod),
				Date:      date,
				Quantity:  math.Max(0, math.Round(quantity)),
				Price:     price,
			})
		}
		_ = bar.Add(1)
	}
	return out
}
