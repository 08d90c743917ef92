package domain

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"demandinsights/internal/ml"
)

// History policies (voir config.HistoryPolicy*)
const (
	PolicyDrop     = "drop"
	PolicyBackfill = "backfill"
)

// HistoryRequired nombre de jours d'historique nécessaires à une ligne complète: max(lag, fenêtre)
const HistoryRequired = 30

const (
	priceWindowDays   = 90
	discountThreshold = 0.95
)

var demandLags = []int{1, 7, 30}
var demandWindows = []int{7, 30}

// DemandFeatureNames schéma des lignes de demande
var DemandFeatureNames = []string{
	"lag_1", "lag_7", "lag_30",
	"rolling_mean_7", "rolling_std_7", "rolling_mean_30", "rolling_std_30",
	"doy_sin", "doy_cos", "dow_sin", "dow_cos", "month_sin", "month_cos",
	"price", "price_ratio_90", "discount",
}

// DailyPoint agrégat journalier d'une série de demande
type DailyPoint struct {
	Date     time.Time
	Quantity float64
	Price    float64
}

// DemandFrame série journalière complète et ses lignes de features
type DemandFrame struct {
	ProductID string
	Policy    string
	Series    []DailyPoint
	Frame     *FeatureFrame
	Targets   []float64
}

// Fingerprint empreinte des lignes et des cibles
func (d *DemandFrame) Fingerprint() string {
	return d.Frame.Fingerprint() + ":" + fingerprintTargets(d.ProductID, d.Targets)
}

func fingerprintTargets(product string, targets []float64) string {
	return ml.NewFingerprinter().String(product).Floats(targets).Sum()
}

// DemandFeatureRow calcule les features du jour `date` à partir de l'historique
// strictement antérieur. Les fenêtres se terminent à la veille: pas de fuite de la cible.
// ok vaut false si la politique "drop" exige plus d'historique que disponible.
func DemandFeatureRow(history []DailyPoint, date time.Time, price float64, policy string) ([]float64, bool) {
	t := len(history)
	if t == 0 || (policy != PolicyBackfill && t < HistoryRequired) {
		return nil, false
	}

	values := make([]float64, 0, len(DemandFeatureNames))
	for _, lag := range demandLags {
		i := t - lag
		if i < 0 {
			i = 0
		}
		values = append(values, history[i].Quantity)
	}

	for _, w := range demandWindows {
		start := max(0, t-w)
		window := make([]float64, 0, w)
		for _, p := range history[start:] {
			window = append(window, p.Quantity)
		}
		mean, std := stat.PopMeanStdDev(window, nil)
		values = append(values, mean, std)
	}

	values = append(values, cyclical(float64(date.YearDay()), 365.25)...)
	values = append(values, cyclical(float64(date.Weekday()), 7)...)
	values = append(values, cyclical(float64(date.Month()-1), 12)...)

	trailing := trailingMeanPrice(history, priceWindowDays)
	ratio, discount := 1.0, 0.0
	if trailing > 0 {
		ratio = price / trailing
		if price < discountThreshold*trailing {
			discount = 1
		}
	}
	values = append(values, price, ratio, discount)
	return values, true
}

func cyclical(value, period float64) []float64 {
	angle := 2 * math.Pi * value / period
	return []float64{math.Sin(angle), math.Cos(angle)}
}

func trailingMeanPrice(history []DailyPoint, days int) float64 {
	start := max(0, len(history)-days)
	sum, n := 0.0, 0
	for _, p := range history[start:] {
		sum += p.Price
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
