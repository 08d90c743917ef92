package application

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"demandinsights/internal/config"
	customersdomain "demandinsights/internal/customers/domain"
	demanddomain "demandinsights/internal/demand/domain"
	"demandinsights/internal/features/domain"
	"demandinsights/internal/ml"
	shareddomain "demandinsights/internal/shared/domain"
)

// AggregateEntity identifiant des lignes de demande agrégées tous produits confondus
const AggregateEntity = "all"

// FeatureEngineer transforme les lignes brutes en frames prêtes pour les modèles
// Transformation pure: aucune entrée n'est modifiée.
type FeatureEngineer struct {
	cfg    config.Config
	logger *zap.Logger
}

// NewFeatureEngineer crée une nouvelle instance de FeatureEngineer
func NewFeatureEngineer(cfg config.Config, logger *zap.Logger) *FeatureEngineer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeatureEngineer{cfg: cfg, logger: logger}
}

// customerAccumulator agrégats d'un client jusqu'à la date d'analyse
type customerAccumulator struct {
	id           string
	first        time.Time
	last         time.Time
	windowOrders map[string]struct{}
	allOrders    map[string]struct{}
	orderDays    map[time.Time]struct{}
	windowSpend  shareddomain.Money
	totalSpend   shareddomain.Money
	engagement   []float64
	satisfaction []float64
}

// ============================================================================
// FEATURES CLIENTS (RFM + comportement)
//
// - récence: jours entre la dernière commande et la date d'analyse
// - fréquence: commandes distinctes dans la fenêtre glissante (rfm_window_days)
// - monétaire: somme des montants dans la même fenêtre, accumulée en décimal
// - client sans commande dans la fenêtre: gardé avec Inactive=true
// - les transactions postérieures à la date d'analyse sont ignorées
// ============================================================================
func (e *FeatureEngineer) BuildCustomerFeatures(
	transactions []customersdomain.TransactionRecord,
	asOf time.Time,
) (*domain.CustomerFrame, error) {
	if asOf.IsZero() {
		return nil, shareddomain.NewValidationError("as_of_date", "is required")
	}
	window, err := shareddomain.NewDateRangeFromDays(asOf, e.cfg.RFMWindowDays)
	if err != nil {
		return nil, err
	}
	asOfDay := shareddomain.TruncateDay(asOf)

	accs := make(map[string]*customerAccumulator)
	for i, tx := range transactions {
		if err := tx.Validate(); err != nil {
			return nil, err
		}
		day := shareddomain.TruncateDay(tx.OrderDate)
		if day.After(asOfDay) {
			continue
		}
		amount, err := shareddomain.NewMoney(tx.Amount)
		if err != nil {
			return nil, shareddomain.NewValidationError("amount", err.Error())
		}

		acc, ok := accs[tx.CustomerID]
		if !ok {
			acc = &customerAccumulator{
				id:           tx.CustomerID,
				first:        day,
				last:         day,
				windowOrders: make(map[string]struct{}),
				allOrders:    make(map[string]struct{}),
				orderDays:    make(map[time.Time]struct{}),
				windowSpend:  shareddomain.ZeroMoney(),
				totalSpend:   shareddomain.ZeroMoney(),
			}
			accs[tx.CustomerID] = acc
		}
		if day.Before(acc.first) {
			acc.first = day
		}
		if day.After(acc.last) {
			acc.last = day
		}

		key := tx.OrderKey(i)
		acc.allOrders[key] = struct{}{}
		acc.orderDays[day] = struct{}{}
		acc.totalSpend = acc.totalSpend.Add(amount)
		if window.Contains(day) {
			acc.windowOrders[key] = struct{}{}
			acc.windowSpend = acc.windowSpend.Add(amount)
		}
		if tx.EngagementScore != nil && ml.IsFinite(*tx.EngagementScore) {
			acc.engagement = append(acc.engagement, *tx.EngagementScore)
		}
		if tx.SatisfactionScore != nil && ml.IsFinite(*tx.SatisfactionScore) {
			acc.satisfaction = append(acc.satisfaction, *tx.SatisfactionScore)
		}
	}

	records := make([]customersdomain.CustomerRecord, 0, len(accs))
	engagement := make([]*float64, 0, len(accs))
	satisfaction := make([]*float64, 0, len(accs))
	for _, acc := range accs {
		records = append(records, e.customerRecord(acc, asOfDay))
		engagement = append(engagement, meanOrNil(acc.engagement))
		satisfaction = append(satisfaction, meanOrNil(acc.satisfaction))
	}

	// Imputation des mesures continues par la médiane de la colonne
	imputeMedian(engagement, func(i int, v float64) { records[i].EngagementScore = v })
	imputeMedian(satisfaction, func(i int, v float64) { records[i].SatisfactionScore = v })

	sort.Slice(records, func(i, j int) bool { return records[i].CustomerID < records[j].CustomerID })

	if len(records) < e.cfg.MinRows {
		return nil, shareddomain.NewDataInsufficientError("customer rows", e.cfg.MinRows, len(records))
	}

	e.logger.Debug("customer features built",
		zap.Int("customers", len(records)),
		zap.Int("transactions", len(transactions)),
		zap.Time("as_of", asOfDay),
	)

	return &domain.CustomerFrame{
		AsOf:       asOfDay,
		WindowDays: e.cfg.RFMWindowDays,
		Customers:  records,
	}, nil
}

func (e *FeatureEngineer) customerRecord(acc *customerAccumulator, asOf time.Time) customersdomain.CustomerRecord {
	frequency := len(acc.windowOrders)
	aov := acc.windowSpend.Divide(frequency)
	if frequency == 0 {
		aov = acc.totalSpend.Divide(len(acc.allOrders))
	}

	return customersdomain.CustomerRecord{
		CustomerID:       acc.id,
		RecencyDays:      float64(shareddomain.DaysBetween(acc.last, asOf)),
		Frequency:        float64(frequency),
		Monetary:         acc.windowSpend.Amount(),
		AvgOrderValue:    aov.Amount(),
		TenureDays:       float64(shareddomain.DaysBetween(acc.first, asOf)),
		PurchasesPerYear: float64(frequency) * 365 / float64(e.cfg.RFMWindowDays),
		MeanGapDays:      meanGap(acc.orderDays),
		Inactive:         frequency == 0,
	}
}

// BuildLabeledCustomerFeatures calcule les features à asOf - holdoutDays et les labels
// observés sur le holdout: CLV annualisée sur la durée de vie configurée, churn = aucune commande
func (e *FeatureEngineer) BuildLabeledCustomerFeatures(
	transactions []customersdomain.TransactionRecord,
	asOf time.Time,
	holdoutDays int,
) (*domain.CustomerFrame, error) {
	if holdoutDays <= 0 {
		return nil, shareddomain.NewValidationError("holdout_days", "must be positive")
	}
	asOfDay := shareddomain.TruncateDay(asOf)
	cutoff := asOfDay.AddDate(0, 0, -holdoutDays)

	frame, err := e.BuildCustomerFeatures(transactions, cutoff)
	if err != nil {
		return nil, err
	}

	spend := make(map[string]shareddomain.Money)
	for _, tx := range transactions {
		day := shareddomain.TruncateDay(tx.OrderDate)
		if !day.After(cutoff) || day.After(asOfDay) {
			continue
		}
		amount, err := shareddomain.NewMoney(tx.Amount)
		if err != nil {
			return nil, shareddomain.NewValidationError("amount", err.Error())
		}
		current, ok := spend[tx.CustomerID]
		if !ok {
			current = shareddomain.ZeroMoney()
		}
		spend[tx.CustomerID] = current.Add(amount)
	}

	annualize := 365 / float64(holdoutDays) * e.cfg.CLVLifespanYears
	for i := range frame.Customers {
		c := &frame.Customers[i]
		s, bought := spend[c.CustomerID]
		observed := 0.0
		if bought {
			observed = s.Amount() * annualize
		}
		churned := !bought
		c.ObservedCLV = &observed
		c.Churned = &churned
	}
	frame.AsOf = asOfDay
	return frame, nil
}

// ============================================================================
// FEATURES DEMANDE (lags, moyennes glissantes, calendrier, prix)
//
//   - agrégation journalière: quantités sommées, prix pondéré par les quantités
//   - jours manquants entre la première et la dernière observation de la fenêtre:
//     quantité 0 et prix médian de la série
//   - les premières lignes sans historique complet suivent history_policy
//
// ============================================================================
func (e *FeatureEngineer) BuildDemandFeatures(
	sales []demanddomain.SalesRecord,
	window shareddomain.DateRange,
	productID *string,
) (*domain.DemandFrame, error) {
	if window.IsZero() {
		return nil, shareddomain.NewValidationError("calendar_window", "is required")
	}

	entity := AggregateEntity
	if productID != nil {
		entity = *productID
	}

	series, err := DailySeries(sales, window, productID)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.FeatureRow, 0, len(series))
	targets := make([]float64, 0, len(series))
	for t, point := range series {
		values, ok := domain.DemandFeatureRow(series[:t], point.Date, point.Price, e.cfg.HistoryPolicy)
		if !ok {
			continue
		}
		rows = append(rows, domain.FeatureRow{EntityID: entity, Date: point.Date, Values: values})
		targets = append(targets, point.Quantity)
	}

	if len(rows) < e.cfg.MinRows {
		return nil, shareddomain.NewDataInsufficientError("demand rows", e.cfg.MinRows, len(rows))
	}

	frame, err := domain.NewFeatureFrame(domain.DemandFeatureNames, rows)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("demand features built",
		zap.String("product_id", entity),
		zap.Int("days", len(series)),
		zap.Int("rows", len(rows)),
		zap.String("history_policy", e.cfg.HistoryPolicy),
	)

	return &domain.DemandFrame{
		ProductID: entity,
		Policy:    e.cfg.HistoryPolicy,
		Series:    series,
		Frame:     frame,
		Targets:   targets,
	}, nil
}

// DailySeries agrège les ventes par jour dans la fenêtre et comble les jours manquants
func DailySeries(
	sales []demanddomain.SalesRecord,
	window shareddomain.DateRange,
	productID *string,
) ([]domain.DailyPoint, error) {
	type dayAgg struct {
		quantity float64
		revenue  float64
		prices   float64
		lines    int
	}
	days := make(map[time.Time]*dayAgg)
	for _, s := range sales {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if productID != nil && s.ProductID != *productID {
			continue
		}
		if !window.Contains(s.Date) {
			continue
		}
		day := shareddomain.TruncateDay(s.Date)
		agg, ok := days[day]
		if !ok {
			agg = &dayAgg{}
			days[day] = agg
		}
		agg.quantity += s.Quantity
		agg.revenue += s.Quantity * s.Price
		agg.prices += s.Price
		agg.lines++
	}
	if len(days) == 0 {
		entity := AggregateEntity
		if productID != nil {
			entity = *productID
		}
		return nil, shareddomain.NewDataInsufficientError("sales days for "+entity, 1, 0)
	}

	observed := make([]time.Time, 0, len(days))
	prices := make([]float64, 0, len(days))
	for day, agg := range days {
		observed = append(observed, day)
		prices = append(prices, dayPrice(agg.quantity, agg.revenue, agg.prices, agg.lines))
	}
	sort.Slice(observed, func(i, j int) bool { return observed[i].Before(observed[j]) })
	median := ml.Median(prices)

	first, last := observed[0], observed[len(observed)-1]
	series := make([]domain.DailyPoint, 0, shareddomain.DaysBetween(first, last)+1)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		point := domain.DailyPoint{Date: day, Price: median}
		if agg, ok := days[day]; ok {
			point.Quantity = agg.quantity
			point.Price = dayPrice(agg.quantity, agg.revenue, agg.prices, agg.lines)
		}
		series = append(series, point)
	}
	return series, nil
}

func dayPrice(quantity, revenue, priceSum float64, lines int) float64 {
	if quantity > 0 {
		return revenue / quantity
	}
	return priceSum / float64(lines)
}

func meanOrNil(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	m := sum / float64(len(values))
	return &m
}

// imputeMedian applique la valeur observée, ou la médiane de la colonne (0 si tout manque)
func imputeMedian(values []*float64, set func(i int, v float64)) {
	observed := make([]float64, 0, len(values))
	for _, v := range values {
		if v != nil {
			observed = append(observed, *v)
		}
	}
	median := ml.Median(observed)
	for i, v := range values {
		if v != nil {
			set(i, *v)
		} else {
			set(i, median)
		}
	}
}

func meanGap(days map[time.Time]struct{}) float64 {
	if len(days) < 2 {
		return 0
	}
	sorted := make([]time.Time, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	span := sorted[len(sorted)-1].Sub(sorted[0]).Hours() / 24
	return math.Max(span/float64(len(sorted)-1), 1)
}
