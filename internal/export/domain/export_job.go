package domain

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	insightsdomain "demandinsights/internal/insights/domain"
	shareddomain "demandinsights/internal/shared/domain"
)

// ExportFormat représente le format d'export
type ExportFormat string

const (
	ExportFormatCSV     ExportFormat = "CSV"
	ExportFormatParquet ExportFormat = "Parquet"
)

// FormatFromPath déduit le format de l'extension du fichier (.csv, .parquet)
func FormatFromPath(path string) (ExportFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ExportFormatCSV, nil
	case ".parquet":
		return ExportFormatParquet, nil
	}
	return "", shareddomain.NewValidationError("path", "unsupported extension for "+path)
}

// ExportKind représente le type de résultat exporté
type ExportKind string

const (
	ExportKindSegments   ExportKind = "segments"
	ExportKindForecast   ExportKind = "forecast"
	ExportKindElasticity ExportKind = "elasticity"
	ExportKindCLV        ExportKind = "clv"
	ExportKindChurn      ExportKind = "churn"
)

// ExportJob représente un job d'export
type ExportJob struct {
	format    ExportFormat
	kind      ExportKind
	createdAt time.Time
}

// NewExportJob crée un nouveau job d'export avec validation
func NewExportJob(format ExportFormat, kind ExportKind) (*ExportJob, error) {
	if format != ExportFormatCSV && format != ExportFormatParquet {
		return nil, shareddomain.NewValidationError("format", "invalid export format "+string(format))
	}
	switch kind {
	case ExportKindSegments, ExportKindForecast, ExportKindElasticity, ExportKindCLV, ExportKindChurn:
	default:
		return nil, shareddomain.NewValidationError("kind", "invalid export kind "+string(kind))
	}

	return &ExportJob{
		format:    format,
		kind:      kind,
		createdAt: time.Now(),
	}, nil
}

// Format retourne le format d'export
func (ej *ExportJob) Format() ExportFormat {
	return ej.format
}

// Kind retourne le type de résultat
func (ej *ExportJob) Kind() ExportKind {
	return ej.kind
}

// CreatedAt retourne la date de création
func (ej *ExportJob) CreatedAt() time.Time {
	return ej.createdAt
}

// Row ligne exportable; les champs portent aussi les tags parquet
type Row interface {
	ToCSVRow() []string
}

// Table résultat aplati: en-têtes, lignes et prototype du schéma Parquet
type Table struct {
	Kind    ExportKind
	Headers []string
	Rows    []Row
	Schema  any
}

// Len nombre de lignes
func (t Table) Len() int {
	return len(t.Rows)
}

// ============================================================================
// LIGNES PAR TYPE DE RÉSULTAT
// ============================================================================

// SegmentRow affectation d'un client à son segment
type SegmentRow struct {
	CustomerID  string `parquet:"name=customer_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	SegmentID   int32  `parquet:"name=segment_id, type=INT32"`
	SegmentName string `parquet:"name=segment_name, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ToCSVRow convertit en tableau pour CSV
func (r SegmentRow) ToCSVRow() []string {
	return []string{r.CustomerID, strconv.Itoa(int(r.SegmentID)), r.SegmentName}
}

// ForecastRow prévision d'un jour
type ForecastRow struct {
	ProductID     string  `parquet:"name=product_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Date          string  `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8"`
	PointForecast float64 `parquet:"name=point_forecast, type=DOUBLE"`
	LowerBound    float64 `parquet:"name=lower_bound, type=DOUBLE"`
	UpperBound    float64 `parquet:"name=upper_bound, type=DOUBLE"`
}

// ToCSVRow convertit en tableau pour CSV
func (r ForecastRow) ToCSVRow() []string {
	return []string{r.ProductID, r.Date, formatFloat(r.PointForecast), formatFloat(r.LowerBound), formatFloat(r.UpperBound)}
}

// ElasticityRow élasticité d'un produit
type ElasticityRow struct {
	ProductID      string   `parquet:"name=product_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Coefficient    float64  `parquet:"name=elasticity_coefficient, type=DOUBLE"`
	CILow          float64  `parquet:"name=ci_low, type=DOUBLE"`
	CIHigh         float64  `parquet:"name=ci_high, type=DOUBLE"`
	OptimalPrice   *float64 `parquet:"name=optimal_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	RSquared       float64  `parquet:"name=r_squared, type=DOUBLE"`
	SampleSize     int32    `parquet:"name=sample_size, type=INT32"`
	ElasticityType string   `parquet:"name=elasticity_type, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ToCSVRow convertit en tableau pour CSV (prix optimal vide si indéfini)
func (r ElasticityRow) ToCSVRow() []string {
	optimal := ""
	if r.OptimalPrice != nil {
		optimal = formatFloat(*r.OptimalPrice)
	}
	return []string{
		r.ProductID,
		formatFloat(r.Coefficient),
		formatFloat(r.CILow),
		formatFloat(r.CIHigh),
		optimal,
		formatFloat(r.RSquared),
		strconv.Itoa(int(r.SampleSize)),
		r.ElasticityType,
	}
}

// CLVRow valeur vie client prédite
type CLVRow struct {
	CustomerID     string  `parquet:"name=customer_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	PredictedCLV   float64 `parquet:"name=predicted_clv, type=DOUBLE"`
	CLVSegment     string  `parquet:"name=clv_segment, type=BYTE_ARRAY, convertedtype=UTF8"`
	SimpleEstimate bool    `parquet:"name=simple_estimate, type=BOOLEAN"`
}

// ToCSVRow convertit en tableau pour CSV
func (r CLVRow) ToCSVRow() []string {
	return []string{r.CustomerID, strconv.FormatFloat(r.PredictedCLV, 'f', 2, 64), r.CLVSegment, strconv.FormatBool(r.SimpleEstimate)}
}

// ChurnRow risque de churn; les facteurs sont sérialisés "feature=contribution;..."
type ChurnRow struct {
	CustomerID       string  `parquet:"name=customer_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ChurnProbability float64 `parquet:"name=churn_probability, type=DOUBLE"`
	RiskLevel        string  `parquet:"name=risk_level, type=BYTE_ARRAY, convertedtype=UTF8"`
	TopFactors       string  `parquet:"name=top_factors, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ToCSVRow convertit en tableau pour CSV
func (r ChurnRow) ToCSVRow() []string {
	return []string{r.CustomerID, formatFloat(r.ChurnProbability), r.RiskLevel, r.TopFactors}
}

// ============================================================================
// CONSTRUCTION DES TABLES
// ============================================================================

// SegmentsTable une ligne par client segmenté, triée par identifiant client
func SegmentsTable(resp *insightsdomain.SegmentsResponse) Table {
	names := make(map[int]string, len(resp.Segments))
	for _, s := range resp.Segments {
		names[s.ID] = s.Name
	}
	ids := make([]string, 0, len(resp.Assignments))
	for id := range resp.Assignments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]Row, len(ids))
	for i, id := range ids {
		seg := resp.Assignments[id]
		rows[i] = SegmentRow{CustomerID: id, SegmentID: int32(seg), SegmentName: names[seg]}
	}
	return Table{
		Kind:    ExportKindSegments,
		Headers: []string{"customer_id", "segment_id", "segment_name"},
		Rows:    rows,
		Schema:  new(SegmentRow),
	}
}

// ForecastTable une ligne par jour prévu
func ForecastTable(resp *insightsdomain.ForecastResponse) Table {
	rows := make([]Row, len(resp.Forecasts))
	for i, f := range resp.Forecasts {
		rows[i] = ForecastRow{
			ProductID:     resp.ProductID,
			Date:          f.Date.Format(shareddomain.DayLayout),
			PointForecast: f.PointForecast,
			LowerBound:    f.LowerBound,
			UpperBound:    f.UpperBound,
		}
	}
	return Table{
		Kind:    ExportKindForecast,
		Headers: []string{"product_id", "date", "point_forecast", "lower_bound", "upper_bound"},
		Rows:    rows,
		Schema:  new(ForecastRow),
	}
}

// ElasticityTable une ligne par produit analysé
func ElasticityTable(resp *insightsdomain.ElasticityResponse) Table {
	rows := make([]Row, len(resp.Elasticity))
	for i, e := range resp.Elasticity {
		rows[i] = ElasticityRow{
			ProductID:      e.ProductID,
			Coefficient:    e.Coefficient,
			CILow:          e.CILow,
			CIHigh:         e.CIHigh,
			OptimalPrice:   e.OptimalPrice,
			RSquared:       e.RSquared,
			SampleSize:     int32(e.SampleSize),
			ElasticityType: string(e.Type),
		}
	}
	return Table{
		Kind: ExportKindElasticity,
		Headers: []string{
			"product_id", "elasticity_coefficient", "ci_low", "ci_high",
			"optimal_price", "r_squared", "sample_size", "elasticity_type",
		},
		Rows:   rows,
		Schema: new(ElasticityRow),
	}
}

// CLVTable une ligne par client actif
func CLVTable(resp *insightsdomain.CLVResponse) Table {
	rows := make([]Row, len(resp.Predictions))
	for i, p := range resp.Predictions {
		rows[i] = CLVRow{
			CustomerID:     p.CustomerID,
			PredictedCLV:   p.PredictedCLV,
			CLVSegment:     string(p.CLVSegment),
			SimpleEstimate: p.SimpleEstimate,
		}
	}
	return Table{
		Kind:    ExportKindCLV,
		Headers: []string{"customer_id", "predicted_clv", "clv_segment", "simple_estimate"},
		Rows:    rows,
		Schema:  new(CLVRow),
	}
}

// ChurnTable une ligne par client
func ChurnTable(resp *insightsdomain.ChurnResponse) Table {
	rows := make([]Row, len(resp.Predictions))
	for i, p := range resp.Predictions {
		factors := make([]string, len(p.TopFactors))
		for j, f := range p.TopFactors {
			factors[j] = f.Feature + "=" + formatFloat(f.Contribution)
		}
		rows[i] = ChurnRow{
			CustomerID:       p.CustomerID,
			ChurnProbability: p.ChurnProbability,
			RiskLevel:        string(p.RiskLevel),
			TopFactors:       strings.Join(factors, ";"),
		}
	}
	return Table{
		Kind:    ExportKindChurn,
		Headers: []string{"customer_id", "churn_probability", "risk_level", "top_factors"},
		Rows:    rows,
		Schema:  new(ChurnRow),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
