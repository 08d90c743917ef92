package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customersdomain "demandinsights/internal/customers/domain"
	demanddomain "demandinsights/internal/demand/domain"
	insightsdomain "demandinsights/internal/insights/domain"
	shareddomain "demandinsights/internal/shared/domain"
)

func TestNewExportJob(t *testing.T) {
	job, err := NewExportJob(ExportFormatParquet, ExportKindCLV)
	require.NoError(t, err)
	assert.Equal(t, ExportFormatParquet, job.Format())
	assert.Equal(t, ExportKindCLV, job.Kind())
	assert.False(t, job.CreatedAt().IsZero())

	_, err = NewExportJob("XLSX", ExportKindCLV)
	assert.ErrorIs(t, err, shareddomain.ErrValidation)
	_, err = NewExportJob(ExportFormatCSV, "orders")
	assert.ErrorIs(t, err, shareddomain.ErrValidation)
}

func TestFormatFromPath(t *testing.T) {
	f, err := FormatFromPath("out/Results.CSV")
	require.NoError(t, err)
	assert.Equal(t, ExportFormatCSV, f)

	f, err = FormatFromPath("/tmp/clv.parquet")
	require.NoError(t, err)
	assert.Equal(t, ExportFormatParquet, f)

	_, err = FormatFromPath("clv.json")
	assert.ErrorIs(t, err, shareddomain.ErrValidation)
}

func TestSegmentsTable_SortedByCustomer(t *testing.T) {
	table := SegmentsTable(&insightsdomain.SegmentsResponse{
		Segments:    []customersdomain.Segment{{ID: 0, Name: "Champions"}, {ID: 1, Name: "Lost"}},
		Assignments: map[string]int{"C2": 1, "C1": 0, "C3": 0},
	})

	require.Equal(t, 3, table.Len())
	assert.Equal(t, []string{"C1", "0", "Champions"}, table.Rows[0].ToCSVRow())
	assert.Equal(t, []string{"C2", "1", "Lost"}, table.Rows[1].ToCSVRow())
	assert.Len(t, table.Headers, len(table.Rows[0].ToCSVRow()))
}

func TestElasticityTable_OptionalOptimalPrice(t *testing.T) {
	price := 12.5
	table := ElasticityTable(&insightsdomain.ElasticityResponse{
		Elasticity: []demanddomain.ElasticityResult{
			{ProductID: "P1", Coefficient: -0.5, OptimalPrice: &price, SampleSize: 12, Type: demanddomain.Inelastic},
			{ProductID: "P2", Coefficient: -2, SampleSize: 30, Type: demanddomain.Elastic},
		},
	})

	first := table.Rows[0].ToCSVRow()
	second := table.Rows[1].ToCSVRow()
	assert.Equal(t, "12.5000", first[4])
	assert.Equal(t, "", second[4])
	assert.Equal(t, "30", second[6])
	assert.Len(t, table.Headers, len(first))
}

func TestChurnTable_SerializesFactors(t *testing.T) {
	table := ChurnTable(&insightsdomain.ChurnResponse{
		Predictions: []customersdomain.ChurnResult{{
			CustomerID:       "C1",
			ChurnProbability: 0.75,
			RiskLevel:        customersdomain.RiskHigh,
			TopFactors: []customersdomain.ChurnFactor{
				{Feature: "recency_days", Contribution: 1.2},
				{Feature: "frequency", Contribution: -0.4},
			},
		}},
	})

	assert.Equal(t, []string{"C1", "0.7500", "High", "recency_days=1.2000;frequency=-0.4000"}, table.Rows[0].ToCSVRow())
}

func TestForecastTable_DayLayout(t *testing.T) {
	table := ForecastTable(&insightsdomain.ForecastResponse{
		ProductID: "P1",
		Forecasts: []demanddomain.ForecastResult{{
			Date:          time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
			PointForecast: 10,
			LowerBound:    8,
			UpperBound:    12,
		}},
	})
	assert.Equal(t, []string{"P1", "2025-07-01", "10.0000", "8.0000", "12.0000"}, table.Rows[0].ToCSVRow())
}

// ========================================
// Benchmarks: ToCSVRow
// ========================================

// BenchmarkCLVRow_ToCSVRow mesure la conversion d'une ligne CLV
func BenchmarkCLVRow_ToCSVRow(b *testing.B) {
	row := CLVRow{CustomerID: "C0001", PredictedCLV: 1234.56, CLVSegment: "High"}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = row.ToCSVRow()
	}
}

// BenchmarkChurnTable_1000 mesure la construction d'une table de 1000 clients
func BenchmarkChurnTable_1000(b *testing.B) {
	resp := &insightsdomain.ChurnResponse{Predictions: make([]customersdomain.ChurnResult, 1000)}
	for i := range resp.Predictions {
		resp.Predictions[i] = customersdomain.ChurnResult{
			CustomerID:       fmt.Sprintf("C%04d", i),
			ChurnProbability: float64(i) / 1000,
			RiskLevel:        customersdomain.RiskMedium,
			TopFactors:       []customersdomain.ChurnFactor{{Feature: "recency_days", Contribution: 0.5}},
		}
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = ChurnTable(resp)
	}
}
