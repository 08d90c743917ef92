package application

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"go.uber.org/zap"

	customersdomain "demandinsights/internal/customers/domain"
	"demandinsights/internal/export/domain"
	insightsdomain "demandinsights/internal/insights/domain"
	shareddomain "demandinsights/internal/shared/domain"
	"demandinsights/internal/testhelpers"
)

func clvTable(n int) domain.Table {
	resp := &insightsdomain.CLVResponse{Predictions: make([]customersdomain.CLVResult, n)}
	for i := range resp.Predictions {
		resp.Predictions[i] = customersdomain.CLVResult{
			CustomerID:     fmt.Sprintf("C%05d", i),
			PredictedCLV:   float64(i) + 0.5,
			CLVSegment:     customersdomain.CLVMedium,
			SimpleEstimate: i%2 == 0,
		}
	}
	return domain.CLVTable(resp)
}

func newExporter(t testing.TB) *ResultExporter {
	return NewResultExporter(testhelpers.TestConfig(t, nil), zap.NewNop())
}

func TestExportCSV_KeepsRowOrderAcrossBatches(t *testing.T) {
	data, err := newExporter(t).ExportCSV(context.Background(), clvTable(2500))
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2501)
	assert.Equal(t, []string{"customer_id", "predicted_clv", "clv_segment", "simple_estimate"}, records[0])
	for i, rec := range records[1:] {
		assert.Equal(t, fmt.Sprintf("C%05d", i), rec[0])
	}
	assert.Equal(t, []string{"C02499", "2499.50", "Medium", "false"}, records[2500])
}

func TestExportCSV_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newExporter(t).ExportCSV(ctx, clvTable(3000))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExportToFile_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clv.csv")
	job, err := domain.NewExportJob(domain.ExportFormatCSV, domain.ExportKindCLV)
	require.NoError(t, err)

	require.NoError(t, newExporter(t).ExportToFile(context.Background(), job, clvTable(3), path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "customer_id,predicted_clv,clv_segment,simple_estimate\n"+
		"C00000,0.50,Medium,true\nC00001,1.50,Medium,false\nC00002,2.50,Medium,true\n", string(content))
}

func TestExportToFile_ParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clv.parquet")
	job, err := domain.NewExportJob(domain.ExportFormatParquet, domain.ExportKindCLV)
	require.NoError(t, err)

	require.NoError(t, newExporter(t).ExportToFile(context.Background(), job, clvTable(50), path))

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(domain.CLVRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	require.EqualValues(t, 50, pr.GetNumRows())
	rows := make([]domain.CLVRow, 50)
	require.NoError(t, pr.Read(&rows))
	assert.Equal(t, domain.CLVRow{CustomerID: "C00007", PredictedCLV: 7.5, CLVSegment: "Medium"}, rows[7])
	assert.True(t, rows[8].SimpleEstimate)
}

func TestExportToFile_KindMismatch(t *testing.T) {
	job, err := domain.NewExportJob(domain.ExportFormatCSV, domain.ExportKindChurn)
	require.NoError(t, err)

	err = newExporter(t).ExportToFile(context.Background(), job, clvTable(1), filepath.Join(t.TempDir(), "x.csv"))
	assert.ErrorIs(t, err, shareddomain.ErrValidation)

	err = newExporter(t).ExportToFile(context.Background(), nil, clvTable(1), "x.csv")
	assert.ErrorIs(t, err, shareddomain.ErrValidation)
}

// ========================================
// Benchmarks
// ========================================

// BenchmarkExportCSV_10000 mesure le rendu parallèle et l'écriture de 10k lignes
func BenchmarkExportCSV_10000(b *testing.B) {
	exporter := newExporter(b)
	table := clvTable(10000)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		data, err := exporter.ExportCSV(context.Background(), table)
		if err != nil {
			b.Fatal(err)
		}
		b.ReportMetric(float64(len(data)), "bytes")
	}
}
