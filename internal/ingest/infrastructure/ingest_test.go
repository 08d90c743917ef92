package infrastructure

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customersdomain "demandinsights/internal/customers/domain"
	demanddomain "demandinsights/internal/demand/domain"
	shareddomain "demandinsights/internal/shared/domain"
	"demandinsights/internal/testhelpers"
)

func TestReadTransactionsCSV(t *testing.T) {
	input := "Customer_ID,order_date,amount,engagement_score,unit_price\n" +
		"C1,2025-06-01,120.5,0.8,\n" +
		"C2,2025-06-02T15:04:05+02:00,30,,9.99\n"

	txs, err := ReadTransactionsCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, "C1", txs[0].CustomerID)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), txs[0].OrderDate)
	assert.Equal(t, 120.5, txs[0].Amount)
	require.NotNil(t, txs[0].EngagementScore)
	assert.Equal(t, 0.8, *txs[0].EngagementScore)
	assert.Nil(t, txs[0].SatisfactionScore)

	assert.Equal(t, time.Date(2025, 6, 2, 13, 4, 5, 0, time.UTC), txs[1].OrderDate)
	assert.Nil(t, txs[1].EngagementScore)
	assert.Equal(t, 9.99, txs[1].UnitPrice)
}

func TestReadTransactionsCSV_Errors(t *testing.T) {
	_, err := ReadTransactionsCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, shareddomain.ErrValidation)

	_, err = ReadTransactionsCSV(strings.NewReader("customer_id,amount\nC1,3\n"))
	require.ErrorIs(t, err, shareddomain.ErrValidation)
	assert.Contains(t, err.Error(), "order_date")

	_, err = ReadTransactionsCSV(strings.NewReader("customer_id,order_date,amount\nC1,01/06/2025,3\n"))
	require.ErrorIs(t, err, shareddomain.ErrValidation)
	assert.Contains(t, err.Error(), "line 2")

	_, err = ReadTransactionsCSV(strings.NewReader("customer_id,order_date,amount\nC1,2025-06-01,abc\n"))
	assert.ErrorIs(t, err, shareddomain.ErrValidation)
}

func TestReadSalesCSV_KeepsNonPositivePairs(t *testing.T) {
	sales, err := ReadSalesCSV(strings.NewReader("product_id,date,quantity,price\nP1,2025-06-01,0,10\nP1,2025-06-02,5,0\n"))
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Zero(t, sales[0].Quantity)
	assert.Zero(t, sales[1].Price)
}

func TestCSVRoundTrip(t *testing.T) {
	txs := testhelpers.Transactions(10, testhelpers.AsOf, 1)
	var buf bytes.Buffer
	require.NoError(t, WriteTransactionsCSV(&buf, txs))

	back, err := ReadTransactionsCSV(&buf)
	require.NoError(t, err)
	require.Len(t, back, len(txs))
	for i := range txs {
		assert.Equal(t, txs[i].CustomerID, back[i].CustomerID)
		assert.Equal(t, shareddomain.TruncateDay(txs[i].OrderDate), back[i].OrderDate)
		assert.InDelta(t, txs[i].Amount, back[i].Amount, 1e-9)
		assert.Equal(t, txs[i].EngagementScore == nil, back[i].EngagementScore == nil)
	}
}

func TestFileLoader_ParquetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	loader := NewFileLoader(2)

	sales := testhelpers.DailySales("P1", 60, testhelpers.AsOf, 1)
	path := filepath.Join(dir, "sales.parquet")
	require.NoError(t, loader.SaveSales(path, sales))
	back, err := loader.LoadSales(path)
	require.NoError(t, err)
	assert.Equal(t, sales, back)

	score := 0.5
	txs := []customersdomain.TransactionRecord{
		{CustomerID: "C1", OrderDate: testhelpers.AsOf, Amount: 10, EngagementScore: &score},
		{CustomerID: "C2", OrderID: "O2", OrderDate: testhelpers.AsOf.AddDate(0, 0, -3), Amount: 25.5},
	}
	txPath := filepath.Join(dir, "tx.parquet")
	require.NoError(t, loader.SaveTransactions(txPath, txs))
	gotTxs, err := loader.LoadTransactions(txPath)
	require.NoError(t, err)
	assert.Equal(t, txs, gotTxs)
}

func TestFileLoader_CSVFileAndUnsupported(t *testing.T) {
	dir := t.TempDir()
	loader := NewFileLoader(1)
	sales := []demanddomain.SalesRecord{{ProductID: "P1", Date: testhelpers.AsOf, Quantity: 3, Price: 9.5}}

	path := filepath.Join(dir, "sales.CSV")
	require.NoError(t, loader.SaveSales(path, sales))
	back, err := loader.LoadSales(path)
	require.NoError(t, err)
	assert.Equal(t, sales, back)

	_, err = loader.LoadSales(filepath.Join(dir, "sales.json"))
	assert.ErrorIs(t, err, shareddomain.ErrValidation)
	assert.ErrorIs(t, loader.SaveTransactions("x.xlsx", nil), shareddomain.ErrValidation)
}

func TestSQLSource_RejectsUnsafeRelation(t *testing.T) {
	src := NewSQLSource(nil)
	_, err := src.Transactions("orders; DROP TABLE x", testhelpers.AsOf)
	assert.ErrorIs(t, err, shareddomain.ErrValidation)
	_, err = src.Sales("1sales", nil)
	assert.ErrorIs(t, err, shareddomain.ErrValidation)
}

func TestSQLSource_Postgres(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	db.SetMaxOpenConns(1) // table temporaire: une seule session

	_, err := db.Exec(`CREATE TEMP TABLE daily_sales (product_id text, date timestamptz, quantity float8, price float8)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO daily_sales VALUES ('P1', '2025-06-01', 4, 9.5), ('P2', '2025-06-01', 1, 3)`)
	require.NoError(t, err)

	src := NewSQLSource(db)
	sales, err := src.Sales("daily_sales", testhelpers.String("P1"))
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, 4.0, sales[0].Quantity)
}

// ========================================
// Benchmarks
// ========================================

// BenchmarkReadTransactionsCSV_5000 mesure le parsing de ~5000 lignes
func BenchmarkReadTransactionsCSV_5000(b *testing.B) {
	var buf bytes.Buffer
	if err := WriteTransactionsCSV(&buf, testhelpers.Transactions(200, testhelpers.AsOf, 1)); err != nil {
		b.Fatal(err)
	}
	data := buf.Bytes()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := ReadTransactionsCSV(bytes.NewReader(data)); err != nil {
			b.Fatal(err)
		}
	}
}
