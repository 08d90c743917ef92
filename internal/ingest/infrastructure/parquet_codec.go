package infrastructure

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	customersdomain "demandinsights/internal/customers/domain"
	demanddomain "demandinsights/internal/demand/domain"
	shareddomain "demandinsights/internal/shared/domain"
)

// TransactionParquet ligne transaction au format Parquet (dates en texte 2006-01-02 ou RFC3339)
type TransactionParquet struct {
	CustomerID        string   `parquet:"name=customer_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	OrderID           string   `parquet:"name=order_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	OrderDate         string   `parquet:"name=order_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount            float64  `parquet:"name=amount, type=DOUBLE"`
	ProductID         string   `parquet:"name=product_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Quantity          float64  `parquet:"name=quantity, type=DOUBLE"`
	UnitPrice         float64  `parquet:"name=unit_price, type=DOUBLE"`
	EngagementScore   *float64 `parquet:"name=engagement_score, type=DOUBLE, repetitiontype=OPTIONAL"`
	SatisfactionScore *float64 `parquet:"name=satisfaction_score, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// SalesParquet ligne vente au format Parquet
type SalesParquet struct {
	ProductID string  `parquet:"name=product_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Date      string  `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Quantity  float64 `parquet:"name=quantity, type=DOUBLE"`
	Price     float64 `parquet:"name=price, type=DOUBLE"`
}

// ParquetCodec lit et écrit les jeux de lignes Parquet locaux
type ParquetCodec struct {
	parallelism int64
	batchSize   int
}

// NewParquetCodec crée une nouvelle instance de ParquetCodec
func NewParquetCodec(parallelism int) *ParquetCodec {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &ParquetCodec{parallelism: int64(parallelism), batchSize: 10000}
}

// ReadTransactions lit toutes les transactions d'un fichier Parquet
func (c *ParquetCodec) ReadTransactions(path string) ([]customersdomain.TransactionRecord, error) {
	rows, err := readParquet[TransactionParquet](path, c.parallelism, c.batchSize)
	if err != nil {
		return nil, err
	}
	out := make([]customersdomain.TransactionRecord, len(rows))
	for i, r := range rows {
		date, err := shareddomain.ParseDay(r.OrderDate)
		if err != nil {
			return nil, shareddomain.NewValidationError("order_date", fmt.Sprintf("row %d: %v", i, err))
		}
		out[i] = customersdomain.TransactionRecord{
			CustomerID:        r.CustomerID,
			OrderID:           r.OrderID,
			OrderDate:         date,
			Amount:            r.Amount,
			ProductID:         r.ProductID,
			Quantity:          r.Quantity,
			UnitPrice:         r.UnitPrice,
			EngagementScore:   r.EngagementScore,
			SatisfactionScore: r.SatisfactionScore,
		}
	}
	return out, nil
}

// ReadSales lit toutes les ventes d'un fichier Parquet
func (c *ParquetCodec) ReadSales(path string) ([]demanddomain.SalesRecord, error) {
	rows, err := readParquet[SalesParquet](path, c.parallelism, c.batchSize)
	if err != nil {
		return nil, err
	}
	out := make([]demanddomain.SalesRecord, len(rows))
	for i, r := range rows {
		date, err := shareddomain.ParseDay(r.Date)
		if err != nil {
			return nil, shareddomain.NewValidationError("date", fmt.Sprintf("row %d: %v", i, err))
		}
		out[i] = demanddomain.SalesRecord{ProductID: r.ProductID, Date: date, Quantity: r.Quantity, Price: r.Price}
	}
	return out, nil
}

// WriteTransactions écrit les transactions dans un fichier Parquet
func (c *ParquetCodec) WriteTransactions(path string, transactions []customersdomain.TransactionRecord) error {
	rows := make([]any, len(transactions))
	for i, tx := range transactions {
		rows[i] = TransactionParquet{
			CustomerID:        tx.CustomerID,
			OrderID:           tx.OrderID,
			OrderDate:         tx.OrderDate.Format(shareddomain.DayLayout),
			Amount:            tx.Amount,
			ProductID:         tx.ProductID,
			Quantity:          tx.Quantity,
			UnitPrice:         tx.UnitPrice,
			EngagementScore:   tx.EngagementScore,
			SatisfactionScore: tx.SatisfactionScore,
		}
	}
	return writeParquet(path, new(TransactionParquet), rows, c.parallelism)
}

// WriteSales écrit les ventes dans un fichier Parquet
func (c *ParquetCodec) WriteSales(path string, sales []demanddomain.SalesRecord) error {
	rows := make([]any, len(sales))
	for i, s := range sales {
		rows[i] = SalesParquet{
			ProductID: s.ProductID,
			Date:      s.Date.Format(shareddomain.DayLayout),
			Quantity:  s.Quantity,
			Price:     s.Price,
		}
	}
	return writeParquet(path, new(SalesParquet), rows, c.parallelism)
}

// readParquet lit le fichier par lots de batchSize lignes
func readParquet[T any](path string, parallelism int64, batchSize int) ([]T, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet file %s: %w", path, err)
	}
	defer fr.Close()
	return readParquetSource[T](fr, parallelism, batchSize)
}

func readParquetSource[T any](fr source.ParquetFile, parallelism int64, batchSize int) ([]T, error) {
	pr, err := reader.NewParquetReader(fr, new(T), parallelism)
	if err != nil {
		return nil, fmt.Errorf("parquet reader: %w", err)
	}
	defer pr.ReadStop()

	total := int(pr.GetNumRows())
	out := make([]T, 0, total)
	for read := 0; read < total; {
		n := min(batchSize, total-read)
		batch := make([]T, n)
		if err := pr.Read(&batch); err != nil {
			return nil, fmt.Errorf("read parquet rows %d-%d: %w", read, read+n, err)
		}
		out = append(out, batch...)
		read += n
	}
	return out, nil
}

func writeParquet(path string, schema any, rows []any, parallelism int64) (err error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create parquet file %s: %w", path, err)
	}
	defer func() {
		if cerr := fw.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	pw, err := writer.NewParquetWriter(fw, schema, parallelism)
	if err != nil {
		return fmt.Errorf("parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for i, row := range rows {
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("write parquet row %d: %w", i, err)
		}
	}
	return pw.WriteStop()
}
