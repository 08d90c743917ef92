package infrastructure

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	customersdomain "demandinsights/internal/customers/domain"
	demanddomain "demandinsights/internal/demand/domain"
	shareddomain "demandinsights/internal/shared/domain"
)

// FileLoader lit et écrit les jeux de lignes selon l'extension (.csv, .parquet)
type FileLoader struct {
	parquet *ParquetCodec
}

// NewFileLoader crée une nouvelle instance de FileLoader
func NewFileLoader(parallelism int) *FileLoader {
	return &FileLoader{parquet: NewParquetCodec(parallelism)}
}

// LoadTransactions lit un fichier de transactions
func (l *FileLoader) LoadTransactions(path string) ([]customersdomain.TransactionRecord, error) {
	switch ext(path) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadTransactionsCSV(f)
	case ".parquet":
		return l.parquet.ReadTransactions(path)
	}
	return nil, unsupported(path)
}

// LoadSales lit un fichier de ventes
func (l *FileLoader) LoadSales(path string) ([]demanddomain.SalesRecord, error) {
	switch ext(path) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadSalesCSV(f)
	case ".parquet":
		return l.parquet.ReadSales(path)
	}
	return nil, unsupported(path)
}

// SaveTransactions écrit un fichier de transactions
func (l *FileLoader) SaveTransactions(path string, transactions []customersdomain.TransactionRecord) error {
	switch ext(path) {
	case ".csv":
		return writeFile(path, func(f *os.File) error { return WriteTransactionsCSV(f, transactions) })
	case ".parquet":
		return l.parquet.WriteTransactions(path, transactions)
	}
	return unsupported(path)
}

// SaveSales écrit un fichier de ventes
func (l *FileLoader) SaveSales(path string, sales []demanddomain.SalesRecord) error {
	switch ext(path) {
	case ".csv":
		return writeFile(path, func(f *os.File) error { return WriteSalesCSV(f, sales) })
	case ".parquet":
		return l.parquet.WriteSales(path, sales)
	}
	return unsupported(path)
}

func writeFile(path string, write func(f *os.File) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return write(f)
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func unsupported(path string) error {
	return shareddomain.NewValidationError("path", "unsupported extension for "+path+" (expected .csv or .parquet)")
}
