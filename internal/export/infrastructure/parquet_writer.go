package infrastructure

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// ParquetWriter écrit des structs taguées `parquet:"..."` dans un fichier local
type ParquetWriter struct {
	parallelism  int64
	rowGroupSize int64
}

// NewParquetWriter crée une nouvelle instance de ParquetWriter
func NewParquetWriter(parallelism int) *ParquetWriter {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &ParquetWriter{
		parallelism:  int64(parallelism),
		rowGroupSize: 64 * 1024 * 1024,
	}
}

// WriteFile écrit rows (valeurs du même type que schema) dans path, compression snappy
func (pw *ParquetWriter) WriteFile(path string, schema any, rows []any) (err error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create parquet file %s: %w", path, err)
	}
	defer func() {
		if cerr := fw.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close parquet file %s: %w", path, cerr)
		}
	}()

	w, err := writer.NewParquetWriter(fw, schema, pw.parallelism)
	if err != nil {
		return fmt.Errorf("parquet schema: %w", err)
	}
	w.RowGroupSize = pw.rowGroupSize
	w.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write parquet row %d: %w", i, err)
		}
	}
	if err := w.WriteStop(); err != nil {
		return fmt.Errorf("finish parquet file %s: %w", path, err)
	}
	return nil
}
