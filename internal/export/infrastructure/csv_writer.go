package infrastructure

import (
	"encoding/csv"
	"io"
)

// CSVWriter écrit des lignes déjà rendues, avec flush tous les batchSize lignes
type CSVWriter struct {
	batchSize int
}

// NewCSVWriter crée une nouvelle instance de CSVWriter
func NewCSVWriter(batchSize int) *CSVWriter {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &CSVWriter{batchSize: batchSize}
}

// Write écrit l'en-tête puis les lignes dans w
func (cw *CSVWriter) Write(w io.Writer, headers []string, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(headers); err != nil {
		return err
	}
	for i, row := range rows {
		if err := writer.Write(row); err != nil {
			return err
		}
		if (i+1)%cw.batchSize == 0 {
			writer.Flush()
		}
	}
	writer.Flush()
	return writer.Error()
}
