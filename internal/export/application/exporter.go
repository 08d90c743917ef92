package application

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"demandinsights/internal/config"
	"demandinsights/internal/export/domain"
	"demandinsights/internal/export/infrastructure"
	shareddomain "demandinsights/internal/shared/domain"
	sharedinfra "demandinsights/internal/shared/infrastructure"
)

// ResultExporter exporte les résultats d'analyse en CSV ou Parquet
type ResultExporter struct {
	csv       *infrastructure.CSVWriter
	parquet   *infrastructure.ParquetWriter
	workers   int
	batchSize int
	logger    *zap.Logger
}

// NewResultExporter crée une nouvelle instance de ResultExporter
func NewResultExporter(cfg config.Config, logger *zap.Logger) *ResultExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	const batchSize = 1000
	return &ResultExporter{
		csv:       infrastructure.NewCSVWriter(batchSize),
		parquet:   infrastructure.NewParquetWriter(cfg.Workers),
		workers:   cfg.Workers,
		batchSize: batchSize,
		logger:    logger,
	}
}

// ExportCSV génère le CSV en mémoire (réponse HTTP, aucun fichier)
func (s *ResultExporter) ExportCSV(ctx context.Context, table domain.Table) ([]byte, error) {
	buffer := bytes.NewBuffer(make([]byte, 0, 64*1024))
	if err := s.WriteCSV(ctx, buffer, table); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// WriteCSV rend les lignes par batches sur le pool de workers puis les écrit dans l'ordre
func (s *ResultExporter) WriteCSV(ctx context.Context, w io.Writer, table domain.Table) error {
	rows, err := s.render(ctx, table)
	if err != nil {
		return err
	}
	return s.csv.Write(w, table.Headers, rows)
}

// ExportToFile écrit la table dans path au format du job
func (s *ResultExporter) ExportToFile(ctx context.Context, job *domain.ExportJob, table domain.Table, path string) error {
	if job == nil {
		return shareddomain.NewValidationError("export_job", "is required")
	}
	if job.Kind() != table.Kind {
		return shareddomain.NewValidationError("kind", fmt.Sprintf("job exports %s, table holds %s", job.Kind(), table.Kind))
	}
	start := time.Now()

	var err error
	switch job.Format() {
	case domain.ExportFormatCSV:
		err = s.writeCSVFile(ctx, path, table)
	case domain.ExportFormatParquet:
		if err = ctx.Err(); err == nil {
			rows := make([]any, len(table.Rows))
			for i, r := range table.Rows {
				rows[i] = r
			}
			err = s.parquet.WriteFile(path, table.Schema, rows)
		}
	}
	if err != nil {
		return err
	}

	s.logger.Info("results exported",
		zap.String("kind", string(table.Kind)),
		zap.String("format", string(job.Format())),
		zap.String("path", path),
		zap.Int("rows", table.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (s *ResultExporter) writeCSVFile(ctx context.Context, path string, table domain.Table) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return s.WriteCSV(ctx, f, table)
}

// render convertit les lignes en []string, un batch par tâche; chaque tâche
// écrit dans sa propre plage du résultat
func (s *ResultExporter) render(ctx context.Context, table domain.Table) ([][]string, error) {
	out := make([][]string, len(table.Rows))
	if len(table.Rows) <= s.batchSize {
		for i, r := range table.Rows {
			out[i] = r.ToCSVRow()
		}
		return out, ctx.Err()
	}

	pool := sharedinfra.NewWorkerPool(ctx, s.workers)
	pool.Start()
	for start := 0; start < len(table.Rows); start += s.batchSize {
		end := min(start+s.batchSize, len(table.Rows))
		err := pool.Submit(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				out[i] = table.Rows[i].ToCSVRow()
			}
			return nil
		})
		if err != nil {
			break
		}
	}
	if errs := pool.Wait(); len(errs) > 0 {
		return nil, errs[0]
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
