package infrastructure

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	customersdomain "demandinsights/internal/customers/domain"
	demanddomain "demandinsights/internal/demand/domain"
	shareddomain "demandinsights/internal/shared/domain"
)

// En-têtes des jeux de lignes; l'ordre des colonnes d'un fichier lu est libre
var (
	TransactionColumns = []string{
		"customer_id", "order_id", "order_date", "amount", "product_id",
		"quantity", "unit_price", "engagement_score", "satisfaction_score",
	}
	SalesColumns = []string{"product_id", "date", "quantity", "price"}
)

var (
	requiredTransactionColumns = []string{"customer_id", "order_date", "amount"}
	requiredSalesColumns       = SalesColumns
)

// csvRow accès par nom de colonne à une ligne CSV
type csvRow struct {
	line   int
	index  map[string]int
	fields []string
}

func (r csvRow) get(column string) string {
	i, ok := r.index[column]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r csvRow) float(column string) (float64, error) {
	raw := r.get(column)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, shareddomain.NewValidationError(column, fmt.Sprintf("line %d: %q is not a number", r.line, raw))
	}
	return v, nil
}

func (r csvRow) optionalFloat(column string) (*float64, error) {
	if r.get(column) == "" {
		return nil, nil
	}
	v, err := r.float(column)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// readCSV parcourt les lignes après l'en-tête; les colonnes requises doivent être présentes
func readCSV(r io.Reader, required []string, visit func(row csvRow) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return shareddomain.NewValidationError("csv", "missing header")
	}
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return shareddomain.NewValidationError("csv", "missing column "+col)
		}
	}

	for line := 2; ; line++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read csv line %d: %w", line, err)
		}
		if err := visit(csvRow{line: line, index: index, fields: fields}); err != nil {
			return err
		}
	}
}

// ReadTransactionsCSV lit un jeu de lignes transactions (dates 2006-01-02 ou RFC3339)
func ReadTransactionsCSV(r io.Reader) ([]customersdomain.TransactionRecord, error) {
	var out []customersdomain.TransactionRecord
	err := readCSV(r, requiredTransactionColumns, func(row csvRow) error {
		date, err := shareddomain.ParseDay(row.get("order_date"))
		if err != nil {
			return shareddomain.NewValidationError("order_date", fmt.Sprintf("line %d: %v", row.line, err))
		}
		tx := customersdomain.TransactionRecord{
			CustomerID: row.get("customer_id"),
			OrderID:    row.get("order_id"),
			OrderDate:  date,
			ProductID:  row.get("product_id"),
		}
		if tx.Amount, err = row.float("amount"); err != nil {
			return err
		}
		if tx.Quantity, err = row.float("quantity"); err != nil {
			return err
		}
		if tx.UnitPrice, err = row.float("unit_price"); err != nil {
			return err
		}
		if tx.EngagementScore, err = row.optionalFloat("engagement_score"); err != nil {
			return err
		}
		if tx.SatisfactionScore, err = row.optionalFloat("satisfaction_score"); err != nil {
			return err
		}
		out = append(out, tx)
		return nil
	})
	return out, err
}

// ReadSalesCSV lit un jeu de lignes ventes; les lignes ne sont pas validées ici
// (les couples prix/quantité non positifs restent visibles pour l'analyse d'élasticité)
func ReadSalesCSV(r io.Reader) ([]demanddomain.SalesRecord, error) {
	var out []demanddomain.SalesRecord
	err := readCSV(r, requiredSalesColumns, func(row csvRow) error {
		date, err := shareddomain.ParseDay(row.get("date"))
		if err != nil {
			return shareddomain.NewValidationError("date", fmt.Sprintf("line %d: %v", row.line, err))
		}
		s := demanddomain.SalesRecord{ProductID: row.get("product_id"), Date: date}
		if s.Quantity, err = row.float("quantity"); err != nil {
			return err
		}
		if s.Price, err = row.float("price"); err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// WriteTransactionsCSV écrit les transactions avec l'en-tête TransactionColumns
func WriteTransactionsCSV(w io.Writer, transactions []customersdomain.TransactionRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(TransactionColumns); err != nil {
		return err
	}
	for _, tx := range transactions {
		if err := writer.Write([]string{
			tx.CustomerID,
			tx.OrderID,
			tx.OrderDate.Format(shareddomain.DayLayout),
			formatFloat(tx.Amount),
			tx.ProductID,
			formatFloat(tx.Quantity),
			formatFloat(tx.UnitPrice),
			formatOptional(tx.EngagementScore),
			formatOptional(tx.SatisfactionScore),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSalesCSV écrit les ventes avec l'en-tête SalesColumns
func WriteSalesCSV(w io.Writer, sales []demanddomain.SalesRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(SalesColumns); err != nil {
		return err
	}
	for _, s := range sales {
		if err := writer.Write([]string{
			s.ProductID,
			s.Date.Format(shareddomain.DayLayout),
			formatFloat(s.Quantity),
			formatFloat(s.Price),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
