package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"demandinsights/internal/config"
	customersdomain "demandinsights/internal/customers/domain"
	demanddomain "demandinsights/internal/demand/domain"
	exportapp "demandinsights/internal/export/application"
	exportdomain "demandinsights/internal/export/domain"
	ingestinfra "demandinsights/internal/ingest/infrastructure"
	insightsapp "demandinsights/internal/insights/application"
	insightsdomain "demandinsights/internal/insights/domain"
	shareddomain "demandinsights/internal/shared/domain"
	sharedinfra "demandinsights/internal/shared/infrastructure"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal("❌ ", err)
	}
}

// options paramètres de la ligne de commande
type options struct {
	op         string
	in         string
	out        string
	configPath string
	dsn        string
	relation   string
	product    string
	asOf       string
	horizon    int
	holdout    int
	verbose    bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.StringVar(&o.op, "op", "", "opération: segments, forecast, elasticity, clv, churn")
	fs.StringVar(&o.in, "in", "", "fichier d'entrée .csv ou .parquet")
	fs.StringVar(&o.out, "out", "", "fichier de sortie .csv ou .parquet (JSON sur stdout sinon)")
	fs.StringVar(&o.configPath, "config", "", "fichier YAML de configuration")
	fs.StringVar(&o.dsn, "dsn", "", "chaîne de connexion PostgreSQL (remplace -in)")
	fs.StringVar(&o.relation, "relation", "", "table ou vue matérialisée lue avec -dsn")
	fs.StringVar(&o.product, "product", "", "produit à prévoir (forecast)")
	fs.StringVar(&o.asOf, "as-of", "", "date d'analyse YYYY-MM-DD (dernière commande par défaut)")
	fs.IntVar(&o.horizon, "horizon", 0, "horizon de prévision en jours (config par défaut)")
	fs.IntVar(&o.holdout, "holdout", 0, "jours de holdout pour les labels CLV/churn observés")
	fs.BoolVar(&o.verbose, "v", false, "logs JSON détaillés")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	switch o.op {
	case string(exportdomain.ExportKindSegments), string(exportdomain.ExportKindForecast),
		string(exportdomain.ExportKindElasticity), string(exportdomain.ExportKindCLV), string(exportdomain.ExportKindChurn):
	default:
		return o, shareddomain.NewValidationError("op", fmt.Sprintf("unknown operation %q", o.op))
	}
	if (o.in == "") == (o.dsn == "") {
		return o, shareddomain.NewValidationError("in", "exactly one of -in and -dsn is required")
	}
	if o.dsn != "" && o.relation == "" {
		return o, shareddomain.NewValidationError("relation", "is required with -dsn")
	}
	return o, nil
}

// ============================================================================
// EXÉCUTION
//
// Lecture des lignes (fichier ou PostgreSQL), appel du moteur, puis export de la
// table de résultats dans -out ou JSON indenté sur stdout.
// ============================================================================
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logger := zap.NewNop()
	if opts.verbose {
		if logger, err = sharedinfra.NewLogger(cfg.LogLevel); err != nil {
			return err
		}
		defer logger.Sync()
	}

	registry, err := sharedinfra.NewModelRegistry(cfg.RegistryCapacity, logger.Named("registry"))
	if err != nil {
		return err
	}
	engine := insightsapp.NewEngine(cfg, registry, logger)

	in := &input{opts: opts, loader: ingestinfra.NewFileLoader(cfg.Workers)}
	if opts.dsn != "" {
		db, err := ingestinfra.OpenPostgres(opts.dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		in.sql = ingestinfra.NewSQLSource(db)
		in.sql.WithContext(ctx)
	}

	var (
		result any
		table  exportdomain.Table
	)
	switch exportdomain.ExportKind(opts.op) {
	case exportdomain.ExportKindSegments, exportdomain.ExportKindCLV, exportdomain.ExportKindChurn:
		req, err := in.customerRequest()
		if err != nil {
			return err
		}
		result, table, err = customerOp(ctx, engine, exportdomain.ExportKind(opts.op), req)
		if err != nil {
			return err
		}
	case exportdomain.ExportKindForecast:
		sales, err := in.sales()
		if err != nil {
			return err
		}
		req := insightsdomain.ForecastRequest{Sales: sales, HorizonDays: opts.horizon}
		if opts.product != "" {
			req.ProductID = &opts.product
		}
		resp, err := engine.Forecast(ctx, req)
		if err != nil {
			return err
		}
		result, table = resp, exportdomain.ForecastTable(resp)
	case exportdomain.ExportKindElasticity:
		sales, err := in.sales()
		if err != nil {
			return err
		}
		resp, err := engine.Elasticity(ctx, insightsdomain.ElasticityRequest{History: demanddomain.PricePointsFromSales(sales)})
		if err != nil {
			return err
		}
		result, table = resp, exportdomain.ElasticityTable(resp)
	}

	if opts.out == "" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	format, err := exportdomain.FormatFromPath(opts.out)
	if err != nil {
		return err
	}
	job, err := exportdomain.NewExportJob(format, table.Kind)
	if err != nil {
		return err
	}
	exporter := exportapp.NewResultExporter(cfg, logger.Named("export"))
	if err := exporter.ExportToFile(ctx, job, table, opts.out); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d %s rows -> %s\n", table.Len(), table.Kind, opts.out)
	return nil
}

func customerOp(
	ctx context.Context,
	engine *insightsapp.Engine,
	kind exportdomain.ExportKind,
	req insightsdomain.CustomerRequest,
) (any, exportdomain.Table, error) {
	switch kind {
	case exportdomain.ExportKindSegments:
		resp, err := engine.Segments(ctx, req)
		if err != nil {
			return nil, exportdomain.Table{}, err
		}
		return resp, exportdomain.SegmentsTable(resp), nil
	case exportdomain.ExportKindCLV:
		resp, err := engine.CLV(ctx, req)
		if err != nil {
			return nil, exportdomain.Table{}, err
		}
		return resp, exportdomain.CLVTable(resp), nil
	default:
		resp, err := engine.Churn(ctx, req)
		if err != nil {
			return nil, exportdomain.Table{}, err
		}
		return resp, exportdomain.ChurnTable(resp), nil
	}
}

// input source des lignes: fichier ou relation PostgreSQL
type input struct {
	opts   options
	loader *ingestinfra.FileLoader
	sql    *ingestinfra.SQLSource
}

func (in *input) customerRequest() (insightsdomain.CustomerRequest, error) {
	req := insightsdomain.CustomerRequest{HoldoutDays: in.opts.holdout}
	var asOf *time.Time
	if in.opts.asOf != "" {
		day, err := shareddomain.ParseDay(in.opts.asOf)
		if err != nil {
			return req, err
		}
		asOf = &day
		req.AsOf = asOf
	}

	var (
		txs []customersdomain.TransactionRecord
		err error
	)
	if in.sql != nil {
		cutoff := time.Now().UTC()
		if asOf != nil {
			cutoff = *asOf
		}
		txs, err = in.sql.Transactions(in.opts.relation, cutoff)
	} else {
		txs, err = in.loader.LoadTransactions(in.opts.in)
	}
	req.Transactions = txs
	return req, err
}

func (in *input) sales() ([]demanddomain.SalesRecord, error) {
	if in.sql != nil {
		var product *string
		if in.opts.product != "" {
			product = &in.opts.product
		}
		return in.sql.Sales(in.opts.relation, product)
	}
	return in.loader.LoadSales(in.opts.in)
}
