package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"demandinsights/internal/config"
	ingestinfra "demandinsights/internal/ingest/infrastructure"
	shareddomain "demandinsights/internal/shared/domain"
)

func main() {
	// Charge .env
	if err := godotenv.Load(); err != nil {
		log.Println("Attention: fichier .env non trouvé, utilisation des valeurs par défaut")
	}

	customers, _ := strconv.Atoi(config.Getenv("SEED_CUSTOMERS", "2000"))
	products, _ := strconv.Atoi(config.Getenv("SEED_PRODUCTS", "20"))
	years, _ := strconv.Atoi(config.Getenv("SEED_YEARS", "2"))

	flag.IntVar(&customers, "customers", customers, "nombre de clients")
	flag.IntVar(&products, "products", products, "nombre de produits")
	flag.IntVar(&years, "years", years, "années d'historique")
	end := flag.String("end", time.Now().UTC().Format(shareddomain.DayLayout), "dernier jour généré (YYYY-MM-DD)")
	seed := flag.Uint64("seed", 42, "graine du générateur")
	outDir := flag.String("out", "data", "répertoire de sortie")
	format := flag.String("format", "csv", "format des fichiers: csv ou parquet")
	flag.Parse()

	if customers < 1 || products < 1 || years < 1 {
		log.Fatal("❌ customers, products et years doivent être >= 1")
	}
	if *format != "csv" && *format != "parquet" {
		log.Fatal("❌ format inconnu: ", *format)
	}
	endDay, err := shareddomain.ParseDay(*end)
	if err != nil {
		log.Fatal("❌ ", err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatal("❌ ", err)
	}

	gen := NewGenerator(Options{
		Customers: customers,
		Products:  products,
		Years:     years,
		End:       endDay,
		Seed:      *seed,
		Progress:  true,
	})
	loader := ingestinfra.NewFileLoader(4)

	fmt.Println("🌱 Génération des données synthétiques...")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	transactions := gen.Transactions()
	txPath := filepath.Join(*outDir, "transactions."+*format)
	if err := loader.SaveTransactions(txPath, transactions); err != nil {
		log.Fatal("❌ Erreur écriture transactions: ", err)
	}
	fmt.Printf("   ✅ %d lignes de transactions -> %s\n", len(transactions), txPath)

	sales := gen.Sales()
	salesPath := filepath.Join(*outDir, "sales."+*format)
	if err := loader.SaveSales(salesPath, sales); err != nil {
		log.Fatal("❌ Erreur écriture ventes: ", err)
	}
	fmt.Printf("   ✅ %d ventes journalières -> %s\n", len(sales), salesPath)

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("✅ Seed terminé avec succès!")
	fmt.Println()
	fmt.Println("Vous pouvez maintenant lancer une analyse avec:")
	fmt.Printf("  go run ./cmd/analyze -op segments -in %s\n", txPath)
	fmt.Printf("  go run ./cmd/analyze -op forecast -in %s -out forecast.csv\n", salesPath)
}
