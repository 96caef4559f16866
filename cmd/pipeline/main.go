package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"xbrl_warehouse/pkg/core/normalize"
	"xbrl_warehouse/pkg/core/pipeline"
	"xbrl_warehouse/pkg/core/taxonomy"
	"xbrl_warehouse/pkg/core/warehouse"
)

func main() {
	dir := flag.String("dir", "filings", "directory of parsed filing documents (*.json)")
	configPath := flag.String("config", "pipeline.hjson", "pipeline config file (HJSON)")
	validateOnly := flag.Bool("validate", false, "run only the warehouse validation pass")
	replayFiling := flag.Int64("filing", 0, "rerun organization and materialization for one loaded filing id")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	if err := godotenv.Load(); err != nil {
		log.Debug(".env file not found, assuming environment variables are set")
	}

	cfg, err := pipeline.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	fmt.Println("🏦 XBRL Warehouse Pipeline Starting...")

	ctx := context.Background()
	pool, err := warehouse.ConnectFromEnv(ctx, cfg.Workers)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	fmt.Println("\n[1] SCHEMA")
	if err := warehouse.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("schema: %v", err)
	}
	fmt.Println("Warehouse schema ready.")

	fmt.Println("\n[2] TAXONOMIES")
	tax := taxonomy.NewStore(cfg.TaxonomyDir)
	if err := tax.Load(cfg.Taxonomies); err != nil {
		// Corrupt taxonomy data must never feed the normalizer.
		log.Fatalf("taxonomy: %v", err)
	}
	fmt.Printf("Loaded taxonomies: %v\n", tax.LoadedTaxonomies())

	var overlay []normalize.CuratedEntry
	if cfg.MappingsFile != "" {
		overlay, err = normalize.LoadMappingsOverlay(cfg.MappingsFile)
		if err != nil {
			log.Fatalf("mappings overlay: %v", err)
		}
		fmt.Printf("Curated overlay: %d entries from %s\n", len(overlay), cfg.MappingsFile)
	}
	norm := normalize.New(tax, overlay)

	orch := pipeline.New(pool, tax, norm, cfg)

	if *replayFiling != 0 {
		fmt.Printf("\n[3] REPLAY FILING %d\n", *replayFiling)
		if err := orch.ReplayFiling(ctx, *replayFiling); err != nil {
			log.Fatalf("replay: %v", err)
		}
		fmt.Println("Filing rebuilt.")
		return
	}

	if *validateOnly {
		fmt.Println("\n[3] VALIDATION")
		report, err := orch.Validate(ctx)
		if err != nil {
			log.Fatalf("validation: %v", err)
		}
		printVerdict(report.Score, report.Passed)
		return
	}

	fmt.Printf("\n[3] PIPELINE RUN %s\n", orch.RunID())
	fmt.Printf("Filings dir: %s, workers: %d\n", *dir, cfg.Workers)
	summary, err := orch.Run(ctx, *dir)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	fmt.Println("\n[4] RESULTS")
	failed := 0
	for _, o := range summary.Outcomes {
		if o.Err != nil {
			failed++
			fmt.Printf("  ❌ %s FY%d: %v\n", o.Company, o.Year, o.Err)
			continue
		}
		fmt.Printf("  ✅ %s FY%d: filing %d, %d facts (%s)\n",
			o.Company, o.Year, o.FilingID, o.Facts, o.Elapsed.Round(time.Millisecond))
	}
	fmt.Printf("Processed %d filings, %d failed.\n", len(summary.Outcomes), failed)

	fmt.Println("\n[5] VALIDATION")
	if summary.Report != nil {
		printVerdict(summary.Report.Score, summary.Report.Passed)
	}

	fmt.Println("\n[Done] Pipeline complete.")
	if failed > 0 || (summary.Report != nil && !summary.Report.Passed) {
		os.Exit(1)
	}
}

func printVerdict(score float64, passed bool) {
	if passed {
		fmt.Printf("Validation score %.3f: PASSED\n", score)
		return
	}
	fmt.Printf("Validation score %.3f: FAILED\n", score)
}
