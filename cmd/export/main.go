package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/audit"
	"github.com/veilhq/veil/internal/config"
	"github.com/veilhq/veil/internal/export"
	"github.com/veilhq/veil/internal/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		outputFile = flag.String("output", "", "Output file (CSV, Parquet, or JSON)")
		eventType  = flag.String("type", "", "Only export events of this type")
		severity   = flag.String("severity", "", "Only export events of this severity")
		sinceDays  = flag.Int("since-days", 0, "Only export events from the last N days")
		limit      = flag.Int("limit", 0, "Maximum number of events to export")
		showStats  = flag.Bool("stats", false, "Show audit statistics and exit")
	)
	flag.Parse()

	if *outputFile == "" && !*showStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --output audit.parquet --since-days 30\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --output detections.csv --type pii_detection\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Veil audit export",
		zap.String("version", "0.1.0"),
		zap.String("output", *outputFile))

	if cfg.Audit.DatabaseURL == "" {
		log.Fatal("Audit export requires a configured audit database")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling export...")
		cancel()
	}()

	store, err := audit.NewPostgresStore(&cfg.Audit, log.WithComponent("audit").Logger)
	if err != nil {
		log.Fatal("Failed to initialize audit store", zap.Error(err))
	}
	defer store.Close()

	if *showStats {
		if err := showAuditStats(ctx, store); err != nil {
			log.Fatal("Failed to show stats", zap.Error(err))
		}
		return
	}

	filter := audit.Filter{
		Type:     *eventType,
		Severity: *severity,
		Limit:    *limit,
	}
	if *sinceDays > 0 {
		filter.Since = time.Now().AddDate(0, 0, -*sinceDays)
	}

	exporter := export.New(store, log.WithComponent("export").Logger)
	result, err := exporter.Export(ctx, filter, *outputFile)
	if err != nil {
		log.Fatal("Export failed", zap.Error(err))
	}

	log.Info("Export completed",
		zap.String("file", result.OutputFile),
		zap.String("format", string(result.Format)),
		zap.Int64("total_events", result.TotalEvents),
		zap.Int64("written", result.Written),
		zap.Int64("failed", result.Failed),
		zap.Duration("duration", result.Duration))
}

// showAuditStats displays current audit trail statistics
func showAuditStats(ctx context.Context, store audit.Store) error {
	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get audit stats: %w", err)
	}

	fmt.Printf("\n=== Veil Audit Trail Statistics ===\n")
	fmt.Printf("Total Events:       %d\n", stats.TotalEvents)
	fmt.Printf("Events (24h):       %d\n", stats.Last24h)

	fmt.Printf("\nBy type (24h):\n")
	for eventType, count := range stats.ByType {
		fmt.Printf("  %-20s %d\n", eventType, count)
	}

	fmt.Printf("\nBy severity (24h):\n")
	for severity, count := range stats.BySeverity {
		fmt.Printf("  %-20s %d\n", severity, count)
	}

	return nil
}
