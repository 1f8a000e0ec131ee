package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mkuiper/donorsync/internal/adapters/mollie"
	"github.com/mkuiper/donorsync/internal/adapters/roster"
	"github.com/mkuiper/donorsync/internal/api"
	"github.com/mkuiper/donorsync/internal/application/reconcile"
	"github.com/mkuiper/donorsync/internal/domain/matcher"
	"github.com/mkuiper/donorsync/internal/infrastructure/config"
	"github.com/mkuiper/donorsync/internal/infrastructure/storage"
	"github.com/mkuiper/donorsync/internal/observability"
)

// CLI holds the global flags.
type CLI struct {
	configFile string
	verbose    bool
}

func main() {
	cli := &CLI{}

	flag.StringVar(&cli.configFile, "config", "", "Configuration file path")
	flag.BoolVar(&cli.verbose, "verbose", false, "Enable verbose logging")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	subArgs := args[1:]

	cfg := loadConfig(cli.configFile)

	logLevel := cfg.Observability.Logging.Level
	if cli.verbose {
		logLevel = "debug"
	}
	logger := observability.NewLogger(config.LoggingConfig{
		Level:  logLevel,
		Format: cfg.Observability.Logging.Format,
	})

	switch subcommand {
	case "sync":
		handleSyncCommand(subArgs, cfg, logger)
	case "api":
		handleAPICommand(subArgs, cfg, logger)
	case "purge":
		handlePurgeCommand(subArgs, cfg, logger)
	default:
		fmt.Printf("Unknown subcommand: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("donorsync - reconcile a donor roster against the payment provider")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  donorsync [global options] <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  sync     Reconcile the roster (customers, mandates, subscriptions)")
	fmt.Println("  api      Serve the run-history dashboard API")
	fmt.Println("  purge    Delete remote customers matching the roster (maintenance)")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  -config string      Configuration file path")
	fmt.Println("  -verbose            Enable verbose logging")
}

func loadConfig(configFile string) *config.Config {
	if configFile == "" {
		candidates := []string{"config.yaml", "config.yml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				configFile = candidate
				break
			}
		}
	}

	if configFile == "" {
		return config.LoadFromEnv()
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func handleSyncCommand(args []string, cfg *config.Config, logger *slog.Logger) {
	syncFlags := flag.NewFlagSet("sync", flag.ExitOnError)
	rosterPath := syncFlags.String("file", "", "Roster CSV path (overrides config)")
	dryRun := syncFlags.Bool("dry-run", false, "Preview changes without applying")
	if err := syncFlags.Parse(args); err != nil {
		logger.Error("Failed to parse sync flags", "error", err)
		os.Exit(1)
	}

	if *rosterPath != "" {
		cfg.Roster.Path = *rosterPath
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration error", "error", err)
		os.Exit(1)
	}

	policy, err := matcher.ParseSelectionPolicy(cfg.Subscription.SelectionPolicy)
	if err != nil {
		logger.Error("Configuration error", "error", err)
		os.Exit(1)
	}

	records, err := roster.NewParser(logger).ParseFile(cfg.Roster.Path)
	if err != nil {
		logger.Error("Failed to read roster", "path", cfg.Roster.Path, "error", err)
		os.Exit(1)
	}
	logger.Info("roster loaded", "path", cfg.Roster.Path, "records", len(records))

	store := openStorage(cfg, logger)
	if store != nil {
		defer store.Close()
	}

	client := mollie.NewClient(cfg.Mollie.APIKey)
	pipeline := reconcile.NewPipeline(client, reconcile.Config{
		Description: cfg.Subscription.Description,
		WebhookURL:  cfg.Subscription.WebhookURL,
		Interval:    cfg.Subscription.Interval,
		Policy:      policy,
	}, store, logger)

	summary, err := pipeline.Run(context.Background(), records, reconcile.Options{DryRun: *dryRun})
	if err != nil {
		logger.Error("Reconciliation aborted", "error", err)
		os.Exit(1)
	}

	printSummary(summary, *dryRun)
}

func printSummary(summary *reconcile.Summary, dryRun bool) {
	if dryRun {
		fmt.Println("Dry run - nothing was created.")
	}
	fmt.Printf("Records parsed:        %d\n", summary.RecordsParsed)
	printStage("Customers", summary.Customers)
	printStage("Mandates", summary.Mandates)
	printStage("Subscriptions", summary.Subscriptions)
}

func printStage(name string, c reconcile.Counts) {
	fmt.Printf("%-14s retrieved %d, created %d, failed %d\n", name+":", c.Found, c.Created, c.Failed)
}

func handleAPICommand(args []string, cfg *config.Config, logger *slog.Logger) {
	apiFlags := flag.NewFlagSet("api", flag.ExitOnError)
	port := apiFlags.String("port", "8080", "Port to listen on")
	if err := apiFlags.Parse(args); err != nil {
		logger.Error("Failed to parse api flags", "error", err)
		os.Exit(1)
	}

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("Failed to open storage", "path", cfg.Storage.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	server := api.NewServer(store, logger)
	if err := server.Run(*port); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}

func handlePurgeCommand(args []string, cfg *config.Config, logger *slog.Logger) {
	purgeFlags := flag.NewFlagSet("purge", flag.ExitOnError)
	rosterPath := purgeFlags.String("file", "", "Roster CSV path (overrides config)")
	confirm := purgeFlags.Bool("yes", false, "Confirm deletion")
	if err := purgeFlags.Parse(args); err != nil {
		logger.Error("Failed to parse purge flags", "error", err)
		os.Exit(1)
	}

	if !*confirm {
		fmt.Println("purge deletes remote customers; re-run with -yes to confirm")
		os.Exit(1)
	}

	if *rosterPath != "" {
		cfg.Roster.Path = *rosterPath
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration error", "error", err)
		os.Exit(1)
	}

	records, err := roster.NewParser(logger).ParseFile(cfg.Roster.Path)
	if err != nil {
		logger.Error("Failed to read roster", "path", cfg.Roster.Path, "error", err)
		os.Exit(1)
	}

	client := mollie.NewClient(cfg.Mollie.APIKey)
	deleted, err := reconcile.PurgeCustomers(context.Background(), client, records, logger)
	if err != nil {
		logger.Error("Purge failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Deleted %d customers\n", deleted)
}

func openStorage(cfg *config.Config, logger *slog.Logger) *storage.Storage {
	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		// Run history is best effort; reconciliation proceeds without it.
		logger.Warn("Failed to open storage, run history disabled", "error", err)
		return nil
	}
	return store
}
