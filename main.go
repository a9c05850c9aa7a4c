package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"leadboard/config"
	"leadboard/services"
	"leadboard/source"
	"leadboard/storage"
	"leadboard/utils"
)

var (
	cfg    *config.Config
	logger *utils.Logger

	// Filter flags shared by every pipeline command.
	criteriaIn services.CriteriaInput
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "leadboard",
	Short: "Aggregate customers, leads and follow-ups across messaging accounts",
	Long: `leadboard pages through every connected account's conversations, calls,
leads and follow-ups, folds them into one record per customer and lets you
list, export and report on the result.

Configuration is read from the environment or a .env file.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logger = utils.NewLogger(cfg.LogLevel)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&criteriaIn.Search, "search", "", "match phone, name or email (substring, case-insensitive)")
	f.StringVar(&criteriaIn.DateRange, "range", "", "all, 7days, 30days, 90days or custom")
	f.StringVar(&criteriaIn.Start, "start", "", "custom range start (YYYY-MM-DD or RFC3339)")
	f.StringVar(&criteriaIn.End, "end", "", "custom range end, inclusive (YYYY-MM-DD or RFC3339)")
	f.StringVar(&criteriaIn.DateField, "date-field", "", "firstSeen or lastSeen for custom ranges")
	f.StringVar(&criteriaIn.Status, "status", "", "status to keep, or all")
	f.StringVar(&criteriaIn.Keywords, "keywords", "", "comma separated keywords that must all match")
	f.StringVar(&criteriaIn.Sort, "sort", "", "lastSeen, firstSeen, messageCount or name")
	f.StringVar(&criteriaIn.Order, "order", "", "desc or asc")

	rootCmd.AddCommand(listCmd, exportCmd, reportCmd, serveCmd)
}

// buildPipeline wires the configured backend. The returned func releases it.
func buildPipeline() (*services.Pipeline, func(), error) {
	var (
		src      source.Source
		accounts source.AccountLister
		cleanup  = func() {}
	)

	switch cfg.SourceBackend {
	case "postgres":
		pg, err := storage.NewPostgresSource(cfg.DSN())
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL: %v", err)
			return nil, nil, err
		}
		src, accounts = pg, pg
		cleanup = func() { pg.Close() }
	case "http", "":
		client := source.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamToken, cfg.UpstreamTimeout, cfg.MaxRetries, logger)
		src, accounts = client, client
	default:
		return nil, nil, fmt.Errorf("unknown SOURCE_BACKEND %q (want http or postgres)", cfg.SourceBackend)
	}

	if cfg.SourcesFile != "" {
		static, err := config.LoadSources(cfg.SourcesFile)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		logger.Info("Using %d accounts from %s", len(static.Accounts), cfg.SourcesFile)
		accounts = static
	}

	logger.Info("Config: backend: %s | page size: %d | max pages: %d | concurrency: %d | rate: %dms",
		cfg.SourceBackend, cfg.PageSize, cfg.MaxPages, cfg.MaxConcurrency, cfg.RateLimitMs)

	p := services.NewPipeline(services.Options{
		Accounts:    accounts,
		Source:      src,
		PageSize:    cfg.PageSize,
		MaxPages:    cfg.MaxPages,
		Concurrency: cfg.MaxConcurrency,
		RateLimit:   cfg.RateLimit(),
		Normalizer:  services.NewNormalizer(cfg.DefaultCountryCode),
		Location:    cfg.Location(),
		TimeLayout:  cfg.ExportTimeLayout,
		Logger:      logger,
	})
	return p, cleanup, nil
}

func warnFailedSources(failed []string) {
	if len(failed) > 0 {
		logger.Warn("%d sources failed and are missing from the result: %v", len(failed), failed)
	}
}
