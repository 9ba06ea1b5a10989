package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tenkindex/internal/app"
	"tenkindex/internal/config"
	"tenkindex/internal/logger"
)

var (
	verbose     bool
	companyName string
	ticker      string
	cfg         *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "tenkindex",
	Short:         "Index 10-K filings for financial fact lookup and hybrid search",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		handler := logger.NewContextHandler(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(slog.New(handler))

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	for _, c := range []*cobra.Command{ingestCmd, extractCmd} {
		c.Flags().StringVar(&companyName, "company", "", "Company name (read from the filing when empty)")
		c.Flags().StringVar(&ticker, "ticker", "", "Ticker symbol (read from the filing when empty)")
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(extractCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the ingestion worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, slog.Default())
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Index filings synchronously, without the queue",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 1 && (companyName != "" || ticker != "") {
			return errors.New("--company and --ticker apply to a single file")
		}
		ctx := cmd.Context()

		deps, err := app.Bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		defer deps.Close()

		a, err := app.New(cfg, deps.DB, deps.VectorStore, deps.NSQProducer, deps.Embedder, slog.Default())
		if err != nil {
			return err
		}
		defer a.Close()

		var failed int
		for _, path := range args {
			start := time.Now()
			res, err := a.IngestFile(ctx, path, companyName, ticker)
			if err != nil {
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %s: %v\n", path, err)
				continue
			}
			rec := res.Record
			fmt.Fprintf(cmd.OutOrStdout(), "OK   %s  %s (%s)  %s chunks, %s uploaded in %s\n",
				path, rec.CompanyName, rec.Ticker,
				humanize.Comma(int64(res.Chunks)), humanize.Comma(int64(res.Uploaded)),
				time.Since(start).Round(time.Millisecond))
			if res.ZeroVectorBatches > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "     %d embedding batches fell back to zero vectors\n", res.ZeroVectorBatches)
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d filings indexed\n", len(args)-failed, len(args))
		if failed > 0 {
			return fmt.Errorf("%d filings failed", failed)
		}
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Print the financial facts of one filing as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := app.ExtractFile(cmd.Context(), cfg, args[0], companyName, ticker)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

// run bootstraps every dependency and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	a, err := app.New(cfg, deps.DB, deps.VectorStore, deps.NSQProducer, deps.Embedder, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.EnableWorker {
		consumer, err := a.StartWorker()
		if err != nil {
			return err
		}
		defer func() {
			consumer.Stop()
			<-consumer.StopChan
		}()
	}

	if !cfg.EnableAPI {
		logger.Info("api disabled, running worker only")
		<-ctx.Done()
		return nil
	}
	return a.Run(ctx)
}
