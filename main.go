// speedtest2dynamodb — Measures internet speed with speedtest-cli and stores the results in DynamoDB.
// Author: vesaa | License: MIT | https://github.com/vesaa/speedtest2dynamodb
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/vesaa/speedtest2dynamodb/internal/agent"
	"github.com/vesaa/speedtest2dynamodb/internal/config"
	"github.com/vesaa/speedtest2dynamodb/internal/export"
	"github.com/vesaa/speedtest2dynamodb/internal/logging"
	"github.com/vesaa/speedtest2dynamodb/internal/metrics"
	"github.com/vesaa/speedtest2dynamodb/internal/server"
	"github.com/vesaa/speedtest2dynamodb/internal/speedtest"
	"github.com/vesaa/speedtest2dynamodb/internal/store"
)

const version = "v0.1.0"

// Process exit codes.
const (
	exitOK          = 0
	exitFailure     = 1 // measurement failed, bad config, etc.
	exitWriteFailed = 2 // measured, but the record could not be stored
)

func main() {
	os.Exit(exitCode(newRootCommand().Execute()))
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, agent.ErrWriteFailed):
		return exitWriteFailed
	default:
		return exitFailure
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "speedtest2dynamodb",
		Short: "speedtest2dynamodb — run speedtest-cli and store the results",
		Long: `speedtest2dynamodb runs speedtest-cli once, parses ping, download and upload
from its output and writes one record to the DynamoDB table "speedtestresults".
Meant to be run from cron. Without a subcommand it behaves like "run".`,
		SilenceUsage: true,
	}

	// Flags shared by every subcommand override config values.
	root.PersistentFlags().String("driver", "", "Store driver: dynamodb or sqlite (overrides config)")
	root.PersistentFlags().String("table", "", "Table name (overrides config)")
	root.PersistentFlags().String("db", "", "SQLite database path (overrides config)")

	// ── run subcommand ────────────────────────────────────────────────────────
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Measure once and store the result",
		RunE:  runMeasurement,
	}
	runCmd.Flags().Bool("stderr", false, "Mirror log lines to stderr")
	root.RunE = runMeasurement
	root.Flags().AddFlagSet(runCmd.Flags())

	// ── export subcommand ─────────────────────────────────────────────────────
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write all stored results as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := logging.New(logConfig(cfg))
			if err != nil {
				return fmt.Errorf("initializing logging: %w", err)
			}
			defer log.Close()

			ctx := cmd.Context()
			st, err := store.Open(ctx, cfg, log.Logger)
			if err != nil {
				return err
			}
			defer st.Close()

			records, err := st.Scan(ctx)
			if err != nil {
				return fmt.Errorf("scanning %s: %w", cfg.TableName, err)
			}

			out := cmd.OutOrStdout()
			if path, _ := cmd.Flags().GetString("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("creating %s: %w", path, err)
				}
				defer f.Close()
				out = f
			}
			if err := export.WriteCSV(out, records, time.Local); err != nil {
				return fmt.Errorf("writing CSV: %w", err)
			}
			log.Info().Int("records", len(records)).Msg("Exported")
			return nil
		},
	}
	exportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")

	// ── serve subcommand ──────────────────────────────────────────────────────
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored results over HTTP (JSON, CSV and Prometheus metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.ServeAddr = addr
			}
			log, err := logging.New(logConfig(cfg))
			if err != nil {
				return fmt.Errorf("initializing logging: %w", err)
			}
			defer log.Close()

			st, err := store.Open(cmd.Context(), cfg, log.Logger)
			if err != nil {
				return err
			}
			defer st.Close()

			gin.SetMode(gin.ReleaseMode)
			engine := gin.New()
			engine.Use(gin.Recovery())
			server.New(st, time.Local, log.Logger).RegisterRoutes(engine, cfg.ServeToken)

			fmt.Printf("  ✓ Serving %s (%s) → http://%s\n", cfg.TableName, cfg.StoreDriver, cfg.ServeAddr)
			if cfg.ServeToken == "" {
				fmt.Println("  ! serve_token is empty, the API is unauthenticated")
			}

			// Shut down gracefully on SIGINT.
			srv := &http.Server{Addr: cfg.ServeAddr, Handler: engine}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt)

			select {
			case err := <-errCh:
				return err
			case <-quit:
				fmt.Println("\n  → Shutting down gracefully…")
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}
	serveCmd.Flags().String("addr", "", "Listen address, e.g. 0.0.0.0:8080 (overrides config)")

	// ── version subcommand ────────────────────────────────────────────────────
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print speedtest2dynamodb version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "speedtest2dynamodb %s  |  Author: vesaa\n", version)
		},
	}

	root.AddCommand(runCmd, exportCmd, serveCmd, versionCmd)
	return root
}

// runMeasurement is the cron entry point: one measurement, one record.
func runMeasurement(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if stderr, _ := cmd.Flags().GetBool("stderr"); stderr {
		cfg.LogStderr = true
	}

	log, err := logging.New(logConfig(cfg))
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer log.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	recorder := metrics.NewRecorder()
	defer func() {
		if cfg.MetricsTextfile == "" {
			return
		}
		if err := recorder.WriteTextfile(cfg.MetricsTextfile); err != nil {
			log.Warn().Err(err).Msg("Metrics textfile not written")
		}
	}()

	st, err := store.Open(ctx, cfg, log.Logger)
	if err != nil {
		log.Error().Err(err).Str("driver", cfg.StoreDriver).Msg("Opening store failed")
		return err
	}
	defer st.Close()

	writer := store.NewWriter(st, store.RetryPolicy{
		MaxAttempts: cfg.WriteMaxAttempts,
		BaseDelay:   cfg.WriteBaseDelay,
	}, log.Logger)
	writer.SetObserver(recorder)

	measurer := speedtest.Command{
		Path:    cfg.SpeedtestPath,
		Args:    cfg.SpeedtestArgs,
		Timeout: cfg.SpeedtestTimeout,
	}
	a := agent.New(measurer, writer, log.Logger, agent.Options{Observer: recorder})
	_, err = a.RunOnce(ctx)
	return err
}

// loadConfig loads config and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	applyFlagOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if driver, _ := cmd.Flags().GetString("driver"); driver != "" {
		cfg.StoreDriver = driver
	}
	if table, _ := cmd.Flags().GetString("table"); table != "" {
		cfg.TableName = table
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.DBPath = db
	}
}

func logConfig(cfg *config.Config) logging.Config {
	return logging.Config{
		FilePath:   cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		Stderr:     cfg.LogStderr,
	}
}
