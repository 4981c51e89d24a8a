package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storekit-io/shopbulk/internal/pipeline"
	"github.com/storekit-io/shopbulk/pkg/config"
	"github.com/storekit-io/shopbulk/pkg/logger"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "shopbulk",
		Short: "shopbulk - Shopify Admin GraphQL bulk extractor",
		Long: `shopbulk extracts Shopify store data through the Admin GraphQL Bulk
Operations API and writes typed CSV tables with manifests, ready for
warehouse loading.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("shopbulk v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "entities",
		Short: "List extractable endpoints",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range pipeline.Names() {
				fmt.Printf("  - %s\n", name)
			}
		},
	})

	var configFile, logLevel string
	var timeout time.Duration
	var debug bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run an extraction",
		Long: `Run an extraction with the given configuration file.

The API token is read from the configuration or the SHOPIFY_API_TOKEN
environment variable via ${SHOPIFY_API_TOKEN} substitution.

Example:
  shopbulk run --config config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtraction(configFile, logLevel, timeout, debug)
		},
	}

	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file (required)")
	_ = runCmd.MarkFlagRequired("config")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	runCmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall run timeout, 0 for none")
	runCmd.Flags().BoolVar(&debug, "debug", false, "Retain downloaded artifacts and log verbosely")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runExtraction loads configuration and drives one full extraction run
func runExtraction(configFile, logLevel string, timeout time.Duration, debug bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if debug {
		cfg.Debug = true
	}
	if cfg.Debug && logLevel == "info" {
		logLevel = "debug"
	}

	if err := logger.Init(logger.Config{Level: logLevel, Encoding: "json"}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	log := logger.With(zap.String("component", "shopbulk-cli"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	runner := pipeline.NewRunner(cfg, logger.Get())
	defer runner.Close()

	start := time.Now()
	if err := runner.Run(ctx); err != nil {
		return err
	}
	log.Info("run completed", zap.Duration("duration", time.Since(start)))
	return nil
}
