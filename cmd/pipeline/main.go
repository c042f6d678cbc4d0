package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/app"
	"github.com/user/legalcode-service/pkg/config"
	"github.com/user/legalcode-service/pkg/logger"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:           "pipeline",
	Short:         "Municipal legal-code acquisition and versioning pipeline",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to env config file (default .env)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(summaryCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and wires the pipeline for one command.
func bootstrap(ctx context.Context) (*config.Config, *zap.Logger, *app.App, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}
	a, err := app.New(ctx, ctx, cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, a, nil
}
