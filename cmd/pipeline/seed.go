package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/user/legalcode-service/internal/adapter/seed"
	"github.com/user/legalcode-service/internal/app"
)

var (
	flagLocations  string
	flagDatapoints string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load locations and datapoints into the database",
	Long: `Read the locations CSV and the datapoint catalog YAML and upsert every valid record.

Paths default to LOCATIONS_CSV and DATAPOINTS_YAML from config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		defer func() { _ = log.Sync() }()

		locPath, dpPath := cfg.LocationsCSV, cfg.DatapointsYAML
		if flagLocations != "" {
			locPath = flagLocations
		}
		if flagDatapoints != "" {
			dpPath = flagDatapoints
		}
		return runSeed(cmd.Context(), cmd.OutOrStdout(), a, locPath, dpPath)
	},
}

func init() {
	seedCmd.Flags().StringVar(&flagLocations, "locations", "", "locations CSV file")
	seedCmd.Flags().StringVar(&flagDatapoints, "datapoints", "", "datapoint catalog YAML file")
}

func runSeed(ctx context.Context, out io.Writer, a *app.App, locPath, dpPath string) error {
	locs, dps, err := seed.LoadFiles(locPath, dpPath)
	if err != nil {
		return fmt.Errorf("reading seed files: %w", err)
	}
	rep, err := a.Seeder.Seed(ctx, locs, dps)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d location(s) and %d datapoint(s); skipped %d invalid record(s).\n",
		rep.Locations, rep.Datapoints, rep.Skipped)
	return nil
}
