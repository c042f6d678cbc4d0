package main

import (
	"github.com/spf13/cobra"
)

var flagSeedFirst bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once over every location and datapoint",
	Long: `Process every (location, datapoint) unit, deferred units first, and print the run summary.

The run stops at RUN_TIMEOUT or on interrupt; finished units stay committed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		defer func() { _ = log.Sync() }()

		if flagSeedFirst {
			if err := runSeed(cmd.Context(), cmd.OutOrStdout(), a, cfg.LocationsCSV, cfg.DatapointsYAML); err != nil {
				return err
			}
		}

		summary, err := a.Runs.RunNow(cmd.Context())
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), summary)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&flagSeedFirst, "seed", false, "load the configured seed files before running")
}
