package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pevans/wfleet/runs"
	"github.com/spf13/cobra"
)

var runsFlags struct {
	source   string
	finished bool
	running  bool
	limit    int
	offset   int
	json     bool
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded scrape runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runsFlags.finished && runsFlags.running {
			return fmt.Errorf("--finished and --running are mutually exclusive")
		}

		store, err := openStoreFromConfig()
		if err != nil {
			return err
		}
		defer store.Close()

		filter := runs.RunFilter{
			Limit:  runsFlags.limit,
			Offset: runsFlags.offset,
		}
		if runsFlags.source != "" {
			filter.Source = &runsFlags.source
		}
		if runsFlags.finished || runsFlags.running {
			finished := runsFlags.finished
			filter.Finished = &finished
		}

		list, err := store.ListRuns(filter)
		if err != nil {
			return err
		}

		if runsFlags.json {
			return printJSON(cmd.OutOrStdout(), list)
		}
		printRunsTable(cmd.OutOrStdout(), list)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the details of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid run ID: %w", err)
		}

		store, err := openStoreFromConfig()
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := store.GetRun(runID)
		if err != nil {
			return err
		}

		if runsFlags.json {
			return printJSON(cmd.OutOrStdout(), run)
		}
		printRunDetails(cmd.OutOrStdout(), run)
		return nil
	},
}

func init() {
	runsCmd.PersistentFlags().BoolVar(&runsFlags.json, "json", false, "print JSON instead of a table")

	f := runsListCmd.Flags()
	f.StringVar(&runsFlags.source, "source", "", "only runs of this source")
	f.BoolVar(&runsFlags.finished, "finished", false, "only finished runs")
	f.BoolVar(&runsFlags.running, "running", false, "only runs that never finished")
	f.IntVar(&runsFlags.limit, "limit", 20, "maximum number of runs")
	f.IntVar(&runsFlags.offset, "offset", 0, "number of runs to skip")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

func openStoreFromConfig() (*runs.RunStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := openRunStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open runs database: %w", err)
	}
	return store, nil
}
