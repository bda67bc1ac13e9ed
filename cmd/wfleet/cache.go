package main

import (
	"fmt"

	"github.com/pevans/wfleet/cache"
	"github.com/spf13/cobra"
)

var cacheCleanupDryRun bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the cache directory",
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove untimestamped entries and dry-run directories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		namer := cache.NewNamer(cfg.CacheDir)
		namer.Logger = newLogger(cfg).WithPrefix("cache")

		removed, err := namer.Cleanup(cacheCleanupDryRun)

		out := cmd.OutOrStdout()
		verb := "Removed"
		if cacheCleanupDryRun {
			verb = "Would remove"
		}
		for _, path := range removed {
			fmt.Fprintf(out, "%s %s\n", verb, path)
		}
		if len(removed) == 0 {
			fmt.Fprintf(out, "Nothing to clean in %s\n", cfg.CacheDir)
		}
		return err
	},
}

func init() {
	cacheCleanupCmd.Flags().BoolVar(&cacheCleanupDryRun, "dry-run", false, "list entries without removing them")
	cacheCmd.AddCommand(cacheCleanupCmd)
}
