package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pevans/wfleet/cache"
	"github.com/pevans/wfleet/config"
	"github.com/pevans/wfleet/discovery"
	"github.com/pevans/wfleet/fetch"
	"github.com/pevans/wfleet/runs"
	"github.com/pevans/wfleet/sink"
	"github.com/pevans/wfleet/sources"
	"github.com/spf13/cobra"
)

var scrapeFlags struct {
	dryRun     bool
	limit      int
	workers    int
	sequential bool
	format     string
	source     string
	archive    bool
	noRuns     bool
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run a complete registry search",
	Long: `Query the registry with every token of the query cover, merge the
results and write them to <cache_dir>/<timestamp>_<source>/<file_name>.

A request limit caps the number of queries and marks the run directory with
a "-requests-limited" suffix. A dry run makes no requests at all.`,
	Args: cobra.NoArgs,
	RunE: runScrape,
}

func init() {
	f := scrapeCmd.Flags()
	f.BoolVar(&scrapeFlags.dryRun, "dry-run", false, "write an empty output without making requests")
	f.IntVarP(&scrapeFlags.limit, "limit", "l", 0, "maximum number of requests (0 means no limit)")
	f.IntVarP(&scrapeFlags.workers, "workers", "w", 0, "number of concurrent requests")
	f.BoolVar(&scrapeFlags.sequential, "sequential", false, "issue requests one at a time")
	f.StringVarP(&scrapeFlags.format, "format", "f", "", fmt.Sprintf("output format %v", sink.Formats()))
	f.StringVarP(&scrapeFlags.source, "source", "s", "", "registry source name")
	f.BoolVar(&scrapeFlags.archive, "archive", false, "archive raw responses in the run directory")
	f.BoolVar(&scrapeFlags.noRuns, "no-runs", false, "do not record the run in the runs database")
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	err = cfg.Apply(config.Config{
		Output: config.OutputConfig{Format: scrapeFlags.format},
		Scrape: config.ScrapeConfig{
			Source:       scrapeFlags.source,
			Workers:      scrapeFlags.workers,
			Sequential:   scrapeFlags.sequential,
			RequestLimit: scrapeFlags.limit,
			ArchiveRaw:   scrapeFlags.archive,
		},
	})
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg)

	registry := sources.NewRegistry()
	if cfg.SourcesFile != "" {
		if err := registry.LoadFile(cfg.SourcesFile); err != nil {
			return err
		}
	}
	source, err := registry.Lookup(cfg.Scrape.Source)
	if err != nil {
		return fmt.Errorf("%w (available: %v)", err, registry.Names())
	}

	out, ext, err := sink.ForFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	client := fetch.New(fetch.Options{
		Timeout:            cfg.HTTP.Timeout,
		MaxRetries:         cfg.HTTP.MaxRetries,
		RetryWaitTime:      cfg.HTTP.RetryWait,
		RetryMaxWaitTime:   cfg.HTTP.RetryMaxWait,
		FailOnError:        cfg.HTTP.FailOnError,
		InsecureSkipVerify: source.InsecureSkipVerify,
		UserAgent:          cfg.HTTP.UserAgent,
		Logger:             logger.WithPrefix("fetch"),
	})

	namer := cache.NewNamer(cfg.CacheDir)
	namer.Logger = logger.WithPrefix("cache")

	s, err := discovery.NewScraper(source, client, out, namer, discovery.Config{
		Workers:    cfg.Workers(),
		Alphabet:   cfg.Alphabet(),
		OutputFile: cfg.Output.FileName + ext,
	})
	if err != nil {
		return err
	}
	s.WithLogger(logger).WithArchive(cfg.Scrape.ArchiveRaw)

	if !scrapeFlags.noRuns {
		store, err := openRunStore(cfg)
		if err != nil {
			logger.Warn("Run history disabled", "err", err)
		} else {
			defer store.Close()
			s.WithRunStore(store)
		}
	}

	summary, err := s.Run(cmd.Context(), discovery.RunOptions{
		DryRun:       scrapeFlags.dryRun,
		RequestLimit: cfg.Scrape.RequestLimit,
	})
	if summary != nil {
		printSummary(cmd.OutOrStdout(), summary)
	}
	return err
}

// openRunStore opens the runs database, creating its directory.
func openRunStore(cfg *config.Config) (*runs.RunStore, error) {
	if dir := filepath.Dir(cfg.RunsDB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create runs directory: %w", err)
		}
	}
	return runs.NewRunStore(cfg.RunsDB)
}
