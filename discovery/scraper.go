// Package discovery runs a complete keyspace search against one registry:
// it generates the query cover, issues every query through a bounded pool,
// deduplicates the results and hands them to a sink.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/pevans/wfleet/cache"
	"github.com/pevans/wfleet/cover"
	"github.com/pevans/wfleet/executor"
	"github.com/pevans/wfleet/fetch"
	"github.com/pevans/wfleet/merge"
	"github.com/pevans/wfleet/rawcache"
	"github.com/pevans/wfleet/runs"
	"github.com/pevans/wfleet/scraper"
	"github.com/pevans/wfleet/ship"
	"github.com/pevans/wfleet/sink"
	"github.com/pevans/wfleet/sources"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RawArchiveDir is the directory inside a run's cache directory holding the
// raw response archive.
const RawArchiveDir = "raw"

// Custom errors for scrape runs
var (
	ErrInvalidWorkers = errors.New("worker count must be at least 1")
	ErrEmptyCover     = errors.New("alphabet produces no query tokens")
	ErrEmptyToken     = errors.New("empty query token")
	ErrNoFetcher      = errors.New("no fetcher configured")
	ErrNoSink         = errors.New("no sink configured")
	ErrNoNamer        = errors.New("no cache namer configured")
)

var tracer = otel.Tracer("github.com/pevans/wfleet/discovery")

// Fetcher performs one search request. A degraded response is a non-success
// status the fetcher tolerated as empty content.
type Fetcher interface {
	Fetch(ctx context.Context, method, url string, params map[string]string) (fetch.Response, error)
}

// RunRecorder stores run telemetry.
type RunRecorder interface {
	CreateRun(source string, dryRun bool, requestLimit int) (*runs.Run, error)
	FinishRun(runID uuid.UUID, result runs.RunResult) error
}

// Config holds the static settings of a scraper.
type Config struct {
	// Workers bounds concurrent requests; 1 runs the search sequentially.
	Workers  int
	Alphabet cover.Alphabet
	// OutputFile is the file name written inside the run's cache directory.
	OutputFile string
}

// RunOptions vary per run.
type RunOptions struct {
	// DryRun writes an empty output without any network activity.
	DryRun bool
	// RequestLimit caps the number of queries issued. Zero means no cap.
	RequestLimit int
}

// RunSummary reports what a run did.
type RunSummary struct {
	RunID        uuid.UUID
	Source       string
	DryRun       bool
	RequestLimit int

	TokensGenerated int
	TokensIssued    int
	Succeeded       int
	Empty           int
	TooBroad        int
	Failed          int
	// Degraded counts the Empty queries answered with a tolerated
	// non-success HTTP status.
	Degraded int

	Records    int
	Duplicates int

	// Tokens whose results are missing from the output
	TooBroadTokens []string
	FailedTokens   []string
	DegradedTokens []string

	RunDir    string
	Output    string
	StartedAt time.Time
	Duration  time.Duration
}

// Complete reports whether every generated token was queried successfully.
// A complete run still relies on the cover assumption.
func (s *RunSummary) Complete() bool {
	return !s.DryRun &&
		s.TokensIssued == s.TokensGenerated &&
		s.TooBroad == 0 &&
		s.Failed == 0 &&
		s.Degraded == 0
}

// Scraper runs keyspace searches against one source.
type Scraper struct {
	source  sources.Source
	parser  *scraper.Parser
	fetcher Fetcher
	sink    sink.Sink
	namer   *cache.Namer
	cfg     Config

	recorder RunRecorder
	archive  bool
	logger   *log.Logger
}

// NewScraper creates a scraper. Configuration problems are reported here,
// before any network activity.
func NewScraper(source sources.Source, fetcher Fetcher, out sink.Sink, namer *cache.Namer, cfg Config) (*Scraper, error) {
	if err := source.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source %q: %w", source.Name, err)
	}
	if fetcher == nil {
		return nil, ErrNoFetcher
	}
	if out == nil {
		return nil, ErrNoSink
	}
	if namer == nil {
		return nil, ErrNoNamer
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, cfg.Workers)
	}
	if err := cfg.Alphabet.Validate(); err != nil {
		return nil, fmt.Errorf("invalid alphabet: %w", err)
	}
	if cfg.Alphabet.Size() == 0 {
		return nil, ErrEmptyCover
	}
	if strings.TrimSpace(cfg.OutputFile) == "" {
		cfg.OutputFile = "ships"
	}

	s := &Scraper{
		source:  source,
		parser:  source.Parser(),
		fetcher: fetcher,
		sink:    out,
		namer:   namer,
		cfg:     cfg,
	}
	s.WithLogger(nil)
	return s, nil
}

// WithRunStore records every run in the given store.
func (s *Scraper) WithRunStore(recorder RunRecorder) *Scraper {
	s.recorder = recorder
	return s
}

// WithArchive enables archiving raw response bodies under the run's cache
// directory.
func (s *Scraper) WithArchive(enabled bool) *Scraper {
	s.archive = enabled
	return s
}

// WithLogger sets the logger; nil means the default logger.
func (s *Scraper) WithLogger(logger *log.Logger) *Scraper {
	if logger == nil {
		logger = log.Default()
	}
	s.logger = logger
	s.parser.SetLogger(logger.WithPrefix("parser"))
	return s
}

// Run performs one scrape. Per-token failures are reported in the summary;
// only a failure to persist the output is returned as an error. A
// cancelled context stops issuing queries, writes what was collected and
// returns the context error.
func (s *Scraper) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	ctx, span := tracer.Start(ctx, "discovery.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("source", s.source.Name),
		attribute.Bool("dry_run", opts.DryRun),
		attribute.Int("request_limit", opts.RequestLimit),
	)

	summary := &RunSummary{
		Source:       s.source.Name,
		DryRun:       opts.DryRun,
		RequestLimit: opts.RequestLimit,
		StartedAt:    time.Now(),
	}

	runDir, err := s.namer.NameFor(cache.RunLabel(s.source.Name, opts.DryRun, opts.RequestLimit), true)
	if err != nil {
		return nil, fmt.Errorf("failed to name run directory: %w", err)
	}
	summary.RunDir = runDir
	summary.Output = filepath.Join(runDir, s.cfg.OutputFile)

	if s.recorder != nil {
		run, err := s.recorder.CreateRun(s.source.Name, opts.DryRun, opts.RequestLimit)
		if err != nil {
			s.logger.Warn("Failed to record run start", "err", err)
		} else {
			summary.RunID = run.RunID
		}
	}

	s.logger.Info("Starting run", "source", s.source.Name, "dry_run", opts.DryRun, "limit", opts.RequestLimit, "output", summary.Output)

	var records []ship.Record
	var runErr error
	if opts.DryRun {
		s.logger.Warn("Dry run, no requests will be made")
		records = []ship.Record{}
	} else {
		records, runErr = s.search(ctx, opts, summary)
	}

	if err := s.sink.Write(records, summary.Output); err != nil {
		runErr = fmt.Errorf("failed to write %s: %w", summary.Output, err)
	}
	summary.Duration = time.Since(summary.StartedAt)

	s.finish(summary, runErr)

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		return summary, runErr
	}

	s.logger.Info("Run finished",
		"records", summary.Records,
		"issued", summary.TokensIssued,
		"too_broad", summary.TooBroad,
		"failed", summary.Failed,
		"took", summary.Duration.Round(time.Millisecond),
	)
	if summary.TooBroad > 0 || summary.Failed > 0 || summary.Degraded > 0 {
		s.logger.Warn("Results may be incomplete",
			"too_broad_tokens", summary.TooBroadTokens,
			"failed_tokens", len(summary.FailedTokens),
			"degraded_tokens", len(summary.DegradedTokens),
		)
	}

	return summary, nil
}

// search queries the cover and returns the deduplicated records.
func (s *Scraper) search(ctx context.Context, opts RunOptions, summary *RunSummary) ([]ship.Record, error) {
	tokens := s.cfg.Alphabet.Generate()
	summary.TokensGenerated = len(tokens)
	s.logger.Info("Generated query cover", "tokens", len(tokens), "workers", s.cfg.Workers)

	var archive *rawcache.Archive
	if s.archive {
		a, err := rawcache.Open(filepath.Join(summary.RunDir, RawArchiveDir))
		if err != nil {
			s.logger.Warn("Raw archive disabled", "err", err)
		} else {
			archive = a
			defer archive.Close()
		}
	}

	outcomes := executor.Execute(ctx, tokens, s.query(archive), executor.Options{
		Workers:      s.cfg.Workers,
		RequestLimit: opts.RequestLimit,
		Logger:       s.logger.WithPrefix("executor"),
	})

	counts := executor.Tally(outcomes)
	summary.TokensIssued = counts.Total()
	summary.Succeeded = counts.Success
	summary.Empty = counts.Empty
	summary.TooBroad = counts.TooBroad
	summary.Failed = counts.Failed
	summary.Degraded = counts.Degraded
	summary.TooBroadTokens = executor.Tokens(outcomes, executor.StatusTooBroad)
	summary.FailedTokens = executor.Tokens(outcomes, executor.StatusFailed)
	summary.DegradedTokens = executor.DegradedTokens(outcomes)

	merged, stats := merge.MergeWithStats(outcomes, s.logger.WithPrefix("merge"))
	summary.Records = stats.Unique
	summary.Duplicates = stats.Duplicates

	if err := ctx.Err(); err != nil {
		return ship.SortedRecords(merged), fmt.Errorf("run interrupted after %d of %d tokens: %w", summary.TokensIssued, len(tokens), err)
	}
	return ship.SortedRecords(merged), nil
}

// query builds the per-token query function.
func (s *Scraper) query(archive *rawcache.Archive) executor.QueryFunc {
	return func(ctx context.Context, token string) (scraper.Result, error) {
		if strings.TrimSpace(token) == "" {
			return scraper.Result{}, ErrEmptyToken
		}

		res, err := s.fetcher.Fetch(ctx, s.source.Method, s.source.URL, s.source.Params(token))
		if err != nil {
			return scraper.Result{}, err
		}
		if res.Degraded() {
			return scraper.Result{Degraded: true}, nil
		}
		body := res.Body

		if archive != nil {
			if err := archive.Put(token, body); err != nil {
				s.logger.Warn("Failed to archive response", "token", token, "err", err)
			}
		}

		result, err := s.parser.Parse(body)
		if err != nil {
			return scraper.Result{}, fmt.Errorf("failed to parse response for %q: %w", token, err)
		}
		if result.SkippedRows > 0 {
			s.logger.Debug("Skipped malformed rows", "token", token, "rows", result.SkippedRows)
		}
		return result, nil
	}
}

// finish records the run result in the run store.
func (s *Scraper) finish(summary *RunSummary, runErr error) {
	if s.recorder == nil || summary.RunID == uuid.Nil {
		return
	}

	err := s.recorder.FinishRun(summary.RunID, runs.RunResult{
		TokensIssued: summary.TokensIssued,
		Succeeded:    summary.Succeeded,
		Empty:        summary.Empty,
		TooBroad:     summary.TooBroad,
		Failed:       summary.Failed,
		Degraded:     summary.Degraded,
		Records:      summary.Records,
		Duplicates:   summary.Duplicates,
		Output:       summary.Output,
		Err:          runErr,
	})
	if err != nil {
		s.logger.Warn("Failed to record run result", "run_id", summary.RunID, "err", err)
	}
}
