// Package executor runs one query per token with a bounded number of
// concurrent workers and collects every outcome in submission order.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pevans/wfleet/scraper"
	"github.com/pevans/wfleet/ship"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Status is the lifecycle state of a single token query.
type Status int

const (
	StatusPending Status = iota
	StatusInFlight
	StatusSuccess
	StatusEmpty
	StatusTooBroad
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInFlight:
		return "in_flight"
	case StatusSuccess:
		return "success"
	case StatusEmpty:
		return "empty"
	case StatusTooBroad:
		return "too_broad"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s >= StatusSuccess
}

// Outcome is the terminal result of querying one token.
type Outcome struct {
	// Index is the token's position in the submitted list.
	Index   int
	Token   string
	Status  Status
	Records []ship.Record
	Err     error
	// Degraded marks an empty outcome whose response was a tolerated
	// non-success HTTP status.
	Degraded bool
	Duration time.Duration
}

// QueryFunc fetches and parses the search results for one token.
type QueryFunc func(ctx context.Context, token string) (scraper.Result, error)

// Options configures Execute.
type Options struct {
	// Workers bounds the number of concurrent queries. Values <= 1 run the
	// tokens sequentially.
	Workers int
	// RequestLimit caps how many tokens are submitted. Zero means no cap.
	RequestLimit int
	Logger       *log.Logger
	// Tracer defaults to the global otel tracer.
	Tracer trace.Tracer
}

var defaultTracer = otel.Tracer("github.com/pevans/wfleet/executor")

// Execute queries every token and returns one outcome per submitted token,
// ordered by submission. A failing or panicking query yields a failed
// outcome and never aborts the others. Cancelling ctx stops further
// submissions; queries already running finish and are included.
func Execute(ctx context.Context, tokens []string, query QueryFunc, opts Options) []Outcome {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = defaultTracer
	}

	if opts.RequestLimit > 0 && len(tokens) > opts.RequestLimit {
		logger.Info("Request limit reached, dropping tokens", "limit", opts.RequestLimit, "dropped", len(tokens)-opts.RequestLimit)
		tokens = tokens[:opts.RequestLimit]
	}

	outcomes := make([]Outcome, len(tokens))
	run := func(i int) {
		outcomes[i] = runOne(ctx, tracer, logger, i, tokens[i], query)
	}

	submitted := 0
	if opts.Workers <= 1 {
		for i := range tokens {
			if ctx.Err() != nil {
				break
			}
			run(i)
			submitted++
		}
	} else {
		var g errgroup.Group
		g.SetLimit(opts.Workers)
		for i := range tokens {
			if ctx.Err() != nil {
				break
			}
			i := i
			g.Go(func() error {
				run(i)
				return nil
			})
			submitted++
		}
		g.Wait()
	}

	if submitted < len(tokens) {
		logger.Warn("Run cancelled before all tokens were submitted", "submitted", submitted, "total", len(tokens))
	}

	return outcomes[:submitted]
}

// runOne queries a single token and classifies the result.
func runOne(ctx context.Context, tracer trace.Tracer, logger *log.Logger, index int, token string, query QueryFunc) (out Outcome) {
	ctx, span := tracer.Start(ctx, "executor.query")
	defer span.End()
	span.SetAttributes(
		attribute.String("token", token),
		attribute.Int("index", index),
	)

	start := time.Now()
	out = Outcome{Index: index, Token: token, Status: StatusInFlight}

	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Records = nil
			out.Err = fmt.Errorf("query panicked: %v", r)
		}
		out.Duration = time.Since(start)

		span.SetAttributes(
			attribute.String("status", out.Status.String()),
			attribute.Int("records", len(out.Records)),
			attribute.Bool("degraded", out.Degraded),
		)
		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Err.Error())
			logger.Warn("Query failed", "token", token, "err", out.Err)
		} else {
			logger.Debug("Query done", "token", token, "status", out.Status, "records", len(out.Records), "took", out.Duration)
		}
	}()

	result, err := query(ctx, token)
	switch {
	case err != nil:
		out.Status = StatusFailed
		out.Err = err
	case result.TooBroad:
		out.Status = StatusTooBroad
	case result.Degraded:
		out.Status = StatusEmpty
		out.Degraded = true
	case len(result.Records) == 0:
		out.Status = StatusEmpty
	default:
		out.Status = StatusSuccess
		out.Records = result.Records
	}

	return out
}

// Counts tallies outcomes by terminal status.
type Counts struct {
	Success  int
	Empty    int
	TooBroad int
	Failed   int
	// Degraded counts the Empty outcomes that stand in for a non-success
	// response. Not part of Total.
	Degraded int
}

// Total returns the number of counted outcomes.
func (c Counts) Total() int {
	return c.Success + c.Empty + c.TooBroad + c.Failed
}

// Tally counts outcomes per status.
func Tally(outcomes []Outcome) Counts {
	var c Counts
	for _, o := range outcomes {
		switch o.Status {
		case StatusSuccess:
			c.Success++
		case StatusEmpty:
			c.Empty++
			if o.Degraded {
				c.Degraded++
			}
		case StatusTooBroad:
			c.TooBroad++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// DegradedTokens returns the tokens of degraded outcomes, in order.
func DegradedTokens(outcomes []Outcome) []string {
	var tokens []string
	for _, o := range outcomes {
		if o.Degraded {
			tokens = append(tokens, o.Token)
		}
	}
	return tokens
}

// Tokens returns the tokens of outcomes with the given status, in order.
func Tokens(outcomes []Outcome, status Status) []string {
	var tokens []string
	for _, o := range outcomes {
		if o.Status == status {
			tokens = append(tokens, o.Token)
		}
	}
	return tokens
}
