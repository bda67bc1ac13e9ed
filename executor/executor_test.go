package executor

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pevans/wfleet/scraper"
	"github.com/pevans/wfleet/ship"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: options with a silent logger
func testOptions(workers, limit int) Options {
	return Options{
		Workers:      workers,
		RequestLimit: limit,
		Logger:       log.New(io.Discard),
	}
}

// Test helper: query that returns one record named after the token
func echoQuery(calls *atomic.Int32) QueryFunc {
	return func(ctx context.Context, token string) (scraper.Result, error) {
		calls.Add(1)
		return scraper.Result{Records: []ship.Record{ship.New("", token, "", "test")}}, nil
	}
}

func tokens(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('A'+i%26)) + string(rune('A'+i/26))
	}
	return out
}

// TestExecute_SubmissionOrder verifies outcomes follow submission order
// regardless of completion order
func TestExecute_SubmissionOrder(t *testing.T) {
	toks := tokens(50)
	query := func(ctx context.Context, token string) (scraper.Result, error) {
		// Vary completion time per token
		time.Sleep(time.Duration(int(token[0])%5) * time.Millisecond)
		return scraper.Result{Records: []ship.Record{ship.New("", token, "", "test")}}, nil
	}

	outcomes := Execute(context.Background(), toks, query, testOptions(8, 0))
	require.Len(t, outcomes, len(toks))
	for i, o := range outcomes {
		assert.Equal(t, i, o.Index)
		assert.Equal(t, toks[i], o.Token)
		assert.Equal(t, StatusSuccess, o.Status)
		require.Len(t, o.Records, 1)
		assert.Equal(t, toks[i], o.Records[0].ProprietaryNumber1)
	}
}

// TestExecute_RequestLimit verifies tokens past the limit never reach the
// query function
func TestExecute_RequestLimit(t *testing.T) {
	for _, workers := range []int{1, 4} {
		var calls atomic.Int32
		outcomes := Execute(context.Background(), tokens(100), echoQuery(&calls), testOptions(workers, 10))

		assert.Len(t, outcomes, 10)
		assert.Equal(t, int32(10), calls.Load(), "workers=%d", workers)
	}
}

// TestExecute_LimitAboveTokens verifies a limit larger than the token list
// has no effect
func TestExecute_LimitAboveTokens(t *testing.T) {
	var calls atomic.Int32
	outcomes := Execute(context.Background(), tokens(5), echoQuery(&calls), testOptions(3, 100))

	assert.Len(t, outcomes, 5)
	assert.Equal(t, int32(5), calls.Load())
}

// TestExecute_BoundedConcurrency verifies no more than Workers queries run
// at once
func TestExecute_BoundedConcurrency(t *testing.T) {
	var current, peak atomic.Int32
	query := func(ctx context.Context, token string) (scraper.Result, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		current.Add(-1)
		return scraper.Result{}, nil
	}

	outcomes := Execute(context.Background(), tokens(60), query, testOptions(4, 0))
	assert.Len(t, outcomes, 60)
	assert.LessOrEqual(t, peak.Load(), int32(4))
	assert.Positive(t, peak.Load())
}

// TestExecute_Sequential verifies a single worker runs tokens in order
func TestExecute_Sequential(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	query := func(ctx context.Context, token string) (scraper.Result, error) {
		mu.Lock()
		seen = append(seen, token)
		mu.Unlock()
		return scraper.Result{}, nil
	}

	toks := tokens(20)
	Execute(context.Background(), toks, query, testOptions(1, 0))
	assert.Equal(t, toks, seen)
}

// TestExecute_Statuses verifies each query result maps to its status
func TestExecute_Statuses(t *testing.T) {
	errBoom := errors.New("boom")
	query := func(ctx context.Context, token string) (scraper.Result, error) {
		switch token {
		case "OK":
			return scraper.Result{Records: []ship.Record{ship.New("9734642", "", "", "test")}}, nil
		case "NO":
			return scraper.Result{}, nil
		case "WIDE":
			return scraper.Result{TooBroad: true}, nil
		case "ERR":
			return scraper.Result{}, errBoom
		default:
			panic("unexpected token " + token)
		}
	}

	outcomes := Execute(context.Background(), []string{"OK", "NO", "WIDE", "ERR", "PANIC"}, query, testOptions(3, 0))
	require.Len(t, outcomes, 5)

	assert.Equal(t, StatusSuccess, outcomes[0].Status)
	assert.Len(t, outcomes[0].Records, 1)
	assert.Equal(t, StatusEmpty, outcomes[1].Status)
	assert.Equal(t, StatusTooBroad, outcomes[2].Status)
	assert.Empty(t, outcomes[2].Records)
	assert.Equal(t, StatusFailed, outcomes[3].Status)
	assert.ErrorIs(t, outcomes[3].Err, errBoom)
	assert.Equal(t, StatusFailed, outcomes[4].Status)
	assert.ErrorContains(t, outcomes[4].Err, "panicked")

	for _, o := range outcomes {
		assert.True(t, o.Status.Terminal())
	}

	counts := Tally(outcomes)
	assert.Equal(t, Counts{Success: 1, Empty: 1, TooBroad: 1, Failed: 2}, counts)
	assert.Equal(t, 5, counts.Total())
	assert.Equal(t, []string{"WIDE"}, Tokens(outcomes, StatusTooBroad))
	assert.Equal(t, []string{"ERR", "PANIC"}, Tokens(outcomes, StatusFailed))
}

// TestExecute_Degraded verifies a tolerated HTTP failure is empty but
// counted apart from genuine empty results
func TestExecute_Degraded(t *testing.T) {
	query := func(ctx context.Context, token string) (scraper.Result, error) {
		if token == "DOWN" {
			return scraper.Result{Degraded: true}, nil
		}
		return scraper.Result{}, nil
	}

	outcomes := Execute(context.Background(), []string{"NO", "DOWN"}, query, testOptions(2, 0))
	require.Len(t, outcomes, 2)

	assert.Equal(t, StatusEmpty, outcomes[0].Status)
	assert.False(t, outcomes[0].Degraded)
	assert.Equal(t, StatusEmpty, outcomes[1].Status)
	assert.True(t, outcomes[1].Degraded)

	counts := Tally(outcomes)
	assert.Equal(t, Counts{Empty: 2, Degraded: 1}, counts)
	assert.Equal(t, 2, counts.Total())
	assert.Equal(t, []string{"DOWN"}, DegradedTokens(outcomes))
}

// TestExecute_Cancel verifies cancellation stops further submissions but
// keeps outcomes of submitted tokens
func TestExecute_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	query := func(ctx context.Context, token string) (scraper.Result, error) {
		if calls.Add(1) == 3 {
			cancel()
		}
		return scraper.Result{}, nil
	}

	outcomes := Execute(ctx, tokens(100), query, testOptions(1, 0))
	assert.Len(t, outcomes, 3)
	assert.Equal(t, int32(3), calls.Load())
	for i, o := range outcomes {
		assert.Equal(t, i, o.Index)
	}
}

func TestExecute_EmptyTokens(t *testing.T) {
	var calls atomic.Int32
	outcomes := Execute(context.Background(), nil, echoQuery(&calls), testOptions(4, 0))
	assert.Empty(t, outcomes)
	assert.Zero(t, calls.Load())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "too_broad", StatusTooBroad.String())
	assert.Equal(t, "in_flight", StatusInFlight.String())
	assert.Equal(t, "status(42)", Status(42).String())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInFlight.Terminal())
}
