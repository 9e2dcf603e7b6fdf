package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gva-data/harvester/internal/harvest"
)

type fakeFetcher struct {
	outcomes map[string]harvest.FetchOutcome
	delay    time.Duration

	mu       sync.Mutex
	inFlight int
	peak     int
}

func (f *fakeFetcher) FetchRecord(ctx context.Context, rc harvest.RequestContext) harvest.FetchOutcome {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if out, ok := f.outcomes[rc.DetailURL]; ok {
		out.Context = rc
		return out
	}
	return harvest.Success(rc, mustRecord())
}

type fakeSink struct {
	mu       sync.Mutex
	written  []harvest.FetchOutcome
	err      error
	closed   atomic.Bool
	errAfter int
}

func (s *fakeSink) Write(_ context.Context, out harvest.FetchOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, out)
	if s.err != nil && len(s.written) > s.errAfter {
		return s.err
	}
	return nil
}

func (s *fakeSink) Close() error {
	s.closed.Store(true)
	return nil
}

func mustRecord() harvest.Record {
	rec, err := harvest.Normalize(nil)
	if err != nil {
		panic(err)
	}
	return rec
}

func rows(n int) []harvest.RequestContext {
	out := make([]harvest.RequestContext, n)
	for i := range out {
		out[i] = harvest.RequestContext{
			IncidentID: int64(i + 1),
			DetailURL:  fmt.Sprintf("http://example.com/incident/%d", i+1),
		}
	}
	return out
}

func TestRun_PartialFailureKeepsBatchGoing(t *testing.T) {
	t.Parallel()

	input := rows(5)
	fetcher := &fakeFetcher{outcomes: map[string]harvest.FetchOutcome{
		input[1].DetailURL: harvest.Failure(input[1], harvest.FailureNotFound, errors.New("404")),
		input[3].DetailURL: harvest.Failure(input[3], harvest.FailureIntegrity, errors.New("bad page")),
	}}
	sink := &fakeSink{}

	counters, err := New(fetcher, sink, Config{Concurrency: 2}, zap.NewNop()).
		Run(context.Background(), input)
	require.NoError(t, err)

	require.Equal(t, Counters{Succeeded: 3, Failed: 2, NotFound: 1}, counters)
	require.Len(t, sink.written, 5, "every outcome reaches the sink")

	seen := map[int64]bool{}
	for _, out := range sink.written {
		seen[out.Context.IncidentID] = true
	}
	require.Len(t, seen, 5, "each row's identifier survives to its outcome")
}

func TestRun_RespectsConcurrencyBound(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{delay: 20 * time.Millisecond}
	counters, err := New(fetcher, &fakeSink{}, Config{Concurrency: 3}, zap.NewNop()).
		Run(context.Background(), rows(12))
	require.NoError(t, err)
	require.Equal(t, 12, counters.Succeeded)
	require.LessOrEqual(t, fetcher.peak, 3)
}

func TestRun_SinkErrorIsReportedNotFatal(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{err: errors.New("disk full"), errAfter: 1}
	counters, err := New(&fakeFetcher{}, sink, Config{Concurrency: 2}, zap.NewNop()).
		Run(context.Background(), rows(4))

	require.Error(t, err)
	require.Equal(t, 4, counters.Succeeded, "fetching continues despite sink trouble")
	require.Len(t, sink.written, 4)
}

func TestRun_CanceledContextDrainsAsFailures(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &fakeFetcher{}
	sink := &fakeSink{}
	counters, err := New(fetcher, sink, Config{Concurrency: 1}, zap.NewNop()).
		Run(ctx, rows(3))
	require.NoError(t, err)
	require.Equal(t, 3, counters.Succeeded+counters.Failed, "every row yields an outcome")
}

func TestRun_EmptyBatch(t *testing.T) {
	t.Parallel()

	counters, err := New(&fakeFetcher{}, &fakeSink{}, Config{}, zap.NewNop()).
		Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, Counters{}, counters)
}
