// Package pipeline executes a batch of detail-page harvests: it fans request
// contexts out across the fetch session with a bounded degree of concurrency
// and delivers every outcome to a record sink.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gva-data/harvester/internal/harvest"
)

// Config controls Runner behavior.
type Config struct {
	// Concurrency bounds the number of in-flight fetches.
	Concurrency int
}

// Counters summarizes a finished batch.
type Counters struct {
	Succeeded int
	Failed    int
	NotFound  int
}

// Runner drives one batch through a Fetcher into a RecordSink.
type Runner struct {
	fetcher harvest.Fetcher
	sink    harvest.RecordSink
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Runner.
func New(fetcher harvest.Fetcher, sink harvest.RecordSink, cfg Config, logger *zap.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Runner{
		fetcher: fetcher,
		sink:    sink,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run processes every row and writes its outcome to the sink. One row's
// failure never aborts the batch; outcomes arrive at the sink in completion
// order, not input order. The returned error reports sink trouble only.
func (r *Runner) Run(ctx context.Context, rows []harvest.RequestContext) (Counters, error) {
	logger := r.logger.With(zap.String("batch_id", uuid.NewString()))
	logger.Info("batch started",
		zap.Int("rows", len(rows)),
		zap.Int("concurrency", r.cfg.Concurrency))

	sem := make(chan struct{}, r.cfg.Concurrency)
	outcomes := make(chan harvest.FetchOutcome)

	var wg sync.WaitGroup
	for _, rc := range rows {
		wg.Add(1)
		go func(rc harvest.RequestContext) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				outcomes <- harvest.Failure(rc, harvest.FailureCanceled, ctx.Err())
				return
			}
			defer func() { <-sem }()
			outcomes <- r.fetcher.FetchRecord(ctx, rc)
		}(rc)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var (
		counters Counters
		sinkErr  error
	)
	for out := range outcomes {
		switch {
		case out.OK():
			counters.Succeeded++
		case out.Kind == harvest.FailureNotFound:
			counters.NotFound++
			counters.Failed++
		default:
			counters.Failed++
		}
		if err := r.sink.Write(ctx, out); err != nil && sinkErr == nil {
			sinkErr = fmt.Errorf("write outcome for %s: %w", out.Context.DetailURL, err)
			logger.Error("sink write failed", zap.String("url", out.Context.DetailURL), zap.Error(err))
		}
	}

	logger.Info("batch finished",
		zap.Int("succeeded", counters.Succeeded),
		zap.Int("failed", counters.Failed),
		zap.Int("not_found", counters.NotFound))
	return counters, sinkErr
}
