package harvest

import "context"

// Fetcher retrieves one incident page and converts it into a FetchOutcome.
type Fetcher interface {
	FetchRecord(ctx context.Context, rc RequestContext) FetchOutcome
}

// RecordSink accepts interleaved, out-of-order outcomes from a batch run.
// Implementations are driven from a single goroutine and need not be
// concurrency safe.
type RecordSink interface {
	Write(ctx context.Context, out FetchOutcome) error
	Close() error
}
