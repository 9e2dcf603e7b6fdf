package sink

import (
	"context"
	"errors"

	"github.com/gva-data/harvester/internal/harvest"
)

// Multi fans each outcome out to several sinks.
type Multi []harvest.RecordSink

// Write delivers the outcome to every sink, stopping at the first error.
func (m Multi) Write(ctx context.Context, out harvest.FetchOutcome) error {
	for _, s := range m {
		if err := s.Write(ctx, out); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
