// Package sink provides RecordSink implementations for batch output.
package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/gva-data/harvester/internal/harvest"
)

// Identifier columns written ahead of the schema fields.
var csvIdentityHeader = []string{
	"incident_id",
	"incident_url",
	"address",
	"city_or_county",
	"state",
}

// The trailing marker column: true when the row's fields could not be
// harvested and the schema cells are empty.
const csvMissingHeader = "incident_url_fields_missing"

// CSVSink writes one output row per outcome: the row's identity columns,
// the schema fields in sorted order, and the missing marker.
type CSVSink struct {
	w           *csv.Writer
	wroteHeader bool
}

// NewCSVSink wraps w. The header is written lazily with the first outcome.
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w)}
}

// Write appends one outcome. Failed rows keep their identity columns and get
// empty schema cells with the missing marker set.
func (s *CSVSink) Write(_ context.Context, out harvest.FetchOutcome) error {
	if !s.wroteHeader {
		header := append(append([]string{}, csvIdentityHeader...), harvest.FieldNames...)
		header = append(header, csvMissingHeader)
		if err := s.w.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		s.wroteHeader = true
	}

	rc := out.Context
	row := []string{
		strconv.FormatInt(rc.IncidentID, 10),
		rc.DetailURL,
		rc.Address,
		rc.Locality,
		rc.Region,
	}
	if out.OK() {
		for _, f := range out.Record {
			row = append(row, formatValue(f.Value))
		}
		row = append(row, "false")
	} else {
		for range harvest.FieldNames {
			row = append(row, "")
		}
		row = append(row, "true")
	}
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	return nil
}

// Close flushes buffered rows.
func (s *CSVSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
