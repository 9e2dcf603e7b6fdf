// Package source reads upstream incident extracts into request contexts.
package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"

	"github.com/gva-data/harvester/internal/harvest"
)

// Column names the upstream extract must provide.
const (
	colIncidentURL = "incident_url"
	colAddress     = "address"
	colLocality    = "city_or_county"
	colRegion      = "state"
)

// Reader streams request contexts out of an upstream CSV extract.
type Reader struct {
	csv    *csv.Reader
	fields map[string]int
}

// NewReader consumes the header row and verifies the required columns exist.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	fields := make(map[string]int, len(header))
	for i, name := range header {
		fields[name] = i
	}
	for _, required := range []string{colIncidentURL, colAddress, colLocality, colRegion} {
		if _, ok := fields[required]; !ok {
			return nil, fmt.Errorf("input is missing required column %q", required)
		}
	}
	return &Reader{csv: cr, fields: fields}, nil
}

// Read returns the next row's request context, or io.EOF at end of input.
func (r *Reader) Read() (harvest.RequestContext, error) {
	record, err := r.csv.Read()
	if err != nil {
		return harvest.RequestContext{}, err
	}

	detailURL := record[r.fields[colIncidentURL]]
	id, err := IncidentID(detailURL)
	if err != nil {
		return harvest.RequestContext{}, err
	}
	return harvest.RequestContext{
		IncidentID: id,
		DetailURL:  detailURL,
		Address:    record[r.fields[colAddress]],
		Locality:   record[r.fields[colLocality]],
		Region:     record[r.fields[colRegion]],
	}, nil
}

// ReadAll drains the reader.
func (r *Reader) ReadAll() ([]harvest.RequestContext, error) {
	var rows []harvest.RequestContext
	for {
		rc, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rc)
	}
}

// IncidentID derives the numeric incident identifier from the trailing path
// segment of a detail URL.
func IncidentID(detailURL string) (int64, error) {
	u, err := url.Parse(detailURL)
	if err != nil {
		return 0, fmt.Errorf("parse incident url %q: %w", detailURL, err)
	}
	id, err := strconv.ParseInt(path.Base(u.Path), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("incident url %q has no numeric identifier", detailURL)
	}
	return id, nil
}
