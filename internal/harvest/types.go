// Package harvest defines core types shared across the harvesting pipeline.
package harvest

// RequestContext carries the per-row inputs needed to fetch one incident
// detail page and to disambiguate text extracted from it. It is built once
// per input row and never mutated.
type RequestContext struct {
	IncidentID int64
	DetailURL  string
	Address    string
	Locality   string
	// Region is the two-letter state/province code.
	Region string
}

// Field is a single (name, value) pair of an extracted record. Value is nil,
// a float64, an int64, or a string (possibly an encoded list or mapping, see
// StringifyList and StringifyGroups).
type Field struct {
	Name  string
	Value any
}

// Record is the schema-complete, alphabetically ordered field sequence
// produced for one successfully fetched incident page. Its length is always
// len(FieldNames).
type Record []Field

// FailureKind classifies a FetchOutcome failure.
type FailureKind int

// Failure classifications surfaced to batch callers.
const (
	FailureNone FailureKind = iota
	// FailureNotFound marks a 404, an expected and benign outcome.
	FailureNotFound
	// FailureHTTP marks any other non-retryable HTTP status.
	FailureHTTP
	// FailureTransport marks a non-retryable transport error.
	FailureTransport
	// FailureUnsupportedContent marks a response whose content type is not HTML.
	FailureUnsupportedContent
	// FailureCanceled marks a fetch abandoned because its context finished,
	// including cancellation observed during a backoff wait.
	FailureCanceled
	// FailureRetriesExhausted marks a fetch that hit the configured retry ceiling.
	FailureRetriesExhausted
	// FailureIntegrity marks a schema integrity violation during extraction.
	FailureIntegrity
)

// String returns the label used in logs and metrics.
func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureNotFound:
		return "not_found"
	case FailureHTTP:
		return "http"
	case FailureTransport:
		return "transport"
	case FailureUnsupportedContent:
		return "unsupported_content"
	case FailureCanceled:
		return "canceled"
	case FailureRetriesExhausted:
		return "retries_exhausted"
	case FailureIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// FetchOutcome is the result of fetching and extracting one incident page:
// either a populated Record or a classified failure. Context always carries
// the originating row so batch callers can reconcile out-of-order outcomes.
type FetchOutcome struct {
	Context RequestContext
	Record  Record
	Kind    FailureKind
	Err     error
}

// Success wraps an extracted record.
func Success(rc RequestContext, rec Record) FetchOutcome {
	return FetchOutcome{Context: rc, Record: rec}
}

// Failure wraps a classified error tied to the originating row.
func Failure(rc RequestContext, kind FailureKind, err error) FetchOutcome {
	return FetchOutcome{Context: rc, Kind: kind, Err: err}
}

// OK reports whether the outcome carries a record.
func (o FetchOutcome) OK() bool {
	return o.Err == nil
}
