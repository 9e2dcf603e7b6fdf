package harvest

import (
	"fmt"
	"sort"
	"strings"
)

// Reserved separators used to encode composite values into flat strings.
const (
	// ListSep joins list items, e.g. incident characteristics and source links.
	ListSep = "||"
	// MapSep joins a group index with its value inside one encoded mapping entry.
	MapSep = "::"
)

// FieldNames is the complete, alphabetically sorted output schema. Every
// Record contains exactly these names; a name produced during extraction
// that is not listed here means the schema is out of date, not the data.
var FieldNames = []string{
	"congressional_district",
	"gun_stolen",
	"gun_type",
	"incident_characteristics",
	"latitude",
	"location_description",
	"longitude",
	"n_guns_involved",
	"notes",
	"participant_age",
	"participant_age_group",
	"participant_gender",
	"participant_name",
	"participant_relationship",
	"participant_status",
	"participant_type",
	"sources",
	"state_house_district",
	"state_senate_district",
}

var fieldNameSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(FieldNames))
	for _, name := range FieldNames {
		set[name] = struct{}{}
	}
	return set
}()

// KnownField reports whether name belongs to the output schema.
func KnownField(name string) bool {
	_, ok := fieldNameSet[name]
	return ok
}

// IntegrityError reports a data-contract violation: a field name outside the
// schema, a malformed key/value line, or a separator collision. It is never
// retried and must abort processing of the offending document.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return "schema integrity violation: " + e.Reason
}

// Integrityf builds an IntegrityError from a format string.
func Integrityf(format string, args ...any) error {
	return &IntegrityError{Reason: fmt.Sprintf(format, args...)}
}

// GroupValue is one entry of an encoded mapping: the value an attribute took
// for the participant or gun group at index Group.
type GroupValue struct {
	Group int
	Value string
}

// StringifyList joins items with ListSep. An item already containing the
// separator would corrupt the encoding and is an integrity violation.
func StringifyList(items []string) (string, error) {
	for _, item := range items {
		if strings.Contains(item, ListSep) {
			return "", Integrityf("list item %q contains reserved separator %q", item, ListSep)
		}
	}
	return strings.Join(items, ListSep), nil
}

// StringifyGroups encodes group-indexed values as "0::a||1::b". Keys are
// group indices and cannot collide with the separators, but values can.
func StringifyGroups(values []GroupValue) (string, error) {
	pairs := make([]string, 0, len(values))
	for _, gv := range values {
		if strings.Contains(gv.Value, MapSep) || strings.Contains(gv.Value, ListSep) {
			return "", Integrityf("mapping value %q contains reserved separator %q or %q", gv.Value, MapSep, ListSep)
		}
		pairs = append(pairs, fmt.Sprintf("%d%s%s", gv.Group, MapSep, gv.Value))
	}
	return strings.Join(pairs, ListSep), nil
}

// Normalize sorts fields by name, inserts a nil-valued field for every schema
// name the extraction did not produce, and verifies the result is exactly the
// schema: no unknown names, no duplicates, length len(FieldNames).
func Normalize(fields []Field) (Record, error) {
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].Name < fields[j].Name
	})

	produced := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if !KnownField(f.Name) {
			return nil, Integrityf("field %q is not part of the schema", f.Name)
		}
		if _, dup := produced[f.Name]; dup {
			return nil, Integrityf("field %q produced more than once", f.Name)
		}
		produced[f.Name] = struct{}{}
	}

	rec := make(Record, 0, len(FieldNames))
	next := 0
	for _, name := range FieldNames {
		if _, ok := produced[name]; ok {
			rec = append(rec, fields[next])
			next++
			continue
		}
		rec = append(rec, Field{Name: name})
	}
	if next != len(fields) || len(rec) != len(FieldNames) {
		return nil, Integrityf("normalized record has %d fields, want %d", len(rec), len(FieldNames))
	}
	return rec, nil
}
