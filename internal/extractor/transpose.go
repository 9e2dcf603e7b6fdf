package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/gva-data/harvester/internal/harvest"
)

// Participant and gun sections list one <ul> per group, each item holding a
// "Label: value" line. The groups are transposed so that every label becomes
// one field whose value maps group index to the label's value in that group.

type keyValue struct {
	key   string
	value string
}

// attributeColumn collects one label's values across groups, in order of
// first appearance so the group-to-index correspondence stays deterministic.
type attributeColumn struct {
	label  string
	values []harvest.GroupValue
}

// parseLines splits "Label: value" lines. Blank lines are skipped; a line
// without a colon, or a label repeated within one group, violates the data
// contract.
func parseLines(lines []string) ([]keyValue, error) {
	var pairs []keyValue
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			return nil, harvest.Integrityf("line %q is not a key/value pair", line)
		}
		key := line[:idx]
		value := strings.TrimPrefix(line[idx+1:], " ")
		if _, dup := seen[key]; dup {
			return nil, harvest.Integrityf("key %q appears twice in one group", key)
		}
		seen[key] = struct{}{}
		pairs = append(pairs, keyValue{key: key, value: value})
	}
	return pairs, nil
}

// transpose turns per-group attribute lines into per-attribute columns.
func transpose(groups [][]string) ([]attributeColumn, error) {
	var (
		columns []attributeColumn
		index   = make(map[string]int)
	)
	for groupNo, lines := range groups {
		pairs, err := parseLines(lines)
		if err != nil {
			return nil, err
		}
		for _, kv := range pairs {
			at, ok := index[kv.key]
			if !ok {
				at = len(columns)
				index[kv.key] = at
				columns = append(columns, attributeColumn{label: kv.key})
			}
			columns[at].values = append(columns[at].values, harvest.GroupValue{
				Group: groupNo,
				Value: kv.value,
			})
		}
	}
	return columns, nil
}

// transposedFields extracts every <ul> of the section as one group and emits
// one encoded field per attribute label, named by prefixing the normalized
// label (e.g. "Age Group" -> "participant_age_group").
func transposedFields(section *goquery.Selection, prefix string) ([]harvest.Field, error) {
	var groups [][]string
	section.Find("ul").Each(func(_ int, ul *goquery.Selection) {
		var lines []string
		ul.Find("li").Each(func(_ int, li *goquery.Selection) {
			lines = append(lines, li.Text())
		})
		groups = append(groups, lines)
	})

	columns, err := transpose(groups)
	if err != nil {
		return nil, err
	}
	fields := make([]harvest.Field, 0, len(columns))
	for _, col := range columns {
		value, err := harvest.StringifyGroups(col.values)
		if err != nil {
			return nil, err
		}
		fields = append(fields, harvest.Field{Name: fieldName(col.label, prefix), Value: value})
	}
	return fields, nil
}

// itemTexts returns the text of every list item in the section.
func itemTexts(section *goquery.Selection) []string {
	var items []string
	section.Find("li").Each(func(_ int, li *goquery.Selection) {
		items = append(items, li.Text())
	})
	return items
}

func fieldName(label, prefix string) string {
	return prefix + strings.ReplaceAll(strings.ToLower(label), " ", "_")
}
