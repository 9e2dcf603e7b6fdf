// Package extractor converts one incident detail page into a schema-complete
// record. It performs no I/O and holds no mutable state; extraction is
// deterministic for a given document and request context.
package extractor

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/gva-data/harvester/internal/harvest"
)

// Visible headings of the optional page sections. A missing heading means
// that section's fields stay absent, it is not an error.
const (
	sectionLocation        = "Location"
	sectionParticipants    = "Participants"
	sectionCharacteristics = "Incident Characteristics"
	sectionNotes           = "Notes"
	sectionGunsInvolved    = "Guns Involved"
	sectionSources         = "Sources"
	sectionDistrict        = "District"
)

var (
	geolocationRe  = regexp.MustCompile(`^Geolocation:\s+(.*),\s+(.*)$`)
	houseNumberRe  = regexp.MustCompile(`(?i)^[0-9]+[0-9a-z-]*\b`)
	streetSuffixRe = regexp.MustCompile(`(?i)\b(st|street|rd|road|dr|drive|blvd|boulevard|ave|avenue|hwy|highway)\.?$`)
	gunsCountRe    = regexp.MustCompile(`^([0-9]+)\s+guns?\s+involved\.$`)
)

// Extractor maps incident detail documents to records.
type Extractor struct{}

// New constructs an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract parses the document and returns the normalized record. Any
// *harvest.IntegrityError it returns means the source format drifted or a
// reserved separator collided; such errors must not be retried.
func (e *Extractor) Extract(body []byte, rc harvest.RequestContext) (harvest.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, harvest.Integrityf("parse document: %v", err)
	}

	var fields []harvest.Field
	for _, sub := range []func(*goquery.Document, harvest.RequestContext) ([]harvest.Field, error){
		e.locationFields,
		e.participantFields,
		e.characteristicFields,
		e.notesFields,
		e.gunsInvolvedFields,
		e.sourcesFields,
		e.districtFields,
	} {
		got, err := sub(doc, rc)
		if err != nil {
			return nil, err
		}
		fields = append(fields, got...)
	}
	return harvest.Normalize(fields)
}

// locateSection finds the subtree of the section labeled by heading: the
// parent of the matching <h2> under the page's main content block.
func locateSection(doc *goquery.Document, heading string) *goquery.Selection {
	var section *goquery.Selection
	doc.Find("#block-system-main h2").EachWithBreak(func(_ int, h2 *goquery.Selection) bool {
		if h2.Text() != heading {
			return true
		}
		section = h2.Parent()
		return false
	})
	return section
}

func (e *Extractor) locationFields(doc *goquery.Document, rc harvest.RequestContext) ([]harvest.Field, error) {
	section := locateSection(doc, sectionLocation)
	if section == nil {
		return nil, nil
	}

	describesLocality := func(line string) bool {
		return strings.Contains(line, ",") && strings.HasSuffix(line, rc.Region)
	}
	describesAddress := func(line string) bool {
		// The address on the detail page usually, but not always, matches the
		// address already known from the upstream extract.
		return line == rc.Address || houseNumberRe.MatchString(line) || streetSuffixRe.MatchString(line)
	}

	var (
		fields []harvest.Field
		subErr error
	)
	section.Find("span").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		line := span.Text()
		if line == "" {
			return true
		}
		if m := geolocationRe.FindStringSubmatch(line); m != nil {
			lat, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				subErr = harvest.Integrityf("latitude %q is not numeric", m[1])
				return false
			}
			lon, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				subErr = harvest.Integrityf("longitude %q is not numeric", m[2])
				return false
			}
			fields = append(fields,
				harvest.Field{Name: "latitude", Value: lat},
				harvest.Field{Name: "longitude", Value: lon},
			)
			return true
		}
		if describesLocality(line) || describesAddress(line) {
			// Address, city and state are already part of the upstream row.
			return true
		}
		fields = append(fields, harvest.Field{Name: "location_description", Value: line})
		return true
	})
	return fields, subErr
}

func (e *Extractor) participantFields(doc *goquery.Document, _ harvest.RequestContext) ([]harvest.Field, error) {
	section := locateSection(doc, sectionParticipants)
	if section == nil {
		return nil, nil
	}
	return transposedFields(section, "participant_")
}

func (e *Extractor) characteristicFields(doc *goquery.Document, _ harvest.RequestContext) ([]harvest.Field, error) {
	section := locateSection(doc, sectionCharacteristics)
	if section == nil {
		return nil, nil
	}
	value, err := harvest.StringifyList(itemTexts(section))
	if err != nil {
		return nil, err
	}
	return []harvest.Field{{Name: "incident_characteristics", Value: value}}, nil
}

func (e *Extractor) notesFields(doc *goquery.Document, _ harvest.RequestContext) ([]harvest.Field, error) {
	section := locateSection(doc, sectionNotes)
	if section == nil {
		return nil, nil
	}
	p := section.Find("p").First()
	if p.Length() == 0 {
		return nil, harvest.Integrityf("notes section has no paragraph")
	}
	return []harvest.Field{{Name: "notes", Value: p.Text()}}, nil
}

func (e *Extractor) gunsInvolvedFields(doc *goquery.Document, _ harvest.RequestContext) ([]harvest.Field, error) {
	section := locateSection(doc, sectionGunsInvolved)
	if section == nil {
		return nil, nil
	}

	intro := section.Find("p").First().Text()
	m := gunsCountRe.FindStringSubmatch(intro)
	if m == nil {
		return nil, harvest.Integrityf("guns involved intro %q did not match expected pattern", intro)
	}
	count, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil, harvest.Integrityf("gun count %q is not numeric", m[1])
	}

	fields := []harvest.Field{{Name: "n_guns_involved", Value: count}}
	rest, err := transposedFields(section, "gun_")
	if err != nil {
		return nil, err
	}
	return append(fields, rest...), nil
}

func (e *Extractor) sourcesFields(doc *goquery.Document, _ harvest.RequestContext) ([]harvest.Field, error) {
	section := locateSection(doc, sectionSources)
	if section == nil {
		return nil, nil
	}

	// Citation links render their own target as the visible text; anything
	// else (decorative or descriptive links) is skipped.
	var links []string
	section.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if ok && a.Text() == href {
			links = append(links, href)
		}
	})
	value, err := harvest.StringifyList(links)
	if err != nil {
		return nil, err
	}
	return []harvest.Field{{Name: "sources", Value: value}}, nil
}

func (e *Extractor) districtFields(doc *goquery.Document, _ harvest.RequestContext) ([]harvest.Field, error) {
	section := locateSection(doc, sectionDistrict)
	if section == nil {
		return nil, nil
	}

	// The district lines are orphaned text nodes, not wrapped in any element.
	// Each one is immediately followed by a <br>, so walk back from those.
	var lines []string
	section.Find("br").Each(func(_ int, br *goquery.Selection) {
		prev := br.Nodes[0].PrevSibling
		if prev != nil && prev.Type == html.TextNode {
			lines = append(lines, strings.TrimSpace(prev.Data))
		}
	})

	pairs, err := parseLines(lines)
	if err != nil {
		return nil, err
	}
	fields := make([]harvest.Field, 0, len(pairs))
	for _, kv := range pairs {
		n, err := strconv.ParseInt(kv.value, 10, 64)
		if err != nil {
			return nil, harvest.Integrityf("district value %q for %q is not an integer", kv.value, kv.key)
		}
		fields = append(fields, harvest.Field{Name: fieldName(kv.key, ""), Value: n})
	}
	return fields, nil
}
