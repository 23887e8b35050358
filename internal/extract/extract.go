// Package extract recovers a birthday record from a message body. A body
// carries the description and the date between sentinel markers, for
// example:
//
//	1973@Alice's Birthday@1973 1974@25/06/1990@1974
//
// Each field is opened by "<marker><delimiter>" and closed by
// "<delimiter><marker>". The description field comes first; only
// whitespace may separate the two fields.
package extract

import (
	"fmt"
	"regexp"

	"github.com/nhle/bdaycal/internal/model"
)

// Markers are the sentinel tokens around the two fields.
type Markers struct {
	Description string
	Date        string
	Delimiter   string
}

// DefaultMarkers returns the markers the birthday notes are written with.
func DefaultMarkers() Markers {
	return Markers{
		Description: "1973",
		Date:        "1974",
		Delimiter:   "@",
	}
}

// Extractor matches the sentinel pattern against plain text.
type Extractor struct {
	pattern *regexp.Regexp
}

// New compiles the pattern for the given markers.
func New(m Markers) (*Extractor, error) {
	if m.Description == "" || m.Date == "" {
		return nil, fmt.Errorf("extract: description and date markers are required")
	}
	if m.Description == m.Date {
		return nil, fmt.Errorf("extract: description and date markers must differ")
	}

	open := func(marker string) string {
		return regexp.QuoteMeta(marker + m.Delimiter)
	}
	closing := func(marker string) string {
		return regexp.QuoteMeta(m.Delimiter + marker)
	}

	expr := fmt.Sprintf(`%s(.*?)%s\s*%s(.*?)%s`,
		open(m.Description), closing(m.Description),
		open(m.Date), closing(m.Date),
	)

	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("extract: compiling marker pattern: %w", err)
	}

	return &Extractor{pattern: pattern}, nil
}

// Extract returns the first (description, date) pair found in text. A
// missing pattern or an empty field is a miss, not an error.
func (e *Extractor) Extract(text string) (model.Record, bool) {
	match := e.pattern.FindStringSubmatch(text)
	if match == nil {
		return model.Record{}, false
	}

	rec := model.Record{Description: match[1], Date: match[2]}
	if rec.Description == "" || rec.Date == "" {
		return model.Record{}, false
	}

	return rec, true
}
