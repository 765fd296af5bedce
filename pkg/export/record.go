package export

import (
	"errors"
	"time"
)

var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrExport         = errors.New("export failed")
)

// ExportRecord is one normalized event, ready to be written as a CSV row.
// End is never before Start and Duration is always End.Sub(Start).
type ExportRecord struct {
	CalendarID   string
	EventID      string
	Name         string
	Description  string
	Start        time.Time
	End          time.Time
	Duration     time.Duration
	DurationText string
	Created      time.Time
	AllDay       bool
	Colour       Colour
	Type         string
}
