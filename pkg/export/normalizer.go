package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/klokku/calexport/pkg/google"
	log "github.com/sirupsen/logrus"
)

const (
	untitledEvent = "(No title)"
	dateLayout    = "2006-01-02"
	localDateTime = "2006-01-02T15:04:05"
	hoursInOneDay = 24
)

// Normalizer turns provider events into ExportRecords in the viewer's time zone.
type Normalizer struct {
	location *time.Location
}

func NewNormalizer(location *time.Location) *Normalizer {
	if location == nil {
		location = time.Local
	}
	return &Normalizer{location: location}
}

// Normalize maps raw into an ExportRecord. The returned warnings describe values that had to be
// repaired. ErrMalformedEvent is returned only when neither start nor end can be parsed.
func (n *Normalizer) Normalize(raw google.RawEvent, calendarDefault Colour, typeMap ColourTypeMap) (ExportRecord, []string, error) {
	var warnings []string
	name := strings.TrimSpace(raw.Summary)
	if name == "" {
		name = untitledEvent
	}

	start, startErr := n.parseTime(raw.Start)
	end, endErr := n.parseTime(raw.End)
	switch {
	case startErr != nil && endErr != nil:
		err := fmt.Errorf("%w: event %q (%s) has no usable start or end: %v; %v", ErrMalformedEvent, name, raw.ID, startErr, endErr)
		log.Warn(err)
		return ExportRecord{}, nil, err
	case startErr != nil:
		warnings = append(warnings, fmt.Sprintf("event %q (%s): start unreadable, using end: %v", name, raw.ID, startErr))
		start = end
	case endErr != nil:
		warnings = append(warnings, fmt.Sprintf("event %q (%s): end unreadable, using start: %v", name, raw.ID, endErr))
		end = start
	}
	if end.Before(start) {
		warnings = append(warnings, fmt.Sprintf("event %q (%s): end is before start, using start", name, raw.ID))
		end = start
	}

	allDay := raw.Start.AllDay() && raw.End.AllDay() && startErr == nil && endErr == nil
	colour := ResolveColour(raw.ColorID, calendarDefault)
	if raw.ColorID != "" {
		if _, ok := ColourFromID(raw.ColorID); !ok {
			warnings = append(warnings, fmt.Sprintf("event %q (%s): unknown colour id %q, using %s", name, raw.ID, raw.ColorID, colour))
		}
	}

	var created time.Time
	if raw.Created != "" {
		if t, err := time.Parse(time.RFC3339, raw.Created); err == nil {
			created = t.In(n.location)
		} else {
			warnings = append(warnings, fmt.Sprintf("event %q (%s): creation time unreadable: %v", name, raw.ID, err))
		}
	}

	record := ExportRecord{
		CalendarID:  raw.CalendarID,
		EventID:     raw.ID,
		Name:        name,
		Description: raw.Description,
		Start:       start,
		End:         end,
		Duration:    end.Sub(start),
		Created:     created,
		AllDay:      allDay,
		Colour:      colour,
		Type:        typeMap.Label(colour),
	}
	if allDay {
		record.DurationText = FormatDuration(time.Duration(calendarDays(start, end)) * hoursInOneDay * time.Hour)
	} else {
		record.DurationText = FormatDuration(record.Duration)
	}
	for _, w := range warnings {
		log.Warn(w)
	}
	return record, warnings, nil
}

// parseTime resolves an all-day date to local midnight and a date-time to an absolute instant,
// both expressed in the viewer's location.
func (n *Normalizer) parseTime(t google.EventTime) (time.Time, error) {
	if t.DateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return parsed.In(n.location), nil
		}
		loc := n.location
		if t.TimeZone != "" {
			zone, err := time.LoadLocation(t.TimeZone)
			if err != nil {
				return time.Time{}, fmt.Errorf("unknown time zone %q: %w", t.TimeZone, err)
			}
			loc = zone
		}
		parsed, err := time.ParseInLocation(localDateTime, t.DateTime, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date-time %q", t.DateTime)
		}
		return parsed.In(n.location), nil
	}
	if t.Date != "" {
		parsed, err := time.ParseInLocation(dateLayout, t.Date, n.location)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q", t.Date)
		}
		return parsed, nil
	}
	return time.Time{}, fmt.Errorf("no date or date-time")
}

// calendarDays counts the dates between start and end, ignoring DST shifts.
func calendarDays(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours() / hoursInOneDay)
}

// FormatDuration renders d as "1 day 2 hours 30 minutes", leaving out zero parts.
// Seconds are dropped; anything under a minute is "0 minutes".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	totalMinutes := int64(d / time.Minute)
	days := totalMinutes / (hoursInOneDay * 60)
	hours := totalMinutes / 60 % hoursInOneDay
	minutes := totalMinutes % 60

	parts := make([]string, 0, 3)
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if len(parts) == 0 {
		return "0 minutes"
	}
	return strings.Join(parts, " ")
}

func plural(n int64, unit string) string {
	s := strconv.FormatInt(n, 10) + " " + unit
	if n != 1 {
		s += "s"
	}
	return s
}
