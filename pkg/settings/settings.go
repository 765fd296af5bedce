package settings

import (
	"errors"
	"slices"
	"strings"
	"time"
)

var ErrInvalidSettings = errors.New("invalid settings")

const (
	DefaultFilenamePattern = "calendar_export_{date}.csv"
	DefaultStartDaysAgo    = 30
	dateToken              = "{date}"
)

// AllColourNames is the full colour selection new settings start with.
var AllColourNames = []string{
	"Lavender", "Sage", "Grape", "Flamingo", "Banana", "Tangerine",
	"Peacock", "Graphite", "Blueberry", "Basil", "Tomato",
}

// Settings are the user's export selections, persisted between runs.
type Settings struct {
	SelectedCalendarIds    []string          `json:"selected_calendar_ids"`
	ColourSelection        []string          `json:"colour_selection"`
	TypeMap                map[string]string `json:"type_map"`
	DefaultFilenamePattern string            `json:"default_filename_pattern"`
	StartDaysAgo           int               `json:"start_days_ago"`
}

func Defaults() Settings {
	return Settings{
		SelectedCalendarIds:    []string{},
		ColourSelection:        slices.Clone(AllColourNames),
		TypeMap:                map[string]string{},
		DefaultFilenamePattern: DefaultFilenamePattern,
		StartDaysAgo:           DefaultStartDaysAgo,
	}
}

// withDefaults fills fields left null in an older or hand-edited file. Fields that are absent
// altogether keep the value they were decoded onto, see Defaults. A zero StartDaysAgo is a
// valid window of today only.
func (s Settings) withDefaults() Settings {
	if s.SelectedCalendarIds == nil {
		s.SelectedCalendarIds = []string{}
	}
	if s.ColourSelection == nil {
		s.ColourSelection = slices.Clone(AllColourNames)
	}
	if s.TypeMap == nil {
		s.TypeMap = map[string]string{}
	}
	if strings.TrimSpace(s.DefaultFilenamePattern) == "" {
		s.DefaultFilenamePattern = DefaultFilenamePattern
	}
	if s.StartDaysAgo < 0 {
		s.StartDaysAgo = DefaultStartDaysAgo
	}
	return s
}

// ExpandFilename replaces {date} with the YYYY-MM-DD date of now and makes sure the name ends in .csv.
func ExpandFilename(pattern string, now time.Time) string {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultFilenamePattern
	}
	name := strings.ReplaceAll(strings.TrimSpace(pattern), dateToken, now.Format("2006-01-02"))
	if !strings.HasSuffix(strings.ToLower(name), ".csv") {
		name += ".csv"
	}
	return name
}

// DefaultWindow is [midnight StartDaysAgo days before now, next midnight) in now's location.
func (s Settings) DefaultWindow(now time.Time) (time.Time, time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return today.AddDate(0, 0, -s.StartDaysAgo), today.AddDate(0, 0, 1)
}
