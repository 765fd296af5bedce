package google

import "time"

// CalendarRef is an entry of the user's calendar list.
type CalendarRef struct {
	ID              string `json:"id"`
	Summary         string `json:"summary"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	Primary         bool   `json:"primary"`
	Selected        bool   `json:"selected"`
}

// EventTime is either an all-day Date (YYYY-MM-DD) or a DateTime with an optional TimeZone.
type EventTime struct {
	Date     string
	DateTime string
	TimeZone string
}

func (t EventTime) AllDay() bool {
	return t.DateTime == "" && t.Date != ""
}

// RawEvent is an event as the provider returned it. It is never modified after fetching.
type RawEvent struct {
	ID               string
	CalendarID       string
	Summary          string
	Description      string
	Status           string
	Start            EventTime
	End              EventTime
	Created          string
	ColorID          string
	RecurringEventID string
}

// Window is the half-open range [Start, End) an export is restricted to.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Valid() bool {
	return !w.Start.IsZero() && !w.End.IsZero() && w.Start.Before(w.End)
}
