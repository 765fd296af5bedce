package google

import (
	"context"
	"fmt"
	"sync"
)

// StubClient is an in-memory Client keyed by calendar id.
type StubClient struct {
	mu        sync.Mutex
	Calendars []CalendarRef
	Events    map[string][]RawEvent
	Errors    map[string]error

	// RejectedTokens fail every call made with them as ErrAuth.
	RejectedTokens map[string]bool
	// Tokens records the access token of every call, in order.
	Tokens []string
}

func NewStubClient() *StubClient {
	return &StubClient{
		Events:         make(map[string][]RawEvent),
		Errors:         make(map[string]error),
		RejectedTokens: make(map[string]bool),
	}
}

func (s *StubClient) ListCalendars(ctx context.Context, accessToken string) ([]CalendarRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tokens = append(s.Tokens, accessToken)
	if s.RejectedTokens[accessToken] {
		return nil, fmt.Errorf("%w: access token rejected", ErrAuth)
	}
	if err := s.Errors[""]; err != nil {
		return nil, err
	}
	return append([]CalendarRef(nil), s.Calendars...), nil
}

func (s *StubClient) ListEventsPage(ctx context.Context, accessToken string, calendarId string, window Window, pageToken string) ([]RawEvent, string, error) {
	events, err := s.ListEvents(ctx, accessToken, calendarId, window)
	return events, "", err
}

func (s *StubClient) ListEvents(ctx context.Context, accessToken string, calendarId string, window Window) ([]RawEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tokens = append(s.Tokens, accessToken)
	if s.RejectedTokens[accessToken] {
		return nil, fmt.Errorf("%w: access token rejected", ErrAuth)
	}
	if err := s.Errors[calendarId]; err != nil {
		return nil, err
	}
	events := make([]RawEvent, 0, len(s.Events[calendarId]))
	for _, e := range s.Events[calendarId] {
		e.CalendarID = calendarId
		events = append(events, e)
	}
	return events, nil
}
