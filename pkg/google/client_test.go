package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testWindow = Window{
	Start: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
}

type fakeCalendarAPI struct {
	events      int
	failFirst   int
	failStatus  int
	failReason  string
	calls       atomic.Int32
	lastAuth    atomic.Value
	lastTimeMin atomic.Value
}

func (f *fakeCalendarAPI) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/users/me/calendarList", f.calendarList).Methods("GET")
	r.HandleFunc("/calendars/{calendarId}/events", f.listEvents).Methods("GET")
	return r
}

func (f *fakeCalendarAPI) fail(w http.ResponseWriter) bool {
	call := int(f.calls.Add(1))
	if call > f.failFirst {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.failStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    f.failStatus,
			"message": "failure",
			"errors":  []map[string]any{{"reason": f.failReason, "message": "failure"}},
		},
	})
	return true
}

func (f *fakeCalendarAPI) calendarList(w http.ResponseWriter, r *http.Request) {
	f.lastAuth.Store(r.Header.Get("Authorization"))
	if f.fail(w) {
		return
	}
	page := r.URL.Query().Get("pageToken")
	body := map[string]any{}
	if page == "" {
		body["items"] = []map[string]any{
			{"id": "primary-id", "summary": "Me", "backgroundColor": "#039be5", "primary": true},
		}
		body["nextPageToken"] = "second"
	} else {
		body["items"] = []map[string]any{
			{"id": "team", "summary": "Team", "summaryOverride": "Team (mine)", "backgroundColor": "#7986cb"},
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeCalendarAPI) listEvents(w http.ResponseWriter, r *http.Request) {
	f.lastAuth.Store(r.Header.Get("Authorization"))
	f.lastTimeMin.Store(r.URL.Query().Get("timeMin"))
	if f.fail(w) {
		return
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
	offset := 0
	if token := r.URL.Query().Get("pageToken"); token != "" {
		offset, _ = strconv.Atoi(token)
	}
	end := min(offset+pageSize, f.events)

	items := make([]map[string]any, 0, end-offset)
	for i := offset; i < end; i++ {
		items = append(items, map[string]any{
			"id":      fmt.Sprintf("ev-%d", i),
			"summary": fmt.Sprintf("Event %d", i),
			"status":  "confirmed",
			"colorId": "7",
			"start":   map[string]any{"dateTime": "2025-03-10T10:00:00Z"},
			"end":     map[string]any{"dateTime": "2025-03-10T11:00:00Z"},
		})
	}
	body := map[string]any{"items": items}
	if end < f.events {
		body["nextPageToken"] = strconv.Itoa(end)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func newTestClient(t *testing.T, api *fakeCalendarAPI, pageSize int64, maxEvents int) *ClientImpl {
	t.Helper()
	srv := httptest.NewServer(api.router())
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		HTTPClient: srv.Client(),
		Endpoint:   srv.URL + "/",
		PageSize:   pageSize,
		MaxEvents:  maxEvents,
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	})
}

func TestClient_ListEvents_FollowsPagesUntilExhausted(t *testing.T) {
	api := &fakeCalendarAPI{events: 250}
	client := newTestClient(t, api, 100, 10000)

	events, err := client.ListEvents(context.Background(), "access-1", "team", testWindow)

	require.NoError(t, err)
	assert.Len(t, events, 250)
	assert.Equal(t, int32(3), api.calls.Load())
	assert.Equal(t, "ev-0", events[0].ID)
	assert.Equal(t, "ev-249", events[249].ID)
	assert.Equal(t, "team", events[0].CalendarID)
	assert.Equal(t, "7", events[0].ColorID)
	assert.Equal(t, "2025-03-10T10:00:00Z", events[0].Start.DateTime)
	assert.Equal(t, "Bearer access-1", api.lastAuth.Load())
	assert.Equal(t, "2025-03-01T00:00:00Z", api.lastTimeMin.Load())
}

func TestClient_ListEventsPage(t *testing.T) {
	api := &fakeCalendarAPI{events: 150}
	client := newTestClient(t, api, 100, 10000)

	events, next, err := client.ListEventsPage(context.Background(), "access-1", "team", testWindow, "")
	require.NoError(t, err)
	assert.Len(t, events, 100)
	assert.Equal(t, "100", next)

	events, next, err = client.ListEventsPage(context.Background(), "access-1", "team", testWindow, next)
	require.NoError(t, err)
	assert.Len(t, events, 50)
	assert.Empty(t, next)
}

func TestClient_ListEvents_EmptyCalendar(t *testing.T) {
	api := &fakeCalendarAPI{}
	client := newTestClient(t, api, 100, 10000)

	events, err := client.ListEvents(context.Background(), "access-1", "team", testWindow)

	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestClient_ListEvents_CapReturnsQuotaError(t *testing.T) {
	api := &fakeCalendarAPI{events: 500}
	client := newTestClient(t, api, 100, 250)

	_, err := client.ListEvents(context.Background(), "access-1", "team", testWindow)

	assert.ErrorIs(t, err, ErrQuota)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		failFirst int
		status    int
		reason    string
		wantErr   error
		wantCalls int32
	}{
		{name: "server error is retried", failFirst: 1, status: 500, reason: "backendError", wantCalls: 2},
		{name: "persistent server error gives up", failFirst: 10, status: 503, reason: "backendError", wantErr: ErrTransient, wantCalls: 4},
		{name: "unauthorized is not retried", failFirst: 10, status: 401, reason: "authError", wantErr: ErrAuth, wantCalls: 1},
		{name: "rate limit", failFirst: 10, status: 403, reason: "rateLimitExceeded", wantErr: ErrQuota, wantCalls: 1},
		{name: "too many requests", failFirst: 10, status: 429, reason: "rateLimitExceeded", wantErr: ErrQuota, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeCalendarAPI{events: 10, failFirst: tt.failFirst, failStatus: tt.status, failReason: tt.reason}
			client := newTestClient(t, api, 100, 10000)

			events, err := client.ListEvents(context.Background(), "access-1", "team", testWindow)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Len(t, events, 10)
			}
			assert.Equal(t, tt.wantCalls, api.calls.Load())
		})
	}
}

func TestClient_ListCalendars(t *testing.T) {
	api := &fakeCalendarAPI{}
	client := newTestClient(t, api, 100, 10000)

	calendars, err := client.ListCalendars(context.Background(), "access-2")

	require.NoError(t, err)
	require.Len(t, calendars, 2)
	assert.Equal(t, CalendarRef{ID: "primary-id", Summary: "Me", BackgroundColor: "#039be5", Primary: true}, calendars[0])
	assert.Equal(t, "Team (mine)", calendars[1].Summary)
	assert.Equal(t, "Bearer access-2", api.lastAuth.Load())
}

func TestClient_MissingAccessToken(t *testing.T) {
	client := NewClient(ClientConfig{})

	_, err := client.ListCalendars(context.Background(), "")

	assert.ErrorIs(t, err, ErrAuth)
}

func TestClassify_ContextErrorsArePermanent(t *testing.T) {
	err := classify(fmt.Errorf("wrapped: %w", context.Canceled))

	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrTransient))
}
