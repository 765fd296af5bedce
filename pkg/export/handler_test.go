package export

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/klokku/calexport/internal/utils"
	"github.com/klokku/calexport/pkg/google"
	"github.com/klokku/calexport/pkg/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupExportRouter(t *testing.T) (*mux.Router, *pipelineFixture, *settings.ServiceImpl) {
	t.Helper()
	f := newPipelineFixture(t)
	f.client.Calendars = []google.CalendarRef{
		{ID: "work", Summary: "Work", BackgroundColor: "#f6bf26"},
		{ID: "home", Summary: "Home", BackgroundColor: "#039be5"},
	}
	f.client.Events["work"] = []google.RawEvent{
		{ID: "1", Summary: "Default colour", Start: google.EventTime{DateTime: "2024-03-01T09:00:00Z"}, End: google.EventTime{DateTime: "2024-03-01T10:00:00Z"}},
		event("2", "Sage meeting", "2", "2024-02-01T09:00:00Z", "2024-02-01T09:45:00Z"),
	}

	clock := &utils.MockClock{FixedNow: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)}
	settingsService, err := settings.NewService(settings.NewRepositoryStub(), clock, ValidateSettings)
	require.NoError(t, err)
	handler := NewHandler(f.pipeline, f.tokens, f.client, settingsService, clock, time.UTC)

	router := mux.NewRouter()
	router.HandleFunc("/api/export", handler.Export).Methods("POST")
	router.HandleFunc("/api/colours", handler.ListColours).Methods("GET")
	return router, f, settingsService
}

func postExport(router *mux.Router, query, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/api/export"+query, strings.NewReader(body)))
	return rr
}

func TestHandler_Export(t *testing.T) {
	router, f, _ := setupExportRouter(t)

	rr := postExport(router, "", `{"calendarIds":["work"],"from":"2024-01-01T00:00:00Z","to":"2024-04-01T00:00:00Z",
		"colours":["Banana","Sage"],"typeMap":{"Banana":"focus"},"filename":"q1"}`)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result ExportResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&result))
	assert.Equal(t, "q1.csv", result.Filename)
	assert.Equal(t, 2, result.RecordCount)
	assert.Equal(t, 1, result.CalendarsExported)

	csv, err := readExported(f, "q1.csv")
	require.NoError(t, err)
	assert.Contains(t, csv, "Sage meeting,,01/02/2024 09:00,01/02/2024 09:45,45 minutes,20/02/2024 12:00,Sage,\n")
	assert.Contains(t, csv, "Default colour,,01/03/2024 09:00,01/03/2024 10:00,1 hour,,Banana,focus\n")
}

func TestHandler_ExportUsesSavedSettings(t *testing.T) {
	ctx := context.Background()
	router, f, settingsService := setupExportRouter(t)
	saved := settingsService.Get(ctx)
	saved.SelectedCalendarIds = []string{"work"}
	saved.StartDaysAgo = 7
	_, err := settingsService.Update(ctx, saved)
	require.NoError(t, err)

	rr := postExport(router, "", `{}`)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result ExportResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&result))
	assert.Equal(t, "calendar_export_2024-03-05.csv", result.Filename)
	assert.Equal(t, 2, result.RecordCount, "the stub ignores the window")
	assert.Equal(t, []string{"token-1", "token-2"}, f.client.Tokens)
}

func TestHandler_ExportDownload(t *testing.T) {
	router, _, _ := setupExportRouter(t)

	rr := postExport(router, "?download=true", `{"calendarIds":["work"],"filename":"dl.csv"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="dl.csv"`, rr.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "Event Name,"))
}

func TestHandler_ExportEmptySelection(t *testing.T) {
	router, _, _ := setupExportRouter(t)

	rr := postExport(router, "", `{"calendarIds":[]}`)

	require.Equal(t, http.StatusOK, rr.Code)
	var result ExportResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&result))
	assert.Zero(t, result.RecordCount)
	assert.Len(t, result.Warnings, 1)
}

func TestHandler_ExportWithoutCalendarList(t *testing.T) {
	// given
	router, f, _ := setupExportRouter(t)
	f.client.Errors[""] = fmt.Errorf("%w: calendar list down", google.ErrTransient)

	// when
	rr := postExport(router, "", `{"calendarIds":["work"],"from":"2024-01-01T00:00:00Z","to":"2024-04-01T00:00:00Z",
		"colours":["Peacock","Sage"],"filename":"fallback"}`)

	// then
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result ExportResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&result))
	assert.Equal(t, 2, result.RecordCount)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "calendar list unavailable")

	csv, err := readExported(f, "fallback.csv")
	require.NoError(t, err)
	assert.Contains(t, csv, "Default colour,,01/03/2024 09:00,01/03/2024 10:00,1 hour,,Peacock,\n")
}

func TestHandler_ExportErrors(t *testing.T) {
	testCases := []struct {
		name       string
		body       string
		prepare    func(f *pipelineFixture)
		wantStatus int
	}{
		{name: "malformed body", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "unknown colour", body: `{"colours":["Pink"]}`, wantStatus: http.StatusBadRequest},
		{name: "bad date", body: `{"from":"01/03/2024"}`, wantStatus: http.StatusBadRequest},
		{name: "inverted window", body: `{"calendarIds":["work"],"from":"2024-03-02T00:00:00Z","to":"2024-03-01T00:00:00Z"}`, wantStatus: http.StatusBadRequest},
		{
			name:       "not authorized",
			body:       `{"calendarIds":["work"]}`,
			prepare:    func(f *pipelineFixture) { f.tokens.err = fmt.Errorf("%w: no session", google.ErrAuth) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "calendar list keeps rejecting the token",
			body: `{"calendarIds":["work"]}`,
			prepare: func(f *pipelineFixture) {
				f.client.RejectedTokens["token-1"] = true
				f.client.RejectedTokens["token-2"] = true
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "every calendar failed",
			body:       `{"calendarIds":["work"]}`,
			prepare:    func(f *pipelineFixture) { f.client.Errors["work"] = fmt.Errorf("%w: down", google.ErrTransient) },
			wantStatus: http.StatusBadGateway,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			router, f, _ := setupExportRouter(t)
			if tc.prepare != nil {
				tc.prepare(f)
			}

			rr := postExport(router, "", tc.body)

			assert.Equal(t, tc.wantStatus, rr.Code, rr.Body.String())
		})
	}
}

func TestHandler_ListColours(t *testing.T) {
	router, _, _ := setupExportRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/api/colours", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var colours []ColourDTO
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&colours))
	assert.Len(t, colours, 11)
}

func readExported(f *pipelineFixture, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, name))
	return string(data), err
}
