package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/klokku/calexport/internal/rest"
	"github.com/klokku/calexport/internal/utils"
	"github.com/klokku/calexport/pkg/google"
	"github.com/klokku/calexport/pkg/settings"
	log "github.com/sirupsen/logrus"
)

// ExportRequestDTO is the body of POST /api/export. Omitted fields fall back to the saved
// settings; an explicit empty list selects nothing.
type ExportRequestDTO struct {
	CalendarIds []string          `json:"calendarIds"`
	From        string            `json:"from,omitempty"`
	To          string            `json:"to,omitempty"`
	Colours     []string          `json:"colours"`
	TypeMap     map[string]string `json:"typeMap"`
	Filename    string            `json:"filename,omitempty"`
}

type Handler struct {
	pipeline *Pipeline
	tokens   TokenProvider
	client   google.Client
	settings settings.Service
	clock    utils.Clock
	location *time.Location
}

func NewHandler(pipeline *Pipeline, tokens TokenProvider, client google.Client, settings settings.Service, clock utils.Clock, location *time.Location) *Handler {
	return &Handler{
		pipeline: pipeline,
		tokens:   tokens,
		client:   client,
		settings: settings,
		clock:    clock,
		location: location,
	}
}

// ListColours godoc
// @Summary List the event colours
// @Tags Export
// @Produce json
// @Success 200 {array} ColourDTO
// @Router /api/colours [get]
func (h *Handler) ListColours(w http.ResponseWriter, r *http.Request) {
	rest.WriteJSON(w, http.StatusOK, Catalogue())
}

// Export godoc
// @Summary Export events as CSV
// @Description Fetches the selected calendars, keeps events of the selected colours and writes them to a CSV file
// @Tags Export
// @Accept json
// @Produce json
// @Param download query bool false "Return the CSV file instead of the result summary"
// @Param request body ExportRequestDTO true "Export request"
// @Success 200 {object} ExportResult
// @Failure 400 {object} rest.ErrorResponse
// @Failure 401 {object} rest.ErrorResponse
// @Failure 502 {object} rest.ErrorResponse
// @Router /api/export [post]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var dto ExportRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req, err := h.buildRequest(r, dto)
	if err != nil {
		writeExportError(w, err)
		return
	}
	log.Debugf("exporting %d calendar(s) between %s and %s", len(req.Calendars), req.Window.Start, req.Window.End)

	result, err := h.pipeline.Run(r.Context(), req)
	if err != nil {
		writeExportError(w, err)
		return
	}

	download, _ := strconv.ParseBool(r.URL.Query().Get("download"))
	if !download {
		rest.WriteJSON(w, http.StatusOK, result)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.CSV); err != nil {
		log.Errorf("unable to send csv: %v", err)
	}
}

func (h *Handler) buildRequest(r *http.Request, dto ExportRequestDTO) (ExportRequest, error) {
	saved := h.settings.Get(r.Context())
	now := h.clock.Now().In(h.location)

	defaultStart, defaultEnd := saved.DefaultWindow(now)
	start, err := parseBound(dto.From, defaultStart)
	if err != nil {
		return ExportRequest{}, err
	}
	end, err := parseBound(dto.To, defaultEnd)
	if err != nil {
		return ExportRequest{}, err
	}

	colourNames := dto.Colours
	if colourNames == nil {
		colourNames = saved.ColourSelection
	}
	colours, err := ParseColours(colourNames)
	if err != nil {
		return ExportRequest{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	typeNames := dto.TypeMap
	if typeNames == nil {
		typeNames = saved.TypeMap
	}
	typeMap, err := ParseColourTypeMap(typeNames)
	if err != nil {
		return ExportRequest{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	calendarIds := dto.CalendarIds
	if calendarIds == nil {
		calendarIds = saved.SelectedCalendarIds
	}
	calendars, warnings, err := h.resolveCalendars(r, calendarIds)
	if err != nil {
		return ExportRequest{}, err
	}

	filename := dto.Filename
	if filename == "" {
		filename = h.settings.DefaultFilename(r.Context())
	}

	return ExportRequest{
		Calendars: calendars,
		Window:    google.Window{Start: start, End: end},
		Colours:   colours,
		TypeMap:   typeMap,
		Filename:  filename,
		Warnings:  warnings,
	}, nil
}

// resolveCalendars keeps the requested order and attaches what the calendar list knows about
// each id. Ids missing from the list are still exported, with the default colour. When the list
// itself cannot be fetched every id is exported that way and a warning says so.
func (h *Handler) resolveCalendars(r *http.Request, ids []string) ([]google.CalendarRef, []string, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	var warnings []string
	known, err := google.ListCalendars(r.Context(), h.tokens, h.client)
	if err != nil {
		if errors.Is(err, google.ErrAuth) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, err
		}
		warning := fmt.Sprintf("calendar list unavailable, calendar colours fall back to the default: %v", err)
		log.Warn(warning)
		warnings = append(warnings, warning)
	}
	byId := make(map[string]google.CalendarRef, len(known))
	for _, c := range known {
		byId[c.ID] = c
	}

	calendars := make([]google.CalendarRef, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		calendar, ok := byId[id]
		if !ok {
			calendar = google.CalendarRef{ID: id}
		}
		calendar.Selected = true
		calendars = append(calendars, calendar)
	}
	return calendars, warnings, nil
}

func parseBound(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q must be in RFC3339 format", ErrInvalidRequest, value)
	}
	return t, nil
}

func writeExportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		rest.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrExport):
		rest.WriteError(w, http.StatusBadGateway, err.Error())
	default:
		google.WriteProviderError(w, err)
	}
}
