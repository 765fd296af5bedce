package export

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klokku/calexport/internal/event_bus"
	"github.com/klokku/calexport/internal/utils"
	"github.com/klokku/calexport/pkg/google"
	log "github.com/sirupsen/logrus"
)

const defaultFilename = "calendar_export.csv"

var ErrInvalidRequest = errors.New("invalid export request")

// TokenProvider hands out access tokens that are valid right now and takes back the ones the
// provider rejected.
type TokenProvider interface {
	GetValidToken(ctx context.Context) (string, error)
	Invalidate(accessToken string)
}

// ExportRequest describes one export run. It is not modified once built.
type ExportRequest struct {
	Calendars []google.CalendarRef
	Window    google.Window
	Colours   []Colour
	TypeMap   ColourTypeMap
	Filename  string

	// Warnings raised while building the request, reported ahead of the run's own.
	Warnings []string
}

type ExportResult struct {
	Filename          string         `json:"filename"`
	Path              string         `json:"path"`
	RecordCount       int            `json:"records"`
	CalendarsExported int            `json:"calendarsExported"`
	Warnings          []string       `json:"warnings"`
	Records           []ExportRecord `json:"-"`
	CSV               []byte         `json:"-"`
}

type Pipeline struct {
	tokens     TokenProvider
	client     google.Client
	normalizer *Normalizer
	renderer   CsvRenderer
	exportDir  string
	bus        *event_bus.EventBus
}

func NewPipeline(tokens TokenProvider, client google.Client, normalizer *Normalizer, renderer CsvRenderer, exportDir string, bus *event_bus.EventBus) *Pipeline {
	return &Pipeline{
		tokens:     tokens,
		client:     client,
		normalizer: normalizer,
		renderer:   renderer,
		exportDir:  exportDir,
		bus:        bus,
	}
}

// Run fetches, normalizes, filters and sorts the events of every requested calendar and writes
// them as one CSV file. A failing calendar only adds a warning unless none succeeds. ErrAuth and
// context errors abort the run and nothing is written.
func (p *Pipeline) Run(ctx context.Context, req ExportRequest) (ExportResult, error) {
	if !req.Window.Valid() {
		return ExportResult{}, fmt.Errorf("%w: window end must be after start", ErrInvalidRequest)
	}
	filename, err := sanitizeFilename(req.Filename)
	if err != nil {
		return ExportResult{}, err
	}

	result := ExportResult{Filename: filename, Warnings: append([]string{}, req.Warnings...)}
	records := make([]ExportRecord, 0)

	switch {
	case len(req.Calendars) == 0:
		result.Warnings = append(result.Warnings, "no calendars selected, the export is empty")
	case len(req.Colours) == 0:
		result.Warnings = append(result.Warnings, "no colours selected, the export is empty")
	default:
		selected := make(map[Colour]bool, len(req.Colours))
		for _, c := range req.Colours {
			selected[c] = true
		}

		var failures []string
		for _, calendar := range req.Calendars {
			if err := ctx.Err(); err != nil {
				log.Infof("export abandoned before calendar %s: %v", calendar.ID, err)
				return ExportResult{}, err
			}
			calendarRecords, warnings, err := p.exportCalendar(ctx, calendar, req.Window, selected, req.TypeMap)
			result.Warnings = append(result.Warnings, warnings...)
			if err != nil {
				if errors.Is(err, google.ErrAuth) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return ExportResult{}, err
				}
				warning := fmt.Sprintf("calendar %s skipped: %v", calendarName(calendar), err)
				log.Warn(warning)
				result.Warnings = append(result.Warnings, warning)
				failures = append(failures, warning)
				continue
			}
			result.CalendarsExported++
			records = append(records, calendarRecords...)
		}

		if result.CalendarsExported == 0 {
			err := fmt.Errorf("%w: no calendar could be exported: %s", ErrExport, strings.Join(failures, "; "))
			log.Error(err)
			return ExportResult{}, err
		}
	}

	SortRecords(records)

	data, err := p.renderer.Render(records)
	if err != nil {
		return ExportResult{}, fmt.Errorf("%w: unable to render csv: %w", ErrExport, err)
	}
	path := filepath.Join(p.exportDir, filename)
	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		err := fmt.Errorf("%w: unable to write %s: %w", ErrExport, path, err)
		log.Error(err)
		return ExportResult{}, err
	}

	result.Path = path
	result.Records = records
	result.RecordCount = len(records)
	result.CSV = data
	log.Infof("exported %d events from %d calendar(s) to %s with %d warning(s)",
		result.RecordCount, result.CalendarsExported, path, len(result.Warnings))

	p.publishCompleted(ctx, req, result)
	return result, nil
}

// exportCalendar fetches one calendar with a fresh token. Event level problems become warnings.
func (p *Pipeline) exportCalendar(ctx context.Context, calendar google.CalendarRef, window google.Window, selected map[Colour]bool, typeMap ColourTypeMap) ([]ExportRecord, []string, error) {
	events, err := google.WithValidToken(ctx, p.tokens, func(accessToken string) ([]google.RawEvent, error) {
		return p.client.ListEvents(ctx, accessToken, calendar.ID, window)
	})
	if err != nil {
		return nil, nil, err
	}

	calendarDefault := NearestColour(calendar.BackgroundColor)
	var warnings []string
	records := make([]ExportRecord, 0, len(events))
	for _, raw := range events {
		if raw.Status == "cancelled" {
			warnings = append(warnings, fmt.Sprintf("calendar %s: cancelled event %q (%s) skipped", calendarName(calendar), raw.Summary, raw.ID))
			continue
		}
		record, issues, err := p.normalizer.Normalize(raw, calendarDefault, typeMap)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("calendar %s: event skipped: %v", calendarName(calendar), err))
			continue
		}
		for _, issue := range issues {
			warnings = append(warnings, fmt.Sprintf("calendar %s: %s", calendarName(calendar), issue))
		}
		if !selected[record.Colour] {
			continue
		}
		records = append(records, record)
	}
	log.Debugf("calendar %s: %d of %d events kept", calendar.ID, len(records), len(events))
	return records, warnings, nil
}

func (p *Pipeline) publishCompleted(ctx context.Context, req ExportRequest, result ExportResult) {
	if p.bus == nil {
		return
	}
	calendarIds := make([]string, 0, len(req.Calendars))
	for _, c := range req.Calendars {
		calendarIds = append(calendarIds, c.ID)
	}
	colours := make([]string, 0, len(req.Colours))
	for _, c := range req.Colours {
		colours = append(colours, c.String())
	}
	event := event_bus.NewEvent(context.WithoutCancel(ctx), event_bus.ExportCompletedType, event_bus.ExportCompleted{
		CalendarIds: calendarIds,
		Colours:     colours,
		TypeMap:     req.TypeMap.ByName(),
		Filename:    result.Filename,
		Records:     result.RecordCount,
		Warnings:    len(result.Warnings),
	})
	if err := p.bus.Publish(event); err != nil {
		log.Warnf("export completed notification failed: %v", err)
	}
}

// SortRecords orders records by start, then by name. Equal records keep their order.
func SortRecords(records []ExportRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Start.Equal(records[j].Start) {
			return records[i].Start.Before(records[j].Start)
		}
		return records[i].Name < records[j].Name
	})
}

func sanitizeFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultFilename, nil
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: filename %q must not contain a path", ErrInvalidRequest, name)
	}
	if !strings.HasSuffix(strings.ToLower(name), ".csv") {
		name += ".csv"
	}
	return name, nil
}

func calendarName(calendar google.CalendarRef) string {
	if calendar.Summary == "" || calendar.Summary == calendar.ID {
		return calendar.ID
	}
	return fmt.Sprintf("%q (%s)", calendar.Summary, calendar.ID)
}
