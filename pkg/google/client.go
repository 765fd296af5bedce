package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var ErrQuota = errors.New("google quota exceeded")

const (
	maxRetries       = 3
	DefaultPageSize  = 250
	DefaultMaxEvents = 10000
)

// Client is a typed wrapper over the Calendar API. Timestamps are always requested in UTC.
type Client interface {
	ListCalendars(ctx context.Context, accessToken string) ([]CalendarRef, error)
	// ListEventsPage fetches a single page. An empty next page token means the last page.
	ListEventsPage(ctx context.Context, accessToken string, calendarId string, window Window, pageToken string) ([]RawEvent, string, error)
	// ListEvents pages through the whole window, failing with ErrQuota past the event cap.
	ListEvents(ctx context.Context, accessToken string, calendarId string, window Window) ([]RawEvent, error)
}

type ClientConfig struct {
	HTTPClient *http.Client
	// Endpoint overrides the Calendar API base URL.
	Endpoint  string
	PageSize  int64
	MaxEvents int
	// NewBackOff builds the retry schedule for one call. Defaults to 1s doubling.
	NewBackOff func() backoff.BackOff
}

type ClientImpl struct {
	httpClient *http.Client
	endpoint   string
	pageSize   int64
	maxEvents  int
	newBackOff func() backoff.BackOff
}

func NewClient(cfg ClientConfig) *ClientImpl {
	c := &ClientImpl{
		httpClient: cfg.HTTPClient,
		endpoint:   cfg.Endpoint,
		pageSize:   cfg.PageSize,
		maxEvents:  cfg.MaxEvents,
		newBackOff: cfg.NewBackOff,
	}
	if c.httpClient == nil {
		c.httpClient = NewHTTPClient(false)
	}
	if c.pageSize <= 0 {
		c.pageSize = DefaultPageSize
	}
	if c.maxEvents <= 0 {
		c.maxEvents = DefaultMaxEvents
	}
	if c.newBackOff == nil {
		c.newBackOff = exponentialBackOff
	}
	return c
}

func exponentialBackOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Minute,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

func (c *ClientImpl) ListCalendars(ctx context.Context, accessToken string) ([]CalendarRef, error) {
	service, err := c.prepareService(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var calendars []CalendarRef
	pageToken := ""
	for {
		call := service.CalendarList.List().Context(ctx).ShowHidden(false)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		var list *gcal.CalendarList
		err := c.retry(ctx, "calendarList.list", func() error {
			var err error
			list, err = call.Do()
			return err
		})
		if err != nil {
			err := fmt.Errorf("unable to retrieve calendars from Google Calendar: %w", err)
			log.Error(err)
			return nil, err
		}
		for _, item := range list.Items {
			summary := item.Summary
			if item.SummaryOverride != "" {
				summary = item.SummaryOverride
			}
			if summary == "" {
				summary = "Unnamed Calendar"
			}
			calendars = append(calendars, CalendarRef{
				ID:              item.Id,
				Summary:         summary,
				BackgroundColor: item.BackgroundColor,
				Primary:         item.Primary,
			})
		}
		pageToken = list.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return calendars, nil
}

func (c *ClientImpl) ListEventsPage(ctx context.Context, accessToken string, calendarId string, window Window, pageToken string) ([]RawEvent, string, error) {
	service, err := c.prepareService(ctx, accessToken)
	if err != nil {
		return nil, "", err
	}
	return c.eventsPage(ctx, service, calendarId, window, pageToken)
}

func (c *ClientImpl) ListEvents(ctx context.Context, accessToken string, calendarId string, window Window) ([]RawEvent, error) {
	service, err := c.prepareService(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var events []RawEvent
	pageToken := ""
	pages := 0
	for {
		page, next, err := c.eventsPage(ctx, service, calendarId, window, pageToken)
		if err != nil {
			return nil, err
		}
		pages++
		events = append(events, page...)
		if len(events) > c.maxEvents {
			err := fmt.Errorf("%w: calendar %s has more than %d events in the requested window", ErrQuota, calendarId, c.maxEvents)
			log.Warn(err)
			return nil, err
		}
		if next == "" {
			break
		}
		pageToken = next
	}
	log.Debugf("fetched %d events from calendar %s in %d page(s)", len(events), calendarId, pages)
	return events, nil
}

func (c *ClientImpl) eventsPage(ctx context.Context, service *gcal.Service, calendarId string, window Window, pageToken string) ([]RawEvent, string, error) {
	call := service.Events.List(calendarId).
		Context(ctx).
		TimeMin(window.Start.UTC().Format(time.RFC3339)).
		TimeMax(window.End.UTC().Format(time.RFC3339)).
		TimeZone("UTC").
		SingleEvents(true).
		OrderBy("startTime").
		ShowDeleted(false).
		MaxResults(c.pageSize)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	var result *gcal.Events
	err := c.retry(ctx, "events.list "+calendarId, func() error {
		var err error
		result, err = call.Do()
		return err
	})
	if err != nil {
		err := fmt.Errorf("unable to retrieve events from calendar %s: %w", calendarId, err)
		log.Error(err)
		return nil, "", err
	}

	events := make([]RawEvent, 0, len(result.Items))
	for _, item := range result.Items {
		events = append(events, toRawEvent(calendarId, item))
	}
	return events, result.NextPageToken, nil
}

func toRawEvent(calendarId string, item *gcal.Event) RawEvent {
	raw := RawEvent{
		ID:               item.Id,
		CalendarID:       calendarId,
		Summary:          item.Summary,
		Description:      item.Description,
		Status:           item.Status,
		Created:          item.Created,
		ColorID:          item.ColorId,
		RecurringEventID: item.RecurringEventId,
	}
	if item.Start != nil {
		raw.Start = EventTime{Date: item.Start.Date, DateTime: item.Start.DateTime, TimeZone: item.Start.TimeZone}
	}
	if item.End != nil {
		raw.End = EventTime{Date: item.End.Date, DateTime: item.End.DateTime, TimeZone: item.End.TimeZone}
	}
	return raw
}

// prepareService builds a Calendar service sending accessToken as the bearer token.
func (c *ClientImpl) prepareService(ctx context.Context, accessToken string) (*gcal.Service, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", ErrAuth)
	}
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   c.httpClient.Transport,
		},
		Timeout: c.httpClient.Timeout,
	}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		err := fmt.Errorf("unable to create Calendar client: %w", err)
		log.Error(err)
		return nil, err
	}
	return service, nil
}

// retry runs fn, retrying transient failures up to maxRetries times.
func (c *ClientImpl) retry(ctx context.Context, operation string, fn func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), maxRetries), ctx)
	return backoff.RetryNotify(func() error {
		err := classify(fn())
		if err == nil || errors.Is(err, ErrTransient) {
			return err
		}
		return backoff.Permanent(err)
	}, b, func(err error, wait time.Duration) {
		log.Warnf("%s failed, retrying in %s: %v", operation, wait, err)
	})
}

// classify maps a Calendar API failure onto ErrAuth, ErrQuota or ErrTransient. Anything else is
// returned unchanged and not retried.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			return fmt.Errorf("%w: %w", ErrAuth, err)
		case apiErr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ErrQuota, err)
		case apiErr.Code == http.StatusForbidden && isRateLimited(apiErr):
			return fmt.Errorf("%w: %w", ErrQuota, err)
		case apiErr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %w", ErrTransient, err)
		default:
			return err
		}
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}

func isRateLimited(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded", "dailyLimitExceeded":
			return true
		}
	}
	return false
}
