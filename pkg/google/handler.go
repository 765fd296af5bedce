package google

import (
	"context"
	"net/http"
	"slices"

	"github.com/klokku/calexport/internal/rest"
)

// CalendarSelection reports which calendars the user has selected.
type CalendarSelection interface {
	SelectedCalendarIds(ctx context.Context) []string
}

type CalendarHandler struct {
	session   *Session
	client    Client
	selection CalendarSelection
}

func NewCalendarHandler(session *Session, client Client, selection CalendarSelection) *CalendarHandler {
	return &CalendarHandler{session: session, client: client, selection: selection}
}

func (h *CalendarHandler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	calendars, err := ListCalendars(r.Context(), h.session, h.client)
	if err != nil {
		WriteProviderError(w, err)
		return
	}

	selected := h.selection.SelectedCalendarIds(r.Context())
	for i := range calendars {
		calendars[i].Selected = slices.Contains(selected, calendars[i].ID)
	}
	if calendars == nil {
		calendars = []CalendarRef{}
	}
	rest.WriteJSON(w, http.StatusOK, calendars)
}

// ListCalendars fetches the calendar list with a freshly validated token.
func ListCalendars(ctx context.Context, tokens TokenProvider, client Client) ([]CalendarRef, error) {
	return WithValidToken(ctx, tokens, func(accessToken string) ([]CalendarRef, error) {
		return client.ListCalendars(ctx, accessToken)
	})
}
