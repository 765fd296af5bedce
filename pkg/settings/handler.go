package settings

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/klokku/calexport/internal/rest"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service}
}

// GetSettings godoc
// @Summary Get export settings
// @Tags Settings
// @Produce json
// @Success 200 {object} Settings
// @Router /api/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	rest.WriteJSON(w, http.StatusOK, h.service.Get(r.Context()))
}

// UpdateSettings godoc
// @Summary Replace export settings
// @Tags Settings
// @Accept json
// @Produce json
// @Param settings body Settings true "Settings"
// @Success 200 {object} Settings
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/settings [put]
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	log.Debug("Updating settings")
	// omitted fields keep their default
	settings := Defaults()
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	updated, err := h.service.Update(r.Context(), settings)
	if err != nil {
		if errors.Is(err, ErrInvalidSettings) {
			rest.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		rest.WriteError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}
	rest.WriteJSON(w, http.StatusOK, updated)
}
