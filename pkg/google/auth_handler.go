package google

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/klokku/calexport/internal/rest"
	log "github.com/sirupsen/logrus"
)

type authCodeRequest struct {
	Code string `json:"code"`
}

type AuthHandler struct {
	session *Session
	// host is the public base URL used as redirect hint when the caller gives none.
	host string
}

func NewAuthHandler(session *Session, host string) *AuthHandler {
	return &AuthHandler{session: session, host: host}
}

func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	rest.WriteJSON(w, http.StatusOK, h.session.Status())
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	hint := r.URL.Query().Get("redirect")
	if hint == "" {
		hint = h.host
	}
	start := h.session.BeginAuthorization(hint)
	log.Debugf("authorization started, flow %s", start.Flow)
	rest.WriteJSON(w, http.StatusOK, start)
}

// Callback completes the redirect flow and sends the browser back to the UI.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	finalUrl := strings.TrimRight(h.host, "/") + "/"
	if _, err := h.session.CompleteAuthorization(r.Context(), r.URL.RawQuery); err != nil {
		log.Errorf("authorization callback failed: %v", err)
		http.Redirect(w, r, finalUrl+"?auth=failed", http.StatusFound)
		return
	}
	http.Redirect(w, r, finalUrl+"?auth=success", http.StatusFound)
}

// SubmitCode completes the manual flow with the code or redirect URL the user pasted.
func (h *AuthHandler) SubmitCode(w http.ResponseWriter, r *http.Request) {
	var req authCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		rest.WriteError(w, http.StatusBadRequest, "Authorization code is required")
		return
	}
	if _, err := h.session.CompleteAuthorization(r.Context(), req.Code); err != nil {
		WriteProviderError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, h.session.Status())
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(); err != nil {
		log.Errorf("logout failed: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to clear Google session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WriteProviderError maps provider failures onto HTTP statuses.
func WriteProviderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAuth):
		rest.WriteError(w, http.StatusUnauthorized, "Google authorization required")
	case errors.Is(err, ErrQuota):
		rest.WriteError(w, http.StatusTooManyRequests, "Google quota exceeded")
	case errors.Is(err, ErrTransient):
		rest.WriteError(w, http.StatusServiceUnavailable, "Google is temporarily unavailable")
	default:
		rest.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
