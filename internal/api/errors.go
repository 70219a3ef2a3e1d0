package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"

	"github.com/pysugar/calendar-nexus/internal/auth/credential"
	"github.com/pysugar/calendar-nexus/internal/auth/handshake"
	"github.com/pysugar/calendar-nexus/internal/auth/identity"
	"github.com/pysugar/calendar-nexus/internal/availability"
	"github.com/pysugar/calendar-nexus/internal/logging"
)

// errorResponse is the JSON error body. NeedsAuth signals the caller must
// (re-)run the authorization handshake; AuthorizeURL restarts it.
type errorResponse struct {
	Error        string `json:"error"`
	NeedsAuth    bool   `json:"needsAuth,omitempty"`
	AuthorizeURL string `json:"authorizeUrl,omitempty"`
	RequestID    string `json:"requestId,omitempty"`
}

// writeError maps domain errors onto HTTP statuses. channelID, when known,
// is folded into the re-authorization URL so chat callers can restart the
// handshake without support.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error, channelID string) {
	resp := errorResponse{Error: err.Error(), RequestID: logging.GetRequestID(r.Context())}
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, credential.ErrNoCredential),
		errors.Is(err, credential.ErrReauthRequired),
		errors.Is(err, identity.ErrChannelNotLinked):
		status = http.StatusUnauthorized
		resp.NeedsAuth = true
		// Channel callers must get a URL that restarts their own flow; a bare
		// /authorize rejects them for lacking a bearer token.
		if channelID == "" {
			channelID = r.Header.Get(ChannelHeader)
		}
		resp.AuthorizeURL = h.authorizeURL(channelID)
	case errors.Is(err, identity.ErrInvalidPrincipal),
		errors.Is(err, identity.ErrUnknownTenant):
		status = http.StatusUnauthorized
	case errors.Is(err, availability.ErrInvalidWindow):
		status = http.StatusBadRequest
	case errors.Is(err, handshake.ErrInvalidState),
		errors.Is(err, handshake.ErrSessionExpired):
		status = http.StatusBadRequest
	case errors.Is(err, handshake.ErrProviderExchangeFailed):
		status = http.StatusBadGateway
	case errors.Is(err, credential.ErrTransientRefresh):
		status = http.StatusBadGateway
	}

	if status >= 500 {
		log.Printf("[API] %s %s failed: %v", r.Method, r.URL.Path, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// authorizeURL builds a fresh handshake entry point.
func (h *Handlers) authorizeURL(channelID string) string {
	u := h.baseURL + "/authorize"
	if channelID != "" {
		u += "?channel=" + url.QueryEscape(channelID)
	}
	return u
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
