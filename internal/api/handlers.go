package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/calendar-nexus/internal/auth/credential"
	"github.com/pysugar/calendar-nexus/internal/auth/handshake"
	"github.com/pysugar/calendar-nexus/internal/auth/identity"
	"github.com/pysugar/calendar-nexus/internal/availability"
	"github.com/pysugar/calendar-nexus/internal/calendar"
)

// transientRetryDelay is the backoff before the single retry allowed for
// transient refresh failures.
const transientRetryDelay = 500 * time.Millisecond

// Handlers bundles the request handlers and their collaborators.
type Handlers struct {
	resolver *identity.Resolver
	issuer   *identity.TokenIssuer
	creds    *credential.Manager
	flow     *handshake.Handshake
	cal      calendar.Client
	baseURL  string
}

// NewHandlers creates the handler set.
func NewHandlers(resolver *identity.Resolver, issuer *identity.TokenIssuer, creds *credential.Manager, flow *handshake.Handshake, cal calendar.Client, baseURL string) *Handlers {
	return &Handlers{
		resolver: resolver,
		issuer:   issuer,
		creds:    creds,
		flow:     flow,
		cal:      cal,
		baseURL:  baseURL,
	}
}

// acquireToken fetches a valid access token, retrying once on transient
// refresh failure.
func (h *Handlers) acquireToken(ctx context.Context, tenantID string) (string, error) {
	token, err := h.creds.Acquire(ctx, tenantID)
	if !errors.Is(err, credential.ErrTransientRefresh) {
		return token, err
	}

	select {
	case <-time.After(transientRetryDelay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return h.creds.Acquire(ctx, tenantID)
}

// Authorize starts a handshake and redirects to the provider consent page.
// Channel principals pass ?channel=...; direct principals present their
// bearer token.
func (h *Handlers) Authorize(w http.ResponseWriter, r *http.Request) {
	if channelID := r.URL.Query().Get("channel"); channelID != "" {
		authURL, err := h.flow.Initiate(r.Context(), channelID)
		if err != nil {
			h.writeError(w, r, err, channelID)
			return
		}
		http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
		return
	}

	principal := principalFromRequest(r)
	if principal.BearerToken == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "channel parameter or bearer token required"})
		return
	}
	resolved, err := h.resolver.Resolve(r.Context(), principal)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}

	authURL, err := h.flow.InitiateDirect(r.Context(), resolved.TenantID)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// OAuthCallback completes the handshake from the provider redirect and
// renders a human-facing result page.
func (h *Handlers) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		renderCallbackError(w, http.StatusBadRequest, "Missing code or state parameter.")
		return
	}

	result, err := h.flow.HandleCallback(r.Context(), code, state)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, handshake.ErrInvalidState), errors.Is(err, handshake.ErrSessionExpired):
			status = http.StatusBadRequest
		case errors.Is(err, handshake.ErrProviderExchangeFailed):
			status = http.StatusBadGateway
		}
		renderCallbackError(w, status, err.Error())
		return
	}

	// First resolution of a direct tenant is the one chance to hand out its
	// bearer token.
	bearer := ""
	if result.Created {
		if token, err := h.issuer.Issue(result.TenantID); err == nil {
			bearer = token
		}
	}
	renderCallbackSuccess(w, result, bearer)
}

// Availability computes open slots for the resolved tenant.
// Query: date=YYYY-MM-DD, start=HH:MM, end=HH:MM, duration=minutes.
func (h *Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	principal := resolvedPrincipal(r.Context())

	q := r.URL.Query()
	durationMin, err := strconv.Atoi(q.Get("duration"))
	if err != nil || durationMin <= 0 {
		h.writeError(w, r, fmt.Errorf("%w: duration must be a positive number of minutes", availability.ErrInvalidWindow), "")
		return
	}

	start, err := parseClockOnDate(q.Get("date"), q.Get("start"), time.UTC)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", availability.ErrInvalidWindow, err), "")
		return
	}
	end, err := parseClockOnDate(q.Get("date"), q.Get("end"), time.UTC)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", availability.ErrInvalidWindow, err), "")
		return
	}
	window := availability.Interval{Start: start, End: end}
	if !window.End.After(window.Start) {
		h.writeError(w, r, fmt.Errorf("%w: end must follow start", availability.ErrInvalidWindow), "")
		return
	}

	accessToken, err := h.acquireToken(r.Context(), principal.TenantID)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}

	busy, err := h.cal.BusyIntervals(r.Context(), accessToken, calendar.DefaultCalendarID, window)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}

	slots, err := availability.ComputeFreeSlots(window, busy, time.Duration(durationMin)*time.Minute)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"window":   window,
		"duration": durationMin,
		"slots":    slots,
	})
}

// eventRequest is the create/update body. Times go through TimeInput so all
// historical formats normalize at this boundary.
type eventRequest struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Start       TimeInput `json:"start"`
	End         TimeInput `json:"end"`
	Attendees   []string  `json:"attendees"`
}

func (req *eventRequest) toEvent(id string) calendar.Event {
	ev := calendar.Event{
		ID:          id,
		Summary:     req.Summary,
		Description: req.Description,
		Start:       req.Start.Time,
		End:         req.End.Time,
	}
	for _, a := range req.Attendees {
		// Empty attendee strings mean "no attendee", not an error.
		if a != "" {
			ev.Attendees = append(ev.Attendees, a)
		}
	}
	return ev
}

// ListEvents returns the tenant's events inside a window.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	principal := resolvedPrincipal(r.Context())

	q := r.URL.Query()
	start, err := parseTimeString(q.Get("start"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", availability.ErrInvalidWindow, err), "")
		return
	}
	end, err := parseTimeString(q.Get("end"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", availability.ErrInvalidWindow, err), "")
		return
	}

	accessToken, err := h.acquireToken(r.Context(), principal.TenantID)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}

	events, err := h.cal.ListEvents(r.Context(), accessToken, calendar.DefaultCalendarID, availability.Interval{Start: start, End: end})
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// CreateEvent inserts an event into the tenant's calendar.
func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	principal := resolvedPrincipal(r.Context())

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid event body: " + err.Error()})
		return
	}

	accessToken, err := h.acquireToken(r.Context(), principal.TenantID)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}

	created, err := h.cal.InsertEvent(r.Context(), accessToken, calendar.DefaultCalendarID, req.toEvent(""))
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// UpdateEvent replaces an event by id.
func (h *Handlers) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	principal := resolvedPrincipal(r.Context())
	eventID := chi.URLParam(r, "id")

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid event body: " + err.Error()})
		return
	}

	accessToken, err := h.acquireToken(r.Context(), principal.TenantID)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}

	updated, err := h.cal.UpdateEvent(r.Context(), accessToken, calendar.DefaultCalendarID, req.toEvent(eventID))
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteEvent removes an event by id.
func (h *Handlers) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	principal := resolvedPrincipal(r.Context())
	eventID := chi.URLParam(r, "id")

	accessToken, err := h.acquireToken(r.Context(), principal.TenantID)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}

	if err := h.cal.DeleteEvent(r.Context(), accessToken, calendar.DefaultCalendarID, eventID); err != nil {
		h.writeError(w, r, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Disconnect revokes the delegated grant and removes the tenant.
func (h *Handlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	principal := resolvedPrincipal(r.Context())

	if err := h.flow.Disconnect(r.Context(), principal.TenantID); err != nil {
		h.writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"disconnected": true})
}
