package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/ec-storefront/internal/analytics"
)

const defaultSummaryDays = 7

// TrackEvent accepts a storefront event. Delivery may be asynchronous.
func (h *Handlers) TrackEvent(w http.ResponseWriter, r *http.Request) {
	var e analytics.Event
	if !decodeJSON(w, r, &e) {
		return
	}
	e.UserAgent = r.UserAgent()
	e.IPAddress = clientIP(r)

	sessionID, err := h.tracker.Track(r.Context(), e)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"success": true, "session_id": sessionID})
}

// AnalyticsSummary aggregates the last ?days= days of events
func (h *Handlers) AnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days <= 0 {
		days = defaultSummaryDays
	}
	top, _ := strconv.Atoi(r.URL.Query().Get("top"))

	since := time.Now().UTC().AddDate(0, 0, -days)
	summary, err := h.recorder.Summary(r.Context(), since, top)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "summary": summary})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
