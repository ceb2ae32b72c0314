package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/analytics"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/command"
	"github.com/example/ec-storefront/internal/logger"
	"github.com/example/ec-storefront/internal/query"
)

const maxPageSize = 100

// Backend is what the health check needs from the data layer
type Backend interface {
	Name() string
	Ping(ctx context.Context) error
}

type Handlers struct {
	queries  *query.Handler
	commands *command.Handler
	tracker  *analytics.Tracker
	recorder *analytics.Recorder
	jwt      *auth.JWTService
	hasher   *auth.Hasher
	backend  Backend
	log      *zap.Logger
}

type Deps struct {
	Queries  *query.Handler
	Commands *command.Handler
	Tracker  *analytics.Tracker
	Recorder *analytics.Recorder
	JWT      *auth.JWTService
	Hasher   *auth.Hasher
	Backend  Backend
	Log      *zap.Logger
}

func NewHandlers(d Deps) *Handlers {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Hasher == nil {
		d.Hasher = auth.NewHasher(auth.DefaultCost)
	}
	return &Handlers{
		queries:  d.Queries,
		commands: d.Commands,
		tracker:  d.Tracker,
		recorder: d.Recorder,
		jwt:      d.JWT,
		hasher:   d.Hasher,
		backend:  d.Backend,
		log:      d.Log.Named("api"),
	}
}

// Health reports the active backend; it answers 503 when the backend does not respond
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "backend": h.backend.Name()}
	if fb, ok := h.backend.(interface{ Fallback() bool }); ok {
		body["fallback"] = fb.Fallback()
	}
	if err := h.backend.Ping(r.Context()); err != nil {
		h.logger(r).Warn("health check failed", zap.Error(err))
		body["status"] = "unavailable"
		respondJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	respondJSON(w, http.StatusOK, body)
}

// Catalog

// ListProducts serves the filtered, sorted catalog
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		respondListError(w, "products", http.StatusBadRequest, err.Error())
		return
	}

	products, total, err := h.queries.ListProducts(r.Context(), f)
	if err != nil {
		h.failList(w, r, "products", err)
		return
	}
	respondList(w, http.StatusOK, "products", products, map[string]any{"total": total})
}

func (h *Handlers) SearchProducts(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		respondListError(w, "products", http.StatusBadRequest, err.Error())
		return
	}

	term := r.URL.Query().Get("q")
	products, err := h.queries.SearchProducts(r.Context(), term, f)
	if err != nil {
		h.failList(w, r, "products", err)
		return
	}
	respondList(w, http.StatusOK, "products", products, map[string]any{"query": strings.TrimSpace(term)})
}

func (h *Handlers) Suggestions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	suggestions, err := h.queries.Suggestions(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.failList(w, r, "suggestions", err)
		return
	}
	respondList(w, http.StatusOK, "suggestions", suggestions, nil)
}

func (h *Handlers) FeaturedProducts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	products, err := h.queries.FeaturedProducts(r.Context(), clampPage(limit))
	if err != nil {
		h.failList(w, r, "products", err)
		return
	}
	respondList(w, http.StatusOK, "products", products, nil)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	product, err := h.queries.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "product": product})
}

func (h *Handlers) RelatedProducts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	products, err := h.queries.RelatedProducts(r.Context(), id, clampPage(limit))
	if err != nil {
		h.failList(w, r, "products", err)
		return
	}
	respondList(w, http.StatusOK, "products", products, nil)
}

// Helper functions

func (h *Handlers) logger(r *http.Request) *zap.Logger {
	return logger.FromContext(r.Context(), h.log)
}

// fail writes the error envelope; unexpected errors are logged with the request
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger(r).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	respondJSONError(w, msg, status)
}

// failList is fail for list endpoints: the envelope still carries an empty list
func (h *Handlers) failList(w http.ResponseWriter, r *http.Request, key string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger(r).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	respondListError(w, key, status, msg)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]any{"success": false, "error": message})
}

func respondList(w http.ResponseWriter, status int, key string, items any, extra map[string]any) {
	body := map[string]any{"success": true, key: items}
	for k, v := range extra {
		body[k] = v
	}
	respondJSON(w, status, body)
}

func respondListError(w http.ResponseWriter, key string, status int, message string) {
	respondJSON(w, status, map[string]any{"success": false, key: []any{}, "error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		respondJSONError(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func clampPage(limit int) int {
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

func parseMoney(q map[string][]string, key string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(first(q[key]))
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return nil, errors.New("invalid " + key)
	}
	return &d, nil
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// parseFilters reads the catalog query string. Unknown rating tiers and sort
// tokens pass through and are ignored by the query layer.
func parseFilters(r *http.Request) (query.Filters, error) {
	q := r.URL.Query()
	minPrice, err := parseMoney(q, "minPrice")
	if err != nil {
		return query.Filters{}, err
	}
	maxPrice, err := parseMoney(q, "maxPrice")
	if err != nil {
		return query.Filters{}, err
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	return query.Filters{
		Category: strings.TrimSpace(q.Get("category")),
		MinPrice: minPrice,
		MaxPrice: maxPrice,
		Rating:   q.Get("rating"),
		InStock:  parseBool(q.Get("inStock")),
		OnSale:   parseBool(q.Get("onSale")),
		SortBy:   q.Get("sortBy"),
		Limit:    clampPage(limit),
		Offset:   offset,
	}, nil
}
