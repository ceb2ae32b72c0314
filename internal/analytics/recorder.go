package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/query"
	"github.com/example/ec-storefront/internal/readmodel"
)

// Recorder appends events to analytics_events and aggregates them
type Recorder struct {
	db     store.Backend
	mapper *readmodel.Mapper
	log    *zap.Logger
}

func NewRecorder(db store.Backend, mapper *readmodel.Mapper, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{db: db, mapper: mapper, log: log.Named("analytics")}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Record stores one event and returns its id
func (r *Recorder) Record(ctx context.Context, e Event) (int64, error) {
	if err := e.Normalize(); err != nil {
		return 0, err
	}
	filters, err := json.Marshal(e.FilterData)
	if err != nil {
		return 0, fmt.Errorf("filter data: %w", err)
	}

	d := r.db.Dialect()
	var productID any
	if e.ProductID != nil {
		productID = *e.ProductID
	}
	stmt, err := query.Rebind(d, store.KindInsert,
		`INSERT INTO analytics_events (event_type, product_id, category, search_query, filter_data, session_id, user_agent, ip_address)
		 VALUES (?, ?, ?, ?, `+d.JSONParam("?")+`, ?, ?, ?)`,
		e.EventType, productID, nullable(e.Category), nullable(e.SearchQuery), string(filters),
		nullable(e.SessionID), nullable(e.UserAgent), nullable(e.IPAddress))
	if err != nil {
		return 0, err
	}

	id, err := r.db.Insert(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("record %s event: %w", e.EventType, err)
	}
	return id, nil
}

// Recent lists the newest events first
func (r *Recorder) Recent(ctx context.Context, limit int) ([]*readmodel.AnalyticsEventReadModel, error) {
	if limit <= 0 {
		limit = 50
	}
	stmt, err := query.NewSelect("id", "event_type", "product_id", "category", "search_query", "filter_data",
		"session_id", "user_agent", "ip_address", "created_at").
		From("analytics_events").
		OrderBy("id DESC").
		Limit(limit).
		Build(r.db.Dialect())
	if err != nil {
		return nil, err
	}
	res, err := r.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}

	out := make([]*readmodel.AnalyticsEventReadModel, 0, len(res.Rows))
	for _, rec := range res.Rows {
		out = append(out, r.mapper.AnalyticsEvent(rec))
	}
	return out, nil
}

type TermCount struct {
	Term string `json:"term"`
	Hits int    `json:"hits"`
}

type ProductViews struct {
	ProductID int64  `json:"product_id"`
	Title     string `json:"title"`
	Views     int    `json:"views"`
}

// Summary aggregates events recorded since a point in time
type Summary struct {
	Since        time.Time      `json:"since"`
	CountsByType map[string]int `json:"counts_by_type"`
	TopSearches  []TermCount    `json:"top_searches"`
	MostViewed   []ProductViews `json:"most_viewed"`
}

// sinceArg binds a timestamp comparable with created_at. SQLite stores
// CURRENT_TIMESTAMP as "YYYY-MM-DD HH:MM:SS" text in UTC.
func sinceArg(d store.Dialect, t time.Time) any {
	if d == store.DialectSQLite {
		return t.UTC().Format("2006-01-02 15:04:05")
	}
	return t
}

// Summary returns counts by type plus the top searched terms and most viewed products
func (r *Recorder) Summary(ctx context.Context, since time.Time, top int) (*Summary, error) {
	if top <= 0 {
		top = 10
	}
	d := r.db.Dialect()
	since = since.UTC().Truncate(time.Second)
	s := &Summary{Since: since, CountsByType: map[string]int{}, TopSearches: []TermCount{}, MostViewed: []ProductViews{}}

	byType, err := r.run(ctx, query.NewSelect("event_type", "COUNT(*) AS hits").
		From("analytics_events").
		Where("created_at >= ?", sinceArg(d, since)).
		GroupBy("event_type"))
	if err != nil {
		return nil, fmt.Errorf("counts by type: %w", err)
	}
	for _, rec := range byType {
		s.CountsByType[fmt.Sprint(rec["event_type"])] = r.mapper.Count([]store.Record{rec}, "hits")
	}

	searches, err := r.run(ctx, query.NewSelect("LOWER(search_query) AS term", "COUNT(*) AS hits").
		From("analytics_events").
		Where("event_type = ?", EventSearch).
		Where("search_query IS NOT NULL AND search_query <> ''").
		Where("created_at >= ?", sinceArg(d, since)).
		GroupBy("LOWER(search_query)").
		OrderBy("hits DESC").
		OrderBy("term ASC").
		Limit(top))
	if err != nil {
		return nil, fmt.Errorf("top searches: %w", err)
	}
	for _, rec := range searches {
		s.TopSearches = append(s.TopSearches, TermCount{
			Term: fmt.Sprint(rec["term"]),
			Hits: r.mapper.Count([]store.Record{rec}, "hits"),
		})
	}

	views, err := r.run(ctx, query.NewSelect("e.product_id AS product_id", "p.title AS title", "COUNT(*) AS views").
		From("analytics_events e LEFT JOIN products p ON p.id = e.product_id").
		Where("e.event_type = ?", EventProductView).
		Where("e.product_id IS NOT NULL").
		Where("e.created_at >= ?", sinceArg(d, since)).
		GroupBy("e.product_id", "p.title").
		OrderBy("views DESC").
		OrderBy("e.product_id ASC").
		Limit(top))
	if err != nil {
		return nil, fmt.Errorf("most viewed: %w", err)
	}
	for _, rec := range views {
		ev := r.mapper.AnalyticsEvent(rec)
		pv := ProductViews{Views: r.mapper.Count([]store.Record{rec}, "views")}
		if ev.ProductID != nil {
			pv.ProductID = *ev.ProductID
		}
		if title, ok := rec["title"].(string); ok {
			pv.Title = title
		}
		s.MostViewed = append(s.MostViewed, pv)
	}
	return s, nil
}

func (r *Recorder) run(ctx context.Context, b *query.SelectBuilder) ([]store.Record, error) {
	stmt, err := b.Build(r.db.Dialect())
	if err != nil {
		return nil, err
	}
	res, err := r.db.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}
