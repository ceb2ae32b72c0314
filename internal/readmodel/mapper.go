package readmodel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/infrastructure/store"
)

// Kind names the entity a record is normalized into
type Kind string

const (
	KindProduct        Kind = "product"
	KindSuggestion     Kind = "suggestion"
	KindCategory       Kind = "category"
	KindUser           Kind = "user"
	KindOrder          Kind = "order"
	KindOrderItem      Kind = "order_item"
	KindAnalyticsEvent Kind = "analytics_event"
)

// Mapper turns backend rows into read models. JSON fields may arrive as text
// (SQLite) or decoded (PostgreSQL); booleans as 0/1 or bool.
type Mapper struct {
	log *zap.Logger
}

func NewMapper(log *zap.Logger) *Mapper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mapper{log: log.Named("mapper")}
}

// Normalize maps a record by entity kind
func (m *Mapper) Normalize(kind Kind, rec store.Record) (any, error) {
	switch kind {
	case KindProduct:
		return m.Product(rec), nil
	case KindSuggestion:
		return m.Suggestion(rec), nil
	case KindCategory:
		return m.Category(rec), nil
	case KindUser:
		return m.User(rec), nil
	case KindOrder:
		return m.Order(rec), nil
	case KindOrderItem:
		return m.OrderItem(rec), nil
	case KindAnalyticsEvent:
		return m.AnalyticsEvent(rec), nil
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

func (m *Mapper) Product(rec store.Record) *ProductReadModel {
	return &ProductReadModel{
		ID:          asInt64(rec["id"]),
		Title:       asString(rec["title"]),
		Description: asString(rec["description"]),
		Price:       asDecimal(rec["price"]),
		SalePrice:   asNullDecimal(rec["sale_price"]),
		SKU:         asString(rec["sku"]),
		Stock:       int(asInt64(rec["stock"])),
		Category:    asString(rec["category"]),
		Tags:        m.stringSlice(KindProduct, "tags", rec),
		Rating:      asDecimal(rec["rating"]),
		Images:      m.stringSlice(KindProduct, "images", rec),
		Attributes:  m.object(KindProduct, "attributes", rec),
		IsActive:    asBool(rec["is_active"]),
		Relevance:   int(asInt64(rec["relevance"])),
		CreatedAt:   asTime(rec["created_at"]),
		UpdatedAt:   asTime(rec["updated_at"]),
	}
}

func (m *Mapper) Products(rows []store.Record) []*ProductReadModel {
	out := make([]*ProductReadModel, 0, len(rows))
	for _, rec := range rows {
		out = append(out, m.Product(rec))
	}
	return out
}

func (m *Mapper) Suggestion(rec store.Record) *SuggestionReadModel {
	return &SuggestionReadModel{
		ID:        asInt64(rec["id"]),
		Title:     asString(rec["title"]),
		Category:  asString(rec["category"]),
		Price:     asDecimal(rec["price"]),
		SalePrice: asNullDecimal(rec["sale_price"]),
		Images:    m.stringSlice(KindSuggestion, "images", rec),
	}
}

func (m *Mapper) Suggestions(rows []store.Record) []*SuggestionReadModel {
	out := make([]*SuggestionReadModel, 0, len(rows))
	for _, rec := range rows {
		out = append(out, m.Suggestion(rec))
	}
	return out
}

func (m *Mapper) Category(rec store.Record) *CategoryReadModel {
	return &CategoryReadModel{
		Name:         asString(rec["category"]),
		ProductCount: int(asInt64(rec["product_count"])),
	}
}

func (m *Mapper) Categories(rows []store.Record) []*CategoryReadModel {
	out := make([]*CategoryReadModel, 0, len(rows))
	for _, rec := range rows {
		out = append(out, m.Category(rec))
	}
	return out
}

func (m *Mapper) User(rec store.Record) *UserReadModel {
	return &UserReadModel{
		ID:           asInt64(rec["id"]),
		Username:     asString(rec["username"]),
		Email:        asString(rec["email"]),
		PasswordHash: asString(rec["password_hash"]),
		FirstName:    asString(rec["first_name"]),
		LastName:     asString(rec["last_name"]),
		Role:         asString(rec["role"]),
		Phone:        asString(rec["phone"]),
		Address:      asString(rec["address"]),
		City:         asString(rec["city"]),
		State:        asString(rec["state"]),
		PostalCode:   asString(rec["postal_code"]),
		Country:      asString(rec["country"]),
		IsActive:     asBool(rec["is_active"]),
		CreatedAt:    asTime(rec["created_at"]),
		UpdatedAt:    asTime(rec["updated_at"]),
	}
}

func (m *Mapper) Users(rows []store.Record) []*UserReadModel {
	out := make([]*UserReadModel, 0, len(rows))
	for _, rec := range rows {
		out = append(out, m.User(rec))
	}
	return out
}

// Order maps the order row only; items are attached by the caller
func (m *Mapper) Order(rec store.Record) *OrderReadModel {
	return &OrderReadModel{
		ID:              asInt64(rec["id"]),
		UserID:          asInt64(rec["user_id"]),
		OrderNumber:     asString(rec["order_number"]),
		Status:          asString(rec["status"]),
		TotalAmount:     asDecimal(rec["total_amount"]),
		ShippingAddress: m.object(KindOrder, "shipping_address", rec),
		BillingAddress:  m.object(KindOrder, "billing_address", rec),
		PaymentStatus:   asString(rec["payment_status"]),
		PaymentMethod:   asString(rec["payment_method"]),
		Items:           []OrderItemReadModel{},
		CreatedAt:       asTime(rec["created_at"]),
		UpdatedAt:       asTime(rec["updated_at"]),
	}
}

func (m *Mapper) Orders(rows []store.Record) []*OrderReadModel {
	out := make([]*OrderReadModel, 0, len(rows))
	for _, rec := range rows {
		out = append(out, m.Order(rec))
	}
	return out
}

func (m *Mapper) OrderItem(rec store.Record) *OrderItemReadModel {
	return &OrderItemReadModel{
		ID:           asInt64(rec["id"]),
		OrderID:      asInt64(rec["order_id"]),
		ProductID:    asInt64(rec["product_id"]),
		ProductTitle: asString(rec["product_title"]),
		SKU:          asString(rec["sku"]),
		Quantity:     int(asInt64(rec["quantity"])),
		UnitPrice:    asDecimal(rec["unit_price"]),
		TotalPrice:   asDecimal(rec["total_price"]),
		CreatedAt:    asTime(rec["created_at"]),
	}
}

func (m *Mapper) AnalyticsEvent(rec store.Record) *AnalyticsEventReadModel {
	ev := &AnalyticsEventReadModel{
		ID:          asInt64(rec["id"]),
		EventType:   asString(rec["event_type"]),
		Category:    asString(rec["category"]),
		SearchQuery: asString(rec["search_query"]),
		FilterData:  m.object(KindAnalyticsEvent, "filter_data", rec),
		SessionID:   asString(rec["session_id"]),
		UserAgent:   asString(rec["user_agent"]),
		IPAddress:   asString(rec["ip_address"]),
		CreatedAt:   asTime(rec["created_at"]),
	}
	if rec["product_id"] != nil {
		id := asInt64(rec["product_id"])
		ev.ProductID = &id
	}
	return ev
}

// decodeJSON returns the structure behind a JSON field, or nil when the
// stored text does not parse
func (m *Mapper) decodeJSON(kind Kind, field string, rec store.Record) any {
	var raw []byte
	switch v := rec[field].(type) {
	case nil:
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return v
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		m.log.Warn("malformed JSON field, using empty value",
			zap.String("entity", string(kind)),
			zap.String("field", field),
			zap.Any("id", rec["id"]),
			zap.Error(err),
		)
		return nil
	}
	return decoded
}

func (m *Mapper) stringSlice(kind Kind, field string, rec store.Record) []string {
	out := []string{}
	switch v := m.decodeJSON(kind, field, rec).(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			} else if item != nil {
				out = append(out, fmt.Sprint(item))
			}
		}
	case []string:
		out = append(out, v...)
	case nil:
	default:
		m.log.Warn("JSON field is not an array, using empty value",
			zap.String("entity", string(kind)),
			zap.String("field", field),
			zap.Any("id", rec["id"]),
		)
	}
	return out
}

func (m *Mapper) object(kind Kind, field string, rec store.Record) map[string]any {
	switch v := m.decodeJSON(kind, field, rec).(type) {
	case map[string]any:
		return v
	case nil:
	default:
		m.log.Warn("JSON field is not an object, using empty value",
			zap.String("entity", string(kind)),
			zap.String("field", field),
			zap.Any("id", rec["id"]),
		)
	}
	return map[string]any{}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(strings.TrimSpace(string(t)), 10, 64)
		return n
	}
	return 0
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "t", "true", "yes":
			return true
		}
	case []byte:
		return asBool(string(t))
	}
	return false
}

func asDecimal(v any) decimal.Decimal {
	switch t := v.(type) {
	case decimal.Decimal:
		return t
	case int64:
		return decimal.NewFromInt(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case float64:
		return decimal.NewFromFloat(t)
	case string:
		if d, err := decimal.NewFromString(strings.TrimSpace(t)); err == nil {
			return d
		}
	case []byte:
		return asDecimal(string(t))
	}
	return decimal.Zero
}

func asNullDecimal(v any) *decimal.Decimal {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	d := asDecimal(v)
	return &d
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed
			}
		}
	case []byte:
		return asTime(string(t))
	case int64:
		return time.Unix(t, 0).UTC()
	}
	return time.Time{}
}

// Count reads an aggregate column from the first row, or 0 when there is none
func (m *Mapper) Count(rows []store.Record, column string) int {
	if len(rows) == 0 {
		return 0
	}
	return int(asInt64(rows[0][column]))
}
