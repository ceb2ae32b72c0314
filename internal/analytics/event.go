package analytics

import (
	"errors"
	"strings"
)

// Event types accepted by the store
const (
	EventProductView = "product_view"
	EventCartAdd     = "cart_add"
	EventSearch      = "search"
	EventFilterUse   = "filter_use"
	EventPageView    = "page_view"
)

var (
	ErrInvalidEventType = errors.New("unknown analytics event type")
	ErrMissingProduct   = errors.New("event requires a product id")
)

var eventTypes = map[string]bool{
	EventProductView: true,
	EventCartAdd:     true,
	EventSearch:      true,
	EventFilterUse:   true,
	EventPageView:    true,
}

const (
	maxQueryLength     = 255
	maxUserAgentLength = 500
)

// Event is one storefront interaction
type Event struct {
	EventType   string         `json:"event_type"`
	ProductID   *int64         `json:"product_id,omitempty"`
	Category    string         `json:"category,omitempty"`
	SearchQuery string         `json:"search_query,omitempty"`
	FilterData  map[string]any `json:"filter_data,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
}

// Normalize validates the event and trims free-text fields to column limits
func (e *Event) Normalize() error {
	e.EventType = strings.TrimSpace(e.EventType)
	if !eventTypes[e.EventType] {
		return ErrInvalidEventType
	}
	if (e.EventType == EventProductView || e.EventType == EventCartAdd) && e.ProductID == nil {
		return ErrMissingProduct
	}
	e.SearchQuery = truncate(strings.TrimSpace(e.SearchQuery), maxQueryLength)
	e.UserAgent = truncate(e.UserAgent, maxUserAgentLength)
	if e.FilterData == nil {
		e.FilterData = map[string]any{}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
