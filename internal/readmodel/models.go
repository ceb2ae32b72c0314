package readmodel

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductReadModel is the canonical product shape, whichever backend served it
type ProductReadModel struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Price       decimal.Decimal  `json:"price"`
	SalePrice   *decimal.Decimal `json:"sale_price"`
	SKU         string           `json:"sku"`
	Stock       int              `json:"stock"`
	Category    string           `json:"category"`
	Tags        []string         `json:"tags"`
	Rating      decimal.Decimal  `json:"rating"`
	Images      []string         `json:"images"`
	Attributes  map[string]any   `json:"attributes"`
	IsActive    bool             `json:"is_active"`
	Relevance   int              `json:"relevance,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// SuggestionReadModel is a type-ahead hit
type SuggestionReadModel struct {
	ID        int64            `json:"id"`
	Title     string           `json:"title"`
	Category  string           `json:"category"`
	Price     decimal.Decimal  `json:"price"`
	SalePrice *decimal.Decimal `json:"sale_price"`
	Images    []string         `json:"images"`
}

// CategoryReadModel is a category with its active product count
type CategoryReadModel struct {
	Name         string `json:"name"`
	ProductCount int    `json:"product_count"`
}

// UserReadModel is the read model for users
type UserReadModel struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         string    `json:"role"`
	Phone        string    `json:"phone,omitempty"`
	Address      string    `json:"address,omitempty"`
	City         string    `json:"city,omitempty"`
	State        string    `json:"state,omitempty"`
	PostalCode   string    `json:"postal_code,omitempty"`
	Country      string    `json:"country,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OrderItemReadModel represents an item in an order, priced at purchase time
type OrderItemReadModel struct {
	ID           int64           `json:"id"`
	OrderID      int64           `json:"order_id"`
	ProductID    int64           `json:"product_id"`
	ProductTitle string          `json:"product_title"`
	SKU          string          `json:"sku"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	CreatedAt    time.Time       `json:"created_at"`
}

// OrderReadModel is the read model for orders
type OrderReadModel struct {
	ID              int64                `json:"id"`
	UserID          int64                `json:"user_id"`
	OrderNumber     string               `json:"order_number"`
	Status          string               `json:"status"`
	TotalAmount     decimal.Decimal      `json:"total_amount"`
	ShippingAddress map[string]any       `json:"shipping_address"`
	BillingAddress  map[string]any       `json:"billing_address"`
	PaymentStatus   string               `json:"payment_status"`
	PaymentMethod   string               `json:"payment_method,omitempty"`
	Items           []OrderItemReadModel `json:"items"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// AnalyticsEventReadModel is one stored analytics event
type AnalyticsEventReadModel struct {
	ID          int64          `json:"id"`
	EventType   string         `json:"event_type"`
	ProductID   *int64         `json:"product_id,omitempty"`
	Category    string         `json:"category,omitempty"`
	SearchQuery string         `json:"search_query,omitempty"`
	FilterData  map[string]any `json:"filter_data"`
	SessionID   string         `json:"session_id,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
