package command

import (
	"github.com/shopspring/decimal"
)

// Product commands

// ProductFields is the full editable state of a product
type ProductFields struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Price       decimal.Decimal  `json:"price"`
	SalePrice   *decimal.Decimal `json:"sale_price"`
	SKU         string           `json:"sku"`
	Stock       int              `json:"stock"`
	Category    string           `json:"category"`
	Tags        []string         `json:"tags"`
	Rating      float64          `json:"rating"`
	Images      []string         `json:"images"`
	Attributes  map[string]any   `json:"attributes"`
}

type CreateProduct struct {
	ProductFields
}

type UpdateProduct struct {
	ProductID int64 `json:"-"`
	ProductFields
}

// Account commands

type RegisterUser struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type UpdateProfile struct {
	UserID     int64  `json:"-"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Order commands

type CheckoutItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type Checkout struct {
	UserID          int64          `json:"-"`
	Items           []CheckoutItem `json:"items"`
	ShippingAddress map[string]any `json:"shipping_address"`
	BillingAddress  map[string]any `json:"billing_address"`
	PaymentMethod   string         `json:"payment_method"`
}

// CheckoutResult identifies the order a checkout created
type CheckoutResult struct {
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type UpdateOrderStatus struct {
	OrderID int64  `json:"-"`
	Status  string `json:"status"`
}
