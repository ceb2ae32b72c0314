package command

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/infrastructure/store/mocks"
	"github.com/example/ec-storefront/internal/readmodel"
)

func newTestHandler(t *testing.T) (*Handler, store.Backend) {
	t.Helper()

	b, err := store.OpenSQLite(context.Background(), store.SQLiteConfig{
		Path:           filepath.Join(t.TempDir(), "shop.db"),
		AcquireTimeout: time.Second,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	require.NoError(t, store.Bootstrap(context.Background(), b, store.AdminSeed{
		Username: "admin", Email: "admin@example.com", PasswordHash: "hash",
	}, zap.NewNop()))

	h := NewHandler(b, readmodel.NewMapper(nil), auth.NewHasher(bcrypt.MinCost), zap.NewNop())
	h.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return h, b
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func moneyPtr(s string) *decimal.Decimal {
	d := money(s)
	return &d
}

func validProduct(sku string) CreateProduct {
	return CreateProduct{ProductFields{
		Title:    "Product " + sku,
		Price:    money("100.00"),
		SKU:      sku,
		Stock:    10,
		Category: "Electronics",
		Tags:     []string{"usb"},
		Rating:   4.5,
	}}
}

func fetch(t *testing.T, b store.Backend, text string, args ...any) store.Record {
	t.Helper()
	res, err := b.Query(context.Background(), store.Select(text, args...))
	require.NoError(t, err)
	rec, ok := res.First()
	require.True(t, ok, "no row for %s", text)
	return rec
}

func count(t *testing.T, b store.Backend, table string) int64 {
	t.Helper()
	return fetch(t, b, "SELECT COUNT(*) AS n FROM "+table)["n"].(int64)
}

func registerCustomer(t *testing.T, h *Handler, name string) int64 {
	t.Helper()
	id, err := h.RegisterUser(context.Background(), RegisterUser{
		Username: name, Email: name + "@example.com", Password: "password123",
	})
	require.NoError(t, err)
	return id
}

// ============================================
// Product Tests
// ============================================

func TestHandler_CreateProduct_Success(t *testing.T) {
	h, b := newTestHandler(t)
	cmd := validProduct("USB-1")
	cmd.SalePrice = moneyPtr("79.99")

	id, err := h.CreateProduct(context.Background(), cmd)

	require.NoError(t, err)
	rec := fetch(t, b, "SELECT sku, price, sale_price, tags, images, attributes, is_active FROM products WHERE id = ?", id)
	assert.Equal(t, "USB-1", rec["sku"])
	assert.Equal(t, 79.99, rec["sale_price"])
	assert.Equal(t, `["usb"]`, rec["tags"])
	assert.Equal(t, `[]`, rec["images"])
	assert.Equal(t, `{}`, rec["attributes"])
	assert.Equal(t, int64(1), rec["is_active"])
}

func TestHandler_CreateProduct_DuplicateSKU(t *testing.T) {
	h, b := newTestHandler(t)
	ctx := context.Background()

	_, err := h.CreateProduct(ctx, validProduct("DUP-1"))
	require.NoError(t, err)

	_, err = h.CreateProduct(ctx, validProduct("DUP-1"))

	assert.ErrorIs(t, err, ErrSKUExists)
	assert.ErrorIs(t, err, store.ErrDuplicate)
	assert.Equal(t, int64(1), count(t, b, "products"))
}

func TestHandler_CreateProduct_Validation(t *testing.T) {
	h, b := newTestHandler(t)

	tests := []struct {
		name   string
		mutate func(*CreateProduct)
		want   error
	}{
		{"blank title", func(c *CreateProduct) { c.Title = "  " }, ErrInvalidTitle},
		{"blank sku", func(c *CreateProduct) { c.SKU = "" }, ErrInvalidSKU},
		{"negative price", func(c *CreateProduct) { c.Price = money("-1") }, ErrInvalidPrice},
		{"sale equals price", func(c *CreateProduct) { c.SalePrice = moneyPtr("100") }, ErrInvalidSalePrice},
		{"sale above price", func(c *CreateProduct) { c.SalePrice = moneyPtr("120") }, ErrInvalidSalePrice},
		{"negative stock", func(c *CreateProduct) { c.Stock = -1 }, ErrInvalidStock},
		{"rating above five", func(c *CreateProduct) { c.Rating = 5.5 }, ErrInvalidRating},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := validProduct("V-1")
			tt.mutate(&cmd)

			_, err := h.CreateProduct(context.Background(), cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, int64(0), count(t, b, "products"))
}

func TestHandler_UpdateProduct(t *testing.T) {
	h, b := newTestHandler(t)
	ctx := context.Background()
	id, err := h.CreateProduct(ctx, validProduct("UP-1"))
	require.NoError(t, err)
	other, err := h.CreateProduct(ctx, validProduct("UP-2"))
	require.NoError(t, err)

	fields := validProduct("UP-1").ProductFields
	fields.Title = "Renamed"
	fields.Stock = 3
	require.NoError(t, h.UpdateProduct(ctx, UpdateProduct{ProductID: id, ProductFields: fields}))

	rec := fetch(t, b, "SELECT title, stock FROM products WHERE id = ?", id)
	assert.Equal(t, "Renamed", rec["title"])
	assert.Equal(t, int64(3), rec["stock"])

	fields.SKU = "UP-1"
	err = h.UpdateProduct(ctx, UpdateProduct{ProductID: other, ProductFields: fields})
	assert.ErrorIs(t, err, ErrSKUExists)

	err = h.UpdateProduct(ctx, UpdateProduct{ProductID: 999, ProductFields: validProduct("UP-9").ProductFields})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestHandler_DeleteAndRestoreProduct(t *testing.T) {
	h, b := newTestHandler(t)
	ctx := context.Background()
	id, err := h.CreateProduct(ctx, validProduct("SD-1"))
	require.NoError(t, err)

	require.NoError(t, h.DeleteProduct(ctx, id))
	assert.Equal(t, int64(0), fetch(t, b, "SELECT is_active FROM products WHERE id = ?", id)["is_active"])
	assert.Equal(t, int64(1), count(t, b, "products"), "soft delete keeps the row")

	require.NoError(t, h.RestoreProduct(ctx, id))
	assert.Equal(t, int64(1), fetch(t, b, "SELECT is_active FROM products WHERE id = ?", id)["is_active"])

	assert.ErrorIs(t, h.DeleteProduct(ctx, 404), ErrProductNotFound)
}

func TestHandler_CreateProduct_PostgresStatement(t *testing.T) {
	backend := mocks.NewMockBackend("postgres", store.DialectPostgres)
	h := NewHandler(backend, readmodel.NewMapper(nil), auth.NewHasher(bcrypt.MinCost), nil)
	cmd := validProduct("PG-1")
	cmd.SalePrice = moneyPtr("80.50")

	id, err := h.CreateProduct(context.Background(), cmd)

	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	require.Len(t, backend.InsertCalls, 1)
	stmt := backend.InsertCalls[0]
	assert.Contains(t, stmt.Text, "VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10::jsonb, $11::jsonb)")
	assert.Equal(t, "100", stmt.Args[2])
	assert.Equal(t, "80.5", stmt.Args[3])
	assert.Equal(t, `["usb"]`, stmt.Args[7])
}

// ============================================
// Account Tests
// ============================================

func TestHandler_RegisterUser(t *testing.T) {
	h, b := newTestHandler(t)
	ctx := context.Background()

	id, err := h.RegisterUser(ctx, RegisterUser{
		Username: "alice", Email: " Alice@Example.com ", Password: "password123", FirstName: "Alice",
	})

	require.NoError(t, err)
	rec := fetch(t, b, "SELECT email, role, password_hash FROM users WHERE id = ?", id)
	assert.Equal(t, "alice@example.com", rec["email"])
	assert.Equal(t, "customer", rec["role"])
	assert.True(t, auth.NewHasher(bcrypt.MinCost).Check("password123", rec["password_hash"].(string)))
}

func TestHandler_RegisterUser_Conflicts(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()
	registerCustomer(t, h, "bob")

	_, err := h.RegisterUser(ctx, RegisterUser{Username: "bob", Email: "other@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = h.RegisterUser(ctx, RegisterUser{Username: "bobby", Email: "BOB@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestHandler_RegisterUser_Validation(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  RegisterUser
		want error
	}{
		{"short username", RegisterUser{Username: "al", Email: "a@example.com", Password: "password123"}, ErrInvalidUsername},
		{"spaces in username", RegisterUser{Username: "al ice", Email: "a@example.com", Password: "password123"}, ErrInvalidUsername},
		{"bad email", RegisterUser{Username: "alice", Email: "not-an-email", Password: "password123"}, ErrInvalidEmail},
		{"short password", RegisterUser{Username: "alice", Email: "a@example.com", Password: "short"}, auth.ErrPasswordTooShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.RegisterUser(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHandler_UpdateProfile(t *testing.T) {
	h, b := newTestHandler(t)
	ctx := context.Background()
	id := registerCustomer(t, h, "carol")

	err := h.UpdateProfile(ctx, UpdateProfile{UserID: id, Email: "carol@example.com", City: "Kyoto", Country: "JP"})
	require.NoError(t, err)
	rec := fetch(t, b, "SELECT city, phone FROM users WHERE id = ?", id)
	assert.Equal(t, "Kyoto", rec["city"])
	assert.Nil(t, rec["phone"])

	err = h.UpdateProfile(ctx, UpdateProfile{UserID: id, Email: "admin@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	err = h.UpdateProfile(ctx, UpdateProfile{UserID: 999, Email: "ghost@example.com"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestHandler_DeactivateUser(t *testing.T) {
	h, b := newTestHandler(t)
	ctx := context.Background()
	id := registerCustomer(t, h, "dave")

	require.NoError(t, h.DeactivateUser(ctx, id))
	assert.Equal(t, int64(0), fetch(t, b, "SELECT is_active FROM users WHERE id = ?", id)["is_active"])

	err := h.UpdateProfile(ctx, UpdateProfile{UserID: id, Email: "dave@example.com"})
	assert.ErrorIs(t, err, ErrUserNotFound, "inactive accounts cannot be edited")

	adminID := fetch(t, b, "SELECT id FROM users WHERE role = 'admin'")["id"].(int64)
	assert.ErrorIs(t, h.DeactivateUser(ctx, adminID), ErrCannotDeactivateAdmin)
	assert.ErrorIs(t, h.DeactivateUser(ctx, 999), ErrUserNotFound)
}

// ============================================
// Checkout Tests
// ============================================

func TestHandler_Checkout_Success(t *testing.T) {
	h, b := newTestHandler(t)
	ctx := context.Background()
	userID := registerCustomer(t, h, "erin")

	sale := validProduct("CO-1")
	sale.SalePrice = moneyPtr("80.00")
	saleID, err := h.CreateProduct(ctx, sale)
	require.NoError(t, err)
	plainID, err := h.CreateProduct(ctx, validProduct("CO-2"))
	require.NoError(t, err)

	result, err := h.Checkout(ctx, Checkout{
		UserID: userID,
		Items: []CheckoutItem{
			{ProductID: saleID, Quantity: 1},
			{ProductID: plainID, Quantity: 1},
			{ProductID: saleID, Quantity: 2},
		},
		ShippingAddress: map[string]any{"city": "Osaka"},
		PaymentMethod:   "card",
	})

	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^ORD-20240301-[0-9a-f]{8}$`), result.OrderNumber)
	assert.True(t, result.TotalAmount.Equal(money("340")), result.TotalAmount.String())

	order := fetch(t, b, "SELECT status, payment_status, billing_address, total_amount FROM orders WHERE id = ?", result.OrderID)
	assert.Equal(t, "pending", order["status"])
	assert.Equal(t, "paid", order["payment_status"])
	assert.Equal(t, `{"city":"Osaka"}`, order["billing_address"])
	assert.Equal(t, 340.0, order["total_amount"])

	assert.Equal(t, int64(2), count(t, b, "order_items"), "repeated products are merged")
	line := fetch(t, b, "SELECT quantity, unit_price, total_price FROM order_items WHERE product_id = ?", saleID)
	assert.Equal(t, int64(3), line["quantity"])
	assert.Equal(t, 80.0, line["unit_price"])
	assert.Equal(t, 240.0, line["total_price"])

	assert.Equal(t, int64(7), fetch(t, b, "SELECT stock FROM products WHERE id = ?", saleID)["stock"])
	assert.Equal(t, int64(9), fetch(t, b, "SELECT stock FROM products WHERE id = ?", plainID)["stock"])
}

func TestHandler_Checkout_InsufficientStockRollsBack(t *testing.T) {
	h, b := newTestHandler(t)
	ctx := context.Background()
	userID := registerCustomer(t, h, "frank")

	first, err := h.CreateProduct(ctx, validProduct("RB-1"))
	require.NoError(t, err)
	scarce := validProduct("RB-2")
	scarce.Stock = 1
	second, err := h.CreateProduct(ctx, scarce)
	require.NoError(t, err)

	_, err = h.Checkout(ctx, Checkout{UserID: userID, Items: []CheckoutItem{
		{ProductID: first, Quantity: 2},
		{ProductID: second, Quantity: 2},
	}})

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, int64(10), fetch(t, b, "SELECT stock FROM products WHERE id = ?", first)["stock"])
	assert.Equal(t, int64(0), count(t, b, "orders"))
	assert.Equal(t, int64(0), count(t, b, "order_items"))
}

func TestHandler_Checkout_Rejections(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()
	userID := registerCustomer(t, h, "gina")
	hidden, err := h.CreateProduct(ctx, validProduct("HID-1"))
	require.NoError(t, err)
	require.NoError(t, h.DeleteProduct(ctx, hidden))

	_, err = h.Checkout(ctx, Checkout{UserID: userID})
	assert.ErrorIs(t, err, ErrEmptyOrder)

	_, err = h.Checkout(ctx, Checkout{UserID: userID, Items: []CheckoutItem{{ProductID: hidden, Quantity: 0}}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = h.Checkout(ctx, Checkout{UserID: userID, Items: []CheckoutItem{{ProductID: hidden, Quantity: 1}}})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestHandler_Checkout_BeginFailureSurfaces(t *testing.T) {
	backend := mocks.NewMockBackend("sqlite", store.DialectSQLite)
	backend.BeginErr = &store.Error{Kind: store.ErrUnavailable, Backend: "sqlite"}
	h := NewHandler(backend, readmodel.NewMapper(nil), nil, nil)

	_, err := h.Checkout(context.Background(), Checkout{UserID: 1, Items: []CheckoutItem{{ProductID: 1, Quantity: 1}}})

	assert.ErrorIs(t, err, store.ErrUnavailable)
}

// ============================================
// Order Status Tests
// ============================================

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusShipped, false},
		{StatusProcessing, StatusShipped, true},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, false},
		{StatusDelivered, StatusPending, false},
		{StatusCancelled, StatusProcessing, false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestHandler_UpdateOrderStatus(t *testing.T) {
	h, b := newTestHandler(t)
	ctx := context.Background()
	userID := registerCustomer(t, h, "hana")
	productID, err := h.CreateProduct(ctx, validProduct("OS-1"))
	require.NoError(t, err)

	placed, err := h.Checkout(ctx, Checkout{UserID: userID, Items: []CheckoutItem{{ProductID: productID, Quantity: 4}}})
	require.NoError(t, err)
	require.Equal(t, int64(6), fetch(t, b, "SELECT stock FROM products WHERE id = ?", productID)["stock"])

	err = h.UpdateOrderStatus(ctx, UpdateOrderStatus{OrderID: placed.OrderID, Status: StatusShipped})
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	require.NoError(t, h.UpdateOrderStatus(ctx, UpdateOrderStatus{OrderID: placed.OrderID, Status: StatusProcessing}))
	require.NoError(t, h.UpdateOrderStatus(ctx, UpdateOrderStatus{OrderID: placed.OrderID, Status: StatusCancelled}))

	order := fetch(t, b, "SELECT status, payment_status FROM orders WHERE id = ?", placed.OrderID)
	assert.Equal(t, StatusCancelled, order["status"])
	assert.Equal(t, "refunded", order["payment_status"])
	assert.Equal(t, int64(10), fetch(t, b, "SELECT stock FROM products WHERE id = ?", productID)["stock"])

	assert.ErrorIs(t, h.UpdateOrderStatus(ctx, UpdateOrderStatus{OrderID: placed.OrderID, Status: "lost"}), ErrInvalidStatus)
	assert.ErrorIs(t, h.UpdateOrderStatus(ctx, UpdateOrderStatus{OrderID: 999, Status: StatusProcessing}), ErrOrderNotFound)
}
