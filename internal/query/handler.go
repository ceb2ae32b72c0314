package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/readmodel"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrOrderNotFound   = errors.New("order not found")
)

const (
	userColumns      = "id, username, email, password_hash, first_name, last_name, role, phone, address, city, state, postal_code, country, is_active, created_at, updated_at"
	orderColumns     = "id, user_id, order_number, status, total_amount, shipping_address, billing_address, payment_status, payment_method, created_at, updated_at"
	orderItemColumns = "id, order_id, product_id, product_title, sku, quantity, unit_price, total_price, created_at"
)

// Handler serves every read path. Each call re-fetches from the backend.
type Handler struct {
	db     store.Backend
	mapper *readmodel.Mapper
	log    *zap.Logger
}

func NewHandler(db store.Backend, mapper *readmodel.Mapper, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{db: db, mapper: mapper, log: log.Named("query")}
}

func (h *Handler) run(ctx context.Context, stmt store.Statement, err error) ([]store.Record, error) {
	if err != nil {
		return nil, err
	}
	res, err := h.db.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// Products

// ListProducts returns one page of the catalog plus the total match count
func (h *Handler) ListProducts(ctx context.Context, f Filters) ([]*readmodel.ProductReadModel, int, error) {
	stmt, err := ListProductsStatement(h.db.Dialect(), f)
	rows, err := h.run(ctx, stmt, err)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}

	total := len(rows)
	if f.Limit > 0 {
		countStmt, err := CountProductsStatement(h.db.Dialect(), f)
		countRows, err := h.run(ctx, countStmt, err)
		if err != nil {
			return nil, 0, fmt.Errorf("count products: %w", err)
		}
		total = h.mapper.Count(countRows, "total")
	}
	return h.mapper.Products(rows), total, nil
}

// SearchProducts ranks products by the relevance ladder. A blank term
// matches nothing.
func (h *Handler) SearchProducts(ctx context.Context, term string, f Filters) ([]*readmodel.ProductReadModel, error) {
	if strings.TrimSpace(term) == "" {
		return []*readmodel.ProductReadModel{}, nil
	}
	stmt, err := SearchProductsStatement(h.db.Dialect(), term, f)
	rows, err := h.run(ctx, stmt, err)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return h.mapper.Products(rows), nil
}

func (h *Handler) Suggestions(ctx context.Context, term string, limit int) ([]*readmodel.SuggestionReadModel, error) {
	if len(strings.TrimSpace(term)) < 2 {
		return []*readmodel.SuggestionReadModel{}, nil
	}
	stmt, err := SuggestionsStatement(h.db.Dialect(), term, limit)
	rows, err := h.run(ctx, stmt, err)
	if err != nil {
		return nil, fmt.Errorf("suggestions: %w", err)
	}
	return h.mapper.Suggestions(rows), nil
}

func (h *Handler) FeaturedProducts(ctx context.Context, limit int) ([]*readmodel.ProductReadModel, error) {
	stmt, err := FeaturedProductsStatement(h.db.Dialect(), limit)
	rows, err := h.run(ctx, stmt, err)
	if err != nil {
		return nil, fmt.Errorf("featured products: %w", err)
	}
	return h.mapper.Products(rows), nil
}

// GetProduct returns an active product
func (h *Handler) GetProduct(ctx context.Context, id int64) (*readmodel.ProductReadModel, error) {
	return h.getProduct(ctx, id, false)
}

// GetProductAdmin returns a product whether or not it is active
func (h *Handler) GetProductAdmin(ctx context.Context, id int64) (*readmodel.ProductReadModel, error) {
	return h.getProduct(ctx, id, true)
}

func (h *Handler) getProduct(ctx context.Context, id int64, includeInactive bool) (*readmodel.ProductReadModel, error) {
	stmt, err := ProductByIDStatement(h.db.Dialect(), id, includeInactive)
	rows, err := h.run(ctx, stmt, err)
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, ErrProductNotFound
	}
	return h.mapper.Product(rows[0]), nil
}

// RelatedProducts lists active products sharing the product's category
func (h *Handler) RelatedProducts(ctx context.Context, id int64, limit int) ([]*readmodel.ProductReadModel, error) {
	product, err := h.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if product.Category == "" {
		return []*readmodel.ProductReadModel{}, nil
	}

	stmt, err := RelatedProductsStatement(h.db.Dialect(), id, product.Category, limit)
	rows, err := h.run(ctx, stmt, err)
	if err != nil {
		return nil, fmt.Errorf("related products: %w", err)
	}
	return h.mapper.Products(rows), nil
}

func (h *Handler) Categories(ctx context.Context) ([]*readmodel.CategoryReadModel, error) {
	stmt, err := CategoriesStatement(h.db.Dialect())
	rows, err := h.run(ctx, stmt, err)
	if err != nil {
		return nil, fmt.Errorf("categories: %w", err)
	}
	return h.mapper.Categories(rows), nil
}

func (h *Handler) AdminProducts(ctx context.Context, f AdminFilters) ([]*readmodel.ProductReadModel, error) {
	stmt, err := AdminProductsStatement(h.db.Dialect(), f)
	rows, err := h.run(ctx, stmt, err)
	if err != nil {
		return nil, fmt.Errorf("admin products: %w", err)
	}
	return h.mapper.Products(rows), nil
}

// Users

func (h *Handler) GetUser(ctx context.Context, id int64) (*readmodel.UserReadModel, error) {
	stmt, err := NewSelect(userColumns).From("users").Where("id = ?", id).Build(h.db.Dialect())
	rows, err := h.run(ctx, stmt, err)
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, ErrUserNotFound
	}
	return h.mapper.User(rows[0]), nil
}

// FindUserForLogin looks a user up by username or email, active or not
func (h *Handler) FindUserForLogin(ctx context.Context, identifier string) (*readmodel.UserReadModel, error) {
	identifier = strings.TrimSpace(identifier)
	stmt, err := NewSelect(userColumns).
		From("users").
		Where("username = ? OR LOWER(email) = LOWER(?)", identifier, identifier).
		Limit(1).
		Build(h.db.Dialect())

	rows, err := h.run(ctx, stmt, err)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrUserNotFound
	}
	return h.mapper.User(rows[0]), nil
}

// ListUsers lists accounts for the back office
func (h *Handler) ListUsers(ctx context.Context, includeInactive bool, limit, offset int) ([]*readmodel.UserReadModel, error) {
	d := h.db.Dialect()
	b := NewSelect(userColumns).From("users")
	if !includeInactive {
		b.Where(activeOnly(d))
	}
	stmt, err := b.OrderBy("id ASC").Limit(limit).Offset(offset).Build(d)
	rows, err := h.run(ctx, stmt, err)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return h.mapper.Users(rows), nil
}

// Orders

// GetOrderByNumber returns an order with its items. A userID of 0 skips the
// ownership check.
func (h *Handler) GetOrderByNumber(ctx context.Context, userID int64, orderNumber string) (*readmodel.OrderReadModel, error) {
	b := NewSelect(orderColumns).From("orders").Where("order_number = ?", orderNumber)
	if userID != 0 {
		b.Where("user_id = ?", userID)
	}
	stmt, err := b.Build(h.db.Dialect())
	rows, err := h.run(ctx, stmt, err)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderNumber, err)
	}
	if len(rows) == 0 {
		return nil, ErrOrderNotFound
	}

	order := h.mapper.Order(rows[0])
	if err := h.attachItems(ctx, []*readmodel.OrderReadModel{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (h *Handler) ListOrdersByUser(ctx context.Context, userID int64) ([]*readmodel.OrderReadModel, error) {
	stmt, err := NewSelect(orderColumns).
		From("orders").
		Where("user_id = ?", userID).
		OrderBy("created_at DESC").
		OrderBy("id DESC").
		Build(h.db.Dialect())
	rows, err := h.run(ctx, stmt, err)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := h.mapper.Orders(rows)
	if err := h.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListAllOrders lists orders for the back office, optionally by status
func (h *Handler) ListAllOrders(ctx context.Context, status string, limit, offset int) ([]*readmodel.OrderReadModel, error) {
	b := NewSelect(orderColumns).From("orders")
	if status != "" {
		b.Where("status = ?", status)
	}
	stmt, err := b.OrderBy("id DESC").Limit(limit).Offset(offset).Build(h.db.Dialect())
	rows, err := h.run(ctx, stmt, err)
	if err != nil {
		return nil, fmt.Errorf("list all orders: %w", err)
	}

	orders := h.mapper.Orders(rows)
	if err := h.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads items for all orders in one statement
func (h *Handler) attachItems(ctx context.Context, orders []*readmodel.OrderReadModel) error {
	if len(orders) == 0 {
		return nil
	}

	markers := make([]string, len(orders))
	ids := make([]any, len(orders))
	byID := make(map[int64]*readmodel.OrderReadModel, len(orders))
	for i, o := range orders {
		markers[i] = "?"
		ids[i] = o.ID
		byID[o.ID] = o
	}

	stmt, err := NewSelect(orderItemColumns).
		From("order_items").
		Where("order_id IN ("+strings.Join(markers, ", ")+")", ids...).
		OrderBy("id ASC").
		Build(h.db.Dialect())
	rows, err := h.run(ctx, stmt, err)
	if err != nil {
		return fmt.Errorf("order items: %w", err)
	}

	for _, rec := range rows {
		item := h.mapper.OrderItem(rec)
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, *item)
		}
	}
	return nil
}
