package command

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/query"
	"github.com/example/ec-storefront/internal/readmodel"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,50}$`)

// executor is satisfied by both a backend and an open transaction
type executor interface {
	store.Executor
	Dialect() store.Dialect
}

// Handler owns every write path. Uniqueness is left to the database: there
// are no pre-checks, and duplicate violations are translated afterwards.
type Handler struct {
	db     store.Backend
	mapper *readmodel.Mapper
	hasher *auth.Hasher
	log    *zap.Logger
	events Publisher

	now         func() time.Time
	orderNumber func(time.Time) string
}

func NewHandler(db store.Backend, mapper *readmodel.Mapper, hasher *auth.Hasher, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if hasher == nil {
		hasher = auth.NewHasher(auth.DefaultCost)
	}
	return &Handler{
		db:          db,
		mapper:      mapper,
		hasher:      hasher,
		log:         log.Named("command"),
		now:         time.Now,
		orderNumber: newOrderNumber,
	}
}

// newOrderNumber renders ORD-<yyyymmdd>-<8 hex>
func newOrderNumber(t time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("ORD-%s-%s", t.UTC().Format("20060102"), id[:8])
}

func exec(ctx context.Context, ex executor, kind store.Kind, text string, args ...any) (*store.Result, error) {
	stmt, err := query.Rebind(ex.Dialect(), kind, text, args...)
	if err != nil {
		return nil, err
	}
	return ex.Query(ctx, stmt)
}

func insert(ctx context.Context, ex executor, text string, args ...any) (int64, error) {
	stmt, err := query.Rebind(ex.Dialect(), store.KindInsert, text, args...)
	if err != nil {
		return 0, err
	}
	return ex.Insert(ctx, stmt)
}

func jsonArg(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// ============================================
// Products
// ============================================

func (f *ProductFields) normalize() error {
	f.Title = strings.TrimSpace(f.Title)
	f.SKU = strings.TrimSpace(f.SKU)
	f.Category = strings.TrimSpace(f.Category)

	if f.Title == "" {
		return ErrInvalidTitle
	}
	if f.SKU == "" {
		return ErrInvalidSKU
	}
	if f.Price.IsNegative() {
		return ErrInvalidPrice
	}
	if f.SalePrice != nil && (f.SalePrice.IsNegative() || !f.SalePrice.LessThan(f.Price)) {
		return ErrInvalidSalePrice
	}
	if f.Stock < 0 {
		return ErrInvalidStock
	}
	if f.Rating < 0 || f.Rating > 5 {
		return ErrInvalidRating
	}
	if f.Tags == nil {
		f.Tags = []string{}
	}
	if f.Images == nil {
		f.Images = []string{}
	}
	if f.Attributes == nil {
		f.Attributes = map[string]any{}
	}
	return nil
}

// args returns bind values in column order:
// title, description, price, sale_price, sku, stock, category, tags, rating, images, attributes
func (f *ProductFields) args(d store.Dialect) ([]any, error) {
	tags, err := jsonArg(f.Tags)
	if err != nil {
		return nil, err
	}
	images, err := jsonArg(f.Images)
	if err != nil {
		return nil, err
	}
	attributes, err := jsonArg(f.Attributes)
	if err != nil {
		return nil, fmt.Errorf("attributes: %w", err)
	}

	var sale any
	if f.SalePrice != nil {
		sale = query.MoneyArg(d, *f.SalePrice)
	}
	return []any{
		f.Title, f.Description, query.MoneyArg(d, f.Price), sale, f.SKU, f.Stock,
		nullString(f.Category), tags, f.Rating, images, attributes,
	}, nil
}

// CreateProduct inserts a product and returns its id
func (h *Handler) CreateProduct(ctx context.Context, cmd CreateProduct) (int64, error) {
	if err := cmd.normalize(); err != nil {
		return 0, err
	}
	d := h.db.Dialect()
	args, err := cmd.args(d)
	if err != nil {
		return 0, err
	}

	j := d.JSONParam("?")
	id, err := insert(ctx, h.db,
		`INSERT INTO products (title, description, price, sale_price, sku, stock, category, tags, rating, images, attributes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, `+j+`, ?, `+j+`, `+j+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("create product: %w", translate(err))
	}

	h.log.Info("product created", zap.Int64("id", id), zap.String("sku", cmd.SKU))
	return id, nil
}

// UpdateProduct replaces every editable field of a product
func (h *Handler) UpdateProduct(ctx context.Context, cmd UpdateProduct) error {
	if err := cmd.normalize(); err != nil {
		return err
	}
	d := h.db.Dialect()
	args, err := cmd.args(d)
	if err != nil {
		return err
	}

	j := d.JSONParam("?")
	res, err := exec(ctx, h.db, store.KindUpdate,
		`UPDATE products SET title = ?, description = ?, price = ?, sale_price = ?, sku = ?, stock = ?,
		 category = ?, tags = `+j+`, rating = ?, images = `+j+`, attributes = `+j+`
		 WHERE id = ?`, append(args, cmd.ProductID)...)
	if err != nil {
		return fmt.Errorf("update product %d: %w", cmd.ProductID, translate(err))
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}

	h.log.Info("product updated", zap.Int64("id", cmd.ProductID))
	return nil
}

// DeleteProduct hides a product from the storefront; the row is kept
func (h *Handler) DeleteProduct(ctx context.Context, id int64) error {
	return h.setProductActive(ctx, id, false)
}

// RestoreProduct makes a soft-deleted product visible again
func (h *Handler) RestoreProduct(ctx context.Context, id int64) error {
	return h.setProductActive(ctx, id, true)
}

func (h *Handler) setProductActive(ctx context.Context, id int64, active bool) error {
	res, err := exec(ctx, h.db, store.KindUpdate,
		"UPDATE products SET is_active = "+h.db.Dialect().Bool(active)+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("set product %d active=%t: %w", id, active, err)
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	h.log.Info("product visibility changed", zap.Int64("id", id), zap.Bool("active", active))
	return nil
}

// ============================================
// Accounts
// ============================================

// RegisterUser creates a customer account and returns its id
func (h *Handler) RegisterUser(ctx context.Context, cmd RegisterUser) (int64, error) {
	username := strings.TrimSpace(cmd.Username)
	if !usernamePattern.MatchString(username) {
		return 0, ErrInvalidUsername
	}
	email, err := normalizeEmail(cmd.Email)
	if err != nil {
		return 0, err
	}
	hash, err := h.hasher.Hash(cmd.Password)
	if err != nil {
		return 0, err
	}

	id, err := insert(ctx, h.db,
		`INSERT INTO users (username, email, password_hash, first_name, last_name, role)
		 VALUES (?, ?, ?, ?, ?, 'customer')`,
		username, email, hash, nullString(cmd.FirstName), nullString(cmd.LastName))
	if err != nil {
		return 0, fmt.Errorf("register user: %w", translate(err))
	}

	h.log.Info("user registered", zap.Int64("id", id), zap.String("username", username))
	return id, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

// UpdateProfile overwrites the contact details of an active account
func (h *Handler) UpdateProfile(ctx context.Context, cmd UpdateProfile) error {
	email, err := normalizeEmail(cmd.Email)
	if err != nil {
		return err
	}

	d := h.db.Dialect()
	res, err := exec(ctx, h.db, store.KindUpdate,
		`UPDATE users SET email = ?, first_name = ?, last_name = ?, phone = ?, address = ?, city = ?,
		 state = ?, postal_code = ?, country = ?
		 WHERE id = ? AND is_active = `+d.Bool(true),
		email, nullString(cmd.FirstName), nullString(cmd.LastName), nullString(cmd.Phone),
		nullString(cmd.Address), nullString(cmd.City), nullString(cmd.State),
		nullString(cmd.PostalCode), nullString(cmd.Country), cmd.UserID)
	if err != nil {
		return fmt.Errorf("update profile %d: %w", cmd.UserID, translate(err))
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeactivateUser soft-deletes a customer account
func (h *Handler) DeactivateUser(ctx context.Context, id int64) error {
	d := h.db.Dialect()
	return store.WithTx(ctx, h.db, func(tx store.Tx) error {
		res, err := exec(ctx, tx, store.KindSelect, "SELECT role FROM users WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("deactivate user %d: %w", id, err)
		}
		rec, ok := res.First()
		if !ok {
			return ErrUserNotFound
		}
		if rec["role"] == "admin" {
			return ErrCannotDeactivateAdmin
		}

		if _, err := exec(ctx, tx, store.KindUpdate,
			"UPDATE users SET is_active = "+d.Bool(false)+" WHERE id = ?", id); err != nil {
			return fmt.Errorf("deactivate user %d: %w", id, err)
		}
		h.log.Info("user deactivated", zap.Int64("id", id))
		return nil
	})
}

// ============================================
// Orders
// ============================================

type orderLine struct {
	product   *readmodel.ProductReadModel
	quantity  int
	unitPrice decimal.Decimal
	total     decimal.Decimal
}

// mergeItems folds repeated products into one line, keeping first-seen order
func mergeItems(items []CheckoutItem) ([]CheckoutItem, error) {
	merged := make([]CheckoutItem, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if i, ok := index[it.ProductID]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(merged)
		merged = append(merged, it)
	}
	return merged, nil
}

// Checkout prices the cart from the catalog, reserves stock and records the
// order with its items in one transaction. Payment is simulated.
func (h *Handler) Checkout(ctx context.Context, cmd Checkout) (*CheckoutResult, error) {
	if len(cmd.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	items, err := mergeItems(cmd.Items)
	if err != nil {
		return nil, err
	}
	if cmd.ShippingAddress == nil {
		cmd.ShippingAddress = map[string]any{}
	}
	if len(cmd.BillingAddress) == 0 {
		cmd.BillingAddress = cmd.ShippingAddress
	}

	var result *CheckoutResult
	err = store.WithTx(ctx, h.db, func(tx store.Tx) error {
		lines := make([]orderLine, 0, len(items))
		total := decimal.Zero
		for _, it := range items {
			line, err := h.reserve(ctx, tx, it)
			if err != nil {
				return err
			}
			total = total.Add(line.total)
			lines = append(lines, line)
		}

		r, err := h.recordOrder(ctx, tx, cmd, lines, total)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("order placed",
		zap.Int64("user_id", cmd.UserID),
		zap.String("order_number", result.OrderNumber),
		zap.String("total", result.TotalAmount.StringFixed(2)),
	)
	h.publishOrderPlaced(ctx, cmd.UserID, result)
	return result, nil
}

// reserve looks the product up inside the transaction and decrements its
// stock only if enough remains
func (h *Handler) reserve(ctx context.Context, tx store.Tx, it CheckoutItem) (orderLine, error) {
	d := tx.Dialect()
	stmt, err := query.ProductByIDStatement(d, it.ProductID, false)
	if err != nil {
		return orderLine{}, err
	}
	res, err := tx.Query(ctx, stmt)
	if err != nil {
		return orderLine{}, fmt.Errorf("load product %d: %w", it.ProductID, err)
	}
	rec, ok := res.First()
	if !ok {
		return orderLine{}, fmt.Errorf("%w: %d", ErrProductNotFound, it.ProductID)
	}
	p := h.mapper.Product(rec)

	upd, err := exec(ctx, tx, store.KindUpdate,
		"UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?",
		it.Quantity, it.ProductID, it.Quantity)
	if err != nil {
		return orderLine{}, fmt.Errorf("reserve stock for %d: %w", it.ProductID, err)
	}
	if upd.RowsAffected == 0 {
		return orderLine{}, fmt.Errorf("%w: %s", ErrInsufficientStock, p.SKU)
	}

	unit := p.Price
	if p.SalePrice != nil && p.SalePrice.LessThan(p.Price) {
		unit = *p.SalePrice
	}
	return orderLine{
		product:   p,
		quantity:  it.Quantity,
		unitPrice: unit,
		total:     unit.Mul(decimal.NewFromInt(int64(it.Quantity))),
	}, nil
}

func (h *Handler) recordOrder(ctx context.Context, tx store.Tx, cmd Checkout, lines []orderLine, total decimal.Decimal) (*CheckoutResult, error) {
	d := tx.Dialect()
	shipping, err := jsonArg(cmd.ShippingAddress)
	if err != nil {
		return nil, fmt.Errorf("shipping address: %w", err)
	}
	billing, err := jsonArg(cmd.BillingAddress)
	if err != nil {
		return nil, fmt.Errorf("billing address: %w", err)
	}

	number := h.orderNumber(h.now())
	j := d.JSONParam("?")
	orderID, err := insert(ctx, tx,
		`INSERT INTO orders (user_id, order_number, status, total_amount, shipping_address, billing_address, payment_status, payment_method)
		 VALUES (?, ?, 'pending', ?, `+j+`, `+j+`, 'paid', ?)`,
		cmd.UserID, number, query.MoneyArg(d, total), shipping, billing, nullString(cmd.PaymentMethod))
	if err != nil {
		return nil, fmt.Errorf("record order: %w", err)
	}

	for _, line := range lines {
		if _, err := insert(ctx, tx,
			`INSERT INTO order_items (order_id, product_id, product_title, sku, quantity, unit_price, total_price)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			orderID, line.product.ID, line.product.Title, line.product.SKU, line.quantity,
			query.MoneyArg(d, line.unitPrice), query.MoneyArg(d, line.total)); err != nil {
			return nil, fmt.Errorf("record order item %s: %w", line.product.SKU, err)
		}
	}

	return &CheckoutResult{OrderID: orderID, OrderNumber: number, TotalAmount: total}, nil
}

// Order statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

var validTransitions = map[string][]string{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether an order may move from one status to another
func CanTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UpdateOrderStatus moves an order along its lifecycle. Cancelling returns
// the reserved stock and marks the simulated payment refunded.
func (h *Handler) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatus) error {
	if _, known := validTransitions[cmd.Status]; !known {
		return ErrInvalidStatus
	}

	return store.WithTx(ctx, h.db, func(tx store.Tx) error {
		res, err := exec(ctx, tx, store.KindSelect, "SELECT status FROM orders WHERE id = ?", cmd.OrderID)
		if err != nil {
			return fmt.Errorf("load order %d: %w", cmd.OrderID, err)
		}
		rec, ok := res.First()
		if !ok {
			return ErrOrderNotFound
		}
		current := fmt.Sprint(rec["status"])
		if !CanTransition(current, cmd.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current, cmd.Status)
		}

		upd, err := exec(ctx, tx, store.KindUpdate,
			"UPDATE orders SET status = ? WHERE id = ? AND status = ?", cmd.Status, cmd.OrderID, current)
		if err != nil {
			return fmt.Errorf("update order %d: %w", cmd.OrderID, err)
		}
		if upd.RowsAffected == 0 {
			return fmt.Errorf("%w: %s changed concurrently", ErrInvalidStatusTransition, current)
		}

		if cmd.Status == StatusCancelled {
			if err := h.releaseStock(ctx, tx, cmd.OrderID); err != nil {
				return err
			}
		}

		h.log.Info("order status changed",
			zap.Int64("order_id", cmd.OrderID),
			zap.String("from", current),
			zap.String("to", cmd.Status),
		)
		return nil
	})
}

func (h *Handler) releaseStock(ctx context.Context, tx store.Tx, orderID int64) error {
	items, err := exec(ctx, tx, store.KindSelect,
		"SELECT product_id, quantity FROM order_items WHERE order_id = ? AND product_id IS NOT NULL", orderID)
	if err != nil {
		return fmt.Errorf("load order items %d: %w", orderID, err)
	}
	for _, rec := range items.Rows {
		item := h.mapper.OrderItem(rec)
		if _, err := exec(ctx, tx, store.KindUpdate,
			"UPDATE products SET stock = stock + ? WHERE id = ?", item.Quantity, item.ProductID); err != nil {
			return fmt.Errorf("release stock for %d: %w", item.ProductID, err)
		}
	}
	if _, err := exec(ctx, tx, store.KindUpdate,
		"UPDATE orders SET payment_status = 'refunded' WHERE id = ?", orderID); err != nil {
		return fmt.Errorf("refund order %d: %w", orderID, err)
	}
	return nil
}
