package query

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/infrastructure/store/mocks"
	"github.com/example/ec-storefront/internal/readmodel"
)

type fixtureProduct struct {
	Title       string
	Description string
	SKU         string
	Category    any
	Price       float64
	SalePrice   any
	Stock       int
	Rating      float64
	Tags        string
}

func newTestQueryHandler(t *testing.T) (*Handler, store.Backend) {
	t.Helper()

	b, err := store.OpenSQLite(context.Background(), store.SQLiteConfig{
		Path:           filepath.Join(t.TempDir(), "catalog.db"),
		AcquireTimeout: time.Second,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	require.NoError(t, store.Bootstrap(context.Background(), b, store.AdminSeed{
		Username: "admin", Email: "Admin@Example.com", PasswordHash: "hash",
	}, zap.NewNop()))

	return NewHandler(b, readmodel.NewMapper(zap.NewNop()), zap.NewNop()), b
}

func seedProduct(t *testing.T, b store.Backend, p fixtureProduct) int64 {
	t.Helper()
	if p.Tags == "" {
		p.Tags = "[]"
	}
	if p.SKU == "" {
		p.SKU = p.Title
	}
	id, err := b.Insert(context.Background(), store.Insert(
		`INSERT INTO products (title, description, price, sale_price, sku, stock, category, tags, rating)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Title, p.Description, p.Price, p.SalePrice, p.SKU, p.Stock, p.Category, p.Tags, p.Rating,
	))
	require.NoError(t, err)
	return id
}

func softDelete(t *testing.T, b store.Backend, id int64) {
	t.Helper()
	res, err := b.Query(context.Background(), store.Update(`UPDATE products SET is_active = 0 WHERE id = ?`, id))
	require.NoError(t, err)
	require.Equal(t, int64(1), res.RowsAffected)
}

func titles(products []*readmodel.ProductReadModel) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.Title)
	}
	return out
}

func dec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

// ============================================
// Catalog listing
// ============================================

func TestHandler_ListProducts_CategoryAndPriceRange(t *testing.T) {
	handler, b := newTestQueryHandler(t)
	seedProduct(t, b, fixtureProduct{Title: "Novel", Category: "Books", Price: 50, Stock: 1})
	seedProduct(t, b, fixtureProduct{Title: "Headphones", Category: "Electronics", Price: 150, Stock: 1})
	seedProduct(t, b, fixtureProduct{Title: "Monitor", Category: "Electronics", Price: 300, Stock: 1})
	seedProduct(t, b, fixtureProduct{Title: "Armchair", Category: "Home", Price: 450, Stock: 1})
	seedProduct(t, b, fixtureProduct{Title: "Laptop", Category: "Electronics", Price: 600, Stock: 1})

	products, total, err := handler.ListProducts(context.Background(), Filters{
		Category: "Electronics",
		MinPrice: dec(100),
		MaxPrice: dec(500),
		SortBy:   SortPriceAsc,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Headphones", "Monitor"}, titles(products))
	assert.Equal(t, 2, total)
	assert.True(t, products[0].Price.Equal(decimal.NewFromInt(150)))
}

func TestHandler_ListProducts_EffectivePriceBounds(t *testing.T) {
	handler, b := newTestQueryHandler(t)
	seedProduct(t, b, fixtureProduct{Title: "Discounted", Price: 200, SalePrice: 80.0})
	seedProduct(t, b, fixtureProduct{Title: "Full price", Price: 120})
	seedProduct(t, b, fixtureProduct{Title: "Cheap", Price: 40})
	ctx := context.Background()

	atLeast, _, err := handler.ListProducts(ctx, Filters{MinPrice: dec(100)})
	require.NoError(t, err)
	for _, p := range atLeast {
		effective := p.Price
		if p.SalePrice != nil {
			effective = *p.SalePrice
		}
		assert.True(t, effective.GreaterThanOrEqual(decimal.NewFromInt(100)), p.Title)
	}
	assert.Equal(t, []string{"Full price"}, titles(atLeast))

	atMost, _, err := handler.ListProducts(ctx, Filters{MaxPrice: dec(100), SortBy: SortPriceAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"Cheap", "Discounted"}, titles(atMost))
}

func TestHandler_ListProducts_FeaturedIsStableUnderTies(t *testing.T) {
	handler, b := newTestQueryHandler(t)
	seedProduct(t, b, fixtureProduct{Title: "Tie A", Price: 10, Rating: 4})
	seedProduct(t, b, fixtureProduct{Title: "Tie B", Price: 10, Rating: 4})
	seedProduct(t, b, fixtureProduct{Title: "Top rated", Price: 10, Rating: 5})
	seedProduct(t, b, fixtureProduct{Title: "On sale", Price: 10, SalePrice: 9.0, Rating: 1})
	ctx := context.Background()

	first, _, err := handler.ListProducts(ctx, Filters{SortBy: SortFeatured})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, _, err := handler.ListProducts(ctx, Filters{SortBy: "unknown"})
		require.NoError(t, err)
		assert.Equal(t, titles(first), titles(again))
	}
	assert.Equal(t, []string{"On sale", "Top rated", "Tie A", "Tie B"}, titles(first))
}

func TestHandler_ListProducts_PagingReportsTotal(t *testing.T) {
	handler, b := newTestQueryHandler(t)
	for _, title := range []string{"P1", "P2", "P3", "P4", "P5"} {
		seedProduct(t, b, fixtureProduct{Title: title, Price: 10, Stock: 1})
	}

	page, total, err := handler.ListProducts(context.Background(), Filters{SortBy: SortFeatured, Limit: 2, Offset: 2})

	require.NoError(t, err)
	assert.Equal(t, []string{"P3", "P4"}, titles(page))
	assert.Equal(t, 5, total)
}

func TestHandler_ListProducts_RatingAndStockFilters(t *testing.T) {
	handler, b := newTestQueryHandler(t)
	seedProduct(t, b, fixtureProduct{Title: "Great", Price: 10, Rating: 4.6, Stock: 0})
	seedProduct(t, b, fixtureProduct{Title: "Good", Price: 10, Rating: 4.1, Stock: 2})
	seedProduct(t, b, fixtureProduct{Title: "Okay", Price: 10, Rating: 3.2, Stock: 2})
	ctx := context.Background()

	top, _, err := handler.ListProducts(ctx, Filters{Rating: "4.5+"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Great"}, titles(top))

	inStock, _, err := handler.ListProducts(ctx, Filters{Rating: "4+", InStock: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Good"}, titles(inStock))

	ignored, _, err := handler.ListProducts(ctx, Filters{Rating: "5 stars"})
	require.NoError(t, err)
	assert.Len(t, ignored, 3)
}

// ============================================
// Search
// ============================================

func TestHandler_SearchProducts_TitleMatchesFirst(t *testing.T) {
	handler, b := newTestQueryHandler(t)
	seedProduct(t, b, fixtureProduct{Title: "USB Cable", SKU: "CAB-1", Price: 5, Rating: 4})
	seedProduct(t, b, fixtureProduct{Title: "Wireless Mouse", SKU: "MOU-1", Description: "ergonomic", Price: 25, Rating: 4})
	seedProduct(t, b, fixtureProduct{Title: "USB-C Hub", SKU: "HUB-1", Price: 30, Rating: 4})
	seedProduct(t, b, fixtureProduct{Title: "Power Bank", SKU: "PWR-1", Description: "charges over usb", Price: 40, Rating: 5})

	results, err := handler.SearchProducts(context.Background(), "usb", Filters{})

	require.NoError(t, err)
	assert.Equal(t, []string{"USB Cable", "USB-C Hub", "Power Bank"}, titles(results))
	assert.Equal(t, 5, results[0].Relevance)
	assert.Equal(t, 2, results[2].Relevance)
}

func TestHandler_SearchProducts_RelevanceLadderBeatsRating(t *testing.T) {
	handler, b := newTestQueryHandler(t)
	seedProduct(t, b, fixtureProduct{Title: "Zeta Lamp", SKU: "L-1", Category: "Lighting", Price: 1, Rating: 1})
	seedProduct(t, b, fixtureProduct{Title: "Lamp two", SKU: "ZETA-2", Category: "Lighting", Price: 1, Rating: 2})
	seedProduct(t, b, fixtureProduct{Title: "Lamp three", SKU: "L-3", Category: "Zeta", Price: 1, Rating: 3})
	seedProduct(t, b, fixtureProduct{Title: "Lamp four", SKU: "L-4", Description: "zeta inside", Price: 1, Rating: 4})
	seedProduct(t, b, fixtureProduct{Title: "Lamp five", SKU: "L-5", Tags: `["zeta"]`, Price: 1, Rating: 5})
	seedProduct(t, b, fixtureProduct{Title: "Unrelated", SKU: "U-1", Price: 1, Rating: 5})

	results, err := handler.SearchProducts(context.Background(), "ZETA", Filters{})

	require.NoError(t, err)
	assert.Equal(t, []string{"Zeta Lamp", "Lamp two", "Lamp three", "Lamp four", "Lamp five"}, titles(results))
	for i, p := range results {
		assert.Equal(t, 5-i, p.Relevance)
	}
}

func TestHandler_SearchProducts_BlankTerm(t *testing.T) {
	handler, b := newTestQueryHandler(t)
	seedProduct(t, b, fixtureProduct{Title: "Anything", Price: 1})

	results, err := handler.SearchProducts(context.Background(), "   ", Filters{})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHandler_Suggestions_PrefixFirst(t *testing.T) {
	handler, b := newTestQueryHandler(t)
	seedProduct(t, b, fixtureProduct{Title: "Big Lamp", Price: 1, Rating: 5})
	seedProduct(t, b, fixtureProduct{Title: "Lamp Shade", Price: 1, Rating: 1})

	hits, err := handler.Suggestions(context.Background(), "lamp", 5)

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Lamp Shade", hits[0].Title)
}

// ============================================
// Soft delete
// ============================================

func TestHandler_SoftDeletedProductNeverListed(t *testing.T) {
	handler, b := newTestQueryHandler(t)
	ctx := context.Background()

	var ids []int64
	for i := 1; i <= 8; i++ {
		ids = append(ids, seedProduct(t, b, fixtureProduct{
			Title:    "Gadget " + string(rune('A'+i-1)),
			Category: "Gear",
			Price:    float64(10 * i),
			Rating:   4,
			Stock:    1,
		}))
	}
	require.Equal(t, int64(7), ids[6])
	softDelete(t, b, 7)

	assertNoSeven := func(products []*readmodel.ProductReadModel) {
		t.Helper()
		for _, p := range products {
			assert.NotEqual(t, int64(7), p.ID)
		}
	}

	listed, total, err := handler.ListProducts(ctx, Filters{})
	require.NoError(t, err)
	assert.Len(t, listed, 7)
	assert.Equal(t, 7, total)
	assertNoSeven(listed)

	byCategory, _, err := handler.ListProducts(ctx, Filters{Category: "Gear"})
	require.NoError(t, err)
	assertNoSeven(byCategory)

	searched, err := handler.SearchProducts(ctx, "gadget", Filters{})
	require.NoError(t, err)
	assert.Len(t, searched, 7)
	assertNoSeven(searched)

	featured, err := handler.FeaturedProducts(ctx, 20)
	require.NoError(t, err)
	assertNoSeven(featured)

	related, err := handler.RelatedProducts(ctx, 1, 20)
	require.NoError(t, err)
	assert.Len(t, related, 6)
	assertNoSeven(related)

	suggestions, err := handler.Suggestions(ctx, "gadget", 10)
	require.NoError(t, err)
	for _, s := range suggestions {
		assert.NotEqual(t, int64(7), s.ID)
	}

	categories, err := handler.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, 7, categories[0].ProductCount)

	_, err = handler.GetProduct(ctx, 7)
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = handler.RelatedProducts(ctx, 7, 4)
	assert.ErrorIs(t, err, ErrProductNotFound)

	// still physically present for the back office
	admin, err := handler.GetProductAdmin(ctx, 7)
	require.NoError(t, err)
	assert.False(t, admin.IsActive)

	all, err := handler.AdminProducts(ctx, AdminFilters{IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, all, 8)
}

// ============================================
// Users & orders
// ============================================

func TestHandler_FindUserForLogin(t *testing.T) {
	handler, _ := newTestQueryHandler(t)
	ctx := context.Background()

	byName, err := handler.FindUserForLogin(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", byName.Role)
	assert.True(t, byName.IsActive)

	byEmail, err := handler.FindUserForLogin(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, byName.ID, byEmail.ID)

	_, err = handler.FindUserForLogin(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestHandler_Orders(t *testing.T) {
	handler, b := newTestQueryHandler(t)
	ctx := context.Background()

	admin, err := handler.FindUserForLogin(ctx, "admin")
	require.NoError(t, err)

	orderID, err := b.Insert(ctx, store.Insert(
		`INSERT INTO orders (user_id, order_number, status, total_amount, shipping_address, payment_status)
		 VALUES (?, ?, 'pending', ?, ?, 'paid')`,
		admin.ID, "ORD-20240101-0000abcd", 30.0, `{"city":"Osaka"}`,
	))
	require.NoError(t, err)
	for _, qty := range []int{1, 2} {
		_, err := b.Insert(ctx, store.Insert(
			`INSERT INTO order_items (order_id, product_id, product_title, sku, quantity, unit_price, total_price)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			orderID, 1, "Thing", "T-1", qty, 10.0, float64(qty)*10,
		))
		require.NoError(t, err)
	}

	order, err := handler.GetOrderByNumber(ctx, admin.ID, "ORD-20240101-0000abcd")
	require.NoError(t, err)
	assert.Equal(t, "Osaka", order.ShippingAddress["city"])
	require.Len(t, order.Items, 2)
	assert.Equal(t, 2, order.Items[1].Quantity)

	_, err = handler.GetOrderByNumber(ctx, admin.ID+100, "ORD-20240101-0000abcd")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	mine, err := handler.ListOrdersByUser(ctx, admin.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Len(t, mine[0].Items, 2)

	paid, err := handler.ListAllOrders(ctx, "pending", 10, 0)
	require.NoError(t, err)
	assert.Len(t, paid, 1)
}

// ============================================
// Backend failures
// ============================================

func TestHandler_PropagatesBackendErrorKinds(t *testing.T) {
	backend := mocks.NewMockBackend("postgres", store.DialectPostgres)
	backend.QueryFunc = func(store.Statement) (*store.Result, error) {
		return nil, &store.Error{Kind: store.ErrUnavailable, Backend: "postgres", Err: errors.New("pool exhausted")}
	}
	handler := NewHandler(backend, readmodel.NewMapper(nil), nil)

	_, _, err := handler.ListProducts(context.Background(), Filters{Category: "Books"})

	assert.ErrorIs(t, err, store.ErrUnavailable)
	require.Len(t, backend.QueryCalls, 1)
	assert.Contains(t, backend.QueryCalls[0].Text, "category = $1")
}
