package query

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/infrastructure/store"
)

// Sort tokens accepted by the catalog
const (
	SortPriceAsc  = "price-asc"
	SortPriceDesc = "price-desc"
	SortRating    = "rating"
	SortNewest    = "newest"
	SortFeatured  = "featured"
)

// CategoryAll is the sentinel that disables the category filter
const CategoryAll = "all"

const (
	productColumns = "id, title, description, price, sale_price, sku, stock, category, tags, rating, images, attributes, is_active, created_at, updated_at"
	effectivePrice = "COALESCE(sale_price, price)"
	onSale         = "sale_price IS NOT NULL AND sale_price < price"
	hasSale        = "CASE WHEN " + onSale + " THEN 1 ELSE 0 END"

	defaultFeaturedLimit   = 8
	defaultRelatedLimit    = 4
	defaultSuggestionLimit = 5
	maxSuggestionLimit     = 10
)

var ratingTiers = map[string]float64{
	"3+":   3.0,
	"4+":   4.0,
	"4.5+": 4.5,
}

// Filters are the optional catalog dimensions. Zero values mean "no constraint".
type Filters struct {
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Rating   string
	InStock  bool
	OnSale   bool
	SortBy   string
	Limit    int
	Offset   int
}

// RatingThreshold resolves a tier token; unknown tokens report false
func RatingThreshold(tier string) (float64, bool) {
	v, ok := ratingTiers[tier]
	return v, ok
}

func activeOnly(d store.Dialect) string {
	return "is_active = " + d.Bool(true)
}

// MoneyArg binds a decimal so both engines store and compare it numerically
func MoneyArg(d store.Dialect, v decimal.Decimal) any {
	if d == store.DialectSQLite {
		return v.InexactFloat64()
	}
	return v.String()
}

func applyFilters(b *SelectBuilder, d store.Dialect, f Filters) {
	if f.Category != "" && f.Category != CategoryAll {
		b.Where("category = ?", f.Category)
	}
	if f.MinPrice != nil {
		b.Where(effectivePrice+" >= ?", MoneyArg(d, *f.MinPrice))
	}
	if f.MaxPrice != nil {
		b.Where(effectivePrice+" <= ?", MoneyArg(d, *f.MaxPrice))
	}
	if threshold, ok := RatingThreshold(f.Rating); ok {
		b.Where("rating >= ?", threshold)
	}
	if f.InStock {
		b.Where("stock > 0")
	}
	if f.OnSale {
		b.Where(onSale)
	}
}

// applySort orders by the sort token; every mode ends in an id tie-break
func applySort(b *SelectBuilder, sortBy string) {
	switch sortBy {
	case SortPriceAsc:
		b.OrderBy(effectivePrice + " ASC").OrderBy("id ASC")
	case SortPriceDesc:
		b.OrderBy(effectivePrice + " DESC").OrderBy("id ASC")
	case SortRating:
		b.OrderBy("rating DESC").OrderBy("id ASC")
	case SortNewest:
		b.OrderBy("created_at DESC").OrderBy("id DESC")
	default:
		applyFeatured(b)
	}
}

// applyFeatured puts active sales first, then rating
func applyFeatured(b *SelectBuilder) {
	b.OrderBy(hasSale + " DESC").OrderBy("rating DESC").OrderBy("id ASC")
}

// ListProductsStatement is the filtered, sorted catalog listing
func ListProductsStatement(d store.Dialect, f Filters) (store.Statement, error) {
	b := NewSelect(productColumns).From("products").Where(activeOnly(d))
	applyFilters(b, d, f)
	applySort(b, f.SortBy)
	return b.Limit(f.Limit).Offset(f.Offset).Build(d)
}

// CountProductsStatement counts the rows ListProductsStatement would page over
func CountProductsStatement(d store.Dialect, f Filters) (store.Statement, error) {
	b := NewSelect("COUNT(*) AS total").From("products").Where(activeOnly(d))
	applyFilters(b, d, f)
	return b.Build(d)
}

// searchPattern wraps the term for substring matching
func searchPattern(term string) string {
	return "%" + strings.TrimSpace(term) + "%"
}

// SearchProductsStatement ranks matches by the first field that contains
// the term: title, sku, category, description, then tags. The rank is a
// ladder, not a sum.
func SearchProductsStatement(d store.Dialect, term string, f Filters) (store.Statement, error) {
	p := searchPattern(term)
	like := " " + d.ILike() + " ?"
	tags := d.JSONText("tags")

	b := NewSelect(productColumns).
		Column("CASE"+
			" WHEN title"+like+" THEN 5"+
			" WHEN sku"+like+" THEN 4"+
			" WHEN category"+like+" THEN 3"+
			" WHEN description"+like+" THEN 2"+
			" WHEN "+tags+like+" THEN 1"+
			" ELSE 0 END AS relevance", p, p, p, p, p).
		From("products").
		Where(activeOnly(d)).
		Where("title"+like+" OR sku"+like+" OR category"+like+" OR description"+like+" OR "+tags+like, p, p, p, p, p)

	applyFilters(b, d, f)
	b.OrderBy("relevance DESC").
		OrderBy("rating DESC").
		OrderBy(hasSale + " DESC").
		OrderBy("id ASC")

	return b.Limit(f.Limit).Offset(f.Offset).Build(d)
}

// SuggestionsStatement is the lightweight type-ahead lookup over titles and
// categories, prefix matches first
func SuggestionsStatement(d store.Dialect, term string, limit int) (store.Statement, error) {
	if limit <= 0 {
		limit = defaultSuggestionLimit
	}
	if limit > maxSuggestionLimit {
		limit = maxSuggestionLimit
	}
	like := " " + d.ILike() + " ?"

	return NewSelect("id", "title", "category", "price", "sale_price", "images").
		From("products").
		Where(activeOnly(d)).
		Where("title"+like+" OR category"+like, searchPattern(term), searchPattern(term)).
		OrderBy("CASE WHEN title"+like+" THEN 0 ELSE 1 END", strings.TrimSpace(term)+"%").
		OrderBy("rating DESC").
		OrderBy("id ASC").
		Limit(limit).
		Build(d)
}

// FeaturedProductsStatement lists the storefront's featured shelf
func FeaturedProductsStatement(d store.Dialect, limit int) (store.Statement, error) {
	if limit <= 0 {
		limit = defaultFeaturedLimit
	}
	b := NewSelect(productColumns).From("products").Where(activeOnly(d))
	applyFeatured(b)
	return b.Limit(limit).Build(d)
}

// RelatedProductsStatement lists other active products of the same category
func RelatedProductsStatement(d store.Dialect, productID int64, category string, limit int) (store.Statement, error) {
	if limit <= 0 {
		limit = defaultRelatedLimit
	}
	b := NewSelect(productColumns).
		From("products").
		Where(activeOnly(d)).
		Where("category = ?", category).
		Where("id <> ?", productID)
	applyFeatured(b)
	return b.Limit(limit).Build(d)
}

// ProductByIDStatement fetches one product; inactive rows only when asked
func ProductByIDStatement(d store.Dialect, id int64, includeInactive bool) (store.Statement, error) {
	b := NewSelect(productColumns).From("products").Where("id = ?", id)
	if !includeInactive {
		b.Where(activeOnly(d))
	}
	return b.Build(d)
}

// CategoriesStatement lists categories with their active product counts
func CategoriesStatement(d store.Dialect) (store.Statement, error) {
	return NewSelect("category", "COUNT(*) AS product_count").
		From("products").
		Where(activeOnly(d)).
		Where("category IS NOT NULL AND category <> ''").
		GroupBy("category").
		OrderBy("category ASC").
		Build(d)
}

// AdminFilters drive the back-office product listing
type AdminFilters struct {
	IncludeInactive bool
	Search          string
	Category        string
	Limit           int
	Offset          int
}

// AdminProductsStatement lists products for the back office, newest first
func AdminProductsStatement(d store.Dialect, f AdminFilters) (store.Statement, error) {
	b := NewSelect(productColumns).From("products")
	if !f.IncludeInactive {
		b.Where(activeOnly(d))
	}
	if f.Category != "" && f.Category != CategoryAll {
		b.Where("category = ?", f.Category)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := " " + d.ILike() + " ?"
		b.Where("title"+like+" OR sku"+like, searchPattern(term), searchPattern(term))
	}
	return b.OrderBy("id DESC").Limit(f.Limit).Offset(f.Offset).Build(d)
}
