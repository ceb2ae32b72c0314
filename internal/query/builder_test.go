package query

import (
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-storefront/internal/infrastructure/store"
)

var numbered = regexp.MustCompile(`\$(\d+)`)

// placeholderSequence lists $n indexes in order of occurrence, skipping
// quoted literals
func placeholderSequence(text string) []int {
	var seq []int
	inQuote := false
	var clean strings.Builder
	for i := 0; i < len(text); i++ {
		if text[i] == '\'' {
			inQuote = !inQuote
			clean.WriteByte(' ')
			continue
		}
		if inQuote {
			clean.WriteByte(' ')
			continue
		}
		clean.WriteByte(text[i])
	}
	for _, m := range numbered.FindAllStringSubmatch(clean.String(), -1) {
		n, _ := strconv.Atoi(m[1])
		seq = append(seq, n)
	}
	return seq
}

// assertParity checks the placeholder/argument invariants for one statement
func assertParity(t *testing.T, d store.Dialect, stmt store.Statement) {
	t.Helper()

	require.NoError(t, d.ValidateArgs(stmt.Text, len(stmt.Args)), stmt.Text)

	if d == store.DialectPostgres {
		seq := placeholderSequence(stmt.Text)
		require.Len(t, seq, len(stmt.Args), stmt.Text)
		for i, n := range seq {
			assert.Equal(t, i+1, n, "placeholders must be numbered in occurrence order: %s", stmt.Text)
		}
		assert.NotContains(t, stmt.Text, "?")
		return
	}
	assert.Equal(t, len(stmt.Args), store.CountMarkers(stmt.Text))
	assert.NotContains(t, stmt.Text, "$")
}

func allFilterCombinations() []Filters {
	hundred := decimal.NewFromInt(100)
	fiveHundred := decimal.NewFromInt(500)

	var out []Filters
	for _, category := range []string{"", CategoryAll, "Electronics"} {
		for _, minPrice := range []*decimal.Decimal{nil, &hundred} {
			for _, maxPrice := range []*decimal.Decimal{nil, &fiveHundred} {
				for _, rating := range []string{"", "4+", "4.5+", "bogus"} {
					for _, inStock := range []bool{false, true} {
						for _, sale := range []bool{false, true} {
							for _, sortBy := range []string{"", SortPriceAsc, SortPriceDesc, SortRating, SortNewest, SortFeatured, "nonsense"} {
								for _, page := range [][2]int{{0, 0}, {10, 0}, {0, 5}, {10, 5}} {
									out = append(out, Filters{
										Category: category,
										MinPrice: minPrice,
										MaxPrice: maxPrice,
										Rating:   rating,
										InStock:  inStock,
										OnSale:   sale,
										SortBy:   sortBy,
										Limit:    page[0],
										Offset:   page[1],
									})
								}
							}
						}
					}
				}
			}
		}
	}
	return out
}

// ============================================
// Placeholder / argument parity
// ============================================

func TestParity_AllFilterCombinations(t *testing.T) {
	for _, d := range []store.Dialect{store.DialectPostgres, store.DialectSQLite} {
		t.Run(d.String(), func(t *testing.T) {
			for _, f := range allFilterCombinations() {
				list, err := ListProductsStatement(d, f)
				require.NoError(t, err)
				assertParity(t, d, list)
				assert.Equal(t, store.KindSelect, list.Kind)

				count, err := CountProductsStatement(d, f)
				require.NoError(t, err)
				assertParity(t, d, count)

				search, err := SearchProductsStatement(d, "usb", f)
				require.NoError(t, err)
				assertParity(t, d, search)
			}
		})
	}
}

func TestParity_OtherStatements(t *testing.T) {
	for _, d := range []store.Dialect{store.DialectPostgres, store.DialectSQLite} {
		t.Run(d.String(), func(t *testing.T) {
			builders := []func() (store.Statement, error){
				func() (store.Statement, error) { return SuggestionsStatement(d, "us", 0) },
				func() (store.Statement, error) { return SuggestionsStatement(d, "'quoted?'", 50) },
				func() (store.Statement, error) { return FeaturedProductsStatement(d, 0) },
				func() (store.Statement, error) { return RelatedProductsStatement(d, 7, "Electronics", 3) },
				func() (store.Statement, error) { return ProductByIDStatement(d, 7, false) },
				func() (store.Statement, error) { return ProductByIDStatement(d, 7, true) },
				func() (store.Statement, error) { return CategoriesStatement(d) },
				func() (store.Statement, error) {
					return AdminProductsStatement(d, AdminFilters{IncludeInactive: true, Search: "usb", Category: "Books", Limit: 20, Offset: 20})
				},
			}
			for _, build := range builders {
				stmt, err := build()
				require.NoError(t, err)
				assertParity(t, d, stmt)
			}
		})
	}
}

func TestParity_ArgumentOrderMatchesText(t *testing.T) {
	minPrice := decimal.NewFromInt(100)
	maxPrice := decimal.NewFromInt(500)
	f := Filters{Category: "Electronics", MinPrice: &minPrice, MaxPrice: &maxPrice, Rating: "4+", Limit: 10, Offset: 20}

	stmt, err := ListProductsStatement(store.DialectPostgres, f)
	require.NoError(t, err)

	assert.Equal(t, []any{"Electronics", "100", "500", 4.0, 10, 20}, stmt.Args)
	assert.Contains(t, stmt.Text, "category = $1")
	assert.Contains(t, stmt.Text, "COALESCE(sale_price, price) >= $2")
	assert.Contains(t, stmt.Text, "COALESCE(sale_price, price) <= $3")
	assert.Contains(t, stmt.Text, "rating >= $4")
	assert.Contains(t, stmt.Text, "LIMIT $5 OFFSET $6")

	lite, err := ListProductsStatement(store.DialectSQLite, f)
	require.NoError(t, err)
	assert.Equal(t, []any{"Electronics", 100.0, 500.0, 4.0, 10, 20}, lite.Args)
}

func TestFold_RejectsMismatchedClause(t *testing.T) {
	_, err := NewSelect("id").From("products").Where("sku = ?").Build(store.DialectSQLite)
	assert.ErrorIs(t, err, store.ErrMalformed)

	_, err = NewSelect("id").From("products").Where("sku = ?", "a", "b").Build(store.DialectPostgres)
	assert.ErrorIs(t, err, store.ErrMalformed)

	_, err = NewSelect().From("products").Build(store.DialectPostgres)
	assert.ErrorIs(t, err, store.ErrMalformed)
}

func TestRebind(t *testing.T) {
	stmt, err := Rebind(store.DialectPostgres, store.KindUpdate, "UPDATE products SET stock = ? WHERE id = ?", 3, int64(9))
	require.NoError(t, err)
	assert.Equal(t, "UPDATE products SET stock = $1 WHERE id = $2", stmt.Text)
	assert.Equal(t, store.KindUpdate, stmt.Kind)

	_, err = Rebind(store.DialectSQLite, store.KindUpdate, "UPDATE products SET stock = ?")
	assert.ErrorIs(t, err, store.ErrMalformed)
}

// ============================================
// Filter and sort semantics
// ============================================

func TestListProducts_FilterSemantics(t *testing.T) {
	d := store.DialectSQLite

	stmt, err := ListProductsStatement(d, Filters{Category: CategoryAll, Rating: "2+", Offset: 10})
	require.NoError(t, err)
	assert.NotContains(t, stmt.Text, "category =")
	assert.NotContains(t, stmt.Text, "rating >=")
	assert.NotContains(t, stmt.Text, "OFFSET", "offset needs a limit")
	assert.Contains(t, stmt.Text, "is_active = 1")
	assert.Empty(t, stmt.Args)

	stmt, err = ListProductsStatement(d, Filters{InStock: true, OnSale: true})
	require.NoError(t, err)
	assert.Contains(t, stmt.Text, "stock > 0")
	assert.Contains(t, stmt.Text, "sale_price IS NOT NULL AND sale_price < price")
}

func TestListProducts_SortModes(t *testing.T) {
	d := store.DialectPostgres
	featured := "ORDER BY CASE WHEN sale_price IS NOT NULL AND sale_price < price THEN 1 ELSE 0 END DESC, rating DESC, id ASC"

	tests := []struct {
		sortBy string
		order  string
	}{
		{SortPriceAsc, "ORDER BY COALESCE(sale_price, price) ASC, id ASC"},
		{SortPriceDesc, "ORDER BY COALESCE(sale_price, price) DESC, id ASC"},
		{SortRating, "ORDER BY rating DESC, id ASC"},
		{SortNewest, "ORDER BY created_at DESC, id DESC"},
		{SortFeatured, featured},
		{"", featured},
		{"cheapest-first", featured},
	}

	for _, tt := range tests {
		t.Run(tt.sortBy, func(t *testing.T) {
			stmt, err := ListProductsStatement(d, Filters{SortBy: tt.sortBy})
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(stmt.Text, tt.order), stmt.Text)
		})
	}
}

func TestSearch_DialectFragments(t *testing.T) {
	pg, err := SearchProductsStatement(store.DialectPostgres, "usb", Filters{})
	require.NoError(t, err)
	assert.Contains(t, pg.Text, "title ILIKE $1 THEN 5")
	assert.Contains(t, pg.Text, "tags::text ILIKE $5 THEN 1")
	assert.Contains(t, pg.Text, "is_active = TRUE")
	assert.Len(t, pg.Args, 10)
	assert.Equal(t, "%usb%", pg.Args[0])
	assert.True(t, strings.HasSuffix(pg.Text,
		"ORDER BY relevance DESC, rating DESC, CASE WHEN sale_price IS NOT NULL AND sale_price < price THEN 1 ELSE 0 END DESC, id ASC"))

	lite, err := SearchProductsStatement(store.DialectSQLite, "usb", Filters{})
	require.NoError(t, err)
	assert.Contains(t, lite.Text, "tags LIKE ? THEN 1")
	assert.NotContains(t, lite.Text, "ILIKE")
}

func TestSuggestions_LimitIsClamped(t *testing.T) {
	stmt, err := SuggestionsStatement(store.DialectSQLite, "us", 500)
	require.NoError(t, err)
	assert.Equal(t, maxSuggestionLimit, stmt.Args[len(stmt.Args)-1])

	stmt, err = SuggestionsStatement(store.DialectSQLite, "us", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultSuggestionLimit, stmt.Args[len(stmt.Args)-1])
}

func TestEveryCatalogPathIsActiveOnly(t *testing.T) {
	for _, d := range []store.Dialect{store.DialectPostgres, store.DialectSQLite} {
		active := "is_active = " + d.Bool(true)

		list, _ := ListProductsStatement(d, Filters{})
		search, _ := SearchProductsStatement(d, "x", Filters{})
		suggest, _ := SuggestionsStatement(d, "xx", 5)
		featured, _ := FeaturedProductsStatement(d, 5)
		related, _ := RelatedProductsStatement(d, 1, "c", 5)
		byID, _ := ProductByIDStatement(d, 1, false)
		categories, _ := CategoriesStatement(d)

		for _, stmt := range []store.Statement{list, search, suggest, featured, related, byID, categories} {
			assert.Contains(t, stmt.Text, active)
		}
	}
}
