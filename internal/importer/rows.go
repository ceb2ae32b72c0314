package importer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/command"
)

// Columns lists the recognised header names. Order in the file is free;
// sku, title and price are required.
var Columns = []string{"sku", "title", "description", "price", "sale_price", "stock", "category", "tags", "rating", "images"}

var required = []string{"sku", "title", "price"}

// RowError describes a data row that could not be parsed
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

type header map[string]int

func parseHeader(row []string) (header, error) {
	h := header{}
	for i, name := range row {
		name = strings.ToLower(strings.TrimSpace(name))
		name = strings.ReplaceAll(name, " ", "_")
		if name != "" {
			h[name] = i
		}
	}
	for _, col := range required {
		if _, ok := h[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrNoHeader, col)
		}
	}
	return h, nil
}

func (h header) get(row []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// ParseRows converts a table with a header row into product fields. Blank
// rows are ignored; malformed rows come back as RowErrors.
func ParseRows(table [][]string) ([]command.ProductFields, []RowError, error) {
	if len(table) == 0 {
		return nil, nil, ErrNoHeader
	}
	h, err := parseHeader(table[0])
	if err != nil {
		return nil, nil, err
	}

	var products []command.ProductFields
	var rejected []RowError
	for i, row := range table[1:] {
		if blank(row) {
			continue
		}
		f, err := parseRow(h, row)
		if err != nil {
			rejected = append(rejected, RowError{Line: i + 2, Err: err})
			continue
		}
		products = append(products, f)
	}
	return products, rejected, nil
}

func parseRow(h header, row []string) (command.ProductFields, error) {
	f := command.ProductFields{
		SKU:         h.get(row, "sku"),
		Title:       h.get(row, "title"),
		Description: h.get(row, "description"),
		Category:    h.get(row, "category"),
		Tags:        parseList(h.get(row, "tags")),
		Images:      parseList(h.get(row, "images")),
	}

	price, err := decimal.NewFromString(h.get(row, "price"))
	if err != nil {
		return f, fmt.Errorf("price: %w", command.ErrInvalidPrice)
	}
	f.Price = price.Round(2)

	if raw := h.get(row, "sale_price"); raw != "" {
		sale, err := decimal.NewFromString(raw)
		if err != nil {
			return f, fmt.Errorf("sale_price: %w", command.ErrInvalidSalePrice)
		}
		sale = sale.Round(2)
		f.SalePrice = &sale
	}

	if raw := h.get(row, "stock"); raw != "" {
		stock, err := decimal.NewFromString(raw)
		if err != nil || !stock.Equal(stock.Truncate(0)) {
			return f, fmt.Errorf("stock: %w", command.ErrInvalidStock)
		}
		f.Stock = int(stock.IntPart())
	}

	if raw := h.get(row, "rating"); raw != "" {
		rating, err := decimal.NewFromString(raw)
		if err != nil {
			return f, fmt.Errorf("rating: %w", command.ErrInvalidRating)
		}
		f.Rating = rating.InexactFloat64()
	}

	if f.SKU == "" {
		return f, command.ErrInvalidSKU
	}
	if f.Title == "" {
		return f, command.ErrInvalidTitle
	}
	return f, nil
}

// parseList accepts a JSON array or a comma separated list
func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}
	if strings.HasPrefix(raw, "[") {
		var out []string
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out
		}
	}

	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

