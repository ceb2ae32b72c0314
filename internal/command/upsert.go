package command

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/infrastructure/store"
)

// BatchResult counts what one upsert batch did
type BatchResult struct {
	Created int
	Updated int
	Skipped int
}

func (r *BatchResult) Add(o BatchResult) {
	r.Created += o.Created
	r.Updated += o.Updated
	r.Skipped += o.Skipped
}

// UpsertProducts inserts or updates products keyed by SKU in a single
// transaction. Rows that fail validation are skipped; any store error rolls
// the whole batch back.
func (h *Handler) UpsertProducts(ctx context.Context, batch []ProductFields) (BatchResult, error) {
	var result BatchResult
	valid := make([]ProductFields, 0, len(batch))
	for i := range batch {
		f := batch[i]
		if err := f.normalize(); err != nil {
			h.log.Warn("skipping product row", zap.String("sku", f.SKU), zap.Error(err))
			result.Skipped++
			continue
		}
		valid = append(valid, f)
	}
	if len(valid) == 0 {
		return result, nil
	}

	err := store.WithTx(ctx, h.db, func(tx store.Tx) error {
		seen, err := existingSKUs(ctx, tx, valid)
		if err != nil {
			return err
		}

		j := tx.Dialect().JSONParam("?")
		text := `INSERT INTO products (title, description, price, sale_price, sku, stock, category, tags, rating, images, attributes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ` + j + `, ?, ` + j + `, ` + j + `)
			ON CONFLICT (sku) DO UPDATE SET
				title = excluded.title, description = excluded.description, price = excluded.price,
				sale_price = excluded.sale_price, stock = excluded.stock, category = excluded.category,
				tags = excluded.tags, rating = excluded.rating, images = excluded.images,
				attributes = excluded.attributes, updated_at = CURRENT_TIMESTAMP`

		for _, f := range valid {
			args, err := f.args(tx.Dialect())
			if err != nil {
				return fmt.Errorf("product %s: %w", f.SKU, err)
			}
			if _, err := exec(ctx, tx, store.KindInsert, text, args...); err != nil {
				return fmt.Errorf("upsert product %s: %w", f.SKU, translate(err))
			}
			if seen[f.SKU] {
				result.Updated++
			} else {
				result.Created++
				seen[f.SKU] = true
			}
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}

	h.log.Info("product batch upserted",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func existingSKUs(ctx context.Context, tx store.Tx, batch []ProductFields) (map[string]bool, error) {
	markers := make([]string, len(batch))
	args := make([]any, len(batch))
	for i, f := range batch {
		markers[i] = "?"
		args[i] = f.SKU
	}

	res, err := exec(ctx, tx, store.KindSelect,
		"SELECT sku FROM products WHERE sku IN ("+strings.Join(markers, ", ")+")", args...)
	if err != nil {
		return nil, fmt.Errorf("load existing skus: %w", err)
	}

	seen := make(map[string]bool, len(res.Rows))
	for _, rec := range res.Rows {
		seen[fmt.Sprint(rec["sku"])] = true
	}
	return seen, nil
}
