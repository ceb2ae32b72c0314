package importer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/command"
)

const DefaultBatchSize = 100

// Upserter writes one batch of products atomically
type Upserter interface {
	UpsertProducts(ctx context.Context, batch []command.ProductFields) (command.BatchResult, error)
}

// Report is the outcome of one import run
type Report struct {
	command.BatchResult
	Rejected []RowError
}

type Importer struct {
	target    Upserter
	batchSize int
	log       *zap.Logger
}

func New(target Upserter, batchSize int, log *zap.Logger) *Importer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{target: target, batchSize: batchSize, log: log.Named("importer")}
}

// ImportFile reads and imports a .xlsx or .csv file
func (im *Importer) ImportFile(ctx context.Context, path string) (*Report, error) {
	table, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	return im.Import(ctx, table)
}

// Import upserts the rows of table batch by batch. A failed batch stops the
// run; batches already committed stay committed.
func (im *Importer) Import(ctx context.Context, table [][]string) (*Report, error) {
	products, rejected, err := ParseRows(table)
	if err != nil {
		return nil, err
	}

	report := &Report{Rejected: rejected}
	report.Skipped = len(rejected)
	for _, re := range rejected {
		im.log.Warn("rejected row", zap.Int("line", re.Line), zap.Error(re.Err))
	}

	for start := 0; start < len(products); start += im.batchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		end := min(start+im.batchSize, len(products))

		res, err := im.target.UpsertProducts(ctx, products[start:end])
		if err != nil {
			return report, fmt.Errorf("batch starting at row %d: %w", start+1, err)
		}
		report.Add(res)
	}

	im.log.Info("import finished",
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}
