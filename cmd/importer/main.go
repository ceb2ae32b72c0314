package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/command"
	"github.com/example/ec-storefront/internal/config"
	"github.com/example/ec-storefront/internal/importer"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/logger"
	"github.com/example/ec-storefront/internal/readmodel"
)

const serviceName = "storefront-importer"

func main() {
	file := flag.String("file", "", "products file (.xlsx or .csv)")
	batch := flag.Int("batch", importer.DefaultBatchSize, "rows per transaction")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: importer -file products.xlsx [-batch 100]")
		os.Exit(2)
	}

	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(err)
	}
	log, err := logger.New(logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: serviceName,
	})
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the importer never seeds an admin account and never falls back
	handle, err := store.NewSelector(cfg.SelectorConfig(), log).Attach(ctx)
	if err != nil {
		log.Fatal("database backend unavailable", zap.Error(err))
	}
	defer handle.Close()

	hasher := auth.NewHasher(auth.DefaultCost)
	cmds := command.NewHandler(handle, readmodel.NewMapper(log), hasher, log)

	report, err := importer.New(cmds, *batch, log).ImportFile(ctx, *file)
	if err != nil {
		log.Error("import failed", zap.String("file", *file), zap.Error(err))
		if report != nil {
			printReport(report)
		}
		os.Exit(1)
	}
	printReport(report)
}

func printReport(r *importer.Report) {
	fmt.Printf("created: %d\nupdated: %d\nskipped: %d\n", r.Created, r.Updated, r.Skipped)
	for _, re := range r.Rejected {
		fmt.Printf("  %s\n", re.Error())
	}
}
