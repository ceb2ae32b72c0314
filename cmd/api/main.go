package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/analytics"
	"github.com/example/ec-storefront/internal/api"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/command"
	"github.com/example/ec-storefront/internal/config"
	"github.com/example/ec-storefront/internal/infrastructure/kafka"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/logger"
	"github.com/example/ec-storefront/internal/metrics"
	"github.com/example/ec-storefront/internal/query"
	"github.com/example/ec-storefront/internal/readmodel"
)

const serviceName = "storefront-api"

func main() {
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

	if len(cfg.JWT.Secret) < 32 {
		log.Fatal("JWT_SECRET must be set and at least 32 characters long")
	}
	log.Info("starting", cfg.LogFields()...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(serviceName, nil)
	hasher := auth.NewHasher(auth.DefaultCost)

	adminHash, err := hasher.Hash(cfg.Admin.Password)
	if err != nil {
		log.Fatal("hash admin password", zap.Error(err))
	}

	selCfg := cfg.SelectorConfig()
	selCfg.Admin = store.AdminSeed{Username: cfg.Admin.Username, Email: cfg.Admin.Email, PasswordHash: adminHash}
	selCfg.Observer = m.ObserveStatement

	initCtx, cancelInit := context.WithTimeout(ctx, 30*time.Second)
	handle, err := store.NewSelector(selCfg, log).Initialize(initCtx)
	cancelInit()
	if err != nil {
		log.Fatal("no database backend available", zap.Error(err))
	}
	defer handle.Close()
	m.SetActiveBackend(handle.Name())
	if handle.Fallback() {
		log.Warn("serving from secondary backend", zap.String("reason", handle.Reason()))
	}

	mapper := readmodel.NewMapper(log)
	recorder := analytics.NewRecorder(handle, mapper, log)

	commands := command.NewHandler(handle, mapper, hasher, log)

	var publisher analytics.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		defer producer.Close()
		publisher = producer

		orders := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic, log)
		defer orders.Close()
		commands.PublishOrdersTo(orders)

		log.Info("events streamed to kafka",
			zap.String("analytics_topic", cfg.Kafka.Topic),
			zap.String("order_topic", cfg.Kafka.OrderTopic),
		)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessTTL)
	handlers := api.NewHandlers(api.Deps{
		Queries:  query.NewHandler(handle, mapper, log),
		Commands: commands,
		Tracker:  analytics.NewTracker(recorder, publisher, log),
		Recorder: recorder,
		JWT:      jwtService,
		Hasher:   hasher,
		Backend:  handle,
		Log:      log,
	})

	server := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: api.NewRouter(api.RouterConfig{
			Handlers: handlers,
			JWT:      jwtService,
			Metrics:  m,
			Log:      log,
			WebDir:   cfg.Server.WebDir,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server started", zap.String("addr", server.Addr), zap.String("backend", handle.Name()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}
