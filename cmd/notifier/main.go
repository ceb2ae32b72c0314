package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/config"
	"github.com/example/ec-storefront/internal/email"
	"github.com/example/ec-storefront/internal/infrastructure/kafka"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/logger"
	"github.com/example/ec-storefront/internal/notification"
	"github.com/example/ec-storefront/internal/query"
	"github.com/example/ec-storefront/internal/readmodel"
)

const (
	serviceName = "storefront-notifier"
	// dedicated consumer group for email notifications
	consumerGroup = "email-notifier"
)

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

	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// no fallback here: this process must share the API's backend
	handle, err := store.NewSelector(cfg.SelectorConfig(), log).Attach(ctx)
	if err != nil {
		log.Fatal("database backend unavailable", zap.Error(err))
	}
	defer handle.Close()

	queries := query.NewHandler(handle, readmodel.NewMapper(log), log)
	mailer := email.NewService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From)
	handler := notification.NewHandler(mailer, queries, log)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic, consumerGroup, log)
	defer consumer.Close()

	log.Info("listening for orders",
		zap.String("topic", cfg.Kafka.OrderTopic),
		zap.String("smtp", cfg.SMTP.Host+":"+cfg.SMTP.Port),
		zap.String("backend", handle.Name()),
	)
	if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && ctx.Err() == nil {
		log.Error("consumer stopped", zap.Error(err))
	}
	log.Info("shutting down")
}
