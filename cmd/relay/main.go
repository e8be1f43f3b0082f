package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/example/order-fulfillment/internal/config"
	"github.com/example/order-fulfillment/internal/infrastructure/kafka"
	"github.com/example/order-fulfillment/internal/infrastructure/rabbitmq"
	"github.com/example/order-fulfillment/internal/infrastructure/store"
	"github.com/example/order-fulfillment/internal/outbox"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.Load()

	logger.Info("[Relay] ========================================")
	logger.Info("[Relay] Order Fulfillment - Outbox Relay")
	logger.Info("[Relay] ========================================")
	logger.Infof("[Relay] Bus driver: %s", cfg.BusDriver)

	// The relay only makes sense against the shared database the API
	// writes its outbox rows into.
	db, err := store.ConnectPostgres(cfg.PostgresURL)
	if err != nil {
		logger.WithError(err).Fatal("[Relay] Failed to connect to PostgreSQL")
	}
	defer db.Close()
	if err := store.EnsureSchema(context.Background(), db); err != nil {
		logger.WithError(err).Fatal("[Relay] Failed to ensure schema")
	}
	logger.Info("[Relay] Connected to PostgreSQL")
	pg := store.NewPostgresStore(db, cfg.LockTimeout)

	var publisher outbox.Publisher
	switch cfg.BusDriver {
	case config.BusRabbitMQ:
		pub := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err := pub.Connect(); err != nil {
			logger.WithError(err).Fatal("[Relay] Failed to connect to RabbitMQ")
		}
		defer pub.Close()
		logger.Infof("[Relay] Publishing to RabbitMQ exchange %s", cfg.AMQPExchange)
		publisher = pub
	default:
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		logger.Infof("[Relay] Publishing to Kafka topic %s via %v", cfg.KafkaTopic, cfg.KafkaBrokers)
		publisher = producer
	}

	relay := outbox.NewRelay(pg, publisher, outbox.RelayConfig{
		Interval:       cfg.RelayInterval,
		BatchSize:      cfg.RelayBatchSize,
		MaxAttempts:    cfg.RelayMaxAttempts,
		BaseRetryDelay: cfg.RelayBaseDelay,
		MaxRetryDelay:  cfg.RelayMaxDelay,
		Lease:          cfg.RelayLease,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("[Relay] Shutting down...")
	cancel()
}
