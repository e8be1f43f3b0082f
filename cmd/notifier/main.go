package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/example/order-fulfillment/internal/config"
	"github.com/example/order-fulfillment/internal/infrastructure/kafka"
	infraredis "github.com/example/order-fulfillment/internal/infrastructure/redis"
	"github.com/example/order-fulfillment/internal/notify"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.Load()

	logger.Info("[Notifier] ========================================")
	logger.Info("[Notifier] Order Fulfillment - Notification Service")
	logger.Info("[Notifier] ========================================")
	logger.Infof("[Notifier] Kafka: %v", cfg.KafkaBrokers)
	logger.Infof("[Notifier] Topic: %s", cfg.KafkaTopic)
	logger.Infof("[Notifier] Group: %s", cfg.KafkaGroupID)
	logger.Infof("[Notifier] SMTP: %s:%s", cfg.SMTPHost, cfg.SMTPPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis backs de-duplication of at-least-once deliveries. Without it
	// the notifier still runs, but a restart forgets what it has sent.
	var dedupe notify.Deduper
	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Fatal("[Notifier] Failed to connect to Redis")
		}
		defer client.Close()
		logger.Infof("[Notifier] Connected to Redis at %s", cfg.RedisAddr)
		dedupe = infraredis.NewDedupe(client, cfg.DedupeTTL)
	} else {
		logger.Warn("[Notifier] No REDIS_ADDR configured, de-duplication is per-process only")
		dedupe = notify.NewMemoryDeduper()
	}

	sender := notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)

	// The customer master lives outside this service; until that lookup
	// is integrated the directory starts empty and unknown customers are
	// skipped with a warning.
	directory := notify.NewStaticDirectory()

	service := notify.NewService(directory, sender, logger)
	handler := notify.NewHandler(service, dedupe, logger)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, logger)
	defer consumer.Close()

	go func() {
		logger.Info("[Notifier] Starting event consumer...")
		if err := consumer.Consume(ctx, handler.HandleMessage); err != nil {
			if ctx.Err() == nil {
				logger.WithError(err).Error("[Notifier] Consumer error")
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("[Notifier] Shutting down...")
	cancel()
}
