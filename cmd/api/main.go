package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/order-fulfillment/internal/api"
	"github.com/example/order-fulfillment/internal/command"
	"github.com/example/order-fulfillment/internal/config"
	"github.com/example/order-fulfillment/internal/credit"
	"github.com/example/order-fulfillment/internal/deliverynote"
	"github.com/example/order-fulfillment/internal/domain/stock"
	"github.com/example/order-fulfillment/internal/infrastructure/store"
	"github.com/example/order-fulfillment/internal/outbox"
	"github.com/example/order-fulfillment/internal/query"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.Load()

	logger.Info("[API] ========================================")
	logger.Info("[API] Order Fulfillment - API")
	logger.Info("[API] ========================================")
	logger.Infof("[API] Store driver: %s", cfg.StoreDriver)

	var (
		st       store.Store
		requeuer api.Requeuer
		reader   outbox.Reader
	)
	switch cfg.StoreDriver {
	case config.StoreMemory:
		logger.Warn("[API] Memory store: data is lost on restart and the relay cannot see it")
		mem := store.NewMemoryStore()
		st, requeuer, reader = mem, mem, mem
	default:
		db, err := store.ConnectPostgres(cfg.PostgresURL)
		if err != nil {
			logger.WithError(err).Fatal("[API] Failed to connect to PostgreSQL")
		}
		defer db.Close()
		if err := store.EnsureSchema(context.Background(), db); err != nil {
			logger.WithError(err).Fatal("[API] Failed to ensure schema")
		}
		logger.Info("[API] Connected to PostgreSQL")
		pg := store.NewPostgresStore(db, cfg.LockTimeout)
		st, requeuer, reader = pg, pg, pg
	}

	// Static credit and price tables stand in until the customer-master
	// and catalog integrations land; order lines carry explicit prices.
	checker := credit.NewStaticChecker()
	pricer := credit.NewStaticPricer()

	ledger := stock.NewLedger(logger)
	allocator := stock.NewAllocator(ledger)
	notes := deliverynote.NewHandler(logger)
	dispatcher := command.NewDispatcher(allocator, notes)

	commands := command.NewHandler(st, dispatcher, ledger, checker, pricer, cfg.DiscountApprovalThreshold, logger)
	queries := query.NewHandler(st, reader)
	handlers := api.NewHandlers(commands, queries, requeuer, logger)
	router := api.NewRouter(handlers, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.APIPort),
		Handler: router,
	}

	go func() {
		logger.Infof("[API] Server started on :%d", cfg.APIPort)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("[API] Server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("[API] Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("[API] Shutdown error")
	}
}
