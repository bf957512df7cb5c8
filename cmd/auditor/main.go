package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/config"
	kafkax "github.com/normalkidtim/tiger-mango-inventory-sub000/internal/kafka"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/orders"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/postgres"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/redisx"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/stocklog"
)

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	aud := &stocklog.Auditor{
		Logs:        &stocklog.Repo{DB: db},
		Redis:       rdb,
		Log:         logger,
		ServiceName: cfg.ServiceName + "-auditor",
	}

	group := getenv("AUDITOR_GROUP", "stock-auditor")
	workers := mustAtoi(os.Getenv("AUDITOR_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderCompleted, workers, logger)

	go func() {
		logger.Info("auditor consumer started",
			zap.String("group", group), zap.String("topic", orders.TopicOrderCompleted), zap.Int("workers", workers))
		if err := cons.Start(ctx, aud.HandleOrderCompleted); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down consumer")
	cancel()
}
