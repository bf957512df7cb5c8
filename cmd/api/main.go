package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/config"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/httpx"
	kafkax "github.com/normalkidtim/tiger-mango-inventory-sub000/internal/kafka"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/orders"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/postgres"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/redisx"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/stock"
	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/stocklog"
)

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

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producers, one per topic
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, logger)
	pCompleted := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCompleted, 1024, logger)
	pRejected := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockRejected, 1024, logger)
	pVoided := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderVoided, 1024, logger)
	producers := []*kafkax.Producer{pCreated, pCompleted, pRejected, pVoided}
	for _, p := range producers {
		p.Start(ctx)
	}

	// Repos & services
	orderRepo := &orders.Repo{DB: db}
	stockRepo := &stock.Repo{DB: db}
	logRepo := &stocklog.Repo{DB: db}
	svc := &stock.Service{
		Orders:         orderRepo,
		Stock:          stockRepo,
		Redis:          rdb,
		ProducerOK:     pCompleted,
		ProducerReject: pRejected,
		Log:            logger,
		ServiceName:    cfg.ServiceName,
	}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Repo:         orderRepo,
		Stock:        svc,
		Producer:     pCreated,
		ProducerVoid: pVoided,
		Redis:        rdb,
		Log:          logger,
		Service:      cfg.ServiceName,
	}
	oh.Register(router)
	sh := &httpx.StockHandler{Stock: stockRepo, Logs: logRepo, Redis: rdb, Log: logger}
	sh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	for _, p := range producers {
		p.Close() // close inbox -> flush & close writer
	}
	cancel()
	for _, p := range producers {
		p.WaitClosed()
	}
}
