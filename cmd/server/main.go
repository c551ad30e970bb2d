package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"keeper.share/config"
	"keeper.share/internal/api"
	"keeper.share/internal/janitor"
	"keeper.share/internal/sharing"
	"keeper.share/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config error:", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("logger error:", err)
	}
	defer logger.Sync()

	backend := initBackend(cfg)
	defer backend.Close()

	var records store.RecordStore = backend
	if cfg.Grants.EncryptionKey != "" {
		records = store.NewEncryptedRecords(backend, cfg.Grants.EncryptionKey)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	service := sharing.NewService(backend, records, cfg.Grants.MaxTTL,
		logger.Named("sharing"), sharing.NewMetrics(registry))

	sweeper := janitor.New(backend, cfg.Janitor.Interval, cfg.Janitor.BatchSize,
		logger.Named("janitor"), janitor.NewMetrics(registry))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Run(ctx)

	router := api.SetupRouter(service, records, cfg.Auth.JWTSecret, registry)

	logger.Info("server starting",
		zap.String("addr", cfg.Addr()),
		zap.String("store", cfg.Store.Type))

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Fatal(server.ListenAndServe())
}

func initBackend(cfg *config.Config) store.Backend {
	switch cfg.Store.Type {
	case "redis":
		st, err := store.NewRedisStore(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err != nil {
			log.Fatal("redis connection failed:", err)
		}
		return st
	case "sqlite":
		st, err := store.NewSQLiteStore(cfg.Store.SQLite.Path)
		if err != nil {
			log.Fatal("sqlite open failed:", err)
		}
		return st
	default:
		return store.NewMemoryStore()
	}
}
