// cmd/server/main.go
package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/leafline/messaging-core/internal/compliance"
	"github.com/leafline/messaging-core/internal/config"
	"github.com/leafline/messaging-core/internal/delivery"
	"github.com/leafline/messaging-core/internal/httpapi"
	"github.com/leafline/messaging-core/internal/logging"
	"github.com/leafline/messaging-core/internal/provider"
	"github.com/leafline/messaging-core/internal/quiethours"
	"github.com/leafline/messaging-core/internal/queue"
	"github.com/leafline/messaging-core/internal/reconcile"
	"github.com/leafline/messaging-core/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(logging.Config{Component: "server", Level: cfg.Log.Level})
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := store.Open(cfg.Database.URL)
	if err != nil {
		logger.Fatal("store: open", zap.Error(err))
	}
	defer db.Close()
	st := store.New(db)

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("redis: parse url", zap.Error(err))
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	q := queue.New(rdb, queue.Config{
		RateCapacity:   int64(cfg.Queue.RateMax),
		RateIntervalMs: int64(cfg.Queue.RateIntervalMs),
	})

	pubKey, err := cfg.ProviderPublicKey()
	if err != nil {
		logger.Fatal("provider: public key", zap.Error(err))
	}
	providerClient := provider.New(provider.Config{
		BaseURL:            cfg.Provider.BaseURL,
		APIKey:             cfg.Provider.APIKey,
		CostPerSegmentCts:  cfg.Provider.CostPerSegmentCents,
		WebhookPublicKey:   pubKey,
		MessagingProfileID: cfg.Provider.MessagingProfileID,
	})

	gate := compliance.New(st, compliance.Config{
		QuietHours:        quiethours.Window{Start: cfg.Compliance.QuietHours.Start, End: cfg.Compliance.QuietHours.End},
		MaxMessagesPerDay: cfg.Compliance.MaxMessagesPerDayPerRecipient,
		DefaultTimezone:   "America/Los_Angeles",
	})

	submitter := &delivery.Submitter{Gate: gate, Queue: q, Logger: logger}
	reconciler := reconcile.New(st, providerClient)
	reconciler.OptOutKeywords = cfg.Compliance.OptOutKeywords
	reconciler.OptInKeywords = cfg.Compliance.OptInKeywords

	handlers := httpapi.New(submitter, q, reconciler, providerClient, st, logger)
	r := httpapi.NewRouter(handlers)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("server: listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal("server: exited", zap.Error(err))
	}
}
