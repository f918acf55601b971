package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/leafline/messaging-core/internal/campaign"
	"github.com/leafline/messaging-core/internal/compliance"
	"github.com/leafline/messaging-core/internal/config"
	"github.com/leafline/messaging-core/internal/delivery"
	"github.com/leafline/messaging-core/internal/logging"
	"github.com/leafline/messaging-core/internal/provider"
	"github.com/leafline/messaging-core/internal/quiethours"
	"github.com/leafline/messaging-core/internal/queue"
	"github.com/leafline/messaging-core/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(logging.Config{Component: "worker", Level: cfg.Log.Level})
	if err != nil {
		panic(err)
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
	worker := &delivery.Worker{Store: st, Gate: gate, Provider: providerClient, Submitter: submitter, Logger: logger}
	expander := &campaign.Expander{Store: st, Submitter: submitter}
	campaignWorker := &campaign.Worker{Expander: expander, Logger: logger}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q.RunWorkers(ctx, logger, queue.WorkerConfig{
		Kind:          delivery.SMSQueueKind,
		Concurrency:   cfg.Queue.SMSConcurrency,
		AttemptsMax:   cfg.Queue.AttemptsMax,
		BackoffBaseMs: cfg.Queue.BackoffBaseMs,
	}, worker.HandleJob)

	q.RunWorkers(ctx, logger, queue.WorkerConfig{
		Kind:          campaign.QueueKind,
		Concurrency:   cfg.Queue.CampaignConcurrency,
		AttemptsMax:   cfg.Queue.AttemptsMax,
		BackoffBaseMs: cfg.Queue.BackoffBaseMs,
	}, campaignWorker.HandleJob)

	go q.RunScheduler(ctx, delivery.SMSQueueKind, time.Second)
	go q.RunScheduler(ctx, campaign.QueueKind, time.Second)

	logger.Info("worker: running",
		zap.Int("sms_concurrency", cfg.Queue.SMSConcurrency),
		zap.Int("campaign_concurrency", cfg.Queue.CampaignConcurrency),
	)
	<-ctx.Done()
	logger.Info("worker: shutting down")
	os.Exit(0)
}
