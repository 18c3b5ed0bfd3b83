package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-shop-settlement/internal/config"
	"github.com/ariefcatur/go-shop-settlement/internal/events"
	kafkax "github.com/ariefcatur/go-shop-settlement/internal/kafka"
	"github.com/ariefcatur/go-shop-settlement/internal/logging"
	"github.com/ariefcatur/go-shop-settlement/internal/orders"
	"github.com/ariefcatur/go-shop-settlement/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.ServiceName+"-events", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	projector := &events.Projector{Redis: rdb, Name: cfg.EventsGroup, Log: log}

	// Consumer
	topics := []string{orders.TopicOrderPlaced, orders.TopicOrderStatusChanged}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.EventsGroup, topics, cfg.EventsWorkers, log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info().Str("group", cfg.EventsGroup).Strs("topics", topics).Int("workers", cfg.EventsWorkers).
			Msg("event projector started")
		if err := cons.Start(ctx, projector.Handle); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down consumer...")
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("consumer did not stop in time")
	}
}
