package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"message-bridge/internal/bootstrap"
	"message-bridge/internal/config"
	"message-bridge/internal/observability"
)

func main() {
	logger := observability.NewLogger()
	defer logger.Sync()
	ctx := context.Background()

	logger.Info(ctx, "Starting message consumer worker...")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal(ctx, "failed to load configuration", err)
	}

	deps, err := bootstrap.Initialize(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize dependencies", err)
	}

	if err := deps.Consumer.Subscribe(ctx); err != nil {
		logger.Fatal(ctx, fmt.Sprintf("failed to subscribe to topic %s", cfg.Kafka.Topic), err)
	}

	logger.Info(ctx, fmt.Sprintf(`Message consumer worker configuration:
  - Kafka profile: %s
  - Kafka brokers: %v
  - Kafka topic: %s
  - Consumer group: %s`,
		cfg.Kafka.Profile, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ConsumerGroup))

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := deps.Consumer.Start(ctx); err != nil {
			logger.Error(ctx, "message consumer error", err)
		}
	}()

	select {
	case <-sigChan:
		logger.Info(ctx, "Received shutdown signal, stopping consumer...")
	case <-done:
		logger.Info(ctx, "Consumer exited, shutting down...")
	}
	cancel()
	<-done

	deps.Cleanup(ctx)
	logger.Info(ctx, "Message consumer worker stopped")
}
