package main

import (
	"context"
	"fmt"

	"message-bridge/internal/bootstrap"
	"message-bridge/internal/config"
	"message-bridge/internal/observability"
	"message-bridge/internal/server"
)

func main() {
	logger := observability.NewLogger()
	defer logger.Sync()
	ctx := context.Background()

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

	srv := server.New(cfg, deps, logger)
	srv.Setup()

	if err := srv.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start server", err)
	}

	if err := srv.WaitForShutdown(ctx); err != nil {
		logger.Fatal(ctx, "failed to shutdown server", err)
	}
}
