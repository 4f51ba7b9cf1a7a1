package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"message-bridge/internal/config"
	"message-bridge/internal/kafka"
	"message-bridge/internal/messages/consumer"
	messageHandler "message-bridge/internal/messages/handler"
	"message-bridge/internal/messages/processor"
	"message-bridge/internal/messages/producer"
	"message-bridge/internal/metrics"
	"message-bridge/internal/observability"
	"message-bridge/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store    store.Store
	Logger   *observability.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	// Broker
	KafkaClient *kafka.Client
	Producer    *producer.Producer
	Consumer    *consumer.Consumer

	// Handlers
	MessageHandler messageHandler.Handler
}

// Initialize sets up all application dependencies. The consumer is created but not
// subscribed; callers decide whether a failed subscription is fatal.
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	var err error
	deps.Store, err = store.New(cfg.Database.ConnectionString(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := deps.Store.Migrate(ctx); err != nil {
		deps.Store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	deps.Registry = prometheus.NewRegistry()
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps.Metrics = metrics.New(deps.Registry)

	deps.KafkaClient, err = kafka.NewClient(cfg.Kafka, logger)
	if err != nil {
		deps.Store.Close()
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	if cfg.Kafka.CreateTopic {
		if err := deps.KafkaClient.EnsureTopic(ctx, kafka.MessagesTopicConfig(cfg.Kafka.Topic)); err != nil {
			deps.Store.Close()
			return nil, fmt.Errorf("failed to create topic: %w", err)
		}
	}

	deps.Producer = producer.New(
		deps.KafkaClient.NewWriter(),
		producer.ConfigFromKafka(cfg.Kafka),
		logger,
		deps.Metrics,
	)

	messageProcessor := processor.New(&deps.Store, logger, deps.Metrics)

	deps.Consumer = consumer.New(
		consumer.Config{
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.ConsumerGroup,
		},
		Subscriber(deps.KafkaClient),
		&messageProcessor,
		logger,
		deps.Metrics,
	)

	deps.MessageHandler = messageHandler.New(deps.Producer, logger)

	logger.Info(ctx, fmt.Sprintf("bridge initialized: profile=%s brokers=%v topic=%s group=%s partition_key=%s",
		cfg.Kafka.Profile, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ConsumerGroup, cfg.Kafka.PartitionKey))

	return deps, nil
}

// Subscriber adapts the kafka client to the consumer's Subscriber.
func Subscriber(client *kafka.Client) consumer.Subscriber {
	return consumer.SubscriberFunc(func(ctx context.Context) (consumer.MessageReader, error) {
		reader, err := client.Subscribe(ctx)
		if err != nil {
			return nil, err
		}
		return reader, nil
	})
}

// MetricsHandler exposes the registry in the Prometheus text format
func (d *Dependencies) MetricsHandler() http.Handler {
	if d.Registry == nil {
		return nil
	}
	return promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{Registry: d.Registry})
}

// Cleanup releases broker and database handles
func (d *Dependencies) Cleanup(ctx context.Context) {
	if d.Consumer != nil {
		if err := d.Consumer.Stop(); err != nil {
			d.Logger.Error(ctx, "failed to stop consumer", err)
		}
	}
	d.CleanupWithoutConsumer(ctx)
}

// CleanupWithoutConsumer releases the producer and the database without waiting for
// the consumer, for when the consumer is stuck on a record.
func (d *Dependencies) CleanupWithoutConsumer(ctx context.Context) {
	if d.Producer != nil {
		if err := d.Producer.Close(); err != nil {
			d.Logger.Error(ctx, "failed to close producer", err)
		}
	}
	if d.Store.DB() != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.Error(ctx, "failed to close database", err)
		}
	}
}
