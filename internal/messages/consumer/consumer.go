// Package consumer runs the single background task that applies envelopes from the
// messages topic to the store.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"message-bridge/internal/messages"
	"message-bridge/internal/messages/processor"
	"message-bridge/internal/metrics"
	"message-bridge/internal/observability"

	kafkago "github.com/segmentio/kafka-go"
)

var (
	ErrBrokerReceive = errors.New("failed to receive from broker")
	ErrSubscription  = errors.New("failed to subscribe")
	ErrNotSubscribed = errors.New("consumer is not subscribed")
	ErrStopped       = errors.New("consumer is stopped")
)

// MessageReader is the subset of *kafkago.Reader the loop needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Subscriber opens a reader joined to the consumer group.
type Subscriber interface {
	Subscribe(ctx context.Context) (MessageReader, error)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context) (MessageReader, error)

func (f SubscriberFunc) Subscribe(ctx context.Context) (MessageReader, error) {
	return f(ctx)
}

// Applier persists a decoded envelope. Failures are carried in the Result.
type Applier interface {
	Apply(ctx context.Context, envelope messages.Envelope) processor.Result
}

// Config holds configuration for the consumer loop.
type Config struct {
	// Topic and GroupID are only used for logging; the reader is already bound to them.
	Topic   string
	GroupID string

	// FetchErrorPause is how long the loop waits after a failed fetch.
	FetchErrorPause time.Duration

	// ApplyTimeout bounds persistence and commit of one record.
	ApplyTimeout time.Duration
}

type Consumer struct {
	config     Config
	subscriber Subscriber
	applier    Applier
	logger     *observability.Logger
	metrics    *metrics.Metrics

	mu          sync.Mutex
	reader      MessageReader
	cancelFetch context.CancelFunc
	doneCh      chan struct{}
	stopped     bool
	stopOnce    sync.Once
}

func New(cfg Config, subscriber Subscriber, applier Applier, logger *observability.Logger, m *metrics.Metrics) *Consumer {
	if cfg.FetchErrorPause <= 0 {
		cfg.FetchErrorPause = time.Second
	}
	if cfg.ApplyTimeout <= 0 {
		cfg.ApplyTimeout = 10 * time.Second
	}
	return &Consumer{
		config:     cfg,
		subscriber: subscriber,
		applier:    applier,
		logger:     logger,
		metrics:    m,
	}
}

// Subscribe joins the consumer group. It must succeed before Start.
func (c *Consumer) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrStopped
	}
	if c.reader != nil {
		return nil
	}

	reader, err := c.subscriber.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("%w to topic %s: %w", ErrSubscription, c.config.Topic, err)
	}
	c.reader = reader

	c.logger.Info(c.logContext(ctx), "subscribed to topic")
	return nil
}

// Start processes records one at a time until ctx is cancelled, Stop is called or the
// reader is closed. Each decoded record is applied and then committed, in receive order.
// Records that are empty or cannot be decoded are skipped without a commit.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.reader == nil {
		c.mu.Unlock()
		return ErrNotSubscribed
	}
	if c.doneCh != nil {
		c.mu.Unlock()
		return errors.New("consumer already started")
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancelFetch = cancel
	c.doneCh = make(chan struct{})
	reader := c.reader
	doneCh := c.doneCh
	c.mu.Unlock()

	defer close(doneCh)
	defer cancel()

	logCtx := c.logContext(ctx)
	c.logger.Info(logCtx, "consumer started")

	for {
		msg, err := reader.FetchMessage(fetchCtx)
		if err != nil {
			if fetchCtx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info(logCtx, "consumer stopped")
				return nil
			}

			c.metrics.ConsumedRecords.WithLabelValues(metrics.RecordFetchError).Inc()
			c.logger.Error(logCtx, "kafka error", fmt.Errorf("%w: %w", ErrBrokerReceive, err))

			select {
			case <-fetchCtx.Done():
				c.logger.Info(logCtx, "consumer stopped")
				return nil
			case <-time.After(c.config.FetchErrorPause):
			}
			continue
		}

		c.handle(fetchCtx, reader, msg)
	}
}

// handle processes one record. Persistence and commit run on a context detached from
// cancellation and bounded by ApplyTimeout, so a stop request waits for both but never
// longer than the timeout.
func (c *Consumer) handle(ctx context.Context, reader MessageReader, msg kafkago.Message) {
	ctx = observability.WithFields(c.logContext(ctx),
		observability.Field{Key: "partition", Value: msg.Partition},
		observability.Field{Key: "offset", Value: msg.Offset},
	)

	if len(msg.Value) == 0 {
		c.metrics.ConsumedRecords.WithLabelValues(metrics.RecordEmpty).Inc()
		c.logger.Warn(ctx, "received record without payload")
		return
	}

	envelope, err := messages.Decode(msg.Value)
	if err != nil {
		c.metrics.ConsumedRecords.WithLabelValues(metrics.RecordMalformed).Inc()
		c.logger.WarnWithError(ctx, "failed to decode record", err)
		return
	}

	c.logger.Info(ctx, fmt.Sprintf("received %s", envelope))

	workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.ApplyTimeout)
	defer cancel()
	result := c.applier.Apply(workCtx, envelope)
	if !result.OK() {
		c.logger.Warn(ctx, fmt.Sprintf("record committed without being applied: %s", result))
	}
	c.metrics.ConsumedRecords.WithLabelValues(metrics.RecordApplied).Inc()

	if err := reader.CommitMessages(workCtx, msg); err != nil {
		c.metrics.CommitErrors.Inc()
		c.logger.Error(ctx, "failed to commit offset", err)
	}
}

// Stop cancels the pending fetch, waits for the record in flight and closes the reader.
// It is safe to call more than once and before Start.
func (c *Consumer) Stop() error {
	var closeErr error
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		cancel := c.cancelFetch
		doneCh := c.doneCh
		reader := c.reader
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if doneCh != nil {
			<-doneCh
		}
		if reader != nil {
			if err := reader.Close(); err != nil {
				closeErr = fmt.Errorf("failed to close reader: %w", err)
			}
		}
	})
	return closeErr
}

func (c *Consumer) logContext(ctx context.Context) context.Context {
	return observability.WithFields(ctx,
		observability.Field{Key: "topic", Value: c.config.Topic},
		observability.Field{Key: "consumer_group", Value: c.config.GroupID},
	)
}
