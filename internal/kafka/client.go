// Package kafka builds segmentio/kafka-go clients for the configured deployment profile.
package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"message-bridge/internal/config"
	"message-bridge/internal/observability"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/scram"
)

var ErrTopicUnavailable = errors.New("topic unavailable")

const dialTimeout = 10 * time.Second

// Client holds the connection settings shared by writers, readers and admin calls.
type Client struct {
	config    config.KafkaConfig
	dialer    *kafkago.Dialer
	transport *kafkago.Transport
	logger    *observability.Logger
}

// NewClient resolves the profile into a dialer (readers, admin) and a transport (writers).
func NewClient(cfg config.KafkaConfig, logger *observability.Logger) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}

	mechanism, tlsConfig, err := securityFor(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		config: cfg,
		dialer: &kafkago.Dialer{
			Timeout:       dialTimeout,
			DualStack:     true,
			SASLMechanism: mechanism,
			TLS:           tlsConfig,
		},
		transport: &kafkago.Transport{
			DialTimeout: dialTimeout,
			SASL:        mechanism,
			TLS:         tlsConfig,
		},
		logger: logger,
	}, nil
}

// securityFor returns the SASL mechanism and TLS settings of a profile.
// The local profile talks plaintext to the brokers.
func securityFor(cfg config.KafkaConfig) (sasl.Mechanism, *tls.Config, error) {
	switch cfg.Profile {
	case config.ProfileLocal, "":
		return nil, nil, nil
	case config.ProfileHosted:
		mechanism, err := scram.Mechanism(scram.SHA256, cfg.SASLUsername, cfg.SASLPassword)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create SCRAM-SHA-256 mechanism: %w", err)
		}
		return mechanism, &tls.Config{MinVersion: tls.VersionTLS12}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrInvalidProfile, cfg.Profile)
	}
}

// Config returns the broker configuration the client was built from.
func (c *Client) Config() config.KafkaConfig {
	return c.config
}

// NewWriter creates a synchronous writer. The topic is set per message so one writer can
// serve any topic; records with equal keys land on the same partition.
func (c *Client) NewWriter() *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(c.config.Brokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    1,
		BatchTimeout: time.Millisecond,
		WriteTimeout: c.config.PublishTimeout,
		Async:        false,
		// Hosted clusters manage their topics; locally the first publish may create it.
		AllowAutoTopicCreation: c.config.Profile != config.ProfileHosted,
		Transport:              c.transport,
		ErrorLogger:            c.errorLogger("kafka writer"),
	}
}

// NewReader creates a consumer-group reader for the configured topic. With a non-zero
// CommitInterval, CommitMessages only records the offset and the reader flushes it in the
// background.
func (c *Client) NewReader() *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:           c.config.Brokers,
		Topic:             c.config.Topic,
		GroupID:           c.config.ConsumerGroup,
		Dialer:            c.dialer,
		MinBytes:          1,
		MaxBytes:          10e6, // 10MB
		MaxWait:           time.Second,
		StartOffset:       kafkago.FirstOffset,
		CommitInterval:    c.config.CommitInterval,
		SessionTimeout:    c.config.SessionTimeout,
		HeartbeatInterval: c.config.SessionTimeout / 3,
		GroupBalancers: []kafkago.GroupBalancer{
			kafkago.RangeGroupBalancer{},
		},
		ErrorLogger: c.errorLogger("kafka reader"),
	})
}

// Subscribe verifies the topic can be reached and returns a reader joined to the
// consumer group.
func (c *Client) Subscribe(ctx context.Context) (*kafkago.Reader, error) {
	if err := c.CheckTopic(ctx, c.config.Topic); err != nil {
		return nil, err
	}
	return c.NewReader(), nil
}

// CheckTopic dials the first reachable broker and reads the topic's partitions.
func (c *Client) CheckTopic(ctx context.Context, topic string) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(topic)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTopicUnavailable, topic, err)
	}
	if len(partitions) == 0 {
		return fmt.Errorf("%w: %s has no partitions", ErrTopicUnavailable, topic)
	}
	return nil
}

// EnsureTopic creates the topic through the cluster controller. An existing topic is not an error.
func (c *Client) EnsureTopic(ctx context.Context, topic TopicConfig) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to look up kafka controller: %w", err)
	}

	controllerConn, err := c.dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic.Name,
		NumPartitions:     topic.NumPartitions,
		ReplicationFactor: topic.ReplicationFactor,
		ConfigEntries: []kafkago.ConfigEntry{
			{ConfigName: "retention.ms", ConfigValue: topic.retentionMs()},
		},
	})
	if err != nil && !errors.Is(err, kafkago.TopicAlreadyExists) {
		return fmt.Errorf("failed to create topic %s: %w", topic.Name, err)
	}

	ctx = observability.WithFields(ctx, topic.logFields()...)
	c.logger.Info(ctx, fmt.Sprintf("topic %s is ready", topic.Name))
	return nil
}

func (c *Client) dial(ctx context.Context) (*kafkago.Conn, error) {
	var errs []error
	for _, broker := range c.config.Brokers {
		conn, err := c.dialer.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", broker, err))
	}
	return nil, fmt.Errorf("failed to dial kafka: %w", errors.Join(errs...))
}

func (c *Client) errorLogger(component string) kafkago.Logger {
	ctx := observability.WithFields(context.Background(),
		observability.Field{Key: "component", Value: component},
	)
	return kafkago.LoggerFunc(func(msg string, args ...interface{}) {
		c.logger.Warn(ctx, fmt.Sprintf(msg, args...))
	})
}
