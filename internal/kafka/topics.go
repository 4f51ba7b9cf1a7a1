package kafka

import (
	"strconv"
	"time"

	"message-bridge/internal/observability"
)

// Topic and group defaults for the message bridge.
const (
	TopicMessages = "messages"

	ConsumerGroupMessages = "message-bridge"

	// DefaultPartitionKey routes every record to the same partition.
	DefaultPartitionKey = "1"
)

// TopicConfig represents Kafka topic configuration
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionHours    int
	Description       string
}

// MessagesTopicConfig returns the configuration used when the worker creates the topic itself.
// A single partition matches the constant partition key; more partitions only help with the
// message_id key strategy.
func MessagesTopicConfig(name string) TopicConfig {
	return TopicConfig{
		Name:              name,
		NumPartitions:     1,
		ReplicationFactor: 1,
		RetentionHours:    168, // 7 days
		Description:       "Create/update/delete envelopes applied to the messages table",
	}
}

func (t TopicConfig) retentionMs() string {
	return strconv.FormatInt((time.Duration(t.RetentionHours) * time.Hour).Milliseconds(), 10)
}

func (t TopicConfig) logFields() []observability.Field {
	return []observability.Field{
		{Key: "topic", Value: t.Name},
		{Key: "partitions", Value: t.NumPartitions},
		{Key: "replication_factor", Value: t.ReplicationFactor},
		{Key: "description", Value: t.Description},
	}
}
