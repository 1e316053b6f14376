package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/thep200/gitee-crawler/cfg"
	"github.com/thep200/gitee-crawler/pkg/log"
)

// Producer handles Kafka message publishing
type Producer struct {
	Config *cfg.Config
	Logger log.Logger
	writer *kafka.Writer
}

// Message is the structure of messages sent to Kafka
type Message struct {
	Key   string
	Value interface{}
}

// NewProducer creates a producer bound to one topic
func NewProducer(config *cfg.Config, logger log.Logger, topic string) (*Producer, error) {
	if len(config.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("no kafka topic configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Kafka.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}

	return &Producer{
		Config: config,
		Logger: logger,
		writer: writer,
	}, nil
}

func (p *Producer) Topic() string {
	return p.writer.Topic
}

// Publish sends a message to the Kafka topic
func (p *Producer) Publish(ctx context.Context, key string, value interface{}) error {
	return p.PublishBatch(ctx, []Message{{Key: key, Value: value}})
}

// PublishBatch writes all messages in one call, either every message is
// acknowledged or an error is returned.
func (p *Producer) PublishBatch(ctx context.Context, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	now := time.Now()
	batch := make([]kafka.Message, 0, len(messages))
	for _, m := range messages {
		jsonBytes, err := json.Marshal(m.Value)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		batch = append(batch, kafka.Message{
			Key:   []byte(m.Key),
			Value: jsonBytes,
			Time:  now,
		})
	}

	if err := p.writer.WriteMessages(ctx, batch...); err != nil {
		return fmt.Errorf("failed to write %d messages to kafka topic %s: %w", len(batch), p.writer.Topic, err)
	}
	return nil
}

// Close closes the Kafka writer
func (p *Producer) Close() error {
	return p.writer.Close()
}
