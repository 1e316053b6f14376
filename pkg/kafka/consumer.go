package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/thep200/gitee-crawler/cfg"
	"github.com/thep200/gitee-crawler/pkg/log"
)

// Handler processes the value of one message
type Handler func(ctx context.Context, value []byte) error

// Consumer handles Kafka message consumption
type Consumer struct {
	Config   *cfg.Config
	Logger   log.Logger
	reader   *kafka.Reader
	handlers map[string]Handler
}

// NewConsumer creates a consumer in the configured group
func NewConsumer(config *cfg.Config, logger log.Logger, topic string) (*Consumer, error) {
	if len(config.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("no kafka topic configured")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Kafka.Brokers,
		Topic:          topic,
		GroupID:        config.Kafka.GroupID,
		MinBytes:       10e3,        // 10KB
		MaxBytes:       10e6,        // 10MB
		MaxWait:        time.Second, // Maximum amount of time to wait for new data
		StartOffset:    kafka.FirstOffset,
		RetentionTime:  7 * 24 * time.Hour, // 1 week
		CommitInterval: time.Second,        // Flush commits to Kafka every second
	})

	return &Consumer{
		Config:   config,
		Logger:   logger,
		reader:   reader,
		handlers: make(map[string]Handler),
	}, nil
}

// RegisterHandler registers a message handler for a specific message key
func (c *Consumer) RegisterHandler(key string, handler Handler) {
	c.handlers[key] = handler
}

// Start consumes until ctx is done
func (c *Consumer) Start(ctx context.Context) error {
	c.Logger.Info(ctx, "Starting Kafka consumer for topic: %s", c.reader.Config().Topic)

	for {
		select {
		case <-ctx.Done():
			return c.reader.Close()
		default:
			message, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return c.reader.Close()
				}
				c.Logger.Error(ctx, "Error reading message: %v", err)
				continue
			}

			key := string(message.Key)
			handler, exists := c.handlers[key]
			if !exists {
				c.Logger.Warn(ctx, "No handler registered for message with key: %s", key)
				continue
			}
			if err := handler(ctx, message.Value); err != nil {
				c.Logger.Error(ctx, "Error handling message with key %s at offset %d: %v", key, message.Offset, err)
			} else {
				c.Logger.Debug(ctx, "Processed message with key %s at offset %d", key, message.Offset)
			}
		}
	}
}

// Close closes the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
