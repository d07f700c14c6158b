// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. The consumer groups messages into bounded batches
// (max count or max delay, whichever is hit first) and hands them to a
// BatchHandler; offsets are only committed after the whole batch has been
// processed, so a crashed or failed batch is redelivered in full.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/contentpipe/search-projector/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Message is a single consumed Kafka message.
type Message struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
}

// BatchHandler processes one ordered batch of messages. Returning an error
// means the whole batch failed and must be redelivered; no message in it
// may be considered processed.
type BatchHandler func(ctx context.Context, msgs []Message) error

// BatchConsumerOptions controls batch sizing and failure handling.
type BatchConsumerOptions struct {
	// MaxEvents is the largest batch handed to the handler.
	MaxEvents int
	// MaxDelay bounds how long a partial batch waits before being flushed.
	MaxDelay time.Duration
	// MaxDeliveries is how many times a failing batch is re-attempted
	// in-process before being routed to the dead-letter producer.
	MaxDeliveries int
	// DeadLetter, if non-nil, receives the raw messages of batches that
	// exhausted MaxDeliveries. When nil such batches stop the consumer.
	DeadLetter *Producer
}

// BatchConsumer reads messages from a Kafka topic, accumulates them into
// ordered batches, and dispatches each batch to a BatchHandler.
type BatchConsumer struct {
	reader  *kafka.Reader
	opts    BatchConsumerOptions
	logger  *slog.Logger
	handler BatchHandler
}

// NewBatchConsumer creates a BatchConsumer for the given topic and handler.
func NewBatchConsumer(cfg config.KafkaConfig, topic string, opts BatchConsumerOptions, handler BatchHandler) *BatchConsumer {
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = 100
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = time.Second
	}
	if opts.MaxDeliveries <= 0 {
		opts.MaxDeliveries = 3
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})

	return &BatchConsumer{
		reader:  r,
		opts:    opts,
		logger:  slog.Default().With("component", "batch-consumer", "topic", topic),
		handler: handler,
	}
}

// Start enters the consume loop, fetching and processing batches until ctx
// is cancelled.
func (c *BatchConsumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started",
		"max_events", c.opts.MaxEvents,
		"max_delay", c.opts.MaxDelay,
	)
	for {
		batch, raw, err := c.nextBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return c.reader.Close()
			}
			c.logger.Error("failed to fetch batch", "error", err)
			continue
		}
		if len(batch) == 0 {
			continue
		}
		if err := c.deliver(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return c.reader.Close()
			}
			return fmt.Errorf("delivering batch of %d: %w", len(batch), err)
		}
		if err := c.reader.CommitMessages(ctx, raw...); err != nil {
			c.logger.Error("failed to commit batch",
				"size", len(raw),
				"error", err,
			)
		}
	}
}

// nextBatch blocks for the first message, then keeps fetching until the
// batch is full or MaxDelay has elapsed since the first message arrived.
func (c *BatchConsumer) nextBatch(ctx context.Context) ([]Message, []kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, nil, err
	}
	batch := make([]Message, 0, c.opts.MaxEvents)
	raw := make([]kafka.Message, 0, c.opts.MaxEvents)
	batch = append(batch, fromKafka(first))
	raw = append(raw, first)

	deadline, cancel := context.WithTimeout(ctx, c.opts.MaxDelay)
	defer cancel()
	for len(batch) < c.opts.MaxEvents {
		msg, err := c.reader.FetchMessage(deadline)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break
			}
			if ctx.Err() != nil {
				// Shutting down; process what we already have.
				break
			}
			return batch, raw, err
		}
		batch = append(batch, fromKafka(msg))
		raw = append(raw, msg)
	}
	c.logger.Debug("batch assembled",
		"size", len(batch),
		"first_offset", raw[0].Offset,
		"partition", raw[0].Partition,
	)
	return batch, raw, nil
}

// deliver hands the batch to the handler, re-attempting a failed batch up
// to MaxDeliveries times before routing it to the dead-letter topic.
func (c *BatchConsumer) deliver(ctx context.Context, batch []Message) error {
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxDeliveries; attempt++ {
		lastErr = c.handler(ctx, batch)
		if lastErr == nil {
			return nil
		}
		c.logger.Error("batch processing failed",
			"attempt", attempt,
			"max_deliveries", c.opts.MaxDeliveries,
			"size", len(batch),
			"error", lastErr,
		)
		select {
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.opts.DeadLetter == nil {
		return lastErr
	}
	events := make([]Event, 0, len(batch))
	for _, msg := range batch {
		events = append(events, Event{Key: string(msg.Key), Value: json.RawMessage(msg.Value)})
	}
	if err := c.opts.DeadLetter.PublishBatch(ctx, events); err != nil {
		return fmt.Errorf("dead-lettering batch after %v: %w", lastErr, err)
	}
	c.logger.Warn("batch dead-lettered",
		"size", len(batch),
		"error", lastErr,
	)
	return nil
}

// Close closes the underlying Kafka reader.
func (c *BatchConsumer) Close() error {
	return c.reader.Close()
}

func fromKafka(msg kafka.Message) Message {
	return Message{
		Key:       msg.Key,
		Value:     msg.Value,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
