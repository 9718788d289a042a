package orderevents

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader is the subset of *kafka.Reader the consumer relies on.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewReader builds a group reader with manual commits.
func NewReader(brokers []string, group, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
}

// Consumer feeds messages from a Reader into a Handler one at a time.
type Consumer struct {
	reader  Reader
	handler *Handler
	logger  *slog.Logger
	backoff time.Duration
}

// NewConsumer wires a reader to the handler.
func NewConsumer(reader Reader, handler *Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{reader: reader, handler: handler, logger: logger, backoff: 200 * time.Millisecond}
}

// Run consumes until ctx is cancelled. Offsets are committed once a
// message is handled. Malformed messages are logged and committed; other
// failures are retried with a fixed backoff before moving on.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() { _ = c.reader.Close() }()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if !c.handle(ctx, m) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// handle retries m until it succeeds or is malformed. It returns false
// when ctx ends first.
func (c *Consumer) handle(ctx context.Context, m kafka.Message) bool {
	for {
		err := c.handler.Handle(ctx, m)
		if err == nil {
			return true
		}
		if errors.Is(err, ErrMalformed) {
			c.logger.Warn("skip malformed order event",
				slog.Int("partition", m.Partition),
				slog.Int64("offset", m.Offset),
				slog.Any("error", err))
			return true
		}
		c.logger.Error("handle order event",
			slog.Int("partition", m.Partition),
			slog.Int64("offset", m.Offset),
			slog.Any("error", err))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.backoff):
		}
	}
}
