package orderevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

const (
	dedupKey = "orderevents:dedup:%s"
	dedupTTL = 48 * time.Hour
)

// ErrMalformed marks messages that can never be processed.
var ErrMalformed = errors.New("orderevents: malformed message")

// Bumper invalidates cached statistics.
type Bumper interface {
	Bump(ctx context.Context) error
}

// Handler turns order events into cache invalidations. Redeliveries of an
// event ID already handled are skipped when a Redis client is configured.
type Handler struct {
	cache  Bumper
	redis  *redis.Client
	logger *slog.Logger
}

// NewHandler constructs the event handler. redis may be nil.
func NewHandler(cache Bumper, client *redis.Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cache: cache, redis: client, logger: logger}
}

// Handle processes one message. A nil return means the offset may be
// committed.
func (h *Handler) Handle(ctx context.Context, m kafka.Message) error {
	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.EventType == "" {
		return fmt.Errorf("%w: missing event_type", ErrMalformed)
	}
	if !affectsStats(env.EventType) {
		return nil
	}

	attrs := []any{
		slog.String("event_type", env.EventType),
		slog.String("event_id", env.EventID),
		slog.Int64("offset", m.Offset),
	}
	if env.EventType == EventSubOrderStatusChanged && len(env.Payload) > 0 {
		var change SubOrderStatusChangedPayload
		if err := json.Unmarshal(env.Payload, &change); err != nil {
			return fmt.Errorf("%w: status change payload: %v", ErrMalformed, err)
		}
		// A transition to the same status leaves every report untouched.
		if change.From != "" && change.From == change.To {
			return nil
		}
		attrs = append(attrs,
			slog.String("sub_order_id", change.SubOrderID),
			slog.String("from", change.From),
			slog.String("to", change.To))
	}

	if h.redis != nil && env.EventID != "" {
		key := fmt.Sprintf(dedupKey, env.EventID)
		fresh, err := h.redis.SetNX(ctx, key, "1", dedupTTL).Result()
		if err != nil {
			return fmt.Errorf("orderevents: dedup: %w", err)
		}
		if !fresh {
			return nil
		}
	}

	if err := h.cache.Bump(ctx); err != nil {
		if h.redis != nil && env.EventID != "" {
			_ = h.redis.Del(ctx, fmt.Sprintf(dedupKey, env.EventID)).Err()
		}
		return fmt.Errorf("orderevents: bump stats cache: %w", err)
	}
	h.logger.Debug("stats cache invalidated", attrs...)
	return nil
}
