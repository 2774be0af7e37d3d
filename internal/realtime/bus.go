package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/observability"
)

// Delivery is a fan-out request shared between nodes.
type Delivery struct {
	ID      string          `json:"id"`
	Source  string          `json:"source"`
	Event   string          `json:"event"`
	Targets []Target        `json:"targets"`
	Frame   json.RawMessage `json:"frame"`
	SentAt  time.Time       `json:"sent_at"`
}

// Bus carries deliveries to the other nodes of a deployment.
type Bus interface {
	Name() string
	Publish(ctx context.Context, delivery Delivery) error
	Subscribe(ctx context.Context, handle func(Delivery)) error
}

// RedisBus publishes deliveries on a Redis pub/sub channel.
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

// NewRedisBus creates a bus on channel "<base>:deliveries".
func NewRedisBus(client *redis.Client, base string, logger zerolog.Logger) *RedisBus {
	return &RedisBus{
		client:  client,
		channel: base + ":deliveries",
		logger:  logger.With().Str("component", "redis_bus").Logger(),
	}
}

func (b *RedisBus) Name() string { return "redis" }

// Channel returns the pub/sub channel name.
func (b *RedisBus) Channel() string { return b.channel }

func (b *RedisBus) Publish(ctx context.Context, delivery Delivery) error {
	payload, err := json.Marshal(delivery)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		observability.BusMessages().WithLabelValues(b.Name(), "failed").Inc()
		return err
	}
	observability.BusMessages().WithLabelValues(b.Name(), "published").Inc()
	return nil
}

// Subscribe confirms the subscription, then consumes in the background until ctx is done.
func (b *RedisBus) Subscribe(ctx context.Context, handle func(Delivery)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	go func() {
		defer func() {
			_ = pubsub.Close()
		}()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
					return
				}
				b.logger.Error().Err(err).Msg("delivery subscription closed")
				return
			}
			decodeDelivery(b.logger, b.Name(), []byte(msg.Payload), handle)
		}
	}()

	return nil
}

// NATSBus publishes deliveries on a NATS subject. Every node subscribes without a queue group.
type NATSBus struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSBus creates a bus on subject "<base>.deliveries" with ':' mapped to '.'.
func NewNATSBus(conn *nats.Conn, base string, logger zerolog.Logger) *NATSBus {
	return &NATSBus{
		conn:    conn,
		subject: strings.ReplaceAll(base, ":", ".") + ".deliveries",
		logger:  logger.With().Str("component", "nats_bus").Logger(),
	}
}

func (b *NATSBus) Name() string { return "nats" }

// Subject returns the NATS subject.
func (b *NATSBus) Subject() string { return b.subject }

func (b *NATSBus) Publish(_ context.Context, delivery Delivery) error {
	payload, err := json.Marshal(delivery)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.subject, payload); err != nil {
		observability.BusMessages().WithLabelValues(b.Name(), "failed").Inc()
		return err
	}
	observability.BusMessages().WithLabelValues(b.Name(), "published").Inc()
	return nil
}

func (b *NATSBus) Subscribe(ctx context.Context, handle func(Delivery)) error {
	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		decodeDelivery(b.logger, b.Name(), msg.Data, handle)
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain delivery subscription")
		}
	}()

	return nil
}

func decodeDelivery(logger zerolog.Logger, bus string, data []byte, handle func(Delivery)) {
	var delivery Delivery
	if err := json.Unmarshal(data, &delivery); err != nil {
		logger.Warn().Err(err).Msg("invalid delivery on bus")
		observability.BusMessages().WithLabelValues(bus, "invalid").Inc()
		return
	}
	observability.BusMessages().WithLabelValues(bus, "received").Inc()
	handle(delivery)
}
