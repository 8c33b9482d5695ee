package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/globetrotter/realtime/src/telemetry"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RedisBridge relays backend events published on Redis to local sessions.
// Frames received from WebSocket clients are never published back.
type RedisBridge struct {
	client     *redis.Client
	channel    string
	instanceID string
	target     Target
	logger     zerolog.Logger
	metrics    *telemetry.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisBridge creates a bridge listening on cfg.Prefix+"events".
func NewRedisBridge(cfg *RedisConfig, target Target, logger zerolog.Logger) *RedisBridge {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisBridge{
		client:     client,
		channel:    cfg.Prefix + "events",
		instanceID: uuid.New().String(),
		target:     target,
		logger:     logger.With().Str("component", "redis-bridge").Logger(),
		metrics:    telemetry.GetMetrics(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to the events channel and begins relaying messages.
func (b *RedisBridge) Start() error {
	if err := b.client.Ping(b.ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	sub := b.client.Subscribe(b.ctx, b.channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(b.ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	b.mu.Lock()
	b.active = true
	b.mu.Unlock()

	b.wg.Add(1)
	go b.listen(sub)

	b.logger.Info().
		Str("instance_id", b.instanceID).
		Str("channel", b.channel).
		Msg("redis bridge started")
	return nil
}

// Publish sends an envelope to every listening server except this one.
func (b *RedisBridge) Publish(ctx context.Context, env Envelope) error {
	data, err := b.encode(env)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

// encode validates env and tags it with this instance's id unless the
// producer already set one.
func (b *RedisBridge) encode(env Envelope) ([]byte, error) {
	if err := env.validate(); err != nil {
		return nil, err
	}
	if env.InstanceID == "" {
		env.InstanceID = b.instanceID
	}
	return json.Marshal(env)
}

// Stop unsubscribes and closes the Redis connection.
func (b *RedisBridge) Stop() error {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

// Available reports whether the bridge is connected.
func (b *RedisBridge) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

// listen reads messages from the Redis subscription and forwards them to the target.
func (b *RedisBridge) listen(sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handlePayload([]byte(msg.Payload))
		case <-b.ctx.Done():
			return
		}
	}
}

// handlePayload decodes an envelope and delivers it unless it came from this instance.
func (b *RedisBridge) handlePayload(payload []byte) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.logger.Error().Err(err).Msg("failed to decode redis message")
		return
	}

	if env.InstanceID == b.instanceID {
		return
	}

	if err := deliver(b.target, env); err != nil {
		b.logger.Warn().Err(err).Str("target", env.Target).Msg("dropped bridge event")
		return
	}
	b.metrics.BridgeEventsTotal.Add(b.ctx, 1,
		metric.WithAttributes(attribute.String("target", env.Target)))

	b.logger.Debug().
		Str("target", env.Target).
		Str("type", env.Event.Type()).
		Msg("relayed event from redis")
}

func deliver(t Target, env Envelope) error {
	if err := env.validate(); err != nil {
		return err
	}
	switch env.Target {
	case TargetRoom:
		return t.PublishTripEvent(env.TripID, env.Event)
	case TargetUser:
		return t.NotifyUser(env.UserID, env.Event)
	default:
		return t.Announce(env.Event)
	}
}

func (env Envelope) validate() error {
	switch env.Target {
	case TargetRoom:
		if env.TripID == "" {
			return fmt.Errorf("room envelope without trip_id")
		}
	case TargetUser:
		if env.UserID == "" {
			return fmt.Errorf("user envelope without user_id")
		}
	case TargetAll:
	default:
		return fmt.Errorf("unknown target %q", env.Target)
	}
	if env.Event.Type() == "" {
		return fmt.Errorf("event without type")
	}
	return nil
}
