package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/sealchat/internal/logging"
	"github.com/dmitrijs2005/sealchat/internal/server/services"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// channelPrefix namespaces room channels on the shared Redis server.
const channelPrefix = "sealchat:room:"

// Broker carries an encoded frame to every connection in a room, wherever
// that connection is served.
type Broker interface {
	Publish(ctx context.Context, room string, payload []byte) error
}

// LocalBroker delivers straight into the process-local Hub.
type LocalBroker struct {
	hub *Hub
}

func NewLocalBroker(hub *Hub) *LocalBroker {
	return &LocalBroker{hub: hub}
}

func (b *LocalBroker) Publish(_ context.Context, room string, payload []byte) error {
	b.hub.Deliver(room, payload)
	return nil
}

// redisPubSub is the part of *redis.Client the broker uses.
type redisPubSub interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	PSubscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// subscription is the part of *redis.PubSub the broker reads from.
type subscription interface {
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

var errSubscriptionClosed = errors.New("redis subscription closed")

// RedisBroker fans frames out through Redis pub/sub so that every server
// process delivers to its own connections. Run must be active for frames
// to reach local connections, including ones published by this process.
type RedisBroker struct {
	client    redisPubSub
	hub       *Hub
	logger    logging.Logger
	subscribe func(ctx context.Context) (subscription, error)

	retryBase time.Duration
	retryCap  time.Duration
}

func NewRedisBroker(client redisPubSub, hub *Hub, logger logging.Logger) *RedisBroker {
	b := &RedisBroker{
		client:    client,
		hub:       hub,
		logger:    logger.With("module", "redis_broker"),
		retryBase: 500 * time.Millisecond,
		retryCap:  30 * time.Second,
	}
	b.subscribe = b.patternSubscribe
	return b
}

func (b *RedisBroker) Publish(ctx context.Context, room string, payload []byte) error {
	if err := b.client.Publish(ctx, channelPrefix+room, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run holds one pattern subscription for all rooms until ctx is done. A
// failed or lost subscription is retried with capped exponential backoff,
// so a Redis outage at startup only delays local delivery.
func (b *RedisBroker) Run(ctx context.Context) error {
	backoff := retry.WithCappedDuration(b.retryCap, retry.NewExponential(b.retryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		sub, err := b.subscribe(ctx)
		if err != nil {
			b.logger.Warn(ctx, "redis subscribe failed, retrying", "error", err)
			return retry.RetryableError(err)
		}
		defer sub.Close()

		b.logger.Info(ctx, "subscribed", "pattern", channelPrefix+"*")
		if b.consume(ctx, sub) {
			return nil
		}
		b.logger.Warn(ctx, "redis subscription closed, resubscribing")
		return retry.RetryableError(errSubscriptionClosed)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// consume dispatches messages until ctx is done (true) or the channel
// closes (false).
func (b *RedisBroker) consume(ctx context.Context, sub subscription) bool {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true
		case msg, ok := <-ch:
			if !ok {
				return false
			}
			b.dispatch(msg)
		}
	}
}

func (b *RedisBroker) patternSubscribe(ctx context.Context) (subscription, error) {
	ps := b.client.PSubscribe(ctx, channelPrefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	return ps, nil
}

func (b *RedisBroker) dispatch(msg *redis.Message) {
	room, ok := strings.CutPrefix(msg.Channel, channelPrefix)
	if !ok {
		return
	}
	b.hub.Deliver(room, []byte(msg.Payload))
}

// Publisher turns a delivered message into a frame and publishes it to
// each room. It implements services.Notifier and services.GroupNotifier.
type Publisher struct {
	broker Broker
}

func NewPublisher(broker Broker) *Publisher {
	return &Publisher{broker: broker}
}

func (p *Publisher) NotifyChatMessage(ctx context.Context, rooms []string, msg *services.ChatMessage) error {
	return p.publish(ctx, rooms, ChatFrame(msg))
}

func (p *Publisher) NotifyGroupMessage(ctx context.Context, rooms []string, msg *services.GroupMessageView) error {
	return p.publish(ctx, rooms, GroupFrame(msg))
}

func (p *Publisher) publish(ctx context.Context, rooms []string, payload []byte) error {
	var errs []error
	for _, room := range rooms {
		if err := p.broker.Publish(ctx, room, payload); err != nil {
			errs = append(errs, fmt.Errorf("room %s: %w", room, err))
		}
	}
	return errors.Join(errs...)
}
