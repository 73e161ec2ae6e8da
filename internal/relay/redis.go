package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/practicechat/internal/store"
)

// Redis relays messages over a Redis pub/sub channel.
type Redis struct {
	client  *redis.Client
	channel string
	log     *zerolog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

// DialRedis connects to the Redis server at url and checks it with PING.
func DialRedis(ctx context.Context, url, channel string, logger *zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Redis{client: client, channel: channel, log: logger}, nil
}

// Broadcast publishes the message to every subscribed process.
func (r *Redis) Broadcast(ctx context.Context, conversationID int64, msg *store.Message) error {
	data, err := Encode(conversationID, msg)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe delivers every envelope on the channel to d until Close.
func (r *Redis) Subscribe(ctx context.Context, d Deliverer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub != nil {
		return errors.New("redis relay already subscribed")
	}

	pubsub := r.client.Subscribe(ctx, r.channel)
	// Wait for the subscription confirmation so no publish is missed after return.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	r.pubsub = pubsub

	ch := pubsub.Channel()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for m := range ch {
			deliver(r.log, d, []byte(m.Payload))
		}
	}()

	r.log.Info().Str("channel", r.channel).Msg("redis relay subscribed")
	return nil
}

// Close ends the subscription and the client.
func (r *Redis) Close() error {
	r.mu.Lock()
	pubsub := r.pubsub
	r.pubsub = nil
	r.mu.Unlock()

	var errs []error
	if pubsub != nil {
		errs = append(errs, pubsub.Close())
		r.wg.Wait()
	}
	errs = append(errs, r.client.Close())
	return errors.Join(errs...)
}
