package repositories

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const capsuleChannelPrefix = "capsules:receiver:"

type RedisChangeFeed struct {
	client *redis.Client
}

func NewRedisChangeFeed(client *redis.Client) *RedisChangeFeed {
	return &RedisChangeFeed{client: client}
}

func (f *RedisChangeFeed) Publish(ctx context.Context, receiverID uuid.UUID) error {
	err := f.client.Publish(ctx, capsuleChannel(receiverID), "changed").Err()
	if err != nil {
		return fmt.Errorf("failed to publish capsule change: %w", err)
	}
	return nil
}

// Listen subscribes to changes for receiverID. It returns only after Redis has
// confirmed the subscription, so no change published afterwards is missed.
func (f *RedisChangeFeed) Listen(ctx context.Context, receiverID uuid.UUID) (FeedListener, error) {
	pubsub := f.client.Subscribe(ctx, capsuleChannel(receiverID))

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to capsule changes: %w", err)
	}

	l := &redisFeedListener{
		pubsub:  pubsub,
		changes: make(chan struct{}, 1),
	}
	go l.forward(pubsub.Channel())
	return l, nil
}

type redisFeedListener struct {
	pubsub  *redis.PubSub
	changes chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func (l *redisFeedListener) Changes() <-chan struct{} {
	return l.changes
}

// forward collapses bursts of messages into at most one pending change.
func (l *redisFeedListener) forward(messages <-chan *redis.Message) {
	defer close(l.changes)
	for range messages {
		select {
		case l.changes <- struct{}{}:
		default:
		}
	}
}

func (l *redisFeedListener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.pubsub.Close()
	})
	return l.closeErr
}

func capsuleChannel(receiverID uuid.UUID) string {
	return capsuleChannelPrefix + receiverID.String()
}
