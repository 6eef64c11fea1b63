package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-redis/redis"
)

const channelPrefix = "activity-comments:"

type redisFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func NewRedisBackplane(logger *slog.Logger, client *redis.Client) *RedisBackplane {
	return &RedisBackplane{logger: logger, client: client}
}

// RedisBackplane shares broadcasts between replicas using Redis pub/sub. Each activity has its own
// channel.
type RedisBackplane struct {
	logger *slog.Logger
	client *redis.Client
}

func (b *RedisBackplane) Publish(activityID string, frame Frame) error {
	message, err := json.Marshal(redisFrame{Type: frame.Type, Payload: frame.Payload})
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %v", err)
	}

	err = b.client.Publish(channelPrefix+activityID, message).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %q: %v", channelPrefix+activityID, err)
	}
	return nil
}

// Subscribe calls deliver for every frame published by any replica until ctx is cancelled.
func (b *RedisBackplane) Subscribe(ctx context.Context, ready func(), deliver func(activityID string, frame Frame)) error {
	pubsub := b.client.PSubscribe(channelPrefix + "*")
	defer func() {
		_ = pubsub.Close()
	}()

	// wait for the subscription to be confirmed so no frame published after Subscribe is lost
	if _, err := pubsub.Receive(); err != nil {
		return fmt.Errorf("failed to subscribe to %q: %v", channelPrefix+"*", err)
	}
	ready()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-messages:
			if !ok {
				return fmt.Errorf("subscription to %q closed", channelPrefix+"*")
			}

			var frame redisFrame
			if err := json.Unmarshal([]byte(message.Payload), &frame); err != nil {
				b.logger.ErrorContext(ctx, "Dropping malformed backplane message", "channel", message.Channel, "error", err)
				continue
			}

			deliver(strings.TrimPrefix(message.Channel, channelPrefix), Frame{Type: frame.Type, Payload: frame.Payload})
		}
	}
}
