package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"greendrake/haggle/internal/models"
)

// ChannelPrefix is prepended to the recipient id to form the pub/sub channel name.
const ChannelPrefix = "notifications:"

// RedisPublisher publishes notifications as JSON on a per-recipient Redis channel.
type RedisPublisher struct {
	client redis.UniversalClient
}

func NewRedisPublisher(client redis.UniversalClient) Publisher {
	return &RedisPublisher{client: client}
}

// Channel returns the channel a recipient's client subscribes to.
func Channel(recipientID string) string {
	return ChannelPrefix + recipientID
}

func (p *RedisPublisher) Publish(ctx context.Context, n *models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification %s: %w", n.ID.String(), err)
	}
	if err := p.client.Publish(ctx, Channel(n.RecipientID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification %s to %s: %w", n.ID.String(), Channel(n.RecipientID), err)
	}
	return nil
}
