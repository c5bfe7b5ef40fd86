package progress

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pawpress/server/internal/domain"
)

// ChannelForJob names the pub/sub channel carrying a job's event hints.
func ChannelForJob(jobID uuid.UUID) string {
	return "jobs:" + jobID.String()
}

// RedisNotifier publishes event hints over redis pub/sub so push subscribers
// learn about transitions without polling.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier wraps an established client.
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Notify(ctx context.Context, jobID uuid.UUID, eventType domain.EventType) error {
	if err := n.client.Publish(ctx, ChannelForJob(jobID), string(eventType)).Err(); err != nil {
		return fmt.Errorf("publish job hint: %w", err)
	}
	return nil
}

var _ Notifier = (*RedisNotifier)(nil)
