package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/parceltrack/parceltrack/internal/deliveries"
)

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// NotifyStatusChange enqueues a status notification for the package owner.
func (c *Client) NotifyStatusChange(ctx context.Context, d deliveries.Delivery, ownerID int64) error {
	task, err := NewNotifyStatusTask(NotifyStatusPayload{
		DeliveryID:   d.ID,
		DeliveryCode: d.Code,
		Status:       string(d.Status),
		OwnerID:      ownerID,
		OccurredAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

var _ deliveries.Notifier = (*Client)(nil)
