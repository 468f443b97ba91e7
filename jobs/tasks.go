package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeNotifyStatus is the task type for delivery status notifications.
	TaskTypeNotifyStatus = "notify:delivery-status"
	// TaskTypeStaleScan is the task type for releasing stale delivery claims.
	TaskTypeStaleScan = "deliveries:stale-scan"
)

// NotifyStatusPayload carries the information needed to notify a package
// owner about a delivery status change.
type NotifyStatusPayload struct {
	DeliveryID   int64     `json:"delivery_id"`
	DeliveryCode string    `json:"delivery_code"`
	Status       string    `json:"status"`
	OwnerID      int64     `json:"owner_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewNotifyStatusTask constructs an Asynq task for a status notification.
func NewNotifyStatusTask(payload NotifyStatusPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotifyStatus, data), nil
}

// NewStaleScanTask constructs the periodic stale-claim scan task.
func NewStaleScanTask() *asynq.Task {
	return asynq.NewTask(TaskTypeStaleScan, nil)
}

// NotifyStatusHandler processes TaskTypeNotifyStatus tasks. Delivery of the
// notification itself goes through the configured sender; the default sender
// only logs, which is enough for development environments.
type NotifyStatusHandler struct {
	sender NotificationSender
	logger *slog.Logger
}

// NotificationSender pushes a status notification to the package owner.
type NotificationSender interface {
	Send(ctx context.Context, payload NotifyStatusPayload) error
}

// NewNotifyStatusHandler constructs the notification handler.
func NewNotifyStatusHandler(sender NotificationSender, logger *slog.Logger) *NotifyStatusHandler {
	if sender == nil {
		sender = logSender{logger: logger}
	}
	return &NotifyStatusHandler{sender: sender, logger: logger}
}

// Handle implements the asynq handler contract.
func (h *NotifyStatusHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload NotifyStatusPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := h.sender.Send(ctx, payload); err != nil {
		h.logger.Warn("notify delivery status",
			slog.String("delivery", payload.DeliveryCode),
			slog.Any("error", err))
		return err
	}
	return nil
}

type logSender struct {
	logger *slog.Logger
}

func (s logSender) Send(_ context.Context, payload NotifyStatusPayload) error {
	s.logger.Info("delivery status notification",
		slog.Int64("owner", payload.OwnerID),
		slog.String("delivery", payload.DeliveryCode),
		slog.String("status", payload.Status))
	return nil
}

// StaleClaimReleaser releases claimed deliveries whose drivers went silent.
type StaleClaimReleaser interface {
	ReleaseStaleClaims(ctx context.Context, olderThanMinutes int) (int, error)
}

// StaleScanHandler processes TaskTypeStaleScan tasks.
type StaleScanHandler struct {
	releaser StaleClaimReleaser
	window   time.Duration
	logger   *slog.Logger
}

// NewStaleScanHandler constructs the stale-claim scan handler. Claims older
// than the window are reopened.
func NewStaleScanHandler(releaser StaleClaimReleaser, window time.Duration, logger *slog.Logger) *StaleScanHandler {
	if window <= 0 {
		window = 2 * time.Hour
	}
	return &StaleScanHandler{releaser: releaser, window: window, logger: logger}
}

// Handle implements the asynq handler contract.
func (h *StaleScanHandler) Handle(ctx context.Context, _ *asynq.Task) error {
	released, err := h.releaser.ReleaseStaleClaims(ctx, int(h.window.Minutes()))
	if err != nil {
		h.logger.Warn("stale claim scan", slog.Any("error", err))
		return err
	}
	if released > 0 {
		h.logger.Info("stale claims released", slog.Int("count", released))
	}
	return nil
}
