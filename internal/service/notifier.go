package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-bk-api/pkg/config"
	"github.com/noah-isme/sma-bk-api/pkg/jobs"
)

// Notification describes a workflow event for the delivery collaborator.
type Notification struct {
	Event         string `json:"event"`
	RecipientID   string `json:"recipient_id"`
	CaseID        string `json:"case_id,omitempty"`
	ReservationID string `json:"reservation_id,omitempty"`
	Message       string `json:"message"`
}

// NotificationSender delivers a notification. Delivery (SMS/WhatsApp/email)
// lives outside this service; the default sender only logs.
type NotificationSender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender is the default sender used when no delivery collaborator is wired.
type LogSender struct {
	Logger *zap.Logger
}

// Send logs the notification.
func (s LogSender) Send(_ context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification dispatched",
		zap.String("event", n.Event),
		zap.String("recipient_id", n.RecipientID),
		zap.String("case_id", n.CaseID),
		zap.String("reservation_id", n.ReservationID),
	)
	return nil
}

// Notifier dispatches workflow notifications fire-and-forget over the job
// queue. Callers never wait on delivery and a failed enqueue never fails the
// triggering operation.
type Notifier struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotifier wires the sender behind a worker queue.
func NewNotifier(sender NotificationSender, cfg config.NotificationsConfig, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := func(ctx context.Context, job jobs.Job) error {
		n, ok := job.Payload.(Notification)
		if !ok {
			logger.Warn("notification job with unexpected payload", zap.String("job_id", job.ID))
			return nil
		}
		return sender.Send(ctx, n)
	}
	queue := jobs.NewQueue("notifications", handler, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		Logger:     logger,
	})
	return &Notifier{queue: queue, logger: logger}
}

// Start begins dispatch workers.
func (n *Notifier) Start(ctx context.Context) {
	n.queue.Start(ctx)
}

// Stop drains the workers.
func (n *Notifier) Stop() {
	n.queue.Stop()
}

// Notify enqueues a notification without blocking the caller's outcome.
func (n *Notifier) Notify(notification Notification) {
	if n == nil {
		return
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    notification.Event,
		Payload: notification,
	}
	if err := n.queue.Enqueue(job); err != nil {
		n.logger.Warn("failed to enqueue notification", zap.String("event", notification.Event), zap.Error(err))
	}
}
