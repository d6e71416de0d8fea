// Package notify provides the Notifier implementations the materializer
// sends its per-user summaries through.
package notify

import (
	"context"
	"time"

	"github.com/rhowell/potstash/internal/events/kafka"
	"github.com/rhowell/potstash/internal/interfaces"
	"github.com/rhowell/potstash/internal/models/events"
	"github.com/rs/zerolog"
)

// KafkaNotifier publishes one UserNotification message per call. Delivery is
// best-effort; the caller logs failures and moves on.
type KafkaNotifier struct {
	publisher *kafka.Publisher
}

func NewKafkaNotifier(publisher *kafka.Publisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher}
}

func (n *KafkaNotifier) Notify(ctx context.Context, userID, title, message string) error {
	return n.publisher.Publish(ctx, userID, events.UserNotification{
		UserID:     userID,
		Title:      title,
		Message:    message,
		OccurredAt: time.Now(),
	})
}

// LogNotifier writes notifications to the log. It stands in for the real
// side-channel when no broker is configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) LogNotifier {
	return LogNotifier{log: log}
}

func (n LogNotifier) Notify(ctx context.Context, userID, title, message string) error {
	n.log.Info().
		Str("user_id", userID).
		Str("title", title).
		Str("message", message).
		Msg("notification")
	return nil
}

var (
	_ interfaces.Notifier = (*KafkaNotifier)(nil)
	_ interfaces.Notifier = LogNotifier{}
)
