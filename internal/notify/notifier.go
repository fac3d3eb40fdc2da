// Package notify carries engine side effects to downstream consumers:
// the activity audit stream and library removal notices.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"trust-engine/internal/client"
	"trust-engine/internal/config"
	"trust-engine/internal/models"
	"trust-engine/internal/util"
)

// Notifier is the sink for engine events. All publishing is
// best-effort; callers log failures and move on.
type Notifier interface {
	PublishActivity(ctx context.Context, event *models.ActivityEvent) error
	NotifyRemoval(ctx context.Context, notice *models.RemovalNotice) error
}

// KafkaNotifier publishes to the activity and notification topics.
type KafkaNotifier struct {
	producer          *client.KafkaProducer
	activityTopic     string
	notificationTopic string
}

func NewKafkaNotifier(producer *client.KafkaProducer, cfg *config.KafkaConfig) *KafkaNotifier {
	return &KafkaNotifier{
		producer:          producer,
		activityTopic:     cfg.ActivityTopic,
		notificationTopic: cfg.NotificationTopic,
	}
}

func (n *KafkaNotifier) PublishActivity(ctx context.Context, event *models.ActivityEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode activity event: %w", err)
	}

	return n.producer.ProduceMessage(ctx, n.activityTopic, []byte(event.UserID), payload, map[string]string{
		"event_type": "activity",
		"action":     event.ActionType,
	})
}

func (n *KafkaNotifier) NotifyRemoval(ctx context.Context, notice *models.RemovalNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to encode removal notice: %w", err)
	}

	return n.producer.ProduceMessage(ctx, n.notificationTopic, []byte(notice.UserID), payload, map[string]string{
		"event_type": "library_removal",
	})
}

// LogNotifier is the development sink: events go to the log and nowhere
// else.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) PublishActivity(_ context.Context, event *models.ActivityEvent) error {
	util.Debug("Activity event",
		zap.String("user_id", event.UserID),
		zap.String("symbol", event.Symbol),
		zap.String("action", event.ActionType))
	return nil
}

func (n *LogNotifier) NotifyRemoval(_ context.Context, notice *models.RemovalNotice) error {
	util.Info("Library item removed",
		zap.String("user_id", notice.UserID),
		zap.String("symbol", notice.RemovedSymbol),
		zap.String("reason", notice.Reason),
		zap.Int("days_inactive", notice.DaysInactive))
	return nil
}
