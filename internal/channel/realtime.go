package channel

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/NordCoder/Remindus/internal/domain/notification"
)

type RealtimeConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// RealtimePayload is what the websocket gateway consumes and forwards to the
// user's live session.
type RealtimePayload struct {
	NotificationID string    `json:"notification_id"`
	EventID        int64     `json:"event_id"`
	Kind           string    `json:"kind"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	At             time.Time `json:"at"`
}

// RealtimeSender publishes reminders to a per-user keyed topic; the in-app
// gateway that holds the websocket connections lives outside the engine.
type RealtimeSender struct {
	w     *kafka.Writer
	topic string
	log   *zap.Logger
}

var _ Sender = (*RealtimeSender)(nil)

func NewRealtimeSender(cfg RealtimeConfig, log *zap.Logger) *RealtimeSender {
	return &RealtimeSender{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		topic: cfg.Topic,
		log:   log.With(zap.String("component", "channel.realtime"), zap.String("topic", cfg.Topic)),
	}
}

func (s *RealtimeSender) Kind() notification.ChannelKind { return notification.ChannelRealtime }

func (s *RealtimeSender) Send(ctx context.Context, n *notification.Notification, rcpt Recipient) Outcome {
	title, body := Render(n)
	value, err := json.Marshal(RealtimePayload{
		NotificationID: n.ID.String(),
		EventID:        n.EventID,
		Kind:           string(n.Kind),
		Title:          title,
		Body:           body,
		At:             time.Now().UTC(),
	})
	if err != nil {
		return failErr(err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(rcpt.UserID, 10)),
		Value: value,
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		s.log.Warn("realtime publish failed", zap.Int64("user_id", rcpt.UserID), zap.Error(err))
		return failErr(err)
	}
	s.log.Debug("realtime published", zap.Int64("user_id", rcpt.UserID), zap.Int("value_len", len(value)))
	return ok()
}

// Publish sends an arbitrary payload to the user's live session, outside the
// notification dispatch path. The acknowledgment handler uses it to echo
// confirmation messages.
func (s *RealtimeSender) Publish(ctx context.Context, userID int64, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(userID, 10)),
		Value: value,
	})
}

func (s *RealtimeSender) Close() error { return s.w.Close() }
