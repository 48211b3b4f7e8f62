package channel

import (
	"context"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/NordCoder/Remindus/internal/domain/notification"
)

type PushConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

// PushSender delivers reminders to the user's device through FCM.
type PushSender struct {
	client *messaging.Client
	log    *zap.Logger
}

var _ Sender = (*PushSender)(nil)

func NewPushSender(ctx context.Context, cfg PushConfig, log *zap.Logger) (*PushSender, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, err
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, err
	}
	return &PushSender{
		client: client,
		log:    log.With(zap.String("component", "channel.push")),
	}, nil
}

func (s *PushSender) Kind() notification.ChannelKind { return notification.ChannelPush }

func (s *PushSender) Send(ctx context.Context, n *notification.Notification, rcpt Recipient) Outcome {
	if rcpt.FCMToken == "" {
		return fail("no device token")
	}

	title, body := Render(n)
	msg := &messaging.Message{
		Token: rcpt.FCMToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: map[string]string{
			"notification_id": n.ID.String(),
			"event_id":        strconv.FormatInt(n.EventID, 10),
			"kind":            string(n.Kind),
		},
	}

	id, err := s.client.Send(ctx, msg)
	if err != nil {
		s.log.Warn("push send failed", zap.Int64("user_id", rcpt.UserID), zap.Error(err))
		return failErr(err)
	}
	s.log.Debug("push sent", zap.Int64("user_id", rcpt.UserID), zap.String("message_id", id))
	return ok()
}
