package channel

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EnsureRealtimeTopic creates the realtime topic if the broker does not have
// it yet. Best-effort at startup; brokers with auto-creation enabled make
// this a no-op.
func EnsureRealtimeTopic(ctx context.Context, cfg RealtimeConfig, log *zap.Logger) error {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil
	}

	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	cc, err := kafka.DialContext(ctx, "tcp", controller.Host+":"+strconv.Itoa(controller.Port))
	if err != nil {
		return err
	}
	defer cc.Close()

	err = cc.CreateTopics(kafka.TopicConfig{
		Topic:             cfg.Topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return err
	}

	return waitTopicReady(ctx, cfg.Brokers[0], cfg.Topic, log)
}

func waitTopicReady(ctx context.Context, broker, topic string, log *zap.Logger) error {
	backoff := 200 * time.Millisecond
	for {
		conn, err := kafka.Dial("tcp", broker)
		if err == nil {
			parts, perr := conn.ReadPartitions(topic)
			conn.Close()
			if perr == nil && len(parts) > 0 {
				return nil
			}
		}
		log.Debug("waiting for realtime topic", zap.String("topic", topic))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}
