package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Consumer streams booking events off a topic and hands the decoded payload
// to a handler. Undecodable messages are logged and skipped so one bad
// payload never wedges the group.
type Consumer struct {
	reader *kafka.Reader
	logger *logrus.Logger
}

func NewConsumer(brokers []string, groupID, topic string, logger *logrus.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
		logger: logger,
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume reads until the context is cancelled or the handler returns an
// error. The handler receives the decoded BookingEvent; its error stops the
// loop.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, BookingEvent) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			return err
		}

		if err := c.dispatch(ctx, msg.Value, handler); err != nil {
			return err
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, raw []byte, handler func(context.Context, BookingEvent) error) error {
	var event BookingEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		c.logger.WithError(err).Warn("skipping undecodable booking event")
		return nil
	}
	return handler(ctx, event)
}
