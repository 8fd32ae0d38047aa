// Package notifier delivers investment and campaign notifications to the
// external notification service.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the notifier uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notifications as JSON records keyed by investment
// so events of one investment stay ordered within a partition
type KafkaNotifier struct {
	writer messageWriter
	topic  string
}

// NewKafkaNotifier creates a publisher for topic
func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka notifier requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka notifier requires a topic")
	}
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
		},
		topic: topic,
	}, nil
}

// Notify publishes n
func (k *KafkaNotifier) Notify(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	key := n.InvestmentID.String()
	if n.Type == domain.NotificationCampaignFunded {
		key = n.CampaignID.String()
	}

	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Topic: k.topic,
		Key:   []byte(key),
		Value: payload,
		Time:  n.OccurredAt.UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(n.Type)},
		},
	}); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close flushes pending messages
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
