package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaNotifier_Notify(t *testing.T) {
	writer := &fakeWriter{}
	n := &KafkaNotifier{writer: writer, topic: "funding.notifications"}

	notification := domain.Notification{
		InvestmentID: uuid.New(),
		CampaignID:   uuid.New(),
		Type:         domain.NotificationInvestmentCompleted,
		RecipientID:  "investor-1",
		OccurredAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, n.Notify(context.Background(), notification))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "funding.notifications", msg.Topic)
	assert.Equal(t, notification.InvestmentID.String(), string(msg.Key))
	assert.Equal(t, "investment.completed", string(msg.Headers[0].Value))

	var decoded domain.Notification
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, notification, decoded)

	require.NoError(t, n.Close())
	assert.True(t, writer.closed)
}

func TestKafkaNotifier_CampaignEventsKeyedByCampaign(t *testing.T) {
	writer := &fakeWriter{}
	n := &KafkaNotifier{writer: writer, topic: "t"}
	campaignID := uuid.New()

	require.NoError(t, n.Notify(context.Background(), domain.Notification{
		CampaignID: campaignID,
		Type:       domain.NotificationCampaignFunded,
	}))
	assert.Equal(t, campaignID.String(), string(writer.messages[0].Key))
}

func TestKafkaNotifier_WriteError(t *testing.T) {
	n := &KafkaNotifier{writer: &fakeWriter{err: errors.New("broker down")}, topic: "t"}
	err := n.Notify(context.Background(), domain.Notification{Type: domain.NotificationInvestmentFailed})
	assert.ErrorContains(t, err, "broker down")
}

func TestNewKafkaNotifier_Validation(t *testing.T) {
	_, err := NewKafkaNotifier(nil, "t")
	assert.Error(t, err)

	_, err = NewKafkaNotifier([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	n, err := NewKafkaNotifier([]string{"localhost:9092"}, "t")
	require.NoError(t, err)
	assert.NoError(t, n.Close())
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.Notify(context.Background(), domain.Notification{
		Type:        domain.NotificationInvestmentRefunded,
		RecipientID: "investor-9",
	}))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "investment.refunded", fields["event_type"])
	assert.Equal(t, "investor-9", fields["recipient_id"])
}
