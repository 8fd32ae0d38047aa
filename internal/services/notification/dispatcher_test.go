package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/testutil/mocks"
	"github.com/kevin07696/funding-service/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDispatcher_DeliversAsynchronously(t *testing.T) {
	sink := &mocks.RecordingNotifier{}
	d := NewDispatcher(sink, Config{QueueSize: 8, Workers: 2}, resilience.TestTimeoutConfig(), zap.NewNop())

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Notify(context.Background(), domain.Notification{
			InvestmentID: uuid.New(),
			Type:         domain.NotificationInvestmentCompleted,
		}))
	}
	require.NoError(t, d.Close())

	assert.Len(t, sink.Sent(), 5)
}

func TestDispatcher_FailuresAreLoggedOnly(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &mocks.RecordingNotifier{Err: errors.New("notification service down")}
	d := NewDispatcher(sink, Config{QueueSize: 1, Workers: 1}, resilience.TestTimeoutConfig(), zap.New(core))

	err := d.Notify(context.Background(), domain.Notification{Type: domain.NotificationInvestmentFailed})
	require.NoError(t, err)
	require.NoError(t, d.Close())

	require.Equal(t, 1, logs.FilterMessage("Notification delivery failed").Len())
}

// blockingNotifier holds every delivery until released
type blockingNotifier struct {
	release chan struct{}
}

func (b *blockingNotifier) Notify(ctx context.Context, _ domain.Notification) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &blockingNotifier{release: make(chan struct{})}
	d := NewDispatcher(sink, Config{QueueSize: 1, Workers: 1}, resilience.TestTimeoutConfig(), zap.New(core))

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Notify(context.Background(), domain.Notification{Type: domain.NotificationInvestmentCompleted}))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(sink.release)
	require.NoError(t, d.Close())
	assert.GreaterOrEqual(t, logs.FilterMessage("Notification queue full, dropping notification").Len(), 1)
}

func TestDispatcher_RejectsAfterClose(t *testing.T) {
	d := NewDispatcher(&mocks.RecordingNotifier{}, Config{}, nil, zap.NewNop())
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	err := d.Notify(context.Background(), domain.Notification{})
	assert.ErrorIs(t, err, ErrClosed)
}
