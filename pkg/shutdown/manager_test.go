package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestManager_ShutdownRunsInReverseOrder(t *testing.T) {
	sm := NewManager(zap.NewNop(), time.Second)

	var order []string
	for _, name := range []string{"database", "http", "scheduler"} {
		name := name
		sm.RegisterNoErr(name, func() { order = append(order, name) })
	}

	errs := sm.Shutdown()

	assert.Empty(t, errs)
	assert.Equal(t, []string{"scheduler", "http", "database"}, order)
}

func TestManager_ShutdownCollectsErrors(t *testing.T) {
	sm := NewManager(zap.NewNop(), time.Second)
	boom := errors.New("close failed")

	sm.Register("kafka", func(ctx context.Context) error { return boom })
	sm.RegisterNoErr("redis", func() {})

	errs := sm.Shutdown()

	assert.Len(t, errs, 1)
	assert.ErrorIs(t, errs["kafka"], boom)
}

func TestManager_ShutdownOnlyOnce(t *testing.T) {
	sm := NewManager(zap.NewNop(), time.Second)
	calls := 0
	sm.RegisterNoErr("pool", func() { calls++ })

	sm.Shutdown()
	sm.Shutdown()

	assert.Equal(t, 1, calls)
}

func TestManager_WaitForShutdownOnContext(t *testing.T) {
	sm := NewManager(zap.NewNop(), time.Second)
	stopped := make(chan struct{})
	sm.RegisterNoErr("worker", func() { close(stopped) })

	ctx, cancel := context.WithCancel(context.Background())
	go sm.WaitForShutdown(ctx)
	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("component was not shut down")
	}
}
