package messaging

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *MemoryBus {
	t.Helper()
	bus := NewMemoryBus(slog.Default())
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestMemoryBus_RequestReply(t *testing.T) {
	bus := newTestBus(t)
	require.NoError(t, bus.Serve("echo", func(ctx context.Context, payload []byte) ([]byte, error) {
		return append([]byte("re:"), payload...), nil
	}))

	reply, err := messaging.Await(context.Background(), bus, "echo", []byte("hi"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "re:hi", string(reply))
	assert.Equal(t, 0, bus.Pending())
}

func TestMemoryBus_TimeoutReleasesSlot(t *testing.T) {
	bus := newTestBus(t)
	release := make(chan struct{})
	require.NoError(t, bus.Serve("slow", func(ctx context.Context, payload []byte) ([]byte, error) {
		<-release
		return []byte("late"), nil
	}))

	future, err := bus.Request(context.Background(), "slow", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Pending())

	_, err = future.Wait(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, 0, bus.Pending())

	// the late reply is dropped without blocking the handler
	close(release)
}

func TestMemoryBus_UnservedRouteTimesOut(t *testing.T) {
	bus := newTestBus(t)
	_, err := messaging.Await(context.Background(), bus, "nobody", nil, 10*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestMemoryBus_HandlerErrorSendsNoReply(t *testing.T) {
	bus := newTestBus(t)
	require.NoError(t, bus.Serve("broken", func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, errors.New("boom")
	}))
	_, err := messaging.Await(context.Background(), bus, "broken", nil, 20*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestMemoryBus_HandlerPanicIsRecovered(t *testing.T) {
	bus := newTestBus(t)
	require.NoError(t, bus.Serve("panics", func(ctx context.Context, payload []byte) ([]byte, error) {
		panic("boom")
	}))
	_, err := messaging.Await(context.Background(), bus, "panics", nil, 20*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestMemoryBus_Unavailable(t *testing.T) {
	bus := newTestBus(t)
	bus.SetAvailable(false)

	_, err := bus.Request(context.Background(), "any", nil)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.True(t, domain.IsRetryable(err))
	assert.ErrorIs(t, bus.Publish(context.Background(), "any", nil), domain.ErrTransport)

	bus.SetAvailable(true)
	assert.NoError(t, bus.Publish(context.Background(), "any", nil))
}

func TestMemoryBus_PublishDeliversAndRecords(t *testing.T) {
	bus := newTestBus(t)
	got := make(chan string, 1)
	require.NoError(t, bus.Serve("events", func(ctx context.Context, payload []byte) ([]byte, error) {
		got <- string(payload)
		return nil, nil
	}))

	require.NoError(t, bus.Publish(context.Background(), "events", []byte("e1")))
	select {
	case p := <-got:
		assert.Equal(t, "e1", p)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	require.Len(t, bus.Published("events"), 1)
	assert.Empty(t, bus.Published("other"))
}

func TestMemoryBus_ServeTwiceFails(t *testing.T) {
	bus := newTestBus(t)
	h := func(ctx context.Context, payload []byte) ([]byte, error) { return nil, nil }
	require.NoError(t, bus.Serve("r", h))
	assert.Error(t, bus.Serve("r", h))
}

func TestMemoryBus_CloseRejects(t *testing.T) {
	bus := NewMemoryBus(nil)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	_, err := bus.Request(context.Background(), "r", nil)
	assert.ErrorIs(t, err, domain.ErrTransport)
}
