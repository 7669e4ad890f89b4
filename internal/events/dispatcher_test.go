package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAsyncDispatcherDeliversToSubscribers(t *testing.T) {
	dispatcher := NewAsyncDispatcher(8, zap.NewNop())

	received := make(chan Event, 1)
	dispatcher.Subscribe(EventQuotationPending, func(ctx context.Context, event Event) error {
		received <- event
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Run(ctx)

	err := dispatcher.Publish(ctx, Event{
		ID:   "evt-1",
		Type: EventQuotationPending,
		Payload: QuotationPendingPayload{
			RequesterEmail: "resident@example.com",
			TicketNumber:   "T-100",
		},
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "evt-1", event.ID)
		payload, ok := event.Payload.(QuotationPendingPayload)
		require.True(t, ok)
		assert.Equal(t, "T-100", payload.TicketNumber)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestAsyncDispatcherPublishNeverBlocks(t *testing.T) {
	dispatcher := NewAsyncDispatcher(1, zap.NewNop())

	// no Run goroutine, queue fills after one event
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = dispatcher.Publish(context.Background(), Event{ID: "evt", Type: EventWorkPending})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on full queue")
	}
}

func TestAsyncDispatcherIsolatesHandlerErrors(t *testing.T) {
	dispatcher := NewAsyncDispatcher(8, zap.NewNop())

	calls := make(chan string, 2)
	dispatcher.Subscribe(EventWorkRejected, func(ctx context.Context, event Event) error {
		calls <- "failing"
		return assert.AnError
	})
	dispatcher.Subscribe(EventWorkRejected, func(ctx context.Context, event Event) error {
		calls <- "second"
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Run(ctx)

	_ = dispatcher.Publish(ctx, Event{ID: "evt-2", Type: EventWorkRejected})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case name := <-calls:
			seen[name] = true
		case <-time.After(2 * time.Second):
			t.Fatal("handlers did not all run")
		}
	}
	assert.True(t, seen["failing"])
	assert.True(t, seen["second"])
}
