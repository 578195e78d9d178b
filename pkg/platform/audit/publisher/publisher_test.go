package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "fleetbook/pkg/domain"
	audit "fleetbook/pkg/platform/audit"
	"fleetbook/pkg/platform/audit/store/memory"
)

func newEvent(employeeID id.EmployeeID, action audit.AuditEvent) audit.Event {
	return audit.Event{
		EmployeeID:   employeeID,
		AllocationID: id.NewAllocationID(),
		VehicleID:    10,
		Date:         id.NewDate(2099, time.January, 10),
		Action:       action,
	}
}

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), newEvent(1, audit.EventAllocationCreated))
	require.NoError(t, err)

	events, err := store.ListByEmployee(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventAllocationCreated, events[0].Action)
	assert.NotEqual(t, uuid.Nil, events[0].ID)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))

	err := pub.Emit(context.Background(), newEvent(1, audit.EventAllocationUpdated))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		events, _ := store.ListByEmployee(context.Background(), 1)
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)
	pub.Close()
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), newEvent(2, audit.EventAllocationCreated)))
	}

	pub.Close()

	events, err := store.ListByEmployee(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFullDropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), newEvent(3, audit.EventAllocationCreated))
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_EmitAfterClose(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	pub.Close()
	pub.Close()

	err := pub.Emit(context.Background(), newEvent(1, audit.EventAllocationDeleted))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublisher_Timestamps(t *testing.T) {
	fixed := time.Date(2099, 1, 9, 8, 0, 0, 0, time.UTC)

	t.Run("sets missing timestamp from clock", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		pub := NewPublisher(store, WithClock(func() time.Time { return fixed }))
		require.NoError(t, pub.Emit(context.Background(), newEvent(1, audit.EventAllocationCreated)))

		events, err := store.ListByEmployee(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, fixed, events[0].Timestamp)
	})

	t.Run("preserves existing timestamp", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		pub := NewPublisher(store)
		custom := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		event := newEvent(1, audit.EventAllocationCreated)
		event.Timestamp = custom
		require.NoError(t, pub.Emit(context.Background(), event))

		events, err := store.ListByEmployee(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, custom, events[0].Timestamp)
	})
}

func TestPublisher_PerEmployeeIsolation(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	require.NoError(t, pub.Emit(context.Background(), newEvent(1, audit.EventAllocationCreated)))
	require.NoError(t, pub.Emit(context.Background(), newEvent(2, audit.EventAllocationDeleted)))

	events1, err := store.ListByEmployee(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events1, 1)
	assert.Equal(t, audit.EventAllocationCreated, events1[0].Action)

	all, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
