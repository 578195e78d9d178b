package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "fleetbook/pkg/domain"
	audit "fleetbook/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	for i, action := range []audit.AuditEvent{
		audit.EventAllocationCreated,
		audit.EventAllocationUpdated,
		audit.EventAllocationDeleted,
	} {
		employee := id.EmployeeID(1)
		if i == 1 {
			employee = 2
		}
		require.NoError(t, store.Append(ctx, audit.Event{Action: action, EmployeeID: employee}))
	}

	t.Run("lists by employee", func(t *testing.T) {
		events, err := store.ListByEmployee(ctx, 1)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, audit.EventAllocationCreated, events[0].Action)
		assert.Equal(t, audit.EventAllocationDeleted, events[1].Action)
	})

	t.Run("lists all in append order", func(t *testing.T) {
		events, err := store.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, audit.EventAllocationUpdated, events[1].Action)
	})

	t.Run("clear drops everything", func(t *testing.T) {
		store.Clear()
		events, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
