package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "fleetbook/pkg/domain"
)

// AuditEvent names an allocation lifecycle action.
type AuditEvent string

const (
	EventAllocationCreated AuditEvent = "allocation_created"
	EventAllocationUpdated AuditEvent = "allocation_updated"
	EventAllocationDeleted AuditEvent = "allocation_deleted"
)

// Event is emitted after a lifecycle mutation commits. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID           uuid.UUID       `json:"id"`
	Action       AuditEvent      `json:"action"`
	EmployeeID   id.EmployeeID   `json:"employee_id"`
	AllocationID id.AllocationID `json:"allocation_id"`
	VehicleID    id.VehicleID    `json:"vehicle_id"`
	Date         id.Date         `json:"date"`
	RequestID    string          `json:"request_id,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
