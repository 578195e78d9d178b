package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "fleetbook/pkg/domain-errors"
)

// TestParseNaturalKeys_Invariants validates the parsing invariant:
// "employee and vehicle keys are positive integers"
func TestParseNaturalKeys_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseEmployeeID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects zero and negatives", func(t *testing.T) {
		for _, in := range []string{"0", "-1", "-999"} {
			_, err := ParseVehicleID(in)
			require.Error(t, err, in)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
		}
	})

	t.Run("accepts positive keys", func(t *testing.T) {
		emp, err := ParseEmployeeID("42")
		require.NoError(t, err)
		assert.Equal(t, EmployeeID(42), emp)

		veh, err := ParseVehicleID(" 7 ")
		require.NoError(t, err)
		assert.Equal(t, VehicleID(7), veh)
	})
}

func TestParseAllocationID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE allocations;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAllocationID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAllocationID_TextRoundTrip(t *testing.T) {
	id := NewAllocationID()
	text, err := id.MarshalText()
	require.NoError(t, err)

	var decoded AllocationID
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, id, decoded)
	assert.False(t, decoded.IsNil())
}
