package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusConfirmed))
	assert.True(t, CanTransition(StatusPending, StatusCancelled))
	assert.True(t, CanTransition(StatusConfirmed, StatusCompleted))
	assert.True(t, CanTransition(StatusConfirmed, StatusNoShow))

	assert.False(t, CanTransition(StatusPending, StatusCompleted), "pending cannot skip straight to completed")
	assert.False(t, CanTransition(StatusCancelled, StatusConfirmed), "cancelled is terminal")
	assert.False(t, CanTransition(StatusCompleted, StatusPending))
	assert.False(t, CanTransition(StatusPending, StatusPending))
}
