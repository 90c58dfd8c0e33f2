package audit

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianclinic/platform/internal/platform/eventbus"
)

func TestEntryCarriesEnvelopeFields(t *testing.T) {
	id := uuid.New()
	now := time.Now().UTC()
	resourceID := "appt-1"

	entry := Entry{
		EventID:      id,
		EventType:    "appointment.created",
		TenantID:     "tenant-1",
		Action:       "CREATE",
		ResourceType: "APPOINTMENT",
		ResourceID:   &resourceID,
		OccurredAt:   now,
	}

	assert.Equal(t, id, entry.EventID)
	assert.Equal(t, "appointment.created", entry.EventType)
	assert.Equal(t, "tenant-1", entry.TenantID)
	assert.Equal(t, now, entry.OccurredAt)
	assert.Equal(t, "appt-1", *entry.ResourceID)
}

func TestEntryFromEnvelopeProjectsKnownEventType(t *testing.T) {
	env, err := eventbus.NewEnvelope(eventbus.EventAppointmentCreated, "tenant-1", map[string]any{
		"appointmentId": "appt-1",
		"patientId":     "pat-1",
	})
	require.NoError(t, err)

	entry := entryFromEnvelope(env)

	assert.Equal(t, "CREATE", entry.Action)
	assert.Equal(t, "APPOINTMENT", entry.ResourceType)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "appt-1", *entry.ResourceID)
	assert.Nil(t, entry.UserID)
	assert.JSONEq(t, `{"appointmentId":"appt-1","patientId":"pat-1"}`, string(entry.NewValue))
}

func TestEntryFromEnvelopeCapturesUserRegistration(t *testing.T) {
	env, err := eventbus.NewEnvelope(eventbus.EventUserRegistered, "tenant-1", map[string]any{
		"userId": "user-1",
		"email":  "a@example.com",
		"name":   "A B",
	})
	require.NoError(t, err)

	entry := entryFromEnvelope(env)

	assert.Equal(t, "REGISTER", entry.Action)
	assert.Equal(t, "USER", entry.ResourceType)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "user-1", *entry.ResourceID)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "user-1", *entry.UserID)
	require.NotNil(t, entry.UserEmail)
	assert.Equal(t, "a@example.com", *entry.UserEmail)
}

func TestEntryFromEnvelopeFallsBackOnUnknownEventType(t *testing.T) {
	env, err := eventbus.NewEnvelope("widget.sprocketed", "tenant-1", map[string]any{"id": "w-1"})
	require.NoError(t, err)

	entry := entryFromEnvelope(env)

	assert.Equal(t, "widget.sprocketed", entry.Action)
	assert.Equal(t, "UNKNOWN", entry.ResourceType)
	assert.Nil(t, entry.ResourceID)
}
