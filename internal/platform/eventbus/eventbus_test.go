package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appointmentCreatedPayload struct {
	AppointmentID string `json:"appointmentId"`
	DoctorID      string `json:"doctorId"`
}

func TestNewEnvelopeRoundTrip(t *testing.T) {
	payload := appointmentCreatedPayload{AppointmentID: "appt-1", DoctorID: "doc-1"}

	env, err := NewEnvelope(EventAppointmentCreated, "tenant-1", payload)
	require.NoError(t, err)
	assert.Equal(t, EventAppointmentCreated, env.EventType)
	assert.Equal(t, "tenant-1", env.TenantID)
	assert.NotEmpty(t, env.EventID)
	assert.False(t, env.OccurredAt.IsZero())

	var decoded appointmentCreatedPayload
	require.NoError(t, env.Decode(&decoded))
	assert.Equal(t, payload, decoded)
}

func TestAggregate(t *testing.T) {
	assert.Equal(t, "appointment", Aggregate(EventAppointmentCreated))
	assert.Equal(t, "patient", Aggregate(EventPatientCreated))
	assert.Equal(t, "cache", Aggregate(EventCacheInvalidate))
	assert.Equal(t, "solo", Aggregate("solo"))
}

func TestRegistryDecode(t *testing.T) {
	reg := NewRegistry()
	Register[appointmentCreatedPayload](reg, EventAppointmentCreated)

	env, err := NewEnvelope(EventAppointmentCreated, "tenant-1", appointmentCreatedPayload{AppointmentID: "appt-9"})
	require.NoError(t, err)

	decoded, err := reg.Decode(env)
	require.NoError(t, err)
	payload, ok := decoded.(appointmentCreatedPayload)
	require.True(t, ok)
	assert.Equal(t, "appt-9", payload.AppointmentID)
}

func TestRegistryDecodeUnknownType(t *testing.T) {
	reg := NewRegistry()
	env, err := NewEnvelope("unknown.event", "tenant-1", map[string]string{})
	require.NoError(t, err)

	_, err = reg.Decode(env)
	assert.Error(t, err)
}
