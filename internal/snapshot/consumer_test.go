package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsAny(t *testing.T) {
	assert.True(t, containsAny([]string{"patient-snapshots", "other"}, "patient-snapshots"))
	assert.False(t, containsAny([]string{"other"}, "patient-snapshots"))
	assert.False(t, containsAny(nil, "patient-snapshots"))
}
