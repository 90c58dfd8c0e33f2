package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func instances(ids ...string) []*Instance {
	out := make([]*Instance, len(ids))
	for i, id := range ids {
		out[i] = &Instance{ID: id, BaseURL: id, healthy: true}
	}
	return out
}

func TestRoundRobinCyclesInOrder(t *testing.T) {
	rr := NewRoundRobin()
	in := instances("a", "b", "c")

	got := []string{
		rr.Select(in).ID,
		rr.Select(in).ID,
		rr.Select(in).ID,
		rr.Select(in).ID,
	}
	assert.Equal(t, []string{"a", "b", "c", "a"}, got)
}

func TestRoundRobinEmpty(t *testing.T) {
	rr := NewRoundRobin()
	assert.Nil(t, rr.Select(nil))
}

func TestRandomSelectReturnsOneOfInstances(t *testing.T) {
	in := instances("a", "b", "c")
	r := Random{}
	for i := 0; i < 20; i++ {
		got := r.Select(in)
		assert.Contains(t, []string{"a", "b", "c"}, got.ID)
	}
}

func TestRandomSelectEmpty(t *testing.T) {
	assert.Nil(t, Random{}.Select(nil))
}

func TestLeastRequestsPrefersFewestInFlight(t *testing.T) {
	lr := NewLeastRequests()
	in := instances("a", "b")

	done := lr.Begin(in[0])
	defer done()

	got := lr.Select(in)
	assert.Equal(t, "b", got.ID)
}

func TestLeastRequestsBeginEndRoundTrips(t *testing.T) {
	lr := NewLeastRequests()
	in := instances("a", "b")

	done := lr.Begin(in[0])
	done()

	// Back to even: with both at zero in-flight, the tie goes to the first
	// instance in slice order.
	got := lr.Select(in)
	assert.Equal(t, "a", got.ID)
}

func TestLeastRequestsEmpty(t *testing.T) {
	lr := NewLeastRequests()
	assert.Nil(t, lr.Select(nil))
}
