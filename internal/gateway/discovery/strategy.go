package discovery

import (
	"math/rand"
	"sync"
	"sync/atomic"
)

// Strategy selects one instance from a healthy set. Implementations must
// be safe for concurrent use.
type Strategy interface {
	Select(instances []*Instance) *Instance
}

// RoundRobin cycles through the healthy instances in order. It is the
// default strategy per spec.md.
type RoundRobin struct {
	counter atomic.Uint64
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (s *RoundRobin) Select(instances []*Instance) *Instance {
	if len(instances) == 0 {
		return nil
	}
	n := s.counter.Add(1)
	return instances[int(n-1)%len(instances)]
}

// Random picks a uniformly random healthy instance.
type Random struct{}

func (Random) Select(instances []*Instance) *Instance {
	if len(instances) == 0 {
		return nil
	}
	return instances[rand.Intn(len(instances))]
}

// LeastRequests tracks in-flight request counts per instance and routes
// to whichever healthy instance currently has the fewest outstanding.
type LeastRequests struct {
	mu       sync.Mutex
	inFlight map[string]*atomic.Int64
}

func NewLeastRequests() *LeastRequests {
	return &LeastRequests{inFlight: make(map[string]*atomic.Int64)}
}

func (s *LeastRequests) counterFor(id string) *atomic.Int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.inFlight[id]
	if !ok {
		c = &atomic.Int64{}
		s.inFlight[id] = c
	}
	return c
}

func (s *LeastRequests) Select(instances []*Instance) *Instance {
	if len(instances) == 0 {
		return nil
	}
	var best *Instance
	var bestCount int64 = -1
	for _, inst := range instances {
		c := s.counterFor(inst.ID).Load()
		if bestCount == -1 || c < bestCount {
			best = inst
			bestCount = c
		}
	}
	return best
}

// Begin marks the start of a request against inst for LeastRequests
// accounting. The returned func must be called when the request
// completes. Only LeastRequests has this method; the other strategies
// keep no per-instance counts.
func (s *LeastRequests) Begin(inst *Instance) func() {
	c := s.counterFor(inst.ID)
	c.Add(1)
	return func() { c.Add(-1) }
}
