package nn

import (
	"math/rand"

	"tileagent/internal/agent"
)

// Experience is one (s0, a0, r0, s1) transition in network input space
type Experience struct {
	State0  []float64
	Action0 agent.Action
	Reward0 float64
	State1  []float64
}

// Memory is a bounded replay memory. Once full, each new experience
// overwrites a random slot.
type Memory struct {
	capacity int
	items    []Experience
	rng      *rand.Rand
}

// NewMemory creates an empty memory holding at most capacity experiences
func NewMemory(capacity int, rng *rand.Rand) *Memory {
	if capacity < 1 {
		capacity = 1
	}
	return &Memory{
		capacity: capacity,
		items:    make([]Experience, 0, min(capacity, 1024)),
		rng:      rng,
	}
}

// Add stores e
func (m *Memory) Add(e Experience) {
	if len(m.items) < m.capacity {
		m.items = append(m.items, e)
		return
	}
	m.items[m.rng.Intn(len(m.items))] = e
}

// Sample draws n experiences uniformly with replacement
func (m *Memory) Sample(n int) []Experience {
	if len(m.items) == 0 {
		return nil
	}
	out := make([]Experience, n)
	for i := range out {
		out[i] = m.items[m.rng.Intn(len(m.items))]
	}
	return out
}

// Len returns the number of stored experiences
func (m *Memory) Len() int {
	return len(m.items)
}
