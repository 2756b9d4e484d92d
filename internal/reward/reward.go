// Package reward scores a single move from the grid before and after it.
package reward

import "tileagent/internal/observe"

// Reward values. A wasted move is punished harder than any legal outcome.
const (
	Merge = 1.0  // tile count held or dropped
	Spawn = -1.0 // tile count grew
	NoOp  = -5.0 // the grid did not change
)

// Transition is one pre/action/post triple; it lives for a single tick
type Transition struct {
	Pre    observe.Observation
	Action int
	Post   observe.Observation
}

// Breakdown records how a reward was derived
type Breakdown struct {
	PreCount int
	CurCount int
	DidMove  bool
	Reward   float64
}

// Compute returns the reward for a transition.
// The merge check runs first and the no-op penalty overrides it.
func Compute(t Transition) float64 {
	return Explain(t).Reward
}

// Explain is Compute with the intermediate counts
func Explain(t Transition) Breakdown {
	b := Breakdown{
		PreCount: observe.CountOccupied(t.Pre),
		CurCount: observe.CountOccupied(t.Post),
		DidMove:  !observe.Equal(t.Pre, t.Post),
	}
	if b.CurCount <= b.PreCount {
		b.Reward = Merge
	} else {
		b.Reward = Spawn
	}
	if !b.DidMove {
		b.Reward = NoOp
	}
	return b
}
