// Package agent drives the observe, decide, act, reward, learn cycle against
// a puzzle environment and a decision model.
package agent

import (
	"tileagent/internal/config"
	"tileagent/internal/observe"
)

// Action indexes the four slide directions. The numbering is shared with
// every environment and model implementation.
type Action int

const (
	Up Action = iota
	Right
	Down
	Left
)

// NumActions is the size of the action set
const NumActions = 4

// Actions lists every action in index order
var Actions = [NumActions]Action{Up, Right, Down, Left}

var actionNames = [NumActions]string{"up", "right", "down", "left"}

func (a Action) String() string {
	if !a.Valid() {
		return "invalid"
	}
	return actionNames[a]
}

// Valid reports whether a is one of the four moves
func (a Action) Valid() bool {
	return a >= Up && a <= Left
}

// Environment is the puzzle game the loop plays
type Environment interface {
	Restart() error
	IsTerminated() bool
	Score() int
	Won() bool
	ApplyAction(Action) error
	Grid() observe.Cells
}

// RunResetter is implemented by environments that keep state across
// episodes. Loop.Reset calls ResetRun instead of Restart on them.
type RunResetter interface {
	ResetRun() error
}

// Model picks actions and learns from the reward of the last one.
// Forward and Backward alternate and are never called concurrently.
type Model interface {
	Forward(observe.Observation) (Action, error)
	Backward(reward float64) error
}

// ModelFactory builds a fresh, untrained model
type ModelFactory func(cfg config.ModelConfig, numInputs int) (Model, error)
