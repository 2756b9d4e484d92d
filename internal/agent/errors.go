package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrEnvironment marks a failure inside the environment
	ErrEnvironment = errors.New("environment error")
	// ErrModel marks a failure inside the model
	ErrModel = errors.New("model error")
	// ErrRunning is returned by Step while the schedule is active
	ErrRunning = errors.New("loop is running")
)

// Stage names the point in a tick where it failed
type Stage string

const (
	StageObserve  Stage = "observe"
	StageForward  Stage = "forward"
	StageApply    Stage = "apply"
	StageBackward Stage = "backward"
	StageRestart  Stage = "restart"
)

// TickError is an aborted tick. Err wraps ErrEnvironment or ErrModel for
// collaborator failures, or an *observe.InvalidGridError.
type TickError struct {
	Stage Stage
	Err   error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("tick %s: %v", e.Stage, e.Err)
}

func (e *TickError) Unwrap() error {
	return e.Err
}

func envError(stage Stage, err error) *TickError {
	return &TickError{Stage: stage, Err: fmt.Errorf("%w: %w", ErrEnvironment, err)}
}

func modelError(stage Stage, err error) *TickError {
	return &TickError{Stage: stage, Err: fmt.Errorf("%w: %w", ErrModel, err)}
}
