// Package episode detects the end of a game and sequences the reset that follows.
package episode

// State of the current episode
type State int

const (
	Running State = iota
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Tracker is the two-state machine behind episode boundaries.
//
// When Observe reports Terminated the caller records the episode, marks it
// with MarkRecorded, restarts the environment and finally calls Complete.
// If the restart fails the tracker stays Terminated with the summary already
// recorded, so the next attempt only retries the restart.
type Tracker struct {
	state    State
	episode  int
	recorded bool
}

// NewTracker starts in Running at episode 1
func NewTracker() *Tracker {
	return &Tracker{state: Running, episode: 1}
}

// Observe feeds the environment's termination flag and returns the new state
func (t *Tracker) Observe(terminated bool) State {
	if t.state == Running && terminated {
		t.state = Terminated
		t.recorded = false
	}
	return t.state
}

// State returns the current state
func (t *Tracker) State() State {
	return t.state
}

// Episode returns the 1-based index of the current episode
func (t *Tracker) Episode() int {
	return t.episode
}

// Recorded reports whether the terminated episode has been summarized
func (t *Tracker) Recorded() bool {
	return t.recorded
}

// MarkRecorded notes that the summary was handed to stats
func (t *Tracker) MarkRecorded() {
	if t.state == Terminated {
		t.recorded = true
	}
}

// Complete moves a recorded, restarted episode back to Running
func (t *Tracker) Complete() {
	if t.state != Terminated {
		return
	}
	t.state = Running
	t.recorded = false
	t.episode++
}

// Reset returns to the first episode
func (t *Tracker) Reset() {
	t.state = Running
	t.episode = 1
	t.recorded = false
}
