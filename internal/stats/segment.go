package stats

import (
	"sync"

	"github.com/google/uuid"
)

// Segment is the id of the current run segment, shared by every sink that
// tags its output with one. It is also a Display: Clear moves to a fresh id,
// so placed first in a Displays list it renews the id before the other
// sinks see the Clear.
type Segment struct {
	mu sync.Mutex
	id string
}

// NewSegment starts a segment with a random id
func NewSegment() *Segment {
	return &Segment{id: uuid.New().String()}
}

// ID returns the current id
func (s *Segment) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Next moves to a fresh id and returns it
func (s *Segment) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = uuid.New().String()
	return s.id
}

func (s *Segment) Move(MoveEntry)            {}
func (s *Segment) Episode(EpisodeEntry)      {}
func (s *Segment) ScorePoint(ScorePoint)     {}
func (s *Segment) LongRunPoint(LongRunPoint) {}

func (s *Segment) Clear() { s.Next() }
