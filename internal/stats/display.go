package stats

// MoveEntry is the per-move readout
type MoveEntry struct {
	Action     string  `json:"action"`
	Move       int     `json:"move"`
	LastReward float64 `json:"last_reward"`
	AvgReward  float64 `json:"avg_reward"` // rounded to two decimals
}

// EpisodeEntry is the per-episode readout
type EpisodeEntry struct {
	Episode     int     `json:"episode"`
	TotalMoves  int     `json:"total_moves"`
	LargestTile int     `json:"largest_tile"`
	Won         bool    `json:"won"`
	Score       int     `json:"score"`
	TotalReward float64 `json:"total_reward"`
}

// ScorePoint is one point of the recent-score chart
type ScorePoint struct {
	X     int     `json:"x"`
	Score float64 `json:"score"`
	Avg   float64 `json:"avg"`
}

// LongRunPoint is one point of the long-run chart, sampled every N moves
type LongRunPoint struct {
	X         int     `json:"x"`
	Avg       float64 `json:"avg"`
	AvgReward float64 `json:"avg_reward"`
}

// Display receives stats as they are produced. Implementations must not
// call back into the Aggregator.
type Display interface {
	Move(MoveEntry)
	Episode(EpisodeEntry)
	ScorePoint(ScorePoint)
	LongRunPoint(LongRunPoint)
	Clear()
}

// NopDisplay discards everything
type NopDisplay struct{}

func (NopDisplay) Move(MoveEntry)            {}
func (NopDisplay) Episode(EpisodeEntry)      {}
func (NopDisplay) ScorePoint(ScorePoint)     {}
func (NopDisplay) LongRunPoint(LongRunPoint) {}
func (NopDisplay) Clear()                    {}

// Displays fans every call out to each sink in order
type Displays []Display

func (d Displays) Move(e MoveEntry) {
	for _, s := range d {
		s.Move(e)
	}
}

func (d Displays) Episode(e EpisodeEntry) {
	for _, s := range d {
		s.Episode(e)
	}
}

func (d Displays) ScorePoint(p ScorePoint) {
	for _, s := range d {
		s.ScorePoint(p)
	}
}

func (d Displays) LongRunPoint(p LongRunPoint) {
	for _, s := range d {
		s.LongRunPoint(p)
	}
}

func (d Displays) Clear() {
	for _, s := range d {
		s.Clear()
	}
}
