// Package stats keeps the running per-move and per-episode statistics of a run.
package stats

import (
	"math"
	"sync"
	"time"

	"tileagent/internal/config"
)

// EpisodeSummary is created when an episode ends and never changed afterwards
type EpisodeSummary struct {
	Episode     int       `json:"episode"`
	TotalMoves  int       `json:"total_moves"`
	FinalScore  int       `json:"final_score"`
	LargestTile int       `json:"largest_tile"`
	Won         bool      `json:"won"`
	TotalReward float64   `json:"total_reward"`
	EndedAt     time.Time `json:"ended_at"`
}

// Snapshot is a copy of the aggregator state
type Snapshot struct {
	LastAction    string
	LastReward    float64
	TotalMoves    int
	TotalReward   float64
	AverageReward float64
	HasAverage    bool

	LearningSteps   int
	Episodes        int
	CumulativeScore float64
	AverageScore    float64
	Wins            int
	BestTile        int

	Window  []ScorePoint
	LongRun []LongRunPoint
	History []EpisodeSummary
}

// Aggregator owns every average in the system.
//
// Move counters (TotalMoves, TotalReward) cover the current episode and are
// cleared by ResetEpisode. Episode counts, the recent-score window, the
// long-run series and the episode history cover the whole run and are only
// cleared by Reset.
type Aggregator struct {
	mu      sync.RWMutex
	cfg     config.StatsConfig
	display Display

	lastAction  string
	lastReward  float64
	totalMoves  int
	totalReward float64

	learningSteps int
	sinceLongRun  int
	longRunReward float64

	episodes        int
	cumulativeScore float64
	wins            int
	bestTile        int

	window  []ScorePoint
	longRun []LongRunPoint
	history []EpisodeSummary
}

// NewAggregator creates an aggregator that reports to display (nil for none)
func NewAggregator(cfg config.StatsConfig, display Display) *Aggregator {
	if cfg.WindowSize < 1 {
		cfg.WindowSize = 200
	}
	if cfg.LongRunEvery < 1 {
		cfg.LongRunEvery = 10000
	}
	if display == nil {
		display = NopDisplay{}
	}
	return &Aggregator{
		cfg:     cfg,
		display: display,
		window:  make([]ScorePoint, 0, cfg.WindowSize),
	}
}

// RecordMove counts one move and its reward
func (a *Aggregator) RecordMove(action string, reward float64) MoveEntry {
	a.mu.Lock()
	a.lastAction = action
	a.lastReward = reward
	a.totalMoves++
	a.totalReward += reward

	a.learningSteps++
	a.sinceLongRun++
	a.longRunReward += reward

	entry := MoveEntry{
		Action:     action,
		Move:       a.totalMoves,
		LastReward: reward,
		AvgReward:  Round2(a.totalReward / float64(a.totalMoves)),
	}

	var point *LongRunPoint
	if a.sinceLongRun >= a.cfg.LongRunEvery {
		p := LongRunPoint{
			X:         a.learningSteps,
			Avg:       a.averageScoreLocked(),
			AvgReward: a.longRunReward / float64(a.sinceLongRun),
		}
		a.longRun = append(a.longRun, p)
		a.sinceLongRun = 0
		a.longRunReward = 0
		point = &p
	}
	a.mu.Unlock()

	a.display.Move(entry)
	if point != nil {
		a.display.LongRunPoint(*point)
	}
	return entry
}

// RecordEpisode appends a finished episode
func (a *Aggregator) RecordEpisode(s EpisodeSummary) {
	a.mu.Lock()
	a.episodes++
	a.cumulativeScore += float64(s.FinalScore)
	if s.Won {
		a.wins++
	}
	if s.LargestTile > a.bestTile {
		a.bestTile = s.LargestTile
	}
	a.history = append(a.history, s)

	point := ScorePoint{
		X:     a.episodes,
		Score: float64(s.FinalScore),
		Avg:   a.averageScoreLocked(),
	}
	if len(a.window) >= a.cfg.WindowSize {
		copy(a.window, a.window[1:])
		a.window = a.window[:len(a.window)-1]
	}
	a.window = append(a.window, point)
	a.mu.Unlock()

	a.display.Episode(EpisodeEntry{
		Episode:     s.Episode,
		TotalMoves:  s.TotalMoves,
		LargestTile: s.LargestTile,
		Won:         s.Won,
		Score:       s.FinalScore,
		TotalReward: s.TotalReward,
	})
	a.display.ScorePoint(point)
}

// ResetEpisode clears the per-episode move and reward counters
func (a *Aggregator) ResetEpisode() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastAction = ""
	a.lastReward = 0
	a.totalMoves = 0
	a.totalReward = 0
}

// Reset clears everything, run history included, and clears the display
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.lastAction = ""
	a.lastReward = 0
	a.totalMoves = 0
	a.totalReward = 0
	a.learningSteps = 0
	a.sinceLongRun = 0
	a.longRunReward = 0
	a.episodes = 0
	a.cumulativeScore = 0
	a.wins = 0
	a.bestTile = 0
	a.window = a.window[:0]
	a.longRun = nil
	a.history = nil
	a.mu.Unlock()

	a.display.Clear()
}

// AverageReward returns the mean reward per move of the current episode.
// ok is false before the first move.
func (a *Aggregator) AverageReward() (avg float64, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.totalMoves == 0 {
		return 0, false
	}
	return a.totalReward / float64(a.totalMoves), true
}

// EpisodeTotals returns the move count and reward sum of the current episode
func (a *Aggregator) EpisodeTotals() (moves int, reward float64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.totalMoves, a.totalReward
}

// Snapshot copies the current state
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Snapshot{
		LastAction:      a.lastAction,
		LastReward:      a.lastReward,
		TotalMoves:      a.totalMoves,
		TotalReward:     a.totalReward,
		LearningSteps:   a.learningSteps,
		Episodes:        a.episodes,
		CumulativeScore: a.cumulativeScore,
		AverageScore:    a.averageScoreLocked(),
		Wins:            a.wins,
		BestTile:        a.bestTile,
		Window:          append([]ScorePoint(nil), a.window...),
		LongRun:         append([]LongRunPoint(nil), a.longRun...),
		History:         append([]EpisodeSummary(nil), a.history...),
	}
	if a.totalMoves > 0 {
		s.AverageReward = a.totalReward / float64(a.totalMoves)
		s.HasAverage = true
	}
	return s
}

func (a *Aggregator) averageScoreLocked() float64 {
	if a.episodes == 0 {
		return 0
	}
	return a.cumulativeScore / float64(a.episodes)
}

// Round2 rounds to two decimals for display
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
