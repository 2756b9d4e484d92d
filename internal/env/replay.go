package env

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"tileagent/internal/agent"
)

// Replay stores a deterministic action trace for playback
type Replay struct {
	Seed    int64          `json:"seed"`
	Actions []agent.Action `json:"actions"`
	Final   ReplaySummary  `json:"final"`
	Config  ReplayConfig   `json:"config"`
}

// ReplayConfig stores the board settings needed to rebuild the game
type ReplayConfig struct {
	Size            int     `json:"size"`
	WinTile         int     `json:"win_tile"`
	StartTiles      int     `json:"start_tiles"`
	FourProbability float64 `json:"four_probability"`
}

// ReplaySummary is the outcome of the recorded episode
type ReplaySummary struct {
	Score       int  `json:"score"`
	Moves       int  `json:"moves"`
	LargestTile int  `json:"largest_tile"`
	Won         bool `json:"won"`
}

// ConfigOf returns the replay settings of g
func ConfigOf(g *Game) ReplayConfig {
	return ReplayConfig{
		Size:            g.Size,
		WinTile:         g.WinTile,
		StartTiles:      g.StartTiles,
		FourProbability: g.FourProbability,
	}
}

// NewReplay creates a new replay recorder
func NewReplay(seed int64, config ReplayConfig) *Replay {
	return &Replay{
		Seed:    seed,
		Actions: make([]agent.Action, 0, 256),
		Config:  config,
	}
}

// Record adds an action to the replay
func (r *Replay) Record(action agent.Action) {
	r.Actions = append(r.Actions, action)
}

// Finish stores the outcome of g
func (r *Replay) Finish(g *Game) {
	r.Final = ReplaySummary{
		Score:       g.Score(),
		Moves:       g.Moves(),
		LargestTile: g.LargestTile(),
		Won:         g.Won(),
	}
}

// Save writes the replay to a file
func (r *Replay) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadReplay loads a replay from a file
func LoadReplay(path string) (*Replay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Replay
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse replay %s: %w", path, err)
	}
	if r.Config.Size < 2 {
		return nil, fmt.Errorf("replay %s: board size %d", path, r.Config.Size)
	}
	return &r, nil
}

// Playback recreates the starting position of the recorded episode
func (r *Replay) Playback() *Game {
	return NewGame(
		r.Config.Size,
		r.Config.WinTile,
		r.Config.StartTiles,
		r.Config.FourProbability,
		r.Seed,
	)
}

// PlaybackStep applies the first step actions to g
func (r *Replay) PlaybackStep(g *Game, step int) error {
	if step > len(r.Actions) {
		step = len(r.Actions)
	}
	for i := 0; i < step && !g.IsTerminated(); i++ {
		if err := g.ApplyAction(r.Actions[i]); err != nil {
			return fmt.Errorf("replay action %d: %w", i, err)
		}
	}
	return nil
}
