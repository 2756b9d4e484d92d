package env

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/rs/zerolog"

	"tileagent/internal/agent"
)

// Recorder wraps a Game and keeps a replay of the current episode.
// Every episode is dealt from its own seed so it can be replayed alone.
// When an episode ends with a better score than any before it, its replay
// is written to dir.
type Recorder struct {
	*Game

	dir     string
	seeds   *rand.Rand
	replay  *Replay
	run     int
	episode int
	best    int
	last    string
	logger  zerolog.Logger
}

// NewRecorder restarts g from its seed and starts recording
func NewRecorder(g *Game, dir string, logger zerolog.Logger) *Recorder {
	r := &Recorder{
		Game:    g,
		dir:     dir,
		seeds:   rand.New(rand.NewSource(g.Seed())),
		run:     1,
		episode: 1,
		best:    -1,
		logger:  logger.With().Str("component", "recorder").Logger(),
	}
	g.Reseed(g.Seed())
	r.replay = NewReplay(g.Seed(), ConfigOf(g))
	return r
}

// ApplyAction plays and records one move
func (r *Recorder) ApplyAction(a agent.Action) error {
	if err := r.Game.ApplyAction(a); err != nil {
		return err
	}
	r.replay.Record(a)
	return nil
}

// Restart closes the current episode and deals the next one from a fresh seed
func (r *Recorder) Restart() error {
	r.Flush()
	r.Game.Reseed(r.seeds.Int63())
	r.replay = NewReplay(r.Game.Seed(), ConfigOf(r.Game))
	r.episode++
	return nil
}

// ResetRun closes the current episode and starts a new run: episode
// numbering restarts at 1 and the best score is forgotten.
func (r *Recorder) ResetRun() error {
	if err := r.Restart(); err != nil {
		return err
	}
	r.run++
	r.episode = 1
	r.best = -1
	return nil
}

// Replay returns the in-progress replay
func (r *Recorder) Replay() *Replay {
	return r.replay
}

// LastSaved returns the path of the most recent replay written, if any
func (r *Recorder) LastSaved() string {
	return r.last
}

// Flush saves the replay of the current episode if it is a new best.
// A failed write is logged and never blocks a restart.
func (r *Recorder) Flush() {
	if len(r.replay.Actions) == 0 || r.Game.Score() <= r.best {
		return
	}
	r.replay.Finish(r.Game)
	r.best = r.Game.Score()
	if r.dir == "" {
		return
	}

	path := filepath.Join(r.dir, fmt.Sprintf("replay_run%d_ep%d_score%d.json", r.run, r.episode, r.best))
	if err := r.replay.Save(path); err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("save replay")
		return
	}
	r.last = path
	r.logger.Info().Str("path", path).Int("score", r.best).Msg("new best replay")
}
