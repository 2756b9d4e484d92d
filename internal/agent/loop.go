package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tileagent/internal/config"
	"tileagent/internal/episode"
	"tileagent/internal/observe"
	"tileagent/internal/reward"
	"tileagent/internal/stats"
)

// DefaultInterval is the tick period when none is configured
const DefaultInterval = 200 * time.Millisecond

// Loop runs one tick per interval on a single goroutine.
//
// Control operations (Start, Pause, SetSpeed, Reset, Step) are serialized by
// mu. Anything that mutates loop state first stops the schedule and waits
// for the in-flight tick, so ticks never race a control operation. The
// ticker drops ticks that come due while a slow tick is still running.
type Loop struct {
	mu sync.Mutex

	env       Environment
	factory   ModelFactory
	modelCfg  config.ModelConfig
	numInputs int
	agg       *stats.Aggregator
	tracker   *episode.Tracker
	logger    zerolog.Logger
	onTick    func(error)

	model    Model
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

// Option configures a Loop
type Option func(*Loop)

// WithInterval sets the tick period
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger.With().Str("component", "agent").Logger()
	}
}

// WithOnTick registers fn to run after every scheduled tick with the tick's
// error (nil on success). fn runs on the loop goroutine and must not call
// back into the Loop.
func WithOnTick(fn func(error)) Option {
	return func(l *Loop) {
		l.onTick = fn
	}
}

// New builds a paused loop and its first model
func New(env Environment, factory ModelFactory, modelCfg config.ModelConfig, agg *stats.Aggregator, opts ...Option) (*Loop, error) {
	if env == nil || factory == nil || agg == nil {
		return nil, errors.New("agent: environment, model factory and aggregator are required")
	}
	size := env.Grid().Size()
	l := &Loop{
		env:       env,
		factory:   factory,
		modelCfg:  modelCfg,
		numInputs: size * size,
		agg:       agg,
		tracker:   episode.NewTracker(),
		logger:    zerolog.Nop(),
		interval:  DefaultInterval,
	}
	for _, opt := range opts {
		opt(l)
	}

	model, err := factory(modelCfg, l.numInputs)
	if err != nil {
		return nil, fmt.Errorf("%w: build model: %w", ErrModel, err)
	}
	l.model = model
	return l, nil
}

// Start begins ticking. Calling it while running does nothing.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.startLocked()
}

// Pause stops ticking and waits for an in-flight tick to finish
func (l *Loop) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pauseLocked()
}

// SetSpeed pauses, sets the tick period and starts again. A paused loop
// is started too.
func (l *Loop) SetSpeed(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("agent: interval must be positive, got %v", d)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pauseLocked()
	l.interval = d
	l.startLocked()
	l.logger.Debug().Dur("interval", d).Msg("speed changed")
	return nil
}

// Reset pauses the loop, clears all stats, restarts the environment and
// replaces the model with a fresh one built from the same config.
// The loop is left paused.
func (l *Loop) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pauseLocked()
	l.agg.Reset()
	l.tracker.Reset()
	restart := l.env.Restart
	if rr, ok := l.env.(RunResetter); ok {
		restart = rr.ResetRun
	}
	if err := restart(); err != nil {
		return fmt.Errorf("reset: %w: %w", ErrEnvironment, err)
	}
	model, err := l.factory(l.modelCfg, l.numInputs)
	if err != nil {
		return fmt.Errorf("reset: %w: %w", ErrModel, err)
	}
	l.model = model
	l.logger.Info().Msg("reset")
	return nil
}

// Step runs exactly one tick on the caller's goroutine. It fails with
// ErrRunning unless the loop is paused.
func (l *Loop) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stop != nil {
		return ErrRunning
	}
	return l.tick()
}

// Running reports whether a schedule is active
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stop != nil
}

// Interval returns the tick period
func (l *Loop) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}

// Model returns the current model. Only use it while the loop is paused.
func (l *Loop) Model() Model {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.model
}

// Episode returns the 1-based index of the episode being played
func (l *Loop) Episode() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tracker.Episode()
}

func (l *Loop) startLocked() {
	if l.stop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	l.stop, l.done = stop, done
	go l.run(l.interval, stop, done)
	l.logger.Debug().Dur("interval", l.interval).Msg("started")
}

func (l *Loop) pauseLocked() {
	if l.stop == nil {
		return
	}
	close(l.stop)
	<-l.done
	l.stop, l.done = nil, nil
	l.logger.Debug().Msg("paused")
}

func (l *Loop) run(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// a stop and a tick can be ready together
			select {
			case <-stop:
				return
			default:
			}
			err := l.tick()
			if err != nil {
				var te *TickError
				stage := StageObserve
				if errors.As(err, &te) {
					stage = te.Stage
				}
				l.logger.Warn().Err(err).Str("stage", string(stage)).Msg("tick skipped")
			}
			if l.onTick != nil {
				l.onTick(err)
			}
		}
	}
}

// tick runs one observe, decide, act, reward, learn, record cycle.
// Stats are only touched once every collaborator call has succeeded.
func (l *Loop) tick() error {
	pre, err := observe.ToObservation(l.env.Grid())
	if err != nil {
		return &TickError{Stage: StageObserve, Err: err}
	}

	if l.tracker.Observe(l.env.IsTerminated()) == episode.Terminated {
		return l.endEpisode(pre)
	}

	action, err := l.model.Forward(pre)
	if err != nil {
		return modelError(StageForward, err)
	}
	if !action.Valid() {
		return modelError(StageForward, fmt.Errorf("action %d out of range", int(action)))
	}

	if err := l.env.ApplyAction(action); err != nil {
		return envError(StageApply, err)
	}

	post, err := observe.ToObservation(l.env.Grid())
	if err != nil {
		return &TickError{Stage: StageObserve, Err: err}
	}

	b := reward.Explain(reward.Transition{Pre: pre, Action: int(action), Post: post})

	if err := l.model.Backward(b.Reward); err != nil {
		return modelError(StageBackward, err)
	}

	entry := l.agg.RecordMove(action.String(), b.Reward)
	l.logger.Debug().
		Str("action", action.String()).
		Int("pre", b.PreCount).
		Int("cur", b.CurCount).
		Bool("moved", b.DidMove).
		Float64("reward", b.Reward).
		Int("move", entry.Move).
		Msg("tick")
	return nil
}

// endEpisode is the terminal tick: summarize, restart, reset counters.
// No action is applied. A failed restart leaves the episode recorded, so
// the next tick retries only the restart.
func (l *Loop) endEpisode(final observe.Observation) error {
	if !l.tracker.Recorded() {
		moves, total := l.agg.EpisodeTotals()
		summary := stats.EpisodeSummary{
			Episode:     l.tracker.Episode(),
			TotalMoves:  moves,
			FinalScore:  l.env.Score(),
			LargestTile: observe.MaxTile(final),
			Won:         l.env.Won(),
			TotalReward: total,
			EndedAt:     time.Now(),
		}
		l.agg.RecordEpisode(summary)
		l.tracker.MarkRecorded()

		l.logger.Info().
			Int("episode", summary.Episode).
			Int("moves", summary.TotalMoves).
			Int("score", summary.FinalScore).
			Int("largest_tile", summary.LargestTile).
			Bool("won", summary.Won).
			Msg("episode finished")
	}

	if err := l.env.Restart(); err != nil {
		return envError(StageRestart, err)
	}
	l.agg.ResetEpisode()
	l.tracker.Complete()
	return nil
}
