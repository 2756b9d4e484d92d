// Package eval plays benchmark episodes with a trained model and no learning.
package eval

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"tileagent/internal/agent"
	"tileagent/internal/config"
	"tileagent/internal/env"
	"tileagent/internal/observe"
	"tileagent/internal/reward"
	"tileagent/internal/stats"
)

// ModelLoader returns a model ready for evaluation. It is called once per
// episode so workers never share a model.
type ModelLoader func() (agent.Model, error)

// Evaluator runs benchmark episodes across seeds
type Evaluator struct {
	envCfg   config.EnvConfig
	load     ModelLoader
	workers  int
	maxTicks int
}

// NewEvaluator creates a new evaluator
func NewEvaluator(envCfg config.EnvConfig, evalCfg config.EvalConfig, load ModelLoader) *Evaluator {
	workers := evalCfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	maxTicks := evalCfg.MaxTicks
	if maxTicks <= 0 {
		maxTicks = 5000
	}
	return &Evaluator{
		envCfg:   envCfg,
		load:     load,
		workers:  workers,
		maxTicks: maxTicks,
	}
}

// EvaluateEpisode plays one episode on a game dealt from seed. The episode
// ends on termination or after maxTicks decisions, no-ops included.
func (e *Evaluator) EvaluateEpisode(ctx context.Context, model agent.Model, seed int64) (stats.EpisodeSummary, error) {
	game := env.NewGame(e.envCfg.Size, e.envCfg.WinTile, e.envCfg.StartTiles, e.envCfg.FourProbability, seed)

	var summary stats.EpisodeSummary
	for tick := 0; tick < e.maxTicks && !game.IsTerminated(); tick++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		pre, err := observe.ToObservation(game.Grid())
		if err != nil {
			return summary, err
		}
		action, err := model.Forward(pre)
		if err != nil {
			return summary, fmt.Errorf("%w: %w", agent.ErrModel, err)
		}
		if err := game.ApplyAction(action); err != nil {
			return summary, fmt.Errorf("%w: %w", agent.ErrEnvironment, err)
		}
		post, err := observe.ToObservation(game.Grid())
		if err != nil {
			return summary, err
		}
		r := reward.Compute(reward.Transition{Pre: pre, Action: int(action), Post: post})
		if err := model.Backward(r); err != nil {
			return summary, fmt.Errorf("%w: %w", agent.ErrModel, err)
		}
		summary.TotalMoves++
		summary.TotalReward += r
	}

	summary.FinalScore = game.Score()
	summary.LargestTile = game.LargestTile()
	summary.Won = game.Won()
	summary.EndedAt = time.Now()
	return summary, nil
}

// Run evaluates one episode per seed on a bounded worker pool. Results are
// in seed order. The first error cancels the remaining episodes.
func (e *Evaluator) Run(ctx context.Context, seeds []int64) ([]stats.EpisodeSummary, stats.AggregatedStats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]stats.EpisodeSummary, len(seeds))
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	sem := make(chan struct{}, e.workers)
	for i, seed := range seeds {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, seed int64) {
			defer wg.Done()
			defer func() { <-sem }()

			model, err := e.load()
			if err != nil {
				fail(fmt.Errorf("load model: %w", err))
				return
			}
			s, err := e.EvaluateEpisode(ctx, model, seed)
			if err != nil {
				fail(fmt.Errorf("seed %d: %w", seed, err))
				return
			}
			s.Episode = i + 1
			results[i] = s
		}(i, seed)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, stats.AggregatedStats{}, firstErr
	}
	return results, stats.Aggregate(results), nil
}

// Seeds returns n consecutive seeds starting at base
func Seeds(base int64, n int) []int64 {
	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = base + int64(i)
	}
	return seeds
}
