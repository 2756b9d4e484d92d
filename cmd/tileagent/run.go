package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tileagent/internal/agent"
	"tileagent/internal/config"
	"tileagent/internal/env"
	"tileagent/internal/logging"
	"tileagent/internal/nn"
	"tileagent/internal/stats"
	"tileagent/internal/store"
)

const renderEvery = 250 * time.Millisecond

type runOptions struct {
	duration time.Duration
	interval time.Duration
	quiet    bool
	paused   bool
	resume   bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Train the agent on a live board",
		Long: `Train the agent on a live board.

Controls (type a letter and press enter):
  s  start      p  pause      n  single step
  r  reset      +  faster     -  slower
  q  quit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if opts.duration > 0 {
				ctx, cancel = context.WithTimeout(ctx, opts.duration)
				defer cancel()
			}
			return runAgent(ctx, cfg, opts, logger)
		},
	}
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "stop after this long (0 runs until quit)")
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "tick period (default from config)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not draw the board")
	cmd.Flags().BoolVar(&opts.paused, "paused", false, "start paused")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "continue from the saved checkpoint")
	return cmd
}

func runAgent(ctx context.Context, cfg *config.Config, opts runOptions, logger zerolog.Logger) error {
	game := env.NewGame(cfg.Env.Size, cfg.Env.WinTile, cfg.Env.StartTiles, cfg.Env.FourProbability, cfg.Seed)
	var environment agent.Environment = game
	var recorder *env.Recorder
	if cfg.Logging.ReplayDir != "" {
		recorder = env.NewRecorder(game, cfg.Logging.ReplayDir, logger)
		environment = recorder
	}

	displays, segment, closeSinks, err := openSinks(ctx, cfg.Logging, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	display := NewDisplay(cfg.Env.Size, os.Stdout, !opts.quiet)
	displays = append(displays, display)
	agg := stats.NewAggregator(cfg.Stats, displays)

	factory, err := brainFactory(cfg, opts.resume, logger)
	if err != nil {
		return err
	}

	interval := opts.interval
	if interval <= 0 {
		interval = time.Duration(cfg.Loop.IntervalMs) * time.Millisecond
	}

	var lastRender time.Time
	loopOpts := []agent.Option{
		agent.WithInterval(interval),
		agent.WithLogger(logger),
	}
	if !opts.quiet {
		loopOpts = append(loopOpts, agent.WithOnTick(func(error) {
			if time.Since(lastRender) < renderEvery {
				return
			}
			lastRender = time.Now()
			display.RenderRun(game.Board(), agg.Snapshot(), "running")
		}))
	}
	loop, err := agent.New(environment, factory, cfg.Model, agg, loopOpts...)
	if err != nil {
		return err
	}

	logger.Info().
		Str("run_id", segment.ID()).
		Dur("interval", loop.Interval()).
		Int("size", cfg.Env.Size).
		Msg("agent ready")

	if !opts.paused {
		loop.Start()
	}

	commands := make(chan string)
	go readCommands(commands)

	for quit := false; !quit; {
		select {
		case <-ctx.Done():
			quit = true
		case line, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			quit = handleCommand(ctx, loop, line, logger)
			if !opts.quiet && !loop.Running() {
				display.RenderRun(game.Board(), agg.Snapshot(), "paused")
			}
		}
	}

	loop.Pause()
	if recorder != nil {
		recorder.Flush()
	}
	snap := agg.Snapshot()
	logger.Info().
		Int("episodes", snap.Episodes).
		Int("learning_steps", snap.LearningSteps).
		Float64("avg_score", snap.AverageScore).
		Int("best_tile", snap.BestTile).
		Msg("stopped")

	if path := cfg.Logging.CheckpointPath; path != "" {
		if brain, ok := loop.Model().(*nn.Brain); ok {
			if err := brain.Save(path); err != nil {
				return fmt.Errorf("save checkpoint: %w", err)
			}
			logger.Info().Str("path", path).Int("age", brain.Age()).Msg("checkpoint saved")
		}
	}
	return nil
}

// openSinks opens the artifact sinks. They share one run segment, which
// comes first in the list so a reset renews the id before they see it.
func openSinks(ctx context.Context, cfg config.LoggingConfig, logger zerolog.Logger) (stats.Displays, *stats.Segment, func(), error) {
	segment := stats.NewSegment()
	displays := stats.Displays{segment}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	runLog, err := logging.NewRunLogger(cfg.CSVPath, cfg.JSONPath, segment)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("run logger: %w", err)
	}
	if err := runLog.Init(); err != nil {
		return nil, nil, nil, fmt.Errorf("run logger: %w", err)
	}
	closers = append(closers, func() {
		if err := runLog.Close(); err != nil {
			logger.Warn().Err(err).Msg("run log incomplete")
		}
	})
	displays = append(displays, runLog)

	if cfg.DBPath != "" {
		db, err := store.Open(ctx, cfg.DBPath, segment, logger)
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("store: %w", err)
		}
		closers = append(closers, func() { db.Close() })
		displays = append(displays, db)
	}
	return displays, segment, closeAll, nil
}

// brainFactory builds fresh brains. With resume the first brain comes from
// the checkpoint and later resets start from scratch.
func brainFactory(cfg *config.Config, resume bool, logger zerolog.Logger) (agent.ModelFactory, error) {
	fresh := nn.NewBrainFactory(cfg.Seed)
	if !resume {
		return fresh, nil
	}
	path := cfg.Logging.CheckpointPath
	if path == "" {
		return nil, errors.New("resume needs logging.checkpoint_path")
	}
	loaded, err := nn.Load(path, cfg.Model, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	logger.Info().Str("path", path).Int("age", loaded.Age()).Msg("checkpoint loaded")

	used := false
	return func(mc config.ModelConfig, numInputs int) (agent.Model, error) {
		if used {
			return fresh(mc, numInputs)
		}
		used = true
		return loaded, nil
	}, nil
}

func readCommands(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- strings.TrimSpace(scanner.Text())
	}
}

// handleCommand applies one control; it reports whether to quit
func handleCommand(ctx context.Context, loop *agent.Loop, line string, logger zerolog.Logger) bool {
	switch line {
	case "s":
		loop.Start()
	case "p":
		loop.Pause()
	case "n":
		if err := loop.Step(ctx); err != nil {
			logger.Warn().Err(err).Msg("step")
		}
	case "r":
		if err := loop.Reset(); err != nil {
			logger.Error().Err(err).Msg("reset")
		}
	case "+", "-":
		d := loop.Interval()
		if line == "+" {
			d /= 2
		} else {
			d *= 2
		}
		if err := loop.SetSpeed(max(d, time.Millisecond)); err != nil {
			logger.Warn().Err(err).Msg("speed")
		}
		logger.Info().Dur("interval", loop.Interval()).Msg("speed")
	case "q":
		return true
	case "":
	default:
		logger.Warn().Str("command", line).Msg("unknown command")
	}
	return false
}
