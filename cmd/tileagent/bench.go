package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tileagent/internal/agent"
	"tileagent/internal/config"
	"tileagent/internal/eval"
	"tileagent/internal/logging"
	"tileagent/internal/nn"
)

func newBenchCmd() *cobra.Command {
	var (
		checkpoint string
		numSeeds   int
		baseSeed   int64
		workers    int
		epsilon    float64
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark a saved checkpoint with learning off",
		Long: `Benchmark a saved checkpoint with learning off.

Moves are greedy except with probability --epsilon (default 0), and the
first move of each episode, which is random until the brain has a full
input window.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			if checkpoint == "" {
				checkpoint = cfg.Logging.CheckpointPath
			}
			if checkpoint == "" {
				return fmt.Errorf("no checkpoint: pass --checkpoint or set logging.checkpoint_path")
			}
			if workers > 0 {
				cfg.Eval.Workers = workers
			}

			seeds := cfg.Eval.BenchmarkSeeds
			if numSeeds > 0 {
				seeds = eval.Seeds(baseSeed, numSeeds)
			}

			if epsilon < 0 || epsilon > 1 {
				return fmt.Errorf("--epsilon must be in [0, 1], got %g", epsilon)
			}
			cfg.Model.EpsilonTestTime = epsilon

			load := benchLoader(checkpoint, cfg.Model, cfg.Seed)
			// fail early on a bad file rather than once per worker
			if _, err := load(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger.Info().Str("checkpoint", checkpoint).Int("episodes", len(seeds)).Msg("benchmark")
			evaluator := eval.NewEvaluator(cfg.Env, cfg.Eval, load)
			_, agg, err := evaluator.Run(ctx, seeds)
			if err != nil {
				return err
			}

			logging.PrintBenchmark(os.Stdout, checkpoint, agg)
			fmt.Printf("  robustness (λ=%.2f): %.1f\n", cfg.Eval.RobustnessLambda, agg.RobustnessScore(cfg.Eval.RobustnessLambda))
			return nil
		},
	}
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "checkpoint to evaluate (default logging.checkpoint_path)")
	cmd.Flags().IntVar(&numSeeds, "seeds", 0, "number of consecutive seeds (default eval.benchmark_seeds)")
	cmd.Flags().Int64Var(&baseSeed, "base", 1, "first seed when --seeds is set")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel episodes (default eval.workers)")
	cmd.Flags().Float64Var(&epsilon, "epsilon", 0, "chance of a random move")
	return cmd
}

// benchLoader loads a fresh copy of the checkpoint for each episode with
// learning switched off
func benchLoader(path string, mc config.ModelConfig, seed int64) eval.ModelLoader {
	return func() (agent.Model, error) {
		brain, err := nn.Load(path, mc, seed)
		if err != nil {
			return nil, err
		}
		brain.SetLearning(false)
		return brain, nil
	}
}
