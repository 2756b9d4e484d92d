package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tileagent/internal/logging"
	"tileagent/internal/stats"
	"tileagent/internal/store"
)

func newReportCmd() *cobra.Command {
	var (
		dbPath  string
		runID   string
		longRun bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize the runs kept in the episode database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			if dbPath == "" {
				dbPath = cfg.Logging.DBPath
			}
			if dbPath == "" {
				return fmt.Errorf("no database: pass --db or set logging.db_path")
			}

			ctx := context.Background()
			db, err := store.OpenReader(ctx, dbPath, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.Runs(ctx)
			if err != nil {
				return err
			}
			for _, r := range runs {
				if (runID != "" && r.ID != runID) || r.Episodes == 0 {
					continue
				}
				episodes, err := db.Episodes(ctx, r.ID)
				if err != nil {
					return err
				}
				label := fmt.Sprintf("%s %s", r.ID[:8], r.StartedAt.Format("2006-01-02 15:04"))
				agg := stats.Aggregate(episodes)
				logging.PrintBenchmark(os.Stdout, label, agg)
				fmt.Printf("  robustness (λ=%.2f): %.1f\n", cfg.Eval.RobustnessLambda, agg.RobustnessScore(cfg.Eval.RobustnessLambda))

				if !longRun {
					continue
				}
				points, err := db.LongRun(ctx, r.ID)
				if err != nil {
					return err
				}
				for _, p := range points {
					fmt.Printf("  %8d  avg score %8.1f  avg reward %6.2f\n", p.X, p.Avg, p.AvgReward)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "episode database (default logging.db_path)")
	cmd.Flags().StringVar(&runID, "run", "", "only this run id")
	cmd.Flags().BoolVar(&longRun, "long-run", false, "print the long-run series")
	return cmd
}
