package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tileagent/internal/env"
)

func newReplayCmd() *cobra.Command {
	var (
		delay     time.Duration
		noDisplay bool
	)
	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Play back a recorded episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			replay, err := env.LoadReplay(args[0])
			if err != nil {
				return err
			}
			game := replay.Playback()
			display := NewDisplay(replay.Config.Size, os.Stdout, true)

			fmt.Printf("Replay seed %d, %d actions\n", replay.Seed, len(replay.Actions))
			for i, a := range replay.Actions {
				if game.IsTerminated() {
					break
				}
				if !noDisplay {
					display.Render(game.Board(),
						fmt.Sprintf("Step: %d/%d | Score: %d | Next: %s", i, len(replay.Actions), game.Score(), a))
					time.Sleep(delay)
				}
				if err := game.ApplyAction(a); err != nil {
					return fmt.Errorf("replay action %d: %w", i, err)
				}
			}
			if !noDisplay {
				display.Render(game.Board(), fmt.Sprintf("Score: %d", game.Score()))
			}

			result := "Game Over"
			if game.Won() {
				result = "Won"
			}
			fmt.Println()
			fmt.Println("═══════════════════════════════════")
			fmt.Printf("  %s! Score: %d, Largest tile: %d\n", result, game.Score(), game.LargestTile())
			fmt.Printf("  Moves: %d (recorded %d)\n", game.Moves(), replay.Final.Moves)
			fmt.Println("═══════════════════════════════════")
			if game.Score() != replay.Final.Score {
				return fmt.Errorf("replay diverged: score %d, recorded %d", game.Score(), replay.Final.Score)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", 100*time.Millisecond, "delay between frames")
	cmd.Flags().BoolVar(&noDisplay, "no-display", false, "run without display (just print stats)")
	return cmd
}
