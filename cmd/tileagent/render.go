package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"tileagent/internal/env"
	"tileagent/internal/stats"
)

const cellWidth = 6

// Display handles terminal rendering. It also receives the episode and
// long-run readouts so the last of each can be drawn under the board.
type Display struct {
	size  int
	out   io.Writer
	clear bool

	mu          sync.Mutex
	lastEpisode *stats.EpisodeEntry
	lastLongRun *stats.LongRunPoint
}

// NewDisplay creates a new display
func NewDisplay(size int, out io.Writer, clear bool) *Display {
	return &Display{size: size, out: out, clear: clear}
}

func (d *Display) Move(stats.MoveEntry) {}

func (d *Display) ScorePoint(stats.ScorePoint) {}

func (d *Display) Episode(e stats.EpisodeEntry) {
	d.mu.Lock()
	d.lastEpisode = &e
	d.mu.Unlock()
}

func (d *Display) LongRunPoint(p stats.LongRunPoint) {
	d.mu.Lock()
	d.lastLongRun = &p
	d.mu.Unlock()
}

func (d *Display) Clear() {
	d.mu.Lock()
	d.lastEpisode, d.lastLongRun = nil, nil
	d.mu.Unlock()
}

// Render draws the board followed by status lines
func (d *Display) Render(board *env.Grid, status ...string) {
	if d.clear {
		clearScreen()
	}

	border := strings.Repeat("─", cellWidth*d.size)
	fmt.Fprintf(d.out, "┌%s┐\n", border)
	for r := 0; r < board.Rows(); r++ {
		fmt.Fprint(d.out, "│")
		for c := 0; c < board.RowLen(r); c++ {
			if v, ok := board.Cell(r, c); ok {
				fmt.Fprintf(d.out, "%*d", cellWidth, v)
			} else {
				fmt.Fprintf(d.out, "%*s", cellWidth, "·")
			}
		}
		fmt.Fprintln(d.out, "│")
	}
	fmt.Fprintf(d.out, "└%s┘\n", border)

	for _, s := range status {
		fmt.Fprintf(d.out, "  %s\n", s)
	}
}

// RenderRun draws the board with the training readout
func (d *Display) RenderRun(board *env.Grid, snap stats.Snapshot, state string) {
	lines := []string{
		fmt.Sprintf("Episode: %d | Moves: %d | Last: %s (%.2f) | Avg reward: %s",
			snap.Episodes+1, snap.TotalMoves, orDash(snap.LastAction), snap.LastReward, avgReward(snap)),
		fmt.Sprintf("Learning steps: %d | Avg score: %.1f | Wins: %d | Best tile: %d",
			snap.LearningSteps, snap.AverageScore, snap.Wins, snap.BestTile),
	}

	d.mu.Lock()
	if e := d.lastEpisode; e != nil {
		result := "lost"
		if e.Won {
			result = "won"
		}
		lines = append(lines, fmt.Sprintf("Last episode #%d: %s, score %d, tile %d, %d moves",
			e.Episode, result, e.Score, e.LargestTile, e.TotalMoves))
	}
	if p := d.lastLongRun; p != nil {
		lines = append(lines, fmt.Sprintf("Long run @%d: avg score %.1f, avg reward %.2f", p.X, p.Avg, p.AvgReward))
	}
	d.mu.Unlock()

	lines = append(lines, state)
	d.Render(board, lines...)
}

func avgReward(snap stats.Snapshot) string {
	if !snap.HasAverage {
		return "-"
	}
	return fmt.Sprintf("%.2f", snap.AverageReward)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func clearScreen() {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/c", "cls")
	} else {
		cmd = exec.Command("clear")
	}
	cmd.Stdout = os.Stdout
	cmd.Run()
}
