package logging

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"tileagent/internal/stats"
)

// RunLogger writes finished episodes to CSV and episodes plus long-run
// points to JSON lines. It is a stats.Display; an empty path disables
// that file. Write errors are kept and reported by Err.
type RunLogger struct {
	mu sync.Mutex

	csvPath   string
	jsonPath  string
	csvFile   *os.File
	csvWriter *csv.Writer
	jsonFile  *os.File

	segment     *stats.Segment
	ownSegment  bool
	initialized bool
	err         error
}

// record is one JSON line
type record struct {
	Type  string    `json:"type"`
	RunID string    `json:"run_id"`
	Time  time.Time `json:"time"`

	Episode *stats.EpisodeEntry `json:"episode,omitempty"`
	LongRun *stats.LongRunPoint `json:"long_run,omitempty"`
}

var csvHeader = []string{"run_id", "episode", "total_moves", "score", "largest_tile", "won", "total_reward"}

// NewRunLogger creates a logger that tags its output with segment's id.
// A nil segment gives the logger one of its own, renewed on Clear.
func NewRunLogger(csvPath, jsonPath string, segment *stats.Segment) (*RunLogger, error) {
	l := &RunLogger{
		csvPath:    csvPath,
		jsonPath:   jsonPath,
		segment:    segment,
		ownSegment: segment == nil,
	}
	if l.ownSegment {
		l.segment = stats.NewSegment()
	}

	// Ensure directories exist
	for _, p := range []string{csvPath, jsonPath} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Init opens the log files, truncating any previous content
func (l *RunLogger) Init() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	if l.csvPath != "" {
		l.csvFile, err = os.Create(l.csvPath)
		if err != nil {
			return err
		}
		l.csvWriter = csv.NewWriter(l.csvFile)
		if err := l.csvWriter.Write(csvHeader); err != nil {
			return err
		}
		l.csvWriter.Flush()
	}

	if l.jsonPath != "" {
		l.jsonFile, err = os.OpenFile(l.jsonPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
	}

	l.initialized = true
	return nil
}

// Close flushes and closes all log files
func (l *RunLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.csvWriter != nil {
		l.csvWriter.Flush()
		l.keep(l.csvWriter.Error())
	}
	if l.csvFile != nil {
		l.keep(l.csvFile.Close())
	}
	if l.jsonFile != nil {
		l.keep(l.jsonFile.Close())
	}
	l.csvWriter, l.csvFile, l.jsonFile = nil, nil, nil
	l.initialized = false
	return l.err
}

// RunID identifies the current run segment
func (l *RunLogger) RunID() string {
	return l.segment.ID()
}

// Err returns the first write error
func (l *RunLogger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Move is not logged; per-move volume belongs in debug logs
func (l *RunLogger) Move(stats.MoveEntry) {}

// ScorePoint is derivable from the episode rows
func (l *RunLogger) ScorePoint(stats.ScorePoint) {}

// Episode appends one CSV row and one JSON line
func (l *RunLogger) Episode(e stats.EpisodeEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return
	}

	if l.csvWriter != nil {
		row := []string{
			l.segment.ID(),
			strconv.Itoa(e.Episode),
			strconv.Itoa(e.TotalMoves),
			strconv.Itoa(e.Score),
			strconv.Itoa(e.LargestTile),
			strconv.FormatBool(e.Won),
			strconv.FormatFloat(e.TotalReward, 'f', 2, 64),
		}
		l.keep(l.csvWriter.Write(row))
		l.csvWriter.Flush()
	}
	l.writeJSON(record{Type: "episode", Episode: &e})
}

// LongRunPoint appends one JSON line
func (l *RunLogger) LongRunPoint(p stats.LongRunPoint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return
	}
	l.writeJSON(record{Type: "long_run", LongRun: &p})
}

// Clear marks a reset. The line carries the id of the segment that starts.
func (l *RunLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ownSegment {
		l.segment.Next()
	}
	if !l.initialized {
		return
	}
	l.writeJSON(record{Type: "reset"})
}

func (l *RunLogger) writeJSON(r record) {
	if l.jsonFile == nil {
		return
	}
	r.RunID = l.segment.ID()
	r.Time = time.Now().UTC()
	line, err := json.Marshal(r)
	if err != nil {
		l.keep(err)
		return
	}
	_, err = l.jsonFile.Write(append(line, '\n'))
	l.keep(err)
}

func (l *RunLogger) keep(err error) {
	if err != nil && l.err == nil {
		l.err = err
	}
}

// PrintBenchmark writes a one-block summary of an evaluation
func PrintBenchmark(w io.Writer, label string, agg stats.AggregatedStats) {
	fmt.Fprintf(w, "[%s] episodes=%d score=%.1f±%.1f moves=%.1f reward=%.2f win=%.1f%% best_tile=%d best_score=%d\n",
		label, agg.NumEpisodes, agg.ScoreMean, agg.ScoreStd, agg.MovesMean, agg.RewardMean,
		agg.WinRate*100, agg.BestTile, agg.BestScore)
	if len(agg.TileCounts) == 0 {
		return
	}
	fmt.Fprint(w, "  largest tile:")
	for _, tile := range sortedTiles(agg.TileCounts) {
		fmt.Fprintf(w, " %d×%d", tile, agg.TileCounts[tile])
	}
	fmt.Fprintln(w)
}

func sortedTiles(counts map[int]int) []int {
	tiles := make([]int, 0, len(counts))
	for t := range counts {
		tiles = append(tiles, t)
	}
	sort.Ints(tiles)
	return tiles
}
