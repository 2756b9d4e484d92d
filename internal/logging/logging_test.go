package logging

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tileagent/internal/config"
	"tileagent/internal/stats"
)

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "warn"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info().Msg("hidden")
	logger.Warn().Str("stage", "apply").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"stage":"apply"`) {
		t.Errorf("output = %q", out)
	}

	if _, err := New(config.LoggingConfig{Level: "loud"}, &buf); err == nil {
		t.Error("New accepted an unknown level")
	}
}

func TestRunLoggerWritesEpisodes(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "episodes.csv")
	jsonPath := filepath.Join(dir, "out", "run.jsonl")

	l, err := NewRunLogger(csvPath, jsonPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Init(); err != nil {
		t.Fatal(err)
	}
	var _ stats.Display = l

	first := l.RunID()
	l.Move(stats.MoveEntry{Action: "up", Move: 1})
	l.Episode(stats.EpisodeEntry{Episode: 1, TotalMoves: 80, LargestTile: 128, Score: 900, TotalReward: 41.5})
	l.LongRunPoint(stats.LongRunPoint{X: 10000, Avg: 850, AvgReward: 0.2})
	l.Clear()
	l.Episode(stats.EpisodeEntry{Episode: 1, TotalMoves: 12, LargestTile: 16, Score: 60})
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if l.RunID() == first {
		t.Error("Clear kept the run id")
	}

	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("csv rows = %d, want header + 2", len(rows))
	}
	if rows[1][0] != first || rows[1][3] != "900" || rows[1][4] != "128" || rows[1][6] != "41.50" || rows[2][0] == first {
		t.Errorf("csv = %v", rows)
	}

	jf, err := os.Open(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	defer jf.Close()
	var types []string
	sc := bufio.NewScanner(jf)
	for sc.Scan() {
		var r record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("bad json line %q: %v", sc.Text(), err)
		}
		types = append(types, r.Type)
	}
	want := []string{"episode", "long_run", "reset", "episode"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Errorf("json record types = %v, want %v", types, want)
	}
}

func TestRunLoggerOptionalFiles(t *testing.T) {
	l, err := NewRunLogger("", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Init(); err != nil {
		t.Fatal(err)
	}
	l.Episode(stats.EpisodeEntry{Episode: 1})
	l.Clear()
	if err := l.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestPrintBenchmark(t *testing.T) {
	var buf bytes.Buffer
	PrintBenchmark(&buf, "bench", stats.AggregatedStats{
		NumEpisodes: 2,
		ScoreMean:   300,
		BestTile:    256,
		TileCounts:  map[int]int{256: 1, 128: 1},
	})
	out := buf.String()
	if !strings.Contains(out, "[bench] episodes=2") || !strings.Contains(out, "128×1 256×1") {
		t.Errorf("output = %q", out)
	}
}
