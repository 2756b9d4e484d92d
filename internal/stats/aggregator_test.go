package stats

import (
	"math"
	"testing"

	"tileagent/internal/config"
)

// recordingDisplay keeps everything it is sent
type recordingDisplay struct {
	moves    []MoveEntry
	episodes []EpisodeEntry
	scores   []ScorePoint
	longRun  []LongRunPoint
	clears   int
}

func (d *recordingDisplay) Move(e MoveEntry)            { d.moves = append(d.moves, e) }
func (d *recordingDisplay) Episode(e EpisodeEntry)      { d.episodes = append(d.episodes, e) }
func (d *recordingDisplay) ScorePoint(p ScorePoint)     { d.scores = append(d.scores, p) }
func (d *recordingDisplay) LongRunPoint(p LongRunPoint) { d.longRun = append(d.longRun, p) }
func (d *recordingDisplay) Clear()                      { d.clears++ }

func TestAverageReward(t *testing.T) {
	agg := NewAggregator(config.StatsConfig{WindowSize: 10, LongRunEvery: 100}, nil)

	if _, ok := agg.AverageReward(); ok {
		t.Fatal("average reported before any move")
	}

	for i, r := range []float64{1, -1, -5} {
		agg.RecordMove("up", r)
		avg, ok := agg.AverageReward()
		if !ok {
			t.Fatalf("move %d: no average", i)
		}
		moves, total := agg.EpisodeTotals()
		if avg != total/float64(moves) {
			t.Fatalf("move %d: average %v != %v/%d", i, avg, total, moves)
		}
	}

	avg, _ := agg.AverageReward()
	if got := Round2(avg); got != -1.67 {
		t.Errorf("rounded average = %v, want -1.67", got)
	}
}

func TestRecordMoveDisplay(t *testing.T) {
	d := &recordingDisplay{}
	agg := NewAggregator(config.StatsConfig{WindowSize: 10, LongRunEvery: 100}, d)

	agg.RecordMove("left", 1)
	entry := agg.RecordMove("down", -5)

	want := MoveEntry{Action: "down", Move: 2, LastReward: -5, AvgReward: -2}
	if entry != want {
		t.Errorf("RecordMove() = %+v, want %+v", entry, want)
	}
	if len(d.moves) != 2 || d.moves[1] != want {
		t.Errorf("display moves = %+v", d.moves)
	}
}

func TestWindowNeverExceedsCapacity(t *testing.T) {
	const capacity = 5
	d := &recordingDisplay{}
	agg := NewAggregator(config.StatsConfig{WindowSize: capacity, LongRunEvery: 100}, d)

	for i := 1; i <= 12; i++ {
		agg.RecordEpisode(EpisodeSummary{Episode: i, FinalScore: i * 10})
		snap := agg.Snapshot()
		want := i
		if want > capacity {
			want = capacity
		}
		if len(snap.Window) != want {
			t.Fatalf("after %d episodes window len = %d, want %d", i, len(snap.Window), want)
		}
	}

	snap := agg.Snapshot()
	if snap.Window[0].X != 8 || snap.Window[capacity-1].X != 12 {
		t.Errorf("window holds episodes %d..%d, want 8..12", snap.Window[0].X, snap.Window[capacity-1].X)
	}
	// mean of 10..120
	if got := snap.Window[capacity-1].Avg; got != 65 {
		t.Errorf("running average score = %v, want 65", got)
	}
	if len(snap.History) != 12 {
		t.Errorf("history len = %d, want 12", len(snap.History))
	}
	if len(d.scores) != 12 || len(d.episodes) != 12 {
		t.Errorf("display got %d score points and %d episodes", len(d.scores), len(d.episodes))
	}
}

func TestLongRunSeries(t *testing.T) {
	const every = 50
	d := &recordingDisplay{}
	agg := NewAggregator(config.StatsConfig{WindowSize: 10, LongRunEvery: every}, d)

	for i := 1; i <= 3*every; i++ {
		agg.RecordMove("up", 1)
		// episode boundaries must not affect the series
		if i%17 == 0 {
			agg.RecordEpisode(EpisodeSummary{Episode: i / 17, FinalScore: 100})
			agg.ResetEpisode()
		}
		if i == every-1 {
			if n := len(agg.Snapshot().LongRun); n != 0 {
				t.Fatalf("point appended before threshold: %d", n)
			}
		}
	}

	snap := agg.Snapshot()
	if len(snap.LongRun) != 3 {
		t.Fatalf("long-run len = %d, want 3", len(snap.LongRun))
	}
	for i, p := range snap.LongRun {
		if p.X != (i+1)*every {
			t.Errorf("point %d at x=%d, want %d", i, p.X, (i+1)*every)
		}
		if p.AvgReward != 1 {
			t.Errorf("point %d avg reward = %v, want 1", i, p.AvgReward)
		}
	}
	if snap.LongRun[2].Avg != 100 {
		t.Errorf("long-run average score = %v, want 100", snap.LongRun[2].Avg)
	}
	if len(d.longRun) != 3 {
		t.Errorf("display got %d long-run points", len(d.longRun))
	}

	agg.RecordMove("up", 1)
	if n := len(agg.Snapshot().LongRun); n != 3 {
		t.Errorf("counter did not reset: %d points", n)
	}
}

func TestResetEpisodeKeepsRunHistory(t *testing.T) {
	agg := NewAggregator(config.StatsConfig{WindowSize: 10, LongRunEvery: 2}, nil)
	agg.RecordMove("up", 1)
	agg.RecordMove("up", -1)
	agg.RecordEpisode(EpisodeSummary{Episode: 1, FinalScore: 40, LargestTile: 16, Won: true})
	agg.ResetEpisode()

	snap := agg.Snapshot()
	if snap.TotalMoves != 0 || snap.TotalReward != 0 || snap.HasAverage {
		t.Errorf("episode counters survived: %+v", snap)
	}
	if snap.Episodes != 1 || snap.LearningSteps != 2 || len(snap.LongRun) != 1 || len(snap.Window) != 1 {
		t.Errorf("run counters lost: %+v", snap)
	}
	if snap.Wins != 1 || snap.BestTile != 16 {
		t.Errorf("wins=%d best=%d", snap.Wins, snap.BestTile)
	}
}

func TestEpisodeEntryCarriesReward(t *testing.T) {
	d := &recordingDisplay{}
	agg := NewAggregator(config.StatsConfig{WindowSize: 10, LongRunEvery: 100}, d)
	agg.RecordEpisode(EpisodeSummary{Episode: 3, TotalMoves: 7, FinalScore: 40, LargestTile: 16, TotalReward: -2.5})

	want := EpisodeEntry{Episode: 3, TotalMoves: 7, LargestTile: 16, Score: 40, TotalReward: -2.5}
	if len(d.episodes) != 1 || d.episodes[0] != want {
		t.Errorf("episode entries = %+v, want %+v", d.episodes, want)
	}
}

func TestResetClearsEverything(t *testing.T) {
	d := &recordingDisplay{}
	agg := NewAggregator(config.StatsConfig{WindowSize: 3, LongRunEvery: 2}, d)
	for i := 0; i < 5; i++ {
		agg.RecordMove("right", 1)
		agg.RecordEpisode(EpisodeSummary{Episode: i + 1, FinalScore: 8})
	}

	agg.Reset()

	snap := agg.Snapshot()
	if snap.TotalMoves != 0 || snap.LearningSteps != 0 || snap.Episodes != 0 ||
		snap.CumulativeScore != 0 || len(snap.Window) != 0 || len(snap.LongRun) != 0 ||
		len(snap.History) != 0 || snap.LastAction != "" {
		t.Errorf("Reset left state behind: %+v", snap)
	}
	if d.clears != 1 {
		t.Errorf("display cleared %d times, want 1", d.clears)
	}

	// the aggregator is usable again after a reset
	agg.RecordEpisode(EpisodeSummary{Episode: 1, FinalScore: 4})
	if snap := agg.Snapshot(); snap.Window[0].X != 1 || snap.Window[0].Avg != 4 {
		t.Errorf("post-reset window = %+v", snap.Window)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	agg := NewAggregator(config.StatsConfig{WindowSize: 3, LongRunEvery: 1}, nil)
	agg.RecordMove("up", 1)
	agg.RecordEpisode(EpisodeSummary{Episode: 1, FinalScore: 4})

	snap := agg.Snapshot()
	snap.Window[0].Score = 999
	snap.LongRun[0].Avg = 999
	snap.History[0].FinalScore = 999

	again := agg.Snapshot()
	if again.Window[0].Score == 999 || again.LongRun[0].Avg == 999 || again.History[0].FinalScore == 999 {
		t.Error("Snapshot exposes internal storage")
	}
}

func TestAggregate(t *testing.T) {
	episodes := []EpisodeSummary{
		{FinalScore: 100, TotalMoves: 10, LargestTile: 64, TotalReward: 2},
		{FinalScore: 300, TotalMoves: 30, LargestTile: 128, TotalReward: 4, Won: true},
	}
	agg := Aggregate(episodes)

	if agg.NumEpisodes != 2 || agg.ScoreMean != 200 || agg.MovesMean != 20 || agg.RewardMean != 3 {
		t.Errorf("Aggregate() = %+v", agg)
	}
	if math.Abs(agg.ScoreStd-100) > 1e-9 {
		t.Errorf("ScoreStd = %v, want 100", agg.ScoreStd)
	}
	if agg.WinRate != 0.5 || agg.BestTile != 128 || agg.BestScore != 300 {
		t.Errorf("Aggregate() = %+v", agg)
	}
	if agg.TileCounts[64] != 1 || agg.TileCounts[128] != 1 {
		t.Errorf("TileCounts = %v", agg.TileCounts)
	}
	if got := agg.RobustnessScore(0.5); got != 150 {
		t.Errorf("RobustnessScore(0.5) = %v, want 150", got)
	}

	if empty := Aggregate(nil); empty.NumEpisodes != 0 || empty.TileCounts == nil {
		t.Errorf("Aggregate(nil) = %+v", empty)
	}
}

func TestSegmentRenewsBeforeSinks(t *testing.T) {
	seg := NewSegment()
	first := seg.ID()

	var seen string
	sink := &clearHook{fn: func() { seen = seg.ID() }}
	agg := NewAggregator(config.StatsConfig{WindowSize: 1, LongRunEvery: 1}, Displays{seg, sink})
	agg.Reset()

	if seg.ID() == first {
		t.Fatal("Reset kept the segment id")
	}
	if seen != seg.ID() {
		t.Errorf("sink saw %q on Clear, segment is %q", seen, seg.ID())
	}
}

type clearHook struct {
	NopDisplay
	fn func()
}

func (h *clearHook) Clear() { h.fn() }
