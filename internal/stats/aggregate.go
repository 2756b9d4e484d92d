package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// AggregatedStats holds statistics across multiple episodes
type AggregatedStats struct {
	ScoreMean   float64
	ScoreStd    float64
	MovesMean   float64
	RewardMean  float64
	WinRate     float64
	BestTile    int
	BestScore   int
	TileCounts  map[int]int // largest tile reached -> episodes
	NumEpisodes int
}

// Aggregate computes statistics from multiple episode summaries
func Aggregate(episodes []EpisodeSummary) AggregatedStats {
	n := len(episodes)
	if n == 0 {
		return AggregatedStats{TileCounts: make(map[int]int)}
	}

	agg := AggregatedStats{
		TileCounts:  make(map[int]int),
		NumEpisodes: n,
	}

	scores := make([]float64, n)
	moves := make([]float64, n)
	rewards := make([]float64, n)
	wins := 0
	for i, ep := range episodes {
		scores[i] = float64(ep.FinalScore)
		moves[i] = float64(ep.TotalMoves)
		rewards[i] = ep.TotalReward
		if ep.Won {
			wins++
		}
		if ep.LargestTile > agg.BestTile {
			agg.BestTile = ep.LargestTile
		}
		if ep.FinalScore > agg.BestScore {
			agg.BestScore = ep.FinalScore
		}
		agg.TileCounts[ep.LargestTile]++
	}

	agg.ScoreMean, agg.ScoreStd = stat.PopMeanStdDev(scores, nil)
	agg.MovesMean = stat.Mean(moves, nil)
	agg.RewardMean = floats.Sum(rewards) / float64(n)
	agg.WinRate = float64(wins) / float64(n)
	return agg
}

// RobustnessScore ranks runs by mean - lambda * std
func (a AggregatedStats) RobustnessScore(lambda float64) float64 {
	return a.ScoreMean - lambda*a.ScoreStd
}
