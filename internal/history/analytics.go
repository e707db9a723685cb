package history

import (
	domain "github.com/respiralab/breathe-easy/internal/domain/analysis"
)

// Trend classifications for recent confidence movement.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// trendBand is the dead zone within which confidence movement counts as stable.
const trendBand = 0.05

// Summary holds the aggregate statistics displayed over a history snapshot.
type Summary struct {
	Total         int            `json:"total"`
	ByLabel       map[string]int `json:"by_label"`
	MostCommon    string         `json:"most_common_label"`
	AvgConfidence float64        `json:"avg_confidence"`
	Trend         string         `json:"trend"`
}

// Summarize computes aggregates over a newest-first snapshot. Pure; error
// sentinel entries are excluded from label and confidence statistics.
func Summarize(entries []*domain.HistoryEntry) Summary {
	sum := Summary{ByLabel: map[string]int{}, Trend: TrendStable}

	var confTotal float64
	var counted int
	for _, e := range entries {
		sum.Total++
		if e.Result.HasError() {
			continue
		}
		sum.ByLabel[e.Result.Label]++
		confTotal += e.Result.Confidence
		counted++
	}

	best := 0
	for label, n := range sum.ByLabel {
		if n > best || (n == best && sum.MostCommon == "") {
			best = n
			sum.MostCommon = label
		}
	}
	if counted > 0 {
		sum.AvgConfidence = confTotal / float64(counted)
	}
	sum.Trend = trend(entries)
	return sum
}

// trend compares mean confidence of the newer half against the older half.
func trend(entries []*domain.HistoryEntry) string {
	var vals []float64
	for _, e := range entries {
		if !e.Result.HasError() {
			vals = append(vals, e.Result.Confidence)
		}
	}
	if len(vals) < 4 {
		return TrendStable
	}

	mid := len(vals) / 2
	recent := mean(vals[:mid])
	prior := mean(vals[mid:])

	switch {
	case recent-prior > trendBand:
		return TrendImproving
	case prior-recent > trendBand:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func mean(vals []float64) float64 {
	var t float64
	for _, v := range vals {
		t += v
	}
	return t / float64(len(vals))
}
