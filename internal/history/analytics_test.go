package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	domain "github.com/respiralab/breathe-easy/internal/domain/analysis"
)

func entries(confidences ...float64) []*domain.HistoryEntry {
	out := make([]*domain.HistoryEntry, 0, len(confidences))
	for _, c := range confidences {
		out = append(out, domain.NewEntry("tester", domain.TaskBreath, domain.AnalysisResult{
			Label:      "Clear",
			Confidence: c,
			Source:     "API",
		}, time.Now()))
	}
	return out
}

func TestSummarizeCounts(t *testing.T) {
	list := []*domain.HistoryEntry{
		domain.NewEntry("t", domain.TaskBreath, domain.AnalysisResult{Label: "Clear", Confidence: 0.9}, time.Now()),
		domain.NewEntry("t", domain.TaskBreath, domain.AnalysisResult{Label: "Clear", Confidence: 0.8}, time.Now()),
		domain.NewEntry("t", domain.TaskBreath, domain.AnalysisResult{Label: "Wheezing", Confidence: 0.7}, time.Now()),
		domain.NewEntry("t", domain.TaskBreath, domain.ErrorResult("error", "timed out"), time.Now()),
	}

	sum := Summarize(list)

	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 2, sum.ByLabel["Clear"])
	assert.Equal(t, 1, sum.ByLabel["Wheezing"])
	assert.Equal(t, "Clear", sum.MostCommon)
	assert.InDelta(t, 0.8, sum.AvgConfidence, 1e-9, "error entries are excluded from the average")
}

func TestSummarizeEmpty(t *testing.T) {
	sum := Summarize(nil)

	assert.Equal(t, 0, sum.Total)
	assert.Equal(t, 0.0, sum.AvgConfidence)
	assert.Equal(t, TrendStable, sum.Trend)
}

func TestTrendClassification(t *testing.T) {
	// snapshots are newest first
	assert.Equal(t, TrendImproving, Summarize(entries(0.9, 0.9, 0.6, 0.6)).Trend)
	assert.Equal(t, TrendDeclining, Summarize(entries(0.5, 0.5, 0.9, 0.9)).Trend)
	assert.Equal(t, TrendStable, Summarize(entries(0.8, 0.81, 0.79, 0.8)).Trend)
}

func TestTrendNeedsEnoughData(t *testing.T) {
	assert.Equal(t, TrendStable, Summarize(entries(0.9, 0.2, 0.1)).Trend)
}
