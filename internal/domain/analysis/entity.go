package analysis

import (
	"time"

	"github.com/google/uuid"
)

// EntryID tipe untuk HistoryEntry
type EntryID string

// TaskType enum
type TaskType string

const (
	TaskBreath     TaskType = "breath"
	TaskSpeech     TaskType = "speech"
	TaskMonitoring TaskType = "monitoring"
)

// AnalysisResult is the canonical post-normalization record. Every raw
// backend response, whatever its vintage, is mapped onto this one shape.
type AnalysisResult struct {
	Predictions        map[string]float64 `json:"predictions"`
	Label              string             `json:"label"`
	Confidence         float64            `json:"confidence"`
	Source             string             `json:"source"`
	ProcessingTime     float64            `json:"processing_time"`
	TextSummary        string             `json:"text_summary,omitempty"`
	Transcription      string             `json:"transcription,omitempty"`
	PossibleConditions []string           `json:"possible_conditions,omitempty"`
	Error              string             `json:"error,omitempty"`
}

// HasError reports whether the record is a failure sentinel rather than a
// real prediction.
func (r AnalysisResult) HasError() bool { return r.Error != "" }

// ErrorResult builds a failure sentinel carrying a displayable message.
func ErrorResult(source, msg string) AnalysisResult {
	return AnalysisResult{
		Predictions: map[string]float64{},
		Label:       "Unknown",
		Source:      source,
		Error:       msg,
	}
}

// Aggregate Root: HistoryEntry. Created the moment an analysis completes,
// never mutated afterwards.
type HistoryEntry struct {
	ID         EntryID        `json:"id"`
	Principal  string         `json:"principal_id"`
	Task       TaskType       `json:"task_type"`
	Result     AnalysisResult `json:"result"`
	AudioURL   string         `json:"audio_url,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// NewEntry stamps a fresh entry for the given principal.
func NewEntry(principal string, task TaskType, res AnalysisResult, now time.Time) *HistoryEntry {
	return &HistoryEntry{
		ID:         EntryID(uuid.New().String()),
		Principal:  principal,
		Task:       task,
		Result:     res,
		RecordedAt: now,
	}
}
