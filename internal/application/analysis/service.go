package analysis

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	domain "github.com/respiralab/breathe-easy/internal/domain/analysis"
	"github.com/respiralab/breathe-easy/internal/summary"
)

// Service implements the unified-analysis use case. It is safe for
// concurrent use; every collaborator is held as a port so call sites can
// inject fakes.
type Service struct {
	Repo        domain.Repository    // optional; history mirroring is best-effort
	Classifier  domain.Classifier    // required
	Transcriber domain.Transcriber   // optional; speech tasks only
	Artifacts   domain.ArtifactStore // optional; raw audio retention
	Clock       Clock
}

// Clock abstraction supaya gampang ditest
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// AnalyzeCommand carries one upload through the pipeline.
type AnalyzeCommand struct {
	Principal string
	AudioPath string
	Filename  string
	Task      domain.TaskType
}

// Analyze runs classify -> transcribe (speech) -> summarize, then mirrors
// the record to the history table and retains the audio artifact, both
// best-effort. Only the classification itself can fail the call.
func (s *Service) Analyze(ctx context.Context, cmd AnalyzeCommand) (domain.AnalysisResult, error) {
	t0 := s.Clock.Now()

	res, err := s.Classifier.Classify(ctx, cmd.AudioPath)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("classification failed: %w", err)
	}

	if cmd.Task == domain.TaskSpeech && s.Transcriber != nil {
		text, terr := s.Transcriber.Transcribe(ctx, cmd.AudioPath)
		if terr != nil {
			// transcription enriches the result but never blocks it
			log.Printf("analysis: transcription failed: %v", terr)
		} else {
			res.Transcription = text
		}
	}

	if res.TextSummary == "" {
		res.TextSummary = summary.Generate(res.Label, res.Confidence)
	}
	if res.Source == "" {
		res.Source = "API"
	}
	res.ProcessingTime = time.Since(t0).Seconds()

	entry := domain.NewEntry(cmd.Principal, cmd.Task, res, t0)
	s.retainArtifact(ctx, cmd, entry)
	s.mirror(ctx, entry)

	return res, nil
}

// retainArtifact uploads the capture and cleans up the temp file. On any
// failure the row simply goes out without an audio_url.
func (s *Service) retainArtifact(ctx context.Context, cmd AnalyzeCommand, entry *domain.HistoryEntry) {
	if s.Artifacts == nil {
		return
	}
	name := cmd.Filename
	if name == "" {
		name = filepath.Base(cmd.AudioPath)
	}
	key := fmt.Sprintf("%s/%s/%s-%s", entry.Principal, cmd.Task, entry.ID, name)
	url, err := s.Artifacts.Upload(ctx, cmd.AudioPath, key)
	if err != nil {
		log.Printf("analysis: artifact upload failed: %v", err)
		return
	}
	entry.AudioURL = url
}

func (s *Service) mirror(ctx context.Context, entry *domain.HistoryEntry) {
	if s.Repo == nil {
		return
	}
	if err := s.Repo.Save(ctx, entry); err != nil {
		log.Printf("analysis: history mirror failed for %s: %v", entry.ID, err)
	}
}

// Latest returns a principal's history rows, newest first.
func (s *Service) Latest(ctx context.Context, principal string, limit int) ([]*domain.HistoryEntry, error) {
	if s.Repo == nil {
		return nil, fmt.Errorf("history repository not configured")
	}
	return s.Repo.Latest(ctx, principal, limit)
}

// Count returns how many history rows a principal owns, so clients can
// page beyond the first Latest window.
func (s *Service) Count(ctx context.Context, principal string) (int64, error) {
	if s.Repo == nil {
		return 0, fmt.Errorf("history repository not configured")
	}
	return s.Repo.Count(ctx, principal)
}

// Healthy reports whether the upstream classifier is reachable.
func (s *Service) Healthy(ctx context.Context) error {
	return s.Classifier.Healthy(ctx)
}
