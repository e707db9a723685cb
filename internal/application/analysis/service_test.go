package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/respiralab/breathe-easy/internal/domain/analysis"
)

type stubClassifier struct {
	result domain.AnalysisResult
	err    error
}

func (s *stubClassifier) Classify(ctx context.Context, audioPath string) (domain.AnalysisResult, error) {
	return s.result, s.err
}
func (s *stubClassifier) Healthy(ctx context.Context) error { return s.err }

type stubTranscriber struct {
	text  string
	err   error
	calls int
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	s.calls++
	return s.text, s.err
}

type stubArtifacts struct {
	key string
	url string
	err error
}

func (s *stubArtifacts) Upload(ctx context.Context, localPath, key string) (string, error) {
	s.key = key
	return s.url, s.err
}

func (s *stubArtifacts) UploadAndCleanup(ctx context.Context, localPath, key string) (string, error) {
	return s.Upload(ctx, localPath, key)
}

type stubRepo struct {
	saved []*domain.HistoryEntry
	err   error
}

func (s *stubRepo) Save(ctx context.Context, e *domain.HistoryEntry) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, e)
	return nil
}
func (s *stubRepo) Latest(ctx context.Context, principal string, limit int) ([]*domain.HistoryEntry, error) {
	return s.saved, nil
}
func (s *stubRepo) Count(ctx context.Context, principal string) (int64, error) {
	return int64(len(s.saved)), nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func clearResult() domain.AnalysisResult {
	return domain.AnalysisResult{
		Predictions: map[string]float64{"Clear": 0.92},
		Label:       "Clear",
		Confidence:  0.92,
	}
}

func TestAnalyzeFillsDefaults(t *testing.T) {
	svc := &Service{
		Classifier: &stubClassifier{result: clearResult()},
		Clock:      SystemClock{},
	}

	res, err := svc.Analyze(context.Background(), AnalyzeCommand{
		Principal: "tester",
		AudioPath: "/tmp/breath.wav",
		Task:      domain.TaskBreath,
	})
	require.NoError(t, err)

	assert.Equal(t, "API", res.Source)
	assert.Contains(t, res.TextSummary, "clear breathing")
	assert.GreaterOrEqual(t, res.ProcessingTime, 0.0)
}

func TestAnalyzeKeepsUpstreamSummary(t *testing.T) {
	upstream := clearResult()
	upstream.TextSummary = "already summarized upstream"
	svc := &Service{
		Classifier: &stubClassifier{result: upstream},
		Clock:      SystemClock{},
	}

	res, err := svc.Analyze(context.Background(), AnalyzeCommand{Task: domain.TaskBreath})
	require.NoError(t, err)
	assert.Equal(t, "already summarized upstream", res.TextSummary)
}

func TestAnalyzeClassifierFailureSurfaces(t *testing.T) {
	svc := &Service{
		Classifier: &stubClassifier{err: errors.New("sidecar down")},
		Clock:      SystemClock{},
	}

	_, err := svc.Analyze(context.Background(), AnalyzeCommand{Task: domain.TaskBreath})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classification failed")
}

func TestAnalyzeSpeechTranscribes(t *testing.T) {
	tr := &stubTranscriber{text: "take a deep breath"}
	svc := &Service{
		Classifier:  &stubClassifier{result: clearResult()},
		Transcriber: tr,
		Clock:       SystemClock{},
	}

	res, err := svc.Analyze(context.Background(), AnalyzeCommand{Task: domain.TaskSpeech})
	require.NoError(t, err)
	assert.Equal(t, "take a deep breath", res.Transcription)
	assert.Equal(t, 1, tr.calls)
}

func TestAnalyzeTranscriptionFailureIsNonFatal(t *testing.T) {
	svc := &Service{
		Classifier:  &stubClassifier{result: clearResult()},
		Transcriber: &stubTranscriber{err: errors.New("quota exceeded")},
		Clock:       SystemClock{},
	}

	res, err := svc.Analyze(context.Background(), AnalyzeCommand{Task: domain.TaskSpeech})
	require.NoError(t, err)
	assert.Empty(t, res.Transcription)
	assert.False(t, res.HasError())
}

func TestAnalyzeSkipsTranscriptionForBreathTask(t *testing.T) {
	tr := &stubTranscriber{text: "should not be used"}
	svc := &Service{
		Classifier:  &stubClassifier{result: clearResult()},
		Transcriber: tr,
		Clock:       SystemClock{},
	}

	res, err := svc.Analyze(context.Background(), AnalyzeCommand{Task: domain.TaskBreath})
	require.NoError(t, err)
	assert.Empty(t, res.Transcription)
	assert.Equal(t, 0, tr.calls)
}

func TestAnalyzeMirrorsAndRetains(t *testing.T) {
	repo := &stubRepo{}
	arts := &stubArtifacts{url: "https://cdn.example.com/a.wav"}
	svc := &Service{
		Repo:       repo,
		Classifier: &stubClassifier{result: clearResult()},
		Artifacts:  arts,
		Clock:      fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	_, err := svc.Analyze(context.Background(), AnalyzeCommand{
		Principal: "tester",
		AudioPath: "/tmp/rec.wav",
		Filename:  "rec.wav",
		Task:      domain.TaskBreath,
	})
	require.NoError(t, err)

	require.Len(t, repo.saved, 1)
	saved := repo.saved[0]
	assert.Equal(t, "tester", saved.Principal)
	assert.Equal(t, domain.TaskBreath, saved.Task)
	assert.Equal(t, "https://cdn.example.com/a.wav", saved.AudioURL)
	assert.Contains(t, arts.key, "tester/breath/")
	assert.Contains(t, arts.key, "rec.wav")
}

func TestCount(t *testing.T) {
	svc := &Service{
		Classifier: &stubClassifier{result: clearResult()},
		Clock:      SystemClock{},
	}

	_, err := svc.Count(context.Background(), "tester")
	require.Error(t, err, "no repository configured")

	svc.Repo = &stubRepo{}
	_, err = svc.Analyze(context.Background(), AnalyzeCommand{Principal: "tester", Task: domain.TaskBreath})
	require.NoError(t, err)

	n, err := svc.Count(context.Background(), "tester")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAnalyzeMirrorFailureIsNonFatal(t *testing.T) {
	svc := &Service{
		Repo:       &stubRepo{err: errors.New("db offline")},
		Classifier: &stubClassifier{result: clearResult()},
		Clock:      SystemClock{},
	}

	res, err := svc.Analyze(context.Background(), AnalyzeCommand{Task: domain.TaskBreath})
	require.NoError(t, err)
	assert.False(t, res.HasError())
}
