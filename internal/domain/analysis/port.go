package analysis

import "context"

// Repository port (interface untuk persistence of history rows)
type Repository interface {
	Save(ctx context.Context, e *HistoryEntry) error
	Latest(ctx context.Context, principal string, limit int) ([]*HistoryEntry, error)
	Count(ctx context.Context, principal string) (int64, error)
}

// Classifier port (interface for the upstream inference model)
type Classifier interface {
	Classify(ctx context.Context, audioPath string) (AnalysisResult, error)
	Healthy(ctx context.Context) error
}

// Transcriber port (speech-task transcription)
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// ArtifactStore port (interface untuk penyimpanan audio artifacts)
type ArtifactStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
	UploadAndCleanup(ctx context.Context, localPath, key string) (string, error)
}

// PrincipalSource resolves the identity under which remote reads and
// writes are scoped. Implementations typically wrap an auth session.
type PrincipalSource interface {
	Current(ctx context.Context) (string, error)
}
