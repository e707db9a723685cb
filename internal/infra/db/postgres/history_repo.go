package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	domain "github.com/respiralab/breathe-easy/internal/domain/analysis"
)

// HistoryRepository is the Postgres flavor of the remote history table,
// used for managed-Postgres deployments where row ownership is enforced by
// the platform's row-level policies.
type HistoryRepository struct{ db *sql.DB }

func NewHistoryRepository(db *sql.DB) *HistoryRepository { return &HistoryRepository{db: db} }

// Save insert/update satu analysis row
func (r *HistoryRepository) Save(ctx context.Context, e *domain.HistoryEntry) error {
	const q = `
INSERT INTO analysis_history
(id, principal_id, recorded_at, task_type, predicted_label, confidence,
 source, predictions_json, text_summary, transcription, processing_time, audio_url)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
 predicted_label = EXCLUDED.predicted_label,
 confidence = EXCLUDED.confidence,
 source = EXCLUDED.source,
 predictions_json = EXCLUDED.predictions_json,
 text_summary = EXCLUDED.text_summary,
 transcription = EXCLUDED.transcription,
 processing_time = EXCLUDED.processing_time,
 audio_url = EXCLUDED.audio_url;`

	principal := e.Principal
	if strings.TrimSpace(principal) == "" {
		principal = "anonymous"
	}
	label := e.Result.Label
	if strings.TrimSpace(label) == "" {
		label = "Unknown"
	}
	recorded := e.RecordedAt
	if recorded.IsZero() {
		recorded = time.Now()
	}

	preds, err := json.Marshal(e.Result.Predictions)
	if err != nil {
		preds = []byte("{}")
	}

	_, err = r.db.ExecContext(ctx, q,
		e.ID, principal, recorded, e.Task, label, e.Result.Confidence,
		e.Result.Source, string(preds), e.Result.TextSummary,
		e.Result.Transcription, e.Result.ProcessingTime, e.AudioURL,
	)
	return err
}

// Latest rows for a principal, newest first
func (r *HistoryRepository) Latest(ctx context.Context, principal string, limit int) ([]*domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, principal_id, recorded_at, task_type, predicted_label, confidence,
       source, predictions_json, text_summary, transcription, processing_time, audio_url
FROM analysis_history
WHERE principal_id=$1 ORDER BY recorded_at DESC LIMIT $2;`

	rows, err := r.db.QueryContext(ctx, q, principal, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var predsJSON string
		if err := rows.Scan(
			&e.ID, &e.Principal, &e.RecordedAt, &e.Task,
			&e.Result.Label, &e.Result.Confidence, &e.Result.Source,
			&predsJSON, &e.Result.TextSummary, &e.Result.Transcription,
			&e.Result.ProcessingTime, &e.AudioURL,
		); err != nil {
			return nil, err
		}
		e.Result.Predictions = map[string]float64{}
		if predsJSON != "" {
			_ = json.Unmarshal([]byte(predsJSON), &e.Result.Predictions)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Count rows owned by a principal
func (r *HistoryRepository) Count(ctx context.Context, principal string) (int64, error) {
	const q = `SELECT COUNT(*) FROM analysis_history WHERE principal_id=$1;`
	var n int64
	if err := r.db.QueryRowContext(ctx, q, principal).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
