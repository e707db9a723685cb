package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	domain "github.com/respiralab/breathe-easy/internal/domain/analysis"
)

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Save insert/update satu analysis row
func (r *HistoryRepository) Save(ctx context.Context, e *domain.HistoryEntry) error {
	const q = `
INSERT INTO analysis_history
(id, principal_id, recorded_at, task_type, predicted_label, confidence,
 source, predictions_json, text_summary, transcription, processing_time, audio_url)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 predicted_label=VALUES(predicted_label),
 confidence=VALUES(confidence),
 source=VALUES(source),
 predictions_json=VALUES(predictions_json),
 text_summary=VALUES(text_summary),
 transcription=VALUES(transcription),
 processing_time=VALUES(processing_time),
 audio_url=VALUES(audio_url);
`
	principal := stringOrAnonymous(e.Principal)
	label := stringOrUnknown(e.Result.Label)
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

// Latest rows for a principal, paling baru duluan
func (r *HistoryRepository) Latest(ctx context.Context, principal string, limit int) ([]*domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, principal_id, recorded_at, task_type, predicted_label, confidence,
       source, predictions_json, text_summary, transcription, processing_time, audio_url
FROM analysis_history
WHERE principal_id=? ORDER BY recorded_at DESC LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, principal, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.HistoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count rows owned by a principal
func (r *HistoryRepository) Count(ctx context.Context, principal string) (int64, error) {
	const q = `SELECT COUNT(*) FROM analysis_history WHERE principal_id=?;`
	var n int64
	if err := r.db.QueryRowContext(ctx, q, principal).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanEntry(rows *sql.Rows) (*domain.HistoryEntry, error) {
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
		// best effort; malformed stored payloads degrade to an empty map
		_ = json.Unmarshal([]byte(predsJSON), &e.Result.Predictions)
	}
	return &e, nil
}
