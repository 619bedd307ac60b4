package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"archscore/internal/domain"
)

func (r Repo) CreateEvaluationTx(ctx context.Context, tx *sql.Tx, rec domain.EvaluationRecord) error {
	weights, err := json.Marshal(rec.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	result := rec.Result
	if len(result) == 0 {
		result = json.RawMessage("{}")
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO evaluations(id, architecture_id, overall, valid, weights_json, result_json, created_at)
VALUES (?,?,?,?,?,?,?)`,
		rec.ID, rec.ArchitectureID, rec.Overall, boolInt(rec.Valid), string(weights), string(result), rec.CreatedAt)
	return err
}

const evaluationColumns = `id, architecture_id, overall, valid, weights_json, result_json, created_at`

func scanEvaluation(row rowScanner) (domain.EvaluationRecord, error) {
	var rec domain.EvaluationRecord
	var valid int
	var weights, result string
	err := row.Scan(&rec.ID, &rec.ArchitectureID, &rec.Overall, &valid, &weights, &result, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	rec.Valid = valid != 0
	if weights != "" {
		if err := json.Unmarshal([]byte(weights), &rec.Weights); err != nil {
			return rec, fmt.Errorf("decode weights: %w", err)
		}
	}
	rec.Result = json.RawMessage(result)
	return rec, nil
}

func (r Repo) GetEvaluation(ctx context.Context, id string) (domain.EvaluationRecord, error) {
	return scanEvaluation(r.DB.QueryRowContext(ctx, `SELECT `+evaluationColumns+` FROM evaluations WHERE id=?`, id))
}

// ListEvaluations returns the evaluation history of an architecture, newest
// first.
func (r Repo) ListEvaluations(ctx context.Context, architectureID string, limit int) ([]domain.EvaluationRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+evaluationColumns+`
FROM evaluations WHERE architecture_id=? ORDER BY created_at DESC, rowid DESC LIMIT ?`, architectureID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.EvaluationRecord{}
	for rows.Next() {
		rec, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
