package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"questboard/internal/domain"
)

// InsertSummary appends a job run summary. Summaries are never mutated after
// the finishing write.
func (r Repo) InsertSummary(ctx context.Context, s domain.JobRunSummary) error {
	stats, err := json.Marshal(s.Stats)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO job_run_summaries(id,org_id,job_id,started_at,finished_at,status,stats_json,error) VALUES (?,?,?,?,?,?,?,?)`,
		s.ID, s.OrgID, s.JobID, s.StartedAt, s.FinishedAt, s.Status, string(stats), nullable(s.Error))
	return err
}

func (r Repo) GetSummary(ctx context.Context, id string) (domain.JobRunSummary, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,org_id,job_id,started_at,finished_at,status,stats_json,error FROM job_run_summaries WHERE id=?`, id)
	return scanSummary(row.Scan)
}

func (r Repo) ListSummaries(ctx context.Context, orgID string, limit int) ([]domain.JobRunSummary, error) {
	query := `SELECT id,org_id,job_id,started_at,finished_at,status,stats_json,error FROM job_run_summaries WHERE org_id=? ORDER BY started_at DESC, id DESC`
	args := []any{orgID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.JobRunSummary
	for rows.Next() {
		s, err := scanSummary(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func scanSummary(scan func(dest ...any) error) (domain.JobRunSummary, error) {
	var s domain.JobRunSummary
	var stats string
	var errText sql.NullString
	err := scan(&s.ID, &s.OrgID, &s.JobID, &s.StartedAt, &s.FinishedAt, &s.Status, &stats, &errText)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if stats != "" {
		if err := json.Unmarshal([]byte(stats), &s.Stats); err != nil {
			return s, err
		}
	}
	if errText.Valid {
		s.Error = errText.String
	}
	return s, nil
}
