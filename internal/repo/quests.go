package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"questboard/internal/domain"
)

func (r Repo) InsertQuest(ctx context.Context, q domain.Quest) error {
	conds, err := marshalConditions(q.UnlockConditions)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO quests(id,org_id,questline_id,title,objective,unlock_conditions_json,state,created_at,updated_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		q.ID, q.OrgID, nullable(q.QuestlineID), q.Title, nullable(q.Objective), conds, string(q.State),
		q.CreatedAt, q.UpdatedAt, nullableStringPtr(q.CompletedAt))
	return err
}

func (r Repo) UpdateQuest(ctx context.Context, tx *sql.Tx, q domain.Quest) error {
	conds, err := marshalConditions(q.UnlockConditions)
	if err != nil {
		return err
	}
	query := `UPDATE quests SET questline_id=?, title=?, objective=?, unlock_conditions_json=?, state=?, updated_at=?, completed_at=? WHERE id=?`
	args := []any{nullable(q.QuestlineID), q.Title, nullable(q.Objective), conds, string(q.State), q.UpdatedAt, nullableStringPtr(q.CompletedAt), q.ID}
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.DB.ExecContext(ctx, query, args...)
	}
	return err
}

func (r Repo) GetQuest(ctx context.Context, id string) (domain.Quest, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,org_id,questline_id,title,objective,unlock_conditions_json,state,created_at,updated_at,completed_at FROM quests WHERE id=?`, id)
	q, err := scanQuest(row.Scan)
	if err != nil {
		return q, err
	}
	taskIDs, err := r.listQuestTaskIDs(ctx, q.ID)
	if err != nil {
		return q, err
	}
	q.TaskIDs = taskIDs
	return q, nil
}

// ListQuests returns all quests for an org in stable (created_at,id) order.
func (r Repo) ListQuests(ctx context.Context, orgID string) ([]domain.Quest, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,org_id,questline_id,title,objective,unlock_conditions_json,state,created_at,updated_at,completed_at FROM quests WHERE org_id=? ORDER BY created_at ASC, id ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Quest
	for rows.Next() {
		q, err := scanQuest(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

func scanQuest(scan func(dest ...any) error) (domain.Quest, error) {
	var q domain.Quest
	var questlineID, objective, conds, completedAt sql.NullString
	var state string
	err := scan(&q.ID, &q.OrgID, &questlineID, &q.Title, &objective, &conds, &state, &q.CreatedAt, &q.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return q, ErrNotFound
	}
	if err != nil {
		return q, err
	}
	q.State = domain.QuestState(state)
	if questlineID.Valid {
		q.QuestlineID = questlineID.String
	}
	if objective.Valid {
		q.Objective = objective.String
	}
	if completedAt.Valid {
		q.CompletedAt = &completedAt.String
	}
	if conds.Valid && conds.String != "" {
		if err := json.Unmarshal([]byte(conds.String), &q.UnlockConditions); err != nil {
			return q, err
		}
	}
	return q, nil
}

func (r Repo) listQuestTaskIDs(ctx context.Context, questID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM tasks WHERE quest_id=? ORDER BY created_at ASC, id ASC`, questID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func marshalConditions(in []domain.UnlockCondition) (any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
