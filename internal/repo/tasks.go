package repo

import (
	"context"
	"database/sql"
	"strings"

	"questboard/internal/domain"
)

func (r Repo) InsertTask(ctx context.Context, t domain.Task) error {
	blockers, err := marshalStrings(t.Blockers)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO tasks(id,org_id,quest_id,title,status,assigned_member_id,blockers_json,estimate_minutes,priority,phase,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.OrgID, t.QuestID, t.Title, string(t.Status), nullableStringPtr(t.AssignedMemberID), blockers,
		t.EstimateMinutes, nullableIntPtr(t.Priority), nullable(string(t.Phase)), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	blockers, err := marshalStrings(t.Blockers)
	if err != nil {
		return err
	}
	query := `UPDATE tasks SET quest_id=?, title=?, status=?, assigned_member_id=?, blockers_json=?, estimate_minutes=?, priority=?, phase=?, updated_at=? WHERE id=?`
	args := []any{t.QuestID, t.Title, string(t.Status), nullableStringPtr(t.AssignedMemberID), blockers,
		t.EstimateMinutes, nullableIntPtr(t.Priority), nullable(string(t.Phase)), t.UpdatedAt, t.ID}
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.DB.ExecContext(ctx, query, args...)
	}
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,org_id,quest_id,title,status,assigned_member_id,blockers_json,estimate_minutes,priority,phase,created_at,updated_at FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

type TaskFilters struct {
	OrgID      string
	QuestID    string
	Status     domain.TaskStatus
	AssigneeID string
	Unassigned bool
}

// ListTasks returns tasks in stable (created_at,id) order so questmaster
// passes are deterministic.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.OrgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, f.OrgID)
	}
	if f.QuestID != "" {
		clauses = append(clauses, "quest_id=?")
		args = append(args, f.QuestID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assigned_member_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.Unassigned {
		clauses = append(clauses, "assigned_member_id IS NULL")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,org_id,quest_id,title,status,assigned_member_id,blockers_json,estimate_minutes,priority,phase,created_at,updated_at FROM tasks ` + where + ` ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var assignee, blockers, phase sql.NullString
	var priority sql.NullInt64
	var status string
	err := scan(&t.ID, &t.OrgID, &t.QuestID, &t.Title, &status, &assignee, &blockers, &t.EstimateMinutes, &priority, &phase, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Status = domain.TaskStatus(status)
	if assignee.Valid {
		t.AssignedMemberID = &assignee.String
	}
	t.Blockers = unmarshalStrings(blockers)
	if priority.Valid {
		p := int(priority.Int64)
		t.Priority = &p
	}
	if phase.Valid {
		t.Phase = domain.GeniusPhase(phase.String)
	}
	return t, nil
}

func (r Repo) CountTasksByStatus(ctx context.Context, orgID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks WHERE org_id=? GROUP BY status`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
