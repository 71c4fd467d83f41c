package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"questboard/internal/config"
	"questboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertOrg(ctx context.Context, o domain.Org) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO orgs(id,name,slack_enabled,slack_channel,email_enabled,created_at) VALUES (?,?,?,?,?,?)`,
		o.ID, o.Name, boolInt(o.SlackEnabled), nullable(o.SlackChannel), boolInt(o.EmailEnabled), o.CreatedAt)
	return err
}

func (r Repo) GetOrg(ctx context.Context, id string) (domain.Org, error) {
	var o domain.Org
	var slackEnabled, emailEnabled int
	var channel sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,slack_enabled,slack_channel,email_enabled,created_at FROM orgs WHERE id=?`, id).
		Scan(&o.ID, &o.Name, &slackEnabled, &channel, &emailEnabled, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	o.SlackEnabled = slackEnabled != 0
	o.EmailEnabled = emailEnabled != 0
	if channel.Valid {
		o.SlackChannel = channel.String
	}
	return o, nil
}

func (r Repo) ListOrgs(ctx context.Context) ([]domain.Org, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,slack_enabled,COALESCE(slack_channel,''),email_enabled,created_at FROM orgs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Org
	for rows.Next() {
		var o domain.Org
		var slackEnabled, emailEnabled int
		if err := rows.Scan(&o.ID, &o.Name, &slackEnabled, &o.SlackChannel, &emailEnabled, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.SlackEnabled = slackEnabled != 0
		o.EmailEnabled = emailEnabled != 0
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) UpdateOrg(ctx context.Context, o domain.Org) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE orgs SET name=?, slack_enabled=?, slack_channel=?, email_enabled=? WHERE id=?`,
		o.Name, boolInt(o.SlackEnabled), nullable(o.SlackChannel), boolInt(o.EmailEnabled), o.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SingleOrg resolves the org when exactly one exists in the workspace.
func (r Repo) SingleOrg(ctx context.Context) (domain.Org, error) {
	orgs, err := r.ListOrgs(ctx)
	if err != nil {
		return domain.Org{}, err
	}
	if len(orgs) == 0 {
		return domain.Org{}, ErrNotFound
	}
	if len(orgs) > 1 {
		return domain.Org{}, fmt.Errorf("multiple orgs exist; specify --org")
	}
	return orgs[0], nil
}

func (r Repo) UpsertOrgConfig(ctx context.Context, orgID string, cfg *config.Config) error {
	return upsertOrgConfig(ctx, r.DB, nil, orgID, cfg)
}

func (r Repo) UpsertOrgConfigTx(ctx context.Context, tx *sql.Tx, orgID string, cfg *config.Config) error {
	return upsertOrgConfig(ctx, nil, tx, orgID, cfg)
}

func upsertOrgConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, orgID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Org.ID = orgID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(domain.TimeFormat)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO org_configs(org_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(org_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, orgID, string(payload), now, now)
	return err
}

func (r Repo) GetOrgConfig(ctx context.Context, orgID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM org_configs WHERE org_id=?`, orgID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Org.ID == "" {
		cfg.Org.ID = orgID
	}
	return &cfg, cfg.Validate()
}

func (r Repo) InsertGoal(ctx context.Context, g domain.Goal) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO goals(id,org_id,title,status,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		g.ID, g.OrgID, g.Title, g.Status, g.CreatedAt, g.UpdatedAt)
	return err
}

func (r Repo) GetGoal(ctx context.Context, id string) (domain.Goal, error) {
	var g domain.Goal
	err := r.DB.QueryRowContext(ctx, `SELECT id,org_id,title,status,created_at,updated_at FROM goals WHERE id=?`, id).
		Scan(&g.ID, &g.OrgID, &g.Title, &g.Status, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	return g, err
}

func (r Repo) ListGoals(ctx context.Context, orgID string) ([]domain.Goal, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,org_id,title,status,created_at,updated_at FROM goals WHERE org_id=? ORDER BY created_at ASC, id ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Goal
	for rows.Next() {
		var g domain.Goal
		if err := rows.Scan(&g.ID, &g.OrgID, &g.Title, &g.Status, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func (r Repo) UpdateGoalStatus(ctx context.Context, id, status string) error {
	now := time.Now().UTC().Format(domain.TimeFormat)
	res, err := r.DB.ExecContext(ctx, `UPDATE goals SET status=?, updated_at=? WHERE id=?`, status, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertQuestline(ctx context.Context, q domain.Questline) error {
	ids, err := marshalStrings(q.QuestIDs)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO questlines(id,org_id,goal_id,title,quest_ids_json,created_at) VALUES (?,?,?,?,?,?)`,
		q.ID, q.OrgID, q.GoalID, q.Title, ids, q.CreatedAt)
	return err
}

func (r Repo) GetQuestline(ctx context.Context, id string) (domain.Questline, error) {
	var q domain.Questline
	var ids sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,org_id,goal_id,title,quest_ids_json,created_at FROM questlines WHERE id=?`, id).
		Scan(&q.ID, &q.OrgID, &q.GoalID, &q.Title, &ids, &q.CreatedAt)
	if err == sql.ErrNoRows {
		return q, ErrNotFound
	}
	if err != nil {
		return q, err
	}
	q.QuestIDs = unmarshalStrings(ids)
	return q, nil
}

func (r Repo) ListQuestlines(ctx context.Context, orgID string) ([]domain.Questline, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,org_id,goal_id,title,quest_ids_json,created_at FROM questlines WHERE org_id=? ORDER BY created_at ASC, id ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Questline
	for rows.Next() {
		var q domain.Questline
		var ids sql.NullString
		if err := rows.Scan(&q.ID, &q.OrgID, &q.GoalID, &q.Title, &ids, &q.CreatedAt); err != nil {
			return nil, err
		}
		q.QuestIDs = unmarshalStrings(ids)
		res = append(res, q)
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, orgID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if orgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, orgID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(org_id,''),entity_kind,COALESCE(entity_id,''),source_app,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.OrgID, &e.EntityKind, &e.EntityID, &e.SourceApp, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalStrings(in []string) (any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalStrings(in sql.NullString) []string {
	if !in.Valid || in.String == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(in.String), &out)
	return out
}
