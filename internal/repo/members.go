package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"questboard/internal/domain"
)

func (r Repo) InsertMember(ctx context.Context, m domain.Member) error {
	profile, err := marshalProfile(m.Profile)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO members(id,org_id,email,name,genius_profile_json,daily_capacity_minutes,created_at) VALUES (?,?,?,?,?,?,?)`,
		m.ID, m.OrgID, m.Email, nullable(m.Name), profile, m.DailyCapacityMinutes, m.CreatedAt)
	return err
}

func (r Repo) UpdateMember(ctx context.Context, m domain.Member) error {
	profile, err := marshalProfile(m.Profile)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE members SET email=?, name=?, genius_profile_json=?, daily_capacity_minutes=? WHERE id=?`,
		m.Email, nullable(m.Name), profile, m.DailyCapacityMinutes, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetMember(ctx context.Context, id string) (domain.Member, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,org_id,email,name,genius_profile_json,daily_capacity_minutes,created_at FROM members WHERE id=?`, id)
	return scanMember(row.Scan)
}

func (r Repo) ListMembers(ctx context.Context, orgID string) ([]domain.Member, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,org_id,email,name,genius_profile_json,daily_capacity_minutes,created_at FROM members WHERE org_id=? ORDER BY created_at ASC, id ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		m, err := scanMember(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func scanMember(scan func(dest ...any) error) (domain.Member, error) {
	var m domain.Member
	var name, profile sql.NullString
	err := scan(&m.ID, &m.OrgID, &m.Email, &name, &profile, &m.DailyCapacityMinutes, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if name.Valid {
		m.Name = name.String
	}
	if profile.Valid && profile.String != "" {
		var p domain.GeniusProfile
		if err := json.Unmarshal([]byte(profile.String), &p); err != nil {
			return m, err
		}
		m.Profile = &p
	}
	return m, nil
}

func marshalProfile(p *domain.GeniusProfile) (any, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
