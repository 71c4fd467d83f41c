package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"questboard/internal/domain"
)

// UpsertDeck overwrites any existing deck for the same member+date.
func (r Repo) UpsertDeck(ctx context.Context, d domain.MemberQuestDeck) error {
	entries, err := json.Marshal(d.Entries)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO member_quest_decks(id,org_id,member_id,date,entries_json,total_minutes,generated_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(member_id, date) DO UPDATE SET entries_json=excluded.entries_json, total_minutes=excluded.total_minutes, generated_at=excluded.generated_at`,
		d.ID, d.OrgID, d.MemberID, d.Date, string(entries), d.TotalMinutes, d.GeneratedAt)
	return err
}

func (r Repo) GetDeck(ctx context.Context, memberID, date string) (domain.MemberQuestDeck, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,org_id,member_id,date,entries_json,total_minutes,generated_at FROM member_quest_decks WHERE member_id=? AND date=?`, memberID, date)
	return scanDeck(row.Scan)
}

func (r Repo) ListDecks(ctx context.Context, orgID, date string) ([]domain.MemberQuestDeck, error) {
	query := `SELECT id,org_id,member_id,date,entries_json,total_minutes,generated_at FROM member_quest_decks WHERE org_id=?`
	args := []any{orgID}
	if date != "" {
		query += ` AND date=?`
		args = append(args, date)
	}
	query += ` ORDER BY date DESC, member_id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MemberQuestDeck
	for rows.Next() {
		d, err := scanDeck(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) CountDecks(ctx context.Context, memberID, date string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM member_quest_decks WHERE member_id=? AND date=?`, memberID, date).Scan(&n)
	return n, err
}

func scanDeck(scan func(dest ...any) error) (domain.MemberQuestDeck, error) {
	var d domain.MemberQuestDeck
	var entries string
	err := scan(&d.ID, &d.OrgID, &d.MemberID, &d.Date, &entries, &d.TotalMinutes, &d.GeneratedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if entries != "" {
		if err := json.Unmarshal([]byte(entries), &d.Entries); err != nil {
			return d, err
		}
	}
	return d, nil
}
