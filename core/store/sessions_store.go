package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

type SessionRecord struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	Roles      []string  `json:"roles"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Revoked    bool      `json:"revoked"`
}

type SessionStore interface {
	SaveSession(ctx context.Context, s *SessionRecord) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	UpdateActivity(ctx context.Context, id string, seenAt time.Time, ttl time.Duration) error
	DeleteSession(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	ListByUser(ctx context.Context, userID int64) ([]SessionRecord, error)
}

type sessionsStore struct {
	db *sql.DB
}

func NewSessionsStore(db *sql.DB) SessionStore {
	return &sessionsStore{db: db}
}

func (s *sessionsStore) SaveSession(ctx context.Context, rec *SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sesiones(id, user_id, username, roles, ip, user_agent, created_at, last_seen_at, expires_at, revoked)
		VALUES(?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.UserID, rec.Username, rolesToJSON(rec.Roles), rec.IP, rec.UserAgent,
		rec.CreatedAt.UTC(), rec.LastSeenAt.UTC(), rec.ExpiresAt.UTC(), false)
	return err
}

func (s *sessionsStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, username, roles, ip, user_agent, created_at, last_seen_at, expires_at, revoked
		FROM sesiones WHERE id=?`, id)
	rec := &SessionRecord{}
	var rolesJSON string
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Username, &rolesJSON, &rec.IP, &rec.UserAgent, &rec.CreatedAt, &rec.LastSeenAt, &rec.ExpiresAt, &rec.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rolesJSON != "" {
		_ = json.Unmarshal([]byte(rolesJSON), &rec.Roles)
	}
	if rec.Revoked || time.Now().UTC().After(rec.ExpiresAt) {
		return nil, nil
	}
	return rec, nil
}

func (s *sessionsStore) UpdateActivity(ctx context.Context, id string, seenAt time.Time, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sesiones SET last_seen_at=?, expires_at=? WHERE id=?`,
		seenAt.UTC(), seenAt.UTC().Add(ttl), id)
	return err
}

func (s *sessionsStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sesiones SET revoked = TRUE WHERE id=?`, id)
	return err
}

func (s *sessionsStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sesiones WHERE expires_at < ? OR revoked = TRUE`, now.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *sessionsStore) ListByUser(ctx context.Context, userID int64) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, username, roles, ip, user_agent, created_at, last_seen_at, expires_at, revoked
		FROM sesiones WHERE user_id=? AND revoked = FALSE ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var rolesJSON string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Username, &rolesJSON, &rec.IP, &rec.UserAgent, &rec.CreatedAt, &rec.LastSeenAt, &rec.ExpiresAt, &rec.Revoked); err != nil {
			return nil, err
		}
		if rolesJSON != "" {
			_ = json.Unmarshal([]byte(rolesJSON), &rec.Roles)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
