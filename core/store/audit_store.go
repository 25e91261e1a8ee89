package store

import (
	"context"
	"database/sql"
	"time"
)

type AuditRecord struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditFilter struct {
	Action string
	User   string
	Since  time.Time
	Limit  int
}

type AuditStore interface {
	Append(ctx context.Context, username, action, details string) error
	List(ctx context.Context, f AuditFilter) ([]AuditRecord, error)
}

type auditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) AuditStore {
	return &auditStore{db: db}
}

func (s *auditStore) Append(ctx context.Context, username, action, details string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log(username, action, details, created_at) VALUES(?,?,?,?)`,
		username, action, details, time.Now().UTC())
	return err
}

func (s *auditStore) List(ctx context.Context, f AuditFilter) ([]AuditRecord, error) {
	query := `SELECT id, username, action, details, created_at FROM audit_log WHERE 1=1`
	var args []any
	if f.Action != "" {
		query += ` AND action=?`
		args = append(args, f.Action)
	}
	if f.User != "" {
		query += ` AND username=?`
		args = append(args, f.User)
	}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.Since.UTC())
	}
	query += ` ORDER BY created_at DESC`
	limit := f.Limit
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		var details sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Username, &rec.Action, &details, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Details = details.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
