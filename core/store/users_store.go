package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

type User struct {
	ID             int64      `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	Salt           string     `json:"-"`
	Roles          []string   `json:"roles"`
	TenantID       *int64     `json:"inquilino_id,omitempty"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	Active         bool       `json:"activo"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type UsersStore interface {
	Create(ctx context.Context, u *User) (int64, error)
	Update(ctx context.Context, u *User) error
	Get(ctx context.Context, id int64) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]User, error)
	RecordFailedLogin(ctx context.Context, id int64, attempts int, lockedUntil *time.Time) error
	ResetFailedLogins(ctx context.Context, id int64, lastLogin time.Time) error
	Deactivate(ctx context.Context, id int64) error
}

type usersStore struct {
	db *sql.DB
}

func NewUsersStore(db *sql.DB) UsersStore {
	return &usersStore{db: db}
}

const userColumns = `id, username, email, password_hash, salt, roles, inquilino_id, failed_attempts, locked_until, activo, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	u := &User{}
	var rolesJSON string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Salt, &rolesJSON, &u.TenantID, &u.FailedAttempts, &u.LockedUntil, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rolesJSON != "" {
		_ = json.Unmarshal([]byte(rolesJSON), &u.Roles)
	}
	return u, nil
}

func rolesToJSON(roles []string) string {
	if len(roles) == 0 {
		return "[]"
	}
	raw, _ := json.Marshal(roles)
	return string(raw)
}

func (s *usersStore) Create(ctx context.Context, u *User) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO usuarios(username, email, password_hash, salt, roles, inquilino_id, failed_attempts, locked_until, activo, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		u.Username, u.Email, u.PasswordHash, u.Salt, rolesToJSON(u.Roles), u.TenantID, 0, nil, true, now, now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	u.ID = id
	u.Active = true
	u.CreatedAt = now
	u.UpdatedAt = now
	return id, nil
}

func (s *usersStore) Update(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE usuarios SET email=?, password_hash=?, salt=?, roles=?, inquilino_id=?, activo=?, updated_at=?
		WHERE id=?`,
		u.Email, u.PasswordHash, u.Salt, rolesToJSON(u.Roles), u.TenantID, u.Active, now, u.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	u.UpdatedAt = now
	return nil
}

func (s *usersStore) Get(ctx context.Context, id int64) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM usuarios WHERE id=?`, id))
}

func (s *usersStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM usuarios WHERE username=?`, username))
}

func (s *usersStore) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM usuarios ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (s *usersStore) RecordFailedLogin(ctx context.Context, id int64, attempts int, lockedUntil *time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE usuarios SET failed_attempts=?, locked_until=?, updated_at=? WHERE id=?`,
		attempts, lockedUntil, time.Now().UTC(), id)
	return err
}

func (s *usersStore) ResetFailedLogins(ctx context.Context, id int64, lastLogin time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE usuarios SET failed_attempts=0, locked_until=NULL, updated_at=? WHERE id=?`,
		lastLogin.UTC(), id)
	return err
}

func (s *usersStore) Deactivate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE usuarios SET activo = FALSE, updated_at=? WHERE id=?`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
