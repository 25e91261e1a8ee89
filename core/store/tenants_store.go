package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Tenant struct {
	ID          int64     `json:"id"`
	RUT         string    `json:"rut"`
	LegalName   string    `json:"razon_social"`
	ContactMail string    `json:"email_contacto"`
	Active      bool      `json:"activo"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type TenantsStore interface {
	Create(ctx context.Context, t *Tenant) (int64, error)
	Update(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, id int64) (*Tenant, error)
	List(ctx context.Context, includeInactive bool) ([]Tenant, error)
	Deactivate(ctx context.Context, id int64) error
}

type tenantsStore struct {
	db *sql.DB
}

func NewTenantsStore(db *sql.DB) TenantsStore {
	return &tenantsStore{db: db}
}

func (s *tenantsStore) Create(ctx context.Context, t *Tenant) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO inquilinos(rut, razon_social, email_contacto, activo, created_at, updated_at)
		VALUES(?,?,?,?,?,?)`,
		t.RUT, t.LegalName, t.ContactMail, true, now, now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	t.ID = id
	t.Active = true
	t.CreatedAt = now
	t.UpdatedAt = now
	return id, nil
}

func (s *tenantsStore) Update(ctx context.Context, t *Tenant) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE inquilinos SET rut=?, razon_social=?, email_contacto=?, activo=?, updated_at=? WHERE id=?`,
		t.RUT, t.LegalName, t.ContactMail, t.Active, now, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	t.UpdatedAt = now
	return nil
}

func (s *tenantsStore) Get(ctx context.Context, id int64) (*Tenant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, rut, razon_social, email_contacto, activo, created_at, updated_at
		FROM inquilinos WHERE id=?`, id)
	t := &Tenant{}
	err := row.Scan(&t.ID, &t.RUT, &t.LegalName, &t.ContactMail, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *tenantsStore) List(ctx context.Context, includeInactive bool) ([]Tenant, error) {
	query := `SELECT id, rut, razon_social, email_contacto, activo, created_at, updated_at FROM inquilinos`
	if !includeInactive {
		query += ` WHERE activo = TRUE`
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.RUT, &t.LegalName, &t.ContactMail, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *tenantsStore) Deactivate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE inquilinos SET activo = FALSE, updated_at=? WHERE id=?`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
