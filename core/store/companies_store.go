package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Company struct {
	ID              int64     `json:"id"`
	TenantID        int64     `json:"inquilino_id"`
	RUT             string    `json:"rut"`
	LegalName       string    `json:"razon_social"`
	EntityType      string    `json:"tipo_empresa"` // OIV or PSE
	EssentialSector string    `json:"sector_esencial"`
	ContactMail     string    `json:"email_contacto"`
	Active          bool      `json:"activo"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type CompaniesStore interface {
	Create(ctx context.Context, c *Company) (int64, error)
	Update(ctx context.Context, c *Company) error
	Get(ctx context.Context, id int64) (*Company, error)
	ListByTenant(ctx context.Context, tenantID int64) ([]Company, error)
	Deactivate(ctx context.Context, id int64) error
}

type companiesStore struct {
	db *sql.DB
}

func NewCompaniesStore(db *sql.DB) CompaniesStore {
	return &companiesStore{db: db}
}

func (s *companiesStore) Create(ctx context.Context, c *Company) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO empresas(inquilino_id, rut, razon_social, tipo_empresa, sector_esencial, email_contacto, activo, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?)`,
		c.TenantID, c.RUT, c.LegalName, c.EntityType, c.EssentialSector, c.ContactMail, true, now, now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	c.ID = id
	c.Active = true
	c.CreatedAt = now
	c.UpdatedAt = now
	return id, nil
}

func (s *companiesStore) Update(ctx context.Context, c *Company) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE empresas SET rut=?, razon_social=?, tipo_empresa=?, sector_esencial=?, email_contacto=?, activo=?, updated_at=?
		WHERE id=?`,
		c.RUT, c.LegalName, c.EntityType, c.EssentialSector, c.ContactMail, c.Active, now, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	c.UpdatedAt = now
	return nil
}

func (s *companiesStore) Get(ctx context.Context, id int64) (*Company, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, inquilino_id, rut, razon_social, tipo_empresa, sector_esencial, email_contacto, activo, created_at, updated_at
		FROM empresas WHERE id=?`, id)
	c := &Company{}
	err := row.Scan(&c.ID, &c.TenantID, &c.RUT, &c.LegalName, &c.EntityType, &c.EssentialSector, &c.ContactMail, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *companiesStore) ListByTenant(ctx context.Context, tenantID int64) ([]Company, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, inquilino_id, rut, razon_social, tipo_empresa, sector_esencial, email_contacto, activo, created_at, updated_at
		FROM empresas WHERE inquilino_id=? ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.TenantID, &c.RUT, &c.LegalName, &c.EntityType, &c.EssentialSector, &c.ContactMail, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *companiesStore) Deactivate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE empresas SET activo = FALSE, updated_at=? WHERE id=?`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
