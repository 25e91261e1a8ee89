package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// CatalogEntry is a row of the ANCI incident taxonomy catalog.
type CatalogEntry struct {
	ID          int64  `json:"id"`
	Code        string `json:"codigo"`
	Area        string `json:"area"`
	Effect      string `json:"efecto"`
	Category    string `json:"categoria"`
	Subcategory string `json:"subcategoria"`
	Description string `json:"descripcion"`
	EntityType  string `json:"tipo_empresa"`
	Active      bool   `json:"activo"`
}

// TaxonomyLink ties one selected taxonomy slot of an incident document to
// its catalog row. Links mirror the document; the document wins on any
// disagreement.
type TaxonomyLink struct {
	ID            int64     `json:"id"`
	IncidentID    int64     `json:"incidente_id"`
	TaxonomyID    int64     `json:"taxonomia_id"`
	UID           string    `json:"id_unico"`
	Order         int       `json:"numero_orden"`
	Justification string    `json:"porque_seleccionada"`
	Notes         string    `json:"observaciones"`
	AssignedAt    time.Time `json:"fecha_asignacion"`
	AssignedBy    string    `json:"asignado_por"`
}

type TaxonomyStore interface {
	ListCatalog(ctx context.Context, entityType string) ([]CatalogEntry, error)
	GetCatalogEntry(ctx context.Context, id int64) (*CatalogEntry, error)
	UpsertCatalogEntry(ctx context.Context, e *CatalogEntry) (int64, error)
	ReplaceLinks(ctx context.Context, incidentID int64, links []TaxonomyLink) error
	ListLinks(ctx context.Context, incidentID int64) ([]TaxonomyLink, error)
	DeleteOrphanLinks(ctx context.Context) (int64, error)
}

type taxonomyStore struct {
	db *sql.DB
}

func NewTaxonomyStore(db *sql.DB) TaxonomyStore {
	return &taxonomyStore{db: db}
}

func (s *taxonomyStore) ListCatalog(ctx context.Context, entityType string) ([]CatalogEntry, error) {
	query := `SELECT id, codigo, area, efecto, categoria, subcategoria, descripcion, tipo_empresa, activo
		FROM taxonomia_incidentes WHERE activo = TRUE`
	var args []any
	if entityType != "" {
		// AMBAS rows apply to every entity type.
		query += ` AND (tipo_empresa=? OR tipo_empresa='AMBAS' OR tipo_empresa='')`
		args = append(args, entityType)
	}
	query += ` ORDER BY codigo`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CatalogEntry
	for rows.Next() {
		var e CatalogEntry
		if err := rows.Scan(&e.ID, &e.Code, &e.Area, &e.Effect, &e.Category, &e.Subcategory,
			&e.Description, &e.EntityType, &e.Active); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *taxonomyStore) GetCatalogEntry(ctx context.Context, id int64) (*CatalogEntry, error) {
	e := &CatalogEntry{}
	err := s.db.QueryRowContext(ctx, `SELECT id, codigo, area, efecto, categoria, subcategoria, descripcion, tipo_empresa, activo
		FROM taxonomia_incidentes WHERE id=?`, id).
		Scan(&e.ID, &e.Code, &e.Area, &e.Effect, &e.Category, &e.Subcategory, &e.Description, &e.EntityType, &e.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *taxonomyStore) UpsertCatalogEntry(ctx context.Context, e *CatalogEntry) (int64, error) {
	if e.ID > 0 {
		_, err := s.db.ExecContext(ctx, `UPDATE taxonomia_incidentes
			SET codigo=?, area=?, efecto=?, categoria=?, subcategoria=?, descripcion=?, tipo_empresa=?, activo=?
			WHERE id=?`,
			e.Code, e.Area, e.Effect, e.Category, e.Subcategory, e.Description, e.EntityType, e.Active, e.ID)
		return e.ID, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO taxonomia_incidentes(codigo, area, efecto, categoria, subcategoria, descripcion, tipo_empresa, activo)
		VALUES(?,?,?,?,?,?,?,?)`,
		e.Code, e.Area, e.Effect, e.Category, e.Subcategory, e.Description, e.EntityType, e.Active)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	e.ID = id
	return id, nil
}

// ReplaceLinks rewrites the incident's taxonomy links wholesale inside one
// transaction. The caller passes the active slots of the document; stale
// rows never survive a save.
func (s *taxonomyStore) ReplaceLinks(ctx context.Context, incidentID int64, links []TaxonomyLink) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM incidente_taxonomia WHERE incidente_id=?`, incidentID); err != nil {
		tx.Rollback()
		return err
	}
	for _, l := range links {
		if l.AssignedAt.IsZero() {
			l.AssignedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO incidente_taxonomia(incidente_id, taxonomia_id, id_unico, numero_orden, porque_seleccionada, observaciones, fecha_asignacion, asignado_por)
			VALUES(?,?,?,?,?,?,?,?)`,
			incidentID, l.TaxonomyID, l.UID, l.Order, l.Justification, l.Notes, l.AssignedAt, l.AssignedBy); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *taxonomyStore) ListLinks(ctx context.Context, incidentID int64) ([]TaxonomyLink, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, incidente_id, taxonomia_id, id_unico, numero_orden, porque_seleccionada, observaciones, fecha_asignacion, asignado_por
		FROM incidente_taxonomia WHERE incidente_id=? ORDER BY numero_orden`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TaxonomyLink
	for rows.Next() {
		var l TaxonomyLink
		if err := rows.Scan(&l.ID, &l.IncidentID, &l.TaxonomyID, &l.UID, &l.Order,
			&l.Justification, &l.Notes, &l.AssignedAt, &l.AssignedBy); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteOrphanLinks drops links whose catalog entry no longer exists.
func (s *taxonomyStore) DeleteOrphanLinks(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM incidente_taxonomia
		WHERE taxonomia_id NOT IN (SELECT id FROM taxonomia_incidentes)`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
