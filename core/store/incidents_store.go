package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Incident is the relational projection of an incident document. The
// formato_semilla_json blob is the source of truth for free-form content;
// the denormalized columns exist for SQL-side filtering and must be kept in
// step by every write path.
type Incident struct {
	ID              int64     `json:"id"`
	UniqueIndex     string    `json:"indice_unico"`
	TenantID        int64     `json:"inquilino_id"`
	CompanyID       int64     `json:"empresa_id"`
	Title           string    `json:"titulo"`
	Description     string    `json:"descripcion"`
	Criticality     string    `json:"criticidad"`
	Status          string    `json:"estado"`
	IncidentDate    string    `json:"fecha_incidente"`
	DetectionDate   string    `json:"fecha_deteccion"`
	GeographicScope string    `json:"alcance_geografico"`
	AffectedSystems []string  `json:"sistemas_afectados"`
	DocumentJSON    string    `json:"-"`
	IntegrityHash   string    `json:"hash_integridad"`
	Version         int       `json:"version"`
	CreatedBy       string    `json:"created_by"`
	UpdatedBy       string    `json:"updated_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type IncidentFilter struct {
	TenantID    int64
	CompanyID   int64
	Criticality string
	Status      string
	Search      string
	Limit       int
	Offset      int
}

type IncidentsStore interface {
	NextCorrelative(ctx context.Context) (int64, error)
	Create(ctx context.Context, inc *Incident) (int64, error)
	Update(ctx context.Context, inc *Incident, expectedVersion int) error
	Get(ctx context.Context, id int64) (*Incident, error)
	GetByUniqueIndex(ctx context.Context, index string) (*Incident, error)
	List(ctx context.Context, f IncidentFilter) ([]Incident, error)
	Delete(ctx context.Context, id int64) error
}

type incidentsStore struct {
	db *sql.DB
}

func NewIncidentsStore(db *sql.DB) IncidentsStore {
	return &incidentsStore{db: db}
}

const incidentColumns = `id, indice_unico, inquilino_id, empresa_id, titulo, descripcion, criticidad, estado,
	fecha_incidente, fecha_deteccion, alcance_geografico, sistemas_afectados, formato_semilla_json,
	hash_integridad, version, created_by, updated_by, created_at, updated_at`

func (s *incidentsStore) NextCorrelative(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM incidentes`).Scan(&max); err != nil {
		return 0, err
	}
	return max.Int64 + 1, nil
}

func (s *incidentsStore) Create(ctx context.Context, inc *Incident) (int64, error) {
	now := time.Now().UTC()
	if inc.Version <= 0 {
		inc.Version = 1
	}
	if strings.TrimSpace(inc.Status) == "" {
		inc.Status = "draft"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO incidentes(indice_unico, inquilino_id, empresa_id, titulo, descripcion, criticidad, estado,
			fecha_incidente, fecha_deteccion, alcance_geografico, sistemas_afectados, formato_semilla_json,
			hash_integridad, version, created_by, updated_by, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		inc.UniqueIndex, inc.TenantID, inc.CompanyID, inc.Title, inc.Description, inc.Criticality, inc.Status,
		inc.IncidentDate, inc.DetectionDate, inc.GeographicScope, systemsToJSON(inc.AffectedSystems), inc.DocumentJSON,
		inc.IntegrityHash, inc.Version, inc.CreatedBy, inc.UpdatedBy, now, now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	inc.ID = id
	inc.CreatedAt = now
	inc.UpdatedAt = now
	return id, nil
}

// Update rewrites the row only when the stored version matches
// expectedVersion; a stale caller gets ErrConflict instead of silently
// overwriting a concurrent edit.
func (s *incidentsStore) Update(ctx context.Context, inc *Incident, expectedVersion int) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidentes SET titulo=?, descripcion=?, criticidad=?, estado=?, fecha_incidente=?, fecha_deteccion=?,
			alcance_geografico=?, sistemas_afectados=?, formato_semilla_json=?, hash_integridad=?,
			updated_by=?, updated_at=?, version=version+1
		WHERE id=? AND version=?`,
		inc.Title, inc.Description, inc.Criticality, inc.Status, inc.IncidentDate, inc.DetectionDate,
		inc.GeographicScope, systemsToJSON(inc.AffectedSystems), inc.DocumentJSON, inc.IntegrityHash,
		inc.UpdatedBy, now, inc.ID, expectedVersion)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	inc.Version = expectedVersion + 1
	inc.UpdatedAt = now
	return nil
}

func (s *incidentsStore) Get(ctx context.Context, id int64) (*Incident, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidentes WHERE id=?`, id))
}

func (s *incidentsStore) GetByUniqueIndex(ctx context.Context, index string) (*Incident, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidentes WHERE indice_unico=?`, index))
}

func (s *incidentsStore) scanOne(row *sql.Row) (*Incident, error) {
	inc := &Incident{}
	var systemsJSON string
	err := row.Scan(&inc.ID, &inc.UniqueIndex, &inc.TenantID, &inc.CompanyID, &inc.Title, &inc.Description,
		&inc.Criticality, &inc.Status, &inc.IncidentDate, &inc.DetectionDate, &inc.GeographicScope,
		&systemsJSON, &inc.DocumentJSON, &inc.IntegrityHash, &inc.Version, &inc.CreatedBy, &inc.UpdatedBy,
		&inc.CreatedAt, &inc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if systemsJSON != "" {
		_ = json.Unmarshal([]byte(systemsJSON), &inc.AffectedSystems)
	}
	return inc, nil
}

func (s *incidentsStore) List(ctx context.Context, f IncidentFilter) ([]Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidentes WHERE 1=1`
	var args []any
	if f.TenantID > 0 {
		query += ` AND inquilino_id=?`
		args = append(args, f.TenantID)
	}
	if f.CompanyID > 0 {
		query += ` AND empresa_id=?`
		args = append(args, f.CompanyID)
	}
	if f.Criticality != "" {
		query += ` AND criticidad=?`
		args = append(args, f.Criticality)
	}
	if f.Status != "" {
		query += ` AND estado=?`
		args = append(args, f.Status)
	}
	if strings.TrimSpace(f.Search) != "" {
		query += ` AND (titulo LIKE ? OR descripcion LIKE ? OR indice_unico LIKE ?)`
		needle := "%" + strings.TrimSpace(f.Search) + "%"
		args = append(args, needle, needle, needle)
	}
	query += ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Incident
	for rows.Next() {
		var inc Incident
		var systemsJSON string
		if err := rows.Scan(&inc.ID, &inc.UniqueIndex, &inc.TenantID, &inc.CompanyID, &inc.Title, &inc.Description,
			&inc.Criticality, &inc.Status, &inc.IncidentDate, &inc.DetectionDate, &inc.GeographicScope,
			&systemsJSON, &inc.DocumentJSON, &inc.IntegrityHash, &inc.Version, &inc.CreatedBy, &inc.UpdatedBy,
			&inc.CreatedAt, &inc.UpdatedAt); err != nil {
			return nil, err
		}
		if systemsJSON != "" {
			_ = json.Unmarshal([]byte(systemsJSON), &inc.AffectedSystems)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// Delete removes the incident and its dependents table-by-table inside one
// transaction. The dependent tables grew ad hoc, so each one is cleared
// explicitly instead of relying on FK cascade.
func (s *incidentsStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range []string{
		`DELETE FROM evidencias_incidentes WHERE incidente_id=?`,
		`DELETE FROM incidente_taxonomia WHERE incidente_id=?`,
		`DELETE FROM reportes_anci WHERE incidente_id=?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			tx.Rollback()
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM incidentes WHERE id=?`, id)
	if err != nil {
		tx.Rollback()
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		tx.Rollback()
		return ErrNotFound
	}
	return tx.Commit()
}

func systemsToJSON(systems []string) string {
	if len(systems) == 0 {
		return "[]"
	}
	raw, _ := json.Marshal(systems)
	return string(raw)
}
