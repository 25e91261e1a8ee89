package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type ANCIReport struct {
	ID          int64      `json:"id"`
	IncidentID  int64      `json:"incidente_id"`
	Kind        string     `json:"tipo_reporte"`
	Status      string     `json:"estado"`
	Deadline    *time.Time `json:"fecha_limite,omitempty"`
	SubmittedAt *time.Time `json:"fecha_envio,omitempty"`
	FilePath    string     `json:"ruta_archivo"`
	GeneratedBy string     `json:"generado_por"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type ANCIStore interface {
	Create(ctx context.Context, r *ANCIReport) (int64, error)
	Get(ctx context.Context, id int64) (*ANCIReport, error)
	ListByIncident(ctx context.Context, incidentID int64) ([]ANCIReport, error)
	MarkSubmitted(ctx context.Context, id int64, at time.Time) error
	SetFilePath(ctx context.Context, id int64, path string) error
	ListOverdue(ctx context.Context, now time.Time) ([]ANCIReport, error)
	MarkOverdue(ctx context.Context, id int64) error
}

type anciStore struct {
	db *sql.DB
}

func NewANCIStore(db *sql.DB) ANCIStore {
	return &anciStore{db: db}
}

const anciColumns = `id, incidente_id, tipo_reporte, estado, fecha_limite, fecha_envio, ruta_archivo, generado_por, created_at, updated_at`

func (s *anciStore) Create(ctx context.Context, r *ANCIReport) (int64, error) {
	now := time.Now().UTC()
	if r.Status == "" {
		r.Status = "pendiente"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reportes_anci(incidente_id, tipo_reporte, estado, fecha_limite, fecha_envio, ruta_archivo, generado_por, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?)`,
		r.IncidentID, r.Kind, r.Status, r.Deadline, r.SubmittedAt, r.FilePath, r.GeneratedBy, now, now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	return id, nil
}

func (s *anciStore) Get(ctx context.Context, id int64) (*ANCIReport, error) {
	r := &ANCIReport{}
	err := s.db.QueryRowContext(ctx, `SELECT `+anciColumns+` FROM reportes_anci WHERE id=?`, id).
		Scan(&r.ID, &r.IncidentID, &r.Kind, &r.Status, &r.Deadline, &r.SubmittedAt, &r.FilePath,
			&r.GeneratedBy, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *anciStore) ListByIncident(ctx context.Context, incidentID int64) ([]ANCIReport, error) {
	return s.list(ctx, `SELECT `+anciColumns+` FROM reportes_anci WHERE incidente_id=? ORDER BY id`, incidentID)
}

func (s *anciStore) MarkSubmitted(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reportes_anci SET estado='enviado', fecha_envio=?, updated_at=? WHERE id=?`,
		at.UTC(), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *anciStore) SetFilePath(ctx context.Context, id int64, path string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reportes_anci SET ruta_archivo=?, estado='generado', updated_at=? WHERE id=?`,
		path, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOverdue returns pending reports whose deadline already passed. The
// deadline watcher calls this on every tick.
func (s *anciStore) ListOverdue(ctx context.Context, now time.Time) ([]ANCIReport, error) {
	return s.list(ctx, `SELECT `+anciColumns+` FROM reportes_anci
		WHERE estado='pendiente' AND fecha_limite IS NOT NULL AND fecha_limite < ? ORDER BY fecha_limite`, now.UTC())
}

func (s *anciStore) MarkOverdue(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reportes_anci SET estado='vencido', updated_at=? WHERE id=? AND estado='pendiente'`,
		time.Now().UTC(), id)
	return err
}

func (s *anciStore) list(ctx context.Context, query string, args ...any) ([]ANCIReport, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ANCIReport
	for rows.Next() {
		var r ANCIReport
		if err := rows.Scan(&r.ID, &r.IncidentID, &r.Kind, &r.Status, &r.Deadline, &r.SubmittedAt,
			&r.FilePath, &r.GeneratedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
