package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type EvidenceRecord struct {
	ID         int64     `json:"id"`
	IncidentID int64     `json:"incidente_id"`
	Section    string    `json:"seccion"`
	Number     string    `json:"numero_evidencia"`
	FileName   string    `json:"nombre_archivo"`
	FilePath   string    `json:"ruta_archivo"`
	Description string   `json:"descripcion"`
	HashSHA256 string    `json:"hash_sha256"`
	SizeKB     int64     `json:"tamano_kb"`
	MimeType   string    `json:"tipo_mime"`
	UploadedBy string    `json:"subido_por"`
	UploadedAt time.Time `json:"fecha_subida"`
	Status     string    `json:"estado"`
}

type EvidenceStore interface {
	Create(ctx context.Context, rec *EvidenceRecord) (int64, error)
	Get(ctx context.Context, id int64) (*EvidenceRecord, error)
	ListByIncident(ctx context.Context, incidentID int64) ([]EvidenceRecord, error)
	UpdateNumber(ctx context.Context, id int64, number string) error
	MarkRemoved(ctx context.Context, id int64) error
	DeleteByIncident(ctx context.Context, incidentID int64) error
}

type evidenceStore struct {
	db *sql.DB
}

func NewEvidenceStore(db *sql.DB) EvidenceStore {
	return &evidenceStore{db: db}
}

const evidenceColumns = `id, incidente_id, seccion, numero_evidencia, nombre_archivo, ruta_archivo,
	descripcion, hash_sha256, tamano_kb, tipo_mime, subido_por, fecha_subida, estado`

func (s *evidenceStore) Create(ctx context.Context, rec *EvidenceRecord) (int64, error) {
	if rec.Status == "" {
		rec.Status = "activo"
	}
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO evidencias_incidentes(incidente_id, seccion, numero_evidencia, nombre_archivo, ruta_archivo,
			descripcion, hash_sha256, tamano_kb, tipo_mime, subido_por, fecha_subida, estado)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.IncidentID, rec.Section, rec.Number, rec.FileName, rec.FilePath,
		rec.Description, rec.HashSHA256, rec.SizeKB, rec.MimeType, rec.UploadedBy, rec.UploadedAt, rec.Status)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	rec.ID = id
	return id, nil
}

func (s *evidenceStore) Get(ctx context.Context, id int64) (*EvidenceRecord, error) {
	rec := &EvidenceRecord{}
	err := s.db.QueryRowContext(ctx, `SELECT `+evidenceColumns+` FROM evidencias_incidentes WHERE id=?`, id).
		Scan(&rec.ID, &rec.IncidentID, &rec.Section, &rec.Number, &rec.FileName, &rec.FilePath,
			&rec.Description, &rec.HashSHA256, &rec.SizeKB, &rec.MimeType, &rec.UploadedBy, &rec.UploadedAt, &rec.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *evidenceStore) ListByIncident(ctx context.Context, incidentID int64) ([]EvidenceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+evidenceColumns+` FROM evidencias_incidentes WHERE incidente_id=? ORDER BY seccion, id`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EvidenceRecord
	for rows.Next() {
		var rec EvidenceRecord
		if err := rows.Scan(&rec.ID, &rec.IncidentID, &rec.Section, &rec.Number, &rec.FileName, &rec.FilePath,
			&rec.Description, &rec.HashSHA256, &rec.SizeKB, &rec.MimeType, &rec.UploadedBy, &rec.UploadedAt, &rec.Status); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *evidenceStore) UpdateNumber(ctx context.Context, id int64, number string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE evidencias_incidentes SET numero_evidencia=? WHERE id=?`, number, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRemoved flips the row to eliminado. The row and its disk file stay in
// place so diagnostics can still reconcile past uploads.
func (s *evidenceStore) MarkRemoved(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE evidencias_incidentes SET estado='eliminado' WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *evidenceStore) DeleteByIncident(ctx context.Context, incidentID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM evidencias_incidentes WHERE incidente_id=?`, incidentID)
	return err
}
