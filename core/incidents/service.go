// Package incidents implements the incident lifecycle: creation with a
// generated unique index, edit sessions backed by seed snapshots, validated
// saves with optimistic concurrency, and the destroy cascade.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"agente-digital/config"
	"agente-digital/core/evidence"
	"agente-digital/core/incident"
	"agente-digital/core/seed"
	"agente-digital/core/store"
	"agente-digital/core/utils"
)

var (
	ErrIncidentNotFound = errors.New("incidentes: incidente no encontrado")
	ErrCompanyNotFound  = errors.New("incidentes: empresa no encontrada")
	ErrVersionConflict  = errors.New("incidentes: version desactualizada")
	ErrTaxonomyNotFound = errors.New("incidentes: seleccion de taxonomia no encontrada")
)

// ValidationError carries the validator findings that blocked a save. The
// document is left untouched when this is returned.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "incidentes: documento invalido: " + strings.Join(e.Issues, "; ")
}

type Service struct {
	cfg       *config.AppConfig
	incidents store.IncidentsStore
	companies store.CompaniesStore
	evidences store.EvidenceStore
	taxonomy  store.TaxonomyStore
	audit     store.AuditStore
	seeds     *seed.Manager
	files     *evidence.Manager
	logger    *utils.Logger
}

func NewService(cfg *config.AppConfig, incidents store.IncidentsStore, companies store.CompaniesStore,
	evidences store.EvidenceStore, taxonomy store.TaxonomyStore, audit store.AuditStore,
	seeds *seed.Manager, files *evidence.Manager, logger *utils.Logger) *Service {
	return &Service{
		cfg:       cfg,
		incidents: incidents,
		companies: companies,
		evidences: evidences,
		taxonomy:  taxonomy,
		audit:     audit,
		seeds:     seeds,
		files:     files,
		logger:    logger,
	}
}

type CreateInput struct {
	TenantID      int64
	CompanyID     int64
	Title         string
	Description   string
	Criticality   string
	IncidentDate  string
	DetectionDate string
	Values        map[string]map[string]any
	Taxonomies    []incident.TaxonomyInput
	CreatedBy     string
}

// Create builds a fresh incident: generates the unique index from the next
// correlative and the company RUT, writes the original seed snapshot and
// inserts the database row.
func (s *Service) Create(ctx context.Context, in CreateInput) (*store.Incident, *incident.Document, error) {
	company, err := s.companies.Get(ctx, in.CompanyID)
	if err != nil {
		return nil, nil, err
	}
	if company == nil || company.TenantID != in.TenantID {
		return nil, nil, ErrCompanyNotFound
	}

	correlativo, err := s.incidents.NextCorrelative(ctx)
	if err != nil {
		return nil, nil, err
	}
	idx := incident.BuildUniqueIndex(correlativo,
		incident.StripRUTCheckDigit(company.RUT),
		s.cfg.Incidentes.Modulo, s.cfg.Incidentes.Submodulo, in.Title)

	now := time.Now().UTC()
	doc := incident.New(now, in.CreatedBy)
	doc.Metadata.UniqueIndex = idx.String()
	doc.Metadata.IncidentID = correlativo
	doc.Metadata.CompanyID = company.ID
	doc.Metadata.TenantID = in.TenantID
	doc.Metadata.State = incident.StateOriginalSeed
	doc.Reporter.Company = incident.CompanyInfo{
		LegalName:       company.LegalName,
		RUT:             company.RUT,
		EntityType:      company.EntityType,
		EssentialSector: company.EssentialSector,
	}
	doc.Classification.Title = in.Title
	doc.Classification.Description = in.Description
	doc.Classification.Criticality = in.Criticality
	doc.Classification.IncidentDate = in.IncidentDate
	if in.Values != nil {
		doc.ApplyValues(in.Values)
	}
	for _, tax := range in.Taxonomies {
		doc.AddTaxonomy(tax, now)
	}

	exp, err := incident.ExportForSave(doc, now)
	if err != nil {
		return nil, nil, err
	}
	raw, err := incident.Clone(exp)
	if err != nil {
		return nil, nil, err
	}
	blob, err := docJSON(exp)
	if err != nil {
		return nil, nil, err
	}

	row := &store.Incident{
		UniqueIndex:     exp.Metadata.UniqueIndex,
		TenantID:        in.TenantID,
		CompanyID:       company.ID,
		Title:           exp.Classification.Title,
		Description:     exp.Classification.Description,
		Criticality:     exp.Classification.Criticality,
		Status:          incident.StateOriginalSeed,
		IncidentDate:    exp.Classification.IncidentDate,
		DetectionDate:   in.DetectionDate,
		GeographicScope: exp.Classification.GeographicScope,
		AffectedSystems: exp.Classification.AffectedSystems,
		DocumentJSON:    blob,
		IntegrityHash:   exp.Metadata.IntegrityHash,
		Version:         1,
		CreatedBy:       in.CreatedBy,
		UpdatedBy:       in.CreatedBy,
	}
	id, err := s.incidents.Create(ctx, row)
	if err != nil {
		return nil, nil, err
	}
	if id != correlativo {
		// Gaps at the tail of the id sequence make the prediction drift.
		// The indice stays as generated; only the metadata id is fixed up.
		s.logger.Warnf("correlativo previsto %d difiere del id %d para %s", correlativo, id, row.UniqueIndex)
		raw.Metadata.IncidentID = id
	}

	if err := s.seeds.Write(row.UniqueIndex, seed.KindOriginal, raw); err != nil {
		return nil, nil, fmt.Errorf("incidentes: escribiendo semilla original: %w", err)
	}
	_ = s.audit.Append(ctx, in.CreatedBy, "incidente_creado", row.UniqueIndex)
	s.logger.Printf("incidente %s creado (id %d)", row.UniqueIndex, id)
	return row, raw, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*store.Incident, error) {
	row, err := s.incidents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrIncidentNotFound
	}
	return row, nil
}

func (s *Service) List(ctx context.Context, f store.IncidentFilter) ([]store.Incident, error) {
	return s.incidents.List(ctx, f)
}

// LoadForEdit opens an edit session: the document is resolved through the
// seed fallback chain (editing, base, original), falling back to the
// database blob when no seed survives on disk. Evidence rows are reconciled
// into the document, the file summary recounted, and the editing snapshot
// written.
func (s *Service) LoadForEdit(ctx context.Context, id int64, user string) (*incident.Document, string, error) {
	row, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	now := time.Now().UTC()

	doc, source, err := s.seeds.Load(row.UniqueIndex)
	if errors.Is(err, seed.ErrSeedNotFound) {
		if strings.TrimSpace(row.DocumentJSON) == "" {
			return nil, "", fmt.Errorf("incidentes: %s sin semilla ni respaldo en BD", row.UniqueIndex)
		}
		doc, err = incident.ImportFromDB([]byte(row.DocumentJSON))
		if err != nil {
			return nil, "", err
		}
		source = "database"
		s.logger.Warnf("incidente %s reconstruido desde BD", row.UniqueIndex)
	} else if err != nil {
		return nil, "", err
	}

	rows, err := s.evidences.ListByIncident(ctx, id)
	if err != nil {
		return nil, "", err
	}
	s.reconcileEvidence(doc, rows)

	doc.Metadata.IncidentID = row.ID
	doc.Metadata.UniqueIndex = row.UniqueIndex
	doc.Metadata.Version = row.Version
	doc.Metadata.State = incident.StateEditing
	doc.Touch(now, user)
	doc.RefreshFileSummary(now)

	if err := s.seeds.Write(row.UniqueIndex, seed.KindEditing, doc); err != nil {
		return nil, "", err
	}
	return doc, source, nil
}

// reconcileEvidence folds active database rows that the document does not
// know about back into it. Rows keep their recorded number; the section
// counter is raised so later uploads never collide with a restored number.
func (s *Service) reconcileEvidence(doc *incident.Document, rows []store.EvidenceRecord) {
	known := map[string]bool{}
	collect := func(list incident.EvidenceList) {
		for _, it := range list.Items {
			known[it.Number] = true
		}
	}
	collect(doc.Classification.Evidence)
	collect(doc.Impact.Evidence)
	collect(doc.Response.Evidence)
	collect(doc.RootCause.Evidence)
	for _, t := range doc.Taxonomies.Set.Selected {
		collect(t.Evidence)
	}

	for _, r := range rows {
		if r.Status != incident.StatusActive || r.Number == "" || known[r.Number] {
			continue
		}
		item := incident.EvidenceItem{
			Number:      r.Number,
			FilePath:    r.FilePath,
			FileName:    r.FileName,
			Description: r.Description,
			HashSHA256:  r.HashSHA256,
			SizeKB:      r.SizeKB,
			UploadedAt:  incident.Timestamp(r.UploadedAt),
			UploadedBy:  r.UploadedBy,
			Status:      incident.StatusActive,
		}
		if !doc.RestoreEvidence(r.Section, item) {
			s.logger.Warnf("evidencia %s (seccion %s) sin destino en el documento", r.Number, r.Section)
		}
	}
}

// Save validates and persists an edited document: base seed rewritten,
// database row updated under the optimistic version check, taxonomy links
// replaced, and the editing snapshot discarded.
func (s *Service) Save(ctx context.Context, id int64, doc *incident.Document, expectedVersion int, user string) (*store.Incident, error) {
	row, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if expectedVersion > 0 && expectedVersion != row.Version {
		return nil, ErrVersionConflict
	}

	if issues := incident.ValidateStructure(doc); len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	for _, warn := range incident.ValidateTaxonomyIntegrity(doc) {
		s.logger.Warnf("incidente %s: %s", row.UniqueIndex, warn)
	}
	for _, warn := range incident.ValidateSectionEvidence(doc) {
		s.logger.Warnf("incidente %s: %s", row.UniqueIndex, warn)
	}

	now := time.Now().UTC()
	doc.Metadata.IncidentID = row.ID
	doc.Metadata.UniqueIndex = row.UniqueIndex
	doc.Metadata.State = incident.StateBaseSeed
	doc.Metadata.Version = row.Version + 1
	doc.Touch(now, user)
	doc.RefreshFileSummary(now)

	exp, err := incident.ExportForSave(doc, now)
	if err != nil {
		return nil, err
	}

	blob, err := docJSON(exp)
	if err != nil {
		return nil, err
	}
	row.Title = exp.Classification.Title
	row.Description = exp.Classification.Description
	row.Criticality = exp.Classification.Criticality
	row.Status = incident.StateBaseSeed
	row.IncidentDate = exp.Classification.IncidentDate
	row.GeographicScope = exp.Classification.GeographicScope
	row.AffectedSystems = exp.Classification.AffectedSystems
	row.DocumentJSON = blob
	row.IntegrityHash = exp.Metadata.IntegrityHash
	row.UpdatedBy = user

	if err := s.incidents.Update(ctx, row, row.Version); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrVersionConflict
		}
		return nil, err
	}

	if err := s.taxonomy.ReplaceLinks(ctx, row.ID, linksFromDocument(row.ID, exp, user)); err != nil {
		return nil, err
	}
	if err := s.seeds.Write(row.UniqueIndex, seed.KindBase, exp); err != nil {
		return nil, err
	}
	if err := s.seeds.DeleteEditing(row.UniqueIndex); err != nil {
		s.logger.Warnf("no se pudo borrar semilla de edicion de %s: %v", row.UniqueIndex, err)
	}
	_ = s.audit.Append(ctx, user, "incidente_guardado", row.UniqueIndex)
	return row, nil
}

func linksFromDocument(incidentID int64, doc *incident.Document, user string) []store.TaxonomyLink {
	var out []store.TaxonomyLink
	for _, t := range doc.ActiveTaxonomies() {
		assigned, err := time.Parse(time.RFC3339, t.AssignedAt)
		if err != nil {
			assigned = time.Now().UTC()
		}
		out = append(out, store.TaxonomyLink{
			IncidentID:    incidentID,
			TaxonomyID:    t.TaxonomyID,
			UID:           t.UID,
			Order:         t.Order,
			Justification: t.Justification,
			Notes:         t.Notes,
			AssignedAt:    assigned,
			AssignedBy:    user,
		})
	}
	return out
}

// UpdateValues merges a sparse field payload into the current document and
// saves. Unknown fields are dropped by the section appliers.
func (s *Service) UpdateValues(ctx context.Context, id int64, values map[string]map[string]any, expectedVersion int, user string) (*store.Incident, error) {
	doc, _, err := s.LoadForEdit(ctx, id, user)
	if err != nil {
		return nil, err
	}
	doc.ApplyValues(values)
	return s.Save(ctx, id, doc, expectedVersion, user)
}

// AddTaxonomy selects a catalog taxonomy on the document. Like an evidence
// upload this is an edit-session mutation: it lands in the editing seed
// without the full-save validation gate, so a draft can be classified before
// the reporter fields are filled in. The link row follows on the next save.
func (s *Service) AddTaxonomy(ctx context.Context, id int64, in incident.TaxonomyInput, user string) (*incident.SelectedTaxonomy, error) {
	row, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, _, err := s.LoadForEdit(ctx, id, user)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	slot := doc.AddTaxonomy(in, now)
	if err := s.seeds.Write(row.UniqueIndex, seed.KindEditing, doc); err != nil {
		return nil, err
	}
	_ = s.audit.Append(ctx, user, "taxonomia_agregada", fmt.Sprintf("%s orden %d", row.UniqueIndex, slot.Order))
	return slot, nil
}

// RemoveTaxonomy soft-deletes the selection and its evidence in the editing
// seed. The assigned order is never reused.
func (s *Service) RemoveTaxonomy(ctx context.Context, id int64, uid, user string) error {
	row, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	doc, _, err := s.LoadForEdit(ctx, id, user)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if !doc.RemoveTaxonomy(uid, now) {
		return ErrTaxonomyNotFound
	}
	if err := s.seeds.Write(row.UniqueIndex, seed.KindEditing, doc); err != nil {
		return err
	}
	_ = s.audit.Append(ctx, user, "taxonomia_eliminada", fmt.Sprintf("%s %s", row.UniqueIndex, uid))
	return nil
}

type UploadInput struct {
	Section     string // "2", "3", "5", "6" or empty for taxonomy evidence
	TaxonomyUID string
	FileName    string
	Description string
	Content     io.Reader
	UploadedBy  string
}

// AddEvidence stores the upload on disk, numbers it inside the document and
// records the matching database row. The editing seed captures the change.
func (s *Service) AddEvidence(ctx context.Context, id int64, in UploadInput) (string, error) {
	row, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	doc, _, err := s.LoadForEdit(ctx, id, in.UploadedBy)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()

	stored, err := s.files.Save(row.TenantID, row.CompanyID, "evidencias", in.FileName, in.Content, now)
	if err != nil {
		return "", err
	}
	item := incident.EvidenceItem{
		FilePath:    stored.Path,
		FileName:    stored.FileName,
		Description: in.Description,
		HashSHA256:  stored.HashSHA256,
		SizeKB:      stored.SizeKB,
		UploadedBy:  in.UploadedBy,
	}

	var number string
	section := in.Section
	if in.TaxonomyUID != "" {
		number, err = doc.AddTaxonomyEvidence(in.TaxonomyUID, item, now)
		section = "4"
	} else {
		number, err = doc.AddSectionEvidence(in.Section, item, now)
	}
	if err != nil {
		s.files.Remove(stored.Path)
		return "", err
	}

	if _, err := s.evidences.Create(ctx, &store.EvidenceRecord{
		IncidentID:  id,
		Section:     section,
		Number:      number,
		FileName:    stored.FileName,
		FilePath:    stored.Path,
		Description: in.Description,
		HashSHA256:  stored.HashSHA256,
		SizeKB:      stored.SizeKB,
		UploadedBy:  in.UploadedBy,
		UploadedAt:  now,
	}); err != nil {
		return "", err
	}

	doc.RefreshFileSummary(now)
	if err := s.seeds.Write(row.UniqueIndex, seed.KindEditing, doc); err != nil {
		return "", err
	}
	_ = s.audit.Append(ctx, in.UploadedBy, "evidencia_agregada", fmt.Sprintf("%s %s", row.UniqueIndex, number))
	return number, nil
}

// RemoveEvidence marks the numbered item removed in the document and its
// row. The file stays on disk and the number is never reassigned.
func (s *Service) RemoveEvidence(ctx context.Context, id int64, section, number, user string) error {
	row, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	doc, _, err := s.LoadForEdit(ctx, id, user)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if !doc.RemoveSectionEvidence(section, number, now) {
		return fmt.Errorf("incidentes: evidencia %s no encontrada en seccion %s", number, section)
	}

	rows, err := s.evidences.ListByIncident(ctx, id)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if r.Number == number && r.Status == incident.StatusActive {
			if err := s.evidences.MarkRemoved(ctx, r.ID); err != nil {
				return err
			}
			break
		}
	}

	doc.RefreshFileSummary(now)
	if err := s.seeds.Write(row.UniqueIndex, seed.KindEditing, doc); err != nil {
		return err
	}
	_ = s.audit.Append(ctx, user, "evidencia_eliminada", fmt.Sprintf("%s %s", row.UniqueIndex, number))
	return nil
}

// Renumber is the one operation that rewrites evidence numbers: active
// items are renumbered by position, then the database rows are realigned by
// file path, and the result saved.
func (s *Service) Renumber(ctx context.Context, id int64, expectedVersion int, user string) (*incident.Document, error) {
	doc, _, err := s.LoadForEdit(ctx, id, user)
	if err != nil {
		return nil, err
	}
	doc.RenumberEvidence()

	byPath := map[string]string{}
	walk := func(list incident.EvidenceList) {
		for _, it := range list.Items {
			if it.Status == incident.StatusActive && it.FilePath != "" {
				byPath[it.FilePath] = it.Number
			}
		}
	}
	walk(doc.Classification.Evidence)
	walk(doc.Impact.Evidence)
	walk(doc.Response.Evidence)
	walk(doc.RootCause.Evidence)
	for _, t := range doc.Taxonomies.Set.Selected {
		walk(t.Evidence)
	}

	rows, err := s.evidences.ListByIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r.Status != incident.StatusActive {
			continue
		}
		if n, ok := byPath[r.FilePath]; ok && n != r.Number {
			if err := s.evidences.UpdateNumber(ctx, r.ID, n); err != nil {
				return nil, err
			}
		}
	}

	if _, err := s.Save(ctx, id, doc, expectedVersion, user); err != nil {
		return nil, err
	}
	return doc, nil
}

// Destroy removes the incident and everything tied to it: evidence files on
// disk, the database cascade and every seed snapshot.
func (s *Service) Destroy(ctx context.Context, id int64, user string) error {
	row, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	rows, err := s.evidences.ListByIncident(ctx, id)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := s.files.Remove(r.FilePath); err != nil {
			s.logger.Warnf("no se pudo borrar %s: %v", r.FilePath, err)
		}
	}
	if err := s.incidents.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.seeds.DeleteAll(row.UniqueIndex); err != nil {
		s.logger.Warnf("semillas de %s no eliminadas del todo: %v", row.UniqueIndex, err)
	}
	_ = s.audit.Append(ctx, user, "incidente_eliminado", row.UniqueIndex)
	s.logger.Printf("incidente %s eliminado", row.UniqueIndex)
	return nil
}
