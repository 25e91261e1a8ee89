// Package diagnostics cross-checks the three places an incident lives: the
// database row, the seed snapshots on disk and the evidence files. It mostly
// reports; repair recreates missing directories and drops taxonomy links
// whose catalog entry disappeared.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"time"

	"agente-digital/config"
	"agente-digital/core/evidence"
	"agente-digital/core/incident"
	"agente-digital/core/seed"
	"agente-digital/core/store"
	"agente-digital/core/utils"
)

type Check struct {
	Name    string   `json:"nombre"`
	OK      bool     `json:"ok"`
	Details []string `json:"detalles,omitempty"`
}

type Report struct {
	IncidentID  int64     `json:"incidente_id"`
	UniqueIndex string    `json:"indice_unico"`
	GeneratedAt time.Time `json:"generado_en"`
	Healthy     bool      `json:"saludable"`
	Checks      []Check   `json:"verificaciones"`
}

type Service struct {
	cfg       *config.AppConfig
	incidents store.IncidentsStore
	evidences store.EvidenceStore
	taxonomy  store.TaxonomyStore
	seeds     *seed.Manager
	files     *evidence.Manager
	logger    *utils.Logger
}

func NewService(cfg *config.AppConfig, incidents store.IncidentsStore, evidences store.EvidenceStore,
	taxonomy store.TaxonomyStore, seeds *seed.Manager, files *evidence.Manager, logger *utils.Logger) *Service {
	return &Service{cfg: cfg, incidents: incidents, evidences: evidences, taxonomy: taxonomy,
		seeds: seeds, files: files, logger: logger}
}

// Diagnose runs every check against one incident.
func (s *Service) Diagnose(ctx context.Context, incidentID int64) (*Report, error) {
	row, err := s.incidents.Get(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	rep := &Report{IncidentID: incidentID, GeneratedAt: time.Now().UTC()}
	if row == nil {
		rep.Checks = append(rep.Checks, Check{Name: "fila_bd", OK: false,
			Details: []string{fmt.Sprintf("incidente %d no existe en la base de datos", incidentID)}})
		return rep, nil
	}
	rep.UniqueIndex = row.UniqueIndex
	rep.Checks = append(rep.Checks, Check{Name: "fila_bd", OK: true})
	rep.Checks = append(rep.Checks, s.checkIndexFormat(row))
	rep.Checks = append(rep.Checks, s.checkSeeds(row))
	rep.Checks = append(rep.Checks, s.checkDocument(row))

	evRows, err := s.evidences.ListByIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	rep.Checks = append(rep.Checks, s.checkEvidenceFiles(evRows))
	rep.Checks = append(rep.Checks, s.checkTaxonomyLinks(ctx, row))

	rep.Healthy = true
	for _, c := range rep.Checks {
		if !c.OK {
			rep.Healthy = false
			break
		}
	}
	return rep, nil
}

func (s *Service) checkIndexFormat(row *store.Incident) Check {
	c := Check{Name: "formato_indice", OK: true}
	if _, err := incident.ParseUniqueIndex(row.UniqueIndex); err != nil {
		c.OK = false
		c.Details = append(c.Details, err.Error())
	}
	return c
}

func (s *Service) checkSeeds(row *store.Incident) Check {
	c := Check{Name: "semillas", OK: true}
	if !s.seeds.Exists(row.UniqueIndex, seed.KindOriginal) {
		c.OK = false
		c.Details = append(c.Details, "falta semilla original")
	}
	hasAny := false
	for _, kind := range seed.FallbackChain {
		if s.seeds.Exists(row.UniqueIndex, kind) {
			hasAny = true
			break
		}
	}
	if !hasAny && row.DocumentJSON == "" {
		c.OK = false
		c.Details = append(c.Details, "sin semilla en disco ni respaldo en BD")
	}
	return c
}

// checkDocument decodes the best available snapshot and replays the
// validators over it, including the stored-vs-recomputed hash comparison.
func (s *Service) checkDocument(row *store.Incident) Check {
	c := Check{Name: "documento", OK: true}
	doc, _, err := s.seeds.Load(row.UniqueIndex)
	if err != nil {
		if row.DocumentJSON == "" {
			c.OK = false
			c.Details = append(c.Details, "documento irrecuperable")
			return c
		}
		doc, err = incident.ImportFromDB([]byte(row.DocumentJSON))
		if err != nil {
			c.OK = false
			c.Details = append(c.Details, "respaldo en BD ilegible: "+err.Error())
			return c
		}
	}
	for _, issue := range incident.ValidateStructure(doc) {
		c.OK = false
		c.Details = append(c.Details, issue)
	}
	for _, issue := range incident.ValidateTaxonomyIntegrity(doc) {
		c.OK = false
		c.Details = append(c.Details, issue)
	}
	for _, issue := range incident.ValidateSectionEvidence(doc) {
		c.OK = false
		c.Details = append(c.Details, issue)
	}
	if doc.Metadata.IntegrityHash != "" {
		recomputed, err := incident.IntegrityHash(doc)
		if err == nil && recomputed != doc.Metadata.IntegrityHash {
			c.OK = false
			c.Details = append(c.Details, "hash de integridad no coincide con el contenido")
		}
	}
	return c
}

func (s *Service) checkEvidenceFiles(rows []store.EvidenceRecord) Check {
	c := Check{Name: "archivos_evidencia", OK: true}
	for _, r := range rows {
		if r.Status != incident.StatusActive {
			continue
		}
		if _, err := os.Stat(r.FilePath); err != nil {
			c.OK = false
			c.Details = append(c.Details, fmt.Sprintf("evidencia %s: archivo ausente (%s)", r.Number, r.FilePath))
			continue
		}
		if r.HashSHA256 != "" {
			ok, err := s.files.Verify(r.FilePath, r.HashSHA256)
			if err != nil {
				c.OK = false
				c.Details = append(c.Details, fmt.Sprintf("evidencia %s: %v", r.Number, err))
			} else if !ok {
				c.OK = false
				c.Details = append(c.Details, fmt.Sprintf("evidencia %s: hash no coincide", r.Number))
			}
		}
	}
	return c
}

func (s *Service) checkTaxonomyLinks(ctx context.Context, row *store.Incident) Check {
	c := Check{Name: "enlaces_taxonomia", OK: true}
	links, err := s.taxonomy.ListLinks(ctx, row.ID)
	if err != nil {
		c.OK = false
		c.Details = append(c.Details, err.Error())
		return c
	}
	seenOrder := map[int]bool{}
	for _, l := range links {
		entry, err := s.taxonomy.GetCatalogEntry(ctx, l.TaxonomyID)
		if err != nil {
			c.OK = false
			c.Details = append(c.Details, err.Error())
			continue
		}
		if entry == nil {
			c.OK = false
			c.Details = append(c.Details, fmt.Sprintf("enlace %s apunta a taxonomia inexistente %d", l.UID, l.TaxonomyID))
		}
		if seenOrder[l.Order] {
			c.OK = false
			c.Details = append(c.Details, fmt.Sprintf("numero_orden %d duplicado en enlaces", l.Order))
		}
		seenOrder[l.Order] = true
	}
	return c
}

// Repair recreates missing working directories and removes taxonomy links
// left behind by deleted catalog entries. Content problems stay in the
// report for a human to act on.
func (s *Service) Repair(ctx context.Context) ([]string, error) {
	var actions []string
	for _, dir := range []string{s.cfg.Seeds.Dir, s.cfg.Uploads.Dir, s.cfg.ANCI.ReportsDir} {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return actions, err
			}
			actions = append(actions, "creado directorio "+dir)
			s.logger.Printf("directorio %s creado", dir)
		}
	}
	removed, err := s.taxonomy.DeleteOrphanLinks(ctx)
	if err != nil {
		return actions, err
	}
	if removed > 0 {
		actions = append(actions, fmt.Sprintf("eliminados %d enlaces de taxonomia huerfanos", removed))
		s.logger.Printf("%d enlaces de taxonomia huerfanos eliminados", removed)
	}
	return actions, nil
}

// DiagnoseAll runs the per-incident checks over every row and also flags
// orphan seeds that no database row claims.
func (s *Service) DiagnoseAll(ctx context.Context) ([]Report, error) {
	rows, err := s.incidents.List(ctx, store.IncidentFilter{})
	if err != nil {
		return nil, err
	}
	known := map[string]bool{}
	var out []Report
	for _, row := range rows {
		known[row.UniqueIndex] = true
		rep, err := s.Diagnose(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *rep)
	}
	indexes, err := s.seeds.ListIndexes()
	if err != nil {
		return nil, err
	}
	for _, idx := range indexes {
		if known[idx] {
			continue
		}
		out = append(out, Report{
			UniqueIndex: idx,
			GeneratedAt: time.Now().UTC(),
			Healthy:     false,
			Checks: []Check{{Name: "semilla_huerfana", OK: false,
				Details: []string{"semilla en disco sin fila en la base de datos"}}},
		})
	}
	return out, nil
}
