package diagnostics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agente-digital/config"
	"agente-digital/core/evidence"
	"agente-digital/core/incident"
	"agente-digital/core/incidents"
	"agente-digital/core/seed"
	"agente-digital/core/store"
	"agente-digital/core/utils"
)

type env struct {
	svc       *Service
	incidents *incidents.Service
	seeds     *seed.Manager
	cfg       *config.AppConfig
}

func setupEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.AppConfig{
		DBDriver:   "sqlite",
		DBPath:     filepath.Join(dir, "test.db"),
		Seeds:      config.SeedsConfig{Dir: filepath.Join(dir, "semillas")},
		Uploads:    config.UploadsConfig{Dir: filepath.Join(dir, "uploads")},
		ANCI:       config.ANCIConfig{ReportsDir: filepath.Join(dir, "informes")},
		Incidentes: config.IncidentesConfig{Modulo: 1, Submodulo: 1},
	}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := store.ApplyMigrations(ctx, db, cfg, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	tenants := store.NewTenantsStore(db)
	if _, err := tenants.Create(ctx, &store.Tenant{RUT: "76.111.222-3", LegalName: "Holding Uno"}); err != nil {
		t.Fatalf("tenant: %v", err)
	}
	companies := store.NewCompaniesStore(db)
	if _, err := companies.Create(ctx, &store.Company{
		TenantID: 1, RUT: "12.345.678-9", LegalName: "Empresa Esencial SpA",
		EntityType: "OIV", EssentialSector: "Energía",
	}); err != nil {
		t.Fatalf("company: %v", err)
	}

	incidentsStore := store.NewIncidentsStore(db)
	evidences := store.NewEvidenceStore(db)
	taxonomy := store.NewTaxonomyStore(db)
	seeds := seed.NewManager(cfg.Seeds.Dir, logger)
	files := evidence.NewManager(cfg.Uploads, logger)
	incSvc := incidents.NewService(cfg, incidentsStore, companies, evidences, taxonomy,
		store.NewAuditStore(db), seeds, files, logger)
	svc := NewService(cfg, incidentsStore, evidences, taxonomy, seeds, files, logger)
	return &env{svc: svc, incidents: incSvc, seeds: seeds, cfg: cfg}
}

// healthyIncident creates an incident and saves it with the fields the
// structural validator requires, so every check starts green.
func healthyIncident(t *testing.T, e *env) *store.Incident {
	t.Helper()
	ctx := context.Background()
	row, _, err := e.incidents.Create(ctx, incidents.CreateInput{
		TenantID: 1, CompanyID: 1, Title: "Falla red corporativa",
		Criticality: "alta", IncidentDate: "2025-03-10", CreatedBy: "operador1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	doc, _, err := e.incidents.LoadForEdit(ctx, row.ID, "operador1")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	doc.Reporter.Name = "Ana Soto"
	doc.Reporter.Email = "ana@empresa.cl"
	row, err = e.incidents.Save(ctx, row.ID, doc, row.Version, "operador1")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	return row
}

func checkByName(t *testing.T, rep *Report, name string) Check {
	t.Helper()
	for _, c := range rep.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q missing in %+v", name, rep.Checks)
	return Check{}
}

func TestDiagnoseHealthyIncident(t *testing.T) {
	e := setupEnv(t)
	row := healthyIncident(t, e)

	rep, err := e.svc.Diagnose(context.Background(), row.ID)
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	if !rep.Healthy {
		t.Fatalf("not healthy: %+v", rep.Checks)
	}
	if rep.UniqueIndex != row.UniqueIndex {
		t.Fatalf("index = %q", rep.UniqueIndex)
	}
}

func TestDiagnoseMissingRow(t *testing.T) {
	e := setupEnv(t)
	rep, err := e.svc.Diagnose(context.Background(), 999)
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	if rep.Healthy {
		t.Fatal("missing incident reported healthy")
	}
	if c := checkByName(t, rep, "fila_bd"); c.OK {
		t.Fatal("fila_bd check passed")
	}
}

func TestDiagnoseDetectsMissingOriginalSeed(t *testing.T) {
	e := setupEnv(t)
	row := healthyIncident(t, e)
	if err := os.Remove(e.seeds.Path(row.UniqueIndex, seed.KindOriginal)); err != nil {
		t.Fatalf("remove seed: %v", err)
	}

	rep, err := e.svc.Diagnose(context.Background(), row.ID)
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	if rep.Healthy {
		t.Fatal("missing seed not detected")
	}
	c := checkByName(t, rep, "semillas")
	if c.OK || len(c.Details) == 0 {
		t.Fatalf("semillas check = %+v", c)
	}
}

func TestDiagnoseDetectsTamperedEvidence(t *testing.T) {
	e := setupEnv(t)
	row := healthyIncident(t, e)
	ctx := context.Background()

	if _, err := e.incidents.AddEvidence(ctx, row.ID, incidents.UploadInput{
		Section:     "2",
		FileName:    "captura.pdf",
		Description: "Captura de pantalla",
		Content:     strings.NewReader("%PDF-1.4 contenido original"),
		UploadedBy:  "operador1",
	}); err != nil {
		t.Fatalf("add evidence: %v", err)
	}
	rows, err := e.svc.evidences.ListByIncident(ctx, row.ID)
	if err != nil || len(rows) != 1 {
		t.Fatalf("evidence rows: %v %d", err, len(rows))
	}
	if err := os.WriteFile(rows[0].FilePath, []byte("contenido alterado"), 0o644); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	rep, err := e.svc.Diagnose(ctx, row.ID)
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	c := checkByName(t, rep, "archivos_evidencia")
	if c.OK {
		t.Fatal("tampered evidence not detected")
	}
	if err := os.Remove(rows[0].FilePath); err != nil {
		t.Fatalf("remove: %v", err)
	}
	rep, err = e.svc.Diagnose(ctx, row.ID)
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	c = checkByName(t, rep, "archivos_evidencia")
	if c.OK || len(c.Details) == 0 {
		t.Fatalf("missing file not detected: %+v", c)
	}
}

func TestDiagnoseAllFlagsOrphanSeeds(t *testing.T) {
	e := setupEnv(t)
	healthyIncident(t, e)

	orphan := incident.New(time.Now().UTC(), "nadie")
	orphan.Metadata.UniqueIndex = "9_99999999_1_1_HUERFANO"
	if err := e.seeds.Write(orphan.Metadata.UniqueIndex, seed.KindOriginal, orphan); err != nil {
		t.Fatalf("write orphan: %v", err)
	}

	reps, err := e.svc.DiagnoseAll(context.Background())
	if err != nil {
		t.Fatalf("diagnose all: %v", err)
	}
	if len(reps) != 2 {
		t.Fatalf("reports = %d", len(reps))
	}
	var found bool
	for _, rep := range reps {
		if rep.UniqueIndex == orphan.Metadata.UniqueIndex {
			found = true
			if rep.Healthy {
				t.Fatal("orphan reported healthy")
			}
			checkByName(t, &rep, "semilla_huerfana")
		}
	}
	if !found {
		t.Fatal("orphan seed not reported")
	}
}

func TestRepairRecreatesDirectories(t *testing.T) {
	e := setupEnv(t)
	healthyIncident(t, e)
	ctx := context.Background()

	if err := os.RemoveAll(e.cfg.Uploads.Dir); err != nil {
		t.Fatalf("remove uploads: %v", err)
	}
	actions, err := e.svc.Repair(ctx)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if len(actions) == 0 {
		t.Fatal("no repair action recorded")
	}
	if _, err := os.Stat(e.cfg.Uploads.Dir); err != nil {
		t.Fatalf("uploads dir not recreated: %v", err)
	}

	again, err := e.svc.Repair(ctx)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second repair acted: %v", again)
	}
}

func TestRepairDropsOrphanTaxonomyLinks(t *testing.T) {
	e := setupEnv(t)
	row := healthyIncident(t, e)
	ctx := context.Background()

	// Link to a catalog entry that was never created.
	if err := e.svc.taxonomy.ReplaceLinks(ctx, row.ID, []store.TaxonomyLink{{
		IncidentID: row.ID, TaxonomyID: 12345, UID: "huerfano-1",
		Order: 1, AssignedAt: time.Now().UTC(), AssignedBy: "operador1",
	}}); err != nil {
		t.Fatalf("replace links: %v", err)
	}
	rep, err := e.svc.Diagnose(ctx, row.ID)
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	if c := checkByName(t, rep, "enlaces_taxonomia"); c.OK {
		t.Fatal("orphan link not reported")
	}

	actions, err := e.svc.Repair(ctx)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if len(actions) == 0 {
		t.Fatalf("no cleanup action: %v", actions)
	}
	links, err := e.svc.taxonomy.ListLinks(ctx, row.ID)
	if err != nil {
		t.Fatalf("list links: %v", err)
	}
	if len(links) != 0 {
		t.Fatalf("orphan link survived: %v", links)
	}
}
