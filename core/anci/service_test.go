package anci

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"agente-digital/config"
	"agente-digital/core/incident"
	"agente-digital/core/seed"
	"agente-digital/core/store"
	"agente-digital/core/utils"
)

type env struct {
	svc       *Service
	incidents store.IncidentsStore
	reports   store.ANCIStore
	audit     store.AuditStore
	seeds     *seed.Manager
	cfg       *config.AppConfig
}

func setupEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBPath:   filepath.Join(dir, "test.db"),
		Seeds:    config.SeedsConfig{Dir: filepath.Join(dir, "semillas")},
		ANCI: config.ANCIConfig{
			ReportsDir:          filepath.Join(dir, "informes"),
			AlertaTempranaHours: 3,
			PreliminarHours:     72,
			FinalDays:           30,
		},
	}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, cfg, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	incidents := store.NewIncidentsStore(db)
	reports := store.NewANCIStore(db)
	audit := store.NewAuditStore(db)
	seeds := seed.NewManager(cfg.Seeds.Dir, logger)
	return &env{
		svc:       NewService(cfg, incidents, reports, audit, seeds, logger),
		incidents: incidents,
		reports:   reports,
		audit:     audit,
		seeds:     seeds,
		cfg:       cfg,
	}
}

func completeDoc(t *testing.T, idx string) *incident.Document {
	t.Helper()
	now := time.Now().UTC()
	doc := incident.New(now, "u")
	doc.Metadata.UniqueIndex = idx
	doc.Reporter.Name = "Ana Soto"
	doc.Reporter.Email = "ana@empresa.cl"
	doc.Reporter.Company = incident.CompanyInfo{LegalName: "Empresa SpA", EntityType: "OIV", EssentialSector: "Energía"}
	doc.Reporter.Emergency = incident.EmergencyContact{Name: "Juan Pérez", Phone247: "+56911112222", SecurityEmail: "soc@empresa.cl"}
	doc.Classification.Title = "Ransomware en planta"
	doc.Classification.Description = "Cifrado de servidores de control"
	doc.Classification.IncidentDate = "2025-03-10"
	doc.Classification.Criticality = "alta"
	doc.Classification.AffectedSystems = []string{"SCADA"}
	doc.Classification.GeographicScope = "Regional"
	doc.Classification.CurrentStateNotes = "Contenido parcialmente"
	doc.Response.Containment = "Aislamiento de la red OT"
	doc.RootCause.PreliminaryAnalysis = "Acceso por VPN comprometida"
	doc.Technical.AttackVector = "Credenciales robadas"
	doc.AddTaxonomy(incident.TaxonomyInput{TaxonomyID: 1, Name: "Ransomware"}, now)
	return doc
}

func seedRow(t *testing.T, e *env, doc *incident.Document) *store.Incident {
	t.Helper()
	exp, err := incident.ExportForSave(doc, time.Now().UTC())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	raw, _ := json.Marshal(exp)
	row := &store.Incident{
		UniqueIndex:  doc.Metadata.UniqueIndex,
		TenantID:     1,
		CompanyID:    1,
		Title:        doc.Classification.Title,
		Criticality:  "alta",
		DocumentJSON: string(raw),
	}
	if _, err := e.incidents.Create(context.Background(), row); err != nil {
		t.Fatalf("create row: %v", err)
	}
	if err := e.seeds.Write(row.UniqueIndex, seed.KindBase, exp); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return row
}

func TestDeadlineFor(t *testing.T) {
	e := setupEnv(t)
	detected := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := map[string]time.Time{
		incident.ReportEarlyAlert:  detected.Add(3 * time.Hour),
		incident.ReportPreliminary: detected.Add(72 * time.Hour),
		incident.ReportFull:        detected.Add(72 * time.Hour),
		incident.ReportFinal:       detected.AddDate(0, 0, 30),
	}
	for kind, want := range cases {
		got, err := e.svc.DeadlineFor(kind, detected)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if !got.Equal(want) {
			t.Fatalf("%s deadline = %v, want %v", kind, got, want)
		}
	}
	if _, err := e.svc.DeadlineFor("otro", detected); err != ErrUnknownKind {
		t.Fatalf("unknown kind: %v", err)
	}
}

func TestScheduleAllIsIdempotent(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	row := seedRow(t, e, completeDoc(t, "1_12345678_1_1_PRUEBA"))
	detected := time.Now().UTC()

	created, err := e.svc.ScheduleAll(ctx, row.ID, detected, "u")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(created) != len(ReportKinds) {
		t.Fatalf("created = %d, want %d", len(created), len(ReportKinds))
	}

	again, err := e.svc.ScheduleAll(ctx, row.ID, detected, "u")
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("duplicate reports created: %v", again)
	}
	all, _ := e.svc.ListByIncident(ctx, row.ID)
	if len(all) != len(ReportKinds) {
		t.Fatalf("total = %d", len(all))
	}
}

func TestGenerateBlocksOnMissingFields(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	doc := completeDoc(t, "1_12345678_1_1_PRUEBA")
	doc.Response.Containment = ""
	row := seedRow(t, e, doc)
	reps, _ := e.svc.ScheduleAll(ctx, row.ID, time.Now().UTC(), "u")

	rep, issues, err := e.svc.Generate(ctx, reps[0].ID, "u")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(issues) == 0 {
		t.Fatal("missing containment not reported")
	}
	if rep.FilePath != "" {
		t.Fatal("no artifact should be attached")
	}
}

func TestGenerateWritesArtifacts(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	row := seedRow(t, e, completeDoc(t, "1_12345678_1_1_PRUEBA"))
	reps, _ := e.svc.ScheduleAll(ctx, row.ID, time.Now().UTC(), "u")

	var finalRep *store.ANCIReport
	for i := range reps {
		if reps[i].Kind == incident.ReportFinal {
			finalRep = &reps[i]
		}
	}
	// The final report also requires corrective actions.
	doc, _, err := e.seeds.Load(row.UniqueIndex)
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	doc.Lessons.CorrectiveActions = "Rotación de credenciales"
	if err := e.seeds.Write(row.UniqueIndex, seed.KindBase, doc); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	rep, issues, err := e.svc.Generate(ctx, finalRep.ID, "u")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if rep.Status != "generado" || rep.FilePath == "" {
		t.Fatalf("rep = %+v", rep)
	}

	// DOCX is a well-formed zip with the body part.
	zr, err := zip.OpenReader(rep.FilePath)
	if err != nil {
		t.Fatalf("docx: %v", err)
	}
	defer zr.Close()
	found := false
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			found = true
		}
	}
	if !found {
		t.Fatal("word/document.xml missing")
	}

	pdfPath := rep.FilePath[:len(rep.FilePath)-len(".docx")] + ".pdf"
	head := make([]byte, 5)
	f, err := os.Open(pdfPath)
	if err != nil {
		t.Fatalf("pdf: %v", err)
	}
	defer f.Close()
	f.Read(head)
	if string(head) != "%PDF-" {
		t.Fatalf("pdf header = %q", head)
	}
}

func TestMarkSubmittedMirrorsTracking(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	row := seedRow(t, e, completeDoc(t, "1_12345678_1_1_PRUEBA"))
	reps, _ := e.svc.ScheduleAll(ctx, row.ID, time.Now().UTC(), "u")

	var early *store.ANCIReport
	for i := range reps {
		if reps[i].Kind == incident.ReportEarlyAlert {
			early = &reps[i]
		}
	}
	rep, err := e.svc.MarkSubmitted(ctx, early.ID, "u")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rep.Status != "enviado" || rep.SubmittedAt == nil {
		t.Fatalf("rep = %+v", rep)
	}

	doc, _, err := e.seeds.Load(row.UniqueIndex)
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if !doc.Technical.ReportTracking.EarlyAlertSent || doc.Technical.ReportTracking.EarlyAlertDate == "" {
		t.Fatalf("tracking = %+v", doc.Technical.ReportTracking)
	}
}

func TestDeadlineWatcherRunOnce(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	row := seedRow(t, e, completeDoc(t, "1_12345678_1_1_PRUEBA"))

	past := time.Now().UTC().Add(-2 * time.Hour)
	lateID, _ := e.reports.Create(ctx, &store.ANCIReport{IncidentID: row.ID, Kind: incident.ReportEarlyAlert, Deadline: &past})

	w := NewDeadlineWatcher(e.cfg.ANCI, e.reports, e.audit, utils.NewLogger())
	if err := w.RunOnce(ctx, time.Now().UTC()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	rep, _ := e.reports.Get(ctx, lateID)
	if rep.Status != "vencido" {
		t.Fatalf("status = %q", rep.Status)
	}
}
