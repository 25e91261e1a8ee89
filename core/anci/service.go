// Package anci generates the regulatory report artifacts an incident owes
// to the national cybersecurity agency and tracks their legal deadlines.
package anci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agente-digital/config"
	"agente-digital/core/incident"
	"agente-digital/core/seed"
	"agente-digital/core/store"
	"agente-digital/core/utils"
)

var ErrUnknownKind = errors.New("anci: tipo de reporte desconocido")

// ReportKinds in the order they become due.
var ReportKinds = []string{
	incident.ReportEarlyAlert,
	incident.ReportPreliminary,
	incident.ReportFull,
	incident.ReportFinal,
}

type Service struct {
	cfg       *config.AppConfig
	incidents store.IncidentsStore
	reports   store.ANCIStore
	audit     store.AuditStore
	seeds     *seed.Manager
	logger    *utils.Logger
}

func NewService(cfg *config.AppConfig, incidents store.IncidentsStore, reports store.ANCIStore,
	audit store.AuditStore, seeds *seed.Manager, logger *utils.Logger) *Service {
	return &Service{cfg: cfg, incidents: incidents, reports: reports, audit: audit, seeds: seeds, logger: logger}
}

// DeadlineFor computes the legal deadline of a report kind counted from the
// incident detection time. Hours and days come from configuration; the
// defaults match the statutory 3h, 72h and 30d windows.
func (s *Service) DeadlineFor(kind string, detectedAt time.Time) (time.Time, error) {
	detectedAt = detectedAt.UTC()
	switch kind {
	case incident.ReportEarlyAlert:
		return detectedAt.Add(time.Duration(s.cfg.ANCI.AlertaTempranaHours) * time.Hour), nil
	case incident.ReportPreliminary:
		return detectedAt.Add(time.Duration(s.cfg.ANCI.PreliminarHours) * time.Hour), nil
	case incident.ReportFull:
		return detectedAt.Add(time.Duration(s.cfg.ANCI.PreliminarHours) * time.Hour), nil
	case incident.ReportFinal:
		return detectedAt.AddDate(0, 0, s.cfg.ANCI.FinalDays), nil
	}
	return time.Time{}, ErrUnknownKind
}

// ScheduleAll registers the pending report set for an incident. Reports
// that already exist for a kind are left alone.
func (s *Service) ScheduleAll(ctx context.Context, incidentID int64, detectedAt time.Time, user string) ([]store.ANCIReport, error) {
	existing, err := s.reports.ListByIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	have := map[string]bool{}
	for _, r := range existing {
		have[r.Kind] = true
	}
	var out []store.ANCIReport
	for _, kind := range ReportKinds {
		if have[kind] {
			continue
		}
		deadline, err := s.DeadlineFor(kind, detectedAt)
		if err != nil {
			return nil, err
		}
		rep := store.ANCIReport{IncidentID: incidentID, Kind: kind, Deadline: &deadline, GeneratedBy: user}
		if _, err := s.reports.Create(ctx, &rep); err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, nil
}

// Generate validates the document for the report kind, renders both the
// DOCX and PDF artifacts and attaches the DOCX path to the report record.
// Validation findings block generation.
func (s *Service) Generate(ctx context.Context, reportID int64, user string) (*store.ANCIReport, []string, error) {
	rep, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return nil, nil, err
	}
	if rep == nil {
		return nil, nil, store.ErrNotFound
	}
	row, err := s.incidents.Get(ctx, rep.IncidentID)
	if err != nil {
		return nil, nil, err
	}
	if row == nil {
		return nil, nil, store.ErrNotFound
	}

	doc, _, err := s.seeds.Load(row.UniqueIndex)
	if err != nil {
		doc, err = incident.ImportFromDB([]byte(row.DocumentJSON))
		if err != nil {
			return nil, nil, err
		}
	}
	if issues := incident.ValidateANCIFields(doc, rep.Kind); len(issues) > 0 {
		return rep, issues, nil
	}

	if err := os.MkdirAll(s.cfg.ANCI.ReportsDir, 0o755); err != nil {
		return nil, nil, err
	}
	stamp := time.Now().UTC().Format("20060102_150405")
	base := fmt.Sprintf("%s_%s_%s", row.UniqueIndex, rep.Kind, stamp)

	docxPath := filepath.Join(s.cfg.ANCI.ReportsDir, base+".docx")
	if err := renderDOCX(docxPath, rep.Kind, row, doc); err != nil {
		return nil, nil, fmt.Errorf("anci: generando docx: %w", err)
	}
	pdfPath := filepath.Join(s.cfg.ANCI.ReportsDir, base+".pdf")
	if err := renderPDF(pdfPath, rep.Kind, row, doc); err != nil {
		return nil, nil, fmt.Errorf("anci: generando pdf: %w", err)
	}

	if err := s.reports.SetFilePath(ctx, rep.ID, docxPath); err != nil {
		return nil, nil, err
	}
	rep.FilePath = docxPath
	rep.Status = "generado"
	_ = s.audit.Append(ctx, user, "reporte_anci_generado", fmt.Sprintf("%s %s", row.UniqueIndex, rep.Kind))
	s.logger.Printf("reporte %s de %s generado", rep.Kind, row.UniqueIndex)
	return rep, nil, nil
}

// MarkSubmitted records the filing time and mirrors it into the document's
// report tracking block so the seed and the row agree.
func (s *Service) MarkSubmitted(ctx context.Context, reportID int64, user string) (*store.ANCIReport, error) {
	rep, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if rep == nil {
		return nil, store.ErrNotFound
	}
	now := time.Now().UTC()
	if err := s.reports.MarkSubmitted(ctx, rep.ID, now); err != nil {
		return nil, err
	}
	rep.Status = "enviado"
	rep.SubmittedAt = &now

	row, err := s.incidents.Get(ctx, rep.IncidentID)
	if err == nil && row != nil {
		if doc, _, lerr := s.seeds.Load(row.UniqueIndex); lerr == nil {
			markTracking(doc, rep.Kind, now)
			if werr := s.seeds.Write(row.UniqueIndex, seed.KindBase, doc); werr != nil {
				s.logger.Warnf("tracking de %s no persistido: %v", row.UniqueIndex, werr)
			}
		}
	}
	_ = s.audit.Append(ctx, user, "reporte_anci_enviado", fmt.Sprintf("reporte %d (%s)", rep.ID, rep.Kind))
	return rep, nil
}

func (s *Service) ListByIncident(ctx context.Context, incidentID int64) ([]store.ANCIReport, error) {
	return s.reports.ListByIncident(ctx, incidentID)
}

func (s *Service) Get(ctx context.Context, reportID int64) (*store.ANCIReport, error) {
	return s.reports.Get(ctx, reportID)
}

func markTracking(doc *incident.Document, kind string, at time.Time) {
	ts := incident.Timestamp(at)
	tr := &doc.Technical.ReportTracking
	switch kind {
	case incident.ReportEarlyAlert:
		tr.EarlyAlertSent = true
		tr.EarlyAlertDate = ts
	case incident.ReportPreliminary:
		tr.PreliminarySent = true
		tr.PreliminaryDate = ts
	case incident.ReportFull:
		tr.FullReportSent = true
		tr.FullReportDate = ts
	case incident.ReportFinal:
		tr.FinalReportSent = true
		tr.FinalReportDate = ts
	}
}
