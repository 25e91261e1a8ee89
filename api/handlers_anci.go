package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func (s *Server) handleANCIList(w http.ResponseWriter, r *http.Request) {
	row := s.incidentFromPath(w, r)
	if row == nil {
		return
	}
	reports, err := s.anciSvc.ListByIncident(r.Context(), row.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reportes": reports})
}

func (s *Server) handleANCISchedule(w http.ResponseWriter, r *http.Request) {
	row := s.incidentFromPath(w, r)
	if row == nil {
		return
	}
	var req struct {
		DetectedAt string `json:"fecha_deteccion"`
	}
	_ = decodeBody(r, &req)
	detectedAt := time.Now().UTC()
	if req.DetectedAt != "" {
		t, err := time.Parse(time.RFC3339, req.DetectedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "fecha_deteccion debe ser RFC3339")
			return
		}
		detectedAt = t
	}
	claims := ClaimsFromContext(r.Context())
	created, err := s.anciSvc.ScheduleAll(r.Context(), row.ID, detectedAt, claims.Username)
	if err != nil {
		s.logger.Errorf("programando reportes de %s: %v", row.UniqueIndex, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"reportes": created})
}

func (s *Server) handleANCIGenerate(w http.ResponseWriter, r *http.Request) {
	reportID, ok := pathID(r, "reportId")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "id de reporte invalido")
		return
	}
	claims := ClaimsFromContext(r.Context())
	rep, issues, err := s.anciSvc.Generate(r.Context(), reportID, claims.Username)
	if err != nil {
		s.logger.Errorf("generando reporte %d: %v", reportID, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "no se pudo generar el reporte")
		return
	}
	if len(issues) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     "validation_failed",
			"message":   "faltan campos obligatorios para este reporte",
			"problemas": issues,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleANCISubmit(w http.ResponseWriter, r *http.Request) {
	reportID, ok := pathID(r, "reportId")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "id de reporte invalido")
		return
	}
	claims := ClaimsFromContext(r.Context())
	rep, err := s.anciSvc.MarkSubmitted(r.Context(), reportID, claims.Username)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "reporte no encontrado")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// handleANCIDownload streams a generated artifact. Only paths inside the
// reports directory are served.
func (s *Server) handleANCIDownload(w http.ResponseWriter, r *http.Request) {
	reportID, ok := pathID(r, "reportId")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "id de reporte invalido")
		return
	}
	report, err := s.anciSvc.Get(r.Context(), reportID)
	if err != nil || report == nil || report.FilePath == "" {
		writeError(w, http.StatusNotFound, "not_found", "artefacto no disponible")
		return
	}
	absDir, err := filepath.Abs(s.cfg.ANCI.ReportsDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	absFile, err := filepath.Abs(report.FilePath)
	if err != nil || !strings.HasPrefix(absFile, absDir+string(filepath.Separator)) {
		writeError(w, http.StatusForbidden, "forbidden", "ruta fuera del directorio de reportes")
		return
	}
	if _, err := os.Stat(absFile); err != nil {
		writeError(w, http.StatusNotFound, "not_found", "archivo no encontrado en disco")
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(absFile))
	http.ServeFile(w, r, absFile)
}
