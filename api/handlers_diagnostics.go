package api

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"agente-digital/core/store"
)

func (s *Server) handleDiagnoseIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "id invalido")
		return
	}
	rep, err := s.diagSvc.Diagnose(r.Context(), id)
	if err != nil {
		s.logger.Errorf("diagnostico de %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleDiagnoseAll(w http.ResponseWriter, r *http.Request) {
	reps, err := s.diagSvc.DiagnoseAll(r.Context())
	if err != nil {
		s.logger.Errorf("diagnostico global: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	healthy := 0
	for _, rep := range reps {
		if rep.Healthy {
			healthy++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reportes":   reps,
		"total":      len(reps),
		"saludables": healthy,
	})
}

func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	actions, err := s.diagSvc.Repair(r.Context())
	if err != nil {
		s.logger.Errorf("reparacion: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	claims := ClaimsFromContext(r.Context())
	_ = s.audit.Append(r.Context(), claims.Username, "reparacion_ejecutada", strconv.Itoa(len(actions)))
	writeJSON(w, http.StatusOK, map[string]any{"acciones": actions})
}

// --- audit log ---

func auditFilterFromQuery(r *http.Request) store.AuditFilter {
	q := r.URL.Query()
	f := store.AuditFilter{
		Action: q.Get("accion"),
		User:   q.Get("usuario"),
	}
	if since := q.Get("desde"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			f.Since = t
		}
	}
	f.Limit, _ = strconv.Atoi(q.Get("limite"))
	return f
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	list, err := s.audit.List(r.Context(), auditFilterFromQuery(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"eventos": list})
}

// handleAuditExport streams the filtered audit log as CSV.
func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	list, err := s.audit.List(r.Context(), auditFilterFromQuery(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=audit_log.csv")
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "usuario", "accion", "detalles", "fecha"})
	for _, rec := range list {
		_ = cw.Write([]string{
			strconv.FormatInt(rec.ID, 10),
			rec.Username,
			rec.Action,
			rec.Details,
			rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
}
