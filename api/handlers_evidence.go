package api

import (
	"errors"
	"net/http"
	"strings"

	"agente-digital/core/evidence"
	"agente-digital/core/incidents"
)

// handleEvidenceUpload accepts a multipart upload for a numbered section or
// a selected taxonomy.
func (s *Server) handleEvidenceUpload(w http.ResponseWriter, r *http.Request) {
	row := s.incidentFromPath(w, r)
	if row == nil {
		return
	}
	maxBytes := int64(s.cfg.Uploads.MaxSizeMB+1) * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "formulario multipart invalido")
		return
	}
	file, header, err := r.FormFile("archivo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "campo archivo requerido")
		return
	}
	defer file.Close()

	section := strings.TrimSpace(r.FormValue("seccion"))
	taxonomyUID := strings.TrimSpace(r.FormValue("taxonomia_uid"))
	if section == "" && taxonomyUID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "seccion o taxonomia_uid requerido")
		return
	}

	claims := ClaimsFromContext(r.Context())
	number, err := s.incidentSvc.AddEvidence(r.Context(), row.ID, incidents.UploadInput{
		Section:     section,
		TaxonomyUID: taxonomyUID,
		FileName:    header.Filename,
		Description: r.FormValue("descripcion"),
		Content:     file,
		UploadedBy:  claims.Username,
	})
	if err != nil {
		switch {
		case errors.Is(err, evidence.ErrBadExtension):
			writeError(w, http.StatusBadRequest, "bad_extension", "extension de archivo no permitida")
		case errors.Is(err, evidence.ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "archivo excede el limite")
		case errors.Is(err, evidence.ErrSuspicious):
			writeError(w, http.StatusBadRequest, "file_rejected", "contenido de archivo rechazado")
		default:
			s.logger.Errorf("subiendo evidencia a %s: %v", row.UniqueIndex, err)
			writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"numero": number})
}

func (s *Server) handleEvidenceRemove(w http.ResponseWriter, r *http.Request) {
	row := s.incidentFromPath(w, r)
	if row == nil {
		return
	}
	var req struct {
		Section string `json:"seccion"`
		Number  string `json:"numero"`
	}
	if err := decodeBody(r, &req); err != nil || req.Section == "" || req.Number == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "seccion y numero requeridos")
		return
	}
	claims := ClaimsFromContext(r.Context())
	if err := s.incidentSvc.RemoveEvidence(r.Context(), row.ID, req.Section, req.Number, claims.Username); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "eliminada", "numero": req.Number})
}
