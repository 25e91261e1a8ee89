package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"agente-digital/core/incident"
	"agente-digital/core/incidents"
	"agente-digital/core/store"
)

// tenantAllowed enforces tenant scoping: an empty tenant claim means a
// platform-wide account.
func tenantAllowed(r *http.Request, row *store.Incident) bool {
	claims := ClaimsFromContext(r.Context())
	return claims != nil && (claims.TenantID == 0 || claims.TenantID == row.TenantID)
}

func (s *Server) incidentFromPath(w http.ResponseWriter, r *http.Request) *store.Incident {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "id invalido")
		return nil
	}
	row, err := s.incidentSvc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, incidents.ErrIncidentNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "incidente no encontrado")
		} else {
			s.logger.Errorf("cargando incidente %d: %v", id, err)
			writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		}
		return nil
	}
	if !tenantAllowed(r, row) {
		writeError(w, http.StatusForbidden, "forbidden", "incidente de otro inquilino")
		return nil
	}
	return row
}

type incidentCreateRequest struct {
	TenantID      int64                     `json:"inquilino_id"`
	CompanyID     int64                     `json:"empresa_id"`
	Title         string                    `json:"titulo"`
	Description   string                    `json:"descripcion"`
	Criticality   string                    `json:"criticidad"`
	IncidentDate  string                    `json:"fecha_incidente"`
	DetectionDate string                    `json:"fecha_deteccion"`
	Values        map[string]map[string]any `json:"valores"`
	Taxonomies    []incident.TaxonomyInput  `json:"taxonomias"`
}

func (s *Server) handleIncidentCreate(w http.ResponseWriter, r *http.Request) {
	var req incidentCreateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "json invalido")
		return
	}
	claims := ClaimsFromContext(r.Context())
	if claims.TenantID > 0 {
		req.TenantID = claims.TenantID
	}
	if req.TenantID <= 0 || req.CompanyID <= 0 || req.Title == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "inquilino_id, empresa_id y titulo requeridos")
		return
	}
	row, doc, err := s.incidentSvc.Create(r.Context(), incidents.CreateInput{
		TenantID:      req.TenantID,
		CompanyID:     req.CompanyID,
		Title:         req.Title,
		Description:   req.Description,
		Criticality:   req.Criticality,
		IncidentDate:  req.IncidentDate,
		DetectionDate: req.DetectionDate,
		Values:        req.Values,
		Taxonomies:    req.Taxonomies,
		CreatedBy:     claims.Username,
	})
	if err != nil {
		if errors.Is(err, incidents.ErrCompanyNotFound) {
			writeError(w, http.StatusBadRequest, "bad_request", "empresa no encontrada en el inquilino")
			return
		}
		s.logger.Errorf("creando incidente: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}

	// Detection time anchors the legal report deadlines.
	detectedAt := time.Now().UTC()
	if req.DetectionDate != "" {
		if t, perr := time.Parse(time.RFC3339, req.DetectionDate); perr == nil {
			detectedAt = t
		}
	}
	if _, err := s.anciSvc.ScheduleAll(r.Context(), row.ID, detectedAt, claims.Username); err != nil {
		s.logger.Errorf("programando reportes de %s: %v", row.UniqueIndex, err)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"incidente": row, "documento": doc})
}

func (s *Server) handleIncidentList(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	q := r.URL.Query()
	f := store.IncidentFilter{
		Criticality: q.Get("criticidad"),
		Status:      q.Get("estado"),
		Search:      q.Get("buscar"),
	}
	f.TenantID, _ = strconv.ParseInt(q.Get("inquilino_id"), 10, 64)
	f.CompanyID, _ = strconv.ParseInt(q.Get("empresa_id"), 10, 64)
	f.Limit, _ = strconv.Atoi(q.Get("limite"))
	f.Offset, _ = strconv.Atoi(q.Get("desde"))
	if claims.TenantID > 0 {
		f.TenantID = claims.TenantID
	}
	list, err := s.incidentSvc.List(r.Context(), f)
	if err != nil {
		s.logger.Errorf("listando incidentes: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidentes": list, "total": len(list)})
}

func (s *Server) handleIncidentGet(w http.ResponseWriter, r *http.Request) {
	row := s.incidentFromPath(w, r)
	if row == nil {
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// handleIncidentEdit opens an edit session and returns the resolved
// document plus which snapshot it came from.
func (s *Server) handleIncidentEdit(w http.ResponseWriter, r *http.Request) {
	row := s.incidentFromPath(w, r)
	if row == nil {
		return
	}
	claims := ClaimsFromContext(r.Context())
	doc, source, err := s.incidentSvc.LoadForEdit(r.Context(), row.ID, claims.Username)
	if err != nil {
		s.logger.Errorf("abriendo edicion de %s: %v", row.UniqueIndex, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "no se pudo abrir la edicion")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documento": doc, "fuente": source, "version": row.Version})
}

type incidentSaveRequest struct {
	Version  int                `json:"version"`
	Document *incident.Document `json:"documento"`
}

// handleIncidentSave persists a full edited document (v1 contract).
func (s *Server) handleIncidentSave(w http.ResponseWriter, r *http.Request) {
	row := s.incidentFromPath(w, r)
	if row == nil {
		return
	}
	var req incidentSaveRequest
	if err := decodeBody(r, &req); err != nil || req.Document == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "documento requerido")
		return
	}
	claims := ClaimsFromContext(r.Context())
	updated, err := s.incidentSvc.Save(r.Context(), row.ID, req.Document, req.Version, claims.Username)
	if err != nil {
		s.respondSaveError(w, row, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidente": updated, "version": updated.Version})
}

type incidentValuesRequest struct {
	Version int                       `json:"version"`
	Values  map[string]map[string]any `json:"valores"`
}

// handleIncidentPatch merges a sparse field payload (v2 contract).
func (s *Server) handleIncidentPatch(w http.ResponseWriter, r *http.Request) {
	row := s.incidentFromPath(w, r)
	if row == nil {
		return
	}
	var req incidentValuesRequest
	if err := decodeBody(r, &req); err != nil || len(req.Values) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "valores requeridos")
		return
	}
	claims := ClaimsFromContext(r.Context())
	updated, err := s.incidentSvc.UpdateValues(r.Context(), row.ID, req.Values, req.Version, claims.Username)
	if err != nil {
		s.respondSaveError(w, row, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidente": updated, "version": updated.Version})
}

func (s *Server) respondSaveError(w http.ResponseWriter, row *store.Incident, err error) {
	var vErr *incidents.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     "validation_failed",
			"message":   "el documento no supera la validacion",
			"problemas": vErr.Issues,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	case errors.Is(err, incidents.ErrVersionConflict):
		writeError(w, http.StatusConflict, "version_conflict", "el incidente fue modificado por otra sesion")
	default:
		s.logger.Errorf("guardando %s: %v", row.UniqueIndex, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
	}
}

func (s *Server) handleIncidentRenumber(w http.ResponseWriter, r *http.Request) {
	row := s.incidentFromPath(w, r)
	if row == nil {
		return
	}
	var req struct {
		Version int `json:"version"`
	}
	_ = decodeBody(r, &req)
	claims := ClaimsFromContext(r.Context())
	doc, err := s.incidentSvc.Renumber(r.Context(), row.ID, req.Version, claims.Username)
	if err != nil {
		s.respondSaveError(w, row, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documento": doc})
}

func (s *Server) handleIncidentDelete(w http.ResponseWriter, r *http.Request) {
	row := s.incidentFromPath(w, r)
	if row == nil {
		return
	}
	claims := ClaimsFromContext(r.Context())
	if err := s.incidentSvc.Destroy(r.Context(), row.ID, claims.Username); err != nil {
		s.logger.Errorf("eliminando %s: %v", row.UniqueIndex, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "eliminado", "indice_unico": row.UniqueIndex})
}

// handleIncidentValidate replays the validators without mutating anything.
func (s *Server) handleIncidentValidate(w http.ResponseWriter, r *http.Request) {
	row := s.incidentFromPath(w, r)
	if row == nil {
		return
	}
	claims := ClaimsFromContext(r.Context())
	doc, _, err := s.incidentSvc.LoadForEdit(r.Context(), row.ID, claims.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "no se pudo cargar el documento")
		return
	}
	structure := incident.ValidateStructure(doc)
	taxonomies := incident.ValidateTaxonomyIntegrity(doc)
	evidences := incident.ValidateSectionEvidence(doc)
	writeJSON(w, http.StatusOK, map[string]any{
		"valido":      len(structure) == 0 && len(taxonomies) == 0 && len(evidences) == 0,
		"estructura":  structure,
		"taxonomias":  taxonomies,
		"evidencias":  evidences,
	})
}

// --- document taxonomy operations ---

func (s *Server) handleIncidentTaxonomyAdd(w http.ResponseWriter, r *http.Request) {
	row := s.incidentFromPath(w, r)
	if row == nil {
		return
	}
	var req incident.TaxonomyInput
	if err := decodeBody(r, &req); err != nil || req.TaxonomyID <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "taxonomia_id requerido")
		return
	}
	entry, err := s.taxonomy.GetCatalogEntry(r.Context(), req.TaxonomyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	if entry == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "taxonomia no existe en el catalogo")
		return
	}
	if req.Name == "" {
		req.Name = entry.Description
	}
	if req.Category == "" {
		req.Category = entry.Category
	}
	if req.Subcategory == "" {
		req.Subcategory = entry.Subcategory
	}

	claims := ClaimsFromContext(r.Context())
	slot, err := s.incidentSvc.AddTaxonomy(r.Context(), row.ID, req, claims.Username)
	if err != nil {
		s.logger.Errorf("agregando taxonomia a %s: %v", row.UniqueIndex, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"seleccion": slot})
}

func (s *Server) handleIncidentTaxonomyRemove(w http.ResponseWriter, r *http.Request) {
	row := s.incidentFromPath(w, r)
	if row == nil {
		return
	}
	uid := chi.URLParam(r, "uid")
	claims := ClaimsFromContext(r.Context())
	if err := s.incidentSvc.RemoveTaxonomy(r.Context(), row.ID, uid, claims.Username); err != nil {
		if errors.Is(err, incidents.ErrTaxonomyNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "seleccion de taxonomia no encontrada")
			return
		}
		s.logger.Errorf("eliminando taxonomia de %s: %v", row.UniqueIndex, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "eliminada"})
}
