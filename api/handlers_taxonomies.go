package api

import (
	"net/http"

	"agente-digital/core/store"
)

// handleTaxonomyCatalog serves the catalog filtered by entity type. Results
// are answered from the cache when warm.
func (s *Server) handleTaxonomyCatalog(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("tipo_empresa")
	if entityType != "" && entityType != "OIV" && entityType != "PSE" && entityType != "AMBAS" {
		writeError(w, http.StatusBadRequest, "bad_request", "tipo_empresa debe ser OIV, PSE o AMBAS")
		return
	}
	if cached := s.catalog.Get(r.Context(), entityType); cached != nil {
		writeJSON(w, http.StatusOK, map[string]any{"taxonomias": cached, "cache": true})
		return
	}
	list, err := s.taxonomy.ListCatalog(r.Context(), entityType)
	if err != nil {
		s.logger.Errorf("listando catalogo: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	s.catalog.Set(r.Context(), entityType, list)
	writeJSON(w, http.StatusOK, map[string]any{"taxonomias": list, "cache": false})
}

func (s *Server) handleTaxonomyUpsert(w http.ResponseWriter, r *http.Request) {
	var req store.CatalogEntry
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "json invalido")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "codigo requerido")
		return
	}
	req.Active = true
	if _, err := s.taxonomy.UpsertCatalogEntry(r.Context(), &req); err != nil {
		s.logger.Errorf("guardando taxonomia %s: %v", req.Code, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	s.catalog.Invalidate(r.Context())
	claims := ClaimsFromContext(r.Context())
	_ = s.audit.Append(r.Context(), claims.Username, "taxonomia_catalogo_actualizada", req.Code)
	writeJSON(w, http.StatusOK, req)
}
