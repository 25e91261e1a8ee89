package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"agente-digital/core/auth"
	"agente-digital/core/store"
)

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// --- tenants ---

type tenantRequest struct {
	RUT         string `json:"rut"`
	LegalName   string `json:"razon_social"`
	ContactMail string `json:"email_contacto"`
}

func (s *Server) handleTenantCreate(w http.ResponseWriter, r *http.Request) {
	var req tenantRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "json invalido")
		return
	}
	if strings.TrimSpace(req.LegalName) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "razon_social requerida")
		return
	}
	t := &store.Tenant{RUT: req.RUT, LegalName: req.LegalName, ContactMail: req.ContactMail, Active: true}
	if _, err := s.tenants.Create(r.Context(), t); err != nil {
		s.logger.Errorf("creando inquilino: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	claims := ClaimsFromContext(r.Context())
	_ = s.audit.Append(r.Context(), claims.Username, "inquilino_creado", t.LegalName)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleTenantList(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("inactivos") == "true"
	list, err := s.tenants.List(r.Context(), includeInactive)
	if err != nil {
		s.logger.Errorf("listando inquilinos: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inquilinos": list})
}

func (s *Server) handleTenantGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "id invalido")
		return
	}
	t, err := s.tenants.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "not_found", "inquilino no encontrado")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleTenantUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "id invalido")
		return
	}
	existing, err := s.tenants.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "not_found", "inquilino no encontrado")
		return
	}
	var req tenantRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "json invalido")
		return
	}
	if req.RUT != "" {
		existing.RUT = req.RUT
	}
	if req.LegalName != "" {
		existing.LegalName = req.LegalName
	}
	if req.ContactMail != "" {
		existing.ContactMail = req.ContactMail
	}
	if err := s.tenants.Update(r.Context(), existing); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) handleTenantDeactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "id invalido")
		return
	}
	if err := s.tenants.Deactivate(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	claims := ClaimsFromContext(r.Context())
	_ = s.audit.Append(r.Context(), claims.Username, "inquilino_desactivado", strconv.FormatInt(id, 10))
	writeJSON(w, http.StatusOK, map[string]string{"status": "desactivado"})
}

// --- companies ---

type companyRequest struct {
	TenantID        int64  `json:"inquilino_id"`
	RUT             string `json:"rut"`
	LegalName       string `json:"razon_social"`
	EntityType      string `json:"tipo_empresa"`
	EssentialSector string `json:"sector_esencial"`
	ContactMail     string `json:"email_contacto"`
}

func (s *Server) handleCompanyCreate(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "json invalido")
		return
	}
	if req.TenantID <= 0 || strings.TrimSpace(req.LegalName) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "inquilino_id y razon_social requeridos")
		return
	}
	if req.EntityType != "OIV" && req.EntityType != "PSE" {
		writeError(w, http.StatusBadRequest, "bad_request", "tipo_empresa debe ser OIV o PSE")
		return
	}
	c := &store.Company{
		TenantID:        req.TenantID,
		RUT:             req.RUT,
		LegalName:       req.LegalName,
		EntityType:      req.EntityType,
		EssentialSector: req.EssentialSector,
		ContactMail:     req.ContactMail,
		Active:          true,
	}
	if _, err := s.companies.Create(r.Context(), c); err != nil {
		s.logger.Errorf("creando empresa: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleCompanyList(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := strconv.ParseInt(r.URL.Query().Get("inquilino_id"), 10, 64)
	if tenantID <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "inquilino_id requerido")
		return
	}
	list, err := s.companies.ListByTenant(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"empresas": list})
}

func (s *Server) handleCompanyGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "id invalido")
		return
	}
	c, err := s.companies.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "not_found", "empresa no encontrada")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCompanyDeactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "id invalido")
		return
	}
	if err := s.companies.Deactivate(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "desactivada"})
}

// --- users ---

type userRequest struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
	TenantID *int64   `json:"inquilino_id"`
}

func (s *Server) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "json invalido")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Password) < 12 {
		writeError(w, http.StatusBadRequest, "bad_request", "username y password de 12+ caracteres requeridos")
		return
	}
	hash, salt, err := auth.HashPassword(req.Password, s.cfg.Auth.Pepper)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	u := &store.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Salt:         salt,
		Roles:        req.Roles,
		TenantID:     req.TenantID,
		Active:       true,
	}
	if _, err := s.users.Create(r.Context(), u); err != nil {
		s.logger.Errorf("creando usuario %s: %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	claims := ClaimsFromContext(r.Context())
	_ = s.audit.Append(r.Context(), claims.Username, "usuario_creado", u.Username)
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleUserList(w http.ResponseWriter, r *http.Request) {
	list, err := s.users.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"usuarios": list})
}

func (s *Server) handleUserDeactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "id invalido")
		return
	}
	if err := s.users.Deactivate(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	claims := ClaimsFromContext(r.Context())
	_ = s.audit.Append(r.Context(), claims.Username, "usuario_desactivado", strconv.FormatInt(id, 10))
	writeJSON(w, http.StatusOK, map[string]string{"status": "desactivado"})
}
