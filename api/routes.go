package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"agente-digital/core/rbac"
)

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/api/health", s.handleHealth)
	r.Post("/api/auth/login", s.rateLimitMiddleware(s.handleLogin))

	r.Group(func(r chi.Router) {
		r.Post("/api/auth/logout", s.withAuth(s.handleLogout))
		r.Get("/api/auth/me", s.withAuth(s.handleMe))

		admin := func(h http.HandlerFunc) http.HandlerFunc {
			return s.withAuth(s.requirePermission(rbac.ObjAdmin, rbac.ActWrite)(h))
		}
		adminRead := func(h http.HandlerFunc) http.HandlerFunc {
			return s.withAuth(s.requirePermission(rbac.ObjAdmin, rbac.ActRead)(h))
		}
		r.Post("/api/admin/inquilinos", admin(s.handleTenantCreate))
		r.Get("/api/admin/inquilinos", adminRead(s.handleTenantList))
		r.Get("/api/admin/inquilinos/{id}", adminRead(s.handleTenantGet))
		r.Put("/api/admin/inquilinos/{id}", admin(s.handleTenantUpdate))
		r.Delete("/api/admin/inquilinos/{id}", admin(s.handleTenantDeactivate))

		r.Post("/api/admin/empresas", admin(s.handleCompanyCreate))
		r.Get("/api/admin/empresas", adminRead(s.handleCompanyList))
		r.Get("/api/admin/empresas/{id}", adminRead(s.handleCompanyGet))
		r.Delete("/api/admin/empresas/{id}", admin(s.handleCompanyDeactivate))

		r.Post("/api/admin/usuarios", admin(s.handleUserCreate))
		r.Get("/api/admin/usuarios", adminRead(s.handleUserList))
		r.Delete("/api/admin/usuarios/{id}", admin(s.handleUserDeactivate))

		incRead := func(h http.HandlerFunc) http.HandlerFunc {
			return s.withAuth(s.requirePermission(rbac.ObjIncidents, rbac.ActRead)(h))
		}
		incWrite := func(h http.HandlerFunc) http.HandlerFunc {
			return s.withAuth(s.requirePermission(rbac.ObjIncidents, rbac.ActWrite)(h))
		}
		r.Post("/api/incidentes", incWrite(s.handleIncidentCreate))
		r.Get("/api/incidentes", incRead(s.handleIncidentList))
		r.Get("/api/incidentes/{id}", incRead(s.handleIncidentGet))
		r.Get("/api/incidentes/{id}/editar", incWrite(s.handleIncidentEdit))
		r.Put("/api/incidentes/{id}", incWrite(s.handleIncidentSave))
		r.Patch("/api/v2/incidentes/{id}", incWrite(s.handleIncidentPatch))
		r.Post("/api/incidentes/{id}/renumerar", incWrite(s.handleIncidentRenumber))
		r.Post("/api/incidentes/{id}/validar", incRead(s.handleIncidentValidate))
		r.Delete("/api/incidentes/{id}",
			s.withAuth(s.requirePermission(rbac.ObjIncidents, rbac.ActDelete)(s.handleIncidentDelete)))

		r.Post("/api/incidentes/{id}/taxonomias",
			s.withAuth(s.requirePermission(rbac.ObjTaxonomies, rbac.ActWrite)(s.handleIncidentTaxonomyAdd)))
		r.Delete("/api/incidentes/{id}/taxonomias/{uid}",
			s.withAuth(s.requirePermission(rbac.ObjTaxonomies, rbac.ActWrite)(s.handleIncidentTaxonomyRemove)))

		r.Post("/api/incidentes/{id}/evidencias",
			s.withAuth(s.requirePermission(rbac.ObjEvidence, rbac.ActWrite)(s.handleEvidenceUpload)))
		r.Delete("/api/incidentes/{id}/evidencias",
			s.withAuth(s.requirePermission(rbac.ObjEvidence, rbac.ActWrite)(s.handleEvidenceRemove)))

		r.Get("/api/taxonomias",
			s.withAuth(s.requirePermission(rbac.ObjTaxonomies, rbac.ActRead)(s.handleTaxonomyCatalog)))
		r.Put("/api/taxonomias",
			s.withAuth(s.requirePermission(rbac.ObjAdmin, rbac.ActWrite)(s.handleTaxonomyUpsert)))

		anciRead := func(h http.HandlerFunc) http.HandlerFunc {
			return s.withAuth(s.requirePermission(rbac.ObjANCIReports, rbac.ActRead)(h))
		}
		anciWrite := func(h http.HandlerFunc) http.HandlerFunc {
			return s.withAuth(s.requirePermission(rbac.ObjANCIReports, rbac.ActWrite)(h))
		}
		r.Get("/api/incidentes/{id}/informes-anci", anciRead(s.handleANCIList))
		r.Post("/api/incidentes/{id}/informes-anci", anciWrite(s.handleANCISchedule))
		r.Post("/api/informes-anci/{reportId}/generar", anciWrite(s.handleANCIGenerate))
		r.Post("/api/informes-anci/{reportId}/enviar", anciWrite(s.handleANCISubmit))
		r.Get("/api/informes-anci/{reportId}/descargar", anciRead(s.handleANCIDownload))

		diagRead := func(h http.HandlerFunc) http.HandlerFunc {
			return s.withAuth(s.requirePermission(rbac.ObjDiagnostics, rbac.ActRead)(h))
		}
		r.Get("/api/diagnostico", diagRead(s.handleDiagnoseAll))
		r.Get("/api/diagnostico/incidentes/{id}", diagRead(s.handleDiagnoseIncident))
		r.Post("/api/diagnostico/reparar",
			s.withAuth(s.requirePermission(rbac.ObjDiagnostics, rbac.ActWrite)(s.handleRepair)))

		logsRead := func(h http.HandlerFunc) http.HandlerFunc {
			return s.withAuth(s.requirePermission(rbac.ObjLogs, rbac.ActRead)(h))
		}
		r.Get("/api/logs", logsRead(s.handleAuditList))
		r.Get("/api/logs/exportar", logsRead(s.handleAuditExport))
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
