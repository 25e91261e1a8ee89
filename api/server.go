// Package api exposes the HTTP surface: authentication, tenant and company
// administration, the incident document lifecycle, evidence uploads,
// taxonomy catalog, regulatory reports, diagnostics and the audit log.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"agente-digital/config"
	"agente-digital/core/anci"
	"agente-digital/core/auth"
	"agente-digital/core/cache"
	"agente-digital/core/diagnostics"
	"agente-digital/core/incidents"
	"agente-digital/core/rbac"
	"agente-digital/core/store"
	"agente-digital/core/utils"
)

type Server struct {
	cfg    *config.AppConfig
	logger *utils.Logger

	authSvc     *auth.Service
	incidentSvc *incidents.Service
	anciSvc     *anci.Service
	diagSvc     *diagnostics.Service
	policy      *rbac.Policy
	catalog     *cache.CatalogCache

	tenants   store.TenantsStore
	companies store.CompaniesStore
	users     store.UsersStore
	taxonomy  store.TaxonomyStore
	audit     store.AuditStore

	loginLimiter *requestLimiter
	router       chi.Router
}

type Deps struct {
	Cfg         *config.AppConfig
	Logger      *utils.Logger
	AuthSvc     *auth.Service
	IncidentSvc *incidents.Service
	ANCISvc     *anci.Service
	DiagSvc     *diagnostics.Service
	Policy      *rbac.Policy
	Catalog     *cache.CatalogCache
	Tenants     store.TenantsStore
	Companies   store.CompaniesStore
	Users       store.UsersStore
	Taxonomy    store.TaxonomyStore
	Audit       store.AuditStore
}

func NewServer(d Deps) *Server {
	capacity := d.Cfg.Security.LoginRateCapacity
	if capacity <= 0 {
		capacity = 5
	}
	window := time.Duration(d.Cfg.Security.LoginRateWindow) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	s := &Server{
		cfg:          d.Cfg,
		logger:       d.Logger,
		authSvc:      d.AuthSvc,
		incidentSvc:  d.IncidentSvc,
		anciSvc:      d.ANCISvc,
		diagSvc:      d.DiagSvc,
		policy:       d.Policy,
		catalog:      d.Catalog,
		tenants:      d.Tenants,
		companies:    d.Companies,
		users:        d.Users,
		taxonomy:     d.Taxonomy,
		audit:        d.Audit,
		loginLimiter: newLimiter(capacity, window),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// errorBody is the uniform error envelope of every non-2xx JSON response.
type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{
		Error:     code,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
