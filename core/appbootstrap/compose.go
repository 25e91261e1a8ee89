// Package appbootstrap wires configuration, storage, services and
// background workers into a runnable application.
package appbootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"agente-digital/api"
	"agente-digital/config"
	"agente-digital/core/anci"
	"agente-digital/core/auth"
	"agente-digital/core/cache"
	"agente-digital/core/diagnostics"
	"agente-digital/core/evidence"
	"agente-digital/core/incidents"
	"agente-digital/core/rbac"
	"agente-digital/core/seed"
	"agente-digital/core/store"
	"agente-digital/core/utils"
)

// Worker is a long-running component tied to the server lifetime.
type Worker interface {
	StartWithContext(ctx context.Context)
	StopWithContext(ctx context.Context) error
}

type Runtime struct {
	Cfg     *config.AppConfig
	DB      *sql.DB
	Logger  *utils.Logger
	Server  *api.Server
	Workers []Worker

	DiagSvc *diagnostics.Service
	Catalog *cache.CatalogCache
}

// Compose builds the full object graph on top of an open database.
func Compose(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) (*Runtime, error) {
	tenants := store.NewTenantsStore(db)
	companies := store.NewCompaniesStore(db)
	users := store.NewUsersStore(db)
	sessions := store.NewSessionsStore(db)
	audit := store.NewAuditStore(db)
	incidentsStore := store.NewIncidentsStore(db)
	evidenceStore := store.NewEvidenceStore(db)
	taxonomyStore := store.NewTaxonomyStore(db)
	anciStore := store.NewANCIStore(db)

	seeds := seed.NewManager(cfg.Seeds.Dir, logger)
	files := evidence.NewManager(cfg.Uploads, logger)
	catalog := cache.NewCatalogCache(cfg.Cache, logger)

	policy, err := rbac.NewPolicy()
	if err != nil {
		return nil, fmt.Errorf("cargando politica rbac: %w", err)
	}

	authSvc := auth.NewService(cfg, users, sessions, audit, logger)
	incidentSvc := incidents.NewService(cfg, incidentsStore, companies, evidenceStore, taxonomyStore,
		audit, seeds, files, logger)
	anciSvc := anci.NewService(cfg, incidentsStore, anciStore, audit, seeds, logger)
	diagSvc := diagnostics.NewService(cfg, incidentsStore, evidenceStore, taxonomyStore, seeds, files, logger)

	server := api.NewServer(api.Deps{
		Cfg:         cfg,
		Logger:      logger,
		AuthSvc:     authSvc,
		IncidentSvc: incidentSvc,
		ANCISvc:     anciSvc,
		DiagSvc:     diagSvc,
		Policy:      policy,
		Catalog:     catalog,
		Tenants:     tenants,
		Companies:   companies,
		Users:       users,
		Taxonomy:    taxonomyStore,
		Audit:       audit,
	})

	var workers []Worker
	if cfg.Scheduler.Enabled {
		workers = append(workers, anci.NewDeadlineWatcher(cfg.ANCI, anciStore, audit, logger))
	}
	if cfg.Seeds.WatchEnabled {
		watcher := seed.NewWatcher(cfg.Seeds, logger, func(uniqueIndex, op string) {
			if op == "write" || op == "remove" {
				_ = audit.Append(context.Background(), "sistema", "semilla_modificada_externamente",
					fmt.Sprintf("%s (%s)", uniqueIndex, op))
			}
		})
		workers = append(workers, watcher)
	}

	return &Runtime{
		Cfg:     cfg,
		DB:      db,
		Logger:  logger,
		Server:  server,
		Workers: workers,
		DiagSvc: diagSvc,
		Catalog: catalog,
	}, nil
}
