package appbootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"agente-digital/config"
	"agente-digital/core/store"
	"agente-digital/core/utils"
)

// Open loads configuration, opens the database and applies pending
// migrations. The caller owns the returned Runtime and must Close it.
func Open(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("cargando configuracion: %w", err)
	}
	logger := utils.NewLogger()

	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("abriendo base de datos: %w", err)
	}
	if err := store.ApplyMigrations(ctx, db, cfg, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("aplicando migraciones: %w", err)
	}

	rt, err := Compose(cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) Close() {
	if rt.Catalog != nil {
		rt.Catalog.Close()
	}
	if rt.DB != nil {
		rt.DB.Close()
	}
}

// Serve runs the HTTP server and background workers until ctx is
// cancelled, then shuts everything down in reverse order.
func (rt *Runtime) Serve(ctx context.Context) error {
	for _, w := range rt.Workers {
		w.StartWithContext(ctx)
	}

	srv := &http.Server{
		Addr:              rt.Cfg.ListenAddr,
		Handler:           rt.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.Logger.Printf("escuchando en %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		rt.stopWorkers()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		rt.Logger.Errorf("apagando servidor http: %v", err)
	}
	rt.stopWorkers()
	return nil
}

func (rt *Runtime) stopWorkers() {
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(rt.Workers) - 1; i >= 0; i-- {
		if err := rt.Workers[i].StopWithContext(stopCtx); err != nil {
			rt.Logger.Warnf("deteniendo worker: %v", err)
		}
	}
}
