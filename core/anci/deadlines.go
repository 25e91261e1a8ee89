package anci

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"agente-digital/config"
	"agente-digital/core/store"
	"agente-digital/core/utils"
)

// DeadlineWatcher runs on a cron schedule and flags pending reports whose
// legal deadline has passed. Overdue reports are marked vencido and an
// audit entry is written once per report.
type DeadlineWatcher struct {
	cfg     config.ANCIConfig
	reports store.ANCIStore
	audit   store.AuditStore
	logger  *utils.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewDeadlineWatcher(cfg config.ANCIConfig, reports store.ANCIStore, audit store.AuditStore, logger *utils.Logger) *DeadlineWatcher {
	return &DeadlineWatcher{cfg: cfg, reports: reports, audit: audit, logger: logger}
}

func (w *DeadlineWatcher) StartWithContext(ctx context.Context) {
	if w == nil || w.cfg.DeadlineCron == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	c := cron.New()
	if _, err := c.AddFunc(w.cfg.DeadlineCron, func() {
		if err := w.RunOnce(ctx, time.Now().UTC()); err != nil {
			w.logger.Errorf("revision de plazos anci: %v", err)
		}
	}); err != nil {
		w.logger.Errorf("expresion cron invalida %q: %v", w.cfg.DeadlineCron, err)
		return
	}
	c.Start()
	w.cron = c
	w.running = true
}

func (w *DeadlineWatcher) StopWithContext(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.running = false
	w.mu.Unlock()
	if c == nil {
		return nil
	}
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *DeadlineWatcher) RunOnce(ctx context.Context, now time.Time) error {
	overdue, err := w.reports.ListOverdue(ctx, now)
	if err != nil {
		return err
	}
	for _, rep := range overdue {
		if err := w.reports.MarkOverdue(ctx, rep.ID); err != nil {
			return err
		}
		detail := fmt.Sprintf("reporte %s del incidente %d vencio el %s",
			rep.Kind, rep.IncidentID, rep.Deadline.UTC().Format(time.RFC3339))
		_ = w.audit.Append(ctx, "sistema", "reporte_anci_vencido", detail)
		w.logger.Warnf("%s", detail)
	}
	return nil
}
