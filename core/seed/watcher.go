package seed

import (
	"context"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"agente-digital/config"
	"agente-digital/core/utils"
)

// Watcher reports out-of-band changes to seed files. Seeds are only supposed
// to change through the incident service; anything else touching them is
// worth surfacing, since a hand-edited seed bypasses validation and the
// integrity hash.
type Watcher struct {
	cfg    config.SeedsConfig
	logger *utils.Logger
	notify func(uniqueIndex, op string)

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

func NewWatcher(cfg config.SeedsConfig, logger *utils.Logger, notify func(uniqueIndex, op string)) *Watcher {
	return &Watcher{cfg: cfg, logger: logger, notify: notify}
}

func (w *Watcher) StartWithContext(ctx context.Context) {
	if w == nil || !w.cfg.WatchEnabled {
		return
	}
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		w.logger.Errorf("seed watcher init: %v", err)
		return
	}
	if err := fsw.Add(w.cfg.Dir); err != nil {
		fsw.Close()
		w.mu.Unlock()
		w.logger.Warnf("seed watcher cannot watch %s: %v", w.cfg.Dir, err)
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		defer fsw.Close()
		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				w.handleEvent(ev)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warnf("seed watcher: %v", err)
			case <-runCtx.Done():
				return
			}
		}
	}()
}

func (w *Watcher) StopWithContext(ctx context.Context) error {
	if w == nil || !w.cfg.WatchEnabled {
		return nil
	}
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	wasRunning := w.running
	w.mu.Unlock()
	if !wasRunning || cancel == nil {
		return nil
	}
	cancel()
	waitDone := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	name := ev.Name
	if strings.HasSuffix(name, ".tmp") {
		return
	}
	idx, ok := indexFromFileName(baseName(name))
	if !ok {
		return
	}
	switch {
	case ev.Op.Has(fsnotify.Write):
		w.logger.Warnf("seed %s modified on disk", idx)
		w.fire(idx, "write")
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.logger.Warnf("seed %s removed from disk", idx)
		w.fire(idx, "remove")
	case ev.Op.Has(fsnotify.Create):
		w.fire(idx, "create")
	}
}

func (w *Watcher) fire(idx, op string) {
	if w.notify != nil {
		w.notify(idx, op)
	}
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
