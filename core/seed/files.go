// Package seed manages the on-disk lifecycle of incident seed files. Every
// incident keeps up to three JSON snapshots under the seeds directory:
//
//	<indice>_semilla_original.json  written once at creation, never touched
//	<indice>_semilla_base.json      rewritten on every successful save
//	<indice>_semilla_editing.json   scratch copy of an edit in progress
//
// Readers resolve through the fallback chain editing, base, original; the
// first file that exists and decodes wins.
package seed

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"agente-digital/core/incident"
	"agente-digital/core/utils"
)

const (
	KindOriginal = "original"
	KindBase     = "base"
	KindEditing  = "editing"
)

var ErrSeedNotFound = errors.New("seed: no seed file found")

// FallbackChain is the read priority, most recent snapshot first.
var FallbackChain = []string{KindEditing, KindBase, KindOriginal}

type Manager struct {
	dir    string
	logger *utils.Logger
}

func NewManager(dir string, logger *utils.Logger) *Manager {
	return &Manager{dir: dir, logger: logger}
}

func (m *Manager) Dir() string { return m.dir }

// FileName builds the canonical seed file name for an index and kind.
func FileName(uniqueIndex, kind string) string {
	return fmt.Sprintf("%s_semilla_%s.json", uniqueIndex, kind)
}

func (m *Manager) Path(uniqueIndex, kind string) string {
	return filepath.Join(m.dir, FileName(uniqueIndex, kind))
}

func (m *Manager) Exists(uniqueIndex, kind string) bool {
	_, err := os.Stat(m.Path(uniqueIndex, kind))
	return err == nil
}

// Write serializes the document to the named snapshot. The write goes
// through a temp file and rename so a crash never leaves a half-written
// seed behind.
func (m *Manager) Write(uniqueIndex, kind string, doc *incident.Document) error {
	if doc == nil {
		return errors.New("seed: nil document")
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	target := m.Path(uniqueIndex, kind)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Read decodes one specific snapshot. ErrSeedNotFound when the file does
// not exist.
func (m *Manager) Read(uniqueIndex, kind string) (*incident.Document, error) {
	raw, err := os.ReadFile(m.Path(uniqueIndex, kind))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSeedNotFound
	}
	if err != nil {
		return nil, err
	}
	return incident.ImportFromDB(raw)
}

// Load walks the fallback chain and returns the first snapshot that exists
// and decodes, along with the kind it came from. A corrupt file is logged
// and skipped so an older snapshot can still serve.
func (m *Manager) Load(uniqueIndex string) (*incident.Document, string, error) {
	for _, kind := range FallbackChain {
		doc, err := m.Read(uniqueIndex, kind)
		if errors.Is(err, ErrSeedNotFound) {
			continue
		}
		if err != nil {
			m.logger.Warnf("seed %s (%s) unreadable: %v", uniqueIndex, kind, err)
			continue
		}
		return doc, kind, nil
	}
	return nil, "", ErrSeedNotFound
}

func (m *Manager) DeleteEditing(uniqueIndex string) error {
	err := os.Remove(m.Path(uniqueIndex, KindEditing))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// DeleteAll removes every snapshot of the incident. Used by the destroy
// cascade.
func (m *Manager) DeleteAll(uniqueIndex string) error {
	var firstErr error
	for _, kind := range FallbackChain {
		if err := os.Remove(m.Path(uniqueIndex, kind)); err != nil && !errors.Is(err, os.ErrNotExist) {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ListIndexes scans the seeds directory and returns the unique indexes that
// have at least one snapshot on disk. Diagnostics uses this to find orphan
// seeds with no database row.
func (m *Manager) ListIndexes() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		idx, ok := indexFromFileName(name)
		if !ok || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	return out, nil
}

func indexFromFileName(name string) (string, bool) {
	if !strings.HasSuffix(name, ".json") {
		return "", false
	}
	base := strings.TrimSuffix(name, ".json")
	for _, kind := range FallbackChain {
		suffix := "_semilla_" + kind
		if strings.HasSuffix(base, suffix) {
			return strings.TrimSuffix(base, suffix), true
		}
	}
	return "", false
}
