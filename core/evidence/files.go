// Package evidence handles evidence uploads on disk: tenant-scoped folder
// layout, extension and size limits, SHA-256 fingerprinting and a small
// content scan for executable payloads smuggled under a document extension.
package evidence

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agente-digital/config"
	"agente-digital/core/utils"
)

var (
	ErrTooLarge     = errors.New("evidence: file exceeds size limit")
	ErrBadExtension = errors.New("evidence: extension not allowed")
	ErrSuspicious   = errors.New("evidence: content rejected by scan")
)

var defaultExtensions = []string{
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".txt", ".csv",
	".png", ".jpg", ".jpeg", ".zip", ".eml", ".msg", ".log", ".json",
}

// magic prefixes of formats that never belong in an evidence upload no
// matter what the file is called.
var blockedPrefixes = [][]byte{
	{0x4D, 0x5A},             // PE executable
	{0x7F, 0x45, 0x4C, 0x46}, // ELF
	{0xCA, 0xFE, 0xBA, 0xBE}, // Mach-O fat / Java class
}

type StoredFile struct {
	Path       string
	FileName   string
	HashSHA256 string
	SizeKB     int64
}

type Manager struct {
	cfg    config.UploadsConfig
	logger *utils.Logger
}

func NewManager(cfg config.UploadsConfig, logger *utils.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logger}
}

func (m *Manager) allowedExtensions() []string {
	if len(m.cfg.AllowedExtensions) > 0 {
		return m.cfg.AllowedExtensions
	}
	return defaultExtensions
}

func (m *Manager) maxBytes() int64 {
	mb := m.cfg.MaxSizeMB
	if mb <= 0 {
		mb = 10
	}
	return int64(mb) * 1024 * 1024
}

// FolderFor builds the storage folder for a tenant, company and file class.
// The date split keeps single directories from growing without bound.
func (m *Manager) FolderFor(tenantID, companyID int64, kind string, now time.Time) string {
	now = now.UTC()
	return filepath.Join(m.cfg.Dir,
		fmt.Sprintf("inquilino_%d", tenantID),
		fmt.Sprintf("empresa_%d", companyID),
		kind,
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", int(now.Month())))
}

// Save validates and writes one upload, returning its final path, hash and
// size. The stored name is prefixed with a random token so two uploads with
// the same original name never collide.
func (m *Manager) Save(tenantID, companyID int64, kind, fileName string, r io.Reader, now time.Time) (*StoredFile, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !m.extensionAllowed(ext) {
		return nil, ErrBadExtension
	}

	// Read one byte past the limit so oversize is detected without
	// trusting a client-declared length.
	data, err := io.ReadAll(io.LimitReader(r, m.maxBytes()+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > m.maxBytes() {
		return nil, ErrTooLarge
	}
	if m.cfg.ScanEnabled {
		if err := scanContent(data); err != nil {
			m.logger.Warnf("evidencia rechazada por escaneo: %s", fileName)
			return nil, err
		}
	}

	folder := m.FolderFor(tenantID, companyID, kind, now)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, err
	}
	token, err := utils.RandString(8)
	if err != nil {
		return nil, err
	}
	stored := token + "_" + sanitizeName(fileName)
	target := filepath.Join(folder, stored)
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	sizeKB := int64(len(data)) / 1024
	if sizeKB == 0 && len(data) > 0 {
		sizeKB = 1
	}
	return &StoredFile{
		Path:       target,
		FileName:   fileName,
		HashSHA256: hex.EncodeToString(sum[:]),
		SizeKB:     sizeKB,
	}, nil
}

// Verify recomputes the SHA-256 of a stored file and compares it against the
// recorded hash. Diagnostics calls this when reconciling rows and disk.
func (m *Manager) Verify(path, wantHash string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(h.Sum(nil)) == wantHash, nil
}

func (m *Manager) Remove(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (m *Manager) extensionAllowed(ext string) bool {
	if ext == "" {
		return false
	}
	for _, allowed := range m.allowedExtensions() {
		if strings.EqualFold(strings.TrimSpace(allowed), ext) {
			return true
		}
	}
	return false
}

func scanContent(data []byte) error {
	for _, prefix := range blockedPrefixes {
		if bytes.HasPrefix(data, prefix) {
			return ErrSuspicious
		}
	}
	return nil
}

func sanitizeName(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" || out == "." {
		out = "archivo"
	}
	return out
}
