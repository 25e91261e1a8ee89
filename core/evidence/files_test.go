package evidence

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"agente-digital/config"
	"agente-digital/core/utils"
)

func testManager(t *testing.T, cfg config.UploadsConfig) *Manager {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	return NewManager(cfg, utils.NewLogger())
}

func TestSaveStoresAndHashes(t *testing.T) {
	m := testManager(t, config.UploadsConfig{ScanEnabled: true})
	content := []byte("contenido de prueba")
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	stored, err := m.Save(1, 2, "evidencias", "captura pantalla.pdf", bytes.NewReader(content), now)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(stored.Path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Fatal("stored content differs")
	}
	sum := sha256.Sum256(content)
	if stored.HashSHA256 != hex.EncodeToString(sum[:]) {
		t.Fatalf("hash = %s", stored.HashSHA256)
	}
	if stored.SizeKB != 1 {
		t.Fatalf("size below 1KB must round up, got %d", stored.SizeKB)
	}
	// Tenant/company/date folder layout.
	for _, part := range []string{"inquilino_1", "empresa_2", "evidencias", "2025", "06"} {
		if !strings.Contains(stored.Path, part) {
			t.Fatalf("path %s missing %s", stored.Path, part)
		}
	}
	// Original name sanitized, spaces replaced.
	if !strings.HasSuffix(stored.Path, "_captura_pantalla.pdf") {
		t.Fatalf("stored name: %s", stored.Path)
	}

	ok, err := m.Verify(stored.Path, stored.HashSHA256)
	if err != nil || !ok {
		t.Fatalf("verify: %v %v", ok, err)
	}
	ok, _ = m.Verify(stored.Path, "deadbeef")
	if ok {
		t.Fatal("verify accepted wrong hash")
	}
}

func TestSaveUniqueNames(t *testing.T) {
	m := testManager(t, config.UploadsConfig{})
	now := time.Now()
	a, err := m.Save(1, 1, "evidencias", "informe.pdf", strings.NewReader("a"), now)
	if err != nil {
		t.Fatalf("save a: %v", err)
	}
	b, err := m.Save(1, 1, "evidencias", "informe.pdf", strings.NewReader("b"), now)
	if err != nil {
		t.Fatalf("save b: %v", err)
	}
	if a.Path == b.Path {
		t.Fatal("same original name collided on disk")
	}
}

func TestSaveRejectsExtension(t *testing.T) {
	m := testManager(t, config.UploadsConfig{})
	for _, name := range []string{"malo.exe", "script.sh", "sin_extension"} {
		if _, err := m.Save(1, 1, "evidencias", name, strings.NewReader("x"), time.Now()); !errors.Is(err, ErrBadExtension) {
			t.Fatalf("%s: expected ErrBadExtension, got %v", name, err)
		}
	}
	// The allow-list from config overrides the default set.
	strict := testManager(t, config.UploadsConfig{AllowedExtensions: []string{".txt"}})
	if _, err := strict.Save(1, 1, "evidencias", "nota.pdf", strings.NewReader("x"), time.Now()); !errors.Is(err, ErrBadExtension) {
		t.Fatalf("expected ErrBadExtension, got %v", err)
	}
	if _, err := strict.Save(1, 1, "evidencias", "nota.txt", strings.NewReader("x"), time.Now()); err != nil {
		t.Fatalf("allowed extension rejected: %v", err)
	}
}

func TestSaveRejectsOversize(t *testing.T) {
	m := testManager(t, config.UploadsConfig{MaxSizeMB: 1})
	big := bytes.Repeat([]byte("x"), 1024*1024+1)
	if _, err := m.Save(1, 1, "evidencias", "grande.pdf", bytes.NewReader(big), time.Now()); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	exact := bytes.Repeat([]byte("x"), 1024*1024)
	if _, err := m.Save(1, 1, "evidencias", "justo.pdf", bytes.NewReader(exact), time.Now()); err != nil {
		t.Fatalf("file at the limit rejected: %v", err)
	}
}

func TestSaveScansContent(t *testing.T) {
	m := testManager(t, config.UploadsConfig{ScanEnabled: true})
	// PE header under a document extension.
	payload := append([]byte{0x4D, 0x5A}, []byte("resto")...)
	if _, err := m.Save(1, 1, "evidencias", "factura.pdf", bytes.NewReader(payload), time.Now()); !errors.Is(err, ErrSuspicious) {
		t.Fatalf("expected ErrSuspicious, got %v", err)
	}

	off := testManager(t, config.UploadsConfig{ScanEnabled: false})
	if _, err := off.Save(1, 1, "evidencias", "factura.pdf", bytes.NewReader(payload), time.Now()); err != nil {
		t.Fatalf("scan disabled must accept: %v", err)
	}
}

func TestRemoveMissingIsNoError(t *testing.T) {
	m := testManager(t, config.UploadsConfig{})
	if err := m.Remove("/no/existe/archivo.pdf"); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
}
