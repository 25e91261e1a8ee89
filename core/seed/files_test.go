package seed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"agente-digital/core/incident"
	"agente-digital/core/utils"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(t.TempDir(), utils.NewLogger())
}

func testDoc(title string) *incident.Document {
	doc := incident.New(time.Now(), "u")
	doc.Metadata.UniqueIndex = "1_12345678_1_1_PRUEBA"
	doc.Classification.Title = title
	return doc
}

func TestWriteAndRead(t *testing.T) {
	m := testManager(t)
	if err := m.Write("1_12345678_1_1_PRUEBA", KindOriginal, testDoc("Original")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := m.Read("1_12345678_1_1_PRUEBA", KindOriginal)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Classification.Title != "Original" {
		t.Fatalf("title = %q", got.Classification.Title)
	}
	if _, err := m.Read("1_12345678_1_1_PRUEBA", KindBase); err != ErrSeedNotFound {
		t.Fatalf("expected ErrSeedNotFound, got %v", err)
	}
	// No stray temp files after a write.
	entries, _ := os.ReadDir(m.Dir())
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestLoadFallbackChain(t *testing.T) {
	m := testManager(t)
	idx := "2_12345678_1_1_PRUEBA"

	m.Write(idx, KindOriginal, testDoc("original"))
	m.Write(idx, KindBase, testDoc("base"))
	m.Write(idx, KindEditing, testDoc("editing"))

	doc, kind, err := m.Load(idx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if kind != KindEditing || doc.Classification.Title != "editing" {
		t.Fatalf("got %s/%s", kind, doc.Classification.Title)
	}

	if err := m.DeleteEditing(idx); err != nil {
		t.Fatalf("delete editing: %v", err)
	}
	_, kind, _ = m.Load(idx)
	if kind != KindBase {
		t.Fatalf("after delete editing: %s", kind)
	}

	os.Remove(m.Path(idx, KindBase))
	_, kind, _ = m.Load(idx)
	if kind != KindOriginal {
		t.Fatalf("after delete base: %s", kind)
	}

	if err := m.DeleteAll(idx); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if _, _, err := m.Load(idx); err != ErrSeedNotFound {
		t.Fatalf("expected ErrSeedNotFound, got %v", err)
	}
}

func TestLoadSkipsCorruptSnapshot(t *testing.T) {
	m := testManager(t)
	idx := "3_12345678_1_1_PRUEBA"
	m.Write(idx, KindBase, testDoc("base intacta"))
	if err := os.WriteFile(m.Path(idx, KindEditing), []byte("{corrupto"), 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}

	doc, kind, err := m.Load(idx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if kind != KindBase || doc.Classification.Title != "base intacta" {
		t.Fatalf("corrupt editing not skipped: %s/%s", kind, doc.Classification.Title)
	}
}

func TestDeleteEditingMissingIsNoError(t *testing.T) {
	m := testManager(t)
	if err := m.DeleteEditing("nunca_existio"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestListIndexes(t *testing.T) {
	m := testManager(t)
	m.Write("1_11111111_1_1_UNO", KindOriginal, testDoc("a"))
	m.Write("1_11111111_1_1_UNO", KindBase, testDoc("a"))
	m.Write("2_22222222_1_1_DOS", KindEditing, testDoc("b"))
	os.WriteFile(filepath.Join(m.Dir(), "notas.txt"), []byte("x"), 0o644)

	got, err := m.ListIndexes()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("indexes = %v", got)
	}

	empty := NewManager(filepath.Join(t.TempDir(), "no_existe"), utils.NewLogger())
	if out, err := empty.ListIndexes(); err != nil || out != nil {
		t.Fatalf("missing dir: %v %v", out, err)
	}
}
