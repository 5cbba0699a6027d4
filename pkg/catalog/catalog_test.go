package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalogLookup(t *testing.T) {
	cat := DefaultCatalog()

	tt, ok := cat.Lookup("cbc")
	if !ok {
		t.Fatal("expected cbc in default catalog")
	}
	if tt.Display != "Complete Blood Count" {
		t.Fatalf("unexpected display %q", tt.Display)
	}

	if _, ok := cat.Lookup("CBC"); !ok {
		t.Fatal("expected case-insensitive lookup to match")
	}
	if _, ok := cat.Lookup("nope"); ok {
		t.Fatal("expected miss for unknown test type")
	}
}

func TestNormalizeKeepsUnknownTypes(t *testing.T) {
	cat := DefaultCatalog()
	if got := cat.Normalize("urinalysis"); got != "Urinalysis" {
		t.Fatalf("expected canonical display, got %q", got)
	}
	if got := cat.Normalize("custom esoteric assay"); got != "custom esoteric assay" {
		t.Fatalf("expected unknown type unchanged, got %q", got)
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := []byte("test_types:\n  widal:\n    display: Widal Test\n    specimen: blood\n    equipment_type: agglutination\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	tt, ok := cat.Lookup("widal")
	if !ok || tt.Display != "Widal Test" {
		t.Fatalf("unexpected catalog entry %+v ok=%v", tt, ok)
	}
}

func TestLoadEmptyCatalogFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte("test_types: {}\n"), 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty catalog")
	}
}
