package delivery

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestLocalFileStoreRoundTrip(t *testing.T) {
	store, err := NewLocalFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	ref, err := store.Save(ctx, "blood panel.pdf", strings.NewReader("result-bytes"))
	if err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	if !strings.HasSuffix(ref, "_blood_panel.pdf") {
		t.Fatalf("expected sanitized reference, got %q", ref)
	}

	reader, err := store.Open(ctx, ref)
	if err != nil {
		t.Fatalf("failed to open: %v", err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if string(content) != "result-bytes" {
		t.Fatalf("unexpected content %q", content)
	}

	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, err := store.Open(ctx, ref); err == nil {
		t.Fatal("expected open after delete to fail")
	}
}

func TestLocalFileStoreRejectsPathTraversal(t *testing.T) {
	store, err := NewLocalFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if _, err := store.Open(context.Background(), "../etc/passwd"); err == nil {
		t.Fatal("expected traversal reference to be rejected")
	}
	if err := store.Delete(context.Background(), "../somewhere"); err == nil {
		t.Fatal("expected traversal delete to be rejected")
	}
}
