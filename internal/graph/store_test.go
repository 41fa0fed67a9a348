package graph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/incidentstack/faultline/internal/cache"
)

func TestStoreNeverNil(t *testing.T) {
	s := NewStore(nil)
	if s.Current() == nil {
		t.Fatalf("expected empty graph, got nil")
	}
	if s.Current().Len() != 0 {
		t.Fatalf("expected empty graph")
	}
}

func TestStoreSwap(t *testing.T) {
	s := NewStore(nil)
	g := New(Document{Services: map[string]ServiceNode{"api": {}}})

	s.Swap(g)
	if s.Current() != g {
		t.Fatalf("swap did not replace snapshot")
	}

	s.Swap(nil)
	if s.Current() != g {
		t.Fatalf("nil swap must keep the previous snapshot")
	}
}

func TestLoaderReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	doc := []byte("services:\n  api:\n    depends_on: [db]\n  db: {}\n")
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	store := NewStore(nil)
	loader := NewLoader(path, store, nil, 0, nil)

	if err := loader.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if store.Current().Len() != 2 {
		t.Fatalf("len = %d, want 2", store.Current().Len())
	}
}

func TestLoaderFallsBackToCache(t *testing.T) {
	provider := cache.NewMemoryProvider()
	doc := []byte("services:\n  api: {}\n")
	if err := provider.Set(context.Background(), "topology:document", doc, 0); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	store := NewStore(nil)
	loader := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"), store, provider, 0, nil)

	if err := loader.Reload(context.Background()); err != nil {
		t.Fatalf("reload with cached copy: %v", err)
	}
	if store.Current().Len() != 1 {
		t.Fatalf("len = %d, want 1", store.Current().Len())
	}
}

func TestLoaderReloadFailureKeepsSnapshot(t *testing.T) {
	g := New(Document{Services: map[string]ServiceNode{"api": {}}})
	store := NewStore(g)
	loader := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"), store, nil, 0, nil)

	if err := loader.Reload(context.Background()); err == nil {
		t.Fatalf("expected reload error")
	}
	if store.Current() != g {
		t.Fatalf("failed reload must keep the previous snapshot")
	}
}
