package catalog

import (
	"context"
	"testing"

	"github.com/runlace/core/internal/storage"
	"github.com/runlace/core/pkg/types"
)

func TestLoad_ShippedEntries(t *testing.T) {
	c, err := Load(context.Background(), storage.New(t.TempDir()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	entry, ok := c.Get("anthropic/claude-sonnet-4")
	if !ok {
		t.Fatal("expected shipped entry anthropic/claude-sonnet-4 to be present")
	}
	if entry.ProviderType != "anthropic" || entry.ModelID != "claude-sonnet-4-20250514" {
		t.Errorf("unexpected entry: %+v", entry)
	}

	all := c.All()
	if len(all) < 3 {
		t.Fatalf("expected at least 3 shipped entries, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID > all[i].ID {
			t.Fatalf("All() not sorted by id: %v", all)
		}
	}
}

func TestLoad_Get_Missing(t *testing.T) {
	c, err := Load(context.Background(), storage.New(t.TempDir()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := c.Get("does/not-exist"); ok {
		t.Fatal("expected missing entry to report ok=false")
	}
}

func TestPutUserEntry_OverlaysShippedAndPersists(t *testing.T) {
	dir := t.TempDir()
	store := storage.New(dir)
	ctx := context.Background()

	c, err := Load(ctx, store)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	custom := types.ProviderCatalogEntry{ID: "custom/local-model", ProviderType: "openai", Name: "Local Model", ModelID: "local-1"}
	if err := c.PutUserEntry(ctx, custom); err != nil {
		t.Fatalf("PutUserEntry: %v", err)
	}

	got, ok := c.Get("custom/local-model")
	if !ok || got.Name != "Local Model" {
		t.Fatalf("expected overlay entry visible in memory, got %+v ok=%v", got, ok)
	}

	// Reload from a fresh Catalog backed by the same storage dir to confirm
	// the overlay survived a restart.
	reloaded, err := Load(ctx, store)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, ok = reloaded.Get("custom/local-model")
	if !ok || got.ModelID != "local-1" {
		t.Fatalf("expected persisted overlay after reload, got %+v ok=%v", got, ok)
	}
}

func TestPutUserEntry_OverridesShippedByID(t *testing.T) {
	ctx := context.Background()
	c, err := Load(ctx, storage.New(t.TempDir()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	override := types.ProviderCatalogEntry{ID: "anthropic/claude-sonnet-4", ProviderType: "anthropic", Name: "Pinned Sonnet 4", ModelID: "claude-sonnet-4-20250514"}
	if err := c.PutUserEntry(ctx, override); err != nil {
		t.Fatalf("PutUserEntry: %v", err)
	}
	got, ok := c.Get("anthropic/claude-sonnet-4")
	if !ok || got.Name != "Pinned Sonnet 4" {
		t.Fatalf("expected user overlay to win last-wins, got %+v", got)
	}
}
