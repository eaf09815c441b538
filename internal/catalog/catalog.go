// Package catalog loads the shipped provider/model catalog and overlays
// user-defined entries on top of it, id-keyed, last-wins.
package catalog

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/runlace/core/internal/storage"
	"github.com/runlace/core/pkg/types"
)

//go:embed shipped/*.json
var shipped embed.FS

// Catalog holds the merged set of provider catalog entries available to a
// session: shipped entries plus a user overlay stored under
// user-catalog/<id>.json.
type Catalog struct {
	store   *storage.Storage
	entries map[string]types.ProviderCatalogEntry
}

// Load reads the embedded shipped catalog and overlays any user entries
// found in storage.
func Load(ctx context.Context, store *storage.Storage) (*Catalog, error) {
	c := &Catalog{store: store, entries: make(map[string]types.ProviderCatalogEntry)}

	files, err := shipped.ReadDir("shipped")
	if err != nil {
		return nil, fmt.Errorf("catalog: read shipped dir: %w", err)
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := shipped.ReadFile(path.Join("shipped", f.Name()))
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", f.Name(), err)
		}
		var entry types.ProviderCatalogEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("catalog: parse %s: %w", f.Name(), err)
		}
		c.entries[entry.ID] = entry
	}

	if store != nil {
		ids, err := store.List(ctx, []string{"user-catalog"})
		if err == nil {
			for _, id := range ids {
				var entry types.ProviderCatalogEntry
				if err := store.Get(ctx, []string{"user-catalog", id}, &entry); err == nil {
					c.entries[entry.ID] = entry
				}
			}
		}
	}

	return c, nil
}

// Get returns the catalog entry for id, if present.
func (c *Catalog) Get(id string) (types.ProviderCatalogEntry, bool) {
	e, ok := c.entries[id]
	return e, ok
}

// All returns every entry, sorted by id for stable output.
func (c *Catalog) All() []types.ProviderCatalogEntry {
	out := make([]types.ProviderCatalogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PutUserEntry adds or replaces a user catalog overlay entry, persisted
// through the atomic JSON storage layer.
func (c *Catalog) PutUserEntry(ctx context.Context, entry types.ProviderCatalogEntry) error {
	if err := c.store.Put(ctx, []string{"user-catalog", entry.ID}, entry); err != nil {
		return fmt.Errorf("catalog: put user entry: %w", err)
	}
	c.entries[entry.ID] = entry
	return nil
}
