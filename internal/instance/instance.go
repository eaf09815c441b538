// Package instance manages provider instances (a catalog entry bound to a
// concrete, credentialed endpoint) and their credentials.
package instance

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/runlace/core/internal/storage"
	"github.com/runlace/core/pkg/types"
)

// Manager persists provider instances and their credentials through the
// atomic JSON storage layer, matching the catalog package's approach.
type Manager struct {
	store *storage.Storage
}

// New wraps a storage instance.
func New(store *storage.Storage) *Manager {
	return &Manager{store: store}
}

// Create registers a new provider instance and stores its credential
// separately, at 0600 permissions (enforced by storage.Storage.Put).
func (m *Manager) Create(ctx context.Context, catalogID, label, baseURL string, cred types.Credential) (*types.ProviderInstance, error) {
	inst := &types.ProviderInstance{
		ID:        types.ProviderInstanceID(ulid.Make().String()),
		CatalogID: catalogID,
		Label:     label,
		BaseURL:   baseURL,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := m.store.Put(ctx, []string{"provider-instances", string(inst.ID)}, inst); err != nil {
		return nil, fmt.Errorf("instance: put instance: %w", err)
	}
	cred.ProviderInstanceID = inst.ID
	if err := m.store.Put(ctx, []string{"credentials", string(inst.ID)}, cred); err != nil {
		return nil, fmt.Errorf("instance: put credential: %w", err)
	}
	return inst, nil
}

// Get loads a provider instance by id.
func (m *Manager) Get(ctx context.Context, id types.ProviderInstanceID) (*types.ProviderInstance, error) {
	var inst types.ProviderInstance
	if err := m.store.Get(ctx, []string{"provider-instances", string(id)}, &inst); err != nil {
		return nil, fmt.Errorf("instance: get: %w", err)
	}
	return &inst, nil
}

// Credential loads the credential for a provider instance.
func (m *Manager) Credential(ctx context.Context, id types.ProviderInstanceID) (*types.Credential, error) {
	var cred types.Credential
	if err := m.store.Get(ctx, []string{"credentials", string(id)}, &cred); err != nil {
		return nil, fmt.Errorf("instance: get credential: %w", err)
	}
	return &cred, nil
}

// List returns every configured provider instance.
func (m *Manager) List(ctx context.Context) ([]types.ProviderInstance, error) {
	ids, err := m.store.List(ctx, []string{"provider-instances"})
	if err != nil {
		return nil, fmt.Errorf("instance: list: %w", err)
	}
	out := make([]types.ProviderInstance, 0, len(ids))
	for _, id := range ids {
		inst, err := m.Get(ctx, types.ProviderInstanceID(id))
		if err != nil {
			continue
		}
		out = append(out, *inst)
	}
	return out, nil
}

// Delete removes a provider instance and its credential.
func (m *Manager) Delete(ctx context.Context, id types.ProviderInstanceID) error {
	if err := m.store.Delete(ctx, []string{"credentials", string(id)}); err != nil {
		return fmt.Errorf("instance: delete credential: %w", err)
	}
	if err := m.store.Delete(ctx, []string{"provider-instances", string(id)}); err != nil {
		return fmt.Errorf("instance: delete instance: %w", err)
	}
	return nil
}
