package store

import (
	"context"
	"encoding/json/v2"
	"sort"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
)

// ProviderStore persists provider configurations.
type ProviderStore interface {
	SaveProvider(ctx context.Context, cfg *domain.ProviderConfig) error
	GetProvider(ctx context.Context, id string) (*domain.ProviderConfig, error)
	ListProviders(ctx context.Context) ([]domain.ProviderConfig, error)
	DeleteProvider(ctx context.Context, id string) error
}

// SaveProvider inserts or updates a provider configuration.
func (s *Store) SaveProvider(_ context.Context, cfg *domain.ProviderConfig) error {
	return s.setJSON(providerKey(cfg.ID), cfg)
}

// GetProvider loads one provider configuration by ID.
func (s *Store) GetProvider(_ context.Context, id string) (*domain.ProviderConfig, error) {
	var cfg domain.ProviderConfig
	if err := s.getJSON(providerKey(id), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListProviders returns all provider configurations sorted by ID.
func (s *Store) ListProviders(_ context.Context) ([]domain.ProviderConfig, error) {
	var configs []domain.ProviderConfig
	err := s.scanJSON([]byte(prefixProvider), func(val []byte) error {
		var cfg domain.ProviderConfig
		if err := json.Unmarshal(val, &cfg); err != nil {
			return err
		}
		configs = append(configs, cfg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].ID < configs[j].ID })
	return configs, nil
}

// DeleteProvider removes a provider configuration.
func (s *Store) DeleteProvider(_ context.Context, id string) error {
	return s.delete(providerKey(id))
}
