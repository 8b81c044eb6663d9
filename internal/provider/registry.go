package provider

import (
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	apperrors "github.com/harmoniaapp/harmonia-server/internal/errors"
)

// Registry holds the active providers.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]Provider
	byType map[string][]Provider
	order  []string
	log    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		byID:   make(map[string]Provider),
		byType: make(map[string][]Provider),
		log:    log,
	}
}

// Register adds a provider. Registering the same ID again replaces the
// previous instance, so manifest reloads are idempotent.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := p.ID()
	if _, exists := r.byID[id]; !exists {
		r.order = append(r.order, id)
		r.byType[p.Type()] = append(r.byType[p.Type()], p)
	} else {
		// replace in the type bucket
		bucket := r.byType[p.Type()]
		for i, existing := range bucket {
			if existing.ID() == id {
				bucket[i] = p
			}
		}
	}
	r.byID[id] = p
	r.log.Info("provider registered", "id", id, "type", p.Type())
}

// Deregister removes a provider by ID.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	r.byType[p.Type()] = slices.DeleteFunc(r.byType[p.Type()], func(q Provider) bool {
		return q.ID() == id
	})
	r.log.Info("provider deregistered", "id", id)
}

// Get returns the provider with the given ID.
func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, apperrors.NotFoundf("provider %s not registered", id)
	}
	return p, nil
}

// ByType returns the providers of one type.
func (r *Registry) ByType(providerType string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byType[providerType])
}

// All returns every provider in registration order.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Streamer returns the provider's stream capability. Unknown ids and
// undeclared capabilities both come back false; what that means is the
// caller's decision.
func (r *Registry) Streamer(id string) (Provider, bool) {
	return r.withCapability(id, func(c Capabilities) bool { return c.Stream })
}

// Importer returns the provider's import capability.
func (r *Registry) Importer(id string) (Provider, bool) {
	return r.withCapability(id, func(c Capabilities) bool { return c.Import })
}

// Searcher returns the provider's search capability.
func (r *Registry) Searcher(id string) (Provider, bool) {
	return r.withCapability(id, func(c Capabilities) bool { return c.Search })
}

func (r *Registry) withCapability(id string, has func(Capabilities) bool) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok || !has(p.Capabilities()) {
		return nil, false
	}
	return p, true
}

// ForURL finds the provider claiming a source URL.
func (r *Registry) ForURL(rawURL string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if p := r.byID[id]; p.MatchesURL(rawURL) {
			return p, nil
		}
	}
	return nil, apperrors.NotFoundf("no provider matches %s", rawURL)
}

// Searchable returns the searching providers that should receive a
// query of the given type. The search capability itself is a hard
// gate; the type list is advisory.
func (r *Registry) Searchable(searchType domain.SearchType) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Provider
	for _, id := range r.order {
		p := r.byID[id]
		caps := p.Capabilities()
		if caps.Search && supportsSearchType(caps, searchType) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// supportsSearchType filters only on an explicit declaration: a
// searching provider that says nothing about search types still
// receives the query and may simply return no results.
func supportsSearchType(caps Capabilities, searchType domain.SearchType) bool {
	if len(caps.SearchTypes) == 0 {
		return true
	}
	return slices.Contains(caps.SearchTypes, searchType)
}
