package provider

import (
	"encoding/json/v2"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	apperrors "github.com/harmoniaapp/harmonia-server/internal/errors"
)

// ConfigField declares one admin-configurable value of a provider. The
// schema drives the configuration form of the (external) admin UI.
type ConfigField struct {
	Name     string `json:"name" validate:"required"`
	Type     string `json:"type" validate:"required,oneof=boolean string secret string-list number"`
	Label    string `json:"label" validate:"required"`
	Required bool   `json:"required,omitempty"`
}

// Manifest is the on-disk description of one provider instance.
// Dropping a manifest file into the manifest directory activates the
// provider; removing it deactivates it.
type Manifest struct {
	ID      string `json:"id" validate:"required,min=2,max=64"`
	Type    string `json:"type" validate:"required,oneof=local youtube soundcloud bandcamp spotify"`
	Name    string `json:"name" validate:"required,max=128"`
	Enabled *bool  `json:"enabled,omitempty"`

	// Features narrows what the provider instance is allowed to do.
	// Empty means everything the implementation supports.
	Features     []string            `json:"features,omitempty" validate:"dive,oneof=search stream import"`
	SearchTypes  []domain.SearchType `json:"searchTypes,omitempty" validate:"dive,oneof=track album artist playlist"`
	ImportTypes  []domain.SearchType `json:"importTypes,omitempty" validate:"dive,oneof=track album artist playlist"`
	ConfigSchema []ConfigField       `json:"configSchema,omitempty" validate:"dive"`
	Config       map[string]string   `json:"config,omitempty"`
}

// IsEnabled treats a missing enabled field as on.
func (m Manifest) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// Credential returns a named config value.
func (m Manifest) Credential(name string) string {
	return m.Config[name]
}

// WithConfig overlays stored configuration values on the manifest's
// own. Admin-entered values win over what the manifest file carries.
func (m Manifest) WithConfig(overrides map[string]string) Manifest {
	if len(overrides) == 0 {
		return m
	}
	merged := make(map[string]string, len(m.Config)+len(overrides))
	for k, v := range m.Config {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	m.Config = merged
	return m
}

// HasFeature reports whether the manifest allows a feature. An empty
// features list allows everything.
func (m Manifest) HasFeature(name string) bool {
	if len(m.Features) == 0 {
		return true
	}
	for _, f := range m.Features {
		if f == name {
			return true
		}
	}
	return false
}

// Restrict intersects the implementation's capabilities with what the
// manifest declares.
func (m Manifest) Restrict(caps Capabilities) Capabilities {
	caps.Stream = caps.Stream && m.HasFeature("stream")
	caps.Import = caps.Import && m.HasFeature("import")
	caps.Search = caps.Search && m.HasFeature("search")
	if len(m.SearchTypes) > 0 {
		caps.SearchTypes = m.SearchTypes
	}
	if len(m.ImportTypes) > 0 {
		caps.ImportTypes = m.ImportTypes
	}
	return caps
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseManifest decodes and validates one manifest document.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeValidation, "malformed provider manifest")
	}
	if err := validate.Struct(&m); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeValidation, "invalid provider manifest")
	}
	for _, f := range m.ConfigSchema {
		if f.Required && m.Config[f.Name] == "" {
			return nil, apperrors.Validationf("manifest %s: missing required config %q", m.ID, f.Name)
		}
	}
	return &m, nil
}

// LoadManifests reads every *.json manifest in dir. A missing
// directory yields an empty set, not an error: providers are optional.
func LoadManifests(dir string) ([]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest dir: %w", err)
	}

	var manifests []Manifest
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read manifest %s: %w", entry.Name(), err)
		}
		m, err := ParseManifest(data)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", entry.Name(), err)
		}
		manifests = append(manifests, *m)
	}
	return manifests, nil
}
