package local

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"

	"github.com/gantryhq/gantry/internal/backend"
)

// Manifest describes one package version in the index. It lives at
// <index>/<name>/<version>/manifest.toml next to the artifact it names.
type Manifest struct {
	Name     string   `toml:"name"`
	Version  string   `toml:"version"`
	Kind     string   `toml:"kind"`
	Artifact string   `toml:"artifact"`
	Deps     []string `toml:"deps"`
}

// parseManifest decodes and validates manifest TOML.
func parseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Name == "" {
		return Manifest{}, fmt.Errorf("manifest missing name")
	}
	if m.Version == "" {
		return Manifest{}, fmt.Errorf("manifest %s missing version", m.Name)
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s has bad version %q: %w", m.Name, m.Version, err)
	}
	if m.Artifact == "" {
		return Manifest{}, fmt.Errorf("manifest %s@%s missing artifact", m.Name, m.Version)
	}
	if _, err := backend.ParseArtifactKind(m.Kind); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s@%s: %w", m.Name, m.Version, err)
	}
	return m, nil
}

// kind returns the manifest's artifact kind, defaulting to source.
func (m Manifest) kind() backend.ArtifactKind {
	k, err := backend.ParseArtifactKind(m.Kind)
	if err != nil {
		return backend.KindSource
	}
	return k
}
