package local

import (
	"github.com/spf13/afero"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/logging"
)

// Dirs names the three directory roots a local backend works across.
type Dirs struct {
	// Index is the package index root (manifests and artifact blobs).
	Index string
	// Cache is the content-addressed artifact cache.
	Cache string
	// Env is the environment directory installs land in.
	Env string
}

// New bundles the four local collaborators over one filesystem.
func New(fs afero.Fs, dirs Dirs, log *logging.Logger) backend.Backends {
	return backend.Backends{
		Resolver:  NewIndex(fs, dirs.Index, log),
		Fetcher:   NewFetcher(fs, dirs.Cache, log),
		Builder:   NewBuilder(fs, dirs.Cache, log),
		Installer: NewInstaller(fs, dirs.Env, log),
	}
}
