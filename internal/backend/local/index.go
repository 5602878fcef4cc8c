// Package local implements the backend contracts over a local package
// index: a directory tree of TOML manifests and tarball artifacts, a
// content-addressed artifact cache, and a target environment directory
// with JSON install receipts. All filesystem access goes through afero so
// the whole backend runs against an in-memory filesystem in tests.
//
// The resolution strategy is intentionally small: each package name is
// pinned once, to the highest indexed version satisfying the first
// requirement seen for it; any later requirement the pin cannot satisfy is
// a conflict and fails resolution. Pipeline behavior never depends on this
// strategy, only on the resolved set it produces.
package local

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/afero"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/errors"
	"github.com/gantryhq/gantry/internal/logging"
)

// The four collaborators the pipeline consumes.
var (
	_ backend.Resolver  = (*Index)(nil)
	_ backend.Fetcher   = (*Fetcher)(nil)
	_ backend.Builder   = (*Builder)(nil)
	_ backend.Installer = (*Installer)(nil)
)

// Index resolves requirements against an on-disk package index.
type Index struct {
	fs   afero.Fs
	root string
	log  *logging.Logger
}

// NewIndex creates an Index rooted at dir.
func NewIndex(fs afero.Fs, dir string, log *logging.Logger) *Index {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Index{fs: fs, root: dir, log: log}
}

// Versions lists the indexed versions of a package, ascending.
func (ix *Index) Versions(name string) (semver.Collection, error) {
	entries, err := afero.ReadDir(ix.fs, filepath.Join(ix.root, name))
	if err != nil {
		return nil, fmt.Errorf("read package %s: %w", name, err)
	}

	var versions semver.Collection
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		v, err := semver.NewVersion(entry.Name())
		if err != nil {
			ix.log.Warn("ignoring non-semver version directory",
				"package", name, "dir", entry.Name())
			continue
		}
		versions = append(versions, v)
	}
	sort.Sort(versions)
	return versions, nil
}

// pin is one package name fixed to a concrete version during resolution.
type pin struct {
	version  *semver.Version
	manifest Manifest
	deps     []backend.Requirement
}

// Resolve expands root requirements into the closed set of items the run
// will process. Any failure (unknown package, unsatisfiable constraint,
// conflicting pins, malformed manifest) aborts the whole resolution.
func (ix *Index) Resolve(ctx context.Context, reqs []backend.Requirement) ([]backend.ResolvedItem, error) {
	pins := make(map[string]*pin)
	var names []string // pin order, for deterministic output

	queue := append([]backend.Requirement(nil), reqs...)
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewResolveError("resolution canceled", err)
		}
		req := queue[0]
		queue = queue[1:]

		if p, ok := pins[req.Name]; ok {
			if !req.Matches(p.version) {
				return nil, errors.NewResolveError(
					fmt.Sprintf("version conflict: %s is pinned to %s", req.Name, p.version),
					errors.ErrBadRequirement).WithRequirement(req.String())
			}
			continue
		}

		p, err := ix.pinHighest(req)
		if err != nil {
			return nil, err
		}
		pins[req.Name] = p
		names = append(names, req.Name)
		queue = append(queue, p.deps...)
	}

	items := make([]backend.ResolvedItem, 0, len(names))
	for _, name := range names {
		p := pins[name]
		deps := make([]string, 0, len(p.deps))
		for _, d := range p.deps {
			dp, ok := pins[d.Name]
			if !ok {
				// Every dep was enqueued above; a missing pin is a bug.
				return nil, errors.NewResolveError(
					fmt.Sprintf("internal: dependency %s of %s was never pinned", d.Name, name), nil)
			}
			deps = append(deps, dp.manifest.Name+"@"+dp.version.String())
		}
		items = append(items, backend.ResolvedItem{
			Name:    name,
			Version: p.version.String(),
			Kind:    p.manifest.kind(),
			Deps:    deps,
			Origin:  filepath.Join(ix.root, name, p.version.String(), p.manifest.Artifact),
		})
	}

	ix.log.Debug("resolution complete", "requirements", len(reqs), "items", len(items))
	return items, nil
}

// pinHighest picks the highest indexed version satisfying the requirement
// and loads its manifest.
func (ix *Index) pinHighest(req backend.Requirement) (*pin, error) {
	versions, err := ix.Versions(req.Name)
	if err != nil {
		return nil, errors.NewResolveError(
			fmt.Sprintf("unknown package %s", req.Name), err).WithRequirement(req.String())
	}

	var best *semver.Version
	for i := len(versions) - 1; i >= 0; i-- {
		if req.Matches(versions[i]) {
			best = versions[i]
			break
		}
	}
	if best == nil {
		return nil, errors.NewResolveError(
			fmt.Sprintf("no version of %s satisfies %s (have %s)", req.Name, req.String(), versionList(versions)),
			nil).WithRequirement(req.String())
	}

	data, err := afero.ReadFile(ix.fs, filepath.Join(ix.root, req.Name, best.String(), "manifest.toml"))
	if err != nil {
		return nil, errors.NewResolveError(
			fmt.Sprintf("read manifest for %s@%s", req.Name, best), err).WithRequirement(req.String())
	}
	m, err := parseManifest(data)
	if err != nil {
		return nil, errors.NewResolveError(
			fmt.Sprintf("bad manifest for %s@%s", req.Name, best), err).WithRequirement(req.String())
	}
	if m.Name != req.Name || m.Version != best.String() {
		return nil, errors.NewResolveError(
			fmt.Sprintf("manifest identity %s@%s does not match index path %s/%s", m.Name, m.Version, req.Name, best),
			nil).WithRequirement(req.String())
	}

	deps, err := backend.ParseRequirements(m.Deps)
	if err != nil {
		return nil, errors.NewResolveError(
			fmt.Sprintf("bad dependency in manifest %s@%s", req.Name, best), err).WithRequirement(req.String())
	}

	return &pin{version: best, manifest: m, deps: deps}, nil
}

// versionList renders available versions for error messages.
func versionList(versions semver.Collection) string {
	if len(versions) == 0 {
		return "none"
	}
	s := ""
	for i, v := range versions {
		if i > 0 {
			s += ", "
		}
		s += v.String()
	}
	return s
}
