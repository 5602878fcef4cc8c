// Package backend defines the contracts between the pipeline engine and
// package sources. A backend supplies four collaborators, one per stage:
// a Resolver that turns requirements into a closed set of concrete items,
// a Fetcher that produces local artifacts, a Builder that turns source
// artifacts into installable ones, and an Installer that places artifacts
// into the target environment.
//
// The engine treats all four as opaque: it sequences calls, enforces
// ordering between dependent items, and translates returned errors into
// item state. Backends own everything behind the call (caching, retries
// within a single call, storage layout).
package backend

import (
	"context"
	"strings"
)

// SplitKey splits a key of the form name@version back into its parts.
func SplitKey(key string) (name, version string, ok bool) {
	i := strings.Index(key, "@")
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

// ResolvedItem is one concrete package at a pinned version, as chosen by a
// Resolver. Deps lists the keys of other items in the same resolved set
// that must be installed before this one.
type ResolvedItem struct {
	// Name is the bare package name, unique within a resolved set.
	Name string

	// Version is the concrete version the resolver pinned.
	Version string

	// Kind tells the engine whether the item needs a build stage.
	Kind ArtifactKind

	// Deps holds keys (name@version) of items this one depends on.
	// Every listed key resolves to another member of the same set.
	Deps []string

	// Origin is a backend-specific locator for the item's payload, for
	// example a path under the index root. The engine never interprets it.
	Origin string
}

// Key returns the item's identity within a run, name@version.
func (it ResolvedItem) Key() string {
	return it.Name + "@" + it.Version
}

// Resolver expands a list of requirements into the full set of items a run
// will process, dependencies included. Resolution is all-or-nothing: any
// error means no set and the run never starts stage work.
type Resolver interface {
	Resolve(ctx context.Context, reqs []Requirement) ([]ResolvedItem, error)
}

// Fetcher obtains an item's payload and stages it as a local artifact.
// Implementations may serve from a local cache without touching the origin.
type Fetcher interface {
	Fetch(ctx context.Context, item ResolvedItem) (*Artifact, error)
}

// Builder transforms a fetched source artifact into an installable one.
// It is only called for items whose Kind requires building.
type Builder interface {
	Build(ctx context.Context, item ResolvedItem, src *Artifact) (*Artifact, error)
}

// Installer places a built (or fetched, for binary kinds) artifact into the
// target environment and records it so Installed can answer later runs.
type Installer interface {
	// Install verifies and unpacks the artifact. After Install returns the
	// backend owns the installed payload; the engine drops its reference.
	Install(ctx context.Context, item ResolvedItem, art *Artifact) error

	// Installed reports whether the keyed item is already present in the
	// target environment.
	Installed(ctx context.Context, key string) (bool, error)
}

// Backends bundles the four collaborators a run needs. All fields must be
// non-nil.
type Backends struct {
	Resolver  Resolver
	Fetcher   Fetcher
	Builder   Builder
	Installer Installer
}
