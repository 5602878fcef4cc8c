package pipeline

import (
	"time"

	"github.com/gantryhq/gantry/internal/backend"
)

// Key identifies one item within a run: name@version. Duplicate resolved
// entries with the same key are coalesced into a single item.
type Key string

// MakeKey builds the key for a name and concrete version.
func MakeKey(name, version string) Key {
	return Key(name + "@" + version)
}

// String returns the key text.
func (k Key) String() string {
	return string(k)
}

// Item is one unit of pipeline work and its progress. Items are owned by a
// Set; callers always receive copies. Only the Set mutates an item, under
// its lock, so a copy is a consistent view of one moment.
type Item struct {
	Key     Key
	Name    string
	Version string
	Kind    backend.ArtifactKind
	Origin  string

	// Deps holds keys of items that must be installed or skipped before
	// this item may enter installing.
	Deps []Key

	// State is the item's current pipeline position.
	State State

	// Err holds the failure cause once State is failed.
	Err error

	// Cause and Blame are set once State is skipped. Blame names the
	// failed ancestor for dependency skips and is empty for cancellation.
	Cause SkipCause
	Blame Key

	// Artifact is the staged payload handle, set after fetch or build and
	// cleared when the item reaches installed. Between those points the
	// item is its sole owner.
	Artifact *backend.Artifact

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal reports whether the item has finished, successfully or not.
func (it Item) Terminal() bool {
	return it.State.IsTerminal()
}

// Resolved reconstructs the backend view of the item for collaborator
// calls.
func (it Item) Resolved() backend.ResolvedItem {
	deps := make([]string, len(it.Deps))
	for i, d := range it.Deps {
		deps[i] = string(d)
	}
	return backend.ResolvedItem{
		Name:    it.Name,
		Version: it.Version,
		Kind:    it.Kind,
		Deps:    deps,
		Origin:  it.Origin,
	}
}

// FailureText returns the item's failure message, or "" if it did not fail.
func (it Item) FailureText() string {
	if it.Err == nil {
		return ""
	}
	return it.Err.Error()
}

// Change records one applied state transition. The Set returns a Change for
// every successful mutation; callers forward them to the progress layer.
type Change struct {
	Key   Key
	From  State
	To    State
	Stage Stage
	At    time.Time

	// Reason carries the failure message for failed transitions and the
	// skip cause for skipped ones.
	Reason string

	// Blame names the failed ancestor behind a dependency skip.
	Blame Key
}
