package pipeline

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/errors"
)

// Set is the flat indexed table of every item in one run. Identity
// membership is fixed at construction; only item state mutates afterwards,
// and every mutation goes through the Set's lock. Reads hand out copies.
//
// The Set is the single serialization point for state: concurrent stage
// workers call Transition, Fail, and Skip freely, and each call applies
// atomically or not at all.
type Set struct {
	mu         sync.Mutex
	items      map[Key]*Item
	order      []Key
	dependents map[Key][]Key
}

// NewSet builds a Set from resolver output. Entries with duplicate keys are
// coalesced into one item. It fails if an item depends on itself or on a
// key outside the set; cycle detection happens later, in Layers.
func NewSet(resolved []backend.ResolvedItem) (*Set, error) {
	s := &Set{
		items:      make(map[Key]*Item, len(resolved)),
		dependents: make(map[Key][]Key),
	}
	now := time.Now()

	for _, r := range resolved {
		key := MakeKey(r.Name, r.Version)
		if _, ok := s.items[key]; ok {
			continue
		}

		deps := make([]Key, 0, len(r.Deps))
		seen := make(map[Key]bool, len(r.Deps))
		for _, d := range r.Deps {
			dk := Key(d)
			if dk == key {
				return nil, errors.NewGraphError(
					fmt.Sprintf("item %s depends on itself", key), errors.ErrInvalidGraph)
			}
			if seen[dk] {
				continue
			}
			seen[dk] = true
			deps = append(deps, dk)
		}

		s.items[key] = &Item{
			Key:       key,
			Name:      r.Name,
			Version:   r.Version,
			Kind:      r.Kind,
			Origin:    r.Origin,
			Deps:      deps,
			State:     StatePending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.order = append(s.order, key)
	}

	for _, key := range s.order {
		for _, d := range s.items[key].Deps {
			if _, ok := s.items[d]; !ok {
				return nil, errors.NewGraphError(
					fmt.Sprintf("item %s depends on unknown item %s", key, d), errors.ErrInvalidGraph)
			}
			s.dependents[d] = append(s.dependents[d], key)
		}
	}

	return s, nil
}

// Len returns the number of items in the set.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Get returns a copy of the keyed item.
func (s *Set) Get(key Key) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		return Item{}, errors.Wrapf(errors.ErrItemNotFound, "%s", key)
	}
	return *it, nil
}

// Keys returns all keys in insertion order.
func (s *Set) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]Key, len(s.order))
	copy(keys, s.order)
	return keys
}

// Items returns copies of all items in insertion order.
func (s *Set) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]Item, 0, len(s.order))
	for _, key := range s.order {
		items = append(items, *s.items[key])
	}
	return items
}

// Counts tallies items by state.
func (s *Set) Counts() map[State]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[State]int)
	for _, it := range s.items {
		counts[it.State]++
	}
	return counts
}

// AllTerminal reports whether every item has finished.
func (s *Set) AllTerminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.items {
		if !it.State.IsTerminal() {
			return false
		}
	}
	return true
}

// Transition advances an item along the success chain. It rejects backward
// or sideways moves, any move off a terminal state, and entry into
// installing while a dependency is neither installed nor skipped. Failed
// and skipped are reached through Fail and Skip, never Transition.
//
// On entry into installed the item's artifact handle is dropped: ownership
// has passed to the installer.
func (s *Set) Transition(key Key, to State) (Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		return Change{}, errors.Wrapf(errors.ErrItemNotFound, "%s", key)
	}
	if to == StateFailed || to == StateSkipped {
		return Change{}, errors.Wrapf(errors.ErrInvalidTransition,
			"%s: %s is reached via Fail or Skip", key, to)
	}
	if it.State.IsTerminal() {
		return Change{}, errors.Wrapf(errors.ErrInvalidTransition,
			"%s: already terminal in %s", key, it.State)
	}
	if !canAdvance(it.State, to) {
		return Change{}, errors.Wrapf(errors.ErrInvalidTransition,
			"%s: %s -> %s", key, it.State, to)
	}
	if to == StateInstalling {
		for _, d := range it.Deps {
			if st := s.items[d].State; st != StateInstalled && st != StateSkipped {
				return Change{}, errors.Wrapf(errors.ErrInvalidTransition,
					"%s: dependency %s not settled (state %s)", key, d, st)
			}
		}
	}

	ch := Change{Key: key, From: it.State, To: to, Stage: stageFor(to), At: time.Now()}
	it.State = to
	it.UpdatedAt = ch.At
	if to == StateInstalled {
		it.Artifact = nil
	}
	return ch, nil
}

// SetArtifact attaches a staged payload handle to a live item.
func (s *Set) SetArtifact(key Key, art *backend.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		return errors.Wrapf(errors.ErrItemNotFound, "%s", key)
	}
	if it.State.IsTerminal() {
		return errors.Wrapf(errors.ErrInvalidTransition,
			"%s: cannot attach artifact in %s", key, it.State)
	}
	it.Artifact = art
	it.UpdatedAt = time.Now()
	return nil
}

// Fail moves a live item to failed, recording the stage and cause.
func (s *Set) Fail(key Key, stage Stage, cause error) (Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		return Change{}, errors.Wrapf(errors.ErrItemNotFound, "%s", key)
	}
	if it.State.IsTerminal() {
		return Change{}, errors.Wrapf(errors.ErrInvalidTransition,
			"%s: already terminal in %s", key, it.State)
	}
	if cause == nil {
		cause = errors.New("unspecified failure")
	}

	ch := Change{
		Key:    key,
		From:   it.State,
		To:     StateFailed,
		Stage:  stage,
		At:     time.Now(),
		Reason: cause.Error(),
	}
	it.State = StateFailed
	it.Err = cause
	it.UpdatedAt = ch.At
	return ch, nil
}

// Skip moves a live item to skipped.
func (s *Set) Skip(key Key, cause SkipCause, blame Key) (Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		return Change{}, errors.Wrapf(errors.ErrItemNotFound, "%s", key)
	}
	if it.State.IsTerminal() {
		return Change{}, errors.Wrapf(errors.ErrInvalidTransition,
			"%s: already terminal in %s", key, it.State)
	}
	return s.skipLocked(it, cause, blame), nil
}

// SkipDependents skips every non-terminal item that depends on key,
// directly or transitively, blaming key. Items already terminal keep their
// state and blame. Returns one Change per item actually skipped.
func (s *Set) SkipDependents(key Key, cause SkipCause) ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; !ok {
		return nil, errors.Wrapf(errors.ErrItemNotFound, "%s", key)
	}

	var changes []Change
	visited := map[Key]bool{key: true}
	queue := append([]Key(nil), s.dependents[key]...)
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if visited[k] {
			continue
		}
		visited[k] = true

		if it := s.items[k]; !it.State.IsTerminal() {
			changes = append(changes, s.skipLocked(it, cause, key))
		}
		queue = append(queue, s.dependents[k]...)
	}
	return changes, nil
}

// SkipRemaining skips every non-terminal item in the set. Used to drain a
// canceled run once in-flight work has settled.
func (s *Set) SkipRemaining(cause SkipCause) []Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changes []Change
	for _, key := range s.order {
		if it := s.items[key]; !it.State.IsTerminal() {
			changes = append(changes, s.skipLocked(it, cause, ""))
		}
	}
	return changes
}

// skipLocked applies a skip to a live item. Caller holds s.mu and has
// checked the item is not terminal.
func (s *Set) skipLocked(it *Item, cause SkipCause, blame Key) Change {
	ch := Change{
		Key:    it.Key,
		From:   it.State,
		To:     StateSkipped,
		At:     time.Now(),
		Reason: cause.String(),
		Blame:  blame,
	}
	it.State = StateSkipped
	it.Cause = cause
	it.Blame = blame
	it.UpdatedAt = ch.At
	return ch
}

// sortKeys orders keys lexically, in place.
func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
}
