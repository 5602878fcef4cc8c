package pipeline

import "github.com/gantryhq/gantry/internal/errors"

// Layers partitions the set into dependency layers: every item in layer k
// depends only on items in layers before k. Items inside one layer are
// mutually independent and may run concurrently. Keys within a layer are
// sorted, so the partition is deterministic for a given set.
//
// A valid resolution never contains a cycle; if one is present anyway the
// returned error wraps ErrInvalidGraph and names the cycle path.
func (s *Set) Layers() ([][]Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return nil, nil
	}

	indegree := make(map[Key]int, len(s.items))
	for key, it := range s.items {
		indegree[key] = len(it.Deps)
	}

	var current []Key
	for key, deg := range indegree {
		if deg == 0 {
			current = append(current, key)
		}
	}

	var layers [][]Key
	placed := 0
	for len(current) > 0 {
		sortKeys(current)
		layers = append(layers, current)
		placed += len(current)

		var next []Key
		for _, key := range current {
			for _, dep := range s.dependents[key] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}

	if placed != len(s.items) {
		remaining := make(map[Key]bool, len(s.items)-placed)
		for key, deg := range indegree {
			if deg > 0 {
				remaining[key] = true
			}
		}
		return nil, errors.NewGraphError("dependency cycle detected", errors.ErrInvalidGraph).
			WithCycle(s.cycleLocked(remaining))
	}

	return layers, nil
}

// cycleLocked extracts one cycle path from the nodes Kahn could not place.
// Every remaining node has at least one remaining dependency, so walking
// dependencies inside the remaining set must revisit a node. Caller holds
// s.mu.
func (s *Set) cycleLocked(remaining map[Key]bool) []string {
	starts := make([]Key, 0, len(remaining))
	for key := range remaining {
		starts = append(starts, key)
	}
	sortKeys(starts)

	seen := make(map[Key]int)
	var path []Key
	cur := starts[0]
	for {
		if pos, ok := seen[cur]; ok {
			cycle := make([]string, 0, len(path)-pos+1)
			for _, k := range path[pos:] {
				cycle = append(cycle, string(k))
			}
			return append(cycle, string(cur))
		}
		seen[cur] = len(path)
		path = append(path, cur)

		deps := append([]Key(nil), s.items[cur].Deps...)
		sortKeys(deps)
		for _, d := range deps {
			if remaining[d] {
				cur = d
				break
			}
		}
	}
}
