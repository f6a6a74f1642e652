package graph

import (
	"sort"
	"sync"
)

// LockAll takes the exclusive lock of every given neuron in ascending ID
// order (temporaries first, duplicates once) and returns a function that
// releases them. Callers that always go through LockAll cannot deadlock
// against each other; mixing other lock orders is the caller's problem.
func LockAll(neurons ...*Neuron) func() {
	seen := make(map[*Neuron]struct{}, len(neurons))
	ordered := make([]*Neuron, 0, len(neurons))
	for _, n := range neurons {
		if n == nil {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		ordered = append(ordered, n)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID() < ordered[j].ID() })

	for _, n := range ordered {
		n.exclusive.Lock()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(ordered) - 1; i >= 0; i-- {
				ordered[i].exclusive.Unlock()
			}
		})
	}
}
