package plugin

import (
	"fmt"
	"strings"
)

// Order sorts descs so every plugin follows the plugins it depends on.
//
// Plugins without dependencies come first in discovery order. The rest are
// scanned repeatedly and appended once each dependency is served by an
// already ordered plugin. Whatever is left when a pass makes no progress is
// appended in discovery order so the caller still sees every plugin.
//
// A leftover plugin whose dependency has no provider at all, directly or
// through other such plugins, is simply unloadable. Any other leftover is
// part of a cycle, and Order returns an error wrapping ErrDependencyCycle
// alongside the degraded order.
func Order(descs []Descriptor) ([]Descriptor, error) {
	ordered := make([]Descriptor, 0, len(descs))
	var deferred []Descriptor
	for _, d := range descs {
		if len(d.Deps) == 0 {
			ordered = append(ordered, d)
		} else {
			deferred = append(deferred, d)
		}
	}

	for progress := true; progress && len(deferred) > 0; {
		progress = false
		remaining := deferred[:0:0]
		for _, d := range deferred {
			if servedBy(d, ordered) {
				ordered = append(ordered, d)
				progress = true
			} else {
				remaining = append(remaining, d)
			}
		}
		deferred = remaining
	}

	if len(deferred) == 0 {
		return ordered, nil
	}

	ordered = append(ordered, deferred...)
	if cyclic := cyclicLeftovers(descs, deferred); len(cyclic) > 0 {
		return ordered, fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(cyclic, ", "))
	}
	return ordered, nil
}

func servedBy(d Descriptor, pool []Descriptor) bool {
	for _, dep := range d.Deps {
		if !anySatisfies(pool, dep) {
			return false
		}
	}
	return true
}

func anySatisfies(pool []Descriptor, dep Dependency) bool {
	for _, p := range pool {
		if p.Satisfies(dep) {
			return true
		}
	}
	return false
}

// cyclicLeftovers returns the IDs of leftovers not explained by a missing
// provider.
func cyclicLeftovers(all, leftovers []Descriptor) []string {
	doomed := make(map[string]bool)
	for changed := true; changed; {
		changed = false
		for _, d := range leftovers {
			if doomed[d.ID] {
				continue
			}
			for _, dep := range d.Deps {
				if providersDoomed(all, dep, doomed) {
					doomed[d.ID] = true
					changed = true
					break
				}
			}
		}
	}

	var cyclic []string
	for _, d := range leftovers {
		if !doomed[d.ID] {
			cyclic = append(cyclic, d.ID)
		}
	}
	return cyclic
}

// providersDoomed reports whether dep has no provider that could ever load.
func providersDoomed(all []Descriptor, dep Dependency, doomed map[string]bool) bool {
	for _, p := range all {
		if p.Satisfies(dep) && !doomed[p.ID] {
			return false
		}
	}
	return true
}
