package catalog

import (
	"fmt"
	"sort"
)

// Dependencies is the direct permission dependency relation. Keys require
// every code in their value slice to be held for the key to be meaningful.
type Dependencies map[string][]string

// SeedDependencies returns a copy of the seeded dependency relation.
func SeedDependencies() Dependencies {
	deps := make(Dependencies, len(seedDependencies))
	for code, required := range seedDependencies {
		deps[code] = append([]string(nil), required...)
	}
	return deps
}

// Of returns the direct dependencies of code. Transitive dependencies are
// intentionally not expanded; callers that need closure walk the chain.
func (d Dependencies) Of(code string) []string {
	return d[code]
}

// Missing reports which direct dependencies of the requested codes are not
// present in the held set. The result is sorted and deduplicated.
func (d Dependencies) Missing(held map[string]struct{}, codes ...string) []string {
	seen := make(map[string]struct{})
	var missing []string
	for _, code := range codes {
		for _, dep := range d[code] {
			if _, ok := held[dep]; ok {
				continue
			}
			if _, dup := seen[dep]; dup {
				continue
			}
			seen[dep] = struct{}{}
			missing = append(missing, dep)
		}
	}
	sort.Strings(missing)
	return missing
}

// Validate checks the relation for cycles. A cyclic dependency would make
// "has all dependencies" unsatisfiable for every user, so seeding refuses
// to proceed with one. The walk is iterative to stay safe on deep chains.
func (d Dependencies) Validate() error {
	const (
		white = 0 // unvisited
		grey  = 1 // on stack
		black = 2 // done
	)
	state := make(map[string]int, len(d))

	var codes []string
	for code := range d {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, start := range codes {
		if state[start] != white {
			continue
		}
		type frame struct {
			code string
			next int
		}
		stack := []frame{{code: start}}
		state[start] = grey
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			required := d[top.code]
			if top.next >= len(required) {
				state[top.code] = black
				stack = stack[:len(stack)-1]
				continue
			}
			dep := required[top.next]
			top.next++
			switch state[dep] {
			case grey:
				return fmt.Errorf("catalog: dependency cycle through %q and %q", top.code, dep)
			case white:
				state[dep] = grey
				stack = append(stack, frame{code: dep})
			}
		}
	}
	return nil
}
