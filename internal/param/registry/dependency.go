package registry

import (
	"fmt"
	"sort"
)

// AddSystemDependency records that dependent relies on dependency. The graph
// is a hint for ordering and diagnostics; nothing enforces it.
func (r *Registry) AddSystemDependency(dependent, dependency SystemType) error {
	if !dependent.Valid() || !dependency.Valid() {
		return fmt.Errorf("%w: %s -> %s", ErrUnknownSystem, dependent, dependency)
	}
	if dependent == dependency {
		return fmt.Errorf("%w: %s depends on itself", ErrDependencyCycle, dependent)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.deps[dependent]
	if set == nil {
		set = make(map[SystemType]struct{})
		r.deps[dependent] = set
	}
	set[dependency] = struct{}{}
	return nil
}

// RemoveSystemDependency drops a dependency edge.
func (r *Registry) RemoveSystemDependency(dependent, dependency SystemType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.deps[dependent], dependency)
	if len(r.deps[dependent]) == 0 {
		delete(r.deps, dependent)
	}
}

// SystemDependencies returns the systems st depends on.
func (r *Registry) SystemDependencies(st SystemType) []SystemType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedSystems(r.deps[st])
}

// DependentSystems returns the systems that depend on st.
func (r *Registry) DependentSystems(st SystemType) []SystemType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(map[SystemType]struct{})
	for dependent, deps := range r.deps {
		if _, ok := deps[st]; ok {
			set[dependent] = struct{}{}
		}
	}
	return sortedSystems(set)
}

// UpdateOrder returns the registered systems ordered so that every system
// follows the systems it depends on. Ties keep declaration order.
func (r *Registry) UpdateOrder() ([]SystemType, error) {
	r.mu.RLock()
	indegree := make(map[SystemType]int, len(r.systems))
	for st := range r.systems {
		indegree[st] = 0
	}
	for dependent, deps := range r.deps {
		if _, ok := indegree[dependent]; !ok {
			continue
		}
		for dep := range deps {
			if _, ok := r.systems[dep]; ok {
				indegree[dependent]++
			}
		}
	}
	edges := make(map[SystemType][]SystemType)
	for dependent, deps := range r.deps {
		for dep := range deps {
			edges[dep] = append(edges[dep], dependent)
		}
	}
	r.mu.RUnlock()

	var ready, order []SystemType
	for st, n := range indegree {
		if n == 0 {
			ready = append(ready, st)
		}
	}
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		st := ready[0]
		ready = ready[1:]
		order = append(order, st)
		for _, next := range edges[st] {
			if _, ok := indegree[next]; !ok {
				continue
			}
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	if len(order) != len(indegree) {
		return order, fmt.Errorf("%w: %d systems unresolved", ErrDependencyCycle, len(indegree)-len(order))
	}
	return order, nil
}

func sortedSystems(set map[SystemType]struct{}) []SystemType {
	out := make([]SystemType, 0, len(set))
	for st := range set {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
