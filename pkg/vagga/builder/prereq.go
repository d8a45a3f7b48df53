package builder

// PrerequisiteOrder walks start and every transitive dependency named
// by deps, returning each node exactly once, prerequisites before
// dependents, in first-visited order. A dependency cycle is broken
// silently rather than looped forever: once a node is on the current
// DFS stack, a repeat reference to it is simply skipped (the cycle
// itself is rejected earlier, at manifest validation, per spec.md
// §9's "detect during configuration validation" design note; this
// scan only has to not hang if it ever sees one anyway).
func PrerequisiteOrder(start []string, deps func(string) []string) []string {
	const (
		unvisited = iota
		inStack
		done
	)
	state := make(map[string]int)
	var order []string

	var visit func(name string)
	visit = func(name string) {
		switch state[name] {
		case inStack, done:
			return
		}
		state[name] = inStack
		for _, dep := range deps(name) {
			visit(dep)
		}
		state[name] = done
		order = append(order, name)
	}

	for _, name := range start {
		visit(name)
	}
	return order
}
