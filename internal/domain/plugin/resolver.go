package plugin

// Graph is a dependency graph whose nodes keep their insertion order.
// Traversal order is fully determined by that order and by each node's
// declared dependency order.
type Graph struct {
	nodes []string
	deps  map[string][]string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{deps: make(map[string][]string)}
}

// Add inserts a node with its dependencies. Re-adding a node replaces its
// dependencies but keeps its original position.
func (g *Graph) Add(name string, deps []string) {
	if _, ok := g.deps[name]; !ok {
		g.nodes = append(g.nodes, name)
	}
	g.deps[name] = append([]string(nil), deps...)
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.nodes...)
}

// Dependencies returns the declared dependencies of name.
func (g *Graph) Dependencies(name string) []string {
	return append([]string(nil), g.deps[name]...)
}

// Has reports whether name is a node.
func (g *Graph) Has(name string) bool {
	_, ok := g.deps[name]
	return ok
}

// Missing returns every dependency edge whose target is not a node, in
// node order and then declaration order.
func (g *Graph) Missing() []MissingDependency {
	var missing []MissingDependency
	for _, name := range g.nodes {
		for _, dep := range g.deps[name] {
			if !g.Has(dep) {
				missing = append(missing, MissingDependency{Unit: name, Dependency: dep})
			}
		}
	}
	return missing
}

// Order returns the nodes with every dependency before its dependents.
// Dependencies that are not nodes still appear in the result, right before
// the first node that needs them.
func (g *Graph) Order() ([]string, error) {
	return topologicalSort(g.nodes, g.deps)
}

// ResolveOrder is a convenience wrapper that builds a graph from names in
// order and their dependencies, and sorts it.
func ResolveOrder(names []string, deps map[string][]string) ([]string, error) {
	g := NewGraph()
	for _, name := range names {
		g.Add(name, deps[name])
	}
	return g.Order()
}

// topologicalSort performs a depth-first topological sort over roots in the
// given order. Returns an error if a cycle is detected.
func topologicalSort(roots []string, graph map[string][]string) ([]string, error) {
	// State: 0 = unvisited, 1 = visiting, 2 = visited
	state := make(map[string]int)
	result := make([]string, 0, len(roots))
	var currentPath []string

	var visit func(node string) error
	visit = func(node string) error {
		switch state[node] {
		case 1: // Visiting - cycle detected
			cycleStart := -1
			for i, n := range currentPath {
				if n == node {
					cycleStart = i
					break
				}
			}
			if cycleStart >= 0 {
				cycle := make([]string, len(currentPath[cycleStart:])+1)
				copy(cycle, currentPath[cycleStart:])
				cycle[len(cycle)-1] = node
				return &CyclicDependencyError{Cycle: cycle}
			}
			return &CyclicDependencyError{Cycle: []string{node}}
		case 2:
			return nil
		}

		state[node] = 1
		currentPath = append(currentPath, node)

		for _, neighbor := range graph[node] {
			if err := visit(neighbor); err != nil {
				return err
			}
		}

		state[node] = 2
		currentPath = currentPath[:len(currentPath)-1]
		result = append(result, node)
		return nil
	}

	for _, node := range roots {
		if state[node] == 0 {
			if err := visit(node); err != nil {
				return nil, err
			}
		}
	}

	// Post-order: dependencies are appended before their dependents.
	return result, nil
}
