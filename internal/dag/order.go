package dag

import "fmt"

// TopologicalOrder returns every node so that each comes after all of its
// dependencies. Ties are broken by insertion order, so the result is stable
// for a given sequence of AddNode calls.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	remaining := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		remaining[id] = len(n.deps)
	}

	out := make([]string, 0, len(g.nodes))
	done := make(map[string]bool, len(g.nodes))
	for len(out) < len(g.nodes) {
		progressed := false
		for _, id := range g.order {
			if done[id] || remaining[id] > 0 {
				continue
			}
			done[id] = true
			out = append(out, id)
			for dep := range g.nodes[id].dependents {
				remaining[dep]--
			}
			progressed = true
			break
		}
		if !progressed {
			return nil, fmt.Errorf("graph has a cycle, %d of %d nodes ordered", len(out), len(g.nodes))
		}
	}
	return out, nil
}

// VerifyOrder checks that order lists every node exactly once and that each
// node appears after all of its dependencies.
func (g *Graph) VerifyOrder(order []string) error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	position := make(map[string]int, len(order))
	for i, id := range order {
		if _, ok := g.nodes[id]; !ok {
			return fmt.Errorf("order references unknown node: %s", id)
		}
		if _, dup := position[id]; dup {
			return fmt.Errorf("order lists node %s twice", id)
		}
		position[id] = i
	}
	if len(position) != len(g.nodes) {
		return fmt.Errorf("order lists %d of %d nodes", len(position), len(g.nodes))
	}
	for _, id := range order {
		for _, dep := range sortedKeys(g.nodes[id].deps) {
			if position[dep] > position[id] {
				return fmt.Errorf("node %s is ordered before its dependency %s", id, dep)
			}
		}
	}
	return nil
}
