package dag

import "sync"

// Graph is a set of commands and the requirement edges between them.
// All operations on the graph are concurrency-safe.
type Graph struct {
	// mutex protects nodes and order.
	mutex sync.RWMutex
	// nodes stores every node keyed by its command name.
	nodes map[string]*node
	// order remembers insertion order so traversals are deterministic.
	order []string
}

// node is un-exported so callers work with names, not struct internals.
type node struct {
	id string
	// deps holds the nodes this node requires (predecessors).
	deps map[string]*node
	// dependents holds the nodes requiring this node (successors).
	dependents map[string]*node
}
