// Package trust maintains the directed trust graph between agents.
// Trust edges gate delegation and cascade propagation; nothing verifies
// that the caller adding an edge has any authority over the from agent.
package trust

import (
	"sync"

	"github.com/maulworks/maul/pkg/domain"
)

// RegistryView is the read-only registry access the graph needs to expand
// wildcard edges. Wildcard expansion always reflects the registry at query
// time, so the result set can change between calls.
type RegistryView interface {
	IDs() []string
}

// Graph is the trust graph. Edges are stored per source agent as an
// ordered adjacency list.
type Graph struct {
	mu       sync.RWMutex
	edges    map[string][]string
	registry RegistryView
}

// NewGraph creates an empty trust graph backed by the given registry view.
func NewGraph(registry RegistryView) *Graph {
	return &Graph{
		edges:    make(map[string][]string),
		registry: registry,
	}
}

// AddEdge records that from trusts to. Duplicate edges are ignored.
// to may be the wildcard "*", meaning from trusts every registered agent.
func (g *Graph) AddEdge(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, existing := range g.edges[from] {
		if existing == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
}

// Trusts reports whether from trusts to, either through an explicit edge or
// through a wildcard edge.
func (g *Graph) Trusts(from, to string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, t := range g.edges[from] {
		if t == domain.TrustWildcard || t == to {
			return true
		}
	}
	return false
}

// TrustedAgents returns the agents from trusts. A wildcard edge expands to
// a live snapshot of the registry, excluding from itself.
func (g *Graph) TrustedAgents(from string) []string {
	g.mu.RLock()
	targets := append([]string(nil), g.edges[from]...)
	g.mu.RUnlock()

	out := make([]string, 0, len(targets))
	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if t == domain.TrustWildcard {
			for _, id := range g.registry.IDs() {
				if id == from {
					continue
				}
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				out = append(out, id)
			}
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// CollapseOutgoing removes every outgoing edge of the agent. Applied by the
// trust_collapse cascade mutation.
func (g *Graph) CollapseOutgoing(agent string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edges, agent)
}

// Snapshot returns the raw adjacency lists, wildcards unexpanded.
func (g *Graph) Snapshot() map[string][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string][]string, len(g.edges))
	for from, targets := range g.edges {
		out[from] = append([]string(nil), targets...)
	}
	return out
}
