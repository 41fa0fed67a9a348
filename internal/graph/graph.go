package graph

import (
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ServiceNode declares one service and its outbound dependencies. Identifiers
// listed in depends_on need not exist as declared nodes; absent dependencies
// are treated as leaves.
type ServiceNode struct {
	File        string   `yaml:"file,omitempty"`
	Functions   []string `yaml:"functions,omitempty"`
	Description string   `yaml:"description,omitempty"`
	DependsOn   []string `yaml:"depends_on,omitempty"`
}

// Document is the on-disk shape of a service dependency map.
type Document struct {
	Version   string                 `yaml:"version,omitempty"`
	UpdatedAt time.Time              `yaml:"updated_at,omitempty"`
	Services  map[string]ServiceNode `yaml:"services"`
}

// ImpactResult captures the blast radius of one affected service. The service
// itself never appears in any of the three sets.
type ImpactResult struct {
	Service          string
	Dependencies     []string
	DirectDependents []string
	AllDependents    []string
}

// Graph is an immutable snapshot of declared service relationships. It is
// built once and shared across concurrent analyses without locking; reloads
// replace the snapshot wholesale via Store.
type Graph struct {
	nodes     map[string]ServiceNode
	reverse   map[string][]string
	version   string
	updatedAt time.Time
}

// New builds a graph from a parsed document. The reverse adjacency index is
// assembled in sorted node order so traversal results are deterministic.
func New(doc Document) *Graph {
	nodes := make(map[string]ServiceNode, len(doc.Services))
	ids := make([]string, 0, len(doc.Services))
	for id, node := range doc.Services {
		nodes[id] = node
		ids = append(ids, id)
	}
	sort.Strings(ids)

	reverse := make(map[string][]string)
	for _, id := range ids {
		for _, dep := range nodes[id].DependsOn {
			if dep == id {
				continue
			}
			reverse[dep] = append(reverse[dep], id)
		}
	}

	return &Graph{
		nodes:     nodes,
		reverse:   reverse,
		version:   doc.Version,
		updatedAt: doc.UpdatedAt,
	}
}

// Parse decodes a YAML dependency map document into a graph.
func Parse(data []byte) (*Graph, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse dependency map: %w", err)
	}
	return New(doc), nil
}

// Len returns the number of declared services.
func (g *Graph) Len() int { return len(g.nodes) }

// Version returns the document version label, if any.
func (g *Graph) Version() string { return g.version }

// UpdatedAt returns the document update timestamp, if any.
func (g *Graph) UpdatedAt() time.Time { return g.updatedAt }

// Node returns the declared node for id, if present.
func (g *Graph) Node(id string) (ServiceNode, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// DependenciesOf returns the transitive closure of depends_on starting at id,
// excluding id itself. Traversal is iterative with a visited set, so cycles
// terminate and each node is visited at most once. Unknown ids yield an empty
// result.
func (g *Graph) DependenciesOf(id string) []string {
	visited := map[string]struct{}{id: {}}
	queue := append([]string(nil), g.nodes[id].DependsOn...)

	var result []string
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, seen := visited[next]; seen {
			continue
		}
		visited[next] = struct{}{}
		result = append(result, next)
		queue = append(queue, g.nodes[next].DependsOn...)
	}
	return result
}

// DirectDependentsOf returns the services whose depends_on list contains id,
// one hop only.
func (g *Graph) DirectDependentsOf(id string) []string {
	return append([]string(nil), g.reverse[id]...)
}

// Impact composes the blast radius for id: transitive dependencies, direct
// dependents, and the breadth-first closure of dependents in discovery order.
// An id absent from the graph degrades to empty sets rather than an error.
func (g *Graph) Impact(id string) ImpactResult {
	direct := g.DirectDependentsOf(id)

	seen := map[string]struct{}{id: {}}
	queue := append([]string(nil), direct...)

	var all []string
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}
		all = append(all, next)
		queue = append(queue, g.reverse[next]...)
	}

	return ImpactResult{
		Service:          id,
		Dependencies:     g.DependenciesOf(id),
		DirectDependents: direct,
		AllDependents:    all,
	}
}
