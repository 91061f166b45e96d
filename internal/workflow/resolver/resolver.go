package resolver

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kingrea/weft/internal/workflow"
)

// ErrCycle is returned when project dependencies form a loop.
var ErrCycle = errors.New("resolver: dependency cycle")

// NodeState represents the resolver's view of a project in the graph.
type NodeState string

const (
	NodeStateReady   NodeState = "ready"
	NodeStateMissing NodeState = "missing-deps"
	NodeStateCycle   NodeState = "cycle"
)

// Node captures a project plus its dependency metadata.
type Node struct {
	ID           string
	Path         string
	Dependencies []string
	Dependents   []string
	// Missing lists declared dependencies that are not workspace members.
	Missing []string
	State   NodeState
}

// Graph is the dependency graph of one workspace. It is immutable once New
// returns, so it may be read from many goroutines.
type Graph struct {
	nodes      map[string]*Node
	orderedIDs []string
	order      []string
	orderErr   error
}

// New builds the graph for ws. Unknown dependencies are recorded on the node
// and otherwise ignored.
func New(ws *workflow.Workspace) (*Graph, error) {
	if ws == nil {
		return nil, fmt.Errorf("resolver: workspace is required")
	}
	nodes := make(map[string]*Node, len(ws.Projects))
	ordered := make([]string, 0, len(ws.Projects))
	for _, p := range ws.Projects {
		id := p.Name()
		if _, dup := nodes[id]; dup {
			return nil, fmt.Errorf("resolver: duplicate project %s", id)
		}
		nodes[id] = &Node{
			ID:           id,
			Path:         p.Path,
			Dependencies: append([]string(nil), p.Config.Deps...),
			State:        NodeStateReady,
		}
		ordered = append(ordered, id)
	}
	for _, id := range ordered {
		node := nodes[id]
		known := node.Dependencies[:0]
		for _, depID := range node.Dependencies {
			dep, ok := nodes[depID]
			if !ok {
				node.Missing = append(node.Missing, depID)
				node.State = NodeStateMissing
				continue
			}
			known = append(known, depID)
			dep.Dependents = append(dep.Dependents, id)
		}
		node.Dependencies = known
	}
	for _, node := range nodes {
		sort.Strings(node.Dependents)
	}
	g := &Graph{nodes: nodes, orderedIDs: ordered}
	var loop []string
	g.order, loop, g.orderErr = g.sort(ordered)
	for _, member := range loop {
		nodes[member].State = NodeStateCycle
	}
	return g, nil
}

// Nodes returns the nodes in workspace declaration order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.orderedIDs))
	for _, id := range g.orderedIDs {
		out = append(out, g.nodes[id])
	}
	return out
}

// Node retrieves a project node by name.
func (g *Graph) Node(id string) (*Node, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// Order returns every project with dependencies before their dependents.
// Ties keep declaration order.
func (g *Graph) Order() ([]string, error) {
	if g.orderErr != nil {
		return nil, g.orderErr
	}
	return append([]string(nil), g.order...), nil
}

// Queue returns the projects required to build targets, dependencies first.
// With no targets every project is included.
func (g *Graph) Queue(targets ...string) ([]string, error) {
	if len(targets) == 0 {
		return g.Order()
	}
	ordered, _, err := g.sort(targets)
	return ordered, err
}

// sort walks targets depth first. On a cycle it returns the loop's members.
func (g *Graph) sort(targets []string) ([]string, []string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(g.nodes))
	ordered := make([]string, 0, len(g.nodes))
	var stack, cycle []string
	var visit func(string) error
	visit = func(id string) error {
		switch marks[id] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, s := range stack {
				if s == id {
					start = i
					break
				}
			}
			cycle = append(append([]string{}, stack[start:]...), id)
			return fmt.Errorf("%w: %s", ErrCycle, strings.Join(cycle, " -> "))
		}
		node, ok := g.nodes[id]
		if !ok {
			return fmt.Errorf("resolver: unknown project %s", id)
		}
		marks[id] = visiting
		stack = append(stack, id)
		for _, dep := range node.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		marks[id] = done
		ordered = append(ordered, id)
		return nil
	}
	for _, id := range targets {
		if err := visit(id); err != nil {
			return nil, cycle, err
		}
	}
	return ordered, nil, nil
}

// Affected returns id followed by every project that transitively depends on
// it, in topological order.
func (g *Graph) Affected(id string) []string {
	if _, ok := g.nodes[id]; !ok {
		return nil
	}
	seen := map[string]struct{}{id: {}}
	frontier := []string{id}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		for _, dependent := range g.nodes[next].Dependents {
			if _, ok := seen[dependent]; ok {
				continue
			}
			seen[dependent] = struct{}{}
			frontier = append(frontier, dependent)
		}
	}
	order := g.order
	if g.orderErr != nil {
		order = g.orderedIDs
	}
	out := make([]string, 0, len(seen))
	for _, candidate := range order {
		if _, ok := seen[candidate]; ok {
			out = append(out, candidate)
		}
	}
	return out
}

// Refs returns the paths of id's direct dependencies relative to id's own
// directory, sorted.
func (g *Graph) Refs(id string) []string {
	node, ok := g.nodes[id]
	if !ok {
		return nil
	}
	refs := make([]string, 0, len(node.Dependencies))
	for _, depID := range node.Dependencies {
		refs = append(refs, relativePath(node.Path, g.nodes[depID].Path))
	}
	sort.Strings(refs)
	return refs
}

func relativePath(from, to string) string {
	rel, err := filepath.Rel(filepath.FromSlash(from), filepath.FromSlash(to))
	if err != nil {
		return to
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") || rel == ".." {
		return rel
	}
	return "./" + rel
}
