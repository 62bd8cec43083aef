package gc

import "sort"

// ReferenceGraph is the directed graph of node paths and outbound
// references for one GC run. It is rebuilt fresh from runtime-reported
// data on every run and never persisted; it holds path strings only,
// never live references to application objects.
type ReferenceGraph struct {
	routes map[string][]string
}

// BuildReferenceGraph constructs the per-run reference graph from
// runtime-reported data. Outbound routes are deduplicated, and a
// synthetic edge is added from RootPath to every loaded root.
func BuildReferenceGraph(data *GCData) *ReferenceGraph {
	g := &ReferenceGraph{
		routes: make(map[string][]string, len(data.Nodes)+1),
	}

	for path, outbound := range data.Nodes {
		g.routes[path] = dedupeRoutes(outbound)
	}

	// The synthetic root references every loaded container root. Roots
	// reported by the runtime override any "/" entry in the node data.
	g.routes[RootPath] = dedupeRoutes(data.Roots)

	return g
}

// Len returns the number of nodes in the graph, including the synthetic
// root.
func (g *ReferenceGraph) Len() int {
	return len(g.routes)
}

// Has reports whether the graph contains the given node.
func (g *ReferenceGraph) Has(path string) bool {
	_, ok := g.routes[path]
	return ok
}

// Routes returns the deduplicated outbound routes of a node.
func (g *ReferenceGraph) Routes(path string) []string {
	return g.routes[path]
}

// Paths returns all node paths in the graph, sorted, excluding the
// synthetic root.
func (g *ReferenceGraph) Paths() []string {
	paths := make([]string, 0, len(g.routes)-1)
	for path := range g.routes {
		if path == RootPath {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Mark runs the reachability traversal from the synthetic root and
// returns the set of reachable node paths (the root included). BFS over
// a worklist; self-loops and routes to nodes absent from the graph are
// tolerated.
func (g *ReferenceGraph) Mark() map[string]struct{} {
	reachable := make(map[string]struct{}, len(g.routes))
	reachable[RootPath] = struct{}{}

	worklist := []string{RootPath}
	for len(worklist) > 0 {
		current := worklist[0]
		worklist = worklist[1:]

		for _, target := range g.routes[current] {
			if _, seen := reachable[target]; seen {
				continue
			}
			reachable[target] = struct{}{}

			// Routes may point at nodes the runtime never reported;
			// they are reachable but contribute no further edges.
			if _, known := g.routes[target]; known {
				worklist = append(worklist, target)
			}
		}
	}

	return reachable
}

// dedupeRoutes returns a sorted copy of routes with duplicates removed.
func dedupeRoutes(routes []string) []string {
	if len(routes) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(routes))
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
