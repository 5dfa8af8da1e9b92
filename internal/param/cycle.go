package param

import "slices"

// graph maps a constrained key to the keys its expression reads.
type graph map[string][]string

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Components are emitted in reverse topological order of the edge
// direction: every key a component depends on is emitted before it. Nodes
// are visited in sorted order so the result is deterministic.
func tarjanSCC(g graph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(g))
	for node := range g {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// isCycle reports whether an SCC is a real cycle: more than one node, or a
// single node that reads itself.
func isCycle(scc []string, g graph) bool {
	if len(scc) > 1 {
		return true
	}
	return slices.Contains(g[scc[0]], scc[0])
}

// cyclePath returns a closed walk through scc, starting and ending at its
// smallest key.
func cyclePath(scc []string, g graph) []string {
	members := make(map[string]bool, len(scc))
	for _, k := range scc {
		members[k] = true
	}
	start := slices.Min(scc)

	var path []string
	visited := make(map[string]bool)
	var dfs func(string) bool
	dfs = func(v string) bool {
		path = append(path, v)
		visited[v] = true
		for _, w := range g[v] {
			if w == start {
				path = append(path, w)
				return true
			}
			if members[w] && !visited[w] && dfs(w) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}
	if dfs(start) {
		return path
	}
	return append(slices.Clone(scc), scc[0])
}

// FindCycle returns the first cycle in deps as a closed path, or nil when
// deps is acyclic. deps maps each constrained key to the keys it reads.
func FindCycle(deps map[string][]string) []string {
	g := graph(deps)
	for _, scc := range tarjanSCC(g) {
		if isCycle(scc, g) {
			return cyclePath(scc, g)
		}
	}
	return nil
}
