// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package flux

// TraversalPolicy controls how Graph.ExpandByTraversal widens a base node set.
type TraversalPolicy uint8

const (
	// TraversalAll selects every node in the graph, ignoring base.
	TraversalAll TraversalPolicy = iota
	// TraversalDirtyOnly restricts to base's members that are still registered.
	TraversalDirtyOnly
	// TraversalDirtyAndDown is the BFS closure over children starting from base.
	TraversalDirtyAndDown
	// TraversalDirtyAndUp is the BFS closure over parents starting from base.
	TraversalDirtyAndUp
)

// Graph is a dependency DAG: nodes with parent/child adjacency, incrementally maintained
// depth, and cycle-rejecting edge insertion.
type Graph struct {
	nodes map[NodeID]*Node
	roots map[NodeID]struct{}
}

// NewGraph constructs an empty dependency graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[NodeID]*Node),
		roots: make(map[NodeID]struct{}),
	}
}

// AddNode registers id with the given weight. It returns ErrNodeExists if id is already
// present.
func (g *Graph) AddNode(id NodeID, weight int64) (*Node, error) {
	if _, ok := g.nodes[id]; ok {
		return nil, &ConflictError{Kind: "node", Subject: string(id), Reason: "already registered"}
	}
	n := newNode(id, weight)
	g.nodes[id] = n
	g.roots[id] = struct{}{}
	return n, nil
}

// HasNode reports whether id is registered.
func (g *Graph) HasNode(id NodeID) bool {
	_, ok := g.nodes[id]
	return ok
}

// GetNode returns the node registered under id, or nil if absent.
func (g *Graph) GetNode(id NodeID) *Node {
	return g.nodes[id]
}

// RemoveNode detaches id from both sides of the graph, promotes its orphaned children to
// roots, and recomputes their depth. It is a no-op if id is not registered.
func (g *Graph) RemoveNode(id NodeID) {
	n, ok := g.nodes[id]
	if !ok {
		return
	}

	for parent := range n.parents {
		if p := g.nodes[parent]; p != nil {
			delete(p.children, id)
		}
	}
	var orphaned []NodeID
	for child := range n.children {
		if c := g.nodes[child]; c != nil {
			delete(c.parents, id)
			if len(c.parents) == 0 {
				g.roots[child] = struct{}{}
				orphaned = append(orphaned, child)
			}
		}
	}

	delete(g.nodes, id)
	delete(g.roots, id)

	for _, child := range orphaned {
		if c := g.nodes[child]; c != nil && g.depthOf(c) != c.depth {
			g.recomputeDepthCascade(child)
		}
	}
}

// AddEdge registers a parent -> child dependency. It returns false without modifying the
// graph if either endpoint is unregistered, p == c, or the edge would create a cycle.
func (g *Graph) AddEdge(p, c NodeID) bool {
	if p == c {
		return false
	}
	parent, ok := g.nodes[p]
	if !ok {
		return false
	}
	child, ok := g.nodes[c]
	if !ok {
		return false
	}
	if _, already := parent.children[c]; already {
		return true
	}
	if g.reaches(c, p) {
		return false
	}

	parent.children[c] = struct{}{}
	child.parents[p] = struct{}{}
	delete(g.roots, c)

	if g.depthOf(child) != child.depth {
		g.recomputeDepthCascade(c)
	}
	return true
}

// RemoveEdge detaches a parent -> child dependency. If c becomes parentless it re-enters the
// roots set; c's depth and that of its descendants are recomputed, which may lower them.
func (g *Graph) RemoveEdge(p, c NodeID) {
	parent, ok := g.nodes[p]
	if !ok {
		return
	}
	child, ok := g.nodes[c]
	if !ok {
		return
	}
	if _, ok := parent.children[c]; !ok {
		return
	}

	delete(parent.children, c)
	delete(child.parents, p)

	if len(child.parents) == 0 {
		g.roots[c] = struct{}{}
	}
	if g.depthOf(child) != child.depth {
		g.recomputeDepthCascade(c)
	}
}

// reaches reports whether target is reachable from start by following child edges (used to
// detect whether adding parent -> child would close a cycle: child must not already reach
// parent).
func (g *Graph) reaches(start, target NodeID) bool {
	if start == target {
		return true
	}
	visited := make(map[NodeID]struct{})
	stack := []NodeID{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}
		if id == target {
			return true
		}
		n := g.nodes[id]
		if n == nil {
			continue
		}
		for child := range n.children {
			stack = append(stack, child)
		}
	}
	return false
}

// findPath returns the child-edge path from start to target (inclusive of both endpoints), or
// nil if target is not reachable from start. Used to describe the cycle a rejected AddEdge
// would have closed.
func (g *Graph) findPath(start, target NodeID) []NodeID {
	if start == target {
		return []NodeID{start}
	}
	visited := map[NodeID]struct{}{start: {}}
	prev := map[NodeID]NodeID{}
	queue := []NodeID{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := g.nodes[id]
		if n == nil {
			continue
		}
		for child := range n.children {
			if _, ok := visited[child]; ok {
				continue
			}
			visited[child] = struct{}{}
			prev[child] = id
			if child == target {
				path := []NodeID{target}
				for cur := id; ; cur = prev[cur] {
					path = append([]NodeID{cur}, path...)
					if cur == start {
						break
					}
				}
				return path
			}
			queue = append(queue, child)
		}
	}
	return nil
}

func (g *Graph) maxParentDepth(n *Node) int {
	best := -1
	for parent := range n.parents {
		if p := g.nodes[parent]; p != nil && p.depth > best {
			best = p.depth
		}
	}
	return best
}

// depthOf computes id's depth per spec §3: 0 if it has no parents, else 1 + the max depth of
// its parents (read as currently recorded, so a caller must recompute parents before children).
func (g *Graph) depthOf(n *Node) int {
	if len(n.parents) == 0 {
		return 0
	}
	return g.maxParentDepth(n) + 1
}

// recomputeDepthCascade recomputes id's depth and that of every descendant reachable from it,
// allowing the depth to move in either direction (an edge removal can lower a whole downstream
// subtree's depth, not just raise it). Per spec §4.3, depth must remain "a correct upper lattice
// value over parent depths" after any edge mutation, including one that shortens the longest
// path into a node.
//
// The affected set (id and its down-closure) is processed in topological order via Kahn's
// algorithm restricted to that set, so that by the time a node's depth is recomputed, every
// in-set parent (the only parents whose depth this cascade could have changed) has already been
// finalized; parents outside the set are untouched by this cascade and are read as-is.
func (g *Graph) recomputeDepthCascade(id NodeID) {
	if g.nodes[id] == nil {
		return
	}

	affected := g.downClosure(id)
	inSet := make(map[NodeID]struct{}, len(affected))
	for _, nid := range affected {
		inSet[nid] = struct{}{}
	}

	indegree := make(map[NodeID]int, len(affected))
	queue := make([]NodeID, 0, len(affected))
	for _, nid := range affected {
		count := 0
		for parent := range g.nodes[nid].parents {
			if _, ok := inSet[parent]; ok {
				count++
			}
		}
		indegree[nid] = count
		if count == 0 {
			queue = append(queue, nid)
		}
	}

	for len(queue) > 0 {
		nid := queue[0]
		queue = queue[1:]
		n := g.nodes[nid]
		n.depth = g.depthOf(n)
		for child := range n.children {
			if _, ok := inSet[child]; !ok {
				continue
			}
			indegree[child]--
			if indegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}
}

// downClosure returns id and every node reachable from it via child edges, in BFS order.
func (g *Graph) downClosure(id NodeID) []NodeID {
	visited := map[NodeID]struct{}{id: {}}
	out := []NodeID{id}
	queue := []NodeID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := g.nodes[cur]
		if n == nil {
			continue
		}
		for child := range n.children {
			if _, ok := visited[child]; ok {
				continue
			}
			visited[child] = struct{}{}
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}

// Roots returns the current set of parentless node ids.
func (g *Graph) Roots() []NodeID {
	out := make([]NodeID, 0, len(g.roots))
	for id := range g.roots {
		out = append(out, id)
	}
	return out
}

// ExpandByTraversal widens base according to policy.
func (g *Graph) ExpandByTraversal(base []NodeID, policy TraversalPolicy) []NodeID {
	switch policy {
	case TraversalAll:
		out := make([]NodeID, 0, len(g.nodes))
		for id := range g.nodes {
			out = append(out, id)
		}
		return out
	case TraversalDirtyOnly:
		out := make([]NodeID, 0, len(base))
		for _, id := range base {
			if g.HasNode(id) {
				out = append(out, id)
			}
		}
		return out
	case TraversalDirtyAndDown:
		return g.bfs(base, func(n *Node) map[NodeID]struct{} { return n.children })
	case TraversalDirtyAndUp:
		return g.bfs(base, func(n *Node) map[NodeID]struct{} { return n.parents })
	default:
		return nil
	}
}

func (g *Graph) bfs(base []NodeID, adj func(*Node) map[NodeID]struct{}) []NodeID {
	visited := make(map[NodeID]struct{})
	var out []NodeID
	queue := make([]NodeID, 0, len(base))
	for _, id := range base {
		if _, ok := visited[id]; ok {
			continue
		}
		if !g.HasNode(id) {
			continue
		}
		visited[id] = struct{}{}
		out = append(out, id)
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := g.nodes[id]
		if n == nil {
			continue
		}
		for next := range adj(n) {
			if _, ok := visited[next]; ok {
				continue
			}
			visited[next] = struct{}{}
			out = append(out, next)
			queue = append(queue, next)
		}
	}
	return out
}
