package timing

// ForwardLevelization treats every register as a source: forwardLevel of
// a combinational node is the longest hop-count from the nearest
// register output, along non-register nodes only. Propagation is a
// longest-path topological sweep (the same in-degree/queue shape as a
// row-layering Kahn's-algorithm pass), except in-degree only counts
// edges whose source is itself non-register, since a register output is
// always "available" without waiting on anything upstream of it.
//
// A combinational loop — a cycle that never touches a register — leaves
// some nodes permanently blocked (their in-degree never reaches zero);
// ForwardLevelization detects this and returns an error naming every
// cell on one such cycle.
func (g *Graph) ForwardLevelization() error {
	return g.levelize(true)
}

// BackwardLevelization is the mirror of ForwardLevelization: it treats
// register inputs as sources and walks edges in reverse.
func (g *Graph) BackwardLevelization() error {
	return g.levelize(false)
}

func (g *Graph) levelize(forward bool) error {
	next := g.children
	if !forward {
		next = g.parents
	}

	inDegree := make(map[string]int, len(g.Nodes))
	for id, n := range g.Nodes {
		if n.IsRegister {
			continue
		}
		for _, p := range next2(g, id, !forward) {
			if src, ok := g.Nodes[p]; ok && !src.IsRegister {
				inDegree[id]++
			}
		}
	}

	queue := make([]string, 0, len(g.Nodes))
	for id, n := range g.Nodes {
		if !n.IsRegister && inDegree[id] == 0 {
			queue = append(queue, id)
			setLevel(n, forward, 0)
		}
	}

	processed := map[string]bool{}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed[id] = true
		lvl := getLevel(g.Nodes[id], forward)

		for _, childID := range next(id) {
			child, ok := g.Nodes[childID]
			if !ok || child.IsRegister {
				continue // register: propagation boundary, not enqueued
			}
			if l := lvl + 1; l > getLevel(child, forward) {
				setLevel(child, forward, l)
			}
			inDegree[childID]--
			if inDegree[childID] == 0 {
				queue = append(queue, childID)
			}
		}
	}

	if len(processed) < countNonRegister(g) {
		for id, n := range g.Nodes {
			if !n.IsRegister && !processed[id] {
				loop := g.FindALoopFromNode(id)
				if len(loop) > 0 {
					return combinationalLoopError(loop)
				}
			}
		}
		return combinationalLoopError([]string{"unresolved nodes present but no explicit cycle found"})
	}
	return nil
}

// next2 returns the neighbor set used purely to compute in-degree: for
// forward levelization that's parents (predecessors gate readiness); for
// backward it's children.
func next2(g *Graph, id string, useChildren bool) []string {
	if useChildren {
		return g.children(id)
	}
	return g.parents(id)
}

func countNonRegister(g *Graph) int {
	n := 0
	for _, node := range g.Nodes {
		if !node.IsRegister {
			n++
		}
	}
	return n
}

func setLevel(n *Node, forward bool, v int) {
	if forward {
		n.ForwardLevel = v
	} else {
		n.BackwardLevel = v
	}
}

func getLevel(n *Node, forward bool) int {
	if forward {
		return n.ForwardLevel
	}
	return n.BackwardLevel
}

// SetLongestPathLength computes longestPathLength = forwardLevel +
// backwardLevel + 1 for every non-register node, per the invariant that
// holds once both levelizations have run. It also rebuilds the
// path-length-sorted node cache used by threshold-level queries and
// clock-region clustering.
func (g *Graph) SetLongestPathLength() {
	for _, n := range g.Nodes {
		if n.IsRegister {
			continue
		}
		n.LongestPathLength = n.ForwardLevel + n.BackwardLevel + 1
	}
	g.rebuildPathLenSorted()
}

func (g *Graph) rebuildPathLenSorted() {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	// Insertion sort by (longestPathLength desc, forwardLevel asc): the
	// node counts involved are small relative to a placement run's
	// iteration budget, and a stable simple sort keeps ties in a
	// deterministic, easily testable order.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && less(g, ids[j], ids[j-1]); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	g.longPathSorted = ids
}

func less(g *Graph, a, b string) bool {
	na, nb := g.Nodes[a], g.Nodes[b]
	if na.LongestPathLength != nb.LongestPathLength {
		return na.LongestPathLength > nb.LongestPathLength
	}
	return na.ForwardLevel < nb.ForwardLevel
}

// ThresholdLevel returns the longestPathLength at the given quantile of
// the path-length-sorted node list (e.g. ratio=0.95 for
// longPathThresholdLevel, 0.8 for mediumPathThresholdLevel).
func (g *Graph) ThresholdLevel(ratio float64) int {
	if len(g.longPathSorted) == 0 {
		return 0
	}
	idx := int(ratio * float64(len(g.longPathSorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(g.longPathSorted) {
		idx = len(g.longPathSorted) - 1
	}
	return g.Nodes[g.longPathSorted[idx]].LongestPathLength
}
