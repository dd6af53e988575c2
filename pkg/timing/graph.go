// Package timing builds and analyzes the per-cell timing graph: forward
// and backward levelization, static timing analysis (arrival/required
// propagation), longest-path metadata, net-weight enhancement driven by
// path criticality, and clock-region clustering of long paths.
package timing

import (
	"github.com/fabricplace/amfplacer/pkg/design"
	"github.com/fabricplace/amfplacer/pkg/perrors"
)

// Node is one design cell in the timing graph. Levels and arrival times
// are populated by ForwardLevelization/BackwardLevelization and
// ConductStaticTimingAnalysis; the zero value is a graph-shaped but
// otherwise unanalyzed node.
type Node struct {
	ID         string // node id, dense and equal to the owning cell id
	CellID     string
	IsRegister bool

	ForwardLevel  int
	BackwardLevel int
	LongestPathLength int

	LatestArrival   float64 // ns
	RequiredArrival float64 // ns
	InnerDelay      float64 // ns

	SlowestPredecessorID string
	earliestSuccessorID  string

	InEdgeIDs  []int
	OutEdgeIDs []int
}

// EarliestSuccessorID returns the id of the successor with the smallest
// slack, i.e. the node most likely to become critical next.
//
// The surveyed source's getEarlestSuccessorId returns
// slowestPredecessorId instead of the field it is named after — almost
// certainly a copy-paste bug, since every call site wants the successor
// side of the backtrace. This re-implementation returns the field it
// names; see the design notes for the decision record.
func (n *Node) EarliestSuccessorID() string {
	return n.earliestSuccessorID
}

// SetEarliestSuccessorID records the successor used when propagating the
// required-arrival backtrace.
func (n *Node) SetEarliestSuccessorID(id string) {
	n.earliestSuccessorID = id
}

// Edge is a directed timing arc bound to two pins, derived from one
// driver-to-sink pair of a net. Edge ids are dense and >= 0.
type Edge struct {
	ID          int
	SrcNodeID   string
	SinkNodeID  string
	SrcPinID    string
	SinkPinID   string
	NetID       string // empty for a synthetic/non-net edge
	Delay       float64
}

// Graph owns every node and edge exclusively; external code holds
// (graph, node-id) or (graph, edge-id) pairs rather than pointers, per
// the ownership rule that ties every cross-reference to a dense id.
type Graph struct {
	Nodes map[string]*Node
	Edges []*Edge

	// longPathSorted caches the nodes ordered by (longestPathLength desc,
	// forwardLevel asc), rebuilt lazily after levelization.
	longPathSorted []string

	// enhanceCallCount is the timing optimizer's own call counter; it is
	// instance state, not process-global, and is reset by New.
	enhanceCallCount int

	// ClockPeriod bounds required-arrival backward propagation.
	ClockPeriod float64
}

// New returns an empty Graph with the default 10ns clock period.
func New() *Graph {
	return &Graph{Nodes: make(map[string]*Node), ClockPeriod: 10.0}
}

// BuildSimpleTimingGraph constructs one node per non-virtual cell and,
// for each net, one directed edge from the driver cell to every sink
// cell. Cells with design.Cell.IsRegister set become register nodes.
func BuildSimpleTimingGraph(d *design.Design) *Graph {
	g := New()
	for _, c := range d.Cells {
		if c.IsVirtual {
			continue
		}
		g.Nodes[c.ID] = &Node{ID: c.ID, CellID: c.ID, IsRegister: c.IsRegister}
	}

	edgeID := 0
	for _, n := range d.Nets {
		if n.DriverPinID == "" {
			continue
		}
		driverPin, ok := d.Pins[n.DriverPinID]
		if !ok {
			continue
		}
		driverNode, ok := g.Nodes[driverPin.CellID]
		if !ok {
			continue // virtual driver: no topology contribution
		}
		for _, sinkPinID := range n.SinkPinIDs {
			sinkPin, ok := d.Pins[sinkPinID]
			if !ok {
				continue
			}
			sinkNode, ok := g.Nodes[sinkPin.CellID]
			if !ok || sinkNode.ID == driverNode.ID {
				continue
			}
			e := &Edge{
				ID: edgeID, SrcNodeID: driverNode.ID, SinkNodeID: sinkNode.ID,
				SrcPinID: n.DriverPinID, SinkPinID: sinkPinID, NetID: n.ID,
			}
			g.Edges = append(g.Edges, e)
			driverNode.OutEdgeIDs = append(driverNode.OutEdgeIDs, edgeID)
			sinkNode.InEdgeIDs = append(sinkNode.InEdgeIDs, edgeID)
			edgeID++
		}
	}
	return g
}

func (g *Graph) children(id string) []string {
	n, ok := g.Nodes[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(n.OutEdgeIDs))
	for _, eid := range n.OutEdgeIDs {
		out = append(out, g.Edges[eid].SinkNodeID)
	}
	return out
}

func (g *Graph) parents(id string) []string {
	n, ok := g.Nodes[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(n.InEdgeIDs))
	for _, eid := range n.InEdgeIDs {
		out = append(out, g.Edges[eid].SrcNodeID)
	}
	return out
}

// FindALoopFromNode is a debug helper: it walks forward from start
// without crossing a register and reports the cycle if the walk returns
// to a node already on the current path. It never mutates the graph;
// use it after ForwardLevelization returns a combinational-loop error to
// print offending cells.
func (g *Graph) FindALoopFromNode(start string) []string {
	visited := map[string]int{} // 0=unvisited,1=on stack,2=done
	var path []string

	var dfs func(id string) []string
	dfs = func(id string) []string {
		n, ok := g.Nodes[id]
		if !ok || n.IsRegister {
			return nil
		}
		visited[id] = 1
		path = append(path, id)
		for _, c := range g.children(id) {
			switch visited[c] {
			case 1:
				// Found the back edge; slice the path from c's first
				// occurrence to the end to report just the cycle.
				for i, p := range path {
					if p == c {
						return append(append([]string{}, path[i:]...), c)
					}
				}
			case 0:
				if loop := dfs(c); loop != nil {
					return loop
				}
			}
		}
		path = path[:len(path)-1]
		visited[id] = 2
		return nil
	}
	return dfs(start)
}

// combinationalLoopError builds the error FindALoopFromNode's result is
// reported as, matching the "report all cells on the loop and abort"
// policy.
func combinationalLoopError(loop []string) error {
	return perrors.New(perrors.ErrCodeCombinationalLoop, "combinational loop detected: %v", loop)
}
