package eonsim

// routes.go provides shortest path and k-shortest path queries over the physical topology.
//
// The topology is converted once into a gonum weighted directed graph, each link weighted
// by its length (km).  DijkstraFrom computes a tree of shortest paths rooted in a source node;
// trees are cached by source since the graph shape never changes during a run.  Yen's algorithm
// gives the k shortest loopless paths.  Paths come back as node sequences; LinksOnPath turns a
// node sequence into the link ids a candidate lightpath needs.

import (
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// buildConnGraph builds the gonum representation of the topology
func (pt *PhysicalTopology) buildConnGraph() {
	connGraph := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for _, node := range pt.nodes {
		connGraph.AddNode(simple.Node(node.id))
	}
	for _, link := range pt.links {
		weightedEdge := simple.WeightedEdge{F: simple.Node(link.src), T: simple.Node(link.dst), W: link.weight}
		connGraph.SetWeightedEdge(weightedEdge)
	}
	pt.connGraph = connGraph
	pt.cachedSP = make(map[int]path.Shortest)
}

// getSPTree returns the shortest path tree rooted in 'from', computing and caching it when needed
func (pt *PhysicalTopology) getSPTree(from int) path.Shortest {
	spTree, present := pt.cachedSP[from]
	if present {
		return spTree
	}
	spTree = path.DijkstraFrom(simple.Node(from), pt.connGraph)
	pt.cachedSP[from] = spTree
	return spTree
}

// convertNodeSeq extracts node ids from a sequence of graph nodes
func convertNodeSeq(nsQ []graph.Node) []int {
	rtn := make([]int, 0, len(nsQ))
	for _, node := range nsQ {
		rtn = append(rtn, int(node.ID()))
	}
	return rtn
}

// ShortestPath returns the node sequence of a minimum length route from src to dst,
// or an empty slice when dst cannot be reached
func (pt *PhysicalTopology) ShortestPath(src, dst int) []int {
	pt.Node(src)
	pt.Node(dst)

	spTree := pt.getSPTree(src)
	nodes, _ := spTree.To(int64(dst))
	if len(nodes) == 0 {
		return []int{}
	}
	return convertNodeSeq(nodes)
}

// KShortestPaths returns up to k loopless node sequences from src to dst, shortest first
func (pt *PhysicalTopology) KShortestPaths(src, dst, k int) [][]int {
	pt.Node(src)
	pt.Node(dst)
	if k < 1 {
		return [][]int{}
	}

	found := path.YenKShortestPaths(pt.connGraph, k, math.Inf(1), simple.Node(src), simple.Node(dst))
	rtn := make([][]int, 0, len(found))
	for _, nodes := range found {
		nodeSeq := convertNodeSeq(nodes)
		if slices.ContainsFunc(rtn, func(seen []int) bool { return slices.Equal(seen, nodeSeq) }) {
			continue
		}
		rtn = append(rtn, nodeSeq)
	}
	return rtn
}

// LinksOnPath maps a node sequence onto the link ids joining consecutive nodes.
// It returns nil when some consecutive pair has no link
func (pt *PhysicalTopology) LinksOnPath(nodes []int) []int {
	if len(nodes) < 2 {
		return nil
	}
	links := make([]int, 0, len(nodes)-1)
	for idx := 0; idx < len(nodes)-1; idx++ {
		link := pt.LinkBetween(nodes[idx], nodes[idx+1])
		if link == nil {
			return nil
		}
		links = append(links, link.id)
	}
	return links
}

// RouteLength is the length (km) of the route through the node sequence, +Inf when it is not a route
func (pt *PhysicalTopology) RouteLength(nodes []int) float64 {
	links := pt.LinksOnPath(nodes)
	if links == nil {
		return math.Inf(1)
	}
	return pt.PathLength(links)
}
