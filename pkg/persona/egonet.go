// Package persona splits every vertex of a graph into personas, one per
// connected component of its ego network, and relabels the graph's edges
// into a persona graph.
package persona

import (
	"github.com/cnclabs/splitter/pkg/pronet"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Partition assigns every neighbor of a vertex to one ego-network component.
// Components are numbered 0..k-1 in order of first appearance in the
// vertex's adjacency list.
type Partition struct {
	Vid       int64
	component map[int64]int
	members   [][]int64
}

// Components returns the number of personas of the vertex, at least 1
func (p Partition) Components() int {
	return len(p.members)
}

// Component returns the component holding neighbor
func (p Partition) Component(neighbor int64) (int, bool) {
	k, ok := p.component[neighbor]
	return k, ok
}

// Members returns the neighbors in component k, in adjacency order
func (p Partition) Members(k int) []int64 {
	if k < 0 || k >= len(p.members) {
		return nil
	}
	return p.members[k]
}

// SplitEgoNet partitions the neighbors of vid into the connected components
// of the subgraph they induce once vid itself is removed.
func SplitEgoNet(g *pronet.ProNet, vid int64) Partition {
	neighbors := g.Neighbors(vid)
	part := Partition{
		Vid:       vid,
		component: make(map[int64]int, len(neighbors)),
	}
	if len(neighbors) == 0 {
		part.members = [][]int64{nil}
		return part
	}

	ego := simple.NewUndirectedGraph()
	inEgo := make(map[int64]struct{}, len(neighbors))
	for _, nb := range neighbors {
		ego.AddNode(simple.Node(nb))
		inEgo[nb] = struct{}{}
	}
	for _, a := range neighbors {
		for _, b := range g.Neighbors(a) {
			if b == vid || b == a {
				continue
			}
			if _, ok := inEgo[b]; ok {
				ego.SetEdge(ego.NewEdge(simple.Node(a), simple.Node(b)))
			}
		}
	}

	// topo returns components in map order; tag each with its label and
	// renumber by the adjacency order of vid.
	label := make(map[int64]int, len(neighbors))
	for c, nodes := range topo.ConnectedComponents(ego) {
		for _, node := range nodes {
			label[node.ID()] = c
		}
	}

	renumber := make(map[int]int)
	for _, nb := range neighbors {
		c := label[nb]
		k, seen := renumber[c]
		if !seen {
			k = len(part.members)
			renumber[c] = k
			part.members = append(part.members, nil)
		}
		part.component[nb] = k
		part.members[k] = append(part.members[k], nb)
	}

	return part
}

// SplitAll runs SplitEgoNet over every vertex in vid order
func SplitAll(g *pronet.ProNet) []Partition {
	partitions := make([]Partition, g.MaxVid)
	for vid := int64(0); vid < g.MaxVid; vid++ {
		partitions[vid] = SplitEgoNet(g, vid)
	}
	return partitions
}
