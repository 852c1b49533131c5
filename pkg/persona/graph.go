package persona

import (
	"fmt"

	"github.com/cnclabs/splitter/pkg/pronet"
	"github.com/pkg/errors"
)

var (
	ErrMissingPartition = errors.New("no partition for vertex")
	ErrMissingPersona   = errors.New("neighbor not assigned to any persona")
)

// InternalConsistencyError reports a persona lookup that failed while
// relabeling an edge. It always indicates a partitioning bug.
type InternalConsistencyError struct {
	Edge [2]int64 // original vertex names
	Node int64    // vertex name whose lookup failed
	Err  error
}

func (e *InternalConsistencyError) Error() string {
	return fmt.Sprintf("persona graph: edge (%d, %d) at vertex %d: %v", e.Edge[0], e.Edge[1], e.Node, e.Err)
}

func (e *InternalConsistencyError) Unwrap() error {
	return e.Err
}

// Graph is the persona graph together with its persona<->vertex mappings.
// Persona IDs are the vids of Net and are also used as its vertex names.
type Graph struct {
	Net *pronet.ProNet

	// PersonaToNode maps a persona ID to the vid of its original vertex
	PersonaToNode []int64
	// PersonaIndex maps a persona ID to its component index within the vertex
	PersonaIndex []int
	// NodeToPersonas maps a vid to its persona IDs in component order
	NodeToPersonas [][]int64
}

// NumPersonas returns the number of persona vertices
func (pg *Graph) NumPersonas() int64 {
	return int64(len(pg.PersonaToNode))
}

// Persona returns the persona ID of component k of vid
func (pg *Graph) Persona(vid int64, k int) (int64, bool) {
	if vid < 0 || vid >= int64(len(pg.NodeToPersonas)) {
		return -1, false
	}
	personas := pg.NodeToPersonas[vid]
	if k < 0 || k >= len(personas) {
		return -1, false
	}
	return personas[k], true
}

// Build assigns persona IDs in (vid, component) order and maps every edge
// of g onto exactly one persona edge.
func Build(g *pronet.ProNet, partitions []Partition) (*Graph, error) {
	pg := &Graph{
		Net:            pronet.NewProNet(),
		NodeToPersonas: make([][]int64, g.MaxVid),
	}
	pg.Net.Logger = g.Logger

	for vid := int64(0); vid < g.MaxVid; vid++ {
		if vid >= int64(len(partitions)) || partitions[vid].Vid != vid {
			return nil, &InternalConsistencyError{Node: g.GetVertexName(vid), Err: ErrMissingPartition}
		}
		for k := 0; k < partitions[vid].Components(); k++ {
			pid := int64(len(pg.PersonaToNode))
			if _, err := pg.Net.AddVertex(pid); err != nil {
				return nil, err
			}
			pg.PersonaToNode = append(pg.PersonaToNode, vid)
			pg.PersonaIndex = append(pg.PersonaIndex, k)
			pg.NodeToPersonas[vid] = append(pg.NodeToPersonas[vid], pid)
		}
	}

	for _, e := range g.Edges {
		u, v := e[0], e[1]
		pu, err := pg.lookup(partitions, g, e, u, v)
		if err != nil {
			return nil, err
		}
		pv, err := pg.lookup(partitions, g, e, v, u)
		if err != nil {
			return nil, err
		}
		if _, err := pg.Net.AddEdge(pu, pv); err != nil {
			return nil, &InternalConsistencyError{
				Edge: [2]int64{g.GetVertexName(u), g.GetVertexName(v)},
				Node: g.GetVertexName(u),
				Err:  err,
			}
		}
	}

	g.Logger.Info("persona graph built",
		"vertices", g.MaxVid, "personas", pg.NumPersonas(), "edges", pg.Net.MaxLine)
	return pg, nil
}

// lookup returns the persona of vid whose component contains neighbor
func (pg *Graph) lookup(partitions []Partition, g *pronet.ProNet, e [2]int64, vid, neighbor int64) (int64, error) {
	k, ok := partitions[vid].Component(neighbor)
	if !ok {
		return -1, &InternalConsistencyError{
			Edge: [2]int64{g.GetVertexName(e[0]), g.GetVertexName(e[1])},
			Node: g.GetVertexName(vid),
			Err:  ErrMissingPersona,
		}
	}
	pid, ok := pg.Persona(vid, k)
	if !ok {
		return -1, &InternalConsistencyError{
			Edge: [2]int64{g.GetVertexName(e[0]), g.GetVertexName(e[1])},
			Node: g.GetVertexName(vid),
			Err:  errors.Wrapf(ErrMissingPersona, "component %d", k),
		}
	}
	return pid, nil
}
