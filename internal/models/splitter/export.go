package splitter

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/pkg/errors"
)

// Row is one exported persona embedding
type Row struct {
	Persona int64 // persona ID
	Node    int64 // original vertex name
	Index   int   // component index within the vertex
	Vector  []float64
}

type rowKey struct {
	node  int64
	index int
}

func compareRowKeys(a, b interface{}) int {
	ka, kb := a.(rowKey), b.(rowKey)
	switch {
	case ka.node < kb.node:
		return -1
	case ka.node > kb.node:
		return 1
	case ka.index < kb.index:
		return -1
	case ka.index > kb.index:
		return 1
	}
	return 0
}

// Rows returns the persona table ordered by vertex name, then persona index
func (s *Splitter) Rows() ([]Row, error) {
	if s.state != Done {
		return nil, errors.Wrapf(ErrNotTrained, "export while %s", s.state)
	}

	pg := s.personas
	ordered := treemap.NewWith(compareRowKeys)
	for pid, vid := range pg.PersonaToNode {
		row := Row{
			Persona: int64(pid),
			Node:    s.pnet.GetVertexName(vid),
			Index:   pg.PersonaIndex[pid],
			Vector:  s.wPersona[pid],
		}
		ordered.Put(rowKey{node: row.Node, index: row.Index}, row)
	}

	rows := make([]Row, 0, ordered.Size())
	it := ordered.Iterator()
	for it.Next() {
		rows = append(rows, it.Value().(Row))
	}
	return rows, nil
}

// PersonaMap returns persona ID -> original vertex name
func (s *Splitter) PersonaMap() (map[int64]int64, error) {
	if s.personas == nil {
		return nil, errors.Wrapf(ErrBadState, "persona map while %s", s.state)
	}
	mapping := make(map[int64]int64, len(s.personas.PersonaToNode))
	for pid, vid := range s.personas.PersonaToNode {
		mapping[int64(pid)] = s.pnet.GetVertexName(vid)
	}
	return mapping, nil
}

// WriteWeights writes the persona table as CSV: id,node,x_0..x_{D-1}
func (s *Splitter) WriteWeights(w io.Writer) error {
	rows, err := s.Rows()
	if err != nil {
		return err
	}

	out := csv.NewWriter(w)
	dim := s.cfg.Dimensions

	header := make([]string, 0, dim+2)
	header = append(header, "id", "node")
	for d := 0; d < dim; d++ {
		header = append(header, "x_"+strconv.Itoa(d))
	}
	if err := out.Write(header); err != nil {
		return errors.Wrap(err, "write header")
	}

	record := make([]string, dim+2)
	for _, row := range rows {
		record[0] = strconv.FormatInt(row.Persona, 10)
		record[1] = strconv.FormatInt(row.Node, 10)
		for d, v := range row.Vector {
			record[d+2] = strconv.FormatFloat(v, 'f', 6, 64)
		}
		if err := out.Write(record); err != nil {
			return errors.Wrapf(err, "write persona %d", row.Persona)
		}
	}

	out.Flush()
	return out.Error()
}

// WritePersonaMap writes the persona map as a JSON object
func (s *Splitter) WritePersonaMap(w io.Writer) error {
	mapping, err := s.PersonaMap()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(mapping), "encode persona map")
}

// WritePersonaGraph writes the persona graph edge list as CSV: source,target
func (s *Splitter) WritePersonaGraph(w io.Writer) error {
	if s.personas == nil {
		return errors.Wrapf(ErrBadState, "persona graph while %s", s.state)
	}
	out := csv.NewWriter(w)
	if err := out.Write([]string{"source", "target"}); err != nil {
		return errors.Wrap(err, "write header")
	}
	net := s.personas.Net
	for _, e := range net.Edges {
		if err := out.Write([]string{
			strconv.FormatInt(net.GetVertexName(e[0]), 10),
			strconv.FormatInt(net.GetVertexName(e[1]), 10),
		}); err != nil {
			return errors.Wrap(err, "write edge")
		}
	}
	out.Flush()
	return out.Error()
}

// WriteBaseWeights writes the base vertex table as CSV: node,x_0..x_{D-1}
func (s *Splitter) WriteBaseWeights(w io.Writer) error {
	if s.state != Done {
		return errors.Wrapf(ErrNotTrained, "export while %s", s.state)
	}
	out := csv.NewWriter(w)
	dim := s.cfg.Dimensions

	header := make([]string, 0, dim+1)
	header = append(header, "node")
	for d := 0; d < dim; d++ {
		header = append(header, "x_"+strconv.Itoa(d))
	}
	if err := out.Write(header); err != nil {
		return errors.Wrap(err, "write header")
	}

	// Sorted by name to match the persona table
	ordered := treemap.NewWith(func(a, b interface{}) int {
		return compareRowKeys(rowKey{node: a.(int64)}, rowKey{node: b.(int64)})
	})
	for vid, vec := range s.wBase {
		ordered.Put(s.pnet.GetVertexName(int64(vid)), vec)
	}

	record := make([]string, dim+1)
	it := ordered.Iterator()
	for it.Next() {
		record[0] = strconv.FormatInt(it.Key().(int64), 10)
		for d, v := range it.Value().([]float64) {
			record[d+1] = strconv.FormatFloat(v, 'f', 6, 64)
		}
		if err := out.Write(record); err != nil {
			return errors.Wrapf(err, "write vertex %d", it.Key())
		}
	}

	out.Flush()
	return out.Error()
}

// SaveWeights saves the persona embeddings to a CSV file
func (s *Splitter) SaveWeights(filename string) error {
	return s.save(filename, "persona embeddings", s.WriteWeights)
}

// SavePersonaMap saves the persona map to a JSON file
func (s *Splitter) SavePersonaMap(filename string) error {
	return s.save(filename, "persona map", s.WritePersonaMap)
}

// SavePersonaGraph saves the persona graph edge list to a CSV file
func (s *Splitter) SavePersonaGraph(filename string) error {
	return s.save(filename, "persona graph", s.WritePersonaGraph)
}

// SaveBaseWeights saves the base embeddings to a CSV file
func (s *Splitter) SaveBaseWeights(filename string) error {
	return s.save(filename, "base embeddings", s.WriteBaseWeights)
}

func (s *Splitter) save(filename, what string, write func(io.Writer) error) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to create file %s", filename)
	}
	if err := write(file); err != nil {
		file.Close()
		return errors.Wrapf(err, "save %s", what)
	}
	if err := file.Close(); err != nil {
		return errors.Wrapf(err, "close %s", filename)
	}
	s.log.Info("save model", "output", what, "file", filename)
	return nil
}
