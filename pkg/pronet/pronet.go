package pronet

import (
	"encoding/csv"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	Monitor          = 10000
	PowerSample      = 0.75
	SigmoidTableSize = 1000
	MaxSigmoid       = 8.0
)

// NegativePolicy selects the noise distribution used for negative sampling
type NegativePolicy string

const (
	// NegativeDegree samples proportional to 1 + degree^PowerSample
	NegativeDegree NegativePolicy = "degree"
	// NegativeUniform samples every vertex with equal probability
	NegativeUniform NegativePolicy = "uniform"
)

// AliasTable for efficient weighted sampling
type AliasTable struct {
	Alias int64
	Prob  float64
}

// ProNet is an undirected simple graph over integer vertex names.
// Vertex names are remapped to the contiguous range [0, MaxVid) in
// first-appearance order; adjacency lists keep insertion order.
type ProNet struct {
	// Hash tables for vertex name mapping
	VertexHash map[int64]int64
	VertexKeys []int64

	// Graph structure (adjacency list indexed by vid)
	Graph [][]int64

	// Distinct undirected edges in first-appearance order
	Edges [][2]int64

	NegativeAT []AliasTable

	// Cached sigmoid table for performance
	CachedSigmoid []float64

	// Statistics
	MaxVid  int64
	MaxLine int64

	Logger *slog.Logger

	edgeSet map[[2]int64]struct{}
}

// NewProNet creates a new ProNet instance
func NewProNet() *ProNet {
	pn := &ProNet{
		VertexHash:    make(map[int64]int64),
		VertexKeys:    make([]int64, 0),
		CachedSigmoid: make([]float64, SigmoidTableSize+1),
		Logger:        slog.Default(),
		edgeSet:       make(map[[2]int64]struct{}),
	}
	pn.initSigmoid()
	return pn
}

// initSigmoid initializes the sigmoid lookup table
func (pn *ProNet) initSigmoid() {
	for i := 0; i <= SigmoidTableSize; i++ {
		x := float64(i)*2.0*MaxSigmoid/float64(SigmoidTableSize) - MaxSigmoid
		pn.CachedSigmoid[i] = 1.0 / (1.0 + math.Exp(-x))
	}
}

// FastSigmoid returns sigmoid using lookup table for performance
func (pn *ProNet) FastSigmoid(x float64) float64 {
	if x < -MaxSigmoid {
		return 0.0
	} else if x > MaxSigmoid {
		return 1.0
	}
	idx := int((x + MaxSigmoid) * float64(SigmoidTableSize) / MaxSigmoid / 2.0)
	if idx >= len(pn.CachedSigmoid) {
		idx = len(pn.CachedSigmoid) - 1
	}
	return pn.CachedSigmoid[idx]
}

// LoadEdgeList loads the network from a CSV edge list file
func (pn *ProNet) LoadEdgeList(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to open file %s", filename)
	}
	defer file.Close()

	pn.Logger.Info("loading network", "file", filename)
	return pn.ReadEdgeList(file)
}

// ReadEdgeList reads a two-column CSV edge list with one header row.
// Any malformed record aborts the load with an *InputGraphError.
func (pn *ProNet) ReadEdgeList(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return &InputGraphError{Line: 1, Err: errors.Wrap(ErrBadEdge, "missing header row")}
		}
		return &InputGraphError{Line: 1, Err: err}
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return &InputGraphError{Line: line, Err: errors.Wrap(ErrBadEdge, err.Error())}
		}

		src, err := parseVertexName(record[0])
		if err != nil {
			return &InputGraphError{Line: line, Column: 1, Err: err}
		}
		dst, err := parseVertexName(record[1])
		if err != nil {
			return &InputGraphError{Line: line, Column: 2, Err: err}
		}
		if _, err := pn.AddEdge(src, dst); err != nil {
			return &InputGraphError{Line: line, Err: err}
		}

		if pn.MaxLine%Monitor == 0 && pn.MaxLine > 0 {
			pn.Logger.Debug("loading network", "connections", pn.MaxLine)
		}
	}

	pn.Logger.Info("graph loaded", "vertices", pn.MaxVid, "edges", pn.MaxLine)
	return nil
}

func parseVertexName(field string) (int64, error) {
	name, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrBadVtxID, "%q is not an integer", field)
	}
	if name < 0 {
		return 0, errors.Wrapf(ErrBadVtxID, "%d is negative", name)
	}
	return name, nil
}

// AddVertex returns the vid of name, creating it if needed
func (pn *ProNet) AddVertex(name int64) (int64, error) {
	if name < 0 {
		return -1, errors.Wrapf(ErrBadVtxID, "%d is negative", name)
	}
	if vid, exists := pn.VertexHash[name]; exists {
		return vid, nil
	}

	vid := int64(len(pn.VertexKeys))
	pn.VertexHash[name] = vid
	pn.VertexKeys = append(pn.VertexKeys, name)
	pn.Graph = append(pn.Graph, nil)
	pn.MaxVid = vid + 1

	return vid, nil
}

// AddEdge adds the undirected edge {a, b} by vertex name. Parallel edges are
// collapsed; the returned bool reports whether a new edge was stored.
func (pn *ProNet) AddEdge(a, b int64) (bool, error) {
	if a == b {
		return false, errors.Wrapf(ErrSelfLoop, "vertex %d", a)
	}
	va, err := pn.AddVertex(a)
	if err != nil {
		return false, err
	}
	vb, err := pn.AddVertex(b)
	if err != nil {
		return false, err
	}

	key := edgeKey(va, vb)
	if _, exists := pn.edgeSet[key]; exists {
		return false, nil
	}
	pn.edgeSet[key] = struct{}{}

	pn.Graph[va] = append(pn.Graph[va], vb)
	pn.Graph[vb] = append(pn.Graph[vb], va)
	pn.Edges = append(pn.Edges, [2]int64{va, vb})
	pn.MaxLine++

	return true, nil
}

func edgeKey(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

// HasEdge reports whether vids a and b are adjacent
func (pn *ProNet) HasEdge(a, b int64) bool {
	_, exists := pn.edgeSet[edgeKey(a, b)]
	return exists
}

// Neighbors returns the adjacency list of vid in insertion order
func (pn *ProNet) Neighbors(vid int64) []int64 {
	if vid < 0 || vid >= pn.MaxVid {
		return nil
	}
	return pn.Graph[vid]
}

// Degree returns the number of distinct neighbors of vid
func (pn *ProNet) Degree(vid int64) int {
	return len(pn.Neighbors(vid))
}

// Vertex looks up the vid of a vertex name
func (pn *ProNet) Vertex(name int64) (int64, bool) {
	vid, exists := pn.VertexHash[name]
	return vid, exists
}

// GetVertexName returns the name of a vertex by ID, or -1 if unknown
func (pn *ProNet) GetVertexName(vid int64) int64 {
	if vid < 0 || vid >= int64(len(pn.VertexKeys)) {
		return -1
	}
	return pn.VertexKeys[vid]
}

// BuildNegativeTable builds the alias table used by NegativeSample
func (pn *ProNet) BuildNegativeTable(policy NegativePolicy) error {
	distribution := make([]float64, pn.MaxVid)
	switch policy {
	case NegativeDegree, "":
		for vid := int64(0); vid < pn.MaxVid; vid++ {
			distribution[vid] = 1.0 + math.Pow(float64(pn.Degree(vid)), PowerSample)
		}
	case NegativeUniform:
		for vid := range distribution {
			distribution[vid] = 1.0
		}
	default:
		return errors.Errorf("unknown negative sampling policy %q", policy)
	}
	pn.NegativeAT = BuildAliasMethod(distribution, 1.0)
	return nil
}

// NegativeSample samples a negative vertex
func (pn *ProNet) NegativeSample(rng *rand.Rand) int64 {
	return aliasSample(pn.NegativeAT, rng)
}

// SkipGrams generates skip-gram training pairs from a walk
func (pn *ProNet) SkipGrams(walk []int64, windowSize int) ([]int64, []int64) {
	vertices := make([]int64, 0)
	contexts := make([]int64, 0)

	for i := 0; i < len(walk); i++ {
		start := i - windowSize
		if start < 0 {
			start = 0
		}
		end := i + windowSize + 1
		if end > len(walk) {
			end = len(walk)
		}

		for j := start; j < end; j++ {
			if i != j {
				vertices = append(vertices, walk[i])
				contexts = append(contexts, walk[j])
			}
		}
	}

	return vertices, contexts
}
