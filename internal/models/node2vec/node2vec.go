package node2vec

import (
	"encoding/csv"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"strconv"

	"github.com/cnclabs/splitter/pkg/pronet"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Node2Vec implements the Node2Vec algorithm with biased random walks.
// It extends DeepWalk by balancing BFS and DFS exploration via p (return)
// and q (in-out); p = q = 1 is plain DeepWalk.
type Node2Vec struct {
	pnet     *pronet.ProNet
	log      *slog.Logger
	dim      int
	wVertex  [][]float64
	wContext [][]float64

	p float64 // Return parameter (controls likelihood to return to previous node)
	q float64 // In-out parameter (BFS vs DFS: q > 1 = BFS, q < 1 = DFS)

	negative pronet.NegativePolicy
}

// New creates a Node2Vec model over pnet
func New(pnet *pronet.ProNet, logger *slog.Logger) *Node2Vec {
	if logger == nil {
		logger = slog.Default()
	}
	pnet.Logger = logger
	return &Node2Vec{
		pnet: pnet,
		log:  logger,
		p:        1.0,
		q:        1.0,
		negative: pronet.NegativeDegree,
	}
}

// SetNegativePolicy selects the noise distribution Train samples from
func (n2v *Node2Vec) SetNegativePolicy(policy pronet.NegativePolicy) {
	n2v.negative = policy
}

// LoadEdgeList loads the network from a CSV edge list file
func (n2v *Node2Vec) LoadEdgeList(filename string) error {
	return n2v.pnet.LoadEdgeList(filename)
}

// Network returns the underlying graph
func (n2v *Node2Vec) Network() *pronet.ProNet {
	return n2v.pnet
}

// Init initializes the model with given dimensions and bias parameters
func (n2v *Node2Vec) Init(dim int, p, q float64, seed int64) {
	n2v.dim = dim
	n2v.p = p
	n2v.q = q
	maxVid := n2v.pnet.MaxVid

	exploration := "balanced BFS-DFS"
	if q > 1.0 {
		exploration = "BFS-like (local neighborhood)"
	} else if q < 1.0 {
		exploration = "DFS-like (outward expansion)"
	}
	n2v.log.Info("model setting", "model", "node2vec", "dimension", dim, "p", p, "q", q, "exploration", exploration)

	rng := rand.New(rand.NewSource(seed))
	n2v.wVertex = initTable(maxVid, dim, rng)
	n2v.wContext = initTable(maxVid, dim, rng)
}

func initTable(rows int64, dim int, rng *rand.Rand) [][]float64 {
	table := make([][]float64, rows)
	for vid := range table {
		table[vid] = make([]float64, dim)
		for d := 0; d < dim; d++ {
			table[vid][d] = (rng.Float64() - 0.5) / float64(dim)
		}
	}
	return table
}

// Train generates walkTimes biased walks of walkSteps vertices from every
// vertex and runs iterations skip-gram passes over that corpus. Walks are
// sampled by workers goroutines; the gradient pass is sequential so the
// result is reproducible for a fixed seed and worker count.
func (n2v *Node2Vec) Train(walkTimes, walkSteps, windowSize, negativeSamples, iterations int, alpha float64, workers int, seed int64) error {
	if n2v.wVertex == nil {
		return errors.New("node2vec: Train called before Init")
	}

	n2v.log.Info("learning parameters",
		"model", "node2vec",
		"walk_times", walkTimes,
		"walk_steps", walkSteps,
		"window_size", windowSize,
		"negative_samples", negativeSamples,
		"iterations", iterations,
		"alpha", alpha,
		"negative_policy", n2v.negative,
		"workers", workers)

	if iterations == 0 || n2v.pnet.MaxVid == 0 {
		return nil
	}
	if err := n2v.pnet.BuildNegativeTable(n2v.negative); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(seed))

	// Shuffle vertices for random access
	randomKeys := make([]int64, n2v.pnet.MaxVid)
	for vid := range randomKeys {
		randomKeys[vid] = int64(vid)
	}
	rng.Shuffle(len(randomKeys), func(i, j int) {
		randomKeys[i], randomKeys[j] = randomKeys[j], randomKeys[i]
	})

	corpus, err := n2v.pnet.Walks(randomKeys, pronet.WalkOptions{
		WalksPerNode: walkTimes,
		WalkLength:   walkSteps,
		Workers:      workers,
		Weight:       n2v.pnet.Node2VecBias(n2v.p, n2v.q),
		Seed:         pronet.DeriveSeed(seed, 1),
	})
	if err != nil {
		return errors.Wrap(err, "node2vec walks")
	}

	total := int64(len(corpus)) * int64(iterations)
	alphaMin := alpha * 0.0001
	currentAlpha := alpha
	count := int64(0)

	for it := 0; it < iterations; it++ {
		for _, walk := range corpus {
			vertices, contexts := n2v.pnet.SkipGrams(walk, windowSize)
			n2v.pnet.UpdatePairs(n2v.wVertex, n2v.wContext, vertices, contexts, n2v.dim, negativeSamples, currentAlpha, rng)

			count++
			currentAlpha = alpha * (1.0 - float64(count)/float64(total))
			if currentAlpha < alphaMin {
				currentAlpha = alphaMin
			}
			if count%pronet.Monitor == 0 {
				n2v.log.Debug("training", "alpha", currentAlpha, "progress", float64(count)/float64(total)*100)
			}
		}
	}

	n2v.log.Info("training finished", "model", "node2vec", "alpha", currentAlpha)
	return nil
}

// Embeddings returns the vertex table indexed by vid
func (n2v *Node2Vec) Embeddings() [][]float64 {
	return n2v.wVertex
}

// SaveWeights saves the learned embeddings as CSV
func (n2v *Node2Vec) SaveWeights(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to create file %s", filename)
	}
	if err := n2v.WriteWeights(file); err != nil {
		file.Close()
		return errors.Wrap(err, "save node2vec weights")
	}
	if err := file.Close(); err != nil {
		return errors.Wrapf(err, "close %s", filename)
	}
	n2v.log.Info("save model", "file", filename)
	return nil
}

// WriteWeights writes a header row and one row per vertex in vid order
func (n2v *Node2Vec) WriteWeights(w io.Writer) error {
	out := csv.NewWriter(w)

	header := make([]string, 0, n2v.dim+1)
	header = append(header, "node")
	for d := 0; d < n2v.dim; d++ {
		header = append(header, "x_"+strconv.Itoa(d))
	}
	if err := out.Write(header); err != nil {
		return errors.Wrap(err, "write header")
	}

	row := make([]string, n2v.dim+1)
	for vid := int64(0); vid < n2v.pnet.MaxVid; vid++ {
		row[0] = strconv.FormatInt(n2v.pnet.GetVertexName(vid), 10)
		for d := 0; d < n2v.dim; d++ {
			row[d+1] = strconv.FormatFloat(n2v.wVertex[vid][d], 'f', 6, 64)
		}
		if err := out.Write(row); err != nil {
			return errors.Wrapf(err, "write vertex %d", n2v.pnet.GetVertexName(vid))
		}
	}

	out.Flush()
	return out.Error()
}

// ComputeHomophily returns the share of edges whose endpoints have cosine
// similarity above 0.5
func (n2v *Node2Vec) ComputeHomophily() float64 {
	totalEdges := 0
	similarEdges := 0

	threshold := 0.5

	for _, e := range n2v.pnet.Edges {
		totalEdges++
		if cosineSimilarity(n2v.wVertex[e[0]], n2v.wVertex[e[1]]) > threshold {
			similarEdges++
		}
	}

	if totalEdges == 0 {
		return 0.0
	}
	return float64(similarEdges) / float64(totalEdges)
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 || math.IsNaN(normA) || math.IsNaN(normB) {
		return 0.0
	}
	return floats.Dot(a, b) / (normA * normB)
}
