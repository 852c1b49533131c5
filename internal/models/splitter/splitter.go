// Package splitter learns several embeddings per vertex, one per persona,
// as in "Splitter: Learning Node Representations that Capture Multiple
// Social Contexts" (Epasto and Perozzi, WWW 2019).
//
// Each vertex is split into personas by the connected components of its
// ego network. Persona vectors start as copies of a node2vec embedding of
// the original graph and are trained with skip-gram negative sampling on
// persona-graph walks, while a proximity term of weight lambda ties every
// persona to its vertex.
package splitter

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand"

	"github.com/cnclabs/splitter/internal/config"
	"github.com/cnclabs/splitter/internal/models/node2vec"
	"github.com/cnclabs/splitter/pkg/persona"
	"github.com/cnclabs/splitter/pkg/pronet"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// State is the lifecycle stage of a Splitter
type State int

const (
	Uninitialized State = iota
	Initialized
	Training
	Done
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Training:
		return "training"
	case Done:
		return "done"
	}
	return "unknown"
}

var (
	ErrBadState   = errors.New("operation not allowed in current state")
	ErrNotTrained = errors.New("model is not trained")
)

// NumericInstabilityWarning records an epoch whose embeddings left the
// sanity bound. Training continues after it is logged.
type NumericInstabilityWarning struct {
	Epoch  int
	Table  string // base|persona
	MaxAbs float64
	NaN    bool
}

// Splitter owns the original graph, its persona graph and both embedding tables
type Splitter struct {
	cfg config.ModelConfig
	log *slog.Logger

	pnet       *pronet.ProNet
	base       *node2vec.Node2Vec
	partitions []persona.Partition
	personas   *persona.Graph

	wBase    [][]float64 // indexed by vid
	wPersona [][]float64 // indexed by persona ID

	state    State
	epochs   int
	warnings []NumericInstabilityWarning
}

// New validates cfg and creates an empty model
func New(cfg config.ModelConfig, logger *slog.Logger) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	pnet := pronet.NewProNet()
	pnet.Logger = logger
	return &Splitter{
		cfg:  cfg,
		log:  logger,
		pnet: pnet,
	}, nil
}

// LoadEdgeList loads the original network from a CSV edge list file
func (s *Splitter) LoadEdgeList(filename string) error {
	if s.state != Uninitialized {
		return errors.Wrapf(ErrBadState, "load edge list while %s", s.state)
	}
	return s.pnet.LoadEdgeList(filename)
}

// ReadEdgeList reads the original network from a CSV edge list
func (s *Splitter) ReadEdgeList(r io.Reader) error {
	if s.state != Uninitialized {
		return errors.Wrapf(ErrBadState, "read edge list while %s", s.state)
	}
	return s.pnet.ReadEdgeList(r)
}

// Network returns the original graph
func (s *Splitter) Network() *pronet.ProNet {
	return s.pnet
}

// PersonaGraph returns the persona graph, nil before Init
func (s *Splitter) PersonaGraph() *persona.Graph {
	return s.personas
}

// Partitions returns the ego-network partition of every vertex, nil before Init
func (s *Splitter) Partitions() []persona.Partition {
	return s.partitions
}

// State returns the lifecycle stage
func (s *Splitter) State() State {
	return s.state
}

// Epochs returns the number of completed training epochs
func (s *Splitter) Epochs() int {
	return s.epochs
}

// Warnings returns the numeric instability warnings raised so far
func (s *Splitter) Warnings() []NumericInstabilityWarning {
	return s.warnings
}

// BaseEmbeddings returns the vertex table indexed by vid
func (s *Splitter) BaseEmbeddings() [][]float64 {
	return s.wBase
}

// PersonaEmbeddings returns the persona table indexed by persona ID
func (s *Splitter) PersonaEmbeddings() [][]float64 {
	return s.wPersona
}

// Init splits the graph into personas, fits the base node2vec model on the
// original graph and copies every base vector into its personas.
func (s *Splitter) Init() error {
	if s.state != Uninitialized {
		return errors.Wrapf(ErrBadState, "init while %s", s.state)
	}
	cfg := s.cfg

	s.log.Info("model setting",
		"model", "splitter",
		"dimension", cfg.Dimensions,
		"lambda", cfg.Lambda,
		"p", cfg.P,
		"q", cfg.Q,
		"negative_policy", cfg.NegativePolicy)

	s.partitions = persona.SplitAll(s.pnet)
	personas, err := persona.Build(s.pnet, s.partitions)
	if err != nil {
		return err
	}
	s.personas = personas
	if err := s.personas.Net.BuildNegativeTable(pronet.NegativePolicy(cfg.NegativePolicy)); err != nil {
		return err
	}

	s.base = node2vec.New(s.pnet, s.log)
	s.base.SetNegativePolicy(pronet.NegativePolicy(cfg.NegativePolicy))
	s.base.Init(cfg.Dimensions, cfg.P, cfg.Q, pronet.DeriveSeed(cfg.Seed, 0))
	if err := s.base.Train(cfg.WalksPerNode, cfg.WalkLength, cfg.WindowSize, cfg.NegativeSamples,
		cfg.BaseIterations, cfg.LearningRate, cfg.Workers, pronet.DeriveSeed(cfg.Seed, 1)); err != nil {
		return errors.Wrap(err, "base model")
	}

	s.wBase = make([][]float64, s.pnet.MaxVid)
	for vid, vec := range s.base.Embeddings() {
		s.wBase[vid] = append([]float64(nil), vec...)
	}

	s.wPersona = make([][]float64, s.personas.NumPersonas())
	for pid, vid := range s.personas.PersonaToNode {
		s.wPersona[pid] = append([]float64(nil), s.wBase[vid]...)
	}

	s.state = Initialized
	return nil
}

// Train runs cfg.Epochs epochs of persona training. Each epoch walks the
// persona graph from a freshly shuffled persona order. Every walk takes a
// skip-gram step on its window pairs and then pulls each persona it visited
// toward its vertex at the current learning rate. The epoch ends with one
// pull over every persona at the rate the epoch started with. Base vectors
// only move through these pulls.
//
// ctx is checked between epochs: once it is done the current epoch
// completes, the model becomes Done and ctx.Err() is returned, so the
// partially trained embeddings remain exportable.
func (s *Splitter) Train(ctx context.Context) error {
	if s.state != Initialized {
		return errors.Wrapf(ErrBadState, "train while %s", s.state)
	}
	s.state = Training
	cfg := s.cfg
	pg := s.personas

	s.log.Info("learning parameters",
		"model", "splitter",
		"epochs", cfg.Epochs,
		"walks_per_node", cfg.WalksPerNode,
		"walk_length", cfg.WalkLength,
		"window_size", cfg.WindowSize,
		"negative_samples", cfg.NegativeSamples,
		"alpha", cfg.LearningRate,
		"workers", cfg.Workers)

	rng := rand.New(rand.NewSource(pronet.DeriveSeed(cfg.Seed, 2)))
	weight := pg.Net.Node2VecBias(cfg.P, cfg.Q)

	numPersonas := pg.NumPersonas()
	total := int64(cfg.Epochs) * numPersonas * int64(cfg.WalksPerNode)
	alpha := cfg.LearningRate
	alphaMin := alpha * 0.0001
	currentAlpha := alpha
	count := int64(0)

	diff := make([]float64, cfg.Dimensions)
	drift := make([]float64, numPersonas)

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		epochAlpha := currentAlpha
		order := make([]int64, numPersonas)
		for pid := range order {
			order[pid] = int64(pid)
		}
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})

		corpus, err := pg.Net.Walks(order, pronet.WalkOptions{
			WalksPerNode: cfg.WalksPerNode,
			WalkLength:   cfg.WalkLength,
			Workers:      cfg.Workers,
			Weight:       weight,
			Seed:         pronet.DeriveSeed(cfg.Seed, 3, int64(epoch)),
		})
		if err != nil {
			s.state = Done
			return errors.Wrapf(err, "persona walks, epoch %d", epoch)
		}

		for _, walk := range corpus {
			vertices, contexts := pg.Net.SkipGrams(walk, cfg.WindowSize)
			pg.Net.UpdatePairs(s.wPersona, s.wPersona, vertices, contexts, cfg.Dimensions, cfg.NegativeSamples, currentAlpha, rng)
			for _, pid := range walk {
				pronet.UpdateProximity(s.wPersona[pid], s.wBase[pg.PersonaToNode[pid]], cfg.Lambda, currentAlpha, diff)
			}

			count++
			currentAlpha = alpha * (1.0 - float64(count)/float64(total))
			if currentAlpha < alphaMin {
				currentAlpha = alphaMin
			}
			if count%pronet.Monitor == 0 {
				s.log.Debug("training", "alpha", currentAlpha, "progress", float64(count)/float64(total)*100)
			}
		}

		for pid, vid := range pg.PersonaToNode {
			pronet.UpdateProximity(s.wPersona[pid], s.wBase[vid], cfg.Lambda, epochAlpha, diff)
		}
		for pid, vid := range pg.PersonaToNode {
			drift[pid] = floats.Distance(s.wPersona[pid], s.wBase[vid], 2)
		}

		s.epochs++
		s.checkNumerics(epoch)

		mean, std := 0.0, 0.0
		if numPersonas > 0 {
			mean, std = stat.MeanStdDev(drift, nil)
		}
		s.log.Info("epoch finished",
			"epoch", epoch+1,
			"alpha", currentAlpha,
			"drift_mean", mean,
			"drift_std", std)

		if err := ctx.Err(); err != nil && epoch+1 < cfg.Epochs {
			s.state = Done
			s.log.Warn("training interrupted", "epochs_done", s.epochs, "epochs", cfg.Epochs)
			return err
		}
	}

	s.state = Done
	s.log.Info("training finished", "model", "splitter", "epochs", s.epochs)
	return nil
}

// checkNumerics scans both tables against cfg.NumericBound
func (s *Splitter) checkNumerics(epoch int) {
	for _, table := range []struct {
		name string
		rows [][]float64
	}{
		{"base", s.wBase},
		{"persona", s.wPersona},
	} {
		maxAbs := 0.0
		hasNaN := false
		for _, row := range table.rows {
			if floats.HasNaN(row) {
				hasNaN = true
				continue
			}
			if m := floats.Norm(row, math.Inf(1)); m > maxAbs {
				maxAbs = m
			}
		}
		if !hasNaN && maxAbs <= s.cfg.NumericBound {
			continue
		}

		w := NumericInstabilityWarning{Epoch: epoch, Table: table.name, MaxAbs: maxAbs, NaN: hasNaN}
		s.warnings = append(s.warnings, w)
		s.log.Warn("numeric instability, consider a lower learning rate",
			"epoch", epoch+1,
			"table", w.Table,
			"max_abs", w.MaxAbs,
			"nan", w.NaN,
			"bound", s.cfg.NumericBound)
	}
}
