package main

import (
	"fmt"
	"os"

	"github.com/cnclabs/splitter/internal/config"
	"github.com/cnclabs/splitter/internal/logging"
	"github.com/cnclabs/splitter/internal/models/node2vec"
	"github.com/cnclabs/splitter/pkg/pronet"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	trainPath  string
	savePath   string
	iterations int
	cfg        = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "node2vec",
	Short: "Node2Vec - single embedding per vertex",
	Long: `Node2Vec extends DeepWalk with biased random walks:
	- p parameter: controls return probability (higher p = less likely to return)
	- q parameter: controls BFS vs DFS (q > 1 = BFS, q < 1 = DFS)

This is the base model the splitter command initialises personas from.`,
	Example: `  # Homophily (local structure)
  node2vec --train net.csv --save rep.csv --p 1 --q 2

  # Structural equivalence (global structure)
  node2vec --train net.csv --save rep.csv --p 1 --q 0.5`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	m := &cfg.Model
	flags.StringVar(&trainPath, "train", "", "CSV edge list (source,target with a header row)")
	flags.StringVar(&savePath, "save", "", "Save the representation data (CSV)")
	flags.Int64Var(&m.Seed, "seed", m.Seed, "Random seed")
	flags.IntVar(&m.Dimensions, "dimensions", m.Dimensions, "Dimension of vertex representation")
	flags.IntVar(&m.WalksPerNode, "walk-times", m.WalksPerNode, "Times of being starting vertex")
	flags.IntVar(&m.WalkLength, "walk-steps", m.WalkLength, "Vertices per random walk")
	flags.IntVar(&m.WindowSize, "window-size", m.WindowSize, "Size of skip-gram window")
	flags.IntVar(&m.NegativeSamples, "negative-samples", m.NegativeSamples, "Number of negative examples")
	flags.StringVar(&m.NegativePolicy, "negative-policy", m.NegativePolicy, "Negative sampling distribution: degree|uniform")
	flags.IntVar(&iterations, "iterations", 1, "Passes over the walk corpus")
	flags.Float64Var(&m.P, "p", m.P, "Return parameter")
	flags.Float64Var(&m.Q, "q", m.Q, "In-out parameter")
	flags.Float64Var(&m.LearningRate, "alpha", m.LearningRate, "Init learning rate")
	flags.IntVar(&m.Workers, "threads", m.Workers, "Number of walk generation workers")
	flags.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "debug|info|warn|error")

	rootCmd.MarkFlagRequired("train")
	rootCmd.MarkFlagRequired("save")
}

func run(cmd *cobra.Command, args []string) error {
	m := cfg.Model
	m.BaseIterations = iterations
	if err := m.Validate(); err != nil {
		return err
	}
	logger := logging.New(cfg.Logging, os.Stderr).With("run", uuid.NewString())

	n2v := node2vec.New(pronet.NewProNet(), logger)
	if err := n2v.LoadEdgeList(trainPath); err != nil {
		return err
	}

	n2v.SetNegativePolicy(pronet.NegativePolicy(m.NegativePolicy))
	n2v.Init(m.Dimensions, m.P, m.Q, pronet.DeriveSeed(m.Seed, 0))
	if err := n2v.Train(m.WalksPerNode, m.WalkLength, m.WindowSize, m.NegativeSamples,
		m.BaseIterations, m.LearningRate, m.Workers, pronet.DeriveSeed(m.Seed, 1)); err != nil {
		return err
	}

	logger.Info("homophily", "ratio", n2v.ComputeHomophily())

	return n2v.SaveWeights(savePath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
