package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cnclabs/splitter/internal/config"
	"github.com/cnclabs/splitter/internal/logging"
	"github.com/cnclabs/splitter/internal/models/splitter"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configPath       string
	trainPath        string
	savePath         string
	personaMapPath   string
	baseSavePath     string
	personaGraphPath string
	cfg              = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "splitter",
	Short: "Splitter - multiple persona embeddings per vertex",
	Long: `Golang implementation of Splitter (WWW 2019).

Every vertex is split into one persona per connected component of its ego
network. Persona embeddings are initialised from a node2vec embedding of the
original graph and trained on persona-graph walks with a regulariser (lambda)
tying each persona to its vertex.`,
	Example: `  splitter --train net.csv --save personas.csv --persona-map personas.json \
    --dimensions 128 --lambda 0.1 --walks-per-node 10 --walk-length 80 \
    --window-size 5 --negative-samples 5 --alpha 0.025 --workers 4`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "", "YAML config file; flags override it")
	flags.StringVar(&trainPath, "train", "", "CSV edge list (source,target with a header row)")
	flags.StringVar(&savePath, "save", "", "Save the persona representation (CSV)")
	flags.StringVar(&personaMapPath, "persona-map", "", "Save the persona -> vertex map (JSON)")
	flags.StringVar(&baseSavePath, "save-base", "", "Save the base vertex representation (CSV)")
	flags.StringVar(&personaGraphPath, "save-persona-graph", "", "Save the persona graph edge list (CSV)")

	m := &cfg.Model
	flags.Int64Var(&m.Seed, "seed", m.Seed, "Random seed")
	flags.IntVar(&m.Dimensions, "dimensions", m.Dimensions, "Dimension of vertex representation")
	flags.IntVar(&m.WalksPerNode, "walks-per-node", m.WalksPerNode, "Walks started from every vertex")
	flags.IntVar(&m.WalkLength, "walk-length", m.WalkLength, "Vertices per random walk")
	flags.IntVar(&m.WindowSize, "window-size", m.WindowSize, "Size of skip-gram window")
	flags.IntVar(&m.NegativeSamples, "negative-samples", m.NegativeSamples, "Number of negative examples")
	flags.StringVar(&m.NegativePolicy, "negative-policy", m.NegativePolicy, "Negative sampling distribution: degree|uniform")
	flags.Float64Var(&m.Lambda, "lambda", m.Lambda, "Weight of the persona-to-vertex regulariser")
	flags.Float64Var(&m.LearningRate, "alpha", m.LearningRate, "Init learning rate")
	flags.Float64Var(&m.P, "p", m.P, "Return parameter")
	flags.Float64Var(&m.Q, "q", m.Q, "In-out parameter")
	flags.IntVar(&m.Epochs, "epochs", m.Epochs, "Persona training epochs")
	flags.IntVar(&m.BaseIterations, "base-iterations", m.BaseIterations, "Passes of the base node2vec model")
	flags.IntVar(&m.Workers, "workers", m.Workers, "Number of walk generation workers")
	flags.Float64Var(&m.NumericBound, "numeric-bound", m.NumericBound, "Warn when an embedding value exceeds this magnitude")
	flags.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "debug|info|warn|error")
	flags.StringVar(&cfg.Logging.Format, "log-format", cfg.Logging.Format, "text|json")
	flags.BoolVar(&cfg.Logging.IncludeCaller, "log-caller", cfg.Logging.IncludeCaller, "Include source location in log records")

	rootCmd.MarkFlagRequired("train")
	rootCmd.MarkFlagRequired("save")
}

func run(cmd *cobra.Command, args []string) error {
	if err := applyConfigFile(cmd); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.Logging, os.Stderr).With("run", uuid.NewString())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	model, err := splitter.New(cfg.Model, logger)
	if err != nil {
		return err
	}
	if err := model.LoadEdgeList(trainPath); err != nil {
		return err
	}
	if err := model.Init(); err != nil {
		return err
	}

	if err := model.Train(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Warn("exporting partially trained model", "epochs_done", model.Epochs())
	}

	if err := model.SaveWeights(savePath); err != nil {
		return err
	}
	if personaMapPath != "" {
		if err := model.SavePersonaMap(personaMapPath); err != nil {
			return err
		}
	}
	if baseSavePath != "" {
		if err := model.SaveBaseWeights(baseSavePath); err != nil {
			return err
		}
	}
	if personaGraphPath != "" {
		if err := model.SavePersonaGraph(personaGraphPath); err != nil {
			return err
		}
	}
	return nil
}

// applyConfigFile loads --config and re-applies the flags set on the command line
func applyConfigFile(cmd *cobra.Command) error {
	if configPath == "" {
		return nil
	}
	fileCfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	changed := make(map[string]string)
	flags.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	cfg = fileCfg
	for name, value := range changed {
		if err := flags.Set(name, value); err != nil {
			return errors.Wrapf(err, "flag --%s", name)
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
