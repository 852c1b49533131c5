package splitter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cnclabs/splitter/internal/config"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// bowtie centered at 5 with triangles {5,3,9} and {5,1,7}; names appear
// out of order so persona IDs are not sorted by vertex name
const bowtie = `source,target
5,3
3,9
9,5
5,1
1,7
7,5
`

const clique = `source,target
0,1
0,2
0,3
1,2
1,3
2,3
`

const star = `source,target
0,1
0,2
0,3
0,4
`

func testConfig() config.ModelConfig {
	cfg := config.Default().Model
	cfg.Dimensions = 8
	cfg.WalksPerNode = 4
	cfg.WalkLength = 10
	cfg.WindowSize = 2
	cfg.Epochs = 2
	cfg.Workers = 2
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newModel(t *testing.T, cfg config.ModelConfig, edges string) *Splitter {
	t.Helper()
	s, err := New(cfg, quietLogger())
	require.NoError(t, err)
	require.NoError(t, s.ReadEdgeList(strings.NewReader(edges)))
	require.NoError(t, s.Init())
	return s
}

func trainedModel(t *testing.T, cfg config.ModelConfig, edges string) *Splitter {
	t.Helper()
	s := newModel(t, cfg, edges)
	require.NoError(t, s.Train(context.Background()))
	return s
}

func copyTable(table [][]float64) [][]float64 {
	out := make([][]float64, len(table))
	for i, row := range table {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.WalkLength = 0
	_, err := New(cfg, nil)
	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "walk_length", cfgErr.Param)
}

func TestLifecycle(t *testing.T) {
	s, err := New(testConfig(), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, Uninitialized, s.State())

	assert.True(t, errors.Is(s.Train(context.Background()), ErrBadState))
	_, err = s.PersonaMap()
	assert.True(t, errors.Is(err, ErrBadState))

	require.NoError(t, s.ReadEdgeList(strings.NewReader(bowtie)))
	require.NoError(t, s.Init())
	assert.Equal(t, Initialized, s.State())
	assert.True(t, errors.Is(s.Init(), ErrBadState))
	assert.True(t, errors.Is(s.ReadEdgeList(strings.NewReader(bowtie)), ErrBadState))

	_, err = s.Rows()
	assert.True(t, errors.Is(err, ErrNotTrained))

	require.NoError(t, s.Train(context.Background()))
	assert.Equal(t, Done, s.State())
	assert.Equal(t, 2, s.Epochs())
	assert.True(t, errors.Is(s.Train(context.Background()), ErrBadState))
	assert.Equal(t, "done", s.State().String())
}

func TestInitCopiesBaseIntoPersonas(t *testing.T) {
	s := newModel(t, testConfig(), bowtie)
	pg := s.PersonaGraph()

	require.Len(t, s.PersonaEmbeddings(), int(pg.NumPersonas()))
	for pid, vid := range pg.PersonaToNode {
		assert.Equal(t, s.BaseEmbeddings()[vid], s.PersonaEmbeddings()[pid])
	}
	// copies, not aliases
	s.PersonaEmbeddings()[0][0] += 1
	assert.NotEqual(t, s.BaseEmbeddings()[pg.PersonaToNode[0]][0], s.PersonaEmbeddings()[0][0])
}

func TestTrianglePersonaGraph(t *testing.T) {
	s := newModel(t, testConfig(), "a,b\n0,1\n1,2\n0,2\n")
	pg := s.PersonaGraph()
	assert.Equal(t, int64(3), pg.NumPersonas())
	assert.Equal(t, int64(3), pg.Net.MaxLine)
}

func TestBaseMovesOnlyThroughRegularizer(t *testing.T) {
	cfg := testConfig()
	cfg.Lambda = 0
	s := newModel(t, cfg, bowtie)
	base := copyTable(s.BaseEmbeddings())
	personas := copyTable(s.PersonaEmbeddings())

	require.NoError(t, s.Train(context.Background()))
	assert.Equal(t, base, s.BaseEmbeddings())
	assert.NotEqual(t, personas, s.PersonaEmbeddings())
}

func TestRegularizerConvergence(t *testing.T) {
	cfg := testConfig()
	cfg.Lambda = 1e6
	s := trainedModel(t, cfg, clique)
	pg := s.PersonaGraph()
	require.Equal(t, pg.NumPersonas(), s.Network().MaxVid, "one persona per vertex")

	for pid, vid := range pg.PersonaToNode {
		dist := floats.Distance(s.PersonaEmbeddings()[pid], s.BaseEmbeddings()[vid], 2)
		assert.InDelta(t, 0, dist, 1e-9, "persona %d", pid)
	}
}

func meanDrift(s *Splitter) float64 {
	pg := s.PersonaGraph()
	drift := make([]float64, pg.NumPersonas())
	for pid, vid := range pg.PersonaToNode {
		drift[pid] = floats.Distance(s.PersonaEmbeddings()[pid], s.BaseEmbeddings()[vid], 2)
	}
	return stat.Mean(drift, nil)
}

func TestDriftFallsAsLambdaGrows(t *testing.T) {
	oneEpoch := func(lambda float64) config.ModelConfig {
		cfg := testConfig()
		cfg.Epochs = 1
		cfg.WalksPerNode = 10
		cfg.WalkLength = 20
		cfg.Lambda = lambda
		return cfg
	}

	free := meanDrift(trainedModel(t, oneEpoch(0), bowtie))
	mild := trainedModel(t, oneEpoch(0.1), bowtie)
	tied := meanDrift(trainedModel(t, oneEpoch(1), bowtie))

	assert.Greater(t, free, 0.0)
	assert.Less(t, meanDrift(mild), free)
	assert.Less(t, tied, meanDrift(mild))
	assert.Less(t, tied, 0.75*free)

	// one epoch at moderate lambda already moves the base table
	initial := newModel(t, oneEpoch(0.1), bowtie)
	assert.NotEqual(t, initial.BaseEmbeddings(), mild.BaseEmbeddings())
}

func TestLambdaShrinksDriftOnStar(t *testing.T) {
	drift := func(lambda float64) float64 {
		cfg := testConfig()
		cfg.Lambda = lambda
		return meanDrift(trainedModel(t, cfg, star))
	}

	free := drift(0)
	assert.Greater(t, free, 0.0)
	assert.Less(t, drift(0.1), free)
	assert.Less(t, drift(1e6), free)
}

func TestTrainingIsDeterministic(t *testing.T) {
	first := trainedModel(t, testConfig(), bowtie)
	second := trainedModel(t, testConfig(), bowtie)
	assert.Equal(t, first.PersonaEmbeddings(), second.PersonaEmbeddings())
	assert.Equal(t, first.BaseEmbeddings(), second.BaseEmbeddings())

	cfg := testConfig()
	cfg.Seed = 7
	other := trainedModel(t, cfg, bowtie)
	assert.NotEqual(t, first.PersonaEmbeddings(), other.PersonaEmbeddings())
}

func TestTrainStopsAfterEpochOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Epochs = 3
	s := newModel(t, cfg, bowtie)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Train(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, s.Epochs())
	assert.Equal(t, Done, s.State())

	rows, err := s.Rows()
	require.NoError(t, err)
	assert.Len(t, rows, 6)
}

func TestNumericInstabilityWarning(t *testing.T) {
	cfg := testConfig()
	cfg.NumericBound = 1e-12
	s := trainedModel(t, cfg, bowtie)

	warnings := s.Warnings()
	require.NotEmpty(t, warnings)
	assert.Equal(t, 0, warnings[0].Epoch)
	assert.Equal(t, "base", warnings[0].Table)
	assert.Greater(t, warnings[0].MaxAbs, cfg.NumericBound)
	assert.Equal(t, Done, s.State())

	quiet := trainedModel(t, testConfig(), bowtie)
	assert.Empty(t, quiet.Warnings())
}

func TestRowsOrdering(t *testing.T) {
	s := trainedModel(t, testConfig(), bowtie)
	rows, err := s.Rows()
	require.NoError(t, err)

	nodes := make([]int64, len(rows))
	personas := make([]int64, len(rows))
	indices := make([]int, len(rows))
	for i, row := range rows {
		nodes[i] = row.Node
		personas[i] = row.Persona
		indices[i] = row.Index
		assert.Len(t, row.Vector, 8)
	}
	assert.Equal(t, []int64{1, 3, 5, 5, 7, 9}, nodes)
	assert.Equal(t, []int{0, 0, 0, 1, 0, 0}, indices)
	assert.Equal(t, []int64{4, 2, 0, 1, 5, 3}, personas)
}

func TestWriteWeights(t *testing.T) {
	s := trainedModel(t, testConfig(), bowtie)

	var buf bytes.Buffer
	require.NoError(t, s.WriteWeights(&buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 7)
	assert.Equal(t, []string{"id", "node", "x_0"}, records[0][:3])
	assert.Len(t, records[0], 10)
	assert.Equal(t, []string{"4", "1"}, records[1][:2])
	assert.Equal(t, []string{"3", "9"}, records[6][:2])
}

func TestWritePersonaMap(t *testing.T) {
	s := trainedModel(t, testConfig(), bowtie)

	var buf bytes.Buffer
	require.NoError(t, s.WritePersonaMap(&buf))

	var mapping map[string]int64
	require.NoError(t, json.Unmarshal(buf.Bytes(), &mapping))
	assert.Equal(t, map[string]int64{"0": 5, "1": 5, "2": 3, "3": 9, "4": 1, "5": 7}, mapping)
}

func TestWritePersonaGraphAndBase(t *testing.T) {
	s := trainedModel(t, testConfig(), bowtie)

	var graph bytes.Buffer
	require.NoError(t, s.WritePersonaGraph(&graph))
	records, err := csv.NewReader(&graph).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"source", "target"}, records[0])
	assert.Len(t, records, 7)

	var base bytes.Buffer
	require.NoError(t, s.WriteBaseWeights(&base))
	records, err = csv.NewReader(&base).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6)
	names := make([]string, 0, 5)
	for _, r := range records[1:] {
		names = append(names, r[0])
	}
	assert.Equal(t, []string{"1", "3", "5", "7", "9"}, names)
}

func TestSaveFiles(t *testing.T) {
	s := trainedModel(t, testConfig(), bowtie)
	dir := t.TempDir()

	for name, save := range map[string]func(string) error{
		"personas.csv":      s.SaveWeights,
		"personas.json":     s.SavePersonaMap,
		"persona_graph.csv": s.SavePersonaGraph,
		"base.csv":          s.SaveBaseWeights,
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, save(path), name)
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}

	assert.Error(t, s.SaveWeights(filepath.Join(dir, "missing", "x.csv")))
}
