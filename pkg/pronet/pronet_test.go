package pronet

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEdgeList(t *testing.T) {
	pn := NewProNet()
	input := "source,target\n10,20\n20,30\n20,10\n10,20\n30, 40\n"
	require.NoError(t, pn.ReadEdgeList(strings.NewReader(input)))

	assert.Equal(t, int64(4), pn.MaxVid)
	assert.Equal(t, int64(3), pn.MaxLine, "parallel and reversed edges collapse")
	assert.Equal(t, []int64{10, 20, 30, 40}, pn.VertexKeys)

	vid, ok := pn.Vertex(20)
	require.True(t, ok)
	assert.Equal(t, int64(1), vid)
	assert.Equal(t, []int64{0, 2}, pn.Neighbors(vid))
	assert.Equal(t, 2, pn.Degree(vid))
	assert.True(t, pn.HasEdge(0, 1))
	assert.True(t, pn.HasEdge(1, 0))
	assert.False(t, pn.HasEdge(0, 2))
	assert.Equal(t, int64(40), pn.GetVertexName(3))
	assert.Equal(t, int64(-1), pn.GetVertexName(4))
	assert.Nil(t, pn.Neighbors(99))
}

func TestReadEdgeListErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		line   int
		column int
		target error
	}{
		{"missing header", "", 1, 0, ErrBadEdge},
		{"self loop", "a,b\n1,2\n3,3\n", 3, 0, ErrSelfLoop},
		{"non integer", "a,b\n1,x\n", 2, 2, ErrBadVtxID},
		{"float id", "a,b\n1.5,2\n", 2, 1, ErrBadVtxID},
		{"negative id", "a,b\n-1,2\n", 2, 1, ErrBadVtxID},
		{"three columns", "a,b\n1,2\n1,2,3\n", 3, 0, ErrBadEdge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewProNet().ReadEdgeList(strings.NewReader(tt.input))
			require.Error(t, err)

			var inputErr *InputGraphError
			require.True(t, errors.As(err, &inputErr), "got %T", err)
			assert.Equal(t, tt.line, inputErr.Line)
			assert.Equal(t, tt.column, inputErr.Column)
			assert.True(t, errors.Is(err, tt.target), "%v should wrap %v", err, tt.target)
		})
	}
}

func TestAddEdge(t *testing.T) {
	pn := NewProNet()

	added, err := pn.AddEdge(1, 2)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = pn.AddEdge(2, 1)
	require.NoError(t, err)
	assert.False(t, added)

	_, err = pn.AddEdge(-3, 1)
	assert.True(t, errors.Is(err, ErrBadVtxID))

	assert.Equal(t, [][2]int64{{0, 1}}, pn.Edges)
}

func TestFastSigmoid(t *testing.T) {
	pn := NewProNet()
	assert.Equal(t, 0.0, pn.FastSigmoid(-10))
	assert.Equal(t, 1.0, pn.FastSigmoid(10))
	assert.InDelta(t, 0.5, pn.FastSigmoid(0), 0.01)
	assert.InDelta(t, 1/(1+math.Exp(-2)), pn.FastSigmoid(2), 0.01)
}

func TestBuildAliasMethod(t *testing.T) {
	table := BuildAliasMethod([]float64{1, 0, 3}, 1.0)
	require.Len(t, table, 3)

	rng := rand.New(rand.NewSource(7))
	counts := make([]int, 3)
	const draws = 40000
	for i := 0; i < draws; i++ {
		counts[aliasSample(table, rng)]++
	}
	assert.Zero(t, counts[1])
	assert.InDelta(t, 0.25, float64(counts[0])/draws, 0.02)
	assert.InDelta(t, 0.75, float64(counts[2])/draws, 0.02)

	assert.Nil(t, BuildAliasMethod(nil, 1.0))
	assert.Equal(t, int64(-1), aliasSample(nil, rng))

	for i, entry := range BuildAliasMethod([]float64{0, -1, 0}, 1.0) {
		assert.Equal(t, AliasTable{Alias: int64(i), Prob: 1.0}, entry)
	}

	// 1^2 : 3^2 is 1:9
	squared := BuildAliasMethod([]float64{1, 3}, 2.0)
	hits := 0
	for i := 0; i < draws; i++ {
		if aliasSample(squared, rng) == 0 {
			hits++
		}
	}
	assert.InDelta(t, 0.1, float64(hits)/draws, 0.02)
}

func TestBuildNegativeTable(t *testing.T) {
	pn := NewProNet()
	// star: vertex 0 has degree 3, leaves degree 1
	for _, leaf := range []int64{1, 2, 3} {
		_, err := pn.AddEdge(0, leaf)
		require.NoError(t, err)
	}

	rng := rand.New(rand.NewSource(1))
	sample := func() []int {
		counts := make([]int, pn.MaxVid)
		for i := 0; i < 20000; i++ {
			counts[pn.NegativeSample(rng)]++
		}
		return counts
	}

	require.NoError(t, pn.BuildNegativeTable(NegativeDegree))
	degree := sample()
	assert.Greater(t, degree[0], degree[1])

	require.NoError(t, pn.BuildNegativeTable(NegativeUniform))
	uniform := sample()
	for _, c := range uniform {
		assert.InDelta(t, 5000, c, 500)
	}

	assert.Error(t, pn.BuildNegativeTable("zipf"))
}

func TestSkipGrams(t *testing.T) {
	pn := NewProNet()
	vertices, contexts := pn.SkipGrams([]int64{1, 2, 3}, 1)
	assert.Equal(t, []int64{1, 2, 2, 3}, vertices)
	assert.Equal(t, []int64{2, 1, 3, 2}, contexts)

	vertices, _ = pn.SkipGrams([]int64{1}, 5)
	assert.Empty(t, vertices)
}
