package pronet

import (
	"math/rand"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// TransitionWeight returns the unnormalized weight of stepping from cur to
// next given the previously visited vertex prev (-1 on the first step).
// A nil TransitionWeight means uniform sampling over neighbors.
type TransitionWeight func(prev, cur, next int64) float64

// Node2VecBias returns the second-order node2vec policy: 1/p to return to
// prev, 1 for a common neighbor of prev and cur, 1/q otherwise. With
// p = q = 1 the policy is uniform and nil is returned.
func (pn *ProNet) Node2VecBias(p, q float64) TransitionWeight {
	if p == 1.0 && q == 1.0 {
		return nil
	}
	return func(prev, cur, next int64) float64 {
		switch {
		case prev < 0:
			return 1.0
		case next == prev:
			return 1.0 / p
		case pn.HasEdge(prev, next):
			return 1.0
		default:
			return 1.0 / q
		}
	}
}

// TargetSample samples a neighbor of vid uniformly, -1 on a dead end
func (pn *ProNet) TargetSample(vid int64, rng *rand.Rand) int64 {
	neighbors := pn.Neighbors(vid)
	if len(neighbors) == 0 {
		return -1
	}
	return neighbors[rng.Intn(len(neighbors))]
}

// biasedTargetSample samples the next vertex from cur under weight
func (pn *ProNet) biasedTargetSample(prev, cur int64, weight TransitionWeight, rng *rand.Rand) int64 {
	neighbors := pn.Neighbors(cur)
	if len(neighbors) == 0 {
		return -1
	}

	biasedWeights := make([]float64, len(neighbors))
	totalWeight := 0.0
	for i, neighbor := range neighbors {
		biasedWeights[i] = weight(prev, cur, neighbor)
		totalWeight += biasedWeights[i]
	}

	if totalWeight == 0 {
		return neighbors[rng.Intn(len(neighbors))]
	}

	r := rng.Float64() * totalWeight
	cumWeight := 0.0
	for i, w := range biasedWeights {
		cumWeight += w
		if r <= cumWeight {
			return neighbors[i]
		}
	}

	return neighbors[len(neighbors)-1]
}

// RandomWalk walks at most length vertices starting from start. The walk
// stops early at a vertex without neighbors.
func (pn *ProNet) RandomWalk(start int64, length int, weight TransitionWeight, rng *rand.Rand) ([]int64, error) {
	if start < 0 || start >= pn.MaxVid {
		return nil, errors.Wrapf(ErrBadVtxID, "walk start %d", start)
	}
	if length < 1 {
		return nil, errors.Errorf("walk length %d must be at least 1", length)
	}

	walk := make([]int64, 0, length)
	walk = append(walk, start)

	prev := int64(-1)
	current := start
	for len(walk) < length {
		var next int64
		if weight == nil {
			next = pn.TargetSample(current, rng)
		} else {
			next = pn.biasedTargetSample(prev, current, weight, rng)
		}
		if next == -1 {
			break
		}
		walk = append(walk, next)
		prev, current = current, next
	}

	return walk, nil
}

// WalkOptions configures a corpus generation pass
type WalkOptions struct {
	WalksPerNode int
	WalkLength   int
	Workers      int
	Weight       TransitionWeight
	Seed         int64
}

// Walks generates WalksPerNode walks from every vertex in starts. The start
// list is split into Workers contiguous chunks, each walked by its own
// goroutine with its own random stream. Walk r of starts[i] lands at
// index r*len(starts)+i, so the corpus is reproducible for a fixed seed,
// start order and worker count.
func (pn *ProNet) Walks(starts []int64, opts WalkOptions) ([][]int64, error) {
	n := len(starts)
	if n == 0 || opts.WalksPerNode <= 0 {
		return nil, nil
	}
	corpus := make([][]int64, n*opts.WalksPerNode)

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	chunkSize := (n + workers - 1) / workers

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		lo := w * chunkSize
		hi := min(lo+chunkSize, n)
		if lo >= hi {
			break
		}

		rng := rand.New(rand.NewSource(DeriveSeed(opts.Seed, int64(w))))
		g.Go(func() error {
			for r := 0; r < opts.WalksPerNode; r++ {
				for i := lo; i < hi; i++ {
					walk, err := pn.RandomWalk(starts[i], opts.WalkLength, opts.Weight, rng)
					if err != nil {
						return err
					}
					corpus[r*n+i] = walk
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return corpus, nil
}

// DeriveSeed mixes a base seed with stream identifiers (splitmix64) so that
// nearby inputs give unrelated streams.
func DeriveSeed(seed int64, parts ...int64) int64 {
	x := uint64(seed)
	for _, p := range parts {
		x ^= uint64(p) + 0x9e3779b97f4a7c15 + (x << 6) + (x >> 2)
		x += 0x9e3779b97f4a7c15
		z := x
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		x = z ^ (z >> 31)
	}
	return int64(x)
}
