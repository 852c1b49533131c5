package pronet

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// MaxProximityStep caps the per-step pull of UpdateProximity; at the cap
// both vectors meet at their midpoint.
const MaxProximityStep = 0.5

// UpdatePairs updates embeddings for a batch of vertex-context pairs using SGD
func (pn *ProNet) UpdatePairs(
	wVertex, wContext [][]float64,
	vertices, contexts []int64,
	dim, negativeSamples int,
	alpha float64,
	rng *rand.Rand,
) {
	for i := 0; i < len(vertices); i++ {
		pn.UpdatePair(wVertex, wContext, vertices[i], contexts[i], dim, negativeSamples, alpha, rng)
	}
}

// UpdatePair updates embeddings for a single vertex-context pair with
// skip-gram negative sampling. wVertex and wContext may be the same table.
func (pn *ProNet) UpdatePair(
	wVertex, wContext [][]float64,
	vertex, context int64,
	dim, negativeSamples int,
	alpha float64,
	rng *rand.Rand,
) {
	vertexGrad := make([]float64, dim)
	contextGrad := make([]float64, dim)

	// Positive sample
	pn.sgdUpdate(wVertex[vertex], wContext[context], 1.0, alpha, vertexGrad, contextGrad)

	// Negative samples
	negGrad := make([]float64, dim)
	for i := 0; i < negativeSamples; i++ {
		negSample := pn.NegativeSample(rng)
		if negSample == context || negSample < 0 {
			continue
		}

		for d := range negGrad {
			negGrad[d] = 0
		}
		pn.sgdUpdate(wVertex[vertex], wContext[negSample], 0.0, alpha, vertexGrad, negGrad)
		floats.Add(wContext[negSample], negGrad)
	}

	floats.Add(wVertex[vertex], vertexGrad)
	floats.Add(wContext[context], contextGrad)
}

// sgdUpdate accumulates the logistic gradient of a single pair
func (pn *ProNet) sgdUpdate(
	vertexEmb, contextEmb []float64,
	label, alpha float64,
	vertexGrad, contextGrad []float64,
) {
	pred := pn.FastSigmoid(floats.Dot(vertexEmb, contextEmb))
	grad := alpha * (label - pred)

	floats.AddScaled(vertexGrad, grad, contextEmb)
	floats.AddScaled(contextGrad, grad, vertexEmb)
}

// UpdateProximity takes one gradient step on lambda*||persona-base||^2,
// moving both vectors toward each other. diff is scratch space of the same
// length. It returns the squared distance before the step.
func UpdateProximity(persona, base []float64, lambda, alpha float64, diff []float64) float64 {
	floats.SubTo(diff, persona, base)
	dist := floats.Dot(diff, diff)

	step := 2.0 * alpha * lambda
	if step > MaxProximityStep {
		step = MaxProximityStep
	}
	if step == 0 {
		return dist
	}

	floats.AddScaled(persona, -step, diff)
	floats.AddScaled(base, step, diff)
	return dist
}
