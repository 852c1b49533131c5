package pronet

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// BuildAliasMethod builds a Vose alias table over weights raised to power.
// Non-positive weights are never drawn; if every weight is non-positive the
// table is uniform.
func BuildAliasMethod(weights []float64, power float64) []AliasTable {
	n := len(weights)
	if n == 0 {
		return nil
	}

	table := make([]AliasTable, n)
	for i := range table {
		table[i] = AliasTable{Alias: int64(i), Prob: 1.0}
	}

	scaled := make([]float64, n)
	for i, w := range weights {
		if w > 0 {
			scaled[i] = math.Pow(w, power)
		}
	}
	total := floats.Sum(scaled)
	if total == 0 {
		return table
	}
	floats.Scale(float64(n)/total, scaled)

	under := make([]int, 0, n)
	over := make([]int, 0, n)
	for i, mass := range scaled {
		if mass < 1.0 {
			under = append(under, i)
		} else {
			over = append(over, i)
		}
	}

	// each pass fills one under-full column from the top of over
	for len(under) > 0 && len(over) > 0 {
		u := under[len(under)-1]
		under = under[:len(under)-1]
		o := over[len(over)-1]

		table[u] = AliasTable{Alias: int64(o), Prob: scaled[u]}
		scaled[o] -= 1.0 - scaled[u]
		if scaled[o] < 1.0 {
			over = over[:len(over)-1]
			under = append(under, o)
		}
	}

	// columns still listed are full up to rounding and keep their identity entry
	return table
}

// aliasSample draws one index from table, -1 if the table is empty
func aliasSample(table []AliasTable, rng *rand.Rand) int64 {
	if len(table) == 0 {
		return -1
	}
	i := rng.Intn(len(table))
	if rng.Float64() < table[i].Prob {
		return int64(i)
	}
	return table[i].Alias
}
