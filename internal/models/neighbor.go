package models

import "fmt"

// Neighbor is a cell found within the distance threshold of another cell,
// together with the minimum physical distance between their surfaces.
type Neighbor struct {
	ID       uint32  `json:"id"`
	Distance float64 `json:"distance"`
}

// Pair is an unordered pair of cells stored smallest id first, so that
// A->B and B->A map onto the same key.
type Pair struct {
	A uint32 `json:"cell_a"`
	B uint32 `json:"cell_b"`
}

// NewPair canonicalises two cell ids.
func NewPair(a, b uint32) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

func (p Pair) String() string {
	return fmt.Sprintf("%d-%d", p.A, p.B)
}

// Relation is a neighbour pair annotated with its surface distance.
type Relation struct {
	Pair
	Distance float64 `json:"distance"`
}
