package spatial

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// YUpToZUp relabels the basis of Y-up points to the canonical Z-up
// convention: (x, y, z) -> (z, x, y). This is a coordinate relabeling, not a
// rotation, and ZUpToYUp is its exact inverse.
func YUpToZUp(pts []r3.Vector) []r3.Vector {
	out := make([]r3.Vector, len(pts))
	for i, p := range pts {
		out[i] = r3.Vector{X: p.Z, Y: p.X, Z: p.Y}
	}
	return out
}

// ZUpToYUp relabels the basis of canonical Z-up points back to Y-up:
// (x, y, z) -> (y, z, x).
func ZUpToYUp(pts []r3.Vector) []r3.Vector {
	out := make([]r3.Vector, len(pts))
	for i, p := range pts {
		out[i] = r3.Vector{X: p.Y, Y: p.Z, Z: p.X}
	}
	return out
}

// YUpToZUpRow permutes one flat row of 3N coordinates from Y-up to Z-up
// column ordering. Applied once per trajectory table at ingestion, not per
// frame computation.
func YUpToZUpRow(row []float64) ([]float64, error) {
	return permuteTriplets(row, 2, 0, 1)
}

// ZUpToYUpRow is the inverse column permutation of YUpToZUpRow.
func ZUpToYUpRow(row []float64) ([]float64, error) {
	return permuteTriplets(row, 1, 2, 0)
}

func permuteTriplets(row []float64, i, j, k int) ([]float64, error) {
	if len(row)%3 != 0 {
		return nil, errors.Errorf("coordinate row length must be a multiple of 3, got %d", len(row))
	}
	out := make([]float64, len(row))
	for m := 0; m < len(row); m += 3 {
		out[m] = row[m+i]
		out[m+1] = row[m+j]
		out[m+2] = row[m+k]
	}
	return out, nil
}
