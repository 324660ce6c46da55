package spatial

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestYUpZUpPointRoundTrip(t *testing.T) {
	pts := []r3.Vector{
		{X: 1, Y: 2, Z: 3},
		{X: -0.5, Y: 0, Z: 10},
	}
	up := YUpToZUp(pts)
	test.That(t, up[0], test.ShouldResemble, r3.Vector{X: 3, Y: 1, Z: 2})
	back := ZUpToYUp(up)
	test.That(t, back, test.ShouldResemble, pts)
}

func TestYUpZUpRowRoundTrip(t *testing.T) {
	// relabeling, not a transform: the round trip restores the original
	// column ordering for any 3N-wide row, including the empty one
	for _, row := range [][]float64{
		{},
		{1, 2, 3},
		{1, 2, 3, 4, 5, 6, 7, 8, 9},
	} {
		up, err := YUpToZUpRow(row)
		test.That(t, err, test.ShouldBeNil)
		back, err := ZUpToYUpRow(up)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, back, test.ShouldResemble, row)
	}
}

func TestYUpToZUpRowPermutation(t *testing.T) {
	up, err := YUpToZUpRow([]float64{1, 2, 3})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, up, test.ShouldResemble, []float64{3, 1, 2})
}

func TestYUpToZUpRowBadWidth(t *testing.T) {
	_, err := YUpToZUpRow([]float64{1, 2})
	test.That(t, err, test.ShouldNotBeNil)
}
