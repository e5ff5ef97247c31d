// Package remap moves forecasts between the cubed sphere and a regular
// latitude-longitude grid with precomputed sparse weights.
package remap

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/Noofbiz/gridcast/grid"
)

// Weights is a sparse linear operator in CSR form: destination cell r is
// the sum of Val[j] * src[Col[j]] for j in [RowPtr[r], RowPtr[r+1]).
// Weights are immutable once built and safe to share.
type Weights struct {
	SrcCells int       `msgpack:"src_cells"`
	DstCells int       `msgpack:"dst_cells"`
	RowPtr   []int32   `msgpack:"row_ptr"`
	Col      []int32   `msgpack:"col"`
	Val      []float64 `msgpack:"val"`
}

// NewWeights builds weights from 0-based (row, col, value) triplets. Triplets
// may come in any order.
func NewWeights(srcCells, dstCells int, rows, cols []int, vals []float64) (*Weights, error) {
	if srcCells <= 0 || dstCells <= 0 {
		return nil, fmt.Errorf("weights need positive grid sizes, got src %d dst %d", srcCells, dstCells)
	}
	if err := grid.CheckDim("weight columns", len(rows), len(cols)); err != nil {
		return nil, err
	}
	if err := grid.CheckDim("weight values", len(rows), len(vals)); err != nil {
		return nil, err
	}

	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
		if rows[i] < 0 || rows[i] >= dstCells {
			return nil, fmt.Errorf("weight %d: row %d outside [0, %d)", i, rows[i], dstCells)
		}
		if cols[i] < 0 || cols[i] >= srcCells {
			return nil, fmt.Errorf("weight %d: column %d outside [0, %d)", i, cols[i], srcCells)
		}
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(rows[a], rows[b])
	})

	w := &Weights{
		SrcCells: srcCells,
		DstCells: dstCells,
		RowPtr:   make([]int32, dstCells+1),
		Col:      make([]int32, len(order)),
		Val:      make([]float64, len(order)),
	}
	for j, i := range order {
		w.RowPtr[rows[i]+1]++
		w.Col[j] = int32(cols[i])
		w.Val[j] = vals[i]
	}
	for r := range dstCells {
		w.RowPtr[r+1] += w.RowPtr[r]
	}
	return w, nil
}

// Check verifies the CSR structure, for weights that were decoded rather
// than built.
func (w *Weights) Check() error {
	if w.SrcCells <= 0 || w.DstCells <= 0 {
		return fmt.Errorf("weights need positive grid sizes, got src %d dst %d", w.SrcCells, w.DstCells)
	}
	if err := grid.CheckDim("weight row pointers", w.DstCells+1, len(w.RowPtr)); err != nil {
		return err
	}
	if err := grid.CheckDim("weight values", len(w.Col), len(w.Val)); err != nil {
		return err
	}
	if w.RowPtr[0] != 0 || int(w.RowPtr[w.DstCells]) != len(w.Col) {
		return fmt.Errorf("weight row pointers do not span %d entries", len(w.Col))
	}
	for r := range w.DstCells {
		if w.RowPtr[r+1] < w.RowPtr[r] {
			return fmt.Errorf("weight row pointers decrease at row %d", r)
		}
	}
	for j, c := range w.Col {
		if c < 0 || int(c) >= w.SrcCells {
			return fmt.Errorf("weight %d: column %d outside [0, %d)", j, c, w.SrcCells)
		}
	}
	return nil
}

// NNZ returns the number of stored weights.
func (w *Weights) NNZ() int { return len(w.Val) }

// Apply writes the remapped src into dst, allocating dst when nil.
func (w *Weights) Apply(src, dst []float32) ([]float32, error) {
	if err := grid.CheckDim("remap source cells", w.SrcCells, len(src)); err != nil {
		return nil, err
	}
	if dst == nil {
		dst = make([]float32, w.DstCells)
	}
	if err := grid.CheckDim("remap destination cells", w.DstCells, len(dst)); err != nil {
		return nil, err
	}
	for r := range w.DstCells {
		var sum float64
		for j := w.RowPtr[r]; j < w.RowPtr[r+1]; j++ {
			sum += w.Val[j] * float64(src[w.Col[j]])
		}
		dst[r] = float32(sum)
	}
	return dst, nil
}

// RowSums returns the total weight of every destination cell.
func (w *Weights) RowSums() []float64 {
	sums := make([]float64, w.DstCells)
	for r := range sums {
		sums[r] = floats.Sum(w.Val[w.RowPtr[r]:w.RowPtr[r+1]])
	}
	return sums
}

// Validate returns an error naming the first destination cell whose weights
// do not sum to 1 within tol.
func (w *Weights) Validate(tol float64) error {
	for r, s := range w.RowSums() {
		if math.Abs(s-1) > tol {
			return fmt.Errorf("weights for destination cell %d sum to %g", r, s)
		}
	}
	return nil
}
