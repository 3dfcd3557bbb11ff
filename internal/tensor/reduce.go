package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float64 {
	return floats.Sum(t.data)
}

// reduceAxis folds the given axis with f, keeping it as a size-1 dimension.
//
// The tensor is viewed as [outer, n, inner] with n the reduced axis.
func (t *Tensor) reduceAxis(axis int, init float64, f func(acc, v float64) float64) *Tensor {
	axis = t.shape.Axis(axis)
	outer := t.shape[:axis].NumElements()
	n := t.shape[axis]
	inner := t.shape[axis+1:].NumElements()

	outShape := t.shape.Clone()
	outShape[axis] = 1
	out := Full(outShape, init)

	for o := 0; o < outer; o++ {
		src := t.data[o*n*inner : (o+1)*n*inner]
		dst := out.data[o*inner : (o+1)*inner]
		for k := 0; k < n; k++ {
			row := src[k*inner : (k+1)*inner]
			for i, v := range row {
				dst[i] = f(dst[i], v)
			}
		}
	}
	return out
}

// SumAxis sums along axis, keeping it with size 1.
func (t *Tensor) SumAxis(axis int) *Tensor {
	return t.reduceAxis(axis, 0, func(acc, v float64) float64 { return acc + v })
}

// MaxAxis takes the maximum along axis, keeping it with size 1.
func (t *Tensor) MaxAxis(axis int) *Tensor {
	return t.reduceAxis(axis, math.Inf(-1), math.Max)
}

// MeanAxis averages along axis, keeping it with size 1.
func (t *Tensor) MeanAxis(axis int) *Tensor {
	n := t.shape[t.shape.Axis(axis)]
	return t.SumAxis(axis).Scale(1 / float64(n))
}

// MeanAxes averages over several axes, keeping each with size 1.
func (t *Tensor) MeanAxes(axes ...int) *Tensor {
	out := t
	for _, a := range axes {
		out = out.MeanAxis(a)
	}
	return out
}

// StdAxes returns the population standard deviation (ddof=0) over axes,
// keeping each with size 1.
func (t *Tensor) StdAxes(axes ...int) *Tensor {
	mean := t.MeanAxes(axes...)
	dev := t.Sub(mean)
	return dev.Mul(dev).MeanAxes(axes...).Sqrt()
}

// ArgMaxRows returns the column index of the maximum of every row of a
// 2-D tensor. Ties resolve to the first index.
func (t *Tensor) ArgMaxRows() []int {
	if len(t.shape) != 2 {
		panic(fmt.Errorf("tensor.ArgMaxRows: %w: expected 2D tensor, got shape %v", ErrShapeMismatch, t.shape))
	}
	rows, cols := t.shape[0], t.shape[1]
	out := make([]int, rows)
	for r := 0; r < rows; r++ {
		out[r] = floats.MaxIdx(t.data[r*cols : (r+1)*cols])
	}
	return out
}
