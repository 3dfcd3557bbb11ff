// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for the dense float64 tensors used
// by gradgraph.
//
// Tensors are row-major, contiguous and always non-empty. Arithmetic
// broadcasts with NumPy rules and returns a new tensor; the receiver is
// never modified except by the explicit *InPlace methods.
//
// Example:
//
//	x := tensor.MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
//	mean := x.MeanAxis(0) // [1, 3]
//	centered := x.Sub(mean)
package tensor

import (
	"math/rand/v2"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// Tensor is a dense multi-dimensional array of float64 values.
type Tensor = tensor.Tensor

// Shape lists the size of every dimension.
type Shape = tensor.Shape

// Common errors.
var (
	ErrInvalidShape  = tensor.ErrInvalidShape
	ErrShapeMismatch = tensor.ErrShapeMismatch
	ErrDataLength    = tensor.ErrDataLength
)

// New creates a zero-filled tensor.
func New(shape Shape) *Tensor { return tensor.New(shape) }

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape) *Tensor { return tensor.Zeros(shape) }

// Ones creates a tensor filled with ones.
func Ones(shape Shape) *Tensor { return tensor.Ones(shape) }

// Full creates a tensor filled with value.
func Full(shape Shape, value float64) *Tensor { return tensor.Full(shape, value) }

// Scalar creates a rank-0 tensor.
func Scalar(v float64) *Tensor { return tensor.Scalar(v) }

// FromSlice wraps data, which must hold exactly shape.NumElements() values.
//
// Example:
//
//	t, err := tensor.FromSlice([]float64{1, 2, 3, 4}, tensor.Shape{2, 2})
func FromSlice(data []float64, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}

// MustFromSlice is FromSlice that panics on error.
func MustFromSlice(data []float64, shape Shape) *Tensor {
	return tensor.MustFromSlice(data, shape)
}

// Rand samples uniformly from [lo, hi). A nil rng uses the global source.
func Rand(shape Shape, lo, hi float64, rng *rand.Rand) *Tensor {
	return tensor.Rand(shape, lo, hi, rng)
}

// Randn samples from the standard normal distribution. A nil rng uses the
// global source.
func Randn(shape Shape, rng *rand.Rand) *Tensor {
	return tensor.Randn(shape, rng)
}

// BroadcastShapes returns the broadcast shape of a and b and whether any
// dimension had to be broadcast.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	return tensor.BroadcastShapes(a, b)
}
