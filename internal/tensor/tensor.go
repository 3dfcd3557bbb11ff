// Package tensor implements the dense N-dimensional float64 array used by the
// gradgraph node catalog.
//
// Tensors are row-major and own their storage. Arithmetic returns new tensors
// and never mutates the receiver; the few in-place helpers are named
// *InPlace and exist for the optimizer. Matrix products are delegated to
// gonum.
package tensor

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// Common errors.
var (
	ErrInvalidShape  = errors.New("invalid shape")
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrDataLength    = errors.New("data length does not match shape")
)

// Tensor is a dense row-major float64 array.
type Tensor struct {
	shape Shape
	data  []float64
}

// New creates a zero-filled tensor with the given shape.
// Panics if the shape is invalid.
func New(shape Shape) *Tensor {
	if err := shape.Validate(); err != nil {
		panic(fmt.Errorf("tensor.New: %w", err))
	}
	return &Tensor{
		shape: shape.Clone(),
		data:  make([]float64, shape.NumElements()),
	}
}

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape) *Tensor {
	return New(shape)
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape) *Tensor {
	return Full(shape, 1)
}

// Full creates a tensor filled with value.
func Full(shape Shape, value float64) *Tensor {
	t := New(shape)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// Scalar creates a zero-dimensional tensor holding v.
func Scalar(v float64) *Tensor {
	return &Tensor{shape: Shape{}, data: []float64{v}}
}

// FromSlice creates a tensor that takes ownership of data.
//
// Example:
//
//	x, err := tensor.FromSlice([]float64{1, 2, 3, 4}, tensor.Shape{2, 2})
func FromSlice(data []float64, shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("%w: got %d values for shape %v", ErrDataLength, len(data), shape)
	}
	return &Tensor{shape: shape.Clone(), data: data}, nil
}

// MustFromSlice is FromSlice that panics on error. Intended for literals.
func MustFromSlice(data []float64, shape Shape) *Tensor {
	t, err := FromSlice(data, shape)
	if err != nil {
		panic(err)
	}
	return t
}

// Rand creates a tensor with values drawn uniformly from [lo, hi).
// A nil rng uses the global math/rand/v2 source.
func Rand(shape Shape, lo, hi float64, rng *rand.Rand) *Tensor {
	t := New(shape)
	for i := range t.data {
		t.data[i] = lo + (hi-lo)*float64Of(rng)
	}
	return t
}

// Randn creates a tensor with values drawn from N(0, 1).
// A nil rng uses the global math/rand/v2 source.
func Randn(shape Shape, rng *rand.Rand) *Tensor {
	t := New(shape)
	for i := range t.data {
		if rng != nil {
			t.data[i] = rng.NormFloat64()
		} else {
			t.data[i] = rand.NormFloat64()
		}
	}
	return t
}

func float64Of(rng *rand.Rand) float64 {
	if rng != nil {
		return rng.Float64()
	}
	return rand.Float64()
}

// Shape returns the tensor's shape. The caller must not modify it.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Data returns the backing slice.
// WARNING: Direct access to underlying memory. Writes are visible to every holder of t.
func (t *Tensor) Data() []float64 {
	return t.data
}

// Len returns the total number of elements.
func (t *Tensor) Len() int {
	return len(t.data)
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Dim returns the size of dimension i. Negative i counts from the end.
func (t *Tensor) Dim(i int) int {
	return t.shape[t.shape.Axis(i)]
}

// offset converts a multi-index into a flat index.
func (t *Tensor) offset(op string, idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Errorf("tensor.%s: %w: %d indices for rank %d", op, ErrShapeMismatch, len(idx), len(t.shape)))
	}
	off := 0
	stride := 1
	for i := len(idx) - 1; i >= 0; i-- {
		if idx[i] < 0 || idx[i] >= t.shape[i] {
			panic(fmt.Sprintf("tensor.%s: index %v out of range for shape %v", op, idx, t.shape))
		}
		off += idx[i] * stride
		stride *= t.shape[i]
	}
	return off
}

// At returns the element at the given multi-index.
func (t *Tensor) At(idx ...int) float64 {
	return t.data[t.offset("At", idx)]
}

// Set stores v at the given multi-index.
func (t *Tensor) Set(v float64, idx ...int) {
	t.data[t.offset("Set", idx)] = v
}

// Item returns the only element of a single-element tensor.
func (t *Tensor) Item() float64 {
	if len(t.data) != 1 {
		panic(fmt.Errorf("tensor.Item: %w: tensor has %d elements", ErrShapeMismatch, len(t.data)))
	}
	return t.data[0]
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float64, len(t.data))
	copy(data, t.data)
	return &Tensor{shape: t.shape.Clone(), data: data}
}

// CopyFrom overwrites t's values with src's. Shapes must match.
func (t *Tensor) CopyFrom(src *Tensor) {
	if !t.shape.Equal(src.shape) {
		panic(fmt.Errorf("tensor.CopyFrom: %w: %v vs %v", ErrShapeMismatch, t.shape, src.shape))
	}
	copy(t.data, src.data)
}

// AllClose reports whether every element of t is within tol of other.
func (t *Tensor) AllClose(other *Tensor, tol float64) bool {
	if !t.shape.Equal(other.shape) {
		return false
	}
	for i, v := range t.data {
		if math.Abs(v-other.data[i]) > tol {
			return false
		}
	}
	return true
}

// Describe summarizes shape and non-finite contents for debug tracing.
//
// Example output: "tensor [2 3] nan".
func (t *Tensor) Describe() string {
	var posInf, negInf, nan bool
	for _, v := range t.data {
		switch {
		case math.IsInf(v, 1):
			posInf = true
		case math.IsInf(v, -1):
			negInf = true
		case math.IsNaN(v):
			nan = true
		}
	}
	s := fmt.Sprintf("tensor %v", []int(t.shape))
	if posInf {
		s += " posinf"
	}
	if negInf {
		s += " neginf"
	}
	if nan {
		s += " nan"
	}
	return s
}

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v%v", []int(t.shape), t.data)
}
