package tensor

import "fmt"

// Reshape returns a copy of t with a new shape.
//
// One dimension may be -1; it is inferred from the element count.
//
// Example:
//
//	x := tensor.Zeros(tensor.Shape{2, 3, 4})
//	y := x.Reshape(2, -1) // [2, 12]
func (t *Tensor) Reshape(dims ...int) *Tensor {
	shape := make(Shape, len(dims))
	copy(shape, dims)

	infer := -1
	known := 1
	for i, d := range shape {
		switch {
		case d == -1 && infer == -1:
			infer = i
		case d == -1:
			panic(fmt.Sprintf("tensor.Reshape: more than one -1 in %v", dims))
		default:
			known *= d
		}
	}
	if infer >= 0 {
		if known == 0 || len(t.data)%known != 0 {
			panic(fmt.Errorf("tensor.Reshape: %w: cannot infer -1 in %v for %d elements", ErrShapeMismatch, dims, len(t.data)))
		}
		shape[infer] = len(t.data) / known
	}

	if shape.NumElements() != len(t.data) {
		panic(fmt.Errorf("tensor.Reshape: %w: %v has %d elements, tensor has %d",
			ErrShapeMismatch, shape, shape.NumElements(), len(t.data)))
	}

	data := make([]float64, len(t.data))
	copy(data, t.data)
	return &Tensor{shape: shape, data: data}
}

// Permute reorders the axes of t. out.shape[i] == t.shape[axes[i]].
//
// Example:
//
//	nhwc := x.Permute(0, 2, 3, 1) // NCHW -> NHWC
func (t *Tensor) Permute(axes ...int) *Tensor {
	rank := len(t.shape)
	if len(axes) != rank {
		panic(fmt.Errorf("tensor.Permute: %w: %d axes for rank %d", ErrShapeMismatch, len(axes), rank))
	}
	seen := make([]bool, rank)
	outShape := make(Shape, rank)
	for i, a := range axes {
		if a < 0 || a >= rank || seen[a] {
			panic(fmt.Sprintf("tensor.Permute: invalid axes %v", axes))
		}
		seen[a] = true
		outShape[i] = t.shape[a]
	}

	inStrides := t.shape.ComputeStrides()
	strides := make([]int, rank)
	for i, a := range axes {
		strides[i] = inStrides[a]
	}

	out := New(outShape)
	idx := make([]int, rank)
	for i := range out.data {
		off := 0
		for d, v := range idx {
			off += v * strides[d]
		}
		out.data[i] = t.data[off]

		for d := rank - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < outShape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out
}

// T returns the transpose of a 2-D tensor.
func (t *Tensor) T() *Tensor {
	t.must2D("T")
	return t.Permute(1, 0)
}

func (t *Tensor) must2D(op string) {
	if len(t.shape) != 2 {
		panic(fmt.Errorf("tensor.%s: %w: expected 2D tensor, got shape %v", op, ErrShapeMismatch, t.shape))
	}
}
