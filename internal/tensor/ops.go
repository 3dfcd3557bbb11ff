package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Add returns t + other with NumPy broadcasting.
func (t *Tensor) Add(other *Tensor) *Tensor {
	if t.shape.Equal(other.shape) {
		out := &Tensor{shape: t.shape.Clone(), data: make([]float64, len(t.data))}
		floats.AddTo(out.data, t.data, other.data)
		return out
	}
	return t.broadcast("Add", other, func(a, b float64) float64 { return a + b })
}

// Sub returns t - other with NumPy broadcasting.
func (t *Tensor) Sub(other *Tensor) *Tensor {
	if t.shape.Equal(other.shape) {
		out := &Tensor{shape: t.shape.Clone(), data: make([]float64, len(t.data))}
		floats.SubTo(out.data, t.data, other.data)
		return out
	}
	return t.broadcast("Sub", other, func(a, b float64) float64 { return a - b })
}

// Mul returns the elementwise product with NumPy broadcasting.
func (t *Tensor) Mul(other *Tensor) *Tensor {
	if t.shape.Equal(other.shape) {
		out := &Tensor{shape: t.shape.Clone(), data: make([]float64, len(t.data))}
		floats.MulTo(out.data, t.data, other.data)
		return out
	}
	return t.broadcast("Mul", other, func(a, b float64) float64 { return a * b })
}

// Div returns the elementwise quotient with NumPy broadcasting.
func (t *Tensor) Div(other *Tensor) *Tensor {
	if t.shape.Equal(other.shape) {
		out := &Tensor{shape: t.shape.Clone(), data: make([]float64, len(t.data))}
		floats.DivTo(out.data, t.data, other.data)
		return out
	}
	return t.broadcast("Div", other, func(a, b float64) float64 { return a / b })
}

// broadcast applies f over the broadcast of t and other.
func (t *Tensor) broadcast(op string, other *Tensor, f func(a, b float64) float64) *Tensor {
	outShape, _, err := BroadcastShapes(t.shape, other.shape)
	if err != nil {
		panic(fmt.Errorf("tensor.%s: %w", op, err))
	}
	aStrides := broadcastStrides(t.shape, outShape)
	bStrides := broadcastStrides(other.shape, outShape)

	out := New(outShape)
	idx := make([]int, len(outShape))
	for i := range out.data {
		aOff, bOff := 0, 0
		for d, v := range idx {
			aOff += v * aStrides[d]
			bOff += v * bStrides[d]
		}
		out.data[i] = f(t.data[aOff], other.data[bOff])

		// Advance the multi-index in row-major order.
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < outShape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out
}

// Scale returns t * s.
func (t *Tensor) Scale(s float64) *Tensor {
	out := t.Clone()
	floats.Scale(s, out.data)
	return out
}

// AddScalar returns t + s.
func (t *Tensor) AddScalar(s float64) *Tensor {
	out := t.Clone()
	floats.AddConst(s, out.data)
	return out
}

// Apply returns a new tensor with f applied to every element.
func (t *Tensor) Apply(f func(float64) float64) *Tensor {
	out := &Tensor{shape: t.shape.Clone(), data: make([]float64, len(t.data))}
	for i, v := range t.data {
		out.data[i] = f(v)
	}
	return out
}

// Exp returns e^t elementwise.
func (t *Tensor) Exp() *Tensor { return t.Apply(math.Exp) }

// Log returns ln(t) elementwise.
func (t *Tensor) Log() *Tensor { return t.Apply(math.Log) }

// Sqrt returns √t elementwise.
func (t *Tensor) Sqrt() *Tensor { return t.Apply(math.Sqrt) }

// Sign returns -1, 0 or 1 per element (0 stays 0).
func (t *Tensor) Sign() *Tensor {
	return t.Apply(func(v float64) float64 {
		switch {
		case v > 0:
			return 1
		case v < 0:
			return -1
		default:
			return 0
		}
	})
}

// AddInPlace adds alpha*other to t. Shapes must match exactly.
func (t *Tensor) AddInPlace(alpha float64, other *Tensor) {
	if !t.shape.Equal(other.shape) {
		panic(fmt.Errorf("tensor.AddInPlace: %w: %v vs %v", ErrShapeMismatch, t.shape, other.shape))
	}
	floats.AddScaled(t.data, alpha, other.data)
}

// ScaleInPlace multiplies every element of t by s.
func (t *Tensor) ScaleInPlace(s float64) {
	floats.Scale(s, t.data)
}
