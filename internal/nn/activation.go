package nn

import (
	"math"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// ReLU is a Rectified Linear Unit activation node.
//
// Applies the element-wise function: f(x) = max(0, x)
//
// Backward passes the gradient only where the cached input is strictly
// positive; an input of exactly zero gets a zero gradient.
//
// Example:
//
//	relu := nn.NewReLU()
//	output := relu.Forward(input) // all negative values become 0
type ReLU struct {
	base
	cache slot[*tensor.Tensor] // input
}

// NewReLU creates a new ReLU activation node.
func NewReLU() *ReLU {
	return &ReLU{base: newBase("ReLU")}
}

// Forward applies ReLU activation: f(x) = max(0, x).
func (r *ReLU) Forward(x *tensor.Tensor) *tensor.Tensor {
	r.cache.put(x)
	return x.Apply(func(v float64) float64 { return math.Max(v, 0) })
}

// Backward zeroes the gradient wherever the cached input is <= 0.
func (r *ReLU) Backward(grad *tensor.Tensor) *tensor.Tensor {
	x := r.cache.take("ReLU.Backward")
	checkGrad("ReLU.Backward", grad, x.Shape())

	out := grad.Clone()
	data := out.Data()
	for i, v := range x.Data() {
		if v <= 0 {
			data[i] = 0
		}
	}
	return out
}

// Flush clears the cached input.
func (r *ReLU) Flush() {
	r.cache.clear()
	r.flushGrads()
}

// Sigmoid is a sigmoid activation node.
//
// Applies the element-wise function: σ(x) = 1 / (1 + exp(-x))
//
// The output is cached, and the local derivative s(1-s) is taken from it.
type Sigmoid struct {
	base
	cache slot[*tensor.Tensor] // output
}

// NewSigmoid creates a new Sigmoid activation node.
func NewSigmoid() *Sigmoid {
	return &Sigmoid{base: newBase("Sigmoid")}
}

// Forward applies σ(x) = 1 / (1 + exp(-x)).
func (s *Sigmoid) Forward(x *tensor.Tensor) *tensor.Tensor {
	out := x.Apply(func(v float64) float64 { return 1 / (1 + math.Exp(-v)) })
	s.cache.put(out)
	return out
}

// Backward returns grad·s(1-s).
func (s *Sigmoid) Backward(grad *tensor.Tensor) *tensor.Tensor {
	out := s.cache.take("Sigmoid.Backward")
	checkGrad("Sigmoid.Backward", grad, out.Shape())

	res := grad.Clone()
	data := res.Data()
	for i, v := range out.Data() {
		data[i] *= v * (1 - v)
	}
	return res
}

// Flush clears the cached output.
func (s *Sigmoid) Flush() {
	s.cache.clear()
	s.flushGrads()
}

// Tanh is a hyperbolic tangent activation node.
//
// The output t is cached, and the local derivative (1+t)(1-t) is taken from it.
type Tanh struct {
	base
	cache slot[*tensor.Tensor] // output
}

// NewTanh creates a new Tanh activation node.
func NewTanh() *Tanh {
	return &Tanh{base: newBase("Tanh")}
}

// Forward applies tanh(x).
func (t *Tanh) Forward(x *tensor.Tensor) *tensor.Tensor {
	out := x.Apply(math.Tanh)
	t.cache.put(out)
	return out
}

// Backward returns grad·(1+t)(1-t).
func (t *Tanh) Backward(grad *tensor.Tensor) *tensor.Tensor {
	out := t.cache.take("Tanh.Backward")
	checkGrad("Tanh.Backward", grad, out.Shape())

	res := grad.Clone()
	data := res.Data()
	for i, v := range out.Data() {
		data[i] *= (1 + v) * (1 - v)
	}
	return res
}

// Flush clears the cached output.
func (t *Tanh) Flush() {
	t.cache.clear()
	t.flushGrads()
}
