package nn

import (
	"github.com/born-ml/gradgraph/internal/tensor"
)

// Parameter is a trainable tensor owned by exactly one node.
//
// The gradient is set by the owning node's Backward and cleared by Flush.
// Only the optimizer step mutates the tensor itself.
//
// Example:
//
//	weight := nn.NewParameter("weight", tensor.Zeros(tensor.Shape{3, 2}))
//	w := weight.Tensor()
//	g := weight.Grad() // nil until a backward pass
type Parameter struct {
	name   string         // e.g. "weight", "gamma"
	tensor *tensor.Tensor // the owned values
	grad   *tensor.Tensor // gradient of the last backward pass
}

// NewParameter creates a parameter without a gradient.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{name: name, tensor: t}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.tensor
}

// Grad returns the gradient, or nil before backward and after Flush.
func (p *Parameter) Grad() *tensor.Tensor {
	return p.grad
}

// SetGrad replaces the gradient.
func (p *Parameter) SetGrad(grad *tensor.Tensor) {
	p.grad = grad
}

// ZeroGrad clears the gradient.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}
