package nn

import (
	"fmt"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W + b
// where:
//   - x is the input tensor with shape [batch_size, in_features]
//   - W is the weight matrix with shape [in_features, out_features]
//   - b is the bias vector with shape [out_features]
//   - y is the output tensor with shape [batch_size, out_features]
//
// Weights are initialized with Kaiming uniform, biases with zeros.
//
// Example:
//
//	layer := nn.NewLinear(784, 128)
//	output := layer.Forward(input) // [32, 784] -> [32, 128]
type Linear struct {
	base
	inFeatures  int
	outFeatures int
	weight      *tensor.Tensor // [in_features, out_features]
	bias        *tensor.Tensor // [out_features]
	cache       slot[*tensor.Tensor]
}

// NewLinear creates a new Linear layer.
//
// Parameters:
//   - inFeatures: Number of input features
//   - outFeatures: Number of output features
//   - opts: WithRNG for reproducible initialization
func NewLinear(inFeatures, outFeatures int, opts ...Option) *Linear {
	if inFeatures <= 0 || outFeatures <= 0 {
		panic(fmt.Sprintf("NewLinear: invalid dimensions %d -> %d", inFeatures, outFeatures))
	}
	o := applyOptions(opts)

	l := &Linear{
		base:        newBase("Linear"),
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
	}
	l.weight = l.addParam("weight", KaimingUniform(inFeatures, tensor.Shape{inFeatures, outFeatures}, o.rng))
	l.bias = l.addParam("bias", Zeros(tensor.Shape{outFeatures}))
	return l
}

// Forward computes x @ W + b and caches x.
//
// Input shape: [batch_size, in_features]
// Output shape: [batch_size, out_features]
func (l *Linear) Forward(x *tensor.Tensor) *tensor.Tensor {
	shape := x.Shape()
	if len(shape) != 2 || shape[1] != l.inFeatures {
		panic(fmt.Errorf("Linear.Forward: %w: expected [batch, %d], got %v", ErrShapeMismatch, l.inFeatures, shape))
	}
	l.cache.put(x)
	return x.MatMul(l.weight).Add(l.bias)
}

// Backward records gW = xᵀ·grad and gb = colsum(grad), and returns grad·Wᵀ.
func (l *Linear) Backward(grad *tensor.Tensor) *tensor.Tensor {
	x := l.cache.take("Linear.Backward")
	checkGrad("Linear.Backward", grad, tensor.Shape{x.Dim(0), l.outFeatures})

	gW := x.TMatMul(grad)
	gb := grad.SumAxis(0).Reshape(l.outFeatures)
	l.setGrads(gW, gb)
	return grad.MatMulT(l.weight)
}

// Flush clears the cached input and gradients.
func (l *Linear) Flush() {
	l.cache.clear()
	l.flushGrads()
}

// Weight returns the weight tensor [in_features, out_features].
func (l *Linear) Weight() *tensor.Tensor { return l.weight }

// Bias returns the bias tensor [out_features].
func (l *Linear) Bias() *tensor.Tensor { return l.bias }

// InFeatures returns the input width.
func (l *Linear) InFeatures() int { return l.inFeatures }

// OutFeatures returns the output width.
func (l *Linear) OutFeatures() int { return l.outFeatures }
