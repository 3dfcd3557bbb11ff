package nn

import (
	"fmt"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// Conv2D is a 2D convolutional layer computed as one matrix product over
// Im2Col patches.
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels, kernel, kernel]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where:
//
//	out_h = (height + 2*padding - kernel) / stride + 1
//	out_w = (width + 2*padding - kernel) / stride + 1
//
// Example:
//
//	conv := nn.NewConv2D(1, 6, 5, 1, 0)
//	output := conv.Forward(input) // [32, 1, 28, 28] -> [32, 6, 24, 24]
type Conv2D struct {
	base
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int

	weight *tensor.Tensor // [out_channels, in_channels, kernel, kernel]
	bias   *tensor.Tensor // [out_channels]

	cache slot[convCache]
}

type convCache struct {
	col   *tensor.Tensor // [N*out_h*out_w, in_channels*kernel*kernel]
	shape tensor.Shape   // input shape
	outH  int
	outW  int
}

// NewConv2D creates a convolution layer.
//
// Parameters:
//   - inChannels: Number of input channels
//   - outChannels: Number of output channels (number of filters)
//   - kernelSize: Side of the square kernel
//   - stride: Window step (commonly 1)
//   - padding: Zero padding on every side (commonly 0)
//
// Initialization:
//   - Weights: 0.01 * N(0, 1)
//   - Bias: Zeros
func NewConv2D(inChannels, outChannels, kernelSize, stride, padding int, opts ...Option) *Conv2D {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("NewConv2D: invalid channels in=%d, out=%d", inChannels, outChannels))
	}
	if kernelSize <= 0 || stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("NewConv2D: invalid kernel %d, stride %d or padding %d", kernelSize, stride, padding))
	}
	o := applyOptions(opts)

	c := &Conv2D{
		base:        newBase("Conv2D"),
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
	}
	c.weight = c.addParam("weight", Randn(tensor.Shape{outChannels, inChannels, kernelSize, kernelSize}, 0.01, o.rng))
	c.bias = c.addParam("bias", Zeros(tensor.Shape{outChannels}))
	return c
}

// Forward convolves x with the filters and adds the bias.
func (c *Conv2D) Forward(x *tensor.Tensor) *tensor.Tensor {
	shape := x.Shape()
	if len(shape) != 4 || shape[1] != c.inChannels {
		panic(fmt.Errorf("Conv2D.Forward: %w: expected [N, %d, H, W], got %v", ErrShapeMismatch, c.inChannels, shape))
	}
	n := shape[0]
	outH, outW := checkWindow("Conv2D.Forward", shape, c.kernelSize, c.kernelSize, c.stride, c.padding)

	col := Im2Col(x, c.kernelSize, c.kernelSize, c.stride, c.padding)
	out := col.MatMulT(c.weight.Reshape(c.outChannels, -1)).Add(c.bias)

	c.cache.put(convCache{col: col, shape: shape, outH: outH, outW: outW})
	return out.Reshape(n, outH, outW, c.outChannels).Permute(0, 3, 1, 2)
}

// Backward records the filter and bias gradients and scatters the input
// gradient back through Col2Im.
func (c *Conv2D) Backward(grad *tensor.Tensor) *tensor.Tensor {
	cc := c.cache.take("Conv2D.Backward")
	checkGrad("Conv2D.Backward", grad, tensor.Shape{cc.shape[0], c.outChannels, cc.outH, cc.outW})

	g := grad.Permute(0, 2, 3, 1).Reshape(-1, c.outChannels)
	w2 := c.weight.Reshape(c.outChannels, -1)

	db := g.SumAxis(0).Reshape(c.outChannels)
	dW := g.TMatMul(cc.col).Reshape(c.outChannels, c.inChannels, c.kernelSize, c.kernelSize)
	c.setGrads(dW, db)

	dcol := g.MatMul(w2)
	return Col2Im(dcol, cc.shape, c.kernelSize, c.kernelSize, c.stride, c.padding)
}

// Flush clears the cached patches and gradients.
func (c *Conv2D) Flush() {
	c.cache.clear()
	c.flushGrads()
}

// Weight returns the filters [out_channels, in_channels, kernel, kernel].
func (c *Conv2D) Weight() *tensor.Tensor { return c.weight }

// Bias returns the bias [out_channels].
func (c *Conv2D) Bias() *tensor.Tensor { return c.bias }

// String returns a readable description.
func (c *Conv2D) String() string {
	return fmt.Sprintf("Conv2D(in=%d, out=%d, kernel=%d, stride=%d, padding=%d)",
		c.inChannels, c.outChannels, c.kernelSize, c.stride, c.padding)
}
