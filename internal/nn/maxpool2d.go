package nn

import (
	"fmt"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// MaxPool2D is a 2D max pooling layer computed over Im2Col windows.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
// Where:
//
//	out_height = (height + 2*padding - kernelSize) / stride + 1
//
// Padding cells read as zero and take part in the maximum. The first
// maximum of a window receives the whole gradient.
//
// Example:
//
//	pool := nn.NewMaxPool2D(2, 2, 0)
//	output := pool.Forward(input) // [32, 64, 28, 28] -> [32, 64, 14, 14]
type MaxPool2D struct {
	base
	kernelSize int
	stride     int
	padding    int
	cache      slot[poolCache]
}

type poolCache struct {
	argMax []int // winning offset within each window
	shape  tensor.Shape
	outH   int
	outW   int
}

// NewMaxPool2D creates a max pooling layer.
//
// Common patterns:
//   - NewMaxPool2D(2, 2, 0): standard 2x2 non-overlapping pooling
//   - NewMaxPool2D(3, 2, 1): overlapping pooling with padding
func NewMaxPool2D(kernelSize, stride, padding int) *MaxPool2D {
	if kernelSize <= 0 || stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("NewMaxPool2D: invalid kernel %d, stride %d or padding %d", kernelSize, stride, padding))
	}
	return &MaxPool2D{
		base:       newBase("MaxPool2D"),
		kernelSize: kernelSize,
		stride:     stride,
		padding:    padding,
	}
}

// Forward takes the maximum of every window and caches its position.
func (m *MaxPool2D) Forward(x *tensor.Tensor) *tensor.Tensor {
	shape := x.Shape()
	outH, outW := checkWindow("MaxPool2D.Forward", shape, m.kernelSize, m.kernelSize, m.stride, m.padding)
	n, c := shape[0], shape[1]
	k2 := m.kernelSize * m.kernelSize

	windows := Im2Col(x, m.kernelSize, m.kernelSize, m.stride, m.padding).Reshape(-1, k2)
	argMax := windows.ArgMaxRows()

	out := tensor.New(tensor.Shape{n, outH, outW, c})
	data := out.Data()
	src := windows.Data()
	for r, a := range argMax {
		data[r] = src[r*k2+a]
	}

	m.cache.put(poolCache{argMax: argMax, shape: shape, outH: outH, outW: outW})
	return out.Permute(0, 3, 1, 2)
}

// Backward routes every output gradient to the position that won the
// forward maximum, summing where windows overlap.
func (m *MaxPool2D) Backward(grad *tensor.Tensor) *tensor.Tensor {
	pc := m.cache.take("MaxPool2D.Backward")
	n, c := pc.shape[0], pc.shape[1]
	checkGrad("MaxPool2D.Backward", grad, tensor.Shape{n, c, pc.outH, pc.outW})

	k2 := m.kernelSize * m.kernelSize
	g := grad.Permute(0, 2, 3, 1).Data()

	dmax := tensor.Zeros(tensor.Shape{len(pc.argMax), k2})
	data := dmax.Data()
	for r, a := range pc.argMax {
		data[r*k2+a] = g[r]
	}

	dcol := dmax.Reshape(n*pc.outH*pc.outW, c*k2)
	return Col2Im(dcol, pc.shape, m.kernelSize, m.kernelSize, m.stride, m.padding)
}

// Flush clears the cached positions.
func (m *MaxPool2D) Flush() {
	m.cache.clear()
	m.flushGrads()
}

// Flatten reshapes [N, ...] inputs to [N, -1].
type Flatten struct {
	base
	cache slot[tensor.Shape]
}

// NewFlatten creates a flatten node.
func NewFlatten() *Flatten {
	return &Flatten{base: newBase("Flatten")}
}

// Forward returns x reshaped to [N, -1].
func (f *Flatten) Forward(x *tensor.Tensor) *tensor.Tensor {
	if x.Rank() < 1 {
		panic(fmt.Errorf("Flatten.Forward: %w: scalar input", ErrShapeMismatch))
	}
	f.cache.put(x.Shape())
	return x.Reshape(x.Dim(0), -1)
}

// Backward reshapes grad back to the input shape.
func (f *Flatten) Backward(grad *tensor.Tensor) *tensor.Tensor {
	shape := f.cache.take("Flatten.Backward")
	checkGrad("Flatten.Backward", grad, tensor.Shape{shape[0], shape[1:].NumElements()})
	return grad.Reshape(shape...)
}

// Flush clears the cached shape.
func (f *Flatten) Flush() {
	f.cache.clear()
	f.flushGrads()
}
