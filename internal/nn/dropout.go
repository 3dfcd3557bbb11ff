package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// Dropout randomly zeroes activations during training.
//
// In training mode each element is dropped with probability p and the
// survivors pass through unscaled. In eval mode nothing is dropped and the
// input is scaled by 1/(1-p) instead, so the correction is applied at
// inference time rather than during training.
//
// Example:
//
//	drop := nn.NewDropout(0.1, nn.WithRNG(rand.New(rand.NewPCG(1, 2))))
type Dropout struct {
	base
	p     float64
	rng   *rand.Rand
	cache slot[dropoutCache]
}

type dropoutCache struct {
	mask  []bool // true where dropped; nil in eval mode
	shape tensor.Shape
}

// NewDropout creates a dropout node. p must be in [0, 1).
func NewDropout(p float64, opts ...Option) *Dropout {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("NewDropout: probability %v outside [0, 1)", p))
	}
	o := applyOptions(opts)
	return &Dropout{base: newBase("Dropout"), p: p, rng: o.rng}
}

// P returns the drop probability.
func (d *Dropout) P() float64 { return d.p }

// Forward applies the mask in training mode or the 1/(1-p) scale in eval mode.
func (d *Dropout) Forward(x *tensor.Tensor) *tensor.Tensor {
	if d.mode == Eval {
		d.cache.put(dropoutCache{shape: x.Shape()})
		return x.Scale(1 / (1 - d.p))
	}

	out := x.Clone()
	data := out.Data()
	mask := make([]bool, len(data))
	for i := range data {
		if d.uniform() < d.p {
			mask[i] = true
			data[i] = 0
		}
	}
	d.cache.put(dropoutCache{mask: mask, shape: x.Shape()})
	return out
}

// Backward zeroes the gradient where the forward mask dropped, or scales it
// by 1/(1-p) in eval mode.
func (d *Dropout) Backward(grad *tensor.Tensor) *tensor.Tensor {
	c := d.cache.take("Dropout.Backward")
	checkGrad("Dropout.Backward", grad, c.shape)

	if c.mask == nil {
		return grad.Scale(1 / (1 - d.p))
	}
	out := grad.Clone()
	data := out.Data()
	for i, dropped := range c.mask {
		if dropped {
			data[i] = 0
		}
	}
	return out
}

// Flush clears the cached mask.
func (d *Dropout) Flush() {
	d.cache.clear()
	d.flushGrads()
}

func (d *Dropout) uniform() float64 {
	if d.rng != nil {
		return d.rng.Float64()
	}
	return rand.Float64()
}
