package nn

import (
	"fmt"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// DefaultMomentum is the running-statistics momentum used by the batch-norm
// constructors.
const DefaultMomentum = 0.9

// runningStats holds the exponentially averaged mean and standard deviation
// of a normalization node.
type runningStats struct {
	momentum float64
	mean     *tensor.Tensor
	std      *tensor.Tensor
}

// update folds batch statistics into the running ones. The first batch
// initializes them.
func (r *runningStats) update(mean, std *tensor.Tensor) {
	if r.mean == nil || r.std == nil {
		r.mean, r.std = mean, std
		return
	}
	if !r.mean.Shape().Equal(mean.Shape()) {
		panic(fmt.Errorf("running statistics: %w: %v vs batch %v", ErrShapeMismatch, r.mean.Shape(), mean.Shape()))
	}
	r.mean = r.mean.Scale(r.momentum).Add(mean.Scale(1 - r.momentum))
	r.std = r.std.Scale(r.momentum).Add(std.Scale(1 - r.momentum))
}

func (r *runningStats) ready() bool {
	return r.mean != nil && r.std != nil
}

// normalize returns (x - mean) / (std + eps) and the denominator used.
func (r *runningStats) normalize(op string, x *tensor.Tensor) (xhat, denom *tensor.Tensor) {
	if !r.ready() {
		panic(fmt.Errorf("%s: %w: run a training batch first", op, ErrNoStatistics))
	}
	denom = r.std.AddScalar(normEps)
	return x.Sub(r.mean).Div(denom), denom
}

func (r *runningStats) state(dict map[string]*tensor.Tensor) {
	if r.ready() {
		dict["running_mean"] = r.mean
		dict["running_std"] = r.std
	}
}

// load restores the statistics from dict when present. valid checks the
// stored shape.
func (r *runningStats) load(node string, dict map[string]*tensor.Tensor, valid func(tensor.Shape) bool) error {
	mean, okMean := dict["running_mean"]
	std, okStd := dict["running_std"]
	switch {
	case !okMean && !okStd:
		r.mean, r.std = nil, nil
		return nil
	case okMean != okStd:
		return fmt.Errorf("%s: %w: running_mean and running_std must be stored together", node, ErrIncompatibleState)
	case !mean.Shape().Equal(std.Shape()) || !valid(mean.Shape()):
		return fmt.Errorf("%s: %w: running statistics shape %v", node, ErrIncompatibleState, mean.Shape())
	}
	r.mean, r.std = mean.Clone(), std.Clone()
	return nil
}

// bnCache is what batch-norm backward needs.
type bnCache struct {
	xhat  *tensor.Tensor
	denom *tensor.Tensor
}

// BatchNorm normalizes features over the batch axis.
//
// In training mode the batch mean and standard deviation (over axis 0) are
// folded into running statistics with an exponential moving average, and
// the input is normalized with the just-updated running values. In eval
// mode the running statistics are frozen.
//
//	y = gamma * (x - running_mean) / (running_std + 1e-3) + beta
//
// Backward treats the running statistics as constants: it differentiates
// through the scale, the shift and the stabilized division only, an
// approximation of textbook batch-norm backward.
//
// Input shape: [batch, ..., dim]
type BatchNorm struct {
	base
	dim   int
	gamma *tensor.Tensor
	beta  *tensor.Tensor
	stats runningStats
	cache slot[bnCache]
}

// NewBatchNorm creates a batch-norm node over the last dimension dim.
// momentum weights the previous running value, e.g. DefaultMomentum.
func NewBatchNorm(dim int, momentum float64) *BatchNorm {
	if dim <= 0 || momentum < 0 || momentum > 1 {
		panic(fmt.Sprintf("NewBatchNorm: invalid dim %d or momentum %v", dim, momentum))
	}
	b := &BatchNorm{
		base:  newBase("BatchNorm"),
		dim:   dim,
		stats: runningStats{momentum: momentum},
	}
	b.gamma = b.addParam("gamma", Ones(tensor.Shape{dim}))
	b.beta = b.addParam("beta", Zeros(tensor.Shape{dim}))
	return b
}

// Forward normalizes x and applies the learned scale and shift.
func (b *BatchNorm) Forward(x *tensor.Tensor) *tensor.Tensor {
	if x.Rank() < 2 || x.Dim(-1) != b.dim {
		panic(fmt.Errorf("BatchNorm.Forward: %w: expected [batch, ..., %d], got %v", ErrShapeMismatch, b.dim, x.Shape()))
	}
	if b.mode == Train {
		b.stats.update(x.MeanAxis(0), x.StdAxes(0))
	}
	xhat, denom := b.stats.normalize("BatchNorm.Forward", x)
	if !xhat.Shape().Equal(x.Shape()) {
		panic(fmt.Errorf("BatchNorm.Forward: %w: statistics %v, input %v", ErrShapeMismatch, denom.Shape(), x.Shape()))
	}
	b.cache.put(bnCache{xhat: xhat, denom: denom})
	return xhat.Mul(b.gamma).Add(b.beta)
}

// Backward records gGamma = Σ x̂·grad and gBeta = Σ grad over every axis but
// the last, and returns grad·gamma / (std + eps).
func (b *BatchNorm) Backward(grad *tensor.Tensor) *tensor.Tensor {
	c := b.cache.take("BatchNorm.Backward")
	checkGrad("BatchNorm.Backward", grad, c.xhat.Shape())

	gGamma := c.xhat.Mul(grad).Reshape(-1, b.dim).SumAxis(0).Reshape(b.dim)
	gBeta := grad.Reshape(-1, b.dim).SumAxis(0).Reshape(b.dim)
	b.setGrads(gGamma, gBeta)
	return grad.Mul(b.gamma).Div(c.denom)
}

// Flush clears the cache and gradients. Running statistics are kept.
func (b *BatchNorm) Flush() {
	b.cache.clear()
	b.flushGrads()
}

// RunningMean returns the running mean, or nil before the first training batch.
func (b *BatchNorm) RunningMean() *tensor.Tensor { return b.stats.mean }

// RunningStd returns the running standard deviation, or nil before the first
// training batch.
func (b *BatchNorm) RunningStd() *tensor.Tensor { return b.stats.std }

// StateDict returns gamma, beta and the running statistics when initialized.
func (b *BatchNorm) StateDict() map[string]*tensor.Tensor {
	dict := b.base.StateDict()
	b.stats.state(dict)
	return dict
}

// LoadStateDict restores parameters and running statistics.
func (b *BatchNorm) LoadStateDict(state map[string]*tensor.Tensor) error {
	if err := b.stats.load(b.name, state, func(s tensor.Shape) bool {
		return len(s) >= 2 && s[0] == 1 && s[len(s)-1] == b.dim
	}); err != nil {
		return err
	}
	return b.loadParams(state)
}

// ChannelBatchNorm normalizes NCHW feature maps per channel.
//
// Statistics are taken over the batch and spatial axes (N, H·W) for each of
// the C channels. Running-statistics handling and the backward
// approximation are the same as BatchNorm.
//
// Input shape: [batch, channels, height, width]
type ChannelBatchNorm struct {
	base
	channels int
	gamma    *tensor.Tensor
	beta     *tensor.Tensor
	stats    runningStats
	cache    slot[bnCache]
}

// NewChannelBatchNorm creates a per-channel batch-norm node.
func NewChannelBatchNorm(channels int, momentum float64) *ChannelBatchNorm {
	if channels <= 0 || momentum < 0 || momentum > 1 {
		panic(fmt.Sprintf("NewChannelBatchNorm: invalid channels %d or momentum %v", channels, momentum))
	}
	b := &ChannelBatchNorm{
		base:     newBase("ChannelBatchNorm"),
		channels: channels,
		stats:    runningStats{momentum: momentum},
	}
	b.gamma = b.addParam("gamma", Ones(tensor.Shape{channels}))
	b.beta = b.addParam("beta", Zeros(tensor.Shape{channels}))
	return b
}

// Forward normalizes each channel and applies the learned scale and shift.
func (b *ChannelBatchNorm) Forward(x *tensor.Tensor) *tensor.Tensor {
	shape := x.Shape()
	if len(shape) != 4 || shape[1] != b.channels {
		panic(fmt.Errorf("ChannelBatchNorm.Forward: %w: expected [N, %d, H, W], got %v", ErrShapeMismatch, b.channels, shape))
	}
	n, c := shape[0], shape[1]
	x3 := x.Reshape(n, c, -1)
	if b.mode == Train {
		b.stats.update(x3.MeanAxes(0, 2), x3.StdAxes(0, 2))
	}
	xhat, denom := b.stats.normalize("ChannelBatchNorm.Forward", x3)
	b.cache.put(bnCache{xhat: xhat, denom: denom})

	out := xhat.Mul(b.gamma.Reshape(1, c, 1)).Add(b.beta.Reshape(1, c, 1))
	return out.Reshape(shape...)
}

// Backward records per-channel gGamma and gBeta and returns
// grad·gamma / (std + eps).
func (b *ChannelBatchNorm) Backward(grad *tensor.Tensor) *tensor.Tensor {
	c := b.cache.take("ChannelBatchNorm.Backward")
	shape := grad.Shape()
	if len(shape) != 4 || shape.NumElements() != c.xhat.Len() || shape[1] != b.channels {
		panic(fmt.Errorf("ChannelBatchNorm.Backward: %w: gradient shape %v", ErrShapeMismatch, shape))
	}
	g3 := grad.Reshape(shape[0], b.channels, -1)
	checkGrad("ChannelBatchNorm.Backward", g3, c.xhat.Shape())

	gGamma := c.xhat.Mul(g3).SumAxis(0).SumAxis(2).Reshape(b.channels)
	gBeta := g3.SumAxis(0).SumAxis(2).Reshape(b.channels)
	b.setGrads(gGamma, gBeta)

	dx := g3.Mul(b.gamma.Reshape(1, b.channels, 1)).Div(c.denom)
	return dx.Reshape(shape...)
}

// Flush clears the cache and gradients. Running statistics are kept.
func (b *ChannelBatchNorm) Flush() {
	b.cache.clear()
	b.flushGrads()
}

// RunningMean returns the running mean [1, C, 1], or nil before training.
func (b *ChannelBatchNorm) RunningMean() *tensor.Tensor { return b.stats.mean }

// RunningStd returns the running standard deviation [1, C, 1], or nil
// before training.
func (b *ChannelBatchNorm) RunningStd() *tensor.Tensor { return b.stats.std }

// StateDict returns gamma, beta and the running statistics when initialized.
func (b *ChannelBatchNorm) StateDict() map[string]*tensor.Tensor {
	dict := b.base.StateDict()
	b.stats.state(dict)
	return dict
}

// LoadStateDict restores parameters and running statistics.
func (b *ChannelBatchNorm) LoadStateDict(state map[string]*tensor.Tensor) error {
	want := tensor.Shape{1, b.channels, 1}
	if err := b.stats.load(b.name, state, want.Equal); err != nil {
		return err
	}
	return b.loadParams(state)
}
