package nn

import (
	"math"
	"math/rand/v2"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// Option configures node construction.
type Option func(*options)

type options struct {
	rng *rand.Rand
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithRNG sets the random source used for weight initialization and dropout
// masks. Without it the global math/rand/v2 source is used.
func WithRNG(rng *rand.Rand) Option {
	return func(o *options) {
		o.rng = rng
	}
}

// KaimingUniform initializes weights from U(-bound, bound) with
// bound = sqrt(6 / fanIn), the He uniform scheme for ReLU networks.
//
// Parameters:
//   - fanIn: Number of input units
//   - shape: Shape of the weight tensor
//   - rng: Random source, nil for the global source
func KaimingUniform(fanIn int, shape tensor.Shape, rng *rand.Rand) *tensor.Tensor {
	bound := math.Sqrt(6.0 / float64(fanIn))
	return tensor.Rand(shape, -bound, bound, rng)
}

// Zeros creates a tensor filled with zeros. Used for biases and shifts.
func Zeros(shape tensor.Shape) *tensor.Tensor {
	return tensor.Zeros(shape)
}

// Ones creates a tensor filled with ones. Used for normalization scales.
func Ones(shape tensor.Shape) *tensor.Tensor {
	return tensor.Ones(shape)
}

// Randn creates a tensor drawn from N(0, std²).
func Randn(shape tensor.Shape, std float64, rng *rand.Rand) *tensor.Tensor {
	return tensor.Randn(shape, rng).Scale(std)
}
