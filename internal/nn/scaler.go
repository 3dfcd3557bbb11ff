package nn

import (
	"fmt"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// normEps stabilizes every division by a standard deviation.
const normEps = 1e-3

// StdScaler standardizes inputs with a fixed mean and standard deviation.
//
// Computes: y = (x - mean) / (std + 1e-3)
//
// The statistics are supplied at construction, broadcast against the input
// and never updated or learned. They are persisted in the state dictionary
// so a loaded graph standardizes exactly like the trained one.
//
// Example:
//
//	scaler := nn.NewStdScaler(ds.X.MeanAxis(0), ds.X.StdAxes(0))
type StdScaler struct {
	base
	mean  *tensor.Tensor
	std   *tensor.Tensor
	denom *tensor.Tensor // std + eps
	cache slot[tensor.Shape]
}

// NewStdScaler creates a scaler. mean and std are copied and must have the
// same shape.
func NewStdScaler(mean, std *tensor.Tensor) *StdScaler {
	if !mean.Shape().Equal(std.Shape()) {
		panic(fmt.Errorf("NewStdScaler: %w: mean %v, std %v", ErrShapeMismatch, mean.Shape(), std.Shape()))
	}
	s := &StdScaler{
		base: newBase("StdScaler"),
		mean: mean.Clone(),
		std:  std.Clone(),
	}
	s.denom = s.std.AddScalar(normEps)
	return s
}

// Forward returns (x - mean) / (std + eps).
func (s *StdScaler) Forward(x *tensor.Tensor) *tensor.Tensor {
	out := x.Sub(s.mean).Div(s.denom)
	if !out.Shape().Equal(x.Shape()) {
		panic(fmt.Errorf("StdScaler.Forward: %w: statistics %v widen input %v", ErrShapeMismatch, s.mean.Shape(), x.Shape()))
	}
	s.cache.put(x.Shape())
	return out
}

// Backward returns grad / (std + eps).
func (s *StdScaler) Backward(grad *tensor.Tensor) *tensor.Tensor {
	shape := s.cache.take("StdScaler.Backward")
	checkGrad("StdScaler.Backward", grad, shape)
	return grad.Div(s.denom)
}

// Flush clears the cache.
func (s *StdScaler) Flush() {
	s.cache.clear()
	s.flushGrads()
}

// Mean returns the fixed mean.
func (s *StdScaler) Mean() *tensor.Tensor { return s.mean }

// Std returns the fixed standard deviation.
func (s *StdScaler) Std() *tensor.Tensor { return s.std }

// StateDict returns the fixed statistics.
func (s *StdScaler) StateDict() map[string]*tensor.Tensor {
	return map[string]*tensor.Tensor{"mean": s.mean, "std": s.std}
}

// LoadStateDict replaces the statistics. Shapes must match.
func (s *StdScaler) LoadStateDict(state map[string]*tensor.Tensor) error {
	for _, key := range []string{"mean", "std"} {
		if err := checkState(s.name, state, key, s.mean.Shape()); err != nil {
			return err
		}
	}
	s.mean.CopyFrom(state["mean"])
	s.std.CopyFrom(state["std"])
	s.denom = s.std.AddScalar(normEps)
	return nil
}
