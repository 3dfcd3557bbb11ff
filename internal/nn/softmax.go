package nn

import (
	"math"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// logEps keeps log() away from zero in LogSoftmax and CrossEntropyLoss.
const logEps = 1e-6

// Softmax normalizes exponentials along an axis.
//
//	softmax(x)_i = exp(x_i - max(x)) / Σ_j exp(x_j - max(x))
//
// The per-axis maximum is subtracted before exponentiating so large logits
// do not overflow.
type Softmax struct {
	base
	axis  int
	cache slot[*tensor.Tensor] // output
}

// NewSoftmax creates a softmax node over the last axis.
func NewSoftmax() *Softmax {
	return NewSoftmaxAxis(-1)
}

// NewSoftmaxAxis creates a softmax node over axis. Negative axes count from
// the end.
func NewSoftmaxAxis(axis int) *Softmax {
	return &Softmax{base: newBase("Softmax"), axis: axis}
}

// Forward returns the softmax of x along the configured axis.
func (s *Softmax) Forward(x *tensor.Tensor) *tensor.Tensor {
	e := x.Sub(x.MaxAxis(s.axis)).Exp()
	out := e.Div(e.SumAxis(s.axis))
	s.cache.put(out)
	return out
}

// Backward returns s·grad - s·Σ(s·grad).
func (s *Softmax) Backward(grad *tensor.Tensor) *tensor.Tensor {
	out := s.cache.take("Softmax.Backward")
	checkGrad("Softmax.Backward", grad, out.Shape())

	gp := grad.Mul(out)
	return gp.Sub(gp.SumAxis(s.axis).Mul(out))
}

// Flush clears the cached output.
func (s *Softmax) Flush() {
	s.cache.clear()
	s.flushGrads()
}

// LogSoftmax computes log-probabilities along an axis.
//
//	logsoftmax(x) = x - max(x) - log(Σ exp(x - max(x)) + 1e-6)
//
// The cached output is exponentiated in Backward to recover the softmax.
type LogSoftmax struct {
	base
	axis  int
	cache slot[*tensor.Tensor] // output
}

// NewLogSoftmax creates a log-softmax node over the last axis.
func NewLogSoftmax() *LogSoftmax {
	return NewLogSoftmaxAxis(-1)
}

// NewLogSoftmaxAxis creates a log-softmax node over axis.
func NewLogSoftmaxAxis(axis int) *LogSoftmax {
	return &LogSoftmax{base: newBase("LogSoftmax"), axis: axis}
}

// Forward returns the log-softmax of x along the configured axis.
func (l *LogSoftmax) Forward(x *tensor.Tensor) *tensor.Tensor {
	shifted := x.Sub(x.MaxAxis(l.axis))
	lse := shifted.Exp().SumAxis(l.axis).Apply(func(v float64) float64 {
		return math.Log(v + logEps)
	})
	out := shifted.Sub(lse)
	l.cache.put(out)
	return out
}

// Backward returns grad - exp(out)·Σgrad.
func (l *LogSoftmax) Backward(grad *tensor.Tensor) *tensor.Tensor {
	out := l.cache.take("LogSoftmax.Backward")
	checkGrad("LogSoftmax.Backward", grad, out.Shape())

	return grad.Sub(out.Exp().Mul(grad.SumAxis(l.axis)))
}

// Flush clears the cached output.
func (l *LogSoftmax) Flush() {
	l.cache.clear()
	l.flushGrads()
}
