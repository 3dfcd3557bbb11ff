package optim

import (
	"fmt"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// SGD is regularized gradient descent without momentum.
//
// Update rule, elementwise and shape-preserving:
//
//	param = param - lr * (grad + l1*sign(param) + l2*param)
type SGD struct {
	cfg Config
}

// NewSGD creates an optimizer after validating cfg.
func NewSGD(cfg Config) (*SGD, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SGD{cfg: cfg}, nil
}

// LR returns the learning rate.
func (s *SGD) LR() float64 {
	return s.cfg.LR
}

// Config returns the optimizer configuration.
func (s *SGD) Config() Config {
	return s.cfg
}

// Step updates every parameter in place from its gradient.
//
// params[i] is updated from grads[i]. Every pair is checked before any
// parameter is written, so a failed step leaves all parameters untouched.
func (s *SGD) Step(params, grads []*tensor.Tensor) error {
	return Step(params, grads, s.cfg)
}

// Step applies one regularized update without constructing an SGD.
// cfg is not validated.
func Step(params, grads []*tensor.Tensor, cfg Config) error {
	if err := checkGrads(params, grads); err != nil {
		return err
	}
	for i, p := range params {
		update(p, grads[i], cfg)
	}
	return nil
}

func checkGrads(params, grads []*tensor.Tensor) error {
	if len(grads) != len(params) {
		return fmt.Errorf("%w: %d gradients for %d parameters", ErrMissingGrad, len(grads), len(params))
	}
	for i, p := range params {
		g := grads[i]
		if g == nil {
			return fmt.Errorf("%w: parameter %d", ErrMissingGrad, i)
		}
		if !g.Shape().Equal(p.Shape()) {
			return fmt.Errorf("%w: parameter %d has shape %v, gradient %v", ErrGradShape, i, p.Shape(), g.Shape())
		}
	}
	return nil
}

// update computes the full step from the pre-step parameter value, then
// applies it.
func update(p, g *tensor.Tensor, cfg Config) {
	step := g.Clone()
	if cfg.L1 != 0 {
		step.AddInPlace(cfg.L1, p.Sign())
	}
	if cfg.L2 != 0 {
		step.AddInPlace(cfg.L2, p)
	}
	p.AddInPlace(-cfg.LR, step)
}
