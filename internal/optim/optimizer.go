// Package optim implements the parameter update used by gradgraph graphs.
//
// The update is plain regularized gradient descent:
//
//	param -= lr * (grad + l1*sign(param) + l2*param)
//
// There is no momentum and no adaptive scaling. L1 and L2 penalties are
// applied to the update directly rather than added to the loss.
//
// Example usage:
//
//	sgd, err := optim.NewSGD(optim.Config{LR: 1e-3, L1: 1e-5, L2: 1e-5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	graph.Flush()
//	graph.Forward(x)
//	graph.Backward()
//	if err := sgd.Step(graph.Params(), graph.Grads()); err != nil {
//	    log.Fatal(err)
//	}
package optim

import (
	"errors"
	"fmt"
	"math"
)

// Common errors.
var (
	ErrInvalidConfig = errors.New("invalid optimizer config")
	ErrMissingGrad   = errors.New("missing gradient")
	ErrGradShape     = errors.New("gradient shape does not match parameter")
)

// Config holds the hyperparameters of one update step.
type Config struct {
	LR float64 // Learning rate
	L1 float64 // L1 penalty coefficient (decoupled, applied as l1*sign(param))
	L2 float64 // L2 penalty coefficient (decoupled, applied as l2*param)
}

// Validate checks that the learning rate is positive and the penalty
// coefficients are non-negative and finite.
func (c Config) Validate() error {
	if !(c.LR > 0) || math.IsInf(c.LR, 0) {
		return fmt.Errorf("%w: learning rate must be positive, got %v", ErrInvalidConfig, c.LR)
	}
	if c.L1 < 0 || math.IsNaN(c.L1) || math.IsInf(c.L1, 0) {
		return fmt.Errorf("%w: l1 must be non-negative, got %v", ErrInvalidConfig, c.L1)
	}
	if c.L2 < 0 || math.IsNaN(c.L2) || math.IsInf(c.L2, 0) {
		return fmt.Errorf("%w: l2 must be non-negative, got %v", ErrInvalidConfig, c.L2)
	}
	return nil
}
