// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the regularized SGD update used to train gradgraph
// graphs.
//
// Every parameter p with gradient g is updated in place:
//
//	p -= lr * (g + l1*sign(p) + l2*p)
//
// Example:
//
//	opt, err := optim.NewSGD(optim.Config{LR: 1e-3, L1: 1e-5, L2: 1e-5})
//	if err != nil {
//	    return err
//	}
//	graph.Backward()
//	if err := graph.Step(opt); err != nil {
//	    return err
//	}
package optim

import (
	"github.com/born-ml/gradgraph/internal/optim"
	"github.com/born-ml/gradgraph/tensor"
)

// Config holds the learning rate and regularization strengths.
type Config = optim.Config

// SGD applies the regularized update with a fixed configuration.
type SGD = optim.SGD

// Common errors.
var (
	ErrInvalidConfig = optim.ErrInvalidConfig
	ErrMissingGrad   = optim.ErrMissingGrad
	ErrGradShape     = optim.ErrGradShape
)

// NewSGD validates cfg and returns an optimizer.
func NewSGD(cfg Config) (*SGD, error) {
	return optim.NewSGD(cfg)
}

// Step applies one update to params. Nothing is modified unless every
// gradient is present and shaped like its parameter.
func Step(params, grads []*tensor.Tensor, cfg Config) error {
	return optim.Step(params, grads, cfg)
}
