// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import "github.com/born-ml/gradgraph/internal/nn"

// Graph is an ordered pipeline of nodes trained as one unit.
type Graph = nn.Graph

// ForwardOption configures Graph.Forward.
type ForwardOption = nn.ForwardOption

// ModelType is recorded in the header of saved graphs.
const ModelType = nn.ModelType

// NewGraph creates a graph from nodes in forward order. Every node may
// appear only once.
//
// Example:
//
//	graph := nn.NewGraph(
//	    nn.NewLinear(784, 128),
//	    nn.NewReLU(),
//	    nn.NewLinear(128, 10),
//	    nn.NewLogSoftmax(),
//	    nn.NewNLLLoss(),
//	)
func NewGraph(nodes ...Node) *Graph { return nn.NewGraph(nodes...) }

// SkipLoss stops Forward before a terminal loss node.
func SkipLoss() ForwardOption { return nn.SkipLoss() }
