// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the gradgraph node catalog and the Graph that trains it.
//
// # Overview
//
// This package contains:
//   - Layers: Linear, Conv2D, MaxPool2D, Flatten
//   - Normalization: StdScaler, BatchNorm, ChannelBatchNorm, Dropout
//   - Activations: ReLU, Sigmoid, Tanh, Softmax, LogSoftmax
//   - Loss functions: NLLLoss, CrossEntropyLoss
//   - Graph: forward, backward, optimizer step, persistence
//
// # Training Loop
//
//	graph.Train()
//	for _, batch := range batches {
//	    graph.SetLabels(batch.Labels)
//	    graph.Flush()
//	    outs := graph.Forward(batch.X)
//	    loss := outs[len(outs)-1].Item()
//	    graph.Backward()
//	    if err := graph.OptimStep(1e-3, 1e-5, 1e-5); err != nil {
//	        return err
//	    }
//	}
//
// Flush must separate independent batches: every node keeps a single
// cache slot for the backward pass.
//
// # Persistence
//
// Graphs are saved to .ggr files holding every parameter and running
// statistic plus string metadata:
//
//	if err := graph.Save("model.ggr", map[string]string{"dataset": "mnist"}); err != nil {
//	    return err
//	}
//	header, err := fresh.Load("model.ggr")
//
// The loading graph must have the same node sequence.
package nn
