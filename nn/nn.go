// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"math/rand/v2"

	"github.com/born-ml/gradgraph/internal/nn"
	"github.com/born-ml/gradgraph/tensor"
)

// Node is one differentiable computation step of a Graph.
type Node = nn.Node

// LossNode is a terminal Node that consumes class labels.
type LossNode = nn.LossNode

// Parameter is a named trainable tensor.
type Parameter = nn.Parameter

// Mode selects training or evaluation behavior.
type Mode = nn.Mode

// Supported modes.
const (
	Train = nn.Train
	Eval  = nn.Eval
)

// Option configures node construction.
type Option = nn.Option

// DefaultMomentum is the running-statistics momentum of the batch-norm nodes.
const DefaultMomentum = nn.DefaultMomentum

// Common errors.
var (
	ErrShapeMismatch     = nn.ErrShapeMismatch
	ErrNoForward         = nn.ErrNoForward
	ErrNoBackward        = nn.ErrNoBackward
	ErrNoLabels          = nn.ErrNoLabels
	ErrLabelOutOfRange   = nn.ErrLabelOutOfRange
	ErrNoLossNode        = nn.ErrNoLossNode
	ErrNoStatistics      = nn.ErrNoStatistics
	ErrIncompatibleState = nn.ErrIncompatibleState
)

// WithRNG sets the random source for weight initialization and dropout masks.
func WithRNG(rng *rand.Rand) Option { return nn.WithRNG(rng) }

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return nn.NewParameter(name, t)
}

// KaimingUniform samples U(-sqrt(6/fanIn), sqrt(6/fanIn)).
func KaimingUniform(fanIn int, shape tensor.Shape, rng *rand.Rand) *tensor.Tensor {
	return nn.KaimingUniform(fanIn, shape, rng)
}

// Activations

// ReLU computes max(0, x).
type ReLU = nn.ReLU

// NewReLU creates a ReLU activation.
func NewReLU() *ReLU { return nn.NewReLU() }

// Sigmoid computes 1 / (1 + exp(-x)).
type Sigmoid = nn.Sigmoid

// NewSigmoid creates a Sigmoid activation.
func NewSigmoid() *Sigmoid { return nn.NewSigmoid() }

// Tanh computes the hyperbolic tangent.
type Tanh = nn.Tanh

// NewTanh creates a Tanh activation.
func NewTanh() *Tanh { return nn.NewTanh() }

// Layers

// Linear is a fully connected layer y = x @ W + b.
type Linear = nn.Linear

// NewLinear creates a linear layer with Kaiming-uniform weights.
//
// Example:
//
//	layer := nn.NewLinear(784, 128, nn.WithRNG(rng))
func NewLinear(inFeatures, outFeatures int, opts ...Option) *Linear {
	return nn.NewLinear(inFeatures, outFeatures, opts...)
}

// StdScaler standardizes inputs with fixed statistics.
type StdScaler = nn.StdScaler

// NewStdScaler creates a scaler from a mean and a standard deviation.
func NewStdScaler(mean, std *tensor.Tensor) *StdScaler {
	return nn.NewStdScaler(mean, std)
}

// BatchNorm normalizes [batch, features] inputs.
type BatchNorm = nn.BatchNorm

// NewBatchNorm creates a batch-norm node over dim features.
func NewBatchNorm(dim int, momentum float64) *BatchNorm {
	return nn.NewBatchNorm(dim, momentum)
}

// ChannelBatchNorm normalizes [batch, channels, height, width] inputs per channel.
type ChannelBatchNorm = nn.ChannelBatchNorm

// NewChannelBatchNorm creates a per-channel batch-norm node.
func NewChannelBatchNorm(channels int, momentum float64) *ChannelBatchNorm {
	return nn.NewChannelBatchNorm(channels, momentum)
}

// Dropout zeroes activations with probability p during training.
type Dropout = nn.Dropout

// NewDropout creates a dropout node; p must lie in [0, 1).
func NewDropout(p float64, opts ...Option) *Dropout {
	return nn.NewDropout(p, opts...)
}

// Softmax normalizes along an axis into probabilities.
type Softmax = nn.Softmax

// NewSoftmax creates a softmax over the last axis.
func NewSoftmax() *Softmax { return nn.NewSoftmax() }

// NewSoftmaxAxis creates a softmax over axis.
func NewSoftmaxAxis(axis int) *Softmax { return nn.NewSoftmaxAxis(axis) }

// LogSoftmax computes log-probabilities along an axis.
type LogSoftmax = nn.LogSoftmax

// NewLogSoftmax creates a log-softmax over the last axis.
func NewLogSoftmax() *LogSoftmax { return nn.NewLogSoftmax() }

// NewLogSoftmaxAxis creates a log-softmax over axis.
func NewLogSoftmaxAxis(axis int) *LogSoftmax { return nn.NewLogSoftmaxAxis(axis) }

// Conv2D is a 2D convolution computed with im2col.
type Conv2D = nn.Conv2D

// NewConv2D creates a square-kernel convolution.
//
// Example:
//
//	conv := nn.NewConv2D(1, 8, 3, 1, 1) // [N,1,28,28] -> [N,8,28,28]
func NewConv2D(inChannels, outChannels, kernelSize, stride, padding int, opts ...Option) *Conv2D {
	return nn.NewConv2D(inChannels, outChannels, kernelSize, stride, padding, opts...)
}

// MaxPool2D is 2D max pooling.
type MaxPool2D = nn.MaxPool2D

// NewMaxPool2D creates a max pooling node.
func NewMaxPool2D(kernelSize, stride, padding int) *MaxPool2D {
	return nn.NewMaxPool2D(kernelSize, stride, padding)
}

// Flatten reshapes [batch, ...] into [batch, features].
type Flatten = nn.Flatten

// NewFlatten creates a flatten node.
func NewFlatten() *Flatten { return nn.NewFlatten() }

// Im2Col unfolds the sliding windows of x into rows.
func Im2Col(x *tensor.Tensor, kh, kw, stride, pad int) *tensor.Tensor {
	return nn.Im2Col(x, kh, kw, stride, pad)
}

// Col2Im folds window rows back into an image, summing overlaps.
func Col2Im(col *tensor.Tensor, shape tensor.Shape, kh, kw, stride, pad int) *tensor.Tensor {
	return nn.Col2Im(col, shape, kh, kw, stride, pad)
}

// Losses

// NLLLoss is the negative log-likelihood loss over log-probabilities.
type NLLLoss = nn.NLLLoss

// NewNLLLoss creates an NLL loss node.
func NewNLLLoss() *NLLLoss { return nn.NewNLLLoss() }

// CrossEntropyLoss is the cross-entropy loss over probabilities.
type CrossEntropyLoss = nn.CrossEntropyLoss

// NewCrossEntropyLoss creates a cross-entropy loss node.
func NewCrossEntropyLoss() *CrossEntropyLoss { return nn.NewCrossEntropyLoss() }
