// Package models builds ready-to-train classifier graphs and records their
// architecture in file metadata so a saved graph can be rebuilt and loaded.
package models

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/born-ml/gradgraph/internal/nn"
	"github.com/born-ml/gradgraph/internal/tensor"
)

// Supported architecture kinds.
const (
	KindMLP = "mlp"
	KindCNN = "cnn"
)

// Supported loss heads.
const (
	LossNLL = "nll" // LogSoftmax + NLLLoss
	LossCE  = "ce"  // Softmax + CrossEntropyLoss
)

// Metadata keys written by Metadata.
const (
	keyKind      = "arch.kind"
	keyInput     = "arch.input"
	keyHidden    = "arch.hidden"
	keyClasses   = "arch.classes"
	keyDropout   = "arch.dropout"
	keyBatchNorm = "arch.batchnorm"
	keyLoss      = "arch.loss"
)

// ErrInvalidArchitecture is returned for unbuildable architectures.
var ErrInvalidArchitecture = errors.New("invalid architecture")

// Architecture describes a classifier graph.
//
// MLP (Input [features] or any shape, flattened first):
//
//	StdScaler -> {Linear -> [BatchNorm] -> ReLU -> [Dropout]} x len(Hidden)
//	-> Linear(classes) -> loss head
//
// CNN (Input [channels, height, width]):
//
//	StdScaler -> {Conv2D 3x3 -> [ChannelBatchNorm] -> ReLU -> MaxPool2D 2x2} x len(Hidden)
//	-> Flatten -> [Dropout] -> Linear(classes) -> loss head
//
// For a CNN, Hidden lists the convolution channel counts.
type Architecture struct {
	Kind      string
	Input     tensor.Shape // one sample
	Hidden    []int
	Classes   int
	Dropout   float64 // 0 disables dropout
	BatchNorm bool
	Loss      string // LossNLL (default) or LossCE
}

// Validate checks that the architecture can be built.
func (a Architecture) Validate() error {
	if a.Kind != KindMLP && a.Kind != KindCNN {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidArchitecture, a.Kind)
	}
	if err := a.Input.Validate(); err != nil || len(a.Input) == 0 {
		return fmt.Errorf("%w: input shape %v", ErrInvalidArchitecture, a.Input)
	}
	if a.Classes < 2 {
		return fmt.Errorf("%w: need at least 2 classes, got %d", ErrInvalidArchitecture, a.Classes)
	}
	for _, h := range a.Hidden {
		if h <= 0 {
			return fmt.Errorf("%w: hidden size %d", ErrInvalidArchitecture, h)
		}
	}
	if a.Dropout < 0 || a.Dropout >= 1 {
		return fmt.Errorf("%w: dropout %v outside [0, 1)", ErrInvalidArchitecture, a.Dropout)
	}
	switch a.Loss {
	case "", LossNLL, LossCE:
	default:
		return fmt.Errorf("%w: unknown loss %q", ErrInvalidArchitecture, a.Loss)
	}

	if a.Kind == KindCNN {
		if len(a.Input) != 3 {
			return fmt.Errorf("%w: cnn input must be [channels, height, width], got %v", ErrInvalidArchitecture, a.Input)
		}
		h, w := a.Input[1], a.Input[2]
		for range a.Hidden {
			if h < 2 || w < 2 {
				return fmt.Errorf("%w: %v too small for %d pooling stages", ErrInvalidArchitecture, a.Input, len(a.Hidden))
			}
			h, w = h/2, w/2
		}
	}
	return nil
}

// Build creates the graph. mean and std feed the StdScaler and must be
// shaped [1, Input...]. When either is nil the scaler gets placeholder
// statistics, which suits a graph whose state is about to be loaded.
func (a Architecture) Build(mean, std *tensor.Tensor, rng *rand.Rand) (*nn.Graph, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	statShape := append(tensor.Shape{1}, a.Input...)
	if mean == nil || std == nil {
		mean = tensor.Zeros(statShape)
		std = tensor.Ones(statShape)
	}
	if !mean.Shape().Equal(statShape) || !std.Shape().Equal(statShape) {
		return nil, fmt.Errorf("%w: scaler statistics %v and %v, want %v",
			ErrInvalidArchitecture, mean.Shape(), std.Shape(), statShape)
	}

	nodes := []nn.Node{nn.NewStdScaler(mean, std)}
	withRNG := nn.WithRNG(rng)
	if a.Kind == KindCNN {
		nodes = a.appendConvBody(nodes, withRNG)
	} else {
		nodes = a.appendDenseBody(nodes, withRNG)
	}

	if a.Loss == LossCE {
		nodes = append(nodes, nn.NewSoftmax(), nn.NewCrossEntropyLoss())
	} else {
		nodes = append(nodes, nn.NewLogSoftmax(), nn.NewNLLLoss())
	}
	return nn.NewGraph(nodes...), nil
}

func (a Architecture) appendDenseBody(nodes []nn.Node, withRNG nn.Option) []nn.Node {
	if len(a.Input) > 1 {
		nodes = append(nodes, nn.NewFlatten())
	}
	in := a.Input.NumElements()
	for _, h := range a.Hidden {
		nodes = append(nodes, nn.NewLinear(in, h, withRNG))
		if a.BatchNorm {
			nodes = append(nodes, nn.NewBatchNorm(h, nn.DefaultMomentum))
		}
		nodes = append(nodes, nn.NewReLU())
		if a.Dropout > 0 {
			nodes = append(nodes, nn.NewDropout(a.Dropout, withRNG))
		}
		in = h
	}
	return append(nodes, nn.NewLinear(in, a.Classes, withRNG))
}

func (a Architecture) appendConvBody(nodes []nn.Node, withRNG nn.Option) []nn.Node {
	c, h, w := a.Input[0], a.Input[1], a.Input[2]
	for _, out := range a.Hidden {
		nodes = append(nodes, nn.NewConv2D(c, out, 3, 1, 1, withRNG))
		if a.BatchNorm {
			nodes = append(nodes, nn.NewChannelBatchNorm(out, nn.DefaultMomentum))
		}
		nodes = append(nodes, nn.NewReLU(), nn.NewMaxPool2D(2, 2, 0))
		c, h, w = out, h/2, w/2
	}
	nodes = append(nodes, nn.NewFlatten())
	if a.Dropout > 0 {
		nodes = append(nodes, nn.NewDropout(a.Dropout, withRNG))
	}
	return append(nodes, nn.NewLinear(c*h*w, a.Classes, withRNG))
}

// Metadata encodes the architecture as string metadata.
func (a Architecture) Metadata() map[string]string {
	loss := a.Loss
	if loss == "" {
		loss = LossNLL
	}
	return map[string]string{
		keyKind:      a.Kind,
		keyInput:     joinInts(a.Input),
		keyHidden:    joinInts(a.Hidden),
		keyClasses:   strconv.Itoa(a.Classes),
		keyDropout:   strconv.FormatFloat(a.Dropout, 'g', -1, 64),
		keyBatchNorm: strconv.FormatBool(a.BatchNorm),
		keyLoss:      loss,
	}
}

// FromMetadata decodes an architecture written by Metadata. Unrelated keys
// are ignored.
func FromMetadata(metadata map[string]string) (Architecture, error) {
	var a Architecture
	var err error

	kind, ok := metadata[keyKind]
	if !ok {
		return a, fmt.Errorf("%w: metadata has no %q", ErrInvalidArchitecture, keyKind)
	}
	a.Kind = kind
	a.Loss = metadata[keyLoss]

	if a.Input, err = ParseInts(metadata[keyInput]); err != nil {
		return a, fmt.Errorf("%w: %s: %w", ErrInvalidArchitecture, keyInput, err)
	}
	if a.Hidden, err = ParseInts(metadata[keyHidden]); err != nil {
		return a, fmt.Errorf("%w: %s: %w", ErrInvalidArchitecture, keyHidden, err)
	}
	if a.Classes, err = strconv.Atoi(metadata[keyClasses]); err != nil {
		return a, fmt.Errorf("%w: %s: %w", ErrInvalidArchitecture, keyClasses, err)
	}
	if v, ok := metadata[keyDropout]; ok {
		if a.Dropout, err = strconv.ParseFloat(v, 64); err != nil {
			return a, fmt.Errorf("%w: %s: %w", ErrInvalidArchitecture, keyDropout, err)
		}
	}
	if v, ok := metadata[keyBatchNorm]; ok {
		if a.BatchNorm, err = strconv.ParseBool(v); err != nil {
			return a, fmt.Errorf("%w: %s: %w", ErrInvalidArchitecture, keyBatchNorm, err)
		}
	}
	return a, a.Validate()
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

// ParseInts parses a comma-separated list such as "128,64". An empty
// string yields nil.
func ParseInts(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	xs := make([]int, len(parts))
	for i, p := range parts {
		x, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		xs[i] = x
	}
	return xs, nil
}
