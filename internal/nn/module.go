// Package nn implements the gradgraph node catalog and the Graph that drives it.
//
// A Node is one differentiable computation step. It owns its parameters,
// a single cache slot holding what Backward needs, and the gradients of
// its last backward pass. A Graph is an ordered pipeline of Nodes executed
// as one forward/backward/update unit:
//
//	graph := nn.NewGraph(
//	    nn.NewLinear(784, 128),
//	    nn.NewReLU(),
//	    nn.NewLinear(128, 10),
//	    nn.NewLogSoftmax(),
//	    nn.NewNLLLoss(),
//	)
//
//	graph.SetLabels(labels)
//	graph.Flush()
//	outs := graph.Forward(x)
//	graph.Backward()
//	graph.OptimStep(1e-3, 1e-5, 1e-5)
//
// Shape and contract violations are programming errors and panic. Omitting
// Flush between independent batches is a caller error and is not detected.
package nn

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// Common errors.
var (
	ErrShapeMismatch     = tensor.ErrShapeMismatch
	ErrNoForward         = errors.New("backward called without a pending forward")
	ErrNoBackward        = errors.New("optimizer step called before backward")
	ErrNoLabels          = errors.New("loss node has no labels")
	ErrLabelOutOfRange   = errors.New("label out of range")
	ErrNoLossNode        = errors.New("terminal node is not a loss node")
	ErrNoStatistics      = errors.New("running statistics not initialized")
	ErrIncompatibleState = errors.New("incompatible state")
)

// Mode selects training or evaluation behavior.
type Mode int

// Supported modes.
const (
	Train Mode = iota
	Eval
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Train:
		return "train"
	case Eval:
		return "eval"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Node is the capability every layer in a Graph implements.
type Node interface {
	// Name returns a diagnostic name.
	Name() string

	// Forward computes the output for x and caches what Backward needs.
	// x is never modified.
	Forward(x *tensor.Tensor) *tensor.Tensor

	// Backward consumes the cached forward state, records one gradient per
	// parameter (in Params order) and returns the gradient with respect to
	// the forward input, shaped like that input.
	Backward(grad *tensor.Tensor) *tensor.Tensor

	// Flush clears the cache and the recorded gradients.
	Flush()

	// SetMode switches between training and evaluation behavior.
	SetMode(mode Mode)

	// Params returns the owned parameter tensors. Empty for stateless nodes.
	Params() []*tensor.Tensor

	// Grads returns the gradients recorded by the last Backward, parallel
	// to Params. Empty after construction and after Flush.
	Grads() []*tensor.Tensor

	// StateDict returns parameters and persistent buffers by name.
	StateDict() map[string]*tensor.Tensor

	// LoadStateDict copies values from a state dictionary into the node.
	LoadStateDict(state map[string]*tensor.Tensor) error
}

// LossNode is a terminal node that reduces a batch to a scalar given
// caller-owned integer labels.
type LossNode interface {
	Node

	// SetLabels replaces the labels used by the next Forward.
	SetLabels(labels []int)

	// Labels returns the current labels.
	Labels() []int
}

// base carries the parameter bookkeeping shared by every node.
type base struct {
	name   string
	params []*Parameter
	mode   Mode
}

func newBase(name string) base {
	return base{name: name}
}

// addParam registers an owned parameter and returns its tensor.
func (b *base) addParam(name string, t *tensor.Tensor) *tensor.Tensor {
	b.params = append(b.params, NewParameter(name, t))
	return t
}

// Name returns the diagnostic node name.
func (b *base) Name() string { return b.name }

// Parameters returns the owned parameters with their names and gradients.
func (b *base) Parameters() []*Parameter { return b.params }

// Params returns the owned parameter tensors.
func (b *base) Params() []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(b.params))
	for i, p := range b.params {
		out[i] = p.Tensor()
	}
	return out
}

// Grads returns the gradients of the last backward pass, or nil if there
// was none since construction or the last Flush.
func (b *base) Grads() []*tensor.Tensor {
	if len(b.params) == 0 || b.params[0].Grad() == nil {
		return nil
	}
	out := make([]*tensor.Tensor, len(b.params))
	for i, p := range b.params {
		out[i] = p.Grad()
	}
	return out
}

// SetMode records the mode. Most nodes ignore it.
func (b *base) SetMode(mode Mode) { b.mode = mode }

// Mode returns the current mode.
func (b *base) Mode() Mode { return b.mode }

// setGrads replaces the recorded gradients, one per parameter.
func (b *base) setGrads(grads ...*tensor.Tensor) {
	if len(grads) != len(b.params) {
		panic(fmt.Sprintf("%s: %d gradients for %d parameters", b.name, len(grads), len(b.params)))
	}
	for i, p := range b.params {
		p.SetGrad(grads[i])
	}
}

func (b *base) flushGrads() {
	for _, p := range b.params {
		p.ZeroGrad()
	}
}

// StateDict returns the parameters keyed by name.
func (b *base) StateDict() map[string]*tensor.Tensor {
	state := make(map[string]*tensor.Tensor, len(b.params))
	for _, p := range b.params {
		state[p.Name()] = p.Tensor()
	}
	return state
}

// LoadStateDict copies parameter values from state.
func (b *base) LoadStateDict(state map[string]*tensor.Tensor) error {
	return b.loadParams(state)
}

func (b *base) loadParams(state map[string]*tensor.Tensor) error {
	for _, p := range b.params {
		if err := checkState(b.name, state, p.Name(), p.Tensor().Shape()); err != nil {
			return err
		}
	}
	for _, p := range b.params {
		p.Tensor().CopyFrom(state[p.Name()])
	}
	return nil
}

// checkState verifies that state holds key with the given shape.
func checkState(node string, state map[string]*tensor.Tensor, key string, want tensor.Shape) error {
	src, ok := state[key]
	if !ok {
		return fmt.Errorf("%s: %w: missing %s", node, ErrIncompatibleState, key)
	}
	if !src.Shape().Equal(want) {
		return fmt.Errorf("%s: %w: %s shape mismatch: expected %v, got %v",
			node, ErrIncompatibleState, key, want, src.Shape())
	}
	return nil
}

// stateKeys lists the keys of a state dictionary in sorted order.
func stateKeys(state map[string]*tensor.Tensor) []string {
	return slices.Sorted(maps.Keys(state))
}

// slot is a one-deep cache: Forward puts, Backward takes.
type slot[T any] struct {
	val  T
	full bool
}

func (s *slot[T]) put(v T) {
	s.val = v
	s.full = true
}

// take returns and clears the cached value. Panics if nothing is cached.
func (s *slot[T]) take(op string) T {
	if !s.full {
		panic(fmt.Errorf("%s: %w", op, ErrNoForward))
	}
	v := s.val
	s.clear()
	return v
}

func (s *slot[T]) clear() {
	var zero T
	s.val = zero
	s.full = false
}

// checkGrad panics unless grad has the expected shape.
func checkGrad(op string, grad *tensor.Tensor, want tensor.Shape) {
	if !grad.Shape().Equal(want) {
		panic(fmt.Errorf("%s: %w: gradient shape %v, expected %v", op, ErrShapeMismatch, grad.Shape(), want))
	}
}
