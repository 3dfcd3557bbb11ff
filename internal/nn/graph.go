package nn

import (
	"fmt"
	"log"

	"github.com/born-ml/gradgraph/internal/optim"
	"github.com/born-ml/gradgraph/internal/tensor"
)

// Compile-time interface checks.
var (
	_ Node     = (*ReLU)(nil)
	_ Node     = (*Sigmoid)(nil)
	_ Node     = (*Tanh)(nil)
	_ Node     = (*Linear)(nil)
	_ Node     = (*StdScaler)(nil)
	_ Node     = (*BatchNorm)(nil)
	_ Node     = (*ChannelBatchNorm)(nil)
	_ Node     = (*Dropout)(nil)
	_ Node     = (*Softmax)(nil)
	_ Node     = (*LogSoftmax)(nil)
	_ Node     = (*Conv2D)(nil)
	_ Node     = (*MaxPool2D)(nil)
	_ Node     = (*Flatten)(nil)
	_ LossNode = (*NLLLoss)(nil)
	_ LossNode = (*CrossEntropyLoss)(nil)
)

// Graph is an ordered pipeline of nodes executed as one
// forward/backward/update unit.
//
// The node order is fixed at construction and defines both the forward
// order and the reversed backward order. A typical cycle is:
//
//	graph.SetLabels(labels)
//	graph.Flush()
//	graph.Forward(x)
//	graph.Backward()
//	graph.OptimStep(lr, l1, l2)
//
// Graph is not safe for concurrent use.
type Graph struct {
	nodes []Node

	// ran counts nodes run by the last Forward; Backward starts there.
	ran          int
	outShape     tensor.Shape
	backwardDone bool

	debug *log.Logger
}

// NewGraph creates a graph from nodes in forward order.
//
// Panics if nodes is empty or contains the same node twice: every node has
// a single cache slot and cannot appear at two positions.
func NewGraph(nodes ...Node) *Graph {
	if len(nodes) == 0 {
		panic("NewGraph: no nodes")
	}
	seen := make(map[Node]int, len(nodes))
	for i, n := range nodes {
		if n == nil {
			panic(fmt.Sprintf("NewGraph: node %d is nil", i))
		}
		if j, dup := seen[n]; dup {
			panic(fmt.Sprintf("NewGraph: node %s at positions %d and %d", n.Name(), j, i))
		}
		seen[n] = i
	}
	return &Graph{nodes: append([]Node(nil), nodes...)}
}

// ForwardOption configures a forward pass.
type ForwardOption func(*forwardConfig)

type forwardConfig struct {
	skipLoss bool
}

// SkipLoss stops the forward pass before a terminal loss node, so the last
// output is the pre-loss activation. Labels are not needed.
func SkipLoss() ForwardOption {
	return func(c *forwardConfig) {
		c.skipLoss = true
	}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns the nodes in forward order. The slice must not be modified.
func (g *Graph) Nodes() []Node { return g.nodes }

// Node returns the node at index i. Negative i counts from the end, so
// Node(-1) is the last node.
func (g *Graph) Node(i int) Node {
	if i < 0 {
		i += len(g.nodes)
	}
	if i < 0 || i >= len(g.nodes) {
		panic(fmt.Sprintf("Graph.Node: index %d out of range for %d nodes", i, len(g.nodes)))
	}
	return g.nodes[i]
}

// LossNode returns the terminal loss node, or nil if the graph does not end
// with one.
func (g *Graph) LossNode() LossNode {
	if l, ok := g.nodes[len(g.nodes)-1].(LossNode); ok {
		return l
	}
	return nil
}

// SetLabels injects the batch labels into the terminal loss node.
func (g *Graph) SetLabels(labels []int) error {
	l := g.LossNode()
	if l == nil {
		return fmt.Errorf("Graph.SetLabels: %w: last node is %s", ErrNoLossNode, g.nodes[len(g.nodes)-1].Name())
	}
	l.SetLabels(labels)
	return nil
}

// SetDebug enables per-node tracing of tensor shapes and non-finite values.
// A nil logger disables it.
func (g *Graph) SetDebug(logger *log.Logger) { g.debug = logger }

func (g *Graph) trace(stage string, n Node, in, out *tensor.Tensor) {
	if g.debug != nil {
		g.debug.Printf("%s %s: %s -> %s", stage, n.Name(), in.Describe(), out.Describe())
	}
}

// Forward feeds x through the nodes in order and returns every node's
// output. When the graph ends with a loss node the last element is the
// scalar loss, unless SkipLoss is given.
func (g *Graph) Forward(x *tensor.Tensor, opts ...ForwardOption) []*tensor.Tensor {
	var cfg forwardConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	nodes := g.nodes
	if cfg.skipLoss && g.LossNode() != nil {
		nodes = nodes[:len(nodes)-1]
	}

	outs := make([]*tensor.Tensor, 0, len(nodes))
	g.ran = 0
	g.backwardDone = false
	cur := x
	for _, n := range nodes {
		next := n.Forward(cur)
		g.trace("forward", n, cur, next)
		outs = append(outs, next)
		g.ran++
		cur = next
	}
	g.outShape = cur.Shape()
	return outs
}

// Backward seeds the last forward output with ones and propagates the
// gradient to the input. For a loss-terminated graph the seed is the
// scalar 1. Returns the gradient with respect to the graph input.
//
// Panics with ErrNoForward if no forward pass is pending.
func (g *Graph) Backward() *tensor.Tensor {
	if g.ran == 0 {
		panic(fmt.Errorf("Graph.Backward: %w", ErrNoForward))
	}
	return g.BackwardFrom(tensor.Ones(g.outShape))
}

// BackwardFrom propagates an external seed gradient, shaped like the last
// forward output, through the nodes that ran in reverse order.
func (g *Graph) BackwardFrom(seed *tensor.Tensor) *tensor.Tensor {
	if g.ran == 0 {
		panic(fmt.Errorf("Graph.BackwardFrom: %w", ErrNoForward))
	}
	if !seed.Shape().Equal(g.outShape) {
		panic(fmt.Errorf("Graph.BackwardFrom: %w: seed %v, output %v", ErrShapeMismatch, seed.Shape(), g.outShape))
	}

	grad := seed
	for i := g.ran - 1; i >= 0; i-- {
		n := g.nodes[i]
		next := n.Backward(grad)
		g.trace("backward", n, grad, next)
		grad = next
	}
	g.ran = 0
	g.backwardDone = true
	return grad
}

// Flush clears every node's cache and gradients. Call it before each new
// independent batch.
func (g *Graph) Flush() {
	for _, n := range g.nodes {
		n.Flush()
	}
	g.ran = 0
	g.backwardDone = false
}

// SetMode switches every node between training and evaluation behavior.
func (g *Graph) SetMode(mode Mode) {
	for _, n := range g.nodes {
		n.SetMode(mode)
	}
}

// Train switches to training mode.
func (g *Graph) Train() { g.SetMode(Train) }

// Eval switches to evaluation mode.
func (g *Graph) Eval() { g.SetMode(Eval) }

// Params returns every parameter tensor in node order.
func (g *Graph) Params() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, n := range g.nodes {
		params = append(params, n.Params()...)
	}
	return params
}

// Grads returns the gradients of the last backward pass, parallel to Params.
// A node that has not run backward contributes nil entries.
func (g *Graph) Grads() []*tensor.Tensor {
	var grads []*tensor.Tensor
	for _, n := range g.nodes {
		ps, gs := n.Params(), n.Grads()
		if len(gs) != len(ps) {
			gs = make([]*tensor.Tensor, len(ps))
		}
		grads = append(grads, gs...)
	}
	return grads
}

// NumParams returns the total number of scalar parameters.
func (g *Graph) NumParams() int {
	total := 0
	for _, p := range g.Params() {
		total += p.Len()
	}
	return total
}

// OptimStep applies p -= lr * (grad + l1*sign(p) + l2*p) to every parameter.
//
// Every gradient is checked before any parameter changes, so a failed step
// leaves the graph untouched. Returns ErrNoBackward if Backward has not run
// since the last Forward or Flush, and optim.ErrInvalidConfig for a
// non-positive learning rate or negative coefficients.
func (g *Graph) OptimStep(lr, l1, l2 float64) error {
	if !g.backwardDone {
		return fmt.Errorf("Graph.OptimStep: %w", ErrNoBackward)
	}
	cfg := optim.Config{LR: lr, L1: l1, L2: l2}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("Graph.OptimStep: %w", err)
	}
	return optim.Step(g.Params(), g.Grads(), cfg)
}

// Step applies one update with a configured optimizer.
func (g *Graph) Step(opt *optim.SGD) error {
	if !g.backwardDone {
		return fmt.Errorf("Graph.Step: %w", ErrNoBackward)
	}
	return opt.Step(g.Params(), g.Grads())
}

// Predict runs the inference path and returns the arg-max class of every
// row of the pre-loss output.
//
// The graph is flushed before and after, so Predict can be called between
// training cycles. Call Eval first for deterministic inference.
func (g *Graph) Predict(x *tensor.Tensor) []int {
	g.Flush()
	defer g.Flush()

	out := x
	if outs := g.Forward(x, SkipLoss()); len(outs) > 0 {
		out = outs[len(outs)-1]
	}
	return out.Reshape(-1, out.Dim(-1)).ArgMaxRows()
}
