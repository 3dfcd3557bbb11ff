package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// labelled holds caller-owned labels for a loss node.
type labelled struct {
	labels []int
}

// SetLabels replaces the labels used by the next Forward. The slice is
// referenced, not copied; Forward snapshots it.
func (l *labelled) SetLabels(labels []int) { l.labels = labels }

// Labels returns the current labels.
func (l *labelled) Labels() []int { return l.labels }

// lossCache is what a loss backward needs.
type lossCache struct {
	x      *tensor.Tensor
	labels []int
}

// gather validates labels against x [..., classes] and returns a snapshot
// of them together with the flat offset of every true-label element.
func (l *labelled) gather(op string, x *tensor.Tensor) ([]int, []int) {
	if l.labels == nil {
		panic(fmt.Errorf("%s: %w", op, ErrNoLabels))
	}
	if x.Rank() < 1 {
		panic(fmt.Errorf("%s: %w: scalar input", op, ErrShapeMismatch))
	}
	classes := x.Dim(-1)
	rows := x.Len() / classes
	if len(l.labels) != rows {
		panic(fmt.Errorf("%s: %w: %d labels for %d rows", op, ErrShapeMismatch, len(l.labels), rows))
	}

	labels := make([]int, rows)
	offsets := make([]int, rows)
	for i, y := range l.labels {
		if y < 0 || y >= classes {
			panic(fmt.Errorf("%s: %w: label %d at row %d, classes %d", op, ErrLabelOutOfRange, y, i, classes))
		}
		labels[i] = y
		offsets[i] = i*classes + y
	}
	return labels, offsets
}

func labelOffsets(labels []int, classes int) []int {
	offsets := make([]int, len(labels))
	for i, y := range labels {
		offsets[i] = i*classes + y
	}
	return offsets
}

// NLLLoss is the negative log-likelihood loss over log-probabilities.
//
// Forward sums (not averages) the negated log-probability of the true class
// across the batch:
//
//	loss = -Σ_i x[i, y_i]
//
// Backward scatters -grad into the true-class slot of an all-zero gradient.
//
// Example:
//
//	loss := nn.NewNLLLoss()
//	loss.SetLabels([]int{1})
//	v := loss.Forward(logProbs) // scalar
type NLLLoss struct {
	base
	labelled
	cache slot[lossCache]
}

// NewNLLLoss creates a negative log-likelihood loss node.
func NewNLLLoss() *NLLLoss {
	return &NLLLoss{base: newBase("NLLLoss")}
}

// Forward returns the summed negative log-likelihood as a scalar.
func (n *NLLLoss) Forward(x *tensor.Tensor) *tensor.Tensor {
	labels, offsets := n.gather("NLLLoss.Forward", x)
	data := x.Data()
	var loss float64
	for _, off := range offsets {
		loss -= data[off]
	}
	n.cache.put(lossCache{x: x, labels: labels})
	return tensor.Scalar(loss)
}

// Backward returns zeros with -grad at every true-label position.
func (n *NLLLoss) Backward(grad *tensor.Tensor) *tensor.Tensor {
	c := n.cache.take("NLLLoss.Backward")
	g := grad.Item()

	out := tensor.Zeros(c.x.Shape())
	data := out.Data()
	for _, off := range labelOffsets(c.labels, c.x.Dim(-1)) {
		data[off] = -g
	}
	return out
}

// Flush clears the cache. Labels are kept.
func (n *NLLLoss) Flush() {
	n.cache.clear()
	n.flushGrads()
}

// CrossEntropyLoss is the multi-class cross-entropy over probabilities.
//
// It differs from NLLLoss only in taking probabilities rather than
// log-probabilities:
//
//	loss = -Σ_i log(p[i, y_i] + 1e-6)
//
// Backward divides the scattered -grad by the same stabilized probability.
type CrossEntropyLoss struct {
	base
	labelled
	cache slot[lossCache]
}

// NewCrossEntropyLoss creates a cross-entropy loss node.
func NewCrossEntropyLoss() *CrossEntropyLoss {
	return &CrossEntropyLoss{base: newBase("CrossEntropyLoss")}
}

// Forward returns the summed cross-entropy as a scalar.
func (c *CrossEntropyLoss) Forward(x *tensor.Tensor) *tensor.Tensor {
	labels, offsets := c.gather("CrossEntropyLoss.Forward", x)
	data := x.Data()
	var loss float64
	for _, off := range offsets {
		loss -= math.Log(data[off] + logEps)
	}
	c.cache.put(lossCache{x: x, labels: labels})
	return tensor.Scalar(loss)
}

// Backward returns zeros with -grad/(p_y + 1e-6) at every true-label position.
func (c *CrossEntropyLoss) Backward(grad *tensor.Tensor) *tensor.Tensor {
	lc := c.cache.take("CrossEntropyLoss.Backward")
	g := grad.Item()

	out := tensor.Zeros(lc.x.Shape())
	src := lc.x.Data()
	data := out.Data()
	for _, off := range labelOffsets(lc.labels, lc.x.Dim(-1)) {
		data[off] = -g / (src[off] + logEps)
	}
	return out
}

// Flush clears the cache. Labels are kept.
func (c *CrossEntropyLoss) Flush() {
	c.cache.clear()
	c.flushGrads()
}
