package train

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// Dataset holds samples along the first axis of X and one class label per
// sample.
type Dataset struct {
	X      *tensor.Tensor // [num_samples, ...]
	Labels []int          // [num_samples]
}

// NewDataset checks that x and labels agree and returns the dataset.
func NewDataset(x *tensor.Tensor, labels []int) (*Dataset, error) {
	if x == nil || x.Rank() < 2 {
		return nil, fmt.Errorf("%w: samples need shape [num_samples, ...]", ErrInvalidDataset)
	}
	if x.Dim(0) != len(labels) {
		return nil, fmt.Errorf("%w: %d samples, %d labels", ErrInvalidDataset, x.Dim(0), len(labels))
	}
	for i, y := range labels {
		if y < 0 {
			return nil, fmt.Errorf("%w: negative label %d at sample %d", ErrInvalidDataset, y, i)
		}
	}
	return &Dataset{X: x, Labels: labels}, nil
}

// NumSamples returns the total number of samples in the dataset.
func (d *Dataset) NumSamples() int {
	return len(d.Labels)
}

// SampleShape returns the shape of one sample.
func (d *Dataset) SampleShape() tensor.Shape {
	return d.X.Shape()[1:]
}

// NumClasses returns the largest label plus one.
func (d *Dataset) NumClasses() int {
	classes := 0
	for _, y := range d.Labels {
		classes = max(classes, y+1)
	}
	return classes
}

// Stats returns the per-feature mean and standard deviation over the
// samples, shaped [1, ...] so they broadcast against a batch.
func (d *Dataset) Stats() (mean, std *tensor.Tensor) {
	return d.X.MeanAxis(0), d.X.StdAxes(0)
}

// Batch is one mini-batch.
type Batch struct {
	X      *tensor.Tensor
	Labels []int
}

// Batches splits the dataset into mini-batches of size samples. The last
// batch keeps the remainder, so every sample appears exactly once. A
// non-nil rng shuffles the order.
func (d *Dataset) Batches(size int, rng *rand.Rand) []Batch {
	if size <= 0 {
		panic(fmt.Sprintf("Dataset.Batches: invalid batch size %d", size))
	}
	n := d.NumSamples()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if rng != nil {
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	batches := make([]Batch, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		sub := d.gather(order[start:end])
		batches = append(batches, Batch(*sub))
	}
	return batches
}

// Shuffled returns a copy of the dataset in random order.
func (d *Dataset) Shuffled(rng *rand.Rand) *Dataset {
	return d.gather(rng.Perm(d.NumSamples()))
}

// Split splits the dataset into train and validation sets.
//
// Parameters:
//   - validationRatio: Fraction of data to use for validation (e.g., 0.2 for 20%)
//
// The split is positional; shuffle before splitting ordered data. Both
// parts must end up non-empty.
func (d *Dataset) Split(validationRatio float64) (trainSet, validationSet *Dataset, err error) {
	n := d.NumSamples()
	splitIdx := int(float64(n) * (1 - validationRatio))
	if validationRatio <= 0 || validationRatio >= 1 || splitIdx <= 0 || splitIdx >= n {
		return nil, nil, fmt.Errorf("%w: validation ratio %v leaves an empty part of %d samples",
			ErrInvalidDataset, validationRatio, n)
	}

	head := make([]int, splitIdx)
	tail := make([]int, n-splitIdx)
	for i := range head {
		head[i] = i
	}
	for i := range tail {
		tail[i] = splitIdx + i
	}
	return d.gather(head), d.gather(tail), nil
}

// gather copies the samples at indices into a new dataset.
func (d *Dataset) gather(indices []int) *Dataset {
	sampleShape := d.SampleShape()
	width := sampleShape.NumElements()
	src := d.X.Data()

	data := make([]float64, len(indices)*width)
	labels := make([]int, len(indices))
	for i, idx := range indices {
		copy(data[i*width:(i+1)*width], src[idx*width:(idx+1)*width])
		labels[i] = d.Labels[idx]
	}

	shape := append(tensor.Shape{len(indices)}, sampleShape...)
	return &Dataset{X: tensor.MustFromSlice(data, shape), Labels: labels}
}
