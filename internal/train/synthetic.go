package train

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// Synthetic generates a linearly separable classification dataset.
//
// Class c is a blob around 3·e_c, the c-th unit vector, with every
// coordinate jittered uniformly within ±0.5. Coordinate c is therefore the
// largest one for every sample of class c and the classes are separable by
// a linear layer. Labels cycle 0, 1, ..., classes-1.
//
// Parameters:
//   - n: Number of samples
//   - dim: Feature dimension, at least classes
//   - classes: Number of classes, at least 2
//   - rng: Random source, nil for the global source
func Synthetic(n, dim, classes int, rng *rand.Rand) (*Dataset, error) {
	if n <= 0 || classes < 2 || dim < classes {
		return nil, fmt.Errorf("%w: synthetic n=%d dim=%d classes=%d (need n > 0, classes >= 2, dim >= classes)",
			ErrInvalidDataset, n, dim, classes)
	}

	x := tensor.Rand(tensor.Shape{n, dim}, -0.5, 0.5, rng)
	data := x.Data()
	labels := make([]int, n)
	for i := range labels {
		c := i % classes
		labels[i] = c
		data[i*dim+c] += 3
	}
	return NewDataset(x, labels)
}

// SyntheticImages generates single-channel images with one bright
// horizontal band per class, for convolutional pipelines.
//
// This is NOT realistic image data, just a pattern a small CNN can learn:
// class c lights rows [c·size/classes, (c+1)·size/classes) across the
// middle columns, on top of uniform noise in [0, 0.1).
//
// Returns a dataset with X shaped [n, 1, size, size].
func SyntheticImages(n, size, classes int, rng *rand.Rand) (*Dataset, error) {
	if n <= 0 || classes < 2 || size < classes {
		return nil, fmt.Errorf("%w: synthetic images n=%d size=%d classes=%d (need n > 0, classes >= 2, size >= classes)",
			ErrInvalidDataset, n, size, classes)
	}

	x := tensor.Rand(tensor.Shape{n, 1, size, size}, 0, 0.1, rng)
	data := x.Data()
	labels := make([]int, n)
	band := size / classes
	for i := range labels {
		c := i % classes
		labels[i] = c
		img := data[i*size*size : (i+1)*size*size]
		for row := c * band; row < (c+1)*band; row++ {
			for col := size / 4; col < size-size/4; col++ {
				img[row*size+col] += 0.8 // bright pixels
			}
		}
	}
	return NewDataset(x, labels)
}
