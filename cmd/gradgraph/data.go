package main

import (
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/gradgraph/internal/models"
	"github.com/born-ml/gradgraph/internal/tensor"
	"github.com/born-ml/gradgraph/internal/train"
)

// dataFlags selects and loads a dataset.
type dataFlags struct {
	source  string
	csvPath string
	scale   float64
	images  string
	labels  string
	shape   string
	samples int
	classes int
	dim     int
	size    int
}

func (d *dataFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&d.source, "data", "synthetic", "Data source: synthetic, csv or idx")
	fs.StringVar(&d.csvPath, "csv", "", "CSV file with the label in the first column (-data csv)")
	fs.Float64Var(&d.scale, "scale", 1, "Factor applied to CSV features, e.g. 0.00392 for pixels")
	fs.StringVar(&d.images, "images", "", "IDX image file (-data idx)")
	fs.StringVar(&d.labels, "labels", "", "IDX label file (-data idx)")
	fs.StringVar(&d.shape, "shape", "", "Reshape each sample, e.g. 1,28,28 for CSV images")
	fs.IntVar(&d.samples, "samples", 0, "Max samples to load (0 = all, synthetic default 600)")
	fs.IntVar(&d.classes, "classes", 4, "Number of synthetic classes")
	fs.IntVar(&d.dim, "dim", 8, "Synthetic feature dimension (mlp)")
	fs.IntVar(&d.size, "size", 8, "Synthetic image side (cnn)")
}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

// load returns the dataset. Synthetic data is flat for mlp and images for cnn.
func (d *dataFlags) load(kind string, rng *rand.Rand) (*train.Dataset, error) {
	var ds *train.Dataset
	var err error
	switch d.source {
	case "synthetic":
		n := d.samples
		if n == 0 {
			n = 600
		}
		if kind == models.KindCNN {
			ds, err = train.SyntheticImages(n, d.size, d.classes, rng)
		} else {
			ds, err = train.Synthetic(n, d.dim, d.classes, rng)
		}
	case "csv":
		if d.csvPath == "" {
			return nil, errors.New("-data csv needs -csv")
		}
		ds, err = train.LoadCSV(d.csvPath, d.samples, d.scale)
	case "idx":
		if d.images == "" || d.labels == "" {
			return nil, errors.New("-data idx needs -images and -labels")
		}
		ds, err = train.LoadIDX(d.images, d.labels, d.samples)
	default:
		return nil, fmt.Errorf("unknown data source %q", d.source)
	}
	if err != nil {
		return nil, err
	}
	return d.reshape(ds)
}

func (d *dataFlags) reshape(ds *train.Dataset) (*train.Dataset, error) {
	if d.shape == "" {
		return ds, nil
	}
	dims, err := models.ParseInts(d.shape)
	if err != nil {
		return nil, fmt.Errorf("invalid -shape: %w", err)
	}
	sample := tensor.Shape(dims)
	if sample.NumElements() != ds.SampleShape().NumElements() {
		return nil, fmt.Errorf("-shape %v does not fit samples of shape %v", sample, ds.SampleShape())
	}
	x := ds.X.Reshape(append([]int{ds.NumSamples()}, dims...)...)
	return train.NewDataset(x, ds.Labels)
}
