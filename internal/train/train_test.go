package train

import (
	"bytes"
	"context"
	"encoding/binary"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradgraph/internal/nn"
	"github.com/born-ml/gradgraph/internal/optim"
	"github.com/born-ml/gradgraph/internal/serialization"
	"github.com/born-ml/gradgraph/internal/tensor"
)

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero lr", func(c *Config) { c.LR = 0 }},
		{"negative l1", func(c *Config) { c.L1 = -1 }},
		{"negative l2", func(c *Config) { c.L2 = -1 }},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
		{"zero epochs", func(c *Config) { c.Epochs = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	cfg := DefaultConfig()
	cfg.LR = -1
	assert.ErrorIs(t, cfg.Validate(), optim.ErrInvalidConfig)
}

func TestNewDataset(t *testing.T) {
	_, err := NewDataset(tensor.Ones(tensor.Shape{3, 2}), []int{0, 1})
	assert.ErrorIs(t, err, ErrInvalidDataset)

	_, err = NewDataset(tensor.Ones(tensor.Shape{2, 2}), []int{0, -1})
	assert.ErrorIs(t, err, ErrInvalidDataset)

	_, err = NewDataset(tensor.Ones(tensor.Shape{2}), []int{0, 1})
	assert.ErrorIs(t, err, ErrInvalidDataset)

	ds, err := NewDataset(tensor.Ones(tensor.Shape{2, 3, 4}), []int{0, 4})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.NumSamples())
	assert.Equal(t, tensor.Shape{3, 4}, ds.SampleShape())
	assert.Equal(t, 5, ds.NumClasses())
}

func sequentialDataset(t *testing.T, n int) *Dataset {
	t.Helper()
	data := make([]float64, 2*n)
	labels := make([]int, n)
	for i := range labels {
		data[2*i], data[2*i+1] = float64(i), float64(-i)
		labels[i] = i
	}
	ds, err := NewDataset(tensor.MustFromSlice(data, tensor.Shape{n, 2}), labels)
	require.NoError(t, err)
	return ds
}

func TestBatchesKeepRemainder(t *testing.T) {
	ds := sequentialDataset(t, 10)
	batches := ds.Batches(4, nil)
	require.Len(t, batches, 3)
	assert.Equal(t, tensor.Shape{4, 2}, batches[0].X.Shape())
	assert.Equal(t, tensor.Shape{2, 2}, batches[2].X.Shape())
	assert.Equal(t, []int{8, 9}, batches[2].Labels)
	assert.Equal(t, []float64{8, -8, 9, -9}, batches[2].X.Data())
}

func TestBatchesShuffleCoversEverySample(t *testing.T) {
	ds := sequentialDataset(t, 25)
	var seen []int
	for _, b := range ds.Batches(7, newRNG(3)) {
		for i, y := range b.Labels {
			// Rows travel with their labels.
			assert.Equal(t, float64(y), b.X.At(i, 0))
			seen = append(seen, y)
		}
	}
	assert.NotEqual(t, ds.Labels, seen, "order should be shuffled")
	slices.Sort(seen)
	assert.Equal(t, ds.Labels, seen)

	assert.Panics(t, func() { ds.Batches(0, nil) })
}

func TestSplit(t *testing.T) {
	ds := sequentialDataset(t, 10)
	trainSet, valSet, err := ds.Split(0.2)
	require.NoError(t, err)
	assert.Equal(t, 8, trainSet.NumSamples())
	assert.Equal(t, 2, valSet.NumSamples())
	assert.Equal(t, []int{8, 9}, valSet.Labels)

	for _, ratio := range []float64{0, 1, -0.5, 0.95} {
		_, _, err := ds.Split(ratio)
		assert.ErrorIs(t, err, ErrInvalidDataset, "ratio %v", ratio)
	}
}

func TestShuffled(t *testing.T) {
	ds := sequentialDataset(t, 20)
	sh := ds.Shuffled(newRNG(4))
	assert.Equal(t, ds.NumSamples(), sh.NumSamples())
	assert.NotEqual(t, ds.Labels, sh.Labels)
	for i, y := range sh.Labels {
		assert.Equal(t, float64(-y), sh.X.At(i, 1))
	}
}

func TestStats(t *testing.T) {
	ds := sequentialDataset(t, 3)
	mean, std := ds.Stats()
	assert.Equal(t, tensor.Shape{1, 2}, mean.Shape())
	assert.InDeltaSlice(t, []float64{1, -1}, mean.Data(), 1e-12)
	assert.InDelta(t, std.At(0, 0), std.At(0, 1), 1e-12)
}

func TestSynthetic(t *testing.T) {
	ds, err := Synthetic(30, 4, 3, newRNG(5))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{30, 4}, ds.X.Shape())
	assert.Equal(t, 3, ds.NumClasses())

	// The class coordinate is the largest one, so arg-max already separates.
	for i, p := range ds.X.ArgMaxRows() {
		assert.Equal(t, ds.Labels[i], p)
	}

	_, err = Synthetic(10, 2, 3, nil)
	assert.ErrorIs(t, err, ErrInvalidDataset)
	_, err = Synthetic(0, 3, 3, nil)
	assert.ErrorIs(t, err, ErrInvalidDataset)
}

func TestSyntheticImages(t *testing.T) {
	ds, err := SyntheticImages(8, 8, 4, newRNG(6))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{8, 1, 8, 8}, ds.X.Shape())

	// Sample 1 is class 1: rows 2-3 are bright in the middle.
	assert.Greater(t, ds.X.At(1, 0, 2, 4), 0.7)
	assert.Less(t, ds.X.At(1, 0, 0, 4), 0.1)

	_, err = SyntheticImages(4, 2, 3, nil)
	assert.ErrorIs(t, err, ErrInvalidDataset)
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	content := "label,a,b,c\n1,0,255,51\n0,255,0,0\n2,1,2,3\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	ds, err := LoadCSV(path, 2, 1.0/255)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, ds.Labels)
	assert.Equal(t, tensor.Shape{2, 3}, ds.X.Shape())
	assert.InDeltaSlice(t, []float64{0, 1, 0.2, 1, 0, 0}, ds.X.Data(), 1e-12)

	bad := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("label,a\nx,1\n"), 0o600))
	_, err = LoadCSV(bad, 0, 1)
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(empty, []byte("label,a\n"), 0o600))
	_, err = LoadCSV(empty, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidDataset)

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"), 0, 1)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func writeIDX(t *testing.T, path string, header []uint32, payload []byte) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, header))
	buf.Write(payload)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func TestLoadIDX(t *testing.T) {
	dir := t.TempDir()
	images := filepath.Join(dir, "images-idx3-ubyte")
	labels := filepath.Join(dir, "labels-idx1-ubyte")
	writeIDX(t, images, []uint32{idxImagesMagic, 3, 2, 2}, []byte{
		0, 255, 0, 255,
		255, 0, 0, 0,
		51, 51, 51, 51,
	})
	writeIDX(t, labels, []uint32{idxLabelsMagic, 3}, []byte{7, 1, 3})

	ds, err := LoadIDX(images, labels, 0)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 1, 2, 2}, ds.X.Shape())
	assert.Equal(t, []int{7, 1, 3}, ds.Labels)
	assert.InDelta(t, 1.0, ds.X.At(0, 0, 0, 1), 1e-12)
	assert.InDelta(t, 0.2, ds.X.At(2, 0, 1, 1), 1e-12)

	limited, err := LoadIDX(images, labels, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, limited.NumSamples())

	writeIDX(t, labels, []uint32{idxImagesMagic, 3}, []byte{7, 1, 3})
	_, err = LoadIDX(images, labels, 0)
	assert.ErrorIs(t, err, ErrInvalidDataset)

	writeIDX(t, labels, []uint32{idxLabelsMagic, 2}, []byte{7, 1})
	_, err = LoadIDX(images, labels, 0)
	assert.ErrorIs(t, err, ErrInvalidDataset)
}

func newMLP(rng *rand.Rand, in, classes int) *nn.Graph {
	return nn.NewGraph(
		nn.NewLinear(in, 16, nn.WithRNG(rng)),
		nn.NewReLU(),
		nn.NewLinear(16, classes, nn.WithRNG(rng)),
		nn.NewLogSoftmax(),
		nn.NewNLLLoss(),
	)
}

func TestNewTrainer(t *testing.T) {
	_, err := NewTrainer(nn.NewGraph(nn.NewLinear(2, 2)), DefaultConfig())
	assert.ErrorIs(t, err, nn.ErrNoLossNode)

	cfg := DefaultConfig()
	cfg.Epochs = 0
	_, err = NewTrainer(newMLP(nil, 2, 2), cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFitLearnsSyntheticData(t *testing.T) {
	rng := newRNG(7)
	ds, err := Synthetic(150, 4, 3, rng)
	require.NoError(t, err)
	trainSet, valSet, err := ds.Shuffled(rng).Split(0.2)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.LR = 0.01
	cfg.BatchSize = 16
	cfg.Epochs = 40
	cfg.CheckpointPath = filepath.Join(t.TempDir(), "best.ggr")

	var logs bytes.Buffer
	graph := newMLP(rng, 4, 3)
	trainer, err := NewTrainer(graph, cfg,
		WithLogger(log.New(&logs, "", 0)),
		WithValidation(valSet),
		WithMetadata(map[string]string{"arch": "mlp"}),
	)
	require.NoError(t, err)

	history, err := trainer.Fit(context.Background(), trainSet)
	require.NoError(t, err)
	require.Len(t, history, cfg.Epochs)
	assert.Equal(t, cfg.Epochs*((trainSet.NumSamples()+15)/16), trainer.Step())

	first, last := history[0], history[len(history)-1]
	assert.Equal(t, 1, first.Epoch)
	assert.True(t, first.Checkpointed, "first epoch always improves on nothing")
	assert.Less(t, last.Loss, first.Loss)
	assert.GreaterOrEqual(t, last.Accuracy, 0.95)
	assert.True(t, last.Validated)
	assert.GreaterOrEqual(t, last.ValAccuracy, 0.9)
	assert.GreaterOrEqual(t, Evaluate(graph, valSet, 7), 0.9)

	assert.Contains(t, logs.String(), "epoch 1 loss")
	assert.Contains(t, logs.String(), "(saved)")

	info, err := serialization.Inspect(cfg.CheckpointPath)
	require.NoError(t, err)
	require.NotNil(t, info.CheckpointMeta)
	assert.Equal(t, "SGD", info.CheckpointMeta.OptimizerType)
	assert.Equal(t, "mlp", info.Metadata["arch"])

	bestEpoch := 0
	best := -1.0
	for _, s := range history {
		if s.Accuracy > best {
			best, bestEpoch = s.Accuracy, s.Epoch
		}
	}
	assert.Equal(t, bestEpoch, info.CheckpointMeta.Epoch)
}

func TestFitTrainsConvolutionalGraph(t *testing.T) {
	rng := newRNG(8)
	ds, err := SyntheticImages(40, 8, 4, rng)
	require.NoError(t, err)

	graph := nn.NewGraph(
		nn.NewConv2D(1, 4, 3, 1, 1, nn.WithRNG(rng)),
		nn.NewChannelBatchNorm(4, nn.DefaultMomentum),
		nn.NewReLU(),
		nn.NewMaxPool2D(2, 2, 0),
		nn.NewFlatten(),
		nn.NewLinear(4*4*4, 4, nn.WithRNG(rng)),
		nn.NewLogSoftmax(),
		nn.NewNLLLoss(),
	)
	cfg := DefaultConfig()
	cfg.LR = 0.01
	cfg.BatchSize = 8
	cfg.Epochs = 15

	trainer, err := NewTrainer(graph, cfg)
	require.NoError(t, err)
	history, err := trainer.Fit(context.Background(), ds)
	require.NoError(t, err)
	assert.Less(t, history[len(history)-1].Loss, history[0].Loss)
}

func TestFitStopsOnCancel(t *testing.T) {
	ds, err := Synthetic(20, 2, 2, newRNG(9))
	require.NoError(t, err)
	trainer, err := NewTrainer(newMLP(newRNG(10), 2, 2), DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	history, err := trainer.Fit(ctx, ds)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, history)
	assert.Zero(t, trainer.Step())
}

func TestFitRejectsBadLabels(t *testing.T) {
	ds, err := NewDataset(tensor.Ones(tensor.Shape{2, 2}), []int{0, 5})
	require.NoError(t, err)
	trainer, err := NewTrainer(newMLP(newRNG(11), 2, 2), DefaultConfig())
	require.NoError(t, err)
	assert.Panics(t, func() { _, _ = trainer.Fit(context.Background(), ds) })
}
