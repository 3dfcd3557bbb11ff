package models

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradgraph/internal/nn"
	"github.com/born-ml/gradgraph/internal/tensor"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		arch Architecture
	}{
		{"unknown kind", Architecture{Kind: "rnn", Input: tensor.Shape{4}, Classes: 2}},
		{"no input", Architecture{Kind: KindMLP, Classes: 2}},
		{"one class", Architecture{Kind: KindMLP, Input: tensor.Shape{4}, Classes: 1}},
		{"zero hidden", Architecture{Kind: KindMLP, Input: tensor.Shape{4}, Hidden: []int{0}, Classes: 2}},
		{"dropout one", Architecture{Kind: KindMLP, Input: tensor.Shape{4}, Classes: 2, Dropout: 1}},
		{"unknown loss", Architecture{Kind: KindMLP, Input: tensor.Shape{4}, Classes: 2, Loss: "mse"}},
		{"cnn flat input", Architecture{Kind: KindCNN, Input: tensor.Shape{16}, Classes: 2}},
		{"cnn too deep", Architecture{Kind: KindCNN, Input: tensor.Shape{1, 4, 4}, Hidden: []int{2, 2, 2}, Classes: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.arch.Validate(), ErrInvalidArchitecture)
		})
	}
}

func TestBuildMLP(t *testing.T) {
	arch := Architecture{
		Kind:      KindMLP,
		Input:     tensor.Shape{4},
		Hidden:    []int{8, 6},
		Classes:   3,
		Dropout:   0.2,
		BatchNorm: true,
	}
	g, err := arch.Build(nil, nil, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"StdScaler",
		"Linear", "BatchNorm", "ReLU", "Dropout",
		"Linear", "BatchNorm", "ReLU", "Dropout",
		"Linear", "LogSoftmax", "NLLLoss",
	}, g.NodeNames())

	x := tensor.Randn(tensor.Shape{5, 4}, rand.New(rand.NewPCG(5, 6)))
	g.Forward(x, nn.SkipLoss())
	g.Flush()
	g.Eval()
	pred := g.Predict(x)
	assert.Len(t, pred, 5)
}

func TestBuildCNN(t *testing.T) {
	arch := Architecture{
		Kind:    KindCNN,
		Input:   tensor.Shape{1, 8, 8},
		Hidden:  []int{4, 6},
		Classes: 3,
		Loss:    LossCE,
	}
	g, err := arch.Build(nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"StdScaler",
		"Conv2D", "ReLU", "MaxPool2D",
		"Conv2D", "ReLU", "MaxPool2D",
		"Flatten", "Linear", "Softmax", "CrossEntropyLoss",
	}, g.NodeNames())

	require.NoError(t, g.SetLabels([]int{0, 2}))
	outs := g.Forward(tensor.Ones(tensor.Shape{2, 1, 8, 8}))
	assert.Equal(t, tensor.Shape{2, 3}, outs[len(outs)-2].Shape())
	g.Flush()
}

func TestBuildRejectsStatistics(t *testing.T) {
	arch := Architecture{Kind: KindMLP, Input: tensor.Shape{4}, Classes: 2}
	_, err := arch.Build(tensor.Zeros(tensor.Shape{1, 3}), tensor.Ones(tensor.Shape{1, 3}), nil)
	assert.ErrorIs(t, err, ErrInvalidArchitecture)
}

func TestMetadataRoundTrip(t *testing.T) {
	arch := Architecture{
		Kind:      KindCNN,
		Input:     tensor.Shape{1, 8, 8},
		Hidden:    []int{4},
		Classes:   4,
		Dropout:   0.25,
		BatchNorm: true,
		Loss:      LossNLL,
	}
	meta := arch.Metadata()
	meta["note"] = "ignored"

	got, err := FromMetadata(meta)
	require.NoError(t, err)
	assert.Equal(t, arch, got)

	_, err = FromMetadata(map[string]string{})
	assert.ErrorIs(t, err, ErrInvalidArchitecture)

	meta[keyClasses] = "x"
	_, err = FromMetadata(meta)
	assert.ErrorIs(t, err, ErrInvalidArchitecture)
}

// A graph rebuilt from metadata loads the trained state and predicts the same.
func TestRebuildFromSavedGraph(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	arch := Architecture{Kind: KindMLP, Input: tensor.Shape{3}, Hidden: []int{5}, Classes: 2, BatchNorm: true}
	x := tensor.Randn(tensor.Shape{6, 3}, rng)

	trained, err := arch.Build(x.MeanAxis(0), x.StdAxes(0), rng)
	require.NoError(t, err)
	trained.Forward(x, nn.SkipLoss())
	trained.Flush()
	trained.Eval()

	var buf bytes.Buffer
	require.NoError(t, trained.Encode(&buf, arch.Metadata()))

	probe, err := arch.Build(nil, nil, nil)
	require.NoError(t, err)
	header, err := probe.Decode(&buf)
	require.NoError(t, err)

	rebuiltArch, err := FromMetadata(header.Metadata)
	require.NoError(t, err)
	assert.Equal(t, arch.Hidden, rebuiltArch.Hidden)

	probe.Eval()
	assert.Equal(t, trained.Predict(x), probe.Predict(x))
}

func TestParseInts(t *testing.T) {
	xs, err := ParseInts(" 128, 64 ")
	require.NoError(t, err)
	assert.Equal(t, []int{128, 64}, xs)

	xs, err = ParseInts("")
	require.NoError(t, err)
	assert.Nil(t, xs)

	_, err = ParseInts("1,a")
	assert.Error(t, err)
}
