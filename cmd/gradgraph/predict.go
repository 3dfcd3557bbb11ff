package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/born-ml/gradgraph/internal/models"
	"github.com/born-ml/gradgraph/internal/nn"
	"github.com/born-ml/gradgraph/internal/serialization"
	"github.com/born-ml/gradgraph/internal/train"
)

// loadGraph rebuilds a saved graph from its architecture metadata and loads
// its state. The graph is returned in eval mode.
func loadGraph(path string) (*nn.Graph, models.Architecture, error) {
	header, err := serialization.Inspect(path)
	if err != nil {
		return nil, models.Architecture{}, err
	}
	arch, err := models.FromMetadata(header.Metadata)
	if err != nil {
		return nil, arch, fmt.Errorf("%s was not saved by gradgraph train: %w", path, err)
	}
	graph, err := arch.Build(nil, nil, nil)
	if err != nil {
		return nil, arch, err
	}
	if _, err := graph.Load(path); err != nil {
		return nil, arch, err
	}
	graph.Eval()
	return graph, arch, nil
}

func runPredict(args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	var data dataFlags
	data.register(fs)
	modelPath := fs.String("model", "model.ggr", "Saved graph")
	batch := fs.Int("batch", 256, "Batch size")
	show := fs.Int("show", 10, "Number of predictions to print")
	seed := fs.Uint64("seed", 7, "Seed for synthetic data")
	if err := fs.Parse(args); err != nil {
		return err
	}

	graph, arch, err := loadGraph(*modelPath)
	if err != nil {
		return err
	}
	ds, err := data.load(arch.Kind, newRNG(*seed))
	if err != nil {
		return fmt.Errorf("failed to load data: %w", err)
	}
	if !ds.SampleShape().Equal(arch.Input) {
		return fmt.Errorf("samples of shape %v do not fit a graph trained on %v", ds.SampleShape(), arch.Input)
	}

	shown := 0
	for _, b := range ds.Batches(*batch, nil) {
		for i, p := range graph.Predict(b.X) {
			if shown == *show {
				break
			}
			fmt.Printf("sample %d: predicted %d, label %d\n", shown, p, b.Labels[i])
			shown++
		}
		if shown == *show {
			break
		}
	}
	fmt.Printf("accuracy %.4f on %d samples\n", train.Evaluate(graph, ds, *batch), ds.NumSamples())
	return nil
}

func runInspect(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: gradgraph inspect FILE")
	}
	header, err := serialization.Inspect(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(header)
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	modelPath := fs.String("model", "model.ggr", "Saved graph")
	out := fs.String("out", "model.safetensors", "SafeTensors output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	graph, arch, err := loadGraph(*modelPath)
	if err != nil {
		return err
	}
	if err := graph.ExportSafeTensors(*out, arch.Metadata()); err != nil {
		return err
	}
	fmt.Printf("exported %d tensors to %s\n", len(graph.StateDict()), *out)
	return nil
}
