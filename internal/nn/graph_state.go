package nn

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/born-ml/gradgraph/internal/serialization"
	"github.com/born-ml/gradgraph/internal/tensor"
)

// ModelType is recorded in the header of saved graphs.
const ModelType = "Graph"

// NodeNames returns the node names in forward order.
func (g *Graph) NodeNames() []string {
	names := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		names[i] = n.Name()
	}
	return names
}

// StateDict returns all parameters and buffers keyed "<index>.<name>",
// e.g. "1.weight" or "3.running_mean". Tensors are shared, not copied.
func (g *Graph) StateDict() map[string]*tensor.Tensor {
	state := make(map[string]*tensor.Tensor)
	for i, n := range g.nodes {
		for name, t := range n.StateDict() {
			state[strconv.Itoa(i)+"."+name] = t
		}
	}
	return state
}

// LoadStateDict copies a state dictionary produced by StateDict into the
// graph. Keys that no node recognizes are an error. On error the graph may
// be partially loaded.
func (g *Graph) LoadStateDict(state map[string]*tensor.Tensor) error {
	perNode := make([]map[string]*tensor.Tensor, len(g.nodes))
	for i := range perNode {
		perNode[i] = make(map[string]*tensor.Tensor)
	}
	for key, t := range state {
		idx, name, ok := strings.Cut(key, ".")
		i, err := strconv.Atoi(idx)
		if !ok || err != nil || i < 0 || i >= len(g.nodes) {
			return fmt.Errorf("Graph.LoadStateDict: %w: unexpected key %q", ErrIncompatibleState, key)
		}
		perNode[i][name] = t
	}

	for i, n := range g.nodes {
		if err := n.LoadStateDict(perNode[i]); err != nil {
			return fmt.Errorf("Graph.LoadStateDict: node %d: %w", i, err)
		}
		known := n.StateDict()
		for _, name := range stateKeys(perNode[i]) {
			if _, ok := known[name]; !ok {
				return fmt.Errorf("Graph.LoadStateDict: %w: node %d (%s) has no %q", ErrIncompatibleState, i, n.Name(), name)
			}
		}
	}
	return nil
}

// header builds the serialization header for the current graph.
func (g *Graph) header(metadata map[string]string) serialization.Header {
	return serialization.Header{
		ModelType: ModelType,
		Nodes:     g.NodeNames(),
		Metadata:  metadata,
	}
}

// Encode writes the graph state and metadata to w in .ggr format.
func (g *Graph) Encode(w io.Writer, metadata map[string]string) error {
	return serialization.Encode(w, g.header(metadata), g.StateDict())
}

// Save writes the graph state and metadata to path.
func (g *Graph) Save(path string, metadata map[string]string) error {
	return serialization.WriteFile(path, g.header(metadata), g.StateDict())
}

// SaveCheckpoint writes the graph state together with training progress.
func (g *Graph) SaveCheckpoint(path string, metadata map[string]string, ckpt serialization.CheckpointMeta) error {
	header := g.header(metadata)
	header.CheckpointMeta = &ckpt
	return serialization.WriteFile(path, header, g.StateDict())
}

// ExportSafeTensors writes the graph state in SafeTensors format.
func (g *Graph) ExportSafeTensors(path string, metadata map[string]string) error {
	return serialization.WriteSafeTensors(path, g.StateDict(), metadata)
}

// Decode reads a graph saved by Encode or Save into g and returns the file
// header. The stored node names must match the graph's.
func (g *Graph) Decode(r io.Reader) (serialization.Header, error) {
	header, state, err := serialization.Decode(r, serialization.DefaultReaderOptions())
	if err != nil {
		return serialization.Header{}, err
	}
	return header, g.restore(header, state)
}

// Load reads the graph file at path into g and returns its header.
func (g *Graph) Load(path string) (serialization.Header, error) {
	file, err := os.Open(path) //nolint:gosec // G304: model path is user input
	if err != nil {
		return serialization.Header{}, fmt.Errorf("failed to open file: %w", err)
	}
	header, err := g.Decode(file)
	return header, errors.Join(err, file.Close())
}

func (g *Graph) restore(header serialization.Header, state map[string]*tensor.Tensor) error {
	if header.ModelType != ModelType {
		return fmt.Errorf("%w: model type %q", ErrIncompatibleState, header.ModelType)
	}
	if names := g.NodeNames(); !slices.Equal(header.Nodes, names) {
		return fmt.Errorf("%w: file nodes %v, graph nodes %v", ErrIncompatibleState, header.Nodes, names)
	}
	return g.LoadStateDict(state)
}
