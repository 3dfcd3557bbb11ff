package serialization

import (
	"time"
)

// Format constants.
const (
	MagicBytes      = "GGRF"
	FormatVersion   = 1    // fixed header with SHA-256 checksum
	HeaderAlignment = 64   // tensor data starts on a 64-byte boundary
	FixedHeaderSize = 64   // fixed header size (0x40 bytes)
	ChecksumSize    = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffset  = 0x20 // checksum offset in the fixed header
	Float64Size     = 8    // bytes per stored element
)

// DTypeFloat64 is the only element type gradgraph stores.
const DTypeFloat64 = "float64"

// Flags for the .ggr format.
const (
	FlagHasMetadata   uint32 = 1 << 0 // bit 0: custom metadata included
	FlagHasCheckpoint uint32 = 1 << 1 // bit 1: training checkpoint metadata included
)

// Header represents the JSON header in a .ggr file.
type Header struct {
	FormatVersion  int               `json:"format_version"`       // Version of the .ggr format
	LibraryVersion string            `json:"library_version"`      // Version of gradgraph that created this file
	ModelType      string            `json:"model_type"`           // Type of model (e.g., "Graph")
	CreatedAt      time.Time         `json:"created_at"`           // When the file was created
	Nodes          []string          `json:"nodes"`                // Node names in graph order
	Tensors        []TensorMeta      `json:"tensors"`              // Tensor metadata
	Metadata       map[string]string `json:"metadata"`             // Custom metadata
	CheckpointMeta *CheckpointMeta   `json:"checkpoint,omitempty"` // Checkpoint metadata (optional)
}

// CheckpointMeta contains training state information for checkpoints.
type CheckpointMeta struct {
	Epoch           int                `json:"epoch"`            // Training epoch number
	Step            int64              `json:"step"`             // Optimizer steps taken
	Loss            float64            `json:"loss"`             // Mean loss of the epoch
	Accuracy        float64            `json:"accuracy"`         // Training accuracy of the epoch
	OptimizerType   string             `json:"optimizer_type"`   // e.g. "SGD"
	OptimizerConfig map[string]float64 `json:"optimizer_config"` // lr, l1, l2
}

// TensorMeta describes a tensor in the .ggr file.
type TensorMeta struct {
	Name   string `json:"name"`   // Tensor name (e.g., "1.weight")
	DType  string `json:"dtype"`  // Always "float64"
	Shape  []int  `json:"shape"`  // Tensor shape
	Offset int64  `json:"offset"` // Offset in the data section
	Size   int64  `json:"size"`   // Size in bytes
}

// alignedPadding returns the zero bytes needed after the JSON header.
func alignedPadding(headerSize int64) int64 {
	pos := int64(FixedHeaderSize) + headerSize
	return (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment
}
