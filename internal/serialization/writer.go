package serialization

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"
	"time"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// LibraryVersion is recorded in every header written by this package.
const LibraryVersion = "0.3.0"

// encodeTensors lays out the state dictionary in name order and returns the
// tensor metadata and the data section.
func encodeTensors(state map[string]*tensor.Tensor) ([]TensorMeta, []byte, error) {
	names := slices.Sorted(maps.Keys(state))
	metas := make([]TensorMeta, 0, len(names))

	var total int64
	for _, name := range names {
		if err := ValidateTensorName(name); err != nil {
			return nil, nil, err
		}
		total += int64(state[name].Len()) * Float64Size
	}

	data := make([]byte, 0, total)
	var offset int64
	for _, name := range names {
		t := state[name]
		size := int64(t.Len()) * Float64Size
		metas = append(metas, TensorMeta{
			Name:   name,
			DType:  DTypeFloat64,
			Shape:  slices.Clone([]int(t.Shape())),
			Offset: offset,
			Size:   size,
		})
		for _, v := range t.Data() {
			data = binary.LittleEndian.AppendUint64(data, math.Float64bits(v))
		}
		offset += size
	}
	return metas, data, nil
}

// Encode writes header and state to w in .ggr format.
//
// FormatVersion, LibraryVersion, Tensors and (when zero) CreatedAt are
// filled in by Encode; the caller supplies ModelType, Nodes, Metadata and
// the optional checkpoint metadata.
func Encode(w io.Writer, header Header, state map[string]*tensor.Tensor) error {
	metas, data, err := encodeTensors(state)
	if err != nil {
		return err
	}

	header.FormatVersion = FormatVersion
	header.LibraryVersion = LibraryVersion
	header.Tensors = metas
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	checksum := ComputeChecksum(data)

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)

	flags := uint32(0)
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if header.CheckpointMeta != nil {
		flags |= FlagHasCheckpoint
	}
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	// 0x0C-0x0F: reserved
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(data)))
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	if _, err := w.Write(fixed); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header JSON: %w", err)
	}
	if padding := alignedPadding(int64(len(headerJSON))); padding > 0 {
		if _, err := w.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// WriteFile encodes header and state into the file at path, replacing it.
func WriteFile(path string, header Header, state map[string]*tensor.Tensor) (err error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()

	return Encode(file, header, state)
}
